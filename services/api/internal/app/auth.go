package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"portfoliohub/internal/util"
	"portfoliohub/pkg/auth"
	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/events"
	"portfoliohub/pkg/store"
)

// Tokens is the pair handed to a client after authentication.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

type SignUpInput struct {
	Email    string
	Password string
	Name     string
}

// SignUp registers an account and issues tokens. The first account becomes
// SUPER_ADMIN, later ones USER, even when sign-ups race. The email starts unverified; a verification
// token is published with user.verification_requested.
func (a *App) SignUp(ctx context.Context, in SignUpInput) (domain.User, Tokens, error) {
	email := normalizeEmail(in.Email)
	if !validEmail(email) {
		return domain.User{}, Tokens{}, invalid("email", "must be a valid email address")
	}
	name, err := requireText("name", in.Name, 100)
	if err != nil {
		return domain.User{}, Tokens{}, err
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.User{}, Tokens{}, &ValidationError{Field: "password", Message: err.Error()}
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, Tokens{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, Tokens{}, ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, Tokens{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.store.CreateUserFirstRole(a.newUser(email, name, passwordHash, domain.RoleUser), domain.RoleSuperAdmin)
	if err != nil {
		return domain.User{}, Tokens{}, fmt.Errorf("save user: %w", mapStoreErr(err))
	}
	a.emit(ctx, events.UserRegistered, map[string]any{"userId": user.ID, "email": user.Email, "name": user.Name})
	if err := a.requestVerification(ctx, &user); err != nil {
		util.LoggerFromContext(ctx).Warn("verification_token_failed", "user_id", user.ID, "err", err)
	}
	tokens, err := a.issueTokens(ctx, user.ID)
	if err != nil {
		return domain.User{}, Tokens{}, err
	}
	return user, tokens, nil
}

// CreateStaffUser creates an active, verified account with the given role.
// Used by the operator CLI and by administrators.
func (a *App) CreateStaffUser(ctx context.Context, email, name, password string, role domain.UserRole) (domain.User, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return domain.User{}, invalid("email", "must be a valid email address")
	}
	if !role.Valid() {
		return domain.User{}, invalid("role", "unknown role %q", role)
	}
	name, err := requireText("name", name, 100)
	if err != nil {
		return domain.User{}, err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, &ValidationError{Field: "password", Message: err.Error()}
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.createUser(email, name, hash, role)
	if err != nil {
		return domain.User{}, err
	}
	user.EmailVerified = true
	if err := a.store.UpdateUser(user); err != nil {
		return domain.User{}, fmt.Errorf("mark verified: %w", mapStoreErr(err))
	}
	util.LoggerFromContext(ctx).Info("staff_user_created", "user_id", user.ID, "role", role)
	return user, nil
}

// Login validates credentials and issues tokens.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, Tokens, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, Tokens{}, ErrInvalidCredentials
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, Tokens{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, Tokens{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return domain.User{}, Tokens{}, ErrUserDisabled
	}
	now := a.now()
	if err := a.store.TouchUserActivity(user.ID, now, true); err != nil {
		util.LoggerFromContext(ctx).Warn("touch_user_activity_failed", "user_id", user.ID, "err", err)
	} else {
		user.LastLoginAt, user.LastActiveAt = &now, &now
	}
	tokens, err := a.issueTokens(ctx, user.ID)
	if err != nil {
		return domain.User{}, Tokens{}, err
	}
	return user, tokens, nil
}

// UserFromToken resolves an active user from an access token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found || !user.IsActive {
		return domain.User{}, false
	}
	return user, true
}

// Refresh rotates the refresh token and issues a new pair.
func (a *App) Refresh(ctx context.Context, refreshToken string) (domain.User, Tokens, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return domain.User{}, Tokens{}, ErrRefreshTokenRequired
	}
	userID, rotated, err := a.refreshTokens.RotateToken(ctx, refreshToken, a.refreshTTL)
	if err != nil {
		if errors.Is(err, store.ErrRefreshTokenReplay) {
			util.LoggerFromContext(ctx).Warn("refresh_token_replay")
		}
		if errors.Is(err, store.ErrInvalidRefreshToken) || errors.Is(err, store.ErrRefreshTokenReplay) {
			return domain.User{}, Tokens{}, ErrInvalidRefreshToken
		}
		return domain.User{}, Tokens{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	user, found, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, Tokens{}, fmt.Errorf("fetch user: %w", err)
	}
	if !found || !user.IsActive {
		_ = a.refreshTokens.DeleteToken(ctx, rotated)
		return domain.User{}, Tokens{}, ErrInvalidRefreshToken
	}
	access, err := a.sessions.NewSession(user.ID)
	if err != nil {
		_ = a.refreshTokens.DeleteToken(ctx, rotated)
		return domain.User{}, Tokens{}, fmt.Errorf("issue access token: %w", err)
	}
	a.recordRefreshToken(ctx, user.ID, rotated)
	return user, Tokens{AccessToken: access, RefreshToken: rotated}, nil
}

// Logout invalidates the access token and, when given, the refresh token.
func (a *App) Logout(ctx context.Context, accessToken, refreshToken string) error {
	userID, _, _ := a.sessions.GetUserIDByToken(accessToken)
	if err := a.sessions.DeleteSession(accessToken); err != nil {
		return err
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	if userID != "" {
		user, ok, err := a.store.GetUserByID(userID)
		if err == nil && ok && user.RefreshToken == auth.HashToken(refreshToken) {
			a.recordRefreshToken(ctx, userID, "")
		}
	}
	return a.refreshTokens.DeleteToken(ctx, refreshToken)
}

// VerifyEmail consumes a verification token.
func (a *App) VerifyEmail(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, ErrInvalidVerifyToken
	}
	user, ok, err := a.store.GetUserByVerifyToken(auth.HashToken(token))
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok || user.EmailVerifyExpires == nil || a.now().After(*user.EmailVerifyExpires) {
		return domain.User{}, ErrInvalidVerifyToken
	}
	user.EmailVerified = true
	user.EmailVerifyToken = ""
	user.EmailVerifyExpires = nil
	user.UpdatedAt = a.now()
	if err := a.store.UpdateUser(user); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", mapStoreErr(err))
	}
	util.LoggerFromContext(ctx).Info("email_verified", "user_id", user.ID)
	return user, nil
}

// ResendVerification issues a fresh token for an unverified account. Unknown
// or already verified emails succeed silently.
func (a *App) ResendVerification(ctx context.Context, email string) error {
	user, ok, err := a.store.GetUserByEmail(normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok || user.EmailVerified || !user.IsActive {
		return nil
	}
	return a.requestVerification(ctx, &user)
}

func (a *App) requestVerification(ctx context.Context, user *domain.User) error {
	plain, hash, err := auth.NewOpaqueToken()
	if err != nil {
		return err
	}
	expires := a.now().Add(a.verifyTTL)
	user.EmailVerifyToken = hash
	user.EmailVerifyExpires = &expires
	user.UpdatedAt = a.now()
	if err := a.store.UpdateUser(*user); err != nil {
		return fmt.Errorf("store verification token: %w", mapStoreErr(err))
	}
	a.emit(ctx, events.UserVerificationRequested, map[string]any{
		"userId":    user.ID,
		"email":     user.Email,
		"token":     plain,
		"verifyUrl": a.link("/verify-email", plain),
		"expiresAt": expires,
	})
	return nil
}

type ProfileUpdate struct {
	Name      *string
	Bio       *string
	AvatarURL *string
}

// UpdateProfile changes the caller's own public profile fields.
func (a *App) UpdateProfile(user domain.User, in ProfileUpdate) (domain.User, error) {
	if in.Name != nil {
		name, err := requireText("name", *in.Name, 100)
		if err != nil {
			return domain.User{}, err
		}
		user.Name = name
	}
	if in.Bio != nil {
		bio, err := optionalText("bio", util.PlainText(*in.Bio), 2000)
		if err != nil {
			return domain.User{}, err
		}
		user.Bio = bio
	}
	if in.AvatarURL != nil {
		avatar, err := optionalText("avatarUrl", *in.AvatarURL, 500)
		if err != nil {
			return domain.User{}, err
		}
		user.AvatarURL = avatar
	}
	user.UpdatedAt = a.now()
	if err := a.store.UpdateUser(user); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", mapStoreErr(err))
	}
	return user, nil
}

// ChangePassword verifies the current password, stores the new one and
// revokes every session issued before the change.
func (a *App) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := auth.ValidatePassword(newPassword); err != nil {
		return &ValidationError{Field: "newPassword", Message: err.Error()}
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !user.IsActive {
		return ErrNotFound
	}
	if !auth.CheckPassword(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if currentPassword == newPassword {
		return invalid("newPassword", "must differ from the current password")
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	revokeSince := a.now()
	user.PasswordHash = hash
	user.UpdatedAt = revokeSince
	if err := a.store.UpdateUser(user); err != nil {
		return fmt.Errorf("update password: %w", mapStoreErr(err))
	}
	if err := a.revokeAllUserTokens(ctx, user.ID, revokeSince); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

// JWKS returns public signing keys when the session store publishes them.
func (a *App) JWKS() []store.JWK {
	provider, ok := a.sessions.(store.JWKSProvider)
	if !ok {
		return nil
	}
	return provider.JWKS()
}

func (a *App) issueTokens(ctx context.Context, userID string) (Tokens, error) {
	access, err := a.sessions.NewSession(userID)
	if err != nil {
		return Tokens{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := a.refreshTokens.NewToken(ctx, userID, a.refreshTTL)
	if err != nil {
		return Tokens{}, fmt.Errorf("issue refresh token: %w", err)
	}
	a.recordRefreshToken(ctx, userID, refresh)
	return Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

// recordRefreshToken stores the hash of the user's latest refresh token, or
// clears it when token is empty. The token store stays authoritative, so a
// failed write is logged only.
func (a *App) recordRefreshToken(ctx context.Context, userID, token string) {
	hash := ""
	if token != "" {
		hash = auth.HashToken(token)
	}
	err := a.store.SetUserRefreshToken(userID, hash)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		util.LoggerFromContext(ctx).Warn("record_refresh_token_failed", "user_id", userID, "err", err)
	}
}

func (a *App) revokeAllUserTokens(ctx context.Context, userID string, since time.Time) error {
	if revoker, ok := a.sessions.(store.UserSessionRevoker); ok {
		if err := revoker.RevokeUserSessions(userID, since); err != nil {
			return err
		}
	}
	a.recordRefreshToken(ctx, userID, "")
	return a.refreshTokens.RevokeUserRefreshTokens(ctx, userID)
}

func (a *App) newUser(email, name, passwordHash string, role domain.UserRole) domain.User {
	now := a.now()
	return domain.User{
		ID:           util.NewID(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (a *App) createUser(email, name, passwordHash string, role domain.UserRole) (domain.User, error) {
	user := a.newUser(email, name, passwordHash, role)
	if err := a.store.CreateUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", mapStoreErr(err))
	}
	return user, nil
}
