package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"portfoliohub/pkg/auth"
	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/events"
)

func TestSignUpFirstUserBecomesSuperAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, tokens, err := env.app.SignUp(ctx, SignUpInput{Email: " Owner@Example.com ", Password: testPassword, Name: "Owner"})
	if err != nil {
		t.Fatalf("first signup: %v", err)
	}
	if first.Role != domain.RoleSuperAdmin || first.Email != "owner@example.com" {
		t.Fatalf("unexpected first user: %+v", first)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected tokens, got %+v", tokens)
	}
	second, _, err := env.app.SignUp(ctx, SignUpInput{Email: "visitor@example.com", Password: testPassword, Name: "Visitor"})
	if err != nil {
		t.Fatalf("second signup: %v", err)
	}
	if second.Role != domain.RoleUser {
		t.Fatalf("expected USER for later sign-ups, got %s", second.Role)
	}
	if got := len(env.events.ofType(events.UserRegistered)); got != 2 {
		t.Fatalf("expected 2 registered events, got %d", got)
	}
}

func TestConcurrentFirstSignUpsPromoteOneUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const n = 8
	roles := make(chan domain.UserRole, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, _, err := env.app.SignUp(ctx, SignUpInput{Email: fmt.Sprintf("founder%d@example.com", i), Password: testPassword, Name: "Founder"})
			if err != nil {
				t.Errorf("signup %d: %v", i, err)
				return
			}
			roles <- u.Role
		}(i)
	}
	wg.Wait()
	close(roles)

	supers := 0
	for r := range roles {
		if r == domain.RoleSuperAdmin {
			supers++
		}
	}
	if supers != 1 {
		t.Fatalf("expected exactly one SUPER_ADMIN, got %d", supers)
	}
	counts, err := env.store.CountUsersByRole()
	if err != nil {
		t.Fatalf("count roles: %v", err)
	}
	if counts[domain.RoleSuperAdmin] != 1 || counts[domain.RoleUser] != n-1 {
		t.Fatalf("unexpected stored roles: %v", counts)
	}
}

func TestSignUpRejectsDuplicateEmailAndWeakPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, _, err := env.app.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: testPassword, Name: "A"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	_, _, err := env.app.SignUp(ctx, SignUpInput{Email: "A@example.com", Password: testPassword, Name: "B"})
	if !errors.Is(err, ErrEmailAlreadyExists) {
		t.Fatalf("expected ErrEmailAlreadyExists, got %v", err)
	}
	_, _, err = env.app.SignUp(ctx, SignUpInput{Email: "b@example.com", Password: "short", Name: "B"})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "password" {
		t.Fatalf("expected password validation error, got %v", err)
	}
}

func TestEmailVerificationFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _, err := env.app.SignUp(ctx, SignUpInput{Email: "v@example.com", Password: testPassword, Name: "V"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	requested := env.events.ofType(events.UserVerificationRequested)
	if len(requested) != 1 {
		t.Fatalf("expected one verification event, got %d", len(requested))
	}
	token, _ := requested[0].Data["token"].(string)
	if token == "" {
		t.Fatalf("verification event carries no token: %+v", requested[0].Data)
	}
	stored, _, _ := env.store.GetUserByID(user.ID)
	if stored.EmailVerifyToken == token {
		t.Fatalf("verification token must be stored hashed")
	}
	if stored.EmailVerifyExpires == nil || stored.EmailVerifyExpires.Sub(stored.CreatedAt).Round(time.Minute) != 24*time.Hour {
		t.Fatalf("expected 24h expiry, got %v", stored.EmailVerifyExpires)
	}

	if _, err := env.app.VerifyEmail(ctx, "wrong"); !errors.Is(err, ErrInvalidVerifyToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
	verified, err := env.app.VerifyEmail(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !verified.EmailVerified {
		t.Fatalf("expected verified user")
	}
	if _, err := env.app.VerifyEmail(ctx, token); !errors.Is(err, ErrInvalidVerifyToken) {
		t.Fatalf("token must be single use, got %v", err)
	}
	if err := env.app.ResendVerification(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("resend for unknown email should be silent: %v", err)
	}
}

func TestVerifyEmailRejectsExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, _, err := env.app.SignUp(ctx, SignUpInput{Email: "late@example.com", Password: testPassword, Name: "Late"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	token, _ := env.events.ofType(events.UserVerificationRequested)[0].Data["token"].(string)
	env.app.now = func() time.Time { return time.Now().UTC().Add(25 * time.Hour) }
	if _, err := env.app.VerifyEmail(ctx, token); !errors.Is(err, ErrInvalidVerifyToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestLoginRefreshLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _, err := env.app.SignUp(ctx, SignUpInput{Email: "l@example.com", Password: testPassword, Name: "L"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, _, err := env.app.Login(ctx, "l@example.com", "Wr0ng!Password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	_, tokens, err := env.app.Login(ctx, "L@example.com", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got, ok := env.app.UserFromToken(tokens.AccessToken); !ok || got.ID != user.ID {
		t.Fatalf("access token does not resolve the user")
	}

	_, rotated, err := env.app.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, _, err := env.app.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("replayed refresh token must fail, got %v", err)
	}
	if err := env.app.Logout(ctx, rotated.AccessToken, rotated.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := env.app.UserFromToken(rotated.AccessToken); ok {
		t.Fatalf("access token must be revoked after logout")
	}
}

func TestUserTracksLatestRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	stored := func() string {
		t.Helper()
		u, ok, err := env.store.GetUserByEmail("r@example.com")
		if err != nil || !ok {
			t.Fatalf("get user: ok=%v err=%v", ok, err)
		}
		return u.RefreshToken
	}

	user, signup, err := env.app.SignUp(ctx, SignUpInput{Email: "r@example.com", Password: testPassword, Name: "R"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if got := stored(); got != auth.HashToken(signup.RefreshToken) {
		t.Fatalf("sign-up refresh token not recorded: %q", got)
	}
	_, rotated, err := env.app.Refresh(ctx, signup.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := stored(); got != auth.HashToken(rotated.RefreshToken) {
		t.Fatalf("rotated refresh token not recorded: %q", got)
	}
	if err := env.app.Logout(ctx, rotated.AccessToken, rotated.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if got := stored(); got != "" {
		t.Fatalf("logout must clear the refresh token, got %q", got)
	}

	_, login, err := env.app.Login(ctx, "r@example.com", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := stored(); got != auth.HashToken(login.RefreshToken) {
		t.Fatalf("login refresh token not recorded: %q", got)
	}
	admin := env.seedUser(t, domain.RoleSuperAdmin)
	inactive := false
	if _, err := env.app.AdminUpdateUser(ctx, admin, user.ID, UserUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if got := stored(); got != "" {
		t.Fatalf("deactivation must clear the refresh token, got %q", got)
	}
}

func TestLoginRejectsDisabledUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _, err := env.app.SignUp(ctx, SignUpInput{Email: "d@example.com", Password: testPassword, Name: "D"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	user.IsActive = false
	if err := env.store.UpdateUser(user); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, _, err := env.app.Login(ctx, "d@example.com", testPassword); !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("expected ErrUserDisabled, got %v", err)
	}
}

func TestChangePasswordRevokesRefreshTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, tokens, err := env.app.SignUp(ctx, SignUpInput{Email: "p@example.com", Password: testPassword, Name: "P"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := env.app.ChangePassword(ctx, user.ID, "Wr0ng!Password", "N3w!Password99"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := env.app.ChangePassword(ctx, user.ID, testPassword, "N3w!Password99"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, _, err := env.app.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected refresh token revoked, got %v", err)
	}
	if _, _, err := env.app.Login(ctx, "p@example.com", "N3w!Password99"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestUpdateProfileSanitisesBio(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, domain.RoleUser)
	bio := "<b>Hello</b><script>alert(1)</script>"
	updated, err := env.app.UpdateProfile(user, ProfileUpdate{Bio: &bio})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Bio != "Hello" {
		t.Fatalf("expected sanitised bio, got %q", updated.Bio)
	}
	empty := " "
	if _, err := env.app.UpdateProfile(user, ProfileUpdate{Name: &empty}); !IsValidation(err) {
		t.Fatalf("expected validation error for empty name, got %v", err)
	}
}
