package server

import (
	"errors"
	"net/http"

	"portfoliohub/pkg/domain"
	"portfoliohub/services/api/internal/app"
)

type authResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         domain.User `json:"user"`
}

func newAuthResponse(user domain.User, tokens app.Tokens) authResponse {
	return authResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken, User: user}
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, map[string]any{"keys": s.app.JWKS()})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.signupLimiter, "auth.signup", "too many signup attempts") {
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	user, tokens, err := s.app.SignUp(r.Context(), app.SignUpInput{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		s.audit(r, "auth.signup", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, newAuthResponse(user, tokens))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, "auth.login", "too many login attempts") {
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	user, tokens, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		reason := "invalid_credentials"
		if errors.Is(err, app.ErrUserDisabled) {
			reason = "disabled"
		}
		s.audit(r, "auth.login", "fail", "reason", reason)
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, newAuthResponse(user, tokens))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.refreshLimiter, "auth.refresh", "too many refresh attempts") {
		return
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	user, tokens, err := s.app.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.audit(r, "auth.refresh", "fail")
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.refresh", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, newAuthResponse(user, tokens))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "auth.logout", "fail", "reason", "missing_token")
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.Logout(r.Context(), token, req.RefreshToken); err != nil {
		s.audit(r, "auth.logout", "fail")
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.app.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		s.audit(r, "auth.verify_email", "fail")
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.verify_email", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, user)
}

// handleResendVerification answers 202 whether or not the email is known.
func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.signupLimiter, "auth.verify_email", "too many requests") {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.ResendVerification(r.Context(), req.Email); err != nil && !errors.Is(err, app.ErrAlreadyVerified) {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (s *Server) handleGetMe(w http.ResponseWriter, _ *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		Name      *string `json:"name"`
		Bio       *string `json:"bio"`
		AvatarURL *string `json:"avatarUrl"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := s.app.UpdateProfile(user, app.ProfileUpdate{Name: req.Name, Bio: req.Bio, AvatarURL: req.AvatarURL})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		s.audit(r, "auth.password.change", "fail", "user_id", user.ID)
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.password.change", "success", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}
