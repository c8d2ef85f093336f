package server

import (
	"net/http"

	"crowdfund/internal/auth"
)

type confirmRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// resetPasswordRequest carries the userId and secret from the recovery link.
type resetPasswordRequest struct {
	UserID      string `json:"userId"`
	Secret      string `json:"secret"`
	NewPassword string `json:"newPassword"`
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input auth.RegisterInput
	if err := decodeJSON(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	userID, err := s.auth.Register(r.Context(), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.users.EnsureUser(r.Context(), userID, input.Email, input.GivenName, input.FamilyName); err != nil {
		// the profile row is created again on first authenticated request
		s.logger.WithError(err).WithField("user_id", userID).Warn("failed to create profile for new user")
	}

	s.writeEnvelope(w, http.StatusCreated, envelope{
		Success: true,
		Data:    map[string]string{"userId": userID},
		Message: "Check your email for a confirmation code.",
	})
}

func (s *Service) handleConfirmRegistration(w http.ResponseWriter, r *http.Request) {
	var input confirmRequest
	if err := decodeJSON(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.auth.ConfirmRegistration(r.Context(), input.Email, input.Code); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeEnvelope(w, http.StatusOK, envelope{Success: true, Message: "Your account is confirmed. You can now sign in."})
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	var input loginRequest
	if err := decodeJSON(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	session, err := s.auth.Login(r.Context(), input.Email, input.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sealed, err := s.cookie.Encode(s.config.CookieName, session.AccessToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    sealed,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   min(session.ExpiresIn, s.config.SessionMaxAgeSec),
		Path:     "/",
	})

	s.writeJSON(w, http.StatusOK, loginResponse{AccessToken: session.AccessToken, ExpiresIn: session.ExpiresIn})
}

func (s *Service) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), accessTokenFromContext(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.clearSessionCookie(w)
	s.writeEnvelope(w, http.StatusOK, envelope{Success: true, Message: "Signed out."})
}

func (s *Service) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var input forgotPasswordRequest
	if err := decodeJSON(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.auth.ForgotPassword(r.Context(), input.Email); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeEnvelope(w, http.StatusOK, envelope{
		Success: true,
		Message: "If an account exists for that email, a recovery code is on its way.",
	})
}

func (s *Service) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var input resetPasswordRequest
	if err := decodeJSON(w, r, &input); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.auth.ResetPassword(r.Context(), input.UserID, input.Secret, input.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeEnvelope(w, http.StatusOK, envelope{Success: true, Message: "Your password has been reset."})
}

func (s *Service) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})
}
