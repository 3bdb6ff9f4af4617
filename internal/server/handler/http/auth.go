package http

import (
	"context"
	"net/http"

	"github.com/mirrorx/vault/internal/middleware"
	"github.com/mirrorx/vault/internal/models"
	"go.uber.org/zap"
)

// AuthService defines the account operations required by the HTTP handlers.
type AuthService interface {
	SignUp(ctx context.Context, email, password, fullName string) (*models.Profile, error)
	ResendCode(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (*models.AuthResult, error)
	SignIn(ctx context.Context, email, password string) (*models.AuthResult, error)
	SignOut(ctx context.Context, sessionID string) error
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID, fullName string) (*models.Profile, error)
}

// AuthHandler handles sign-up, passcode verification, sign-in, sign-out and
// the account profile.
type AuthHandler struct {
	// AuthService performs the underlying account operations.
	AuthService AuthService
	Log         *zap.Logger
}

// SignUpRequest is the JSON payload of POST /api/auth/signup.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// CredentialsRequest is the JSON payload of POST /api/auth/signin.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyRequest is the JSON payload of POST /api/auth/verify and /resend.
type VerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// SignUp registers an account and sends a verification code.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	p, err := h.AuthService.SignUp(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"profile": p,
		"message": "Check your email for a verification code.",
	})
}

// Resend sends a new verification code.
func (h *AuthHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if err := h.AuthService.ResendCode(r.Context(), req.Email); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// Verify confirms the email with its code and signs the user in.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	res, err := h.AuthService.VerifyOTP(r.Context(), req.Email, req.Code)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SignIn exchanges credentials for a session token.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	res, err := h.AuthService.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SignOut ends the current session.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.AuthService.SignOut(r.Context(), middleware.GetSessionIDFromContext(r.Context())); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Profile returns the signed-in user's profile.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	p, err := h.AuthService.GetProfile(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateProfile changes the signed-in user's display name.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string `json:"fullName"`
	}
	if !decodeJSON(w, r, &req, false) {
		return
	}
	p, err := h.AuthService.UpdateProfile(r.Context(), middleware.GetUserIDFromContext(r.Context()), req.FullName)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
