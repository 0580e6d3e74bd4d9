package handlers

import (
	"context"
	"net/http"

	"github.com/mirono/webtrees/internal/application/auth"
	"github.com/mirono/webtrees/internal/domain/user"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/internal/interfaces/http/middleware"
)

// AuthService is the slice of the auth application service the handler uses.
type AuthService interface {
	Login(ctx context.Context, req auth.LoginRequest) (*auth.Session, error)
	Logout(ctx context.Context, claims *auth.Claims, clientIP string) error
	RequestPasswordReset(ctx context.Context, email, clientIP string) error
	ValidateResetToken(ctx context.Context, token string) (*user.User, error)
	PerformPasswordReset(ctx context.Context, token, newPassword, clientIP string) error
}

// AuthHandler serves login, logout and the password-reset flow.
type AuthHandler struct {
	auth   AuthService
	logger logging.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc AuthService, logger logging.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, logger: logger}
}

// LoginRequest is the POST /auth/login body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.auth.Login(r.Context(), auth.LoginRequest{
		UsernameOrEmail: req.Username,
		Password:        req.Password,
		ClientIP:        clientIP(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Logout handles POST /api/v1/auth/logout. The token is revoked until its
// natural expiry.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ContextGetClaims(r.Context())
	if claims == nil {
		writeError(w, errUnauthorized())
		return
	}
	if err := h.auth.Logout(r.Context(), claims, clientIP(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionResponse is the GET /auth/session body.
type SessionResponse struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// Session handles GET /api/v1/auth/session: it echoes who the presented
// token belongs to, letting clients restore state after a reload.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ContextGetClaims(r.Context())
	if claims == nil {
		writeError(w, errUnauthorized())
		return
	}
	resp := SessionResponse{
		UserID:   claims.Subject,
		Username: claims.Username,
		Role:     claims.Role,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time.UTC().Format(timeLayout)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResetRequestBody is the POST /auth/password-reset/request body.
type ResetRequestBody struct {
	Email string `json:"email"`
}

// RequestPasswordReset handles POST /api/v1/auth/password-reset/request.
// Whether or not the address has an account, the answer is 202; only a
// syntactically invalid address is rejected.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.auth.RequestPasswordReset(r.Context(), req.Email, clientIP(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "if the address has an account, a reset link is on its way",
	})
}

// ResetValidateResponse is the GET /auth/password-reset/validate body.
type ResetValidateResponse struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username,omitempty"`
}

// ValidateResetToken handles GET /api/v1/auth/password-reset/validate.
// Possession of a live token proves control of the mailbox, so answering
// with the username is not a leak.
func (h *AuthHandler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeValidationError(w, "token is required")
		return
	}
	u, err := h.auth.ValidateResetToken(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResetValidateResponse{Valid: true, Username: u.Username})
}

// ResetPerformBody is the POST /auth/password-reset/perform body.
type ResetPerformBody struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// PerformPasswordReset handles POST /api/v1/auth/password-reset/perform.
func (h *AuthHandler) PerformPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetPerformBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Token == "" {
		writeValidationError(w, "token is required")
		return
	}
	if err := h.auth.PerformPasswordReset(r.Context(), req.Token, req.NewPassword, clientIP(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}
