package client

import (
	"context"
	"time"
)

// AuthClient covers login, logout, sessions and the password-reset flow.
type AuthClient struct {
	client *Client
}

// User is the account representation returned by the API.
type User struct {
	ID              string            `json:"id"`
	Email           string            `json:"email"`
	Username        string            `json:"username"`
	RealName        string            `json:"real_name"`
	Role            string            `json:"role"`
	Status          string            `json:"status"`
	Language        string            `json:"language,omitempty"`
	Preferences     map[string]string `json:"preferences,omitempty"`
	EmailVerifiedAt *time.Time        `json:"email_verified_at,omitempty"`
	LastLoginAt     *time.Time        `json:"last_login_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Session is a minted login session.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// SessionInfo describes the session behind the current token.
type SessionInfo struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// ResetValidation is the outcome of checking a password-reset token.
type ResetValidation struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username,omitempty"`
}

// Login exchanges credentials for a session. The minted token is stored on
// the client, so subsequent calls are authenticated without further setup.
// POST /api/v1/auth/login
func (ac *AuthClient) Login(ctx context.Context, usernameOrEmail, password string) (*Session, error) {
	if usernameOrEmail == "" {
		return nil, invalidArg("username is required")
	}
	if password == "" {
		return nil, invalidArg("password is required")
	}
	body := map[string]string{"username": usernameOrEmail, "password": password}
	var session Session
	if err := ac.client.post(ctx, "/api/v1/auth/login", body, &session); err != nil {
		return nil, err
	}
	ac.client.SetToken(session.Token)
	return &session, nil
}

// Logout revokes the current session and clears the stored token.
// POST /api/v1/auth/logout
func (ac *AuthClient) Logout(ctx context.Context) error {
	if err := ac.client.post(ctx, "/api/v1/auth/logout", nil, nil); err != nil {
		return err
	}
	ac.client.SetToken("")
	return nil
}

// CurrentSession describes the session the stored token belongs to.
// GET /api/v1/auth/session
func (ac *AuthClient) CurrentSession(ctx context.Context) (*SessionInfo, error) {
	var info SessionInfo
	if err := ac.client.get(ctx, "/api/v1/auth/session", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// RequestPasswordReset asks the server to mail a reset link. The server
// answers identically whether or not the address exists.
// POST /api/v1/auth/password-reset/request
func (ac *AuthClient) RequestPasswordReset(ctx context.Context, email string) error {
	if email == "" {
		return invalidArg("email is required")
	}
	return ac.client.post(ctx, "/api/v1/auth/password-reset/request", map[string]string{"email": email}, nil)
}

// ValidateResetToken checks a reset token without consuming it.
// POST /api/v1/auth/password-reset/validate
func (ac *AuthClient) ValidateResetToken(ctx context.Context, token string) (*ResetValidation, error) {
	if token == "" {
		return nil, invalidArg("token is required")
	}
	var out ResetValidation
	if err := ac.client.post(ctx, "/api/v1/auth/password-reset/validate", map[string]string{"token": token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PerformPasswordReset consumes a reset token and sets the new password.
// POST /api/v1/auth/password-reset/perform
func (ac *AuthClient) PerformPasswordReset(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return invalidArg("token is required")
	}
	if newPassword == "" {
		return invalidArg("newPassword is required")
	}
	body := map[string]string{"token": token, "new_password": newPassword}
	return ac.client.post(ctx, "/api/v1/auth/password-reset/perform", body, nil)
}
