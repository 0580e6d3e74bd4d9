package client

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth_Login(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/login", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "margaret", req["username"])
		assert.Equal(t, "s3cret", req["password"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Session{
			Token:     "minted-token",
			ExpiresAt: time.Now().Add(time.Hour),
			User:      &User{Username: "margaret", Role: "manager"},
		})
	}
	c := newTestClient(t, handler)

	session, err := c.Auth().Login(context.Background(), "margaret", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "minted-token", session.Token)
	assert.Equal(t, "manager", session.User.Role)

	// The minted token replaces the one the client was built with.
	assert.Equal(t, "minted-token", c.bearerToken())
}

func TestAuth_Login_Validation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := c.Auth().Login(context.Background(), "", "pw")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = c.Auth().Login(context.Background(), "margaret", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAuth_Logout_ClearsToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/logout", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.Auth().Logout(context.Background()))
	assert.Equal(t, "", c.bearerToken())
}

func TestAuth_CurrentSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/session", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SessionInfo{Username: "margaret", Role: "member"})
	})

	info, err := c.Auth().CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "margaret", info.Username)
}

func TestAuth_PasswordResetFlow(t *testing.T) {
	var calls []string
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		switch r.URL.Path {
		case "/api/v1/auth/password-reset/request":
			w.WriteHeader(http.StatusAccepted)
		case "/api/v1/auth/password-reset/validate":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(ResetValidation{Valid: true, Username: "margaret"})
		case "/api/v1/auth/password-reset/perform":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "password updated"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
	c := newTestClient(t, handler)
	ctx := context.Background()

	require.NoError(t, c.Auth().RequestPasswordReset(ctx, "margaret@example.com"))

	v, err := c.Auth().ValidateResetToken(ctx, "tok-123")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "margaret", v.Username)

	require.NoError(t, c.Auth().PerformPasswordReset(ctx, "tok-123", "new-password"))
	assert.Len(t, calls, 3)
}

func TestAuth_PasswordReset_Validation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx := context.Background()

	assert.ErrorIs(t, c.Auth().RequestPasswordReset(ctx, ""), ErrInvalidArgument)

	_, err := c.Auth().ValidateResetToken(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.ErrorIs(t, c.Auth().PerformPasswordReset(ctx, "", "pw"), ErrInvalidArgument)
	assert.ErrorIs(t, c.Auth().PerformPasswordReset(ctx, "tok", ""), ErrInvalidArgument)
}
