package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/application/auth"
	"github.com/mirono/webtrees/internal/domain/user"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/internal/interfaces/http/middleware"
	"github.com/mirono/webtrees/pkg/errors"
)

// The concrete application service must satisfy the handler's interface.
var _ AuthService = (*auth.Service)(nil)

type mockAuthService struct {
	mock.Mock
}

func (m *mockAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

func (m *mockAuthService) Logout(ctx context.Context, claims *auth.Claims, clientIP string) error {
	args := m.Called(ctx, claims, clientIP)
	return args.Error(0)
}

func (m *mockAuthService) RequestPasswordReset(ctx context.Context, email, clientIP string) error {
	args := m.Called(ctx, email, clientIP)
	return args.Error(0)
}

func (m *mockAuthService) ValidateResetToken(ctx context.Context, token string) (*user.User, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *mockAuthService) PerformPasswordReset(ctx context.Context, token, newPassword, clientIP string) error {
	args := m.Called(ctx, token, newPassword, clientIP)
	return args.Error(0)
}

func authnClaims(role string) *auth.Claims {
	return &auth.Claims{
		Username: "greta",
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func withClaims(req *http.Request, claims *auth.Claims) *http.Request {
	return req.WithContext(middleware.ContextWithClaims(req.Context(), claims))
}

func TestLogin_Success(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, logging.NewNopLogger())

	session := &auth.Session{
		Token:     "tok-123",
		ExpiresAt: time.Now().Add(2 * time.Hour),
		User:      &user.User{ID: uuid.New(), Username: "greta", Role: user.RoleMember},
	}
	svc.On("Login", mock.Anything, mock.MatchedBy(func(req auth.LoginRequest) bool {
		return req.UsernameOrEmail == "greta" && req.Password == "s3cretpass" && req.ClientIP != ""
	})).Return(session, nil)

	body := `{"username":"greta","password":"s3cretpass"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:54321"
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got auth.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "tok-123", got.Token)
	require.NotNil(t, got.User)
	assert.Equal(t, "greta", got.User.Username)
	svc.AssertExpectations(t)
}

func TestLogin_BadCredentials(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, logging.NewNopLogger())

	svc.On("Login", mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.ErrCodeUnauthorized, "invalid credentials"))

	body := `{"username":"greta","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, string(errors.ErrCodeUnauthorized), resp.Code)
}

func TestLogin_MalformedBody(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, logging.NewNopLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	svc.AssertNotCalled(t, "Login")
}

func TestLogout_RevokesSession(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, logging.NewNopLogger())

	claims := authnClaims(string(user.RoleMember))
	svc.On("Logout", mock.Anything, claims, mock.Anything).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req = withClaims(req, claims)
	rec := httptest.NewRecorder()

	h.Logout(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	svc.AssertExpectations(t)
}

func TestLogout_WithoutClaims(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, logging.NewNopLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	rec := httptest.NewRecorder()

	h.Logout(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	svc.AssertNotCalled(t, "Logout")
}

func TestSession_EchoesClaims(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, logging.NewNopLogger())

	claims := authnClaims(string(user.RoleManager))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	req = withClaims(req, claims)
	rec := httptest.NewRecorder()

	h.Session(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, claims.Subject, resp.UserID)
	assert.Equal(t, "greta", resp.Username)
	assert.Equal(t, string(user.RoleManager), resp.Role)
	assert.NotEmpty(t, resp.ExpiresAt)
}

func TestRequestPasswordReset_AlwaysAccepted(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, logging.NewNopLogger())

	// The service answers nil for unknown addresses too, so the response
	// never reveals whether an account exists.
	svc.On("RequestPasswordReset", mock.Anything, "nobody@example.com", mock.Anything).Return(nil)

	body := `{"email":"nobody@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/password-reset/request", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.RequestPasswordReset(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	svc.AssertExpectations(t)
}

func TestRequestPasswordReset_MalformedEmail(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, logging.NewNopLogger())

	svc.On("RequestPasswordReset", mock.Anything, "not-an-email", mock.Anything).
		Return(errors.New(errors.ErrCodeValidation, "invalid email address"))

	body := `{"email":"not-an-email"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/password-reset/request", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.RequestPasswordReset(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestValidateResetToken_Valid(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, logging.NewNopLogger())

	svc.On("ValidateResetToken", mock.Anything, "good-token").
		Return(&user.User{ID: uuid.New(), Username: "greta"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/password-reset/validate?token=good-token", nil)
	rec := httptest.NewRecorder()

	h.ValidateResetToken(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp ResetValidateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, "greta", resp.Username)
}

func TestValidateResetToken_ExpiredIsGone(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, logging.NewNopLogger())

	svc.On("ValidateResetToken", mock.Anything, "stale-token").
		Return(nil, errors.New(errors.ErrCodeResetTokenInvalid, "reset token is invalid or expired"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/password-reset/validate?token=stale-token", nil)
	rec := httptest.NewRecorder()

	h.ValidateResetToken(rec, req)

	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestValidateResetToken_MissingToken(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, logging.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/password-reset/validate", nil)
	rec := httptest.NewRecorder()

	h.ValidateResetToken(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	svc.AssertNotCalled(t, "ValidateResetToken")
}

func TestPerformPasswordReset_Success(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, logging.NewNopLogger())

	svc.On("PerformPasswordReset", mock.Anything, "good-token", "brand-new-pass", mock.Anything).Return(nil)

	body := `{"token":"good-token","new_password":"brand-new-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/password-reset/perform", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.PerformPasswordReset(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestPerformPasswordReset_ReplayedToken(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, logging.NewNopLogger())

	// A consumed token behaves exactly like an expired one.
	svc.On("PerformPasswordReset", mock.Anything, "used-token", "brand-new-pass", mock.Anything).
		Return(errors.New(errors.ErrCodeResetTokenInvalid, "reset token is invalid or expired"))

	body := `{"token":"used-token","new_password":"brand-new-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/password-reset/perform", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.PerformPasswordReset(rec, req)

	assert.Equal(t, http.StatusGone, rec.Code)
}
