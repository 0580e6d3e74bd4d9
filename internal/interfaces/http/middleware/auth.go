package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/application/auth"
	"github.com/mirono/webtrees/internal/domain/user"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const claimsContextKey contextKey = iota

// TokenValidator checks a bearer token and returns its claims. The session
// manager implements it; its check includes the revocation denylist, which
// is what makes logout effective with stateless tokens.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*auth.Claims, error)
}

// AuthMiddleware authenticates requests with JWT bearer tokens.
type AuthMiddleware struct {
	sessions TokenValidator
	logger   logging.Logger
}

// NewAuthMiddleware creates an AuthMiddleware backed by the given validator.
func NewAuthMiddleware(sessions TokenValidator, logger logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, logger: logger}
}

// Handler rejects requests without a valid bearer token and injects the
// verified claims into the request context for everything downstream.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			writeAuthError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "authentication required")
			return
		}

		claims, err := m.sessions.Validate(r.Context(), token)
		if err != nil {
			m.logger.Debug("token rejected",
				logging.String("path", r.URL.Path),
				logging.Err(err))
			// The cause (expired, revoked, malformed) stays in the log.
			writeAuthError(w, http.StatusUnauthorized, errors.ErrCodeSessionInvalid, "invalid or expired session")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

// RequireRole returns middleware that only admits the listed roles. It runs
// after Handler, so missing claims mean a wiring mistake and are treated as
// unauthorized rather than a panic.
func RequireRole(roles ...user.Role) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[string(role)] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ContextGetClaims(r.Context())
			if claims == nil {
				writeAuthError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "authentication required")
				return
			}
			if !allowed[claims.Role] {
				writeAuthError(w, http.StatusForbidden, errors.ErrCodeForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin admits only administrators.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(user.RoleAdmin)
}

// ContextWithClaims returns a context carrying verified session claims.
// Handler tests use it to simulate an authenticated request.
func ContextWithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ContextGetClaims retrieves session claims from the request context.
// Returns nil on unauthenticated requests.
func ContextGetClaims(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// ContextGetUserID extracts the authenticated user's ID, or uuid.Nil when
// the request is anonymous or the subject claim is malformed.
func ContextGetUserID(ctx context.Context) uuid.UUID {
	claims := ContextGetClaims(ctx)
	if claims == nil {
		return uuid.Nil
	}
	id, err := claims.UserID()
	if err != nil {
		return uuid.Nil
	}
	return id
}

// extractBearerToken pulls the token out of the Authorization header.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// writeAuthError emits the same JSON error shape the handlers use without
// importing them.
func writeAuthError(w http.ResponseWriter, status int, code errors.ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="webtrees"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    string(code),
		"message": message,
	})
}
