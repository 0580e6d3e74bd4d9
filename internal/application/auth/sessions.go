// Package auth owns sign-in sessions and the password-reset flow: bcrypt
// credential checks with failed-login lockout, HS256 session tokens with a
// revocation denylist, and single-use reset tokens delivered by mail.
package auth

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/config"
	"github.com/mirono/webtrees/internal/domain/user"
	"github.com/mirono/webtrees/pkg/errors"
)

// tokenIssuer is the iss claim on every session token.
const tokenIssuer = "webtrees"

// minSecretLength guards against HMAC keys short enough to brute-force.
const minSecretLength = 32

// Claims is the JWT payload of one session.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.ErrCodeSessionInvalid, "malformed session subject")
	}
	return id, nil
}

// Denylist records revoked token IDs until their natural expiry; it is what
// makes logout effective with stateless tokens. The per-user cutoff kills
// every session minted at or before it, so a password reset invalidates
// sessions the account holder never saw.
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, remaining time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	RevokeUser(ctx context.Context, userID string, cutoff time.Time, retain time.Duration) error
	UserRevokedAt(ctx context.Context, userID string) (time.Time, error)
}

// SessionManager mints and validates session tokens.
type SessionManager struct {
	secret   []byte
	ttl      time.Duration
	denylist Denylist
	now      func() time.Time
}

// NewSessionManager builds the manager from the auth configuration. The
// secret is required and must carry real entropy.
func NewSessionManager(cfg config.AuthConfig, denylist Denylist) (*SessionManager, error) {
	if len(cfg.JWTSecret) < minSecretLength {
		return nil, errors.Newf(errors.ErrCodeValidation, "auth.jwt_secret must be at least %d bytes", minSecretLength)
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionManager{
		secret:   []byte(cfg.JWTSecret),
		ttl:      ttl,
		denylist: denylist,
		now:      time.Now,
	}, nil
}

// TTL reports the configured session lifetime.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Mint issues a signed token for the account. The jti is fresh per session
// so single sessions can be revoked.
func (m *SessionManager) Mint(u *user.User) (string, *Claims, error) {
	now := m.now().UTC()
	claims := &Claims{
		Username: u.Username,
		Role:     string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to sign session token")
	}
	return signed, claims, nil
}

// Validate parses and verifies a token, then checks the denylist. Expiry
// and signature failures come back with distinct codes so handlers can tell
// a stale session from a forged one.
func (m *SessionManager) Validate(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Newf(errors.ErrCodeSessionInvalid, "unexpected signing method %q", t.Method.Alg())
		}
		return m.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Wrap(err, errors.ErrCodeSessionExpired, "session expired")
		}
		return nil, errors.Wrap(err, errors.ErrCodeSessionInvalid, "invalid session token")
	}
	if !parsed.Valid || claims.ID == "" {
		return nil, errors.New(errors.ErrCodeSessionInvalid, "invalid session token")
	}

	revoked, err := m.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, errors.New(errors.ErrCodeSessionInvalid, "session revoked")
	}

	cutoff, err := m.denylist.UserRevokedAt(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if !cutoff.IsZero() && claims.IssuedAt != nil && !claims.IssuedAt.Time.After(cutoff) {
		return nil, errors.New(errors.ErrCodeSessionInvalid, "session revoked")
	}
	return claims, nil
}

// RevokeAllForUser denylists every session of the account minted up to now.
// Token timestamps carry second precision, so sessions minted in the same
// second as the cutoff are treated as revoked too; mint strictly after.
func (m *SessionManager) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	return m.denylist.RevokeUser(ctx, userID.String(), m.now().UTC(), m.ttl)
}

// Revoke denylists the session for the remainder of its lifetime.
func (m *SessionManager) Revoke(ctx context.Context, claims *Claims) error {
	if claims.ID == "" || claims.ExpiresAt == nil {
		return errors.New(errors.ErrCodeSessionInvalid, "session carries no revocable identity")
	}
	return m.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time.Sub(m.now()))
}
