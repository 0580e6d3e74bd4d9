package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/config"
	"github.com/mirono/webtrees/internal/domain/user"
	"github.com/mirono/webtrees/pkg/errors"
)

// fakeDenylist keeps revoked token IDs and per-user cutoffs in maps.
type fakeDenylist struct {
	revoked   map[string]time.Duration
	cutoffs   map[string]time.Time
	revokeErr error
	checkErr  error
}

func newFakeDenylist() *fakeDenylist {
	return &fakeDenylist{
		revoked: make(map[string]time.Duration),
		cutoffs: make(map[string]time.Time),
	}
}

func (f *fakeDenylist) Revoke(_ context.Context, tokenID string, remaining time.Duration) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revoked[tokenID] = remaining
	return nil
}

func (f *fakeDenylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	_, ok := f.revoked[tokenID]
	return ok, nil
}

func (f *fakeDenylist) RevokeUser(_ context.Context, userID string, cutoff time.Time, _ time.Duration) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.cutoffs[userID] = cutoff
	return nil
}

func (f *fakeDenylist) UserRevokedAt(_ context.Context, userID string) (time.Time, error) {
	if f.checkErr != nil {
		return time.Time{}, f.checkErr
	}
	return f.cutoffs[userID], nil
}

func sessionConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:  strings.Repeat("k", 48),
		SessionTTL: 2 * time.Hour,
	}
}

func testAccount() *user.User {
	u := user.New("amelia@example.com", "amelia", "Amelia Baker")
	u.Role = user.RoleManager
	return u
}

func TestNewSessionManager_RejectsShortSecret(t *testing.T) {
	cfg := sessionConfig()
	cfg.JWTSecret = "too-short"

	_, err := NewSessionManager(cfg, newFakeDenylist())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestNewSessionManager_DefaultTTL(t *testing.T) {
	cfg := sessionConfig()
	cfg.SessionTTL = 0

	mgr, err := NewSessionManager(cfg, newFakeDenylist())
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, mgr.TTL())
}

func TestSessionManager_MintAndValidate(t *testing.T) {
	mgr, err := NewSessionManager(sessionConfig(), newFakeDenylist())
	require.NoError(t, err)
	minted := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return minted }

	u := testAccount()
	token, claims, err := mgr.Mint(u)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, minted.Add(2*time.Hour), claims.ExpiresAt.Time)

	got, err := mgr.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "amelia", got.Username)
	assert.Equal(t, "manager", got.Role)
	assert.Equal(t, claims.ID, got.ID)

	id, err := got.UserID()
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
}

func TestSessionManager_Validate_Expired(t *testing.T) {
	mgr, err := NewSessionManager(sessionConfig(), newFakeDenylist())
	require.NoError(t, err)
	minted := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return minted }

	token, _, err := mgr.Mint(testAccount())
	require.NoError(t, err)

	mgr.now = func() time.Time { return minted.Add(3 * time.Hour) }
	_, err = mgr.Validate(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionExpired))
}

func TestSessionManager_Validate_WrongSecret(t *testing.T) {
	mgr, err := NewSessionManager(sessionConfig(), newFakeDenylist())
	require.NoError(t, err)
	token, _, err := mgr.Mint(testAccount())
	require.NoError(t, err)

	otherCfg := sessionConfig()
	otherCfg.JWTSecret = strings.Repeat("x", 48)
	other, err := NewSessionManager(otherCfg, newFakeDenylist())
	require.NoError(t, err)

	_, err = other.Validate(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionInvalid))
}

func TestSessionManager_Validate_WrongIssuer(t *testing.T) {
	mgr, err := NewSessionManager(sessionConfig(), newFakeDenylist())
	require.NoError(t, err)

	claims := &Claims{
		Username: "amelia",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uuid.NewString(),
			Issuer:    "somewhere-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(sessionConfig().JWTSecret))
	require.NoError(t, err)

	_, err = mgr.Validate(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionInvalid))
}

func TestSessionManager_Validate_RejectsUnsignedToken(t *testing.T) {
	mgr, err := NewSessionManager(sessionConfig(), newFakeDenylist())
	require.NoError(t, err)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uuid.NewString(),
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = mgr.Validate(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionInvalid))
}

func TestSessionManager_Validate_Garbage(t *testing.T) {
	mgr, err := NewSessionManager(sessionConfig(), newFakeDenylist())
	require.NoError(t, err)

	_, err = mgr.Validate(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionInvalid))
}

func TestSessionManager_Validate_Revoked(t *testing.T) {
	denylist := newFakeDenylist()
	mgr, err := NewSessionManager(sessionConfig(), denylist)
	require.NoError(t, err)

	token, claims, err := mgr.Mint(testAccount())
	require.NoError(t, err)
	require.NoError(t, mgr.Revoke(context.Background(), claims))

	_, err = mgr.Validate(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionInvalid))
	assert.Contains(t, err.Error(), "revoked")
}

func TestSessionManager_Revoke_RecordsRemainingLifetime(t *testing.T) {
	denylist := newFakeDenylist()
	mgr, err := NewSessionManager(sessionConfig(), denylist)
	require.NoError(t, err)
	minted := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return minted }

	_, claims, err := mgr.Mint(testAccount())
	require.NoError(t, err)

	mgr.now = func() time.Time { return minted.Add(30 * time.Minute) }
	require.NoError(t, mgr.Revoke(context.Background(), claims))
	assert.Equal(t, 90*time.Minute, denylist.revoked[claims.ID])
}

func TestSessionManager_RevokeAllForUser(t *testing.T) {
	denylist := newFakeDenylist()
	mgr, err := NewSessionManager(sessionConfig(), denylist)
	require.NoError(t, err)
	account := testAccount()
	minted := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return minted }

	older, _, err := mgr.Mint(account)
	require.NoError(t, err)

	mgr.now = func() time.Time { return minted.Add(10 * time.Minute) }
	require.NoError(t, mgr.RevokeAllForUser(context.Background(), account.ID))

	_, err = mgr.Validate(context.Background(), older)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionInvalid))
	assert.Contains(t, err.Error(), "revoked")

	// A session minted after the cutoff is untouched.
	mgr.now = func() time.Time { return minted.Add(11 * time.Minute) }
	newer, _, err := mgr.Mint(account)
	require.NoError(t, err)
	_, err = mgr.Validate(context.Background(), newer)
	require.NoError(t, err)
}

func TestSessionManager_RevokeAllForUser_SameSecondMint(t *testing.T) {
	denylist := newFakeDenylist()
	mgr, err := NewSessionManager(sessionConfig(), denylist)
	require.NoError(t, err)
	account := testAccount()
	minted := time.Date(2024, 3, 1, 9, 0, 0, 500_000_000, time.UTC)
	mgr.now = func() time.Time { return minted }

	// Issued-at carries second precision, so a token minted in the same
	// second as the cutoff counts as minted at or before it.
	token, _, err := mgr.Mint(account)
	require.NoError(t, err)
	require.NoError(t, mgr.RevokeAllForUser(context.Background(), account.ID))

	_, err = mgr.Validate(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionInvalid))
}

func TestSessionManager_Revoke_MissingIdentity(t *testing.T) {
	mgr, err := NewSessionManager(sessionConfig(), newFakeDenylist())
	require.NoError(t, err)

	err = mgr.Revoke(context.Background(), &Claims{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionInvalid))
}

func TestClaims_UserID_Malformed(t *testing.T) {
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "not-a-uuid"}}
	_, err := c.UserID()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionInvalid))
}
