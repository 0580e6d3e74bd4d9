package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mirono/webtrees/pkg/errors"
)

// LoginThrottle counts failed login attempts per subject inside a rolling
// window.  The counter lives here; the authoritative lockout timestamp is
// persisted on the user row, so a Redis flush shortens but never removes an
// active lockout.
type LoginThrottle struct {
	client      *Client
	maxAttempts int
	window      time.Duration
}

// NewLoginThrottle builds the throttle.  Zero values fall back to five
// attempts in thirty minutes.
func NewLoginThrottle(client *Client, maxAttempts int, window time.Duration) *LoginThrottle {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &LoginThrottle{
		client:      client,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

// MaxAttempts reports the configured threshold.
func (t *LoginThrottle) MaxAttempts() int {
	return t.maxAttempts
}

// Window reports the configured rolling window.
func (t *LoginThrottle) Window() time.Duration {
	return t.window
}

// RecordFailure increments the subject's counter and returns the new count.
// The first failure starts the window.
func (t *LoginThrottle) RecordFailure(ctx context.Context, subject string) (int64, error) {
	key := t.key(subject)
	count, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeCacheError, "failed to record login failure")
	}
	if count == 1 {
		if err := t.client.Expire(ctx, key, t.window).Err(); err != nil {
			return count, errors.Wrap(err, errors.ErrCodeCacheError, "failed to start lockout window")
		}
	}
	return count, nil
}

// Exceeded reports whether the subject has reached the failure threshold.
func (t *LoginThrottle) Exceeded(ctx context.Context, subject string) (bool, error) {
	count, err := t.client.Get(ctx, t.key(subject)).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read login failures")
	}
	return count >= int64(t.maxAttempts), nil
}

// Reset clears the counter after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, subject string) error {
	return t.client.Del(ctx, t.key(subject)).Err()
}

func (t *LoginThrottle) key(subject string) string {
	return t.client.Key("auth", "fail", strings.ToLower(subject))
}

// SessionDenylist records revoked JWT IDs until their natural expiry, which
// is what makes logout effective with stateless tokens.
type SessionDenylist struct {
	client *Client
}

// NewSessionDenylist builds the denylist on a connected client.
func NewSessionDenylist(client *Client) *SessionDenylist {
	return &SessionDenylist{client: client}
}

// Revoke marks a token ID as unusable for the remainder of its lifetime.
func (d *SessionDenylist) Revoke(ctx context.Context, tokenID string, remaining time.Duration) error {
	if remaining <= 0 {
		return nil
	}
	return d.client.Set(ctx, d.key(tokenID), "1", remaining).Err()
}

// IsRevoked reports whether a token ID has been revoked.
func (d *SessionDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(tokenID)).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to check session denylist")
	}
	return n > 0, nil
}

// RevokeUser records a per-user cutoff: sessions issued at or before it are
// dead. retain should cover the longest session lifetime, after which the
// tokens have expired on their own.
func (d *SessionDenylist) RevokeUser(ctx context.Context, userID string, cutoff time.Time, retain time.Duration) error {
	if retain <= 0 {
		return nil
	}
	value := strconv.FormatInt(cutoff.UnixNano(), 10)
	return d.client.Set(ctx, d.userKey(userID), value, retain).Err()
}

// UserRevokedAt returns the account's revocation cutoff, or the zero time
// when none is recorded.
func (d *SessionDenylist) UserRevokedAt(ctx context.Context, userID string) (time.Time, error) {
	raw, err := d.client.Get(ctx, d.userKey(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read session revocation cutoff")
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.ErrCodeCacheError, "malformed session revocation cutoff")
	}
	return time.Unix(0, nanos).UTC(), nil
}

func (d *SessionDenylist) key(tokenID string) string {
	return d.client.Key("session", "denylist", tokenID)
}

func (d *SessionDenylist) userKey(userID string) string {
	return d.client.Key("session", "revoked_user", userID)
}
