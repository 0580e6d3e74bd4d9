package redis

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

// minTokenBytes is the floor on reset-token entropy.  Configured lengths
// below this are raised silently.
const minTokenBytes = 32

// ResetTokenStore keeps password-reset tokens in Redis with a bounded TTL.
// Only a SHA-256 digest of the token is stored, so neither Redis dumps nor
// log lines can reproduce a valid reset link.  Two keys exist per live
// token: digest -> user id, and user id -> digest.  The reverse key is what
// makes tokens per-user exclusive: issuing a new token deletes the previous
// one.
type ResetTokenStore struct {
	client      *Client
	ttl         time.Duration
	tokenLength int
	logger      logging.Logger
}

// NewResetTokenStore builds the store.  ttl zero defaults to one hour,
// tokenLength below 32 bytes is raised to 32.
func NewResetTokenStore(client *Client, ttl time.Duration, tokenLength int, log logging.Logger) *ResetTokenStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if tokenLength < minTokenBytes {
		tokenLength = minTokenBytes
	}
	return &ResetTokenStore{
		client:      client,
		ttl:         ttl,
		tokenLength: tokenLength,
		logger:      log,
	}
}

// TTL reports the configured token lifetime.
func (s *ResetTokenStore) TTL() time.Duration {
	return s.ttl
}

// Issue generates a fresh URL-safe token for the user, invalidating any
// previously issued token.  The raw token is returned exactly once, for the
// reset email; it is never stored or logged in full.
func (s *ResetTokenStore) Issue(ctx context.Context, userID uuid.UUID) (string, error) {
	raw := make([]byte, s.tokenLength)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to generate reset token")
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	digest := digestToken(token)

	// Drop the previous token before writing the new pair.
	if old, err := s.client.Get(ctx, s.userKey(userID)).Result(); err == nil && old != "" {
		if err := s.client.Del(ctx, s.digestKey(old)).Err(); err != nil {
			return "", errors.Wrap(err, errors.ErrCodeCacheError, "failed to invalidate previous reset token")
		}
	} else if err != nil && err != redis.Nil {
		return "", errors.Wrap(err, errors.ErrCodeCacheError, "failed to look up previous reset token")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.digestKey(digest), userID.String(), s.ttl)
	pipe.Set(ctx, s.userKey(userID), digest, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeCacheError, "failed to store reset token")
	}

	s.logger.Info("reset token issued",
		logging.String("user_id", userID.String()),
		logging.String("token_prefix", TokenPrefix(token)),
		logging.Duration("ttl", s.ttl),
	)
	return token, nil
}

// Validate resolves a token to its user without consuming it.  Unknown and
// expired tokens are indistinguishable to the caller.
func (s *ResetTokenStore) Validate(ctx context.Context, token string) (uuid.UUID, error) {
	val, err := s.client.Get(ctx, s.digestKey(digestToken(token))).Result()
	if err == redis.Nil {
		return uuid.Nil, errors.New(errors.ErrCodeResetTokenInvalid, "reset token is invalid or expired")
	}
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to look up reset token")
	}
	userID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.ErrCodeInternal, "corrupt reset token entry")
	}
	return userID, nil
}

// Consume resolves and atomically deletes a token.  A second Consume of the
// same token fails exactly like an unknown token, which is what makes the
// reset single-use.
func (s *ResetTokenStore) Consume(ctx context.Context, token string) (uuid.UUID, error) {
	digest := digestToken(token)
	val, err := s.client.GetDel(ctx, s.digestKey(digest)).Result()
	if err == redis.Nil {
		return uuid.Nil, errors.New(errors.ErrCodeResetTokenInvalid, "reset token is invalid or expired")
	}
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to consume reset token")
	}
	userID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.ErrCodeInternal, "corrupt reset token entry")
	}

	if err := s.client.Del(ctx, s.userKey(userID)).Err(); err != nil {
		s.logger.Warn("failed to clear reverse reset-token key",
			logging.String("user_id", userID.String()), logging.Err(err))
	}

	s.logger.Info("reset token consumed",
		logging.String("user_id", userID.String()),
		logging.String("token_prefix", TokenPrefix(token)),
	)
	return userID, nil
}

// InvalidateAll removes any live token for the user.  Called after a
// successful reset and when an administrator disables an account.
func (s *ResetTokenStore) InvalidateAll(ctx context.Context, userID uuid.UUID) error {
	digest, err := s.client.Get(ctx, s.userKey(userID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to look up reset token")
	}
	return s.client.Del(ctx, s.digestKey(digest), s.userKey(userID)).Err()
}

func (s *ResetTokenStore) digestKey(digest string) string {
	return s.client.Key("reset", "token", digest)
}

func (s *ResetTokenStore) userKey(userID uuid.UUID) string {
	return s.client.Key("reset", "user", userID.String())
}

func digestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenPrefix returns the loggable prefix of a token.  Audit entries carry
// this instead of the token itself.
func TokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
