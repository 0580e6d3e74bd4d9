package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mirono/webtrees/pkg/errors"
)

// RateLimitInfo is the limiter state reported back to the client in
// X-RateLimit-* headers.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter decides whether a request under the given key may proceed.
type RateLimiter interface {
	Allow(key string) (bool, RateLimitInfo)
}

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained per-key rate; BurstSize is how far
	// a key may run ahead of it.
	RequestsPerSecond float64
	BurstSize         int

	// KeyFunc extracts the limit key from a request. Nil means client IP.
	KeyFunc func(r *http.Request) string

	// SkipPaths bypass the limiter.
	SkipPaths []string

	// CleanupInterval is how often idle buckets are dropped.
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig is 10 rps with a burst of 20 per client IP.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
		SkipPaths:         []string{"/healthz", "/readyz", "/metrics"},
		CleanupInterval:   5 * time.Minute,
	}
}

// clientIPKey keys the limiter on the client address. The router's RealIP
// middleware has already resolved proxy headers into RemoteAddr.
func clientIPKey(r *http.Request) string {
	return r.RemoteAddr
}

// ─────────────────────────────────────────────────────────────────────────────
// Token bucket limiter
// ─────────────────────────────────────────────────────────────────────────────

type bucket struct {
	mu     sync.Mutex
	tokens float64
	refill time.Time
}

// TokenBucketLimiter is an in-memory per-key token bucket. Buckets refill
// continuously at the configured rate and idle buckets are reaped in the
// background.
type TokenBucketLimiter struct {
	rate  float64
	burst int

	mu      sync.RWMutex
	buckets map[string]*bucket

	stop chan struct{}
}

// NewTokenBucketLimiter creates a limiter and starts its reaper when
// cleanupInterval is positive.
func NewTokenBucketLimiter(rate float64, burst int, cleanupInterval time.Duration) *TokenBucketLimiter {
	l := &TokenBucketLimiter{
		rate:    rate,
		burst:   burst,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go l.reap(cleanupInterval)
	}
	return l
}

// Allow takes one token from the key's bucket if available.
func (l *TokenBucketLimiter) Allow(key string) (bool, RateLimitInfo) {
	now := time.Now()

	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok {
		l.mu.Lock()
		b, ok = l.buckets[key]
		if !ok {
			b = &bucket{tokens: float64(l.burst), refill: now}
			l.buckets[key] = b
		}
		l.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.refill).Seconds() * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.refill = now

	info := RateLimitInfo{
		Limit:   l.burst,
		ResetAt: now.Add(time.Duration(float64(time.Second) / l.rate)),
	}
	if b.tokens < 1 {
		info.Remaining = 0
		return false, info
	}
	b.tokens--
	info.Remaining = int(b.tokens)
	return true, info
}

// Stop terminates the reaper goroutine.
func (l *TokenBucketLimiter) Stop() {
	close(l.stop)
}

func (l *TokenBucketLimiter) reap(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-interval)
			l.mu.Lock()
			for key, b := range l.buckets {
				b.mu.Lock()
				// A full bucket that has not refilled recently is idle.
				idle := b.refill.Before(cutoff) && b.tokens >= float64(l.burst)-1
				b.mu.Unlock()
				if idle {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────────────────────────────────────

// RateLimitMiddleware applies a RateLimiter to incoming requests and stamps
// X-RateLimit-* headers on every response.
type RateLimitMiddleware struct {
	limiter RateLimiter
	keyFunc func(r *http.Request) string
	skip    map[string]bool
}

// NewRateLimitMiddleware creates the middleware. When cfg has no limiter
// semantics of its own a TokenBucketLimiter from cfg's rate is used.
func NewRateLimitMiddleware(limiter RateLimiter, cfg RateLimitConfig) *RateLimitMiddleware {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = clientIPKey
	}
	return &RateLimitMiddleware{limiter: limiter, keyFunc: keyFunc, skip: skip}
}

// Handler returns the middleware handler.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		allowed, info := m.limiter.Allow(m.keyFunc(r))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

		if !allowed {
			retry := int(time.Until(info.ResetAt).Seconds())
			if retry < 1 {
				retry = 1
			}
			h.Set("Retry-After", strconv.Itoa(retry))
			writeAuthError(w, http.StatusTooManyRequests, errors.ErrCodeTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
