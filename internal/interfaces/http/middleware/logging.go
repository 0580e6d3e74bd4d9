package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
)

// LoggingConfig holds configuration for the request logging middleware.
type LoggingConfig struct {
	// SkipPaths are not logged at all; probes would otherwise dominate the log.
	SkipPaths []string

	// SlowThreshold raises the level of slow-but-successful requests to Warn.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig skips the health probes and flags requests over 3s.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: 3 * time.Second,
	}
}

// responseRecorder captures the status code and bytes written so middleware
// can report on the response after the handler ran.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (w *responseRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Hijack passes through for connection upgrades.
func (w *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
}

// Flush passes through for streamed responses.
func (w *responseRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingMiddleware writes one structured log line per request.
type LoggingMiddleware struct {
	logger logging.Logger
	skip   map[string]bool
	slow   time.Duration
}

// NewLoggingMiddleware creates a LoggingMiddleware.
func NewLoggingMiddleware(logger logging.Logger, cfg LoggingConfig) *LoggingMiddleware {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}
	return &LoggingMiddleware{
		logger: logger.Named("http"),
		skip:   skip,
		slow:   cfg.SlowThreshold,
	}
}

// Handler returns the middleware handler.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := newResponseRecorder(w)

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		path := r.URL.Path
		if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}

		fields := []logging.Field{
			logging.String("method", r.Method),
			logging.String("path", path),
			logging.Int("status", rec.status),
			logging.Duration("duration", elapsed),
			logging.Int64("bytes", rec.bytes),
			logging.String("remote", r.RemoteAddr),
		}
		if reqID := chimw.GetReqID(r.Context()); reqID != "" {
			fields = append(fields, logging.String("request_id", reqID))
		}
		if userID := ContextGetUserID(r.Context()); userID != uuid.Nil {
			fields = append(fields, logging.String("user_id", userID.String()))
		}

		switch {
		case rec.status >= http.StatusInternalServerError:
			m.logger.Error("request failed", fields...)
		case rec.status >= http.StatusBadRequest:
			m.logger.Warn("request rejected", fields...)
		case m.slow > 0 && elapsed >= m.slow:
			m.logger.Warn("request slow", fields...)
		default:
			m.logger.Info("request", fields...)
		}
	})
}
