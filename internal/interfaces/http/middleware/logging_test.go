package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
)

func observedLogging(t *testing.T, cfg LoggingConfig) (*LoggingMiddleware, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return NewLoggingMiddleware(logging.NewLoggerFromCore(core), cfg), logs
}

func statusHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("body"))
	})
}

func TestLogging_SuccessLine(t *testing.T) {
	m, logs := observedLogging(t, DefaultLoggingConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trees?page=2", nil)
	rec := httptest.NewRecorder()
	m.Handler(statusHandler(http.StatusOK)).ServeHTTP(rec, req)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "request", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/api/v1/trees?page=2", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.EqualValues(t, 4, fields["bytes"])
}

func TestLogging_ServerErrorLevel(t *testing.T) {
	m, logs := observedLogging(t, DefaultLoggingConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/trees", nil)
	rec := httptest.NewRecorder()
	m.Handler(statusHandler(http.StatusInternalServerError)).ServeHTTP(rec, req)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
	assert.Equal(t, "request failed", logs.All()[0].Message)
}

func TestLogging_ClientErrorLevel(t *testing.T) {
	m, logs := observedLogging(t, DefaultLoggingConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trees/999", nil)
	rec := httptest.NewRecorder()
	m.Handler(statusHandler(http.StatusNotFound)).ServeHTTP(rec, req)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}

func TestLogging_SkipsProbes(t *testing.T) {
	m, logs := observedLogging(t, DefaultLoggingConfig())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	m.Handler(statusHandler(http.StatusOK)).ServeHTTP(rec, req)

	assert.Equal(t, 0, logs.Len())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogging_DefaultStatusIsOK(t *testing.T) {
	m, logs := observedLogging(t, DefaultLoggingConfig())

	// Handler writes a body without calling WriteHeader.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("implicit"))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	m.Handler(handler).ServeHTTP(rec, req)

	require.Equal(t, 1, logs.Len())
	assert.EqualValues(t, http.StatusOK, logs.All()[0].ContextMap()["status"])
}
