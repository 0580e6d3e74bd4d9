package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/pkg/errors"
)

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler("1.2.3")

	w := httptest.NewRecorder()
	h.Liveness(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.NotEmpty(t, resp.Uptime)
}

func TestHealthHandler_Readiness_NoCheckers(t *testing.T) {
	h := NewHealthHandler("dev")

	w := httptest.NewRecorder()
	h.Readiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
}

func TestHealthHandler_Readiness_AllHealthy(t *testing.T) {
	h := NewHealthHandler("dev",
		CheckFunc{CheckName: "postgres", Fn: func(ctx context.Context) error { return nil }},
		CheckFunc{CheckName: "redis", Fn: func(ctx context.Context) error { return nil }},
	)

	w := httptest.NewRecorder()
	h.Readiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	require.Len(t, resp.Components, 2)
	assert.Equal(t, "healthy", resp.Components["postgres"].Status)
	assert.NotEmpty(t, resp.Components["postgres"].Latency)
}

func TestHealthHandler_Readiness_OneUnhealthy(t *testing.T) {
	h := NewHealthHandler("dev",
		CheckFunc{CheckName: "postgres", Fn: func(ctx context.Context) error { return nil }},
		CheckFunc{CheckName: "opensearch", Fn: func(ctx context.Context) error {
			return errors.New(errors.ErrCodeSearchUnavailable, "cluster unreachable")
		}},
	)

	w := httptest.NewRecorder()
	h.Readiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "unhealthy", resp.Components["opensearch"].Status)
	assert.Contains(t, resp.Components["opensearch"].Error, "cluster unreachable")
	assert.Equal(t, "healthy", resp.Components["postgres"].Status)
}
