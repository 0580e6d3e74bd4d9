package opensearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/config"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
)

func newTestServer(statusCode int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statusCode)
	}))
}

func newTestClientConfig(addr string) ClientConfig {
	return ClientConfig{
		Addresses:      []string{addr},
		IndexPrefix:    "test-",
		RequestTimeout: time.Second,
	}
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(ClientConfig{Addresses: []string{"http://localhost:9200"}}))

	err := ValidateConfig(ClientConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = ValidateConfig(ClientConfig{Addresses: []string{"http://localhost:9200"}, MaxRetries: -1})
	assert.Error(t, err)
}

func TestNewClientConfig_FromAppConfig(t *testing.T) {
	got := NewClientConfig(config.OpenSearchConfig{
		Addresses:   []string{"http://search:9200"},
		User:        "admin",
		Password:    "secret",
		IndexPrefix: "trees-",
	})
	assert.Equal(t, []string{"http://search:9200"}, got.Addresses)
	assert.Equal(t, "admin", got.Username)
	assert.Equal(t, "trees-", got.IndexPrefix)
}

func TestNewClient_Success(t *testing.T) {
	server := newTestServer(http.StatusOK)
	defer server.Close()

	client, err := NewClient(newTestClientConfig(server.URL), logging.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()

	assert.True(t, client.IsHealthy())
	assert.NotNil(t, client.GetClient())
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	server := newTestServer(http.StatusServiceUnavailable)
	defer server.Close()

	client, err := NewClient(newTestClientConfig(server.URL), logging.NewNopLogger())
	assert.Nil(t, client)
	assert.True(t, errors.Is(err, ErrConnectionFailed))
}

func TestClient_PingTracksHealth(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client, err := NewClient(newTestClientConfig(server.URL), logging.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()

	healthy = false
	assert.Error(t, client.Ping(context.Background()))
	assert.False(t, client.IsHealthy())

	healthy = true
	assert.NoError(t, client.Ping(context.Background()))
	assert.True(t, client.IsHealthy())
}

func TestClient_IndexName(t *testing.T) {
	server := newTestServer(http.StatusOK)
	defer server.Close()

	client, err := NewClient(newTestClientConfig(server.URL), logging.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "test-individuals", client.IndexName(IndexIndividuals))
	assert.Equal(t, "test-sources", client.IndexName(IndexSources))
}

func TestClient_Close_Idempotent(t *testing.T) {
	server := newTestServer(http.StatusOK)
	defer server.Close()

	client, err := NewClient(newTestClientConfig(server.URL), logging.NewNopLogger())
	require.NoError(t, err)

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}
