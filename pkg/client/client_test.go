package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "test-token", opts...)
	require.NoError(t, err)
	return client
}

type testLogger struct {
	count int32
}

func (l *testLogger) Debugf(format string, args ...interface{}) { atomic.AddInt32(&l.count, 1) }
func (l *testLogger) Infof(format string, args ...interface{})  { atomic.AddInt32(&l.count, 1) }
func (l *testLogger) Errorf(format string, args ...interface{}) { atomic.AddInt32(&l.count, 1) }

func TestNewClient_Success(t *testing.T) {
	c, err := NewClient("http://api.example.com", "token")
	assert.NoError(t, err)
	assert.NotNil(t, c)
	assert.Equal(t, "http://api.example.com", c.baseURL)
	assert.Equal(t, 3, c.retryMax)
	assert.Contains(t, c.userAgent, "webtrees-go-sdk/")
}

func TestNewClient_EmptyBaseURL(t *testing.T) {
	_, err := NewClient("", "token")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient("ftp://invalid", "token")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewClient("invalid-url", "token")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewClient_EmptyTokenAllowed(t *testing.T) {
	// Login-first flows start without a token.
	c, err := NewClient("http://api.example.com", "")
	assert.NoError(t, err)
	assert.Equal(t, "", c.bearerToken())
}

func TestNewClient_BaseURLTrailingSlash(t *testing.T) {
	c, err := NewClient("http://api.example.com/", "token")
	assert.NoError(t, err)
	assert.Equal(t, "http://api.example.com", c.baseURL)
}

func TestNewClient_WithOptions(t *testing.T) {
	customClient := &http.Client{Timeout: 10 * time.Second}
	logger := &testLogger{}
	c, err := NewClient("http://api.example.com", "token",
		WithHTTPClient(customClient),
		WithLogger(logger),
		WithRetryMax(5),
	)
	assert.NoError(t, err)
	assert.Equal(t, customClient, c.httpClient)
	assert.Equal(t, logger, c.logger)
	assert.Equal(t, 5, c.retryMax)
}

func TestClient_SubClients_LazyInit(t *testing.T) {
	c, _ := NewClient("http://api.example.com", "token")

	assert.Nil(t, c.auth)
	assert.Same(t, c.Auth(), c.Auth())
	assert.Same(t, c.Trees(), c.Trees())
	assert.Same(t, c.Records(), c.Records())
	assert.Same(t, c.Search(), c.Search())
	assert.Same(t, c.Kinship(), c.Kinship())
	assert.Same(t, c.Users(), c.Users())
	assert.Same(t, c.Reports(), c.Reports())
}

func TestClient_SendsAuthHeaders(t *testing.T) {
	var gotAuth, gotAccept, gotUA, gotReqID string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		gotReqID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.get(context.Background(), "/api/v1/trees", nil))
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
	assert.Contains(t, gotUA, "webtrees-go-sdk/")
	assert.NotEmpty(t, gotReqID)
}

func TestClient_NoTokenNoAuthHeader(t *testing.T) {
	var sawAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "")
	require.NoError(t, err)
	require.NoError(t, c.get(context.Background(), "/healthz", nil))
	assert.False(t, sawAuth)
}

func TestClient_SetToken(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})

	c.SetToken("rotated")
	require.NoError(t, c.get(context.Background(), "/api/v1/trees", nil))
	assert.Equal(t, "Bearer rotated", gotAuth)
}

func TestClient_DecodesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "TREE_001",
			"message": "tree not found",
		})
	})

	err := c.get(context.Background(), "/api/v1/trees/99", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "TREE_001", apiErr.Code)
	assert.Equal(t, "tree not found", apiErr.Message)
	assert.True(t, apiErr.IsNotFound())
	assert.False(t, apiErr.IsServerError())
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[]}`)
	}, WithRetryWait(time.Millisecond, 5*time.Millisecond))

	var resp struct {
		Items []Tree `json:"items"`
	}
	require.NoError(t, c.get(context.Background(), "/api/v1/trees", &resp))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}, WithRetryWait(time.Millisecond, 5*time.Millisecond))

	err := c.get(context.Background(), "/api/v1/trees", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_RetryBudgetExhausted(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, WithRetryMax(2), WithRetryWait(time.Millisecond, 5*time.Millisecond))

	err := c.get(context.Background(), "/api/v1/trees", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, WithRetryWait(time.Minute, 2*time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.get(ctx, "/api/v1/trees", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
