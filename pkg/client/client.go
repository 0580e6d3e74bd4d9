// Package client is the Go SDK for the webtrees HTTP API. A Client holds
// the connection settings and hands out sub-clients per resource family;
// sub-clients are built lazily and are safe for concurrent use.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const Version = "0.1.0"

// Sentinel errors for client-side failures, before any request is sent.
var (
	ErrInvalidConfig   = errors.New("webtrees: invalid client configuration")
	ErrInvalidArgument = errors.New("webtrees: invalid argument")
)

func invalidArg(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}

// Logger is the minimal logging surface the client writes to.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// Client talks to one webtrees server.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	userAgent    string
	logger       Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration

	mu    sync.RWMutex
	token string

	auth        *AuthClient
	authOnce    sync.Once
	trees       *TreesClient
	treesOnce   sync.Once
	records     *RecordsClient
	recordsOnce sync.Once
	search      *SearchClient
	searchOnce  sync.Once
	kinship     *KinshipClient
	kinshipOnce sync.Once
	users       *UsersClient
	usersOnce   sync.Once
	reports     *ReportsClient
	reportsOnce sync.Once
}

// APIError is a non-2xx response decoded into the server's error envelope.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("webtrees: %s (HTTP %d): %s [request_id=%s]", e.Code, e.StatusCode, e.Message, e.RequestID)
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

func (e *APIError) IsForbidden() bool {
	return e.StatusCode == http.StatusForbidden
}

func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// Pagination mirrors the server's list request parameters.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// PaginationResult mirrors the server's list response metadata.
type PaginationResult struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// ListResponse is the generic paginated collection envelope.
type ListResponse[T any] struct {
	Items      []T              `json:"items"`
	Pagination PaginationResult `json:"pagination"`
}

// NewClient builds a client for the server at baseURL. token is the bearer
// token for authenticated routes; it may be empty when the first call will
// be Auth().Login, which stores the minted token on success.
func NewClient(baseURL string, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: baseURL is required", ErrInvalidConfig)
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid baseURL: %v", ErrInvalidConfig, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: baseURL scheme must be http or https", ErrInvalidConfig)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:      baseURL,
		token:        token,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		userAgent:    fmt.Sprintf("webtrees-go-sdk/%s", Version),
		logger:       &noopLogger{},
		retryMax:     3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken replaces the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearerToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Auth returns the authentication sub-client.
func (c *Client) Auth() *AuthClient {
	c.authOnce.Do(func() {
		c.auth = &AuthClient{client: c}
	})
	return c.auth
}

// Trees returns the trees sub-client.
func (c *Client) Trees() *TreesClient {
	c.treesOnce.Do(func() {
		c.trees = &TreesClient{client: c}
	})
	return c.trees
}

// Records returns the records sub-client.
func (c *Client) Records() *RecordsClient {
	c.recordsOnce.Do(func() {
		c.records = &RecordsClient{client: c}
	})
	return c.records
}

// Search returns the search sub-client.
func (c *Client) Search() *SearchClient {
	c.searchOnce.Do(func() {
		c.search = &SearchClient{client: c}
	})
	return c.search
}

// Kinship returns the kinship sub-client.
func (c *Client) Kinship() *KinshipClient {
	c.kinshipOnce.Do(func() {
		c.kinship = &KinshipClient{client: c}
	})
	return c.kinship
}

// Users returns the account administration sub-client.
func (c *Client) Users() *UsersClient {
	c.usersOnce.Do(func() {
		c.users = &UsersClient{client: c}
	})
	return c.users
}

// Reports returns the reports sub-client.
func (c *Client) Reports() *ReportsClient {
	c.reportsOnce.Do(func() {
		c.reports = &ReportsClient{client: c}
	})
	return c.reports
}

// do performs one JSON request with retry on transport and 5xx failures.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var encode func() (io.Reader, string, error)
	if body != nil {
		encode = func() (io.Reader, string, error) {
			bodyBytes, err := json.Marshal(body)
			if err != nil {
				return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
			}
			return bytes.NewReader(bodyBytes), "application/json", nil
		}
	}
	respBody, _, _, err := c.doRaw(ctx, method, path, encode)
	if err != nil {
		return err
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// doRaw performs one request and returns the raw response body, its
// content type and the HTTP status. encode builds a fresh body reader per
// attempt so retries never resend a drained reader; nil means no body.
func (c *Client) doRaw(ctx context.Context, method, path string, encode func() (io.Reader, string, error)) ([]byte, string, int, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	fullURL := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debugf("Retry attempt %d after %v", attempt, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, "", 0, ctx.Err()
			}
		}

		var bodyReader io.Reader
		contentType := ""
		if encode != nil {
			var err error
			bodyReader, contentType, err = encode()
			if err != nil {
				return nil, "", 0, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, "", 0, fmt.Errorf("failed to create request: %w", err)
		}

		requestID := uuid.New().String()
		if token := c.bearerToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", requestID)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)

		if err != nil {
			c.logger.Errorf("Request failed: %v", err)
			lastErr = err
			if c.shouldRetry(nil, err) {
				continue
			}
			return nil, "", 0, err
		}

		c.logger.Debugf("%s %s %d (%v)", method, path, resp.StatusCode, duration)

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, "", 0, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := resp.Header.Get("Retry-After")
			if retryAfter != "" {
				if seconds, err := strconv.Atoi(retryAfter); err == nil && attempt < c.retryMax {
					c.logger.Infof("Rate limited, retrying after %d seconds", seconds)
					select {
					case <-time.After(time.Duration(seconds) * time.Second):
						continue
					case <-ctx.Done():
						return nil, "", 0, ctx.Err()
					}
				}
			}
		}

		if resp.StatusCode >= 400 {
			apiErr := &APIError{
				StatusCode: resp.StatusCode,
				RequestID:  requestID,
			}
			if len(respBody) > 0 {
				var errResp struct {
					Code    string `json:"code"`
					Message string `json:"message"`
					Detail  string `json:"detail"`
				}
				if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Code != "" {
					apiErr.Code = errResp.Code
					apiErr.Message = errResp.Message
					apiErr.Detail = errResp.Detail
				} else {
					apiErr.Message = string(respBody)
				}
			}
			lastErr = apiErr
			if c.shouldRetry(resp, nil) {
				continue
			}
			return nil, "", resp.StatusCode, apiErr
		}

		return respBody, resp.Header.Get("Content-Type"), resp.StatusCode, nil
	}

	return nil, "", 0, lastErr
}

func unmarshalBody(body []byte, result interface{}) error {
	if result == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

func (c *Client) put(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPut, path, body, result)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp != nil && resp.StatusCode >= 500 && resp.StatusCode < 600 {
		return true
	}
	return false
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if backoff > c.retryWaitMax {
		backoff = c.retryWaitMax
	}
	jitter := time.Duration(rand.Int63n(int64(backoff / 4)))
	return backoff + jitter
}
