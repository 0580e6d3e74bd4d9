// Package opensearch maintains the full-text indexes for genealogy records.
// Individuals and sources are indexed per tree; the searcher builds the
// query DSL for the search service and the indexer keeps documents in step
// with the record store.
package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/mirono/webtrees/internal/config"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

var (
	ErrInvalidConfig    = errors.New(errors.ErrCodeValidation, "invalid opensearch configuration")
	ErrConnectionFailed = errors.New(errors.ErrCodeSearchUnavailable, "opensearch connection failed")
)

// ClientConfig holds the OpenSearch connection parameters.
type ClientConfig struct {
	Addresses           []string
	Username            string
	Password            string
	InsecureSkipVerify  bool
	IndexPrefix         string
	MaxRetries          int
	RetryBackoff        time.Duration
	RequestTimeout      time.Duration
	MaxIdleConnsPerHost int
	HealthCheckInterval time.Duration
}

// NewClientConfig maps the application configuration onto the client's.
func NewClientConfig(cfg config.OpenSearchConfig) ClientConfig {
	return ClientConfig{
		Addresses:          cfg.Addresses,
		Username:           cfg.User,
		Password:           cfg.Password,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		IndexPrefix:        cfg.IndexPrefix,
	}
}

// Client wraps the OpenSearch connection with background health tracking.
type Client struct {
	client  *opensearch.Client
	config  ClientConfig
	logger  logging.Logger
	healthy atomic.Bool
	cancel  context.CancelFunc
}

// NewClient connects, verifies the cluster answers, and starts the health
// loop. A cluster that cannot be pinged at startup is a hard error; the
// server must not come up with search silently broken.
func NewClient(cfg ClientConfig, logger logging.Logger) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = "webtrees-"
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  func(int) time.Duration { return cfg.RetryBackoff },
		Transport:     transport,
		RetryOnStatus: []int{429, 502, 503, 504},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearchUnavailable, "failed to create opensearch client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		client: client,
		config: cfg,
		logger: logger.Named("opensearch"),
		cancel: cancel,
	}

	if err := c.Ping(ctx); err != nil {
		cancel()
		return nil, ErrConnectionFailed
	}

	go c.healthLoop(ctx)
	return c, nil
}

// Ping checks the cluster and records the outcome for IsHealthy.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("ping failed", logging.Err(err))
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		c.healthy.Store(false)
		c.logger.Warn("ping returned error status", logging.Int("status", resp.StatusCode))
		return errors.New(errors.ErrCodeSearchUnavailable, "ping returned error status")
	}

	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the last observed cluster state.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// GetClient exposes the underlying SDK client for request structs.
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// IndexName applies the configured prefix to a logical index name.
func (c *Client) IndexName(name string) string {
	return c.config.IndexPrefix + name
}

// Close stops the health loop.
func (c *Client) Close() error {
	c.cancel()
	c.logger.Info("opensearch client closed")
	return nil
}

func (c *Client) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev := c.healthy.Load()
			err := c.Ping(ctx)
			curr := c.healthy.Load()

			if prev && !curr {
				c.logger.Error("cluster became unhealthy", logging.Err(err))
			} else if !prev && curr {
				c.logger.Info("cluster recovered")
			}
		}
	}
}

// ValidateConfig rejects configurations the client cannot start with.
func ValidateConfig(cfg ClientConfig) error {
	if len(cfg.Addresses) == 0 {
		return ErrInvalidConfig
	}
	if cfg.MaxRetries < 0 {
		return errors.New(errors.ErrCodeValidation, "max retries must be >= 0")
	}
	if cfg.RequestTimeout < 0 {
		return errors.New(errors.ErrCodeValidation, "request timeout must be >= 0")
	}
	return nil
}
