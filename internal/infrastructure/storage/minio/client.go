// Package minio stores binary artifacts: media files attached to records,
// finished report artifacts, GEDCOM export files and short-lived temp
// uploads, one bucket per class.
package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/minio/minio-go/v7/pkg/tags"

	"github.com/mirono/webtrees/internal/config"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

// MinIOAPI is the slice of minio.Client this package uses, abstracted for
// testing.
type MinIOAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
	PresignedPutObject(ctx context.Context, bucketName, objectName string, expiry time.Duration) (*url.URL, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	RemoveObjects(ctx context.Context, bucketName string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
	PutObjectTagging(ctx context.Context, bucketName, objectName string, ot *tags.Tags, opts minio.PutObjectTaggingOptions) error
	GetObjectTagging(ctx context.Context, bucketName, objectName string, opts minio.GetObjectTaggingOptions) (*tags.Tags, error)
}

// BucketKind selects one of the configured buckets.
type BucketKind string

const (
	BucketMedia   BucketKind = "media"
	BucketReports BucketKind = "reports"
	BucketExports BucketKind = "exports"
	BucketTemp    BucketKind = "temp"
)

// Retention for the transient buckets, in days.
const (
	tempRetentionDays    = 7
	exportsRetentionDays = 30
)

// Client wraps the minio SDK with bucket bootstrapping and health checks.
type Client struct {
	api    MinIOAPI
	cfg    config.MinIOConfig
	logger logging.Logger
}

// NewClient connects to the object store, verifies reachability, creates the
// configured buckets and installs expiry rules on temp and exports.
func NewClient(cfg config.MinIOConfig, log logging.Logger) (*Client, error) {
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create minio client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := api.ListBuckets(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to minio")
	}

	c := &Client{api: api, cfg: cfg, logger: log}

	if err := c.EnsureBuckets(ctx); err != nil {
		return nil, err
	}
	c.setupLifecycleRules(ctx)

	log.Info("object storage connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.Bool("ssl", cfg.UseSSL))
	return c, nil
}

// NewClientWithAPI wraps an existing API implementation.  Used by tests.
func NewClientWithAPI(api MinIOAPI, cfg config.MinIOConfig, log logging.Logger) *Client {
	return &Client{api: api, cfg: cfg, logger: log}
}

// API exposes the underlying SDK surface to the repository.
func (c *Client) API() MinIOAPI { return c.api }

// Bucket maps a bucket kind to its configured name.  Unknown kinds fall back
// to the media bucket.
func (c *Client) Bucket(kind BucketKind) string {
	switch kind {
	case BucketReports:
		return c.cfg.ReportBucket
	case BucketExports:
		return c.cfg.ExportBucket
	case BucketTemp:
		return c.cfg.TempBucket
	default:
		return c.cfg.MediaBucket
	}
}

func (c *Client) bucketNames() []string {
	return []string{
		c.cfg.MediaBucket,
		c.cfg.ReportBucket,
		c.cfg.ExportBucket,
		c.cfg.TempBucket,
	}
}

// EnsureBuckets creates every configured bucket that does not exist yet.
func (c *Client) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range c.bucketNames() {
		exists, err := c.api.BucketExists(ctx, bucket)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "failed to check bucket existence")
		}
		if exists {
			continue
		}
		if err := c.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, fmt.Sprintf("failed to create bucket %s", bucket))
		}
		c.logger.Info("bucket created", logging.String("bucket", bucket))
	}
	return nil
}

// setupLifecycleRules expires temp uploads and export files.  Failures are
// logged, not fatal: lifecycle support varies across S3 backends.
func (c *Client) setupLifecycleRules(ctx context.Context) {
	rules := []struct {
		bucket string
		id     string
		days   int
	}{
		{c.cfg.TempBucket, "temp-cleanup", tempRetentionDays},
		{c.cfg.ExportBucket, "exports-cleanup", exportsRetentionDays},
	}
	for _, r := range rules {
		lc := lifecycle.NewConfiguration()
		lc.Rules = []lifecycle.Rule{{
			ID:         r.id,
			Status:     "Enabled",
			Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(r.days)},
		}}
		if err := c.api.SetBucketLifecycle(ctx, r.bucket, lc); err != nil {
			c.logger.Warn("failed to set bucket lifecycle",
				logging.String("bucket", r.bucket),
				logging.Err(err))
		}
	}
}

// HealthStatus reports reachability and per-bucket existence.
type HealthStatus struct {
	Healthy        bool
	Latency        time.Duration
	BucketStatuses map[string]bool
	Error          string
}

// HealthCheck pings the store and verifies every configured bucket exists.
func (c *Client) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	_, err := c.api.ListBuckets(ctx)

	status := &HealthStatus{
		Healthy:        err == nil,
		Latency:        time.Since(start),
		BucketStatuses: make(map[string]bool),
	}
	if err != nil {
		status.Error = err.Error()
		return status, err
	}

	for _, b := range c.bucketNames() {
		exists, _ := c.api.BucketExists(ctx, b)
		status.BucketStatuses[b] = exists
		if !exists {
			status.Healthy = false
			status.Error = fmt.Sprintf("bucket %s missing", b)
		}
	}
	return status, nil
}

// BucketStats aggregates object count and size for one bucket.
type BucketStats struct {
	ObjectCount  int64
	TotalSize    int64
	LastModified time.Time
}

// GetBucketStats walks the bucket and sums its objects.
func (c *Client) GetBucketStats(ctx context.Context, bucketName string) (*BucketStats, error) {
	exists, err := c.api.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to check bucket existence")
	}
	if !exists {
		return nil, errors.New(errors.ErrCodeNotFound, "bucket not found")
	}

	stats := &BucketStats{}
	for obj := range c.api.ListObjects(ctx, bucketName, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageError, "failed to list objects")
		}
		stats.ObjectCount++
		stats.TotalSize += obj.Size
		if obj.LastModified.After(stats.LastModified) {
			stats.LastModified = obj.LastModified
		}
	}
	return stats, nil
}

// PresignedGetURL returns a temporary download URL.  A zero expiry uses the
// configured default.
func (c *Client) PresignedGetURL(ctx context.Context, bucket, objectKey string, expiry time.Duration) (string, error) {
	if expiry == 0 {
		expiry = c.cfg.PresignExpiry
	}
	u, err := c.api.PresignedGetObject(ctx, bucket, objectKey, expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to presign download")
	}
	return u.String(), nil
}

// PresignedPutURL returns a temporary upload URL.
func (c *Client) PresignedPutURL(ctx context.Context, bucket, objectKey string, expiry time.Duration) (string, error) {
	if expiry == 0 {
		expiry = c.cfg.PresignExpiry
	}
	u, err := c.api.PresignedPutObject(ctx, bucket, objectKey, expiry)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to presign upload")
	}
	return u.String(), nil
}

// Close exists for wiring symmetry with the other infrastructure clients;
// the SDK holds no persistent connections.
func (c *Client) Close() error {
	c.logger.Info("object storage client closed")
	return nil
}
