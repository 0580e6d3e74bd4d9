package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mirono/webtrees/internal/application/reporting"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

// defaultJobTTL bounds how long a finished or abandoned report job stays
// addressable. Artifacts in object storage outlive the job record; the
// handle is only a claim ticket.
const defaultJobTTL = 24 * time.Hour

// ReportJobStore persists report jobs as JSON blobs keyed by handle. Jobs
// expire after ttl, so the store needs no sweeper.
type ReportJobStore struct {
	client *Client
	ttl    time.Duration
	logger logging.Logger
}

// NewReportJobStore builds the store. ttl zero or negative defaults to 24h.
func NewReportJobStore(client *Client, ttl time.Duration, log logging.Logger) *ReportJobStore {
	if ttl <= 0 {
		ttl = defaultJobTTL
	}
	return &ReportJobStore{client: client, ttl: ttl, logger: log}
}

// Create stores a fresh job. The full TTL starts here.
func (s *ReportJobStore) Create(ctx context.Context, job *reporting.Job) error {
	return s.write(ctx, job)
}

// Get returns the job for a handle.
func (s *ReportJobStore) Get(ctx context.Context, handle string) (*reporting.Job, error) {
	val, err := s.client.Get(ctx, s.key(handle)).Result()
	if err == redis.Nil {
		return nil, errors.New(errors.ErrCodeReportNotFound, "report job not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to load report job")
	}
	var job reporting.Job
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "corrupt report job entry")
	}
	return &job, nil
}

// Update overwrites the job and resets its TTL, so a job that just finished
// stays fetchable for the full window.
func (s *ReportJobStore) Update(ctx context.Context, job *reporting.Job) error {
	return s.write(ctx, job)
}

func (s *ReportJobStore) write(ctx context.Context, job *reporting.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode report job")
	}
	if err := s.client.Set(ctx, s.key(job.Handle), payload, s.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to store report job")
	}
	return nil
}

func (s *ReportJobStore) key(handle string) string {
	return s.client.Key("report", "job", handle)
}
