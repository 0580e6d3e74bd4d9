package minio

import (
	"context"

	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
)

// ArtifactStore binds one bucket to the key/bytes port the application
// services consume, hiding bucket names from them.
type ArtifactStore struct {
	repo   ObjectStorageRepository
	bucket string
}

// NewReportStore keeps finished report artifacts.
func NewReportStore(client *Client, log logging.Logger) *ArtifactStore {
	return &ArtifactStore{
		repo:   NewRepository(client, log),
		bucket: client.Bucket(BucketReports),
	}
}

// NewExportStore keeps generated GEDCOM export files.
func NewExportStore(client *Client, log logging.Logger) *ArtifactStore {
	return &ArtifactStore{
		repo:   NewRepository(client, log),
		bucket: client.Bucket(BucketExports),
	}
}

// NewMediaStore keeps media files referenced by OBJE records.
func NewMediaStore(client *Client, log logging.Logger) *ArtifactStore {
	return &ArtifactStore{
		repo:   NewRepository(client, log),
		bucket: client.Bucket(BucketMedia),
	}
}

func (s *ArtifactStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.repo.Upload(ctx, &UploadRequest{
		Bucket:      s.bucket,
		ObjectKey:   key,
		Data:        data,
		ContentType: contentType,
	})
	return err
}

func (s *ArtifactStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	res, err := s.repo.Download(ctx, s.bucket, key)
	if err != nil {
		return nil, "", err
	}
	return res.Data, res.ContentType, nil
}

func (s *ArtifactStore) Delete(ctx context.Context, key string) error {
	return s.repo.Delete(ctx, s.bucket, key)
}

func (s *ArtifactStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.repo.Exists(ctx, s.bucket, key)
}

// PresignedURL hands out a temporary download link for the stored artifact.
func (s *ArtifactStore) PresignedURL(ctx context.Context, key string) (string, error) {
	return s.repo.PresignedDownloadURL(ctx, s.bucket, key, 0)
}
