// Package search keeps the OpenSearch projection in step with the record
// store and answers full-text queries against it. Record writers never call
// this package directly: the genealogy service publishes index events and
// the worker hands them here, so a slow or absent cluster backs up the
// queue instead of the write path.
package search

import (
	"context"

	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/internal/infrastructure/search/opensearch"
)

// reindexPageSize is the database read window during a tree rebuild.
const reindexPageSize = 500

// Indexer is the document-store port. The opensearch Indexer satisfies it.
type Indexer interface {
	IndexDocument(ctx context.Context, index, docID string, document interface{}) error
	DeleteDocument(ctx context.Context, index, docID string) error
	BulkIndex(ctx context.Context, index string, documents map[string]interface{}) (*opensearch.BulkResult, error)
	DeleteTreeDocuments(ctx context.Context, index string, treeID int64) (int64, error)
}

// Searcher is the query port. The opensearch Searcher satisfies it.
type Searcher interface {
	Search(ctx context.Context, req opensearch.SearchRequest) (*opensearch.SearchResult, error)
}

// Records is the slice of the record repository the service reads. Documents
// are always rebuilt from the stored row, never from event payloads, so a
// replayed or reordered event cannot resurrect stale data.
type Records interface {
	Get(ctx context.Context, treeID int64, xref string) (*record.Record, error)
	List(ctx context.Context, filter record.ListFilter) ([]*record.Record, int64, error)
}

// Service applies index mutations and resolves queries.
type Service struct {
	records  Records
	indexer  Indexer
	searcher Searcher
	log      logging.Logger
}

func NewService(records Records, indexer Indexer, searcher Searcher, log logging.Logger) *Service {
	return &Service{
		records:  records,
		indexer:  indexer,
		searcher: searcher,
		log:      log.Named("search"),
	}
}
