// Package importexport moves whole trees across the GEDCOM file boundary.
//
// Import parses a file, remaps xrefs that collide with records already in
// the tree, and batch-inserts the rest; the tree's import state blocks
// concurrent writes while it runs and records how it ended. A finished
// import is announced on the bus so the worker rebuilds the search index
// and kinship graph. Export streams a tree back to canonical GEDCOM,
// either directly to a writer or into object storage behind a download
// handle.
package importexport

import (
	"context"
	"time"

	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/domain/tree"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
)

const (
	// importBatchSize is how many records one insert transaction carries.
	importBatchSize = 500
	// exportPageSize is how many rows one export page loads.
	exportPageSize = 500
	// gedcomContentType is the MIME type stored with exported files.
	gedcomContentType = "text/x-gedcom"
)

// Announcement describes a finished import for downstream projections.
type Announcement struct {
	TreeID   int64
	TreeName string
	Source   string
	Counts   map[string]int
}

// Events publishes import completions. The worker consumes them and
// rebuilds the tree's search documents and kinship graph.
type Events interface {
	ImportCompleted(ctx context.Context, a Announcement) error
}

// ArtifactStore is the object-storage port exported files land in.
type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	PresignedURL(ctx context.Context, key string) (string, error)
}

// Service imports and exports trees.
type Service struct {
	trees   tree.TreeRepository
	records record.RecordRepository
	exports ArtifactStore
	events  Events
	source  string
	log     logging.Logger
	now     func() time.Time
}

// NewService wires the import/export service. source names this system in
// exported HEAD records ("webtrees").
func NewService(
	trees tree.TreeRepository,
	records record.RecordRepository,
	exports ArtifactStore,
	events Events,
	source string,
	log logging.Logger,
) *Service {
	if source == "" {
		source = "webtrees"
	}
	return &Service{
		trees:   trees,
		records: records,
		exports: exports,
		events:  events,
		source:  source,
		log:     log.Named("importexport"),
		now:     time.Now,
	}
}
