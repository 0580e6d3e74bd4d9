package record

import (
	"context"

	"github.com/mirono/webtrees/internal/domain/gedcom"
)

// RecordRepository is the persistence contract for genealogy records and
// their change log. Get returns an error with code ErrCodeRecordNotFound
// when no row matches; Create maps an xref collision within a tree to
// ErrCodeDuplicateXref.
type RecordRepository interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, treeID int64, xref string) (*Record, error)
	Update(ctx context.Context, r *Record) error
	Delete(ctx context.Context, treeID int64, xref string) error
	List(ctx context.Context, filter ListFilter) ([]*Record, int64, error)

	// NextXref reserves the next free xref for a record type in a tree,
	// e.g. I124 when I123 is the highest individual so far.
	NextXref(ctx context.Context, treeID int64, typ gedcom.RecordType) (string, error)
	CountByType(ctx context.Context, treeID int64) (map[gedcom.RecordType]int64, error)

	AddChange(ctx context.Context, c *Change) error
	ListChanges(ctx context.Context, treeID int64, xref string, limit int) ([]*Change, error)

	// WithTx runs fn against a repository bound to one transaction.
	WithTx(ctx context.Context, fn func(RecordRepository) error) error
}
