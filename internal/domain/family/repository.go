package family

import (
	"context"

	"github.com/mirono/webtrees/internal/domain/gedcom"
)

// Reader loads a tree's parsed records one type at a time. The record
// store implements it by parsing its stored rows.
type Reader interface {
	RecordsByType(ctx context.Context, treeID int64, typ gedcom.RecordType) ([]*gedcom.Record, error)
}

// LoadIndex builds the family index for one tree.
func LoadIndex(ctx context.Context, r Reader, treeID int64) (*Index, error) {
	families, err := r.RecordsByType(ctx, treeID, gedcom.RecordFamily)
	if err != nil {
		return nil, err
	}
	return NewIndex(families), nil
}

// LoadProjection loads a tree's individuals and families and assembles the
// kinship graph view.
func LoadProjection(ctx context.Context, r Reader, treeID int64) (*Projection, error) {
	individuals, err := r.RecordsByType(ctx, treeID, gedcom.RecordIndividual)
	if err != nil {
		return nil, err
	}
	families, err := r.RecordsByType(ctx, treeID, gedcom.RecordFamily)
	if err != nil {
		return nil, err
	}
	records := make([]*gedcom.Record, 0, len(individuals)+len(families))
	records = append(records, individuals...)
	records = append(records, families...)
	return BuildProjection(records), nil
}
