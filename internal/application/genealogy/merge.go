package genealogy

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
	"github.com/mirono/webtrees/pkg/types/common"
)

// relinkPageSize bounds how many rows the relink pass loads at a time.
const relinkPageSize = 500

// MergeResult reports a completed merge: the surviving record and the
// single-valued facts where the two records disagreed (the target's value
// won).
type MergeResult struct {
	Record    *record.Record   `json:"record"`
	Conflicts []gedcom.Conflict `json:"conflicts,omitempty"`
	Relinked  []string          `json:"relinked,omitempty"`
}

// MergeRecords folds source into target: facts are unioned, every pointer
// to source anywhere in the tree is rewritten to target, and source is
// deleted. The whole operation is one transaction.
func (s *Service) MergeRecords(ctx context.Context, treeID int64, targetXref, sourceXref string, author uuid.UUID) (*MergeResult, error) {
	if targetXref == sourceXref {
		return nil, errors.New(errors.ErrCodeValidation, "cannot merge a record into itself")
	}
	if _, err := s.writableTree(ctx, treeID); err != nil {
		return nil, err
	}

	targetRow, err := s.records.Get(ctx, treeID, targetXref)
	if err != nil {
		return nil, err
	}
	sourceRow, err := s.records.Get(ctx, treeID, sourceXref)
	if err != nil {
		return nil, err
	}
	targetRec, err := targetRow.Parse()
	if err != nil {
		return nil, err
	}
	sourceRec, err := sourceRow.Parse()
	if err != nil {
		return nil, err
	}

	merged, conflicts, err := gedcom.MergeRecords(targetRec, sourceRec)
	if err != nil {
		return nil, err
	}
	// The merged record may have absorbed pointers to the record being
	// deleted (a family where both spouses point at each other, say).
	gedcom.RemapXrefs([]*gedcom.Record{merged}, map[string]string{sourceXref: targetXref})
	dropSelfPointers(merged)

	mergedRow, err := record.FromGedcom(treeID, merged)
	if err != nil {
		return nil, err
	}
	mergedRow.ID = targetRow.ID
	mergedRow.CreatedAt = targetRow.CreatedAt
	mergedRow.UpdatedBy = author

	var relinked []string
	err = s.records.WithTx(ctx, func(tx record.RecordRepository) error {
		if err := tx.Update(ctx, mergedRow); err != nil {
			return err
		}
		if err := tx.AddChange(ctx, &record.Change{
			TreeID:    treeID,
			Xref:      targetXref,
			OldGedcom: targetRow.Gedcom,
			NewGedcom: mergedRow.Gedcom,
			Author:    author,
		}); err != nil {
			return err
		}
		if err := tx.Delete(ctx, treeID, sourceXref); err != nil {
			return err
		}
		if err := tx.AddChange(ctx, &record.Change{
			TreeID:    treeID,
			Xref:      sourceXref,
			OldGedcom: sourceRow.Gedcom,
			Author:    author,
		}); err != nil {
			return err
		}
		relinked, err = s.relink(ctx, tx, treeID, sourceXref, targetXref, author)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.fanOutRemoved(ctx, treeID, sourceRec)
	s.fanOutSaved(ctx, treeID, targetRec, merged)

	s.log.Info("records merged",
		logging.Int64("tree_id", treeID),
		logging.String("target", targetXref),
		logging.String("source", sourceXref),
		logging.Int("conflicts", len(conflicts)),
		logging.Int("relinked", len(relinked)))
	return &MergeResult{Record: mergedRow, Conflicts: conflicts, Relinked: relinked}, nil
}

// relink rewrites every pointer to from into to across the tree and updates
// the affected rows inside the merge transaction. Family rows that changed
// are re-synced to the graph after commit by the caller's fan-out; to keep
// that cheap the affected xrefs are returned.
func (s *Service) relink(ctx context.Context, tx record.RecordRepository, treeID int64, from, to string, author uuid.UUID) ([]string, error) {
	mapping := map[string]string{from: to}
	needle := "@" + from + "@"

	var relinked []string
	page := 1
	for {
		rows, _, err := tx.List(ctx, record.ListFilter{
			TreeID: treeID,
			Page:   common.Pagination{Page: page, PageSize: relinkPageSize},
		})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			if row.Xref == to || row.Xref == from || !strings.Contains(row.Gedcom, needle) {
				continue
			}
			rec, err := row.Parse()
			if err != nil {
				return nil, err
			}
			previous := rec.Clone()
			gedcom.RemapXrefs([]*gedcom.Record{rec}, mapping)

			updated, err := record.FromGedcom(treeID, rec)
			if err != nil {
				return nil, err
			}
			updated.ID = row.ID
			updated.CreatedAt = row.CreatedAt
			updated.UpdatedBy = author

			if err := tx.Update(ctx, updated); err != nil {
				return nil, err
			}
			if err := tx.AddChange(ctx, &record.Change{
				TreeID:    treeID,
				Xref:      row.Xref,
				OldGedcom: row.Gedcom,
				NewGedcom: updated.Gedcom,
				Author:    author,
			}); err != nil {
				return nil, err
			}
			relinked = append(relinked, row.Xref)

			// Family links derive from FAM rows; keep the graph in step.
			if rec.Type == gedcom.RecordFamily {
				if err := s.graph.FamilySaved(ctx, treeID, previous, rec); err != nil {
					s.warnFanOut("kinship graph not updated", treeID, rec.Xref, err)
				}
			}
		}
		if len(rows) < relinkPageSize {
			break
		}
		page++
	}
	return relinked, nil
}

// dropSelfPointers removes children whose pointer value targets the record
// itself, which appear when a family absorbs its duplicate spouse.
func dropSelfPointers(rec *gedcom.Record) {
	kept := rec.Children[:0]
	for _, c := range rec.Children {
		if gedcom.PointerTarget(c.Value) == rec.Xref {
			continue
		}
		kept = append(kept, c)
	}
	rec.Children = kept
}
