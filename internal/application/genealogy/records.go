package genealogy

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

const (
	defaultChangeLimit = 20
	maxChangeLimit     = 100
)

// parseSingle parses exactly one storable record out of submitted GEDCOM
// text. HEAD/TRLR wrappers are tolerated and skipped so a client may paste
// a whole single-record file.
func parseSingle(text string) (*gedcom.Record, error) {
	recs, err := gedcom.ParseAll(strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	var payload []*gedcom.Record
	for _, r := range recs {
		if r.Type == gedcom.RecordHeader || r.Type == gedcom.RecordTrailer {
			continue
		}
		payload = append(payload, r)
	}
	if len(payload) != 1 {
		return nil, errors.Newf(errors.ErrCodeValidation, "expected exactly one record, got %d", len(payload))
	}
	rec := payload[0]
	if !rec.Type.IsKnown() {
		return nil, errors.New(errors.ErrCodeRecordTypeInvalid, "unknown record type").WithDetail(string(rec.Type))
	}
	return rec, nil
}

// CreateRecord stores one new record from GEDCOM text. A missing xref gets
// the next free one for its type; a submitted xref that collides fails with
// the duplicate code.
func (s *Service) CreateRecord(ctx context.Context, treeID int64, gedcomText string, author uuid.UUID) (*record.Record, error) {
	if _, err := s.writableTree(ctx, treeID); err != nil {
		return nil, err
	}
	rec, err := parseSingle(gedcomText)
	if err != nil {
		return nil, err
	}
	if rec.Xref == "" {
		xref, err := s.records.NextXref(ctx, treeID, rec.Type)
		if err != nil {
			return nil, err
		}
		rec.Xref = xref
	}

	row, err := record.FromGedcom(treeID, rec)
	if err != nil {
		return nil, err
	}
	row.UpdatedBy = author

	err = s.records.WithTx(ctx, func(tx record.RecordRepository) error {
		if err := tx.Create(ctx, row); err != nil {
			return err
		}
		return tx.AddChange(ctx, &record.Change{
			TreeID:    treeID,
			Xref:      row.Xref,
			NewGedcom: row.Gedcom,
			Author:    author,
		})
	})
	if err != nil {
		return nil, err
	}

	s.fanOutSaved(ctx, treeID, nil, rec)
	s.log.Info("record created",
		logging.Int64("tree_id", treeID),
		logging.String("xref", row.Xref),
		logging.String("type", string(row.Type)))
	return row, nil
}

func (s *Service) GetRecord(ctx context.Context, treeID int64, xref string) (*record.Record, error) {
	return s.records.Get(ctx, treeID, xref)
}

// UpdateRecord replaces a record's GEDCOM text. The xref and type are fixed
// at creation; the submitted text must agree with both.
func (s *Service) UpdateRecord(ctx context.Context, treeID int64, xref, gedcomText string, author uuid.UUID) (*record.Record, error) {
	if _, err := s.writableTree(ctx, treeID); err != nil {
		return nil, err
	}
	old, err := s.records.Get(ctx, treeID, xref)
	if err != nil {
		return nil, err
	}
	rec, err := parseSingle(gedcomText)
	if err != nil {
		return nil, err
	}
	if rec.Xref == "" {
		rec.Xref = xref
	}
	if rec.Xref != xref {
		return nil, errors.Newf(errors.ErrCodeValidation, "submitted xref %s does not match %s", rec.Xref, xref)
	}
	if rec.Type != old.Type {
		return nil, errors.Newf(errors.ErrCodeRecordTypeInvalid, "record is %s, submitted %s", old.Type, rec.Type)
	}

	row, err := record.FromGedcom(treeID, rec)
	if err != nil {
		return nil, err
	}
	row.ID = old.ID
	row.CreatedAt = old.CreatedAt
	row.UpdatedBy = author

	oldParsed, err := old.Parse()
	if err != nil {
		return nil, err
	}

	err = s.records.WithTx(ctx, func(tx record.RecordRepository) error {
		if err := tx.Update(ctx, row); err != nil {
			return err
		}
		return tx.AddChange(ctx, &record.Change{
			TreeID:    treeID,
			Xref:      xref,
			OldGedcom: old.Gedcom,
			NewGedcom: row.Gedcom,
			Author:    author,
		})
	})
	if err != nil {
		return nil, err
	}

	s.fanOutSaved(ctx, treeID, oldParsed, rec)
	s.log.Info("record updated",
		logging.Int64("tree_id", treeID),
		logging.String("xref", xref))
	return row, nil
}

// DeleteRecord removes a record, journals the deletion, and drops any
// uploaded media object the record owned.
func (s *Service) DeleteRecord(ctx context.Context, treeID int64, xref string, author uuid.UUID) error {
	if _, err := s.writableTree(ctx, treeID); err != nil {
		return err
	}
	old, err := s.records.Get(ctx, treeID, xref)
	if err != nil {
		return err
	}
	oldParsed, err := old.Parse()
	if err != nil {
		return err
	}

	err = s.records.WithTx(ctx, func(tx record.RecordRepository) error {
		if err := tx.Delete(ctx, treeID, xref); err != nil {
			return err
		}
		return tx.AddChange(ctx, &record.Change{
			TreeID:    treeID,
			Xref:      xref,
			OldGedcom: old.Gedcom,
			Author:    author,
		})
	})
	if err != nil {
		return err
	}

	if old.Type == gedcom.RecordMedia && managedMediaKey(treeID, old.ObjectKey) {
		if derr := s.media.Delete(ctx, old.ObjectKey); derr != nil {
			s.log.Warn("media object not deleted",
				logging.String("key", old.ObjectKey), logging.Err(derr))
		}
	}

	s.fanOutRemoved(ctx, treeID, oldParsed)
	s.log.Info("record deleted",
		logging.Int64("tree_id", treeID),
		logging.String("xref", xref),
		logging.String("type", string(old.Type)))
	return nil
}

// ListRecords pages through a tree's records, optionally narrowed by type
// and extracted name.
func (s *Service) ListRecords(ctx context.Context, filter record.ListFilter) ([]*record.Record, int64, error) {
	if filter.TreeID == 0 {
		return nil, 0, errors.New(errors.ErrCodeValidation, "tree id is required")
	}
	if filter.Type != "" && !filter.Type.IsKnown() {
		return nil, 0, errors.New(errors.ErrCodeRecordTypeInvalid, "unknown record type").WithDetail(string(filter.Type))
	}
	// The repository defaults an unset page; an explicit one must be sane.
	if filter.Page.PageSize > 0 {
		if err := filter.Page.Validate(); err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeValidation, "invalid pagination")
		}
	}
	return s.records.List(ctx, filter)
}

// ListChanges returns the newest journal entries for one record.
func (s *Service) ListChanges(ctx context.Context, treeID int64, xref string, limit int) ([]*record.Change, error) {
	if limit <= 0 {
		limit = defaultChangeLimit
	}
	if limit > maxChangeLimit {
		limit = maxChangeLimit
	}
	if _, err := s.records.Get(ctx, treeID, xref); err != nil {
		return nil, err
	}
	return s.records.ListChanges(ctx, treeID, xref, limit)
}

// TreeStats counts a tree's records per type.
func (s *Service) TreeStats(ctx context.Context, treeID int64) (map[gedcom.RecordType]int64, error) {
	if _, err := s.trees.GetByID(ctx, treeID); err != nil {
		return nil, err
	}
	return s.records.CountByType(ctx, treeID)
}
