package importexport

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/domain/tree"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

// ImportResult summarizes one completed import.
type ImportResult struct {
	TreeID   int64          `json:"tree_id"`
	Counts   map[string]int `json:"counts"`
	Total    int            `json:"total"`
	Remapped int            `json:"remapped"`
	Skipped  int            `json:"skipped"`
	Duration time.Duration  `json:"duration"`
}

// Import reads one GEDCOM file into a tree. Existing records stay; incoming
// xrefs that collide are remapped, pointers included. The tree is held in
// the running import state for the duration, so record writes and exports
// are blocked until it ends. Failures leave the state "failed" with the
// cause; rows inserted before the failure remain for inspection.
func (s *Service) Import(ctx context.Context, treeID int64, r io.Reader, source string, author uuid.UUID) (*ImportResult, error) {
	t, err := s.trees.GetByID(ctx, treeID)
	if err != nil {
		return nil, err
	}
	if t.Importing() {
		return nil, errors.New(errors.ErrCodeImportInProgress, "an import is already running")
	}
	if err := s.trees.SetImportState(ctx, treeID, tree.ImportRunning, ""); err != nil {
		return nil, err
	}

	started := s.now()
	result, err := s.runImport(ctx, treeID, r, author)
	if err != nil {
		if serr := s.trees.SetImportState(ctx, treeID, tree.ImportFailed, err.Error()); serr != nil {
			s.log.Error("import state not recorded", logging.Int64("tree_id", treeID), logging.Err(serr))
		}
		s.log.Error("import failed",
			logging.Int64("tree_id", treeID),
			logging.String("source", source),
			logging.Err(err))
		return nil, err
	}
	result.Duration = s.now().Sub(started)

	if err := s.trees.SetImportState(ctx, treeID, tree.ImportReady, ""); err != nil {
		return nil, err
	}
	s.recordProvenance(ctx, treeID, source)

	if err := s.events.ImportCompleted(ctx, Announcement{
		TreeID:   treeID,
		TreeName: t.Name,
		Source:   source,
		Counts:   result.Counts,
	}); err != nil {
		s.log.Warn("import announcement not published",
			logging.Int64("tree_id", treeID), logging.Err(err))
	}

	s.log.Info("import finished",
		logging.Int64("tree_id", treeID),
		logging.String("source", source),
		logging.Int("records", result.Total),
		logging.Int("remapped", result.Remapped),
		logging.Int("skipped", result.Skipped),
		logging.Duration("took", result.Duration))
	return result, nil
}

// runImport is the parse → remap → insert pipeline.
func (s *Service) runImport(ctx context.Context, treeID int64, r io.Reader, author uuid.UUID) (*ImportResult, error) {
	recs, skipped, err := s.parseStream(ctx, r)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.New(errors.ErrCodeGedcomParse, "file contains no records")
	}

	mapping, err := s.remapCollisions(ctx, treeID, recs)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, 8)
	for _, rec := range recs {
		counts[string(rec.Type)]++
	}

	if err := s.insertBatches(ctx, treeID, recs, author); err != nil {
		return nil, err
	}

	return &ImportResult{
		TreeID:   treeID,
		Counts:   counts,
		Total:    len(recs),
		Remapped: len(mapping),
		Skipped:  skipped,
	}, nil
}

// parseStream runs the parser and the record filter as a two-stage
// pipeline so large files overlap reading with validation.
func (s *Service) parseStream(ctx context.Context, r io.Reader) ([]*gedcom.Record, int, error) {
	g, gctx := errgroup.WithContext(ctx)
	parsed := make(chan *gedcom.Record, 64)

	g.Go(func() error {
		defer close(parsed)
		p := gedcom.NewParser(r)
		for {
			rec, err := p.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case parsed <- rec:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	var recs []*gedcom.Record
	skipped := 0
	g.Go(func() error {
		seen := make(map[string]bool)
		for rec := range parsed {
			switch {
			case rec.Type == gedcom.RecordHeader || rec.Type == gedcom.RecordTrailer:
				// File furniture, regenerated on export.
			case !rec.Type.IsKnown():
				skipped++
				s.log.Warn("unknown record type skipped",
					logging.String("type", string(rec.Type)),
					logging.String("xref", rec.Xref))
			case rec.Xref == "":
				skipped++
				s.log.Warn("record without xref skipped",
					logging.String("type", string(rec.Type)))
			case seen[rec.Xref]:
				return errors.New(errors.ErrCodeDuplicateXref, "file defines an xref twice").WithDetail(rec.Xref)
			default:
				seen[rec.Xref] = true
				recs = append(recs, rec)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return recs, skipped, nil
}

// remapCollisions renames incoming xrefs that a record in the tree already
// uses. An empty tree is the common case and skips the per-xref lookups.
func (s *Service) remapCollisions(ctx context.Context, treeID int64, recs []*gedcom.Record) (map[string]string, error) {
	existing, err := s.records.CountByType(ctx, treeID)
	if err != nil {
		return nil, err
	}
	total := int64(0)
	for _, n := range existing {
		total += n
	}
	if total == 0 {
		return nil, nil
	}

	var lookupErr error
	taken := func(xref string) bool {
		if lookupErr != nil {
			return false
		}
		_, err := s.records.Get(ctx, treeID, xref)
		if err == nil {
			return true
		}
		if !errors.IsCode(err, errors.ErrCodeRecordNotFound) {
			lookupErr = err
		}
		return false
	}

	mapping := gedcom.BuildRemapping(recs, taken)
	if lookupErr != nil {
		return nil, lookupErr
	}
	gedcom.RemapXrefs(recs, mapping)
	return mapping, nil
}

// insertBatches writes records in transaction-sized chunks. Imports are
// bulk provenance, not edits: rows are not journaled per record, the
// import announcement carries the counts.
func (s *Service) insertBatches(ctx context.Context, treeID int64, recs []*gedcom.Record, author uuid.UUID) error {
	for start := 0; start < len(recs); start += importBatchSize {
		end := start + importBatchSize
		if end > len(recs) {
			end = len(recs)
		}
		chunk := recs[start:end]

		err := s.records.WithTx(ctx, func(tx record.RecordRepository) error {
			for _, rec := range chunk {
				row, err := record.FromGedcom(treeID, rec)
				if err != nil {
					return err
				}
				row.UpdatedBy = author
				if err := tx.Create(ctx, row); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordProvenance(ctx context.Context, treeID int64, source string) {
	if err := s.trees.SetPreference(ctx, treeID, tree.PrefImportSource, source); err != nil {
		s.log.Warn("import source not recorded", logging.Int64("tree_id", treeID), logging.Err(err))
	}
	if err := s.trees.SetPreference(ctx, treeID, tree.PrefImportDate, s.now().UTC().Format(time.RFC3339)); err != nil {
		s.log.Warn("import date not recorded", logging.Int64("tree_id", treeID), logging.Err(err))
	}
}
