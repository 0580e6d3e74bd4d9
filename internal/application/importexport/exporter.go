package importexport

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/domain/tree"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
	"github.com/mirono/webtrees/pkg/types/common"
)

// exportOrder is the record sequence of an exported file: people first,
// then the structures that reference them.
var exportOrder = []gedcom.RecordType{
	gedcom.RecordIndividual,
	gedcom.RecordFamily,
	gedcom.RecordSource,
	gedcom.RecordRepository,
	gedcom.RecordMedia,
	gedcom.RecordNote,
	gedcom.RecordSubmitter,
}

// ExportResult is the download handle for a stored export.
type ExportResult struct {
	Key     string `json:"key"`
	URL     string `json:"url,omitempty"`
	Records int    `json:"records"`
	Bytes   int    `json:"bytes"`
}

// ExportTree writes a tree to canonical GEDCOM in object storage and
// returns the handle. The presigned URL is best-effort; the key alone is
// enough to fetch the file through the API.
func (s *Service) ExportTree(ctx context.Context, treeID int64) (*ExportResult, error) {
	t, err := s.exportableTree(ctx, treeID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	n, err := s.writeTree(ctx, t, &buf)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%s-%s.ged", t.Name, t.Name, s.now().UTC().Format("20060102-150405"))
	if err := s.exports.Put(ctx, key, gedcomContentType, buf.Bytes()); err != nil {
		return nil, err
	}

	url, err := s.exports.PresignedURL(ctx, key)
	if err != nil {
		s.log.Warn("export url not signed", logging.String("key", key), logging.Err(err))
		url = ""
	}

	s.log.Info("tree exported",
		logging.Int64("tree_id", treeID),
		logging.String("key", key),
		logging.Int("records", n),
		logging.Int("bytes", buf.Len()))
	return &ExportResult{Key: key, URL: url, Records: n, Bytes: buf.Len()}, nil
}

// WriteTree streams a tree as GEDCOM to w. The CLI export path uses this
// to write straight to a file.
func (s *Service) WriteTree(ctx context.Context, treeID int64, w io.Writer) (int, error) {
	t, err := s.exportableTree(ctx, treeID)
	if err != nil {
		return 0, err
	}
	return s.writeTree(ctx, t, w)
}

func (s *Service) exportableTree(ctx context.Context, treeID int64) (*tree.Tree, error) {
	t, err := s.trees.GetByID(ctx, treeID)
	if err != nil {
		return nil, err
	}
	if t.Importing() {
		return nil, errors.New(errors.ErrCodeImportInProgress, "tree is importing; export would be a torn snapshot")
	}
	return t, nil
}

// writeTree emits header, records in exportOrder, trailer. Returns the
// number of data records written.
func (s *Service) writeTree(ctx context.Context, t *tree.Tree, w io.Writer) (int, error) {
	gw := gedcom.NewWriter(w)
	if err := gw.WriteRecord(gedcom.NewHeader(s.source, "", s.now().UTC())); err != nil {
		return 0, err
	}

	written := 0
	for _, typ := range exportOrder {
		page := 1
		for {
			rows, _, err := s.records.List(ctx, record.ListFilter{
				TreeID: t.ID,
				Type:   typ,
				Page:   common.Pagination{Page: page, PageSize: exportPageSize},
			})
			if err != nil {
				return written, err
			}
			for _, row := range rows {
				rec, err := row.Parse()
				if err != nil {
					return written, errors.Wrap(err, errors.ErrCodeGedcomParse, "stored record unreadable").WithDetail(row.Xref)
				}
				if err := gw.WriteRecord(rec); err != nil {
					return written, err
				}
				written++
			}
			if len(rows) < exportPageSize {
				break
			}
			page++
		}
	}

	if err := gw.WriteRecord(gedcom.NewTrailer()); err != nil {
		return written, err
	}
	return written, gw.Flush()
}
