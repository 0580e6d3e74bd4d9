package search

import (
	"context"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/internal/infrastructure/search/opensearch"
	"github.com/mirono/webtrees/pkg/errors"
	"github.com/mirono/webtrees/pkg/types/common"
)

// ReindexResult summarizes one tree rebuild.
type ReindexResult struct {
	TreeID  int64 `json:"tree_id"`
	Purged  int64 `json:"purged"`
	Indexed int   `json:"indexed"`
	Failed  int   `json:"failed"`
}

// Index projects one record into its index. The row is re-read from the
// database so the document reflects the record as of now, not as of the
// event; a row deleted in the meantime is dropped from the index instead.
func (s *Service) Index(ctx context.Context, treeID int64, xref string, typ gedcom.RecordType) error {
	index := opensearch.IndexForRecordType(typ)
	if index == "" {
		return nil
	}

	row, err := s.records.Get(ctx, treeID, xref)
	if errors.IsCode(err, errors.ErrCodeRecordNotFound) {
		return s.Delete(ctx, treeID, xref, typ)
	}
	if err != nil {
		return err
	}

	doc, err := documentFor(row)
	if err != nil {
		return err
	}
	if err := s.indexer.IndexDocument(ctx, index, opensearch.DocumentID(treeID, xref), doc); err != nil {
		return err
	}

	s.log.Debug("record indexed",
		logging.Int64("tree_id", treeID),
		logging.String("xref", xref),
		logging.String("index", index))
	return nil
}

// Delete removes one record's document. A missing document is fine: the
// record may never have been indexed, or a replayed event already removed it.
func (s *Service) Delete(ctx context.Context, treeID int64, xref string, typ gedcom.RecordType) error {
	index := opensearch.IndexForRecordType(typ)
	if index == "" {
		return nil
	}
	err := s.indexer.DeleteDocument(ctx, index, opensearch.DocumentID(treeID, xref))
	if err != nil && !errors.IsCode(err, errors.ErrCodeNotFound) {
		return err
	}
	return nil
}

// ReindexTree rebuilds one tree's documents from the database: purge both
// indexes, then bulk-load every indexable record. Run against a deleted
// tree it finds no rows, which makes it the purge step of tree deletion.
func (s *Service) ReindexTree(ctx context.Context, treeID int64) (*ReindexResult, error) {
	result := &ReindexResult{TreeID: treeID}

	for _, index := range []string{opensearch.IndexIndividuals, opensearch.IndexSources} {
		purged, err := s.indexer.DeleteTreeDocuments(ctx, index, treeID)
		if err != nil {
			return nil, err
		}
		result.Purged += purged
	}

	for _, typ := range []gedcom.RecordType{gedcom.RecordIndividual, gedcom.RecordSource} {
		if err := s.reindexType(ctx, treeID, typ, result); err != nil {
			return nil, err
		}
	}

	s.log.Info("tree reindexed",
		logging.Int64("tree_id", treeID),
		logging.Int64("purged", result.Purged),
		logging.Int("indexed", result.Indexed),
		logging.Int("failed", result.Failed))
	return result, nil
}

func (s *Service) reindexType(ctx context.Context, treeID int64, typ gedcom.RecordType, result *ReindexResult) error {
	index := opensearch.IndexForRecordType(typ)
	for page := 1; ; page++ {
		rows, total, err := s.records.List(ctx, record.ListFilter{
			TreeID: treeID,
			Type:   typ,
			Page:   common.Pagination{Page: page, PageSize: reindexPageSize},
		})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		docs := make(map[string]interface{}, len(rows))
		for _, row := range rows {
			doc, err := documentFor(row)
			if err != nil {
				// One corrupt row must not sink the whole rebuild.
				result.Failed++
				s.log.Warn("record skipped during reindex",
					logging.Int64("tree_id", treeID),
					logging.String("xref", row.Xref),
					logging.Err(err))
				continue
			}
			docs[opensearch.DocumentID(treeID, row.Xref)] = doc
		}

		if len(docs) > 0 {
			bulk, err := s.indexer.BulkIndex(ctx, index, docs)
			if err != nil {
				return err
			}
			result.Indexed += bulk.Succeeded
			result.Failed += bulk.Failed
			for _, item := range bulk.Errors {
				s.log.Warn("document rejected during reindex",
					logging.String("doc_id", item.DocID),
					logging.String("reason", item.Reason))
			}
		}

		if int64(page*reindexPageSize) >= total {
			return nil
		}
	}
}

// documentFor projects a stored row into its index document.
func documentFor(row *record.Record) (interface{}, error) {
	rec, err := row.Parse()
	if err != nil {
		return nil, err
	}
	switch row.Type {
	case gedcom.RecordIndividual:
		return opensearch.NewIndividualDocument(row.TreeID, rec, row.UpdatedAt), nil
	case gedcom.RecordSource:
		return opensearch.NewSourceDocument(row.TreeID, rec, row.UpdatedAt), nil
	}
	return nil, errors.New(errors.ErrCodeRecordTypeInvalid, "record type has no search index").WithDetail(string(row.Type))
}
