package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/internal/infrastructure/search/opensearch"
	"github.com/mirono/webtrees/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Stub ports
// ─────────────────────────────────────────────────────────────────────────────

type stubRecords struct {
	rows map[string]*record.Record
	err  error
}

func rowKey(treeID int64, xref string) string {
	return fmt.Sprintf("%d:%s", treeID, xref)
}

func (s *stubRecords) Get(_ context.Context, treeID int64, xref string) (*record.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	r, ok := s.rows[rowKey(treeID, xref)]
	if !ok {
		return nil, errors.New(errors.ErrCodeRecordNotFound, "record not found")
	}
	return r, nil
}

func (s *stubRecords) List(_ context.Context, filter record.ListFilter) ([]*record.Record, int64, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	var all []*record.Record
	for _, r := range s.rows {
		if r.TreeID != filter.TreeID {
			continue
		}
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Xref < all[j].Xref })

	total := int64(len(all))
	start := (filter.Page.Page - 1) * filter.Page.PageSize
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + filter.Page.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

type bulkCall struct {
	index string
	ids   []string
}

type stubIndexer struct {
	docs        map[string]interface{}
	deleted     []string
	bulks       []bulkCall
	treeDeletes []string
	purged      map[string]int64

	indexErr    error
	deleteErr   error
	bulkErr     error
	bulkResults []*opensearch.BulkResult
	purgeErr    error
}

func docKey(index, docID string) string {
	return index + "/" + docID
}

func (s *stubIndexer) IndexDocument(_ context.Context, index, docID string, document interface{}) error {
	if s.indexErr != nil {
		return s.indexErr
	}
	if s.docs == nil {
		s.docs = map[string]interface{}{}
	}
	s.docs[docKey(index, docID)] = document
	return nil
}

func (s *stubIndexer) DeleteDocument(_ context.Context, index, docID string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, docKey(index, docID))
	return nil
}

func (s *stubIndexer) BulkIndex(_ context.Context, index string, documents map[string]interface{}) (*opensearch.BulkResult, error) {
	if s.bulkErr != nil {
		return nil, s.bulkErr
	}
	ids := make([]string, 0, len(documents))
	for id, doc := range documents {
		ids = append(ids, id)
		if s.docs == nil {
			s.docs = map[string]interface{}{}
		}
		s.docs[docKey(index, id)] = doc
	}
	sort.Strings(ids)
	s.bulks = append(s.bulks, bulkCall{index: index, ids: ids})

	if len(s.bulkResults) > 0 {
		r := s.bulkResults[0]
		s.bulkResults = s.bulkResults[1:]
		return r, nil
	}
	return &opensearch.BulkResult{Succeeded: len(documents)}, nil
}

func (s *stubIndexer) DeleteTreeDocuments(_ context.Context, index string, treeID int64) (int64, error) {
	if s.purgeErr != nil {
		return 0, s.purgeErr
	}
	s.treeDeletes = append(s.treeDeletes, fmt.Sprintf("%s:%d", index, treeID))
	return s.purged[index], nil
}

type stubSearcher struct {
	requests []opensearch.SearchRequest
	result   *opensearch.SearchResult
	err      error
}

func (s *stubSearcher) Search(_ context.Context, req opensearch.SearchRequest) (*opensearch.SearchResult, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &opensearch.SearchResult{}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────────────────────────────────────

type fixture struct {
	svc      *Service
	records  *stubRecords
	indexer  *stubIndexer
	searcher *stubSearcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		records:  &stubRecords{rows: map[string]*record.Record{}},
		indexer:  &stubIndexer{purged: map[string]int64{}},
		searcher: &stubSearcher{},
	}
	f.svc = NewService(f.records, f.indexer, f.searcher, logging.NewNopLogger())
	return f
}

var fixedUpdatedAt = time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

// seed parses one GEDCOM record and stores it as a row.
func (f *fixture) seed(t *testing.T, treeID int64, gedcomText string) *record.Record {
	t.Helper()
	recs, err := gedcom.ParseAll(strings.NewReader(gedcomText))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	row, err := record.FromGedcom(treeID, recs[0])
	require.NoError(t, err)
	row.UpdatedAt = fixedUpdatedAt
	f.records.rows[rowKey(treeID, row.Xref)] = row
	return row
}
