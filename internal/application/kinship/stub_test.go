package kinship

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	neo4jrepo "github.com/mirono/webtrees/internal/infrastructure/database/neo4j/repositories"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
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

type syncCall struct {
	treeID  int64
	persons []neo4jrepo.Person
	links   []neo4jrepo.Link
}

type linkCall struct {
	treeID int64
	links  []neo4jrepo.Link
}

type upsertCall struct {
	treeID int64
	person neo4jrepo.Person
}

type stubStore struct {
	syncs    []syncCall
	deletes  []int64
	upserts  []upsertCall
	removals []string
	linked   []linkCall
	unlinked []linkCall

	path      *neo4jrepo.Path
	relatives []neo4jrepo.Relative
	counts    *neo4jrepo.GraphCounts

	err     error
	pathErr error
}

func (s *stubStore) SyncTree(_ context.Context, treeID int64, persons []neo4jrepo.Person, links []neo4jrepo.Link) error {
	if s.err != nil {
		return s.err
	}
	s.syncs = append(s.syncs, syncCall{treeID: treeID, persons: persons, links: links})
	return nil
}

func (s *stubStore) DeleteTree(_ context.Context, treeID int64) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.deletes = append(s.deletes, treeID)
	return 0, nil
}

func (s *stubStore) UpsertIndividual(_ context.Context, treeID int64, person neo4jrepo.Person) error {
	if s.err != nil {
		return s.err
	}
	s.upserts = append(s.upserts, upsertCall{treeID: treeID, person: person})
	return nil
}

func (s *stubStore) RemoveIndividual(_ context.Context, treeID int64, xref string) error {
	if s.err != nil {
		return s.err
	}
	s.removals = append(s.removals, rowKey(treeID, xref))
	return nil
}

func (s *stubStore) LinkFamily(_ context.Context, treeID int64, links []neo4jrepo.Link) error {
	if s.err != nil {
		return s.err
	}
	s.linked = append(s.linked, linkCall{treeID: treeID, links: links})
	return nil
}

func (s *stubStore) UnlinkFamily(_ context.Context, treeID int64, links []neo4jrepo.Link) error {
	if s.err != nil {
		return s.err
	}
	s.unlinked = append(s.unlinked, linkCall{treeID: treeID, links: links})
	return nil
}

func (s *stubStore) ShortestPath(_ context.Context, _ int64, _, _ string, _ int) (*neo4jrepo.Path, error) {
	if s.pathErr != nil {
		return nil, s.pathErr
	}
	if s.path == nil {
		return nil, errors.New(errors.ErrCodeKinshipNoPath, "no kinship path found")
	}
	return s.path, nil
}

func (s *stubStore) Ancestors(_ context.Context, _ int64, _ string, _ int) ([]neo4jrepo.Relative, error) {
	return s.relatives, s.err
}

func (s *stubStore) Descendants(_ context.Context, _ int64, _ string, _ int) ([]neo4jrepo.Relative, error) {
	return s.relatives, s.err
}

func (s *stubStore) CommonAncestors(_ context.Context, _ int64, _, _ string, _ int) ([]neo4jrepo.Relative, error) {
	return s.relatives, s.err
}

func (s *stubStore) Counts(_ context.Context, _ int64) (*neo4jrepo.GraphCounts, error) {
	return s.counts, s.err
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────────────────────────────────────

type fixture struct {
	svc     *Service
	records *stubRecords
	store   *stubStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		records: &stubRecords{rows: map[string]*record.Record{}},
		store:   &stubStore{},
	}
	f.svc = NewService(f.records, f.store, logging.NewNopLogger())
	return f
}

// seed parses one GEDCOM record and stores it as a row.
func (f *fixture) seed(t *testing.T, treeID int64, gedcomText string) *record.Record {
	t.Helper()
	rec := parseRecord(t, gedcomText)
	row, err := record.FromGedcom(treeID, rec)
	require.NoError(t, err)
	f.records.rows[rowKey(treeID, row.Xref)] = row
	return row
}

func parseRecord(t *testing.T, gedcomText string) *gedcom.Record {
	t.Helper()
	recs, err := gedcom.ParseAll(strings.NewReader(gedcomText))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0]
}
