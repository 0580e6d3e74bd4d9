package importexport

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/domain/tree"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

type stubTrees struct {
	byID   map[int64]*tree.Tree
	states []string // "state:error" transitions in order
	prefs  map[string]string
}

func newStubTrees(seed ...*tree.Tree) *stubTrees {
	s := &stubTrees{byID: make(map[int64]*tree.Tree), prefs: make(map[string]string)}
	for i, t := range seed {
		if t.ID == 0 {
			t.ID = int64(i + 1)
		}
		s.byID[t.ID] = t
	}
	return s
}

func (s *stubTrees) Create(_ context.Context, t *tree.Tree) error {
	t.ID = int64(len(s.byID) + 1)
	s.byID[t.ID] = t
	return nil
}

func (s *stubTrees) GetByID(_ context.Context, id int64) (*tree.Tree, error) {
	if t, ok := s.byID[id]; ok {
		return t, nil
	}
	return nil, errors.New(errors.ErrCodeTreeNotFound, "tree not found")
}

func (s *stubTrees) GetByName(_ context.Context, name string) (*tree.Tree, error) {
	for _, t := range s.byID {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, errors.New(errors.ErrCodeTreeNotFound, "tree not found")
}

func (s *stubTrees) List(_ context.Context) ([]*tree.Tree, error) { return nil, nil }

func (s *stubTrees) Update(_ context.Context, t *tree.Tree) error {
	s.byID[t.ID] = t
	return nil
}

func (s *stubTrees) Delete(_ context.Context, id int64) error {
	delete(s.byID, id)
	return nil
}

func (s *stubTrees) SetPreference(_ context.Context, id int64, name, value string) error {
	s.prefs[fmt.Sprintf("%d:%s", id, name)] = value
	return nil
}

func (s *stubTrees) SetImportState(_ context.Context, id int64, state tree.ImportState, importErr string) error {
	t, ok := s.byID[id]
	if !ok {
		return errors.New(errors.ErrCodeTreeNotFound, "tree not found")
	}
	t.ImportState = state
	t.ImportError = importErr
	s.states = append(s.states, fmt.Sprintf("%s:%s", state, importErr))
	return nil
}

func (s *stubTrees) GetSiteSetting(_ context.Context, _ string) (string, error) { return "", nil }
func (s *stubTrees) SetSiteSetting(_ context.Context, _, _ string) error        { return nil }

type stubRecords struct {
	rows      map[string]*record.Record
	createErr error
}

func newStubRecords() *stubRecords {
	return &stubRecords{rows: make(map[string]*record.Record)}
}

func rowKey(treeID int64, xref string) string {
	return fmt.Sprintf("%d:%s", treeID, xref)
}

func (s *stubRecords) Create(_ context.Context, r *record.Record) error {
	if s.createErr != nil {
		return s.createErr
	}
	key := rowKey(r.TreeID, r.Xref)
	if _, exists := s.rows[key]; exists {
		return errors.New(errors.ErrCodeDuplicateXref, "xref already exists")
	}
	s.rows[key] = r
	return nil
}

func (s *stubRecords) Get(_ context.Context, treeID int64, xref string) (*record.Record, error) {
	if r, ok := s.rows[rowKey(treeID, xref)]; ok {
		return r, nil
	}
	return nil, errors.New(errors.ErrCodeRecordNotFound, "record not found")
}

func (s *stubRecords) Update(_ context.Context, r *record.Record) error {
	s.rows[rowKey(r.TreeID, r.Xref)] = r
	return nil
}

func (s *stubRecords) Delete(_ context.Context, treeID int64, xref string) error {
	delete(s.rows, rowKey(treeID, xref))
	return nil
}

func (s *stubRecords) List(_ context.Context, filter record.ListFilter) ([]*record.Record, int64, error) {
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

	page := filter.Page
	if page.PageSize <= 0 {
		page.Page, page.PageSize = 1, 20
	}
	start := page.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + page.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (s *stubRecords) NextXref(_ context.Context, treeID int64, typ gedcom.RecordType) (string, error) {
	return typ.XrefPrefix() + "1", nil
}

func (s *stubRecords) CountByType(_ context.Context, treeID int64) (map[gedcom.RecordType]int64, error) {
	out := make(map[gedcom.RecordType]int64)
	for _, r := range s.rows {
		if r.TreeID == treeID {
			out[r.Type]++
		}
	}
	return out, nil
}

func (s *stubRecords) AddChange(_ context.Context, c *record.Change) error { return nil }

func (s *stubRecords) ListChanges(_ context.Context, _ int64, _ string, _ int) ([]*record.Change, error) {
	return nil, nil
}

func (s *stubRecords) WithTx(_ context.Context, fn func(record.RecordRepository) error) error {
	return fn(s)
}

type stubExports struct {
	objects      map[string][]byte
	contentTypes map[string]string
	putErr       error
	urlErr       error
}

func newStubExports() *stubExports {
	return &stubExports{objects: make(map[string][]byte), contentTypes: make(map[string]string)}
}

func (s *stubExports) Put(_ context.Context, key, contentType string, data []byte) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[key] = data
	s.contentTypes[key] = contentType
	return nil
}

func (s *stubExports) PresignedURL(_ context.Context, key string) (string, error) {
	if s.urlErr != nil {
		return "", s.urlErr
	}
	return "https://minio.example.org/exports/" + key, nil
}

type stubEvents struct {
	announcements []Announcement
	err           error
}

func (s *stubEvents) ImportCompleted(_ context.Context, a Announcement) error {
	if s.err != nil {
		return s.err
	}
	s.announcements = append(s.announcements, a)
	return nil
}

type fixture struct {
	svc     *Service
	trees   *stubTrees
	records *stubRecords
	exports *stubExports
	events  *stubEvents
	tree    *tree.Tree
	author  uuid.UUID
	clock   *fakeClock
}

// fakeClock ticks one second per reading so durations come out non-zero.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tr, err := tree.New("smith", "The Smith Family", uuid.New())
	require.NoError(t, err)
	tr.ImportState = tree.ImportReady

	f := &fixture{
		trees:   newStubTrees(tr),
		records: newStubRecords(),
		exports: newStubExports(),
		events:  &stubEvents{},
		tree:    tr,
		author:  uuid.New(),
		clock:   &fakeClock{t: time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)},
	}
	f.svc = NewService(f.trees, f.records, f.exports, f.events, "webtrees", logging.NewNopLogger())
	f.svc.now = f.clock.Now
	return f
}

// seed stores records directly, bypassing the import path.
func (f *fixture) seed(t *testing.T, gedcomText string) {
	t.Helper()
	recs, err := gedcom.ParseAll(strings.NewReader(gedcomText))
	require.NoError(t, err)
	for _, rec := range recs {
		row, err := record.FromGedcom(f.tree.ID, rec)
		require.NoError(t, err)
		require.NoError(t, f.records.Create(context.Background(), row))
	}
}

// stubImporter records watcher-driven imports.
type stubImporter struct {
	calls []importCall
	err   error
}

type importCall struct {
	treeID int64
	source string
	data   string
}

func (s *stubImporter) Import(_ context.Context, treeID int64, r io.Reader, source string, _ uuid.UUID) (*ImportResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s.calls = append(s.calls, importCall{treeID: treeID, source: source, data: string(data)})
	return &ImportResult{TreeID: treeID, Total: 1}, nil
}
