package genealogy

import (
	"context"
	"fmt"
	"sort"
	"strconv"
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

// ─────────────────────────────────────────────────────────────────────────────
// Tree repository stub
// ─────────────────────────────────────────────────────────────────────────────

type stubTrees struct {
	byID     map[int64]*tree.Tree
	nextID   int64
	deleted  []int64
	prefs    map[string]string // "id:name" → value
	settings map[string]string
	err      error
}

func newStubTrees(seed ...*tree.Tree) *stubTrees {
	s := &stubTrees{
		byID:     make(map[int64]*tree.Tree),
		nextID:   1,
		prefs:    make(map[string]string),
		settings: make(map[string]string),
	}
	for _, t := range seed {
		if t.ID == 0 {
			t.ID = s.nextID
		}
		s.byID[t.ID] = t
		if t.ID >= s.nextID {
			s.nextID = t.ID + 1
		}
	}
	return s
}

func (s *stubTrees) Create(_ context.Context, t *tree.Tree) error {
	if s.err != nil {
		return s.err
	}
	for _, existing := range s.byID {
		if existing.Name == t.Name {
			return errors.New(errors.ErrCodeDuplicateTreeName, "tree name already exists")
		}
	}
	t.ID = s.nextID
	s.nextID++
	s.byID[t.ID] = t
	return nil
}

func (s *stubTrees) GetByID(_ context.Context, id int64) (*tree.Tree, error) {
	if s.err != nil {
		return nil, s.err
	}
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

func (s *stubTrees) List(_ context.Context) ([]*tree.Tree, error) {
	out := make([]*tree.Tree, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *stubTrees) Update(_ context.Context, t *tree.Tree) error {
	if s.err != nil {
		return s.err
	}
	s.byID[t.ID] = t
	return nil
}

func (s *stubTrees) Delete(_ context.Context, id int64) error {
	delete(s.byID, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubTrees) SetPreference(_ context.Context, id int64, name, value string) error {
	s.prefs[fmt.Sprintf("%d:%s", id, name)] = value
	if t, ok := s.byID[id]; ok {
		t.SetPreference(name, value)
	}
	return nil
}

func (s *stubTrees) SetImportState(_ context.Context, id int64, state tree.ImportState, importErr string) error {
	t, ok := s.byID[id]
	if !ok {
		return errors.New(errors.ErrCodeTreeNotFound, "tree not found")
	}
	t.ImportState = state
	t.ImportError = importErr
	return nil
}

func (s *stubTrees) GetSiteSetting(_ context.Context, name string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.settings[name], nil
}

func (s *stubTrees) SetSiteSetting(_ context.Context, name, value string) error {
	if s.err != nil {
		return s.err
	}
	s.settings[name] = value
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Record repository stub
// ─────────────────────────────────────────────────────────────────────────────

type stubRecords struct {
	rows      map[string]*record.Record
	changes   []*record.Change
	nextID    int64
	txCount   int
	createErr error
	err       error
}

func newStubRecords() *stubRecords {
	return &stubRecords{rows: make(map[string]*record.Record), nextID: 1}
}

func rowKey(treeID int64, xref string) string {
	return fmt.Sprintf("%d:%s", treeID, xref)
}

func (s *stubRecords) Create(_ context.Context, r *record.Record) error {
	if s.createErr != nil {
		return s.createErr
	}
	if s.err != nil {
		return s.err
	}
	key := rowKey(r.TreeID, r.Xref)
	if _, exists := s.rows[key]; exists {
		return errors.New(errors.ErrCodeDuplicateXref, "xref already exists")
	}
	r.ID = s.nextID
	s.nextID++
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	s.rows[key] = r
	return nil
}

func (s *stubRecords) Get(_ context.Context, treeID int64, xref string) (*record.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	if r, ok := s.rows[rowKey(treeID, xref)]; ok {
		return r, nil
	}
	return nil, errors.New(errors.ErrCodeRecordNotFound, "record not found")
}

func (s *stubRecords) Update(_ context.Context, r *record.Record) error {
	if s.err != nil {
		return s.err
	}
	key := rowKey(r.TreeID, r.Xref)
	if _, ok := s.rows[key]; !ok {
		return errors.New(errors.ErrCodeRecordNotFound, "record not found")
	}
	r.UpdatedAt = time.Now().UTC()
	s.rows[key] = r
	return nil
}

func (s *stubRecords) Delete(_ context.Context, treeID int64, xref string) error {
	key := rowKey(treeID, xref)
	if _, ok := s.rows[key]; !ok {
		return errors.New(errors.ErrCodeRecordNotFound, "record not found")
	}
	delete(s.rows, key)
	return nil
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
		if filter.Name != "" && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(filter.Name)) {
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
	if s.err != nil {
		return "", s.err
	}
	prefix := typ.XrefPrefix()
	max := 0
	for _, r := range s.rows {
		if r.TreeID != treeID || r.Type != typ {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(r.Xref, prefix)); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%d", prefix, max+1), nil
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

func (s *stubRecords) AddChange(_ context.Context, c *record.Change) error {
	c.ID = int64(len(s.changes) + 1)
	c.CreatedAt = time.Now().UTC()
	s.changes = append(s.changes, c)
	return nil
}

func (s *stubRecords) ListChanges(_ context.Context, treeID int64, xref string, limit int) ([]*record.Change, error) {
	var out []*record.Change
	for i := len(s.changes) - 1; i >= 0 && len(out) < limit; i-- {
		c := s.changes[i]
		if c.TreeID == treeID && c.Xref == xref {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubRecords) WithTx(_ context.Context, fn func(record.RecordRepository) error) error {
	s.txCount++
	return fn(s)
}

// changesFor filters journal entries of one record in insertion order.
func (s *stubRecords) changesFor(treeID int64, xref string) []*record.Change {
	var out []*record.Change
	for _, c := range s.changes {
		if c.TreeID == treeID && c.Xref == xref {
			out = append(out, c)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Projection stubs
// ─────────────────────────────────────────────────────────────────────────────

type stubEvents struct {
	indexed   []string
	deindexed []string
	reindexed []int64
	err       error
}

func (s *stubEvents) IndexRecord(_ context.Context, treeID int64, xref string, _ gedcom.RecordType) error {
	if s.err != nil {
		return s.err
	}
	s.indexed = append(s.indexed, rowKey(treeID, xref))
	return nil
}

func (s *stubEvents) DeindexRecord(_ context.Context, treeID int64, xref string, _ gedcom.RecordType) error {
	if s.err != nil {
		return s.err
	}
	s.deindexed = append(s.deindexed, rowKey(treeID, xref))
	return nil
}

func (s *stubEvents) ReindexTree(_ context.Context, treeID int64) error {
	if s.err != nil {
		return s.err
	}
	s.reindexed = append(s.reindexed, treeID)
	return nil
}

type stubGraph struct {
	calls []string
	err   error
}

func (s *stubGraph) record(format string, args ...interface{}) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
	return nil
}

func (s *stubGraph) IndividualSaved(_ context.Context, treeID int64, rec *gedcom.Record) error {
	return s.record("individual-saved %d:%s", treeID, rec.Xref)
}

func (s *stubGraph) IndividualRemoved(_ context.Context, treeID int64, xref string) error {
	return s.record("individual-removed %d:%s", treeID, xref)
}

func (s *stubGraph) FamilySaved(_ context.Context, treeID int64, previous, current *gedcom.Record) error {
	prev := "-"
	if previous != nil {
		prev = previous.Xref
	}
	return s.record("family-saved %d:%s prev=%s", treeID, current.Xref, prev)
}

func (s *stubGraph) FamilyRemoved(_ context.Context, treeID int64, previous *gedcom.Record) error {
	return s.record("family-removed %d:%s", treeID, previous.Xref)
}

func (s *stubGraph) TreeRemoved(_ context.Context, treeID int64) error {
	return s.record("tree-removed %d", treeID)
}

type stubMedia struct {
	objects      map[string][]byte
	contentTypes map[string]string
	deleted      []string
	putErr       error
	getErr       error
}

func newStubMedia() *stubMedia {
	return &stubMedia{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (s *stubMedia) Put(_ context.Context, key, contentType string, data []byte) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[key] = data
	s.contentTypes[key] = contentType
	return nil
}

func (s *stubMedia) Get(_ context.Context, key string) ([]byte, string, error) {
	if s.getErr != nil {
		return nil, "", s.getErr
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, "", errors.New(errors.ErrCodeNotFound, "object not found")
	}
	return data, s.contentTypes[key], nil
}

func (s *stubMedia) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────────────────────────────────────

type fixture struct {
	svc     *Service
	trees   *stubTrees
	records *stubRecords
	media   *stubMedia
	events  *stubEvents
	graph   *stubGraph
	tree    *tree.Tree
	author  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	owner := uuid.New()
	tr, err := tree.New("smith", "The Smith Family", owner)
	require.NoError(t, err)
	tr.ImportState = tree.ImportReady

	f := &fixture{
		trees:   newStubTrees(tr),
		records: newStubRecords(),
		media:   newStubMedia(),
		events:  &stubEvents{},
		graph:   &stubGraph{},
		tree:    tr,
		author:  uuid.New(),
	}
	f.svc = NewService(f.trees, f.records, f.media, f.events, f.graph, logging.NewNopLogger())
	return f
}

// seed stores a record directly, bypassing the service.
func (f *fixture) seed(t *testing.T, gedcomText string) *record.Record {
	t.Helper()
	recs, err := gedcom.ParseAll(strings.NewReader(gedcomText))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	row, err := record.FromGedcom(f.tree.ID, recs[0])
	require.NoError(t, err)
	require.NoError(t, f.records.Create(context.Background(), row))
	return row
}
