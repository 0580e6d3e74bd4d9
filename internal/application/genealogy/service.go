// Package genealogy is the record-management core: trees and their GEDCOM
// records, the per-record change journal, media objects, and the fan-out
// that keeps the search index and kinship graph in step with writes.
package genealogy

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/domain/tree"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

// maxMediaBytes caps a single media upload. The HTTP layer enforces its own
// request-body limit; this guards the CLI and worker paths too.
const maxMediaBytes = 32 << 20

// Events publishes record writes for the async projections. Implementations
// put SearchIndexPayload messages on the bus; the worker applies them.
type Events interface {
	IndexRecord(ctx context.Context, treeID int64, xref string, typ gedcom.RecordType) error
	DeindexRecord(ctx context.Context, treeID int64, xref string, typ gedcom.RecordType) error
	// ReindexTree asks the worker to rebuild a tree's documents from the
	// database. Reindexing a tree that no longer exists purges them.
	ReindexTree(ctx context.Context, treeID int64) error
}

// Graph keeps the kinship projection in step with record writes. The graph
// is derived data: failures are logged and repaired by the next tree sync,
// never surfaced to the writer.
type Graph interface {
	IndividualSaved(ctx context.Context, treeID int64, rec *gedcom.Record) error
	IndividualRemoved(ctx context.Context, treeID int64, xref string) error
	FamilySaved(ctx context.Context, treeID int64, previous, current *gedcom.Record) error
	FamilyRemoved(ctx context.Context, treeID int64, previous *gedcom.Record) error
	TreeRemoved(ctx context.Context, treeID int64) error
}

// MediaStore is the object-storage port for uploaded media files.
type MediaStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}

// Service manages trees and records.
type Service struct {
	trees   tree.TreeRepository
	records record.RecordRepository
	media   MediaStore
	events  Events
	graph   Graph
	log     logging.Logger
	now     func() time.Time
}

func NewService(
	trees tree.TreeRepository,
	records record.RecordRepository,
	media MediaStore,
	events Events,
	graph Graph,
	log logging.Logger,
) *Service {
	return &Service{
		trees:   trees,
		records: records,
		media:   media,
		events:  events,
		graph:   graph,
		log:     log.Named("genealogy"),
		now:     time.Now,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Trees
// ─────────────────────────────────────────────────────────────────────────────

// CreateTree makes an empty tree. The name keys URLs and storage paths and
// must be unique; the title is the display string.
func (s *Service) CreateTree(ctx context.Context, name, title string, ownerID uuid.UUID) (*tree.Tree, error) {
	t, err := tree.New(name, title, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.trees.Create(ctx, t); err != nil {
		return nil, err
	}
	s.log.Info("tree created",
		logging.String("name", t.Name),
		logging.Int64("tree_id", t.ID))
	return t, nil
}

func (s *Service) GetTree(ctx context.Context, id int64) (*tree.Tree, error) {
	return s.trees.GetByID(ctx, id)
}

func (s *Service) GetTreeByName(ctx context.Context, name string) (*tree.Tree, error) {
	return s.trees.GetByName(ctx, name)
}

func (s *Service) ListTrees(ctx context.Context) ([]*tree.Tree, error) {
	return s.trees.List(ctx)
}

// RenameTree changes the display title; the URL name is immutable.
func (s *Service) RenameTree(ctx context.Context, id int64, title string) (*tree.Tree, error) {
	if title == "" {
		return nil, errors.New(errors.ErrCodeValidation, "title is required")
	}
	t, err := s.trees.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Title = title
	t.UpdatedAt = s.now().UTC()
	if err := s.trees.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTree removes the tree and everything derived from it. Records go
// with the row (cascade); the graph is dropped directly; search documents
// are purged by the reindex the worker runs against the now-missing tree.
func (s *Service) DeleteTree(ctx context.Context, id int64) error {
	t, err := s.trees.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t.Importing() {
		return errors.New(errors.ErrCodeImportInProgress, "tree is importing")
	}
	if err := s.trees.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.graph.TreeRemoved(ctx, id); err != nil {
		s.log.Warn("kinship graph not dropped", logging.Int64("tree_id", id), logging.Err(err))
	}
	if err := s.events.ReindexTree(ctx, id); err != nil {
		s.log.Warn("search purge not published", logging.Int64("tree_id", id), logging.Err(err))
	}
	s.log.Info("tree deleted", logging.Int64("tree_id", id), logging.String("name", t.Name))
	return nil
}

// SetTreePreference writes one per-tree preference; an empty value deletes it.
func (s *Service) SetTreePreference(ctx context.Context, id int64, name, value string) error {
	if name == "" {
		return errors.New(errors.ErrCodeValidation, "preference name is required")
	}
	if _, err := s.trees.GetByID(ctx, id); err != nil {
		return err
	}
	return s.trees.SetPreference(ctx, id, name, value)
}

// TreePreference reads one per-tree preference, "" when unset.
func (s *Service) TreePreference(ctx context.Context, id int64, name string) (string, error) {
	t, err := s.trees.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return t.Preference(name), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Site settings
// ─────────────────────────────────────────────────────────────────────────────

// MapProvider returns the configured geographic map provider, falling back
// to the default until an administrator picks one.
func (s *Service) MapProvider(ctx context.Context) (string, error) {
	v, err := s.trees.GetSiteSetting(ctx, tree.SettingMapProvider)
	if err != nil {
		return "", err
	}
	if v == "" {
		return tree.DefaultMapProvider, nil
	}
	return v, nil
}

// SetMapProvider stores the map provider after checking it is supported.
func (s *Service) SetMapProvider(ctx context.Context, provider string) error {
	if err := tree.ValidateMapProvider(provider); err != nil {
		return err
	}
	if err := s.trees.SetSiteSetting(ctx, tree.SettingMapProvider, provider); err != nil {
		return err
	}
	s.log.Info("map provider changed", logging.String("provider", provider))
	return nil
}

// MapProviders lists the providers an administrator may choose from.
func (s *Service) MapProviders() []string {
	return tree.MapProviders()
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared helpers
// ─────────────────────────────────────────────────────────────────────────────

// writableTree loads a tree and refuses writes while an import holds it.
func (s *Service) writableTree(ctx context.Context, treeID int64) (*tree.Tree, error) {
	t, err := s.trees.GetByID(ctx, treeID)
	if err != nil {
		return nil, err
	}
	if t.Importing() {
		return nil, errors.New(errors.ErrCodeImportInProgress, "tree is importing; record writes are blocked")
	}
	return t, nil
}

// searchable reports whether the record type has a search index.
func searchable(typ gedcom.RecordType) bool {
	return typ == gedcom.RecordIndividual || typ == gedcom.RecordSource
}

// fanOutSaved pushes one saved record at the projections. previous is nil
// on create.
func (s *Service) fanOutSaved(ctx context.Context, treeID int64, previous, current *gedcom.Record) {
	switch current.Type {
	case gedcom.RecordIndividual:
		if err := s.graph.IndividualSaved(ctx, treeID, current); err != nil {
			s.warnFanOut("kinship graph not updated", treeID, current.Xref, err)
		}
	case gedcom.RecordFamily:
		if err := s.graph.FamilySaved(ctx, treeID, previous, current); err != nil {
			s.warnFanOut("kinship graph not updated", treeID, current.Xref, err)
		}
	}
	if searchable(current.Type) {
		if err := s.events.IndexRecord(ctx, treeID, current.Xref, current.Type); err != nil {
			s.warnFanOut("search index event not published", treeID, current.Xref, err)
		}
	}
}

// fanOutRemoved pushes one deleted record at the projections.
func (s *Service) fanOutRemoved(ctx context.Context, treeID int64, previous *gedcom.Record) {
	switch previous.Type {
	case gedcom.RecordIndividual:
		if err := s.graph.IndividualRemoved(ctx, treeID, previous.Xref); err != nil {
			s.warnFanOut("kinship graph not updated", treeID, previous.Xref, err)
		}
	case gedcom.RecordFamily:
		if err := s.graph.FamilyRemoved(ctx, treeID, previous); err != nil {
			s.warnFanOut("kinship graph not updated", treeID, previous.Xref, err)
		}
	}
	if searchable(previous.Type) {
		if err := s.events.DeindexRecord(ctx, treeID, previous.Xref, previous.Type); err != nil {
			s.warnFanOut("search index event not published", treeID, previous.Xref, err)
		}
	}
}

func (s *Service) warnFanOut(msg string, treeID int64, xref string, err error) {
	s.log.Warn(msg,
		logging.Int64("tree_id", treeID),
		logging.String("xref", xref),
		logging.Err(err))
}
