// Package kinship answers relationship questions on the graph projection of
// a tree and keeps that projection in step with record writes. The graph is
// derived data: a full tree sync after every import makes each incremental
// update safe to lose.
package kinship

import (
	"context"

	"github.com/mirono/webtrees/internal/domain/family"
	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	neo4jrepo "github.com/mirono/webtrees/internal/infrastructure/database/neo4j/repositories"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/types/common"
)

// syncPageSize is the database read window during a tree sync.
const syncPageSize = 500

// Store is the graph port. The neo4j kinship repository satisfies it;
// EnsureConstraints stays with the binaries that own startup.
type Store interface {
	SyncTree(ctx context.Context, treeID int64, persons []neo4jrepo.Person, links []neo4jrepo.Link) error
	DeleteTree(ctx context.Context, treeID int64) (int64, error)
	UpsertIndividual(ctx context.Context, treeID int64, person neo4jrepo.Person) error
	RemoveIndividual(ctx context.Context, treeID int64, xref string) error
	LinkFamily(ctx context.Context, treeID int64, links []neo4jrepo.Link) error
	UnlinkFamily(ctx context.Context, treeID int64, links []neo4jrepo.Link) error
	ShortestPath(ctx context.Context, treeID int64, fromXref, toXref string, maxDepth int) (*neo4jrepo.Path, error)
	Ancestors(ctx context.Context, treeID int64, xref string, generations int) ([]neo4jrepo.Relative, error)
	Descendants(ctx context.Context, treeID int64, xref string, generations int) ([]neo4jrepo.Relative, error)
	CommonAncestors(ctx context.Context, treeID int64, xrefA, xrefB string, limit int) ([]neo4jrepo.Relative, error)
	Counts(ctx context.Context, treeID int64) (*neo4jrepo.GraphCounts, error)
}

// Records is the slice of the record repository a tree sync reads.
type Records interface {
	List(ctx context.Context, filter record.ListFilter) ([]*record.Record, int64, error)
}

// SyncResult summarizes one tree sync.
type SyncResult struct {
	TreeID  int64 `json:"tree_id"`
	Persons int   `json:"persons"`
	Links   int   `json:"links"`
}

// Service maintains and queries the kinship graph.
type Service struct {
	records Records
	store   Store
	log     logging.Logger
}

func NewService(records Records, store Store, log logging.Logger) *Service {
	return &Service{
		records: records,
		store:   store,
		log:     log.Named("kinship"),
	}
}

// SyncTree rebuilds one tree's graph wholesale from the record store. Run
// after an import, or whenever the incremental updates are in doubt.
func (s *Service) SyncTree(ctx context.Context, treeID int64) (*SyncResult, error) {
	proj, err := family.LoadProjection(ctx, rowReader{records: s.records, log: s.log}, treeID)
	if err != nil {
		return nil, err
	}

	persons := make([]neo4jrepo.Person, len(proj.Members))
	for i, m := range proj.Members {
		persons[i] = toPerson(m)
	}
	if err := s.store.SyncTree(ctx, treeID, persons, toLinks(proj.Links)); err != nil {
		return nil, err
	}

	s.log.Info("kinship graph synced",
		logging.Int64("tree_id", treeID),
		logging.Int("persons", len(persons)),
		logging.Int("links", len(proj.Links)))
	return &SyncResult{TreeID: treeID, Persons: len(persons), Links: len(proj.Links)}, nil
}

// rowReader adapts the record repository to the family loader, parsing
// stored rows page by page.
type rowReader struct {
	records Records
	log     logging.Logger
}

func (r rowReader) RecordsByType(ctx context.Context, treeID int64, typ gedcom.RecordType) ([]*gedcom.Record, error) {
	var out []*gedcom.Record
	for page := 1; ; page++ {
		rows, total, err := r.records.List(ctx, record.ListFilter{
			TreeID: treeID,
			Type:   typ,
			Page:   common.Pagination{Page: page, PageSize: syncPageSize},
		})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return out, nil
		}
		for _, row := range rows {
			rec, err := row.Parse()
			if err != nil {
				// One corrupt row must not sink the whole sync.
				r.log.Warn("record skipped during graph sync",
					logging.Int64("tree_id", treeID),
					logging.String("xref", row.Xref),
					logging.Err(err))
				continue
			}
			out = append(out, rec)
		}
		if int64(page*syncPageSize) >= total {
			return out, nil
		}
	}
}

func toPerson(m family.Member) neo4jrepo.Person {
	return neo4jrepo.Person{Xref: m.Xref, Name: m.Name, Sex: m.Sex, BirthYear: m.BirthYear}
}

func toLinks(links []family.Link) []neo4jrepo.Link {
	out := make([]neo4jrepo.Link, len(links))
	for i, l := range links {
		out[i] = neo4jrepo.Link{FromXref: l.FromXref, ToXref: l.ToXref, Type: string(l.Kind)}
	}
	return out
}
