package kinship

import (
	"context"

	"github.com/mirono/webtrees/internal/domain/family"
	"github.com/mirono/webtrees/internal/domain/gedcom"
)

// The methods below are the incremental write path: the genealogy service
// fans record writes out here so single edits do not force a full sync.

// IndividualSaved creates or refreshes one individual node.
func (s *Service) IndividualSaved(ctx context.Context, treeID int64, rec *gedcom.Record) error {
	m, err := family.MemberFromRecord(rec)
	if err != nil {
		return err
	}
	return s.store.UpsertIndividual(ctx, treeID, toPerson(m))
}

// IndividualRemoved deletes one node with every edge touching it.
func (s *Service) IndividualRemoved(ctx context.Context, treeID int64, xref string) error {
	return s.store.RemoveIndividual(ctx, treeID, xref)
}

// FamilySaved reconciles a family's edges: the previous revision's links
// come out, the current revision's go in. previous is nil on create.
func (s *Service) FamilySaved(ctx context.Context, treeID int64, previous, current *gedcom.Record) error {
	if previous != nil {
		if err := s.unlink(ctx, treeID, previous); err != nil {
			return err
		}
	}
	unit, err := family.UnitFromRecord(current)
	if err != nil {
		return err
	}
	return s.store.LinkFamily(ctx, treeID, toLinks(unit.Links()))
}

// FamilyRemoved removes the edges a deleted family contributed.
func (s *Service) FamilyRemoved(ctx context.Context, treeID int64, previous *gedcom.Record) error {
	return s.unlink(ctx, treeID, previous)
}

// TreeRemoved drops the whole projection.
func (s *Service) TreeRemoved(ctx context.Context, treeID int64) error {
	_, err := s.store.DeleteTree(ctx, treeID)
	return err
}

func (s *Service) unlink(ctx context.Context, treeID int64, rec *gedcom.Record) error {
	unit, err := family.UnitFromRecord(rec)
	if err != nil {
		return err
	}
	return s.store.UnlinkFamily(ctx, treeID, toLinks(unit.Links()))
}
