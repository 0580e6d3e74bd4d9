package kinship

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/application/genealogy"
	neo4jrepo "github.com/mirono/webtrees/internal/infrastructure/database/neo4j/repositories"
	"github.com/mirono/webtrees/pkg/errors"
)

// The genealogy service fans record writes out through this port.
var _ genealogy.Graph = (*Service)(nil)

func TestIndividualSaved(t *testing.T) {
	f := newFixture(t)

	err := f.svc.IndividualSaved(context.Background(), 1, parseRecord(t, johnGedcom))
	require.NoError(t, err)

	require.Len(t, f.store.upserts, 1)
	assert.Equal(t, int64(1), f.store.upserts[0].treeID)
	assert.Equal(t, neo4jrepo.Person{Xref: "I1", Name: "John Smith", Sex: "M", BirthYear: 1901}, f.store.upserts[0].person)
}

func TestIndividualSaved_WrongType(t *testing.T) {
	f := newFixture(t)

	err := f.svc.IndividualSaved(context.Background(), 1, parseRecord(t, smithFamily))
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	assert.Empty(t, f.store.upserts)
}

func TestIndividualRemoved(t *testing.T) {
	f := newFixture(t)

	err := f.svc.IndividualRemoved(context.Background(), 1, "I1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1:I1"}, f.store.removals)
}

func TestFamilySaved_Create(t *testing.T) {
	f := newFixture(t)

	err := f.svc.FamilySaved(context.Background(), 1, nil, parseRecord(t, smithFamily))
	require.NoError(t, err)

	assert.Empty(t, f.store.unlinked)
	require.Len(t, f.store.linked, 1)
	assert.Equal(t, []neo4jrepo.Link{
		{FromXref: "I1", ToXref: "I3", Type: neo4jrepo.LinkFather},
		{FromXref: "I2", ToXref: "I3", Type: neo4jrepo.LinkMother},
		{FromXref: "I1", ToXref: "I2", Type: neo4jrepo.LinkSpouse},
	}, f.store.linked[0].links)
}

func TestFamilySaved_UpdateReplacesEdges(t *testing.T) {
	f := newFixture(t)
	previous := parseRecord(t, "0 @F1@ FAM\n1 HUSB @I1@\n1 CHIL @I3@\n")
	current := parseRecord(t, smithFamily)

	err := f.svc.FamilySaved(context.Background(), 1, previous, current)
	require.NoError(t, err)

	require.Len(t, f.store.unlinked, 1)
	assert.Equal(t, []neo4jrepo.Link{
		{FromXref: "I1", ToXref: "I3", Type: neo4jrepo.LinkFather},
	}, f.store.unlinked[0].links)

	require.Len(t, f.store.linked, 1)
	assert.Len(t, f.store.linked[0].links, 3)
}

func TestFamilyRemoved(t *testing.T) {
	f := newFixture(t)

	err := f.svc.FamilyRemoved(context.Background(), 1, parseRecord(t, smithFamily))
	require.NoError(t, err)

	require.Len(t, f.store.unlinked, 1)
	assert.Len(t, f.store.unlinked[0].links, 3)
	assert.Empty(t, f.store.linked)
}

func TestTreeRemoved(t *testing.T) {
	f := newFixture(t)

	err := f.svc.TreeRemoved(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, f.store.deletes)
}

func TestGraphWrites_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.err = errors.New(errors.ErrCodeKinshipGraphFailed, "bolt connection refused")

	err := f.svc.IndividualSaved(context.Background(), 1, parseRecord(t, johnGedcom))
	assert.True(t, errors.IsCode(err, errors.ErrCodeKinshipGraphFailed))

	err = f.svc.FamilySaved(context.Background(), 1, nil, parseRecord(t, smithFamily))
	assert.True(t, errors.IsCode(err, errors.ErrCodeKinshipGraphFailed))
}
