package genealogy

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/domain/tree"
	"github.com/mirono/webtrees/pkg/errors"
)

func TestCreateTree(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	created, err := f.svc.CreateTree(context.Background(), "jones", "The Jones Line", owner)
	require.NoError(t, err)

	assert.NotZero(t, created.ID)
	assert.Equal(t, "jones", created.Name)
	assert.Equal(t, "The Jones Line", created.Title)
	assert.Equal(t, owner, created.OwnerID)
	assert.Equal(t, tree.ImportNone, created.ImportState)

	got, err := f.svc.GetTreeByName(context.Background(), "jones")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestCreateTree_InvalidName(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateTree(context.Background(), "Smith Family!", "title", uuid.New())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestCreateTree_DuplicateName(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateTree(context.Background(), "smith", "Another Smith", uuid.New())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDuplicateTreeName))
}

func TestRenameTree(t *testing.T) {
	f := newFixture(t)

	renamed, err := f.svc.RenameTree(context.Background(), f.tree.ID, "Smith and Allied Families")
	require.NoError(t, err)
	assert.Equal(t, "Smith and Allied Families", renamed.Title)
	assert.Equal(t, "smith", renamed.Name)
	assert.False(t, renamed.UpdatedAt.IsZero())
}

func TestRenameTree_EmptyTitle(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RenameTree(context.Background(), f.tree.ID, "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestDeleteTree(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.DeleteTree(context.Background(), f.tree.ID))

	assert.Equal(t, []int64{f.tree.ID}, f.trees.deleted)
	assert.Contains(t, f.graph.calls, "tree-removed 1")
	assert.Equal(t, []int64{f.tree.ID}, f.events.reindexed)

	_, err := f.svc.GetTree(context.Background(), f.tree.ID)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTreeNotFound))
}

func TestDeleteTree_WhileImporting(t *testing.T) {
	f := newFixture(t)
	f.tree.ImportState = tree.ImportRunning

	err := f.svc.DeleteTree(context.Background(), f.tree.ID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeImportInProgress))
	assert.Empty(t, f.trees.deleted)
	assert.Empty(t, f.graph.calls)
}

func TestDeleteTree_GraphFailureStillDeletes(t *testing.T) {
	f := newFixture(t)
	f.graph.err = errors.New(errors.ErrCodeServiceUnavailable, "neo4j down")

	require.NoError(t, f.svc.DeleteTree(context.Background(), f.tree.ID))
	assert.Equal(t, []int64{f.tree.ID}, f.trees.deleted)
}

func TestTreePreferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetTreePreference(ctx, f.tree.ID, tree.PrefContactEmail, "curator@example.com"))

	got, err := f.svc.TreePreference(ctx, f.tree.ID, tree.PrefContactEmail)
	require.NoError(t, err)
	assert.Equal(t, "curator@example.com", got)

	unset, err := f.svc.TreePreference(ctx, f.tree.ID, "no-such-pref")
	require.NoError(t, err)
	assert.Empty(t, unset)
}

func TestSetTreePreference_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.SetTreePreference(ctx, f.tree.ID, "", "x")
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	err = f.svc.SetTreePreference(ctx, 404, tree.PrefContactEmail, "x")
	assert.True(t, errors.IsCode(err, errors.ErrCodeTreeNotFound))
}

func TestMapProvider_DefaultsUntilSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.svc.MapProvider(ctx)
	require.NoError(t, err)
	assert.Equal(t, tree.DefaultMapProvider, got)

	require.NoError(t, f.svc.SetMapProvider(ctx, "mapbox"))

	got, err = f.svc.MapProvider(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mapbox", got)
}

func TestSetMapProvider_Unsupported(t *testing.T) {
	f := newFixture(t)

	err := f.svc.SetMapProvider(context.Background(), "gmaps")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	assert.Empty(t, f.trees.settings)
}

func TestMapProviders(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{"openstreetmap", "mapbox", "bingmaps", "here"}, f.svc.MapProviders())
}
