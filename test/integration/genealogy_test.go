package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/domain/tree"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
	pgrepo "github.com/mirono/webtrees/internal/infrastructure/database/postgres/repositories"
	"github.com/mirono/webtrees/pkg/types/common"
)

func TestTreeRepository_Lifecycle(t *testing.T) {
	requireIntegration(t)
	conn := openPostgres(t)
	ctx := testContext(t)

	owner := seedUser(t, conn, "owner")
	repo := pgrepo.NewTreeRepository(conn, logging.NewNopLogger())

	tr := seedTree(t, conn, owner, "smith")
	require.NotZero(t, tr.ID)

	// Duplicate names are rejected with the dedicated code.
	err := repo.Create(ctx, &tree.Tree{Name: "smith", OwnerID: owner.ID})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDuplicateTreeName, errors.GetCode(err))

	got, err := repo.GetByName(ctx, "smith")
	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.ID)
	assert.Equal(t, owner.ID, got.OwnerID)

	// Preferences round-trip and delete on empty value.
	require.NoError(t, repo.SetPreference(ctx, tr.ID, "MEDIA_PATH", "media/"))
	got, err = repo.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "media/", got.Preferences["MEDIA_PATH"])

	require.NoError(t, repo.SetPreference(ctx, tr.ID, "MEDIA_PATH", ""))
	got, err = repo.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Preferences, "MEDIA_PATH")

	require.NoError(t, repo.SetImportState(ctx, tr.ID, tree.ImportReady, ""))
	got, err = repo.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tree.ImportReady, got.ImportState)

	require.NoError(t, repo.Delete(ctx, tr.ID))
	_, err = repo.GetByID(ctx, tr.ID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTreeNotFound, errors.GetCode(err))
}

func TestRecordRepository_CRUDWithChangeLog(t *testing.T) {
	requireIntegration(t)
	conn := openPostgres(t)
	ctx := testContext(t)

	owner := seedUser(t, conn, "editor")
	tr := seedTree(t, conn, owner, "jones")
	repo := pgrepo.NewRecordRepository(conn, logging.NewNopLogger())

	xref, err := repo.NextXref(ctx, tr.ID, gedcom.RecordIndividual)
	require.NoError(t, err)
	assert.Equal(t, "I1", xref)

	rec := &record.Record{
		TreeID:    tr.ID,
		Xref:      xref,
		Type:      gedcom.RecordIndividual,
		Gedcom:    "0 @I1@ INDI\n1 NAME Mary /Jones/\n1 SEX F\n",
		Name:      "Mary Jones",
		Surname:   "Jones",
		Sex:       "F",
		UpdatedBy: owner.ID,
	}
	require.NoError(t, repo.Create(ctx, rec))
	require.NoError(t, repo.AddChange(ctx, &record.Change{
		TreeID: tr.ID, Xref: xref, NewGedcom: rec.Gedcom, Author: owner.ID,
	}))

	// Same xref in the same tree collides; the next allocation skips it.
	err = repo.Create(ctx, &record.Record{
		TreeID: tr.ID, Xref: xref, Type: gedcom.RecordIndividual,
		Gedcom: "0 @I1@ INDI\n", UpdatedBy: owner.ID,
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDuplicateXref, errors.GetCode(err))

	next, err := repo.NextXref(ctx, tr.ID, gedcom.RecordIndividual)
	require.NoError(t, err)
	assert.Equal(t, "I2", next)

	got, err := repo.Get(ctx, tr.ID, xref)
	require.NoError(t, err)
	assert.Equal(t, "Jones", got.Surname)

	old := got.Gedcom
	got.Gedcom = "0 @I1@ INDI\n1 NAME Mary /Smith/\n1 SEX F\n"
	got.Name = "Mary Smith"
	got.Surname = "Smith"
	require.NoError(t, repo.Update(ctx, got))
	require.NoError(t, repo.AddChange(ctx, &record.Change{
		TreeID: tr.ID, Xref: xref, OldGedcom: old, NewGedcom: got.Gedcom, Author: owner.ID,
	}))

	changes, err := repo.ListChanges(ctx, tr.ID, xref, 10)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Empty(t, changes[1].OldGedcom)
	assert.Equal(t, got.Gedcom, changes[0].NewGedcom)

	counts, err := repo.CountByType(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[gedcom.RecordIndividual])

	require.NoError(t, repo.Delete(ctx, tr.ID, xref))
	_, err = repo.Get(ctx, tr.ID, xref)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRecordNotFound, errors.GetCode(err))
}

func TestRecordRepository_ListFilters(t *testing.T) {
	requireIntegration(t)
	conn := openPostgres(t)
	ctx := testContext(t)

	owner := seedUser(t, conn, "lister")
	tr := seedTree(t, conn, owner, "filters")
	repo := pgrepo.NewRecordRepository(conn, logging.NewNopLogger())

	seed := []struct {
		xref, name, surname string
		typ                 gedcom.RecordType
	}{
		{"I1", "Anna Smith", "Smith", gedcom.RecordIndividual},
		{"I2", "Bert Smith", "Smith", gedcom.RecordIndividual},
		{"I3", "Carol Jones", "Jones", gedcom.RecordIndividual},
		{"S1", "Parish register", "", gedcom.RecordSource},
	}
	for _, s := range seed {
		require.NoError(t, repo.Create(ctx, &record.Record{
			TreeID: tr.ID, Xref: s.xref, Type: s.typ,
			Gedcom: "0 @" + s.xref + "@ " + string(s.typ) + "\n",
			Name:   s.name, Surname: s.surname, UpdatedBy: owner.ID,
		}))
	}

	recs, total, err := repo.List(ctx, record.ListFilter{
		TreeID: tr.ID,
		Type:   gedcom.RecordIndividual,
		Page:   common.Pagination{Page: 1, PageSize: 10},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, recs, 3)

	recs, total, err = repo.List(ctx, record.ListFilter{
		TreeID: tr.ID,
		Name:   "smith",
		Page:   common.Pagination{Page: 1, PageSize: 1},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, recs, 1)
}
