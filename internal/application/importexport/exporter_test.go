package importexport

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/tree"
	"github.com/mirono/webtrees/pkg/errors"
)

func seedExportFixture(t *testing.T, f *fixture) {
	// Seeded out of export order on purpose.
	f.seed(t, "0 @F1@ FAM\n1 HUSB @I1@\n1 WIFE @I2@\n")
	f.seed(t, "0 @S1@ SOUR\n1 TITL Parish register\n")
	f.seed(t, "0 @I1@ INDI\n1 NAME John /Smith/\n1 SEX M\n")
	f.seed(t, "0 @I2@ INDI\n1 NAME Mary /Jones/\n1 SEX F\n")
}

func TestExportTree(t *testing.T) {
	f := newFixture(t)
	seedExportFixture(t, f)

	result, err := f.svc.ExportTree(context.Background(), f.tree.ID)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Records)
	assert.True(t, strings.HasPrefix(result.Key, "smith/smith-"), "key: %s", result.Key)
	assert.True(t, strings.HasSuffix(result.Key, ".ged"))
	assert.Equal(t, "https://minio.example.org/exports/"+result.Key, result.URL)

	data, ok := f.exports.objects[result.Key]
	require.True(t, ok)
	assert.Equal(t, result.Bytes, len(data))
	assert.Equal(t, gedcomContentType, f.exports.contentTypes[result.Key])

	recs, err := gedcom.ParseAll(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, recs, 6, "header + 4 records + trailer")

	head := recs[0]
	assert.Equal(t, gedcom.RecordHeader, head.Type)
	assert.Equal(t, "webtrees", head.ValueOf("SOUR"))
	assert.Equal(t, "UTF-8", head.ValueOf("CHAR"))
	assert.Equal(t, "5.5.1", head.Path("GEDC", "VERS").Value)
	assert.Equal(t, gedcom.RecordTrailer, recs[len(recs)-1].Type)

	// Individuals come before the family that links them.
	var order []string
	for _, rec := range recs[1 : len(recs)-1] {
		order = append(order, rec.Xref)
	}
	assert.Equal(t, []string{"I1", "I2", "F1", "S1"}, order)
}

func TestExportTree_EmptyTree(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.ExportTree(context.Background(), f.tree.ID)
	require.NoError(t, err)
	assert.Zero(t, result.Records)

	recs, err := gedcom.ParseAll(bytes.NewReader(f.exports.objects[result.Key]))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, gedcom.RecordHeader, recs[0].Type)
	assert.Equal(t, gedcom.RecordTrailer, recs[1].Type)
}

func TestExportTree_UnsignedURLIsNotFatal(t *testing.T) {
	f := newFixture(t)
	seedExportFixture(t, f)
	f.exports.urlErr = errors.New(errors.ErrCodeStorageError, "presign refused")

	result, err := f.svc.ExportTree(context.Background(), f.tree.ID)
	require.NoError(t, err)
	assert.Empty(t, result.URL)
	assert.NotEmpty(t, result.Key)
}

func TestExportTree_BlockedDuringImport(t *testing.T) {
	f := newFixture(t)
	f.tree.ImportState = tree.ImportRunning

	_, err := f.svc.ExportTree(context.Background(), f.tree.ID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeImportInProgress))
}

func TestExportTree_StorageFailure(t *testing.T) {
	f := newFixture(t)
	seedExportFixture(t, f)
	f.exports.putErr = errors.New(errors.ErrCodeStorageError, "bucket gone")

	_, err := f.svc.ExportTree(context.Background(), f.tree.ID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeStorageError))
}

func TestWriteTree(t *testing.T) {
	f := newFixture(t)
	seedExportFixture(t, f)

	var buf bytes.Buffer
	n, err := f.svc.WriteTree(context.Background(), f.tree.ID, &buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// The output re-imports cleanly.
	recs, err := gedcom.ParseAll(&buf)
	require.NoError(t, err)
	assert.Len(t, recs, 6)
}

func TestWriteTree_UnknownTree(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	_, err := f.svc.WriteTree(context.Background(), 404, &buf)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTreeNotFound))
}
