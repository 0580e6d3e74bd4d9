package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/infrastructure/search/opensearch"
	"github.com/mirono/webtrees/pkg/errors"
)

const (
	johnGedcom = "0 @I1@ INDI\n" +
		"1 NAME John /Smith/\n" +
		"1 SEX M\n" +
		"1 BIRT\n" +
		"2 DATE 12 MAR 1901\n" +
		"2 PLAC Leeds, Yorkshire\n"

	maryGedcom = "0 @I2@ INDI\n" +
		"1 NAME Mary /Jones/\n" +
		"1 SEX F\n"

	parishGedcom = "0 @S1@ SOUR\n" +
		"1 TITL Parish Register\n" +
		"1 AUTH J. Archivist\n" +
		"1 TEXT Baptisms 1890-1910\n"

	smithFamily = "0 @F1@ FAM\n" +
		"1 HUSB @I1@\n" +
		"1 WIFE @I2@\n"
)

func TestIndexIndividual(t *testing.T) {
	f := newFixture(t)
	row := f.seed(t, 1, johnGedcom)

	err := f.svc.Index(context.Background(), 1, "I1", gedcom.RecordIndividual)
	require.NoError(t, err)

	doc, ok := f.indexer.docs["individuals/1:I1"].(opensearch.IndividualDocument)
	require.True(t, ok, "expected an individual document, got %T", f.indexer.docs["individuals/1:I1"])
	assert.Equal(t, int64(1), doc.TreeID)
	assert.Equal(t, "I1", doc.Xref)
	assert.Equal(t, []string{"John Smith"}, doc.Names)
	assert.Equal(t, "John", doc.Given)
	assert.Equal(t, "Smith", doc.Surname)
	assert.Equal(t, "M", doc.Sex)
	assert.Equal(t, 1901, doc.BirthYear)
	assert.Equal(t, "Leeds, Yorkshire", doc.BirthPlace)
	assert.Equal(t, row.UpdatedAt, doc.UpdatedAt)
}

func TestIndexSource(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1, parishGedcom)

	err := f.svc.Index(context.Background(), 1, "S1", gedcom.RecordSource)
	require.NoError(t, err)

	doc, ok := f.indexer.docs["sources/1:S1"].(opensearch.SourceDocument)
	require.True(t, ok)
	assert.Equal(t, "Parish Register", doc.Title)
	assert.Equal(t, "J. Archivist", doc.Author)
	assert.Equal(t, "Baptisms 1890-1910", doc.Text)
}

func TestIndex_RowGoneRemovesDocument(t *testing.T) {
	f := newFixture(t)

	// The record was deleted between the event being published and applied.
	err := f.svc.Index(context.Background(), 1, "I9", gedcom.RecordIndividual)
	require.NoError(t, err)

	assert.Empty(t, f.indexer.docs)
	assert.Equal(t, []string{"individuals/1:I9"}, f.indexer.deleted)
}

func TestIndex_UnindexedTypeIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1, smithFamily)

	err := f.svc.Index(context.Background(), 1, "F1", gedcom.RecordFamily)
	require.NoError(t, err)

	assert.Empty(t, f.indexer.docs)
	assert.Empty(t, f.indexer.deleted)
}

func TestIndex_StorageFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1, johnGedcom)
	f.indexer.indexErr = errors.New(errors.ErrCodeSearchIndexFailed, "cluster unreachable")

	err := f.svc.Index(context.Background(), 1, "I1", gedcom.RecordIndividual)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSearchIndexFailed))
}

func TestDeleteDocument(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Delete(context.Background(), 1, "I1", gedcom.RecordIndividual)
	require.NoError(t, err)

	assert.Equal(t, []string{"individuals/1:I1"}, f.indexer.deleted)
}

func TestDelete_MissingDocumentIsFine(t *testing.T) {
	f := newFixture(t)
	f.indexer.deleteErr = opensearch.ErrDocumentNotFound

	err := f.svc.Delete(context.Background(), 1, "I1", gedcom.RecordIndividual)
	assert.NoError(t, err)
}

func TestDelete_UnindexedTypeIsNoOp(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Delete(context.Background(), 1, "F1", gedcom.RecordFamily)
	require.NoError(t, err)
	assert.Empty(t, f.indexer.deleted)
}

func TestDelete_StorageFailure(t *testing.T) {
	f := newFixture(t)
	f.indexer.deleteErr = errors.New(errors.ErrCodeSearchIndexFailed, "cluster unreachable")

	err := f.svc.Delete(context.Background(), 1, "I1", gedcom.RecordIndividual)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSearchIndexFailed))
}

func TestReindexTree(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1, johnGedcom)
	f.seed(t, 1, maryGedcom)
	f.seed(t, 1, parishGedcom)
	f.seed(t, 1, smithFamily) // families are not indexed
	f.indexer.purged = map[string]int64{"individuals": 2, "sources": 1}

	res, err := f.svc.ReindexTree(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.TreeID)
	assert.Equal(t, int64(3), res.Purged)
	assert.Equal(t, 3, res.Indexed)
	assert.Equal(t, 0, res.Failed)

	// Purge first, both indexes, then one bulk load per record type.
	assert.Equal(t, []string{"individuals:1", "sources:1"}, f.indexer.treeDeletes)
	require.Len(t, f.indexer.bulks, 2)
	assert.Equal(t, "individuals", f.indexer.bulks[0].index)
	assert.Equal(t, []string{"1:I1", "1:I2"}, f.indexer.bulks[0].ids)
	assert.Equal(t, "sources", f.indexer.bulks[1].index)
	assert.Equal(t, []string{"1:S1"}, f.indexer.bulks[1].ids)
}

func TestReindexTree_EmptyTreePurgesOnly(t *testing.T) {
	f := newFixture(t)
	f.indexer.purged = map[string]int64{"individuals": 4}

	res, err := f.svc.ReindexTree(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, int64(4), res.Purged)
	assert.Equal(t, 0, res.Indexed)
	assert.Empty(t, f.indexer.bulks)
}

func TestReindexTree_CountsRejectedDocuments(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1, johnGedcom)
	f.seed(t, 1, maryGedcom)
	f.indexer.bulkResults = []*opensearch.BulkResult{{
		Succeeded: 1,
		Failed:    1,
		Errors:    []opensearch.BulkItemError{{DocID: "1:I2", Reason: "mapper_parsing_exception"}},
	}}

	res, err := f.svc.ReindexTree(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 1, res.Failed)
}

func TestReindexTree_SkipsUnparsableRow(t *testing.T) {
	f := newFixture(t)
	row := f.seed(t, 1, johnGedcom)
	row.Gedcom = "0 @I1@ INDI\n2 GIVN John\n" // level jump, no longer parses
	f.seed(t, 1, parishGedcom)

	res, err := f.svc.ReindexTree(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, f.indexer.bulks, 1)
	assert.Equal(t, "sources", f.indexer.bulks[0].index)
}

func TestReindexTree_PurgeFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1, johnGedcom)
	f.indexer.purgeErr = errors.New(errors.ErrCodeSearchIndexFailed, "cluster unreachable")

	_, err := f.svc.ReindexTree(context.Background(), 1)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSearchIndexFailed))
	assert.Empty(t, f.indexer.bulks)
}

func TestReindexTree_ListFailure(t *testing.T) {
	f := newFixture(t)
	f.records.err = errors.New(errors.ErrCodeDatabaseError, "connection reset")

	_, err := f.svc.ReindexTree(context.Background(), 1)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))
}
