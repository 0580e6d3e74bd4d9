package repositories

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

func newTestRepo() (KinshipRepository, *stubQuerier, *stubTransaction) {
	q, tx := newStubQuerier()
	return NewKinshipRepository(q, logging.NewNopLogger()), q, tx
}

func TestKinshipRepo_EnsureConstraints(t *testing.T) {
	repo, q, tx := newTestRepo()

	err := repo.EnsureConstraints(context.Background())
	require.NoError(t, err)

	require.Len(t, tx.calls, 2)
	assert.Contains(t, tx.calls[0].Cypher, "CREATE CONSTRAINT individual_key")
	assert.Contains(t, tx.calls[1].Cypher, "CREATE INDEX individual_tree")
	assert.Equal(t, []string{"write", "write"}, q.modes)
}

func TestKinshipRepo_SyncTree(t *testing.T) {
	repo, q, tx := newTestRepo()
	tx.queueRecords(newRecord([]string{"deleted"}, []any{int64(0)}))

	persons := []Person{
		{Xref: "I1", Name: "John Smith", Sex: "M", BirthYear: 1820},
		{Xref: "I2", Name: "Mary Jones", Sex: "F", BirthYear: 1825},
		{Xref: "I3", Name: "Emma Smith", Sex: "F", BirthYear: 1850},
	}
	links := []Link{
		{FromXref: "I1", ToXref: "I3", Type: LinkFather},
		{FromXref: "I2", ToXref: "I3", Type: LinkMother},
		{FromXref: "I1", ToXref: "I2", Type: LinkSpouse},
	}

	err := repo.SyncTree(context.Background(), 5, persons, links)
	require.NoError(t, err)

	// delete, node batch, then one statement per link type
	require.Len(t, tx.calls, 5)
	assert.Contains(t, tx.calls[0].Cypher, "DETACH DELETE")
	assert.Contains(t, tx.calls[1].Cypher, "CREATE (n:Individual")
	assert.Contains(t, tx.calls[2].Cypher, "FATHER_OF")
	assert.Contains(t, tx.calls[3].Cypher, "MOTHER_OF")
	assert.Contains(t, tx.calls[4].Cypher, "SPOUSE_OF")
	for _, mode := range q.modes {
		assert.Equal(t, "write", mode)
	}

	rows, ok := tx.calls[1].Params["rows"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, rows, 3)
	assert.Equal(t, "5:I1", rows[0]["key"])
	assert.Equal(t, "John Smith", rows[0]["name"])
	assert.Equal(t, int64(5), tx.calls[1].Params["tree_id"])

	fatherRows, ok := tx.calls[2].Params["rows"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, fatherRows, 1)
	assert.Equal(t, "5:I1", fatherRows[0]["from"])
	assert.Equal(t, "5:I3", fatherRows[0]["to"])
}

func TestKinshipRepo_SyncTree_OnlySpouseLinks(t *testing.T) {
	repo, _, tx := newTestRepo()
	tx.queueRecords(newRecord([]string{"deleted"}, []any{int64(2)}))

	persons := []Person{{Xref: "I1"}, {Xref: "I2"}}
	links := []Link{{FromXref: "I1", ToXref: "I2", Type: LinkSpouse}}

	err := repo.SyncTree(context.Background(), 1, persons, links)
	require.NoError(t, err)

	// no father/mother statements when those types are absent
	require.Len(t, tx.calls, 3)
	assert.Contains(t, tx.calls[2].Cypher, "SPOUSE_OF")
}

func TestKinshipRepo_SyncTree_EmptyTree(t *testing.T) {
	repo, _, tx := newTestRepo()
	tx.queueRecords(newRecord([]string{"deleted"}, []any{int64(9)}))

	err := repo.SyncTree(context.Background(), 1, nil, nil)
	require.NoError(t, err)

	require.Len(t, tx.calls, 1)
	assert.Contains(t, tx.calls[0].Cypher, "DETACH DELETE")
}

func TestKinshipRepo_DeleteTree(t *testing.T) {
	repo, _, tx := newTestRepo()
	tx.queueRecords(newRecord([]string{"deleted"}, []any{int64(7)}))

	deleted, err := repo.DeleteTree(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	assert.Equal(t, int64(3), tx.calls[0].Params["tree_id"])
}

func TestKinshipRepo_UpsertIndividual(t *testing.T) {
	repo, q, tx := newTestRepo()

	err := repo.UpsertIndividual(context.Background(), 5, Person{
		Xref: "I9", Name: "Ada King", Sex: "F", BirthYear: 1815,
	})
	require.NoError(t, err)

	require.Len(t, tx.calls, 1)
	assert.Contains(t, tx.calls[0].Cypher, "MERGE (n:Individual {key: $key})")
	assert.Equal(t, "5:I9", tx.calls[0].Params["key"])
	assert.Equal(t, "Ada King", tx.calls[0].Params["name"])
	assert.Equal(t, []string{"write"}, q.modes)
}

func TestKinshipRepo_RemoveIndividual(t *testing.T) {
	repo, _, tx := newTestRepo()

	err := repo.RemoveIndividual(context.Background(), 5, "I9")
	require.NoError(t, err)

	require.Len(t, tx.calls, 1)
	assert.Contains(t, tx.calls[0].Cypher, "DETACH DELETE")
	assert.Equal(t, "5:I9", tx.calls[0].Params["key"])
}

func TestKinshipRepo_LinkFamily_MergesLinks(t *testing.T) {
	repo, _, tx := newTestRepo()

	links := []Link{
		{FromXref: "I1", ToXref: "I3", Type: LinkFather},
		{FromXref: "I1", ToXref: "I2", Type: LinkSpouse},
	}
	err := repo.LinkFamily(context.Background(), 2, links)
	require.NoError(t, err)

	require.Len(t, tx.calls, 2)
	assert.Contains(t, tx.calls[0].Cypher, "MERGE (a)-[:FATHER_OF]->(b)")
	assert.Contains(t, tx.calls[1].Cypher, "MERGE (a)-[:SPOUSE_OF]->(b)")
}

func TestKinshipRepo_UnlinkFamily_DeletesLinks(t *testing.T) {
	repo, _, tx := newTestRepo()

	links := []Link{{FromXref: "I2", ToXref: "I3", Type: LinkMother}}
	err := repo.UnlinkFamily(context.Background(), 2, links)
	require.NoError(t, err)

	require.Len(t, tx.calls, 1)
	assert.Contains(t, tx.calls[0].Cypher, "[rel:MOTHER_OF]")
	assert.Contains(t, tx.calls[0].Cypher, "DELETE rel")
}

func TestKinshipRepo_ShortestPath(t *testing.T) {
	repo, q, tx := newTestRepo()
	tx.queueRecords(newRecord(
		[]string{"persons", "steps"},
		[]any{
			[]interface{}{
				personValue("I1", "John Smith", "M", 1820),
				personValue("I3", "Emma Smith", "F", 1850),
			},
			[]interface{}{
				stepValue("FATHER_OF", "I1", "I3"),
			},
		},
	))

	path, err := repo.ShortestPath(context.Background(), 5, "I1", "I3", 8)
	require.NoError(t, err)

	require.Len(t, path.Persons, 2)
	assert.Equal(t, "John Smith", path.Persons[0].Name)
	assert.Equal(t, 1850, path.Persons[1].BirthYear)
	require.Equal(t, 1, path.Length())
	assert.Equal(t, PathStep{FromXref: "I1", ToXref: "I3", Type: "FATHER_OF"}, path.Steps[0])

	assert.Contains(t, tx.calls[0].Cypher, "shortestPath((a)-[:FATHER_OF|MOTHER_OF|SPOUSE_OF*..8]-(b))")
	assert.Equal(t, "5:I1", tx.calls[0].Params["from"])
	assert.Equal(t, "5:I3", tx.calls[0].Params["to"])
	assert.Equal(t, []string{"read"}, q.modes)
}

func TestKinshipRepo_ShortestPath_NoPath(t *testing.T) {
	repo, _, tx := newTestRepo()
	tx.queueRecords() // empty result

	_, err := repo.ShortestPath(context.Background(), 5, "I1", "I99", 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeKinshipNoPath))
}

func TestKinshipRepo_ShortestPath_SameIndividual(t *testing.T) {
	repo, _, tx := newTestRepo()

	_, err := repo.ShortestPath(context.Background(), 5, "I1", "I1", 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	assert.Empty(t, tx.calls)
}

func TestKinshipRepo_ShortestPath_DepthClamped(t *testing.T) {
	repo, _, tx := newTestRepo()
	tx.queueRecords(newRecord(
		[]string{"persons", "steps"},
		[]any{[]interface{}{}, []interface{}{}},
	))

	_, err := repo.ShortestPath(context.Background(), 5, "I1", "I2", 9000)
	require.NoError(t, err)
	assert.Contains(t, tx.calls[0].Cypher, fmt.Sprintf("*..%d]", maxPathDepth))
}

func TestKinshipRepo_Ancestors(t *testing.T) {
	repo, q, tx := newTestRepo()
	tx.queueRecords(
		newRecord([]string{"person", "generation"}, []any{personValue("I1", "John Smith", "M", 1820), int64(1)}),
		newRecord([]string{"person", "generation"}, []any{personValue("I0", "James Smith", "M", 1795), int64(2)}),
	)

	relatives, err := repo.Ancestors(context.Background(), 5, "I3", 4)
	require.NoError(t, err)

	require.Len(t, relatives, 2)
	assert.Equal(t, "I1", relatives[0].Person.Xref)
	assert.Equal(t, 1, relatives[0].Generation)
	assert.Equal(t, 2, relatives[1].Generation)

	assert.Contains(t, tx.calls[0].Cypher, "[:FATHER_OF|MOTHER_OF*1..4]->(d:Individual {key: $key})")
	assert.Equal(t, "5:I3", tx.calls[0].Params["key"])
	assert.Equal(t, []string{"read"}, q.modes)
}

func TestKinshipRepo_Descendants(t *testing.T) {
	repo, _, tx := newTestRepo()
	tx.queueRecords(
		newRecord([]string{"person", "generation"}, []any{personValue("I3", "Emma Smith", "F", 1850), int64(1)}),
	)

	relatives, err := repo.Descendants(context.Background(), 5, "I1", 0)
	require.NoError(t, err)

	require.Len(t, relatives, 1)
	assert.Equal(t, "Emma Smith", relatives[0].Person.Name)
	// generations clamp to the traversal ceiling when unset
	assert.Contains(t, tx.calls[0].Cypher, fmt.Sprintf("(a:Individual {key: $key})-[:FATHER_OF|MOTHER_OF*1..%d]->", maxPathDepth))
}

func TestKinshipRepo_CommonAncestors(t *testing.T) {
	repo, _, tx := newTestRepo()
	tx.queueRecords(
		newRecord([]string{"person", "generation"}, []any{personValue("I0", "James Smith", "M", 1795), int64(3)}),
	)

	relatives, err := repo.CommonAncestors(context.Background(), 5, "I3", "I7", 5)
	require.NoError(t, err)

	require.Len(t, relatives, 1)
	assert.Equal(t, 3, relatives[0].Generation)
	assert.Contains(t, tx.calls[0].Cypher, "LIMIT 5")
	assert.Equal(t, "5:I3", tx.calls[0].Params["a"])
	assert.Equal(t, "5:I7", tx.calls[0].Params["b"])
}

func TestKinshipRepo_Counts(t *testing.T) {
	repo, _, tx := newTestRepo()
	tx.queueRecords(newRecord([]string{"persons", "links"}, []any{int64(10), int64(14)}))

	counts, err := repo.Counts(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, int64(10), counts.Persons)
	assert.Equal(t, int64(14), counts.Links)
}

func TestKinshipRepo_RunErrorPropagates(t *testing.T) {
	repo, _, tx := newTestRepo()
	tx.queueError(fmt.Errorf("connection reset"))

	_, err := repo.Counts(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "connection reset"))
}
