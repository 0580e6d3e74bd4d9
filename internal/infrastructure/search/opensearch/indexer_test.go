package opensearch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/mirono/webtrees/pkg/errors"
)

// fakeCluster answers the subset of the OpenSearch REST API the indexer and
// searcher touch. Paths not routed explicitly answer 200 so pings pass.
type fakeCluster struct {
	*httptest.Server
	existingIndexes map[string]bool
	requests        []string
	bulkBodies      []string
	bulkResponse    string
	searchResponse  string
	countResponse   string
	deletedByQuery  string
	docStatus       int
}

func newFakeCluster(t *testing.T) *fakeCluster {
	t.Helper()
	f := &fakeCluster{
		existingIndexes: map[string]bool{},
		bulkResponse:    `{"errors":false,"items":[]}`,
		searchResponse:  `{"took":1,"hits":{"total":{"value":0},"hits":[]}}`,
		countResponse:   `{"count":0}`,
		deletedByQuery:  `{"deleted":0}`,
		docStatus:       http.StatusOK,
	}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/":
			w.WriteHeader(http.StatusOK)

		case r.URL.Path == "/_bulk":
			body, _ := io.ReadAll(r.Body)
			f.bulkBodies = append(f.bulkBodies, string(body))
			io.WriteString(w, f.bulkResponse)

		case strings.HasSuffix(r.URL.Path, "/_search"):
			io.WriteString(w, f.searchResponse)

		case strings.HasSuffix(r.URL.Path, "/_count"):
			io.WriteString(w, f.countResponse)

		case strings.HasSuffix(r.URL.Path, "/_delete_by_query"):
			io.WriteString(w, f.deletedByQuery)

		case strings.Contains(r.URL.Path, "/_doc/"):
			w.WriteHeader(f.docStatus)
			io.WriteString(w, `{}`)

		case r.Method == http.MethodHead:
			if f.existingIndexes[strings.TrimPrefix(r.URL.Path, "/")] {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}

		case r.Method == http.MethodPut:
			f.existingIndexes[strings.TrimPrefix(r.URL.Path, "/")] = true
			io.WriteString(w, `{"acknowledged":true}`)

		case r.Method == http.MethodDelete:
			name := strings.TrimPrefix(r.URL.Path, "/")
			if !f.existingIndexes[name] {
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, `{}`)
				return
			}
			delete(f.existingIndexes, name)
			io.WriteString(w, `{"acknowledged":true}`)

		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(f.Server.Close)
	return f
}

func newTestIndexer(t *testing.T, f *fakeCluster) *Indexer {
	t.Helper()
	client, err := NewClient(newTestClientConfig(f.URL), logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewIndexer(client, IndexerConfig{BulkBatchSize: 2}, logging.NewNopLogger())
}

func TestIndexer_EnsureIndexes(t *testing.T) {
	f := newFakeCluster(t)
	indexer := newTestIndexer(t, f)

	require.NoError(t, indexer.EnsureIndexes(context.Background()))
	assert.True(t, f.existingIndexes["test-individuals"])
	assert.True(t, f.existingIndexes["test-sources"])

	// Second run is a no-op, not a conflict error.
	require.NoError(t, indexer.EnsureIndexes(context.Background()))
}

func TestIndexer_CreateIndex_AlreadyExists(t *testing.T) {
	f := newFakeCluster(t)
	f.existingIndexes["test-individuals"] = true
	indexer := newTestIndexer(t, f)

	err := indexer.CreateIndex(context.Background(), IndexIndividuals, IndividualIndexMapping())
	assert.ErrorIs(t, err, ErrIndexAlreadyExists)
}

func TestIndexer_DeleteIndex(t *testing.T) {
	f := newFakeCluster(t)
	f.existingIndexes["test-sources"] = true
	indexer := newTestIndexer(t, f)

	require.NoError(t, indexer.DeleteIndex(context.Background(), IndexSources))
	assert.False(t, f.existingIndexes["test-sources"])

	err := indexer.DeleteIndex(context.Background(), IndexSources)
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestIndexer_IndexDocument(t *testing.T) {
	f := newFakeCluster(t)
	indexer := newTestIndexer(t, f)

	doc := IndividualDocument{TreeID: 1, Xref: "I1", Surname: "Smith"}
	err := indexer.IndexDocument(context.Background(), IndexIndividuals, DocumentID(1, "I1"), doc)
	require.NoError(t, err)

	assert.Contains(t, f.requests, "PUT /test-individuals/_doc/1:I1")
}

func TestIndexer_DeleteDocument_NotFound(t *testing.T) {
	f := newFakeCluster(t)
	f.docStatus = http.StatusNotFound
	indexer := newTestIndexer(t, f)

	err := indexer.DeleteDocument(context.Background(), IndexIndividuals, DocumentID(1, "I9"))
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestIndexer_BulkIndex_BatchesAndCounts(t *testing.T) {
	f := newFakeCluster(t)
	f.bulkResponse = `{"errors":false,"items":[{"index":{"_id":"a","status":201}},{"index":{"_id":"b","status":201}}]}`
	indexer := newTestIndexer(t, f)

	docs := map[string]interface{}{
		"1:I1": IndividualDocument{TreeID: 1, Xref: "I1"},
		"1:I2": IndividualDocument{TreeID: 1, Xref: "I2"},
		"1:I3": IndividualDocument{TreeID: 1, Xref: "I3"},
		"1:I4": IndividualDocument{TreeID: 1, Xref: "I4"},
	}
	result, err := indexer.BulkIndex(context.Background(), IndexIndividuals, docs)
	require.NoError(t, err)

	// Batch size 2 splits four documents into two bulk calls.
	assert.Len(t, f.bulkBodies, 2)
	assert.Equal(t, 4, result.Succeeded)
	assert.Zero(t, result.Failed)
	assert.Contains(t, f.bulkBodies[0], `"_index":"test-individuals"`)
}

func TestIndexer_BulkIndex_PartialFailure(t *testing.T) {
	f := newFakeCluster(t)
	f.bulkResponse = `{"errors":true,"items":[` +
		`{"index":{"_id":"1:I1","status":201}},` +
		`{"index":{"_id":"1:I2","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad field"}}}]}`
	indexer := newTestIndexer(t, f)

	docs := map[string]interface{}{
		"1:I1": IndividualDocument{TreeID: 1, Xref: "I1"},
		"1:I2": IndividualDocument{TreeID: 1, Xref: "I2"},
	}
	result, err := indexer.BulkIndex(context.Background(), IndexIndividuals, docs)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "1:I2", result.Errors[0].DocID)
	assert.Equal(t, "mapper_parsing_exception", result.Errors[0].ErrorType)
}

func TestIndexer_BulkIndex_Empty(t *testing.T) {
	f := newFakeCluster(t)
	indexer := newTestIndexer(t, f)

	result, err := indexer.BulkIndex(context.Background(), IndexIndividuals, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Succeeded)
	assert.Empty(t, f.bulkBodies)
}

func TestIndexer_DeleteTreeDocuments(t *testing.T) {
	f := newFakeCluster(t)
	f.deletedByQuery = `{"deleted":42}`
	indexer := newTestIndexer(t, f)

	deleted, err := indexer.DeleteTreeDocuments(context.Background(), IndexIndividuals, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(42), deleted)
	assert.Contains(t, f.requests, "POST /test-individuals/_delete_by_query")
}

func TestIndexer_ErrorResponseCarriesReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"type":"illegal_argument_exception","reason":"mapping is broken"}}`)
	}))
	defer server.Close()

	client, err := NewClient(newTestClientConfig(server.URL), logging.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()
	indexer := NewIndexer(client, IndexerConfig{}, logging.NewNopLogger())

	err = indexer.CreateIndex(context.Background(), IndexIndividuals, IndividualIndexMapping())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeSearchIndexFailed))
	assert.Contains(t, err.Error(), "mapping is broken")
}
