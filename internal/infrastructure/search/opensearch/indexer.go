package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

var (
	ErrIndexAlreadyExists = errors.New(errors.ErrCodeConflict, "index already exists")
	ErrIndexNotFound      = errors.New(errors.ErrCodeNotFound, "index not found")
	ErrDocumentNotFound   = errors.New(errors.ErrCodeNotFound, "document not found")
)

// IndexMapping is the settings+mappings body sent at index creation.
type IndexMapping struct {
	Settings map[string]interface{} `json:"settings,omitempty"`
	Mappings map[string]interface{} `json:"mappings,omitempty"`
}

// BulkResult summarizes one bulk ingestion.
type BulkResult struct {
	Succeeded int
	Failed    int
	Errors    []BulkItemError
}

// BulkItemError describes one failed bulk item.
type BulkItemError struct {
	DocID     string
	ErrorType string
	Reason    string
}

// IndexerConfig tunes document ingestion.
type IndexerConfig struct {
	BulkBatchSize int
	RefreshPolicy string
}

// Indexer manages the genealogy indexes and document ingestion.
type Indexer struct {
	client *Client
	config IndexerConfig
	logger logging.Logger
}

// NewIndexer builds an Indexer. RefreshPolicy defaults to "false": imports
// push thousands of documents and must not force a refresh per write.
func NewIndexer(client *Client, cfg IndexerConfig, logger logging.Logger) *Indexer {
	if cfg.BulkBatchSize == 0 {
		cfg.BulkBatchSize = 500
	}
	if cfg.RefreshPolicy == "" {
		cfg.RefreshPolicy = "false"
	}
	return &Indexer{
		client: client,
		config: cfg,
		logger: logger.Named("indexer"),
	}
}

// EnsureIndexes creates the individuals and sources indexes when missing.
// Called at startup; existing indexes are left untouched.
func (i *Indexer) EnsureIndexes(ctx context.Context) error {
	for name, mapping := range map[string]IndexMapping{
		IndexIndividuals: IndividualIndexMapping(),
		IndexSources:     SourceIndexMapping(),
	} {
		err := i.CreateIndex(ctx, name, mapping)
		if err != nil && !errors.IsCode(err, errors.ErrCodeConflict) {
			return err
		}
	}
	return nil
}

// CreateIndex creates a logical index with the given mapping.
func (i *Indexer) CreateIndex(ctx context.Context, name string, mapping IndexMapping) error {
	exists, err := i.IndexExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return ErrIndexAlreadyExists
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal index mapping")
	}

	req := opensearchapi.IndicesCreateRequest{
		Index: i.client.IndexName(name),
		Body:  bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "create index request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return i.errorResponse(resp, "create index failed")
	}

	i.logger.Info("index created", logging.String("index", name))
	return nil
}

// DeleteIndex removes a logical index and everything in it.
func (i *Indexer) DeleteIndex(ctx context.Context, name string) error {
	req := opensearchapi.IndicesDeleteRequest{
		Index: []string{i.client.IndexName(name)},
	}
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "delete index request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return ErrIndexNotFound
	}
	if resp.IsError() {
		return i.errorResponse(resp, "delete index failed")
	}

	i.logger.Warn("index deleted", logging.String("index", name))
	return nil
}

// IndexExists checks whether a logical index exists.
func (i *Indexer) IndexExists(ctx context.Context, name string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{
		Index: []string{i.client.IndexName(name)},
	}
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "index existence check failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	}
	return false, i.errorResponse(resp, "index existence check failed")
}

// IndexDocument writes one document, replacing any previous version.
func (i *Indexer) IndexDocument(ctx context.Context, index, docID string, document interface{}) error {
	body, err := json.Marshal(document)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal document")
	}

	req := opensearchapi.IndexRequest{
		Index:      i.client.IndexName(index),
		DocumentID: docID,
		Body:       bytes.NewReader(body),
		Refresh:    i.config.RefreshPolicy,
	}
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "index document request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return i.errorResponse(resp, "index document failed")
	}
	return nil
}

// DeleteDocument removes one document. A missing document is reported as
// ErrDocumentNotFound; callers syncing after record deletion ignore it.
func (i *Indexer) DeleteDocument(ctx context.Context, index, docID string) error {
	req := opensearchapi.DeleteRequest{
		Index:      i.client.IndexName(index),
		DocumentID: docID,
		Refresh:    i.config.RefreshPolicy,
	}
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "delete document request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return ErrDocumentNotFound
	}
	if resp.IsError() {
		return i.errorResponse(resp, "delete document failed")
	}
	return nil
}

// BulkIndex writes documents in batches and reports per-item failures.
// A transport failure aborts with the counts accumulated so far.
func (i *Indexer) BulkIndex(ctx context.Context, index string, documents map[string]interface{}) (*BulkResult, error) {
	result := &BulkResult{}
	if len(documents) == 0 {
		return result, nil
	}

	docIDs := make([]string, 0, len(documents))
	for id := range documents {
		docIDs = append(docIDs, id)
	}

	physical := i.client.IndexName(index)
	for start := 0; start < len(docIDs); start += i.config.BulkBatchSize {
		end := start + i.config.BulkBatchSize
		if end > len(docIDs) {
			end = len(docIDs)
		}

		var buf bytes.Buffer
		batchIDs := docIDs[start:end]
		for _, id := range batchIDs {
			docBytes, err := json.Marshal(documents[id])
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, BulkItemError{
					DocID:     id,
					ErrorType: "serialization_error",
					Reason:    err.Error(),
				})
				continue
			}
			fmt.Fprintf(&buf, `{"index":{"_index":%q,"_id":%q}}`+"\n", physical, id)
			buf.Write(docBytes)
			buf.WriteByte('\n')
		}
		if buf.Len() == 0 {
			continue
		}

		req := opensearchapi.BulkRequest{
			Body:    bytes.NewReader(buf.Bytes()),
			Refresh: i.config.RefreshPolicy,
		}
		resp, err := req.Do(ctx, i.client.GetClient())
		if err != nil {
			return result, errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "bulk request failed")
		}

		err = i.collectBulkOutcome(resp.Body, resp.IsError(), resp.StatusCode, len(batchIDs), result)
		resp.Body.Close()
		if err != nil {
			return result, err
		}
	}

	i.logger.Info("bulk index completed",
		logging.String("index", index),
		logging.Int("total", len(docIDs)),
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed),
	)
	return result, nil
}

// collectBulkOutcome folds one bulk response into the running result.
func (i *Indexer) collectBulkOutcome(body io.Reader, isError bool, status, batchSize int, result *BulkResult) error {
	if isError {
		result.Failed += batchSize
		result.Errors = append(result.Errors, BulkItemError{
			DocID:     "batch",
			ErrorType: "http_error",
			Reason:    fmt.Sprintf("bulk batch failed with status %d", status),
		})
		return nil
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(body).Decode(&bulkResp); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode bulk response")
	}

	for _, item := range bulkResp.Items {
		for _, info := range item {
			if info.Status >= 200 && info.Status < 300 {
				result.Succeeded++
			} else {
				result.Failed++
				result.Errors = append(result.Errors, BulkItemError{
					DocID:     info.ID,
					ErrorType: info.Error.Type,
					Reason:    info.Error.Reason,
				})
			}
			break
		}
	}
	return nil
}

// DeleteTreeDocuments removes every document of one tree from an index.
// Used when a tree is deleted or reindexed from scratch.
func (i *Indexer) DeleteTreeDocuments(ctx context.Context, index string, treeID int64) (int64, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"tree_id": treeID},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal delete query")
	}

	refresh := i.config.RefreshPolicy != "false"
	req := opensearchapi.DeleteByQueryRequest{
		Index:   []string{i.client.IndexName(index)},
		Body:    bytes.NewReader(body),
		Refresh: &refresh,
	}
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "delete by query request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return 0, i.errorResponse(resp, "delete tree documents failed")
	}

	var dbqResp struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&dbqResp); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode delete by query response")
	}

	i.logger.Info("tree documents deleted",
		logging.String("index", index),
		logging.String("tree_id", strconv.FormatInt(treeID, 10)),
		logging.Int64("deleted", dbqResp.Deleted),
	)
	return dbqResp.Deleted, nil
}

func (i *Indexer) errorResponse(resp *opensearchapi.Response, msg string) error {
	var errResp struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	bodyBytes, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(bodyBytes, &errResp); err == nil && errResp.Error.Reason != "" {
		return errors.Newf(errors.ErrCodeSearchIndexFailed, "%s: %s: %s", msg, errResp.Error.Type, errResp.Error.Reason)
	}
	return errors.Newf(errors.ErrCodeSearchIndexFailed, "%s: status %d", msg, resp.StatusCode)
}

// ─────────────────────────────────────────────────────────────────────────────
// Index mappings
// ─────────────────────────────────────────────────────────────────────────────

// IndividualIndexMapping defines the individuals index. Name fields carry a
// keyword subfield so surnames can be aggregated and sorted exactly.
func IndividualIndexMapping() IndexMapping {
	return IndexMapping{
		Settings: map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 1,
		},
		Mappings: map[string]interface{}{
			"properties": map[string]interface{}{
				"tree_id": map[string]interface{}{"type": "long"},
				"xref":    map[string]interface{}{"type": "keyword"},
				"names":   map[string]interface{}{"type": "text"},
				"given":   map[string]interface{}{"type": "text"},
				"surname": map[string]interface{}{
					"type": "text",
					"fields": map[string]interface{}{
						"raw": map[string]interface{}{"type": "keyword"},
					},
				},
				"sex":         map[string]interface{}{"type": "keyword"},
				"birth_date":  map[string]interface{}{"type": "text"},
				"birth_year":  map[string]interface{}{"type": "integer"},
				"birth_place": map[string]interface{}{"type": "text"},
				"death_date":  map[string]interface{}{"type": "text"},
				"death_year":  map[string]interface{}{"type": "integer"},
				"death_place": map[string]interface{}{"type": "text"},
				"updated_at":  map[string]interface{}{"type": "date"},
			},
		},
	}
}

// SourceIndexMapping defines the sources index.
func SourceIndexMapping() IndexMapping {
	return IndexMapping{
		Settings: map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 1,
		},
		Mappings: map[string]interface{}{
			"properties": map[string]interface{}{
				"tree_id":    map[string]interface{}{"type": "long"},
				"xref":       map[string]interface{}{"type": "keyword"},
				"title":      map[string]interface{}{"type": "text"},
				"author":     map[string]interface{}{"type": "text"},
				"text":       map[string]interface{}{"type": "text"},
				"updated_at": map[string]interface{}{"type": "date"},
			},
		},
	}
}
