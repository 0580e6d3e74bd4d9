package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

// SearcherConfig tunes query execution.
type SearcherConfig struct {
	DefaultPageSize  int
	MaxPageSize      int
	HighlightPreTag  string
	HighlightPostTag string
}

// SearchRequest is one query against a logical index.
type SearchRequest struct {
	Index        string
	Query        *Query
	Filters      []Filter
	Sort         []SortField
	Pagination   *Pagination
	Highlight    *HighlightConfig
	Aggregations map[string]Aggregation
}

// Query is a node of the query tree the DSL builder walks.
type Query struct {
	Kind   QueryKind
	Field  string
	Fields []string
	Value  interface{}
	Boost  float64

	// bool composition
	Must    []Query
	Should  []Query
	MustNot []Query
}

// QueryKind selects the DSL clause a Query renders to.
type QueryKind string

const (
	QueryMatch       QueryKind = "match"
	QueryMultiMatch  QueryKind = "multi_match"
	QueryMatchPhrase QueryKind = "match_phrase"
	QueryPrefix      QueryKind = "match_phrase_prefix"
	QueryTerm        QueryKind = "term"
	QueryBool        QueryKind = "bool"
)

// Filter is a non-scoring condition.
type Filter struct {
	Field string
	Kind  FilterKind
	Value interface{}
	From  interface{}
	To    interface{}
}

// FilterKind selects the filter clause.
type FilterKind string

const (
	FilterTerm   FilterKind = "term"
	FilterTerms  FilterKind = "terms"
	FilterRange  FilterKind = "range"
	FilterExists FilterKind = "exists"
)

// SortField orders results by one field.
type SortField struct {
	Field string
	Order string // "asc" | "desc"
}

// Pagination windows the result set.
type Pagination struct {
	Offset int
	Limit  int
}

// HighlightConfig asks for match fragments on the named fields.
type HighlightConfig struct {
	Fields            []string
	FragmentSize      int
	NumberOfFragments int
}

// Aggregation is a terms aggregation over one field; the search service uses
// it for surname frequency lists.
type Aggregation struct {
	Field string
	Size  int
}

// SearchResult is the parsed response.
type SearchResult struct {
	Total        int64
	MaxScore     float64
	Hits         []SearchHit
	Aggregations map[string][]AggBucket
	TookMs       int64
}

// SearchHit is one matching document.
type SearchHit struct {
	ID         string
	Score      float64
	Source     json.RawMessage
	Highlights map[string][]string
}

// AggBucket is one terms-aggregation bucket.
type AggBucket struct {
	Key      string
	DocCount int64
}

// Searcher executes queries against the genealogy indexes.
type Searcher struct {
	client *Client
	config SearcherConfig
	logger logging.Logger
}

func NewSearcher(client *Client, cfg SearcherConfig, logger logging.Logger) *Searcher {
	if cfg.DefaultPageSize == 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize == 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.HighlightPreTag == "" {
		cfg.HighlightPreTag = "<mark>"
	}
	if cfg.HighlightPostTag == "" {
		cfg.HighlightPostTag = "</mark>"
	}
	return &Searcher{
		client: client,
		config: cfg,
		logger: logger.Named("searcher"),
	}
}

// Search executes one query. Pagination is clamped to the configured bounds
// so a caller cannot page the cluster into deep-scroll territory.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.Index == "" {
		return nil, errors.New(errors.ErrCodeValidation, "search index is required")
	}

	if req.Pagination == nil {
		req.Pagination = &Pagination{Limit: s.config.DefaultPageSize}
	}
	if req.Pagination.Limit <= 0 {
		req.Pagination.Limit = s.config.DefaultPageSize
	}
	if req.Pagination.Limit > s.config.MaxPageSize {
		req.Pagination.Limit = s.config.MaxPageSize
	}
	if req.Pagination.Offset < 0 {
		req.Pagination.Offset = 0
	}

	body, err := json.Marshal(s.buildDSL(req))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal query")
	}

	osReq := opensearchapi.SearchRequest{
		Index: []string{s.client.IndexName(req.Index)},
		Body:  bytes.NewReader(body),
	}

	start := time.Now()
	resp, err := osReq.Do(ctx, s.client.GetClient())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.New(errors.ErrCodeTimeout, "search timed out")
		}
		return nil, errors.Wrap(err, errors.ErrCodeSearchQueryFailed, "search request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, s.errorResponse(resp)
	}

	result, err := parseSearchResponse(resp.Body)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("search executed",
		logging.String("index", req.Index),
		logging.Int64("hits", result.Total),
		logging.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// Count returns how many documents match, ignoring pagination and sort.
func (s *Searcher) Count(ctx context.Context, index string, query *Query, filters []Filter) (int64, error) {
	dsl := s.buildDSL(SearchRequest{Index: index, Query: query, Filters: filters})
	body, err := json.Marshal(map[string]interface{}{"query": dsl["query"]})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal count query")
	}

	osReq := opensearchapi.CountRequest{
		Index: []string{s.client.IndexName(index)},
		Body:  bytes.NewReader(body),
	}
	resp, err := osReq.Do(ctx, s.client.GetClient())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSearchQueryFailed, "count request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return 0, s.errorResponse(resp)
	}

	var countResp struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&countResp); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode count response")
	}
	return countResp.Count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// DSL building
// ─────────────────────────────────────────────────────────────────────────────

func (s *Searcher) buildDSL(req SearchRequest) map[string]interface{} {
	dsl := map[string]interface{}{}

	var queryMap map[string]interface{}
	if req.Query != nil {
		queryMap = buildQuery(req.Query)
	}
	if queryMap == nil {
		queryMap = map[string]interface{}{"match_all": map[string]interface{}{}}
	}

	if len(req.Filters) > 0 {
		filterClauses := make([]map[string]interface{}, 0, len(req.Filters))
		for _, f := range req.Filters {
			if clause := buildFilter(f); clause != nil {
				filterClauses = append(filterClauses, clause)
			}
		}
		queryMap = map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   queryMap,
				"filter": filterClauses,
			},
		}
	}
	dsl["query"] = queryMap

	if req.Pagination != nil {
		dsl["from"] = req.Pagination.Offset
		dsl["size"] = req.Pagination.Limit
	}

	if len(req.Sort) > 0 {
		sortList := make([]map[string]interface{}, len(req.Sort))
		for i, sf := range req.Sort {
			sortList[i] = map[string]interface{}{
				sf.Field: map[string]interface{}{"order": sf.Order},
			}
		}
		dsl["sort"] = sortList
	}

	if req.Highlight != nil {
		fields := map[string]interface{}{}
		for _, f := range req.Highlight.Fields {
			fields[f] = map[string]interface{}{}
		}
		highlight := map[string]interface{}{
			"fields":    fields,
			"pre_tags":  []string{s.config.HighlightPreTag},
			"post_tags": []string{s.config.HighlightPostTag},
		}
		if req.Highlight.FragmentSize > 0 {
			highlight["fragment_size"] = req.Highlight.FragmentSize
		}
		if req.Highlight.NumberOfFragments > 0 {
			highlight["number_of_fragments"] = req.Highlight.NumberOfFragments
		}
		dsl["highlight"] = highlight
	}

	if len(req.Aggregations) > 0 {
		aggs := map[string]interface{}{}
		for name, agg := range req.Aggregations {
			size := agg.Size
			if size == 0 {
				size = 10
			}
			aggs[name] = map[string]interface{}{
				"terms": map[string]interface{}{
					"field": agg.Field,
					"size":  size,
				},
			}
		}
		dsl["aggs"] = aggs
	}

	return dsl
}

func buildQuery(q *Query) map[string]interface{} {
	switch q.Kind {
	case QueryMatch:
		inner := map[string]interface{}{"query": q.Value}
		if q.Boost > 0 {
			inner["boost"] = q.Boost
		}
		return map[string]interface{}{"match": map[string]interface{}{q.Field: inner}}
	case QueryMultiMatch:
		return map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q.Value,
				"fields": q.Fields,
			},
		}
	case QueryMatchPhrase:
		return map[string]interface{}{
			"match_phrase": map[string]interface{}{q.Field: q.Value},
		}
	case QueryPrefix:
		return map[string]interface{}{
			"match_phrase_prefix": map[string]interface{}{q.Field: q.Value},
		}
	case QueryTerm:
		return map[string]interface{}{
			"term": map[string]interface{}{q.Field: q.Value},
		}
	case QueryBool:
		boolQ := map[string]interface{}{}
		if len(q.Must) > 0 {
			boolQ["must"] = buildQueryList(q.Must)
		}
		if len(q.Should) > 0 {
			boolQ["should"] = buildQueryList(q.Should)
			boolQ["minimum_should_match"] = 1
		}
		if len(q.MustNot) > 0 {
			boolQ["must_not"] = buildQueryList(q.MustNot)
		}
		return map[string]interface{}{"bool": boolQ}
	}
	return nil
}

func buildQueryList(qs []Query) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(qs))
	for i := range qs {
		if clause := buildQuery(&qs[i]); clause != nil {
			out = append(out, clause)
		}
	}
	return out
}

func buildFilter(f Filter) map[string]interface{} {
	switch f.Kind {
	case FilterTerm:
		return map[string]interface{}{"term": map[string]interface{}{f.Field: f.Value}}
	case FilterTerms:
		return map[string]interface{}{"terms": map[string]interface{}{f.Field: f.Value}}
	case FilterRange:
		rangeMap := map[string]interface{}{}
		if f.From != nil {
			rangeMap["gte"] = f.From
		}
		if f.To != nil {
			rangeMap["lte"] = f.To
		}
		return map[string]interface{}{"range": map[string]interface{}{f.Field: rangeMap}}
	case FilterExists:
		return map[string]interface{}{"exists": map[string]interface{}{"field": f.Field}}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Response parsing
// ─────────────────────────────────────────────────────────────────────────────

func parseSearchResponse(body io.Reader) (*SearchResult, error) {
	var resp struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			MaxScore float64 `json:"max_score"`
			Hits     []struct {
				ID        string              `json:"_id"`
				Score     float64             `json:"_score"`
				Source    json.RawMessage     `json:"_source"`
				Highlight map[string][]string `json:"highlight"`
			} `json:"hits"`
		} `json:"hits"`
		Aggregations map[string]struct {
			Buckets []struct {
				Key      interface{} `json:"key"`
				KeyStr   string      `json:"key_as_string"`
				DocCount int64       `json:"doc_count"`
			} `json:"buckets"`
		} `json:"aggregations"`
	}

	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}

	result := &SearchResult{
		Total:    resp.Hits.Total.Value,
		MaxScore: resp.Hits.MaxScore,
		TookMs:   resp.Took,
	}
	for _, h := range resp.Hits.Hits {
		result.Hits = append(result.Hits, SearchHit{
			ID:         h.ID,
			Score:      h.Score,
			Source:     h.Source,
			Highlights: h.Highlight,
		})
	}
	if len(resp.Aggregations) > 0 {
		result.Aggregations = make(map[string][]AggBucket, len(resp.Aggregations))
		for name, agg := range resp.Aggregations {
			buckets := make([]AggBucket, 0, len(agg.Buckets))
			for _, b := range agg.Buckets {
				key := b.KeyStr
				if key == "" {
					if s, ok := b.Key.(string); ok {
						key = s
					}
				}
				buckets = append(buckets, AggBucket{Key: key, DocCount: b.DocCount})
			}
			result.Aggregations[name] = buckets
		}
	}
	return result, nil
}

func (s *Searcher) errorResponse(resp *opensearchapi.Response) error {
	var errResp struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	bodyBytes, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(bodyBytes, &errResp); err == nil && errResp.Error.Reason != "" {
		return errors.Newf(errors.ErrCodeSearchQueryFailed, "search failed: %s: %s", errResp.Error.Type, errResp.Error.Reason)
	}
	return errors.Newf(errors.ErrCodeSearchQueryFailed, "search failed: status %d", resp.StatusCode)
}
