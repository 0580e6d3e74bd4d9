package search

import (
	"context"
	"encoding/json"

	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/internal/infrastructure/search/opensearch"
	"github.com/mirono/webtrees/pkg/errors"
	"github.com/mirono/webtrees/pkg/types/common"
)

const (
	maxQueryPageSize = 100

	aggSurnames        = "surnames"
	defaultSurnameSize = 100
	maxSurnameSize     = 1000
)

// IndividualQuery searches one tree's individuals. Term matches names and
// places; the remaining fields are exact filters. A query with neither a
// term nor a filter is refused.
type IndividualQuery struct {
	TreeID    int64             `json:"tree_id"`
	Term      string            `json:"term,omitempty"`
	Surname   string            `json:"surname,omitempty"`
	Sex       string            `json:"sex,omitempty"`
	BirthFrom int               `json:"birth_from,omitempty"`
	BirthTo   int               `json:"birth_to,omitempty"`
	Page      common.Pagination `json:"page"`
}

// SourceQuery searches one tree's sources by title, author and text.
type SourceQuery struct {
	TreeID int64             `json:"tree_id"`
	Term   string            `json:"term"`
	Page   common.Pagination `json:"page"`
}

// IndividualHit is one individual match.
type IndividualHit struct {
	Score      float64                       `json:"score"`
	Individual opensearch.IndividualDocument `json:"individual"`
	Highlights map[string][]string           `json:"highlights,omitempty"`
}

// SourceHit is one source match.
type SourceHit struct {
	Score      float64                   `json:"score"`
	Source     opensearch.SourceDocument `json:"source"`
	Highlights map[string][]string       `json:"highlights,omitempty"`
}

// IndividualResults is one page of individual matches.
type IndividualResults struct {
	Hits       []IndividualHit         `json:"hits"`
	Pagination common.PaginationResult `json:"pagination"`
	TookMs     int64                   `json:"took_ms"`
}

// SourceResults is one page of source matches.
type SourceResults struct {
	Hits       []SourceHit             `json:"hits"`
	Pagination common.PaginationResult `json:"pagination"`
	TookMs     int64                   `json:"took_ms"`
}

// SurnameCount is one bucket of the surname frequency list.
type SurnameCount struct {
	Surname string `json:"surname"`
	Count   int64  `json:"count"`
}

// SearchIndividuals runs one individual query. With a term the hits come
// back by relevance with highlights; filter-only queries browse in surname
// order instead, since every hit would score the same.
func (s *Service) SearchIndividuals(ctx context.Context, q IndividualQuery) (*IndividualResults, error) {
	if q.TreeID == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "tree id is required")
	}
	if q.Term == "" && q.Surname == "" && q.Sex == "" && q.BirthFrom == 0 && q.BirthTo == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "a search term or filter is required")
	}
	page := normalizePage(q.Page)

	req := opensearch.SearchRequest{
		Index: opensearch.IndexIndividuals,
		Filters: []opensearch.Filter{
			{Field: "tree_id", Kind: opensearch.FilterTerm, Value: q.TreeID},
		},
		Pagination: &opensearch.Pagination{Offset: page.Offset(), Limit: page.PageSize},
	}
	if q.Term != "" {
		req.Query = &opensearch.Query{
			Kind:   opensearch.QueryMultiMatch,
			Fields: []string{"names^3", "birth_place", "death_place"},
			Value:  q.Term,
		}
		req.Highlight = &opensearch.HighlightConfig{
			Fields: []string{"names", "birth_place", "death_place"},
		}
	} else {
		req.Sort = []opensearch.SortField{
			{Field: "surname.raw", Order: "asc"},
			{Field: "birth_year", Order: "asc"},
		}
	}
	if q.Surname != "" {
		req.Filters = append(req.Filters, opensearch.Filter{Field: "surname.raw", Kind: opensearch.FilterTerm, Value: q.Surname})
	}
	if q.Sex != "" {
		req.Filters = append(req.Filters, opensearch.Filter{Field: "sex", Kind: opensearch.FilterTerm, Value: q.Sex})
	}
	if q.BirthFrom != 0 || q.BirthTo != 0 {
		f := opensearch.Filter{Field: "birth_year", Kind: opensearch.FilterRange}
		if q.BirthFrom != 0 {
			f.From = q.BirthFrom
		}
		if q.BirthTo != 0 {
			f.To = q.BirthTo
		}
		req.Filters = append(req.Filters, f)
	}

	res, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &IndividualResults{
		Hits:       make([]IndividualHit, 0, len(res.Hits)),
		Pagination: common.NewPaginationResult(page, res.Total),
		TookMs:     res.TookMs,
	}
	for _, h := range res.Hits {
		var doc opensearch.IndividualDocument
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			s.log.Warn("unreadable search hit",
				logging.String("doc_id", h.ID),
				logging.Err(err))
			continue
		}
		out.Hits = append(out.Hits, IndividualHit{Score: h.Score, Individual: doc, Highlights: h.Highlights})
	}
	return out, nil
}

// SearchSources runs one source query.
func (s *Service) SearchSources(ctx context.Context, q SourceQuery) (*SourceResults, error) {
	if q.TreeID == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "tree id is required")
	}
	if q.Term == "" {
		return nil, errors.New(errors.ErrCodeValidation, "a search term is required")
	}
	page := normalizePage(q.Page)

	req := opensearch.SearchRequest{
		Index: opensearch.IndexSources,
		Query: &opensearch.Query{
			Kind:   opensearch.QueryMultiMatch,
			Fields: []string{"title^2", "author", "text"},
			Value:  q.Term,
		},
		Filters: []opensearch.Filter{
			{Field: "tree_id", Kind: opensearch.FilterTerm, Value: q.TreeID},
		},
		Highlight:  &opensearch.HighlightConfig{Fields: []string{"title", "text"}},
		Pagination: &opensearch.Pagination{Offset: page.Offset(), Limit: page.PageSize},
	}

	res, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &SourceResults{
		Hits:       make([]SourceHit, 0, len(res.Hits)),
		Pagination: common.NewPaginationResult(page, res.Total),
		TookMs:     res.TookMs,
	}
	for _, h := range res.Hits {
		var doc opensearch.SourceDocument
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			s.log.Warn("unreadable search hit",
				logging.String("doc_id", h.ID),
				logging.Err(err))
			continue
		}
		out.Hits = append(out.Hits, SourceHit{Score: h.Score, Source: doc, Highlights: h.Highlights})
	}
	return out, nil
}

// Surnames returns a tree's surname frequency list, most common first.
func (s *Service) Surnames(ctx context.Context, treeID int64, limit int) ([]SurnameCount, error) {
	if treeID == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "tree id is required")
	}
	if limit <= 0 {
		limit = defaultSurnameSize
	}
	if limit > maxSurnameSize {
		limit = maxSurnameSize
	}

	req := opensearch.SearchRequest{
		Index: opensearch.IndexIndividuals,
		Filters: []opensearch.Filter{
			{Field: "tree_id", Kind: opensearch.FilterTerm, Value: treeID},
		},
		// Hits are noise here; one row is the smallest window Search allows.
		Pagination: &opensearch.Pagination{Limit: 1},
		Aggregations: map[string]opensearch.Aggregation{
			aggSurnames: {Field: "surname.raw", Size: limit},
		},
	}

	res, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	buckets := res.Aggregations[aggSurnames]
	out := make([]SurnameCount, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, SurnameCount{Surname: b.Key, Count: b.DocCount})
	}
	return out, nil
}

// normalizePage fills defaults and clamps the window to what the cluster
// will accept.
func normalizePage(p common.Pagination) common.Pagination {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.PageSize > maxQueryPageSize {
		p.PageSize = maxQueryPageSize
	}
	return p
}
