package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// SearchClient covers full-text search over a tree's records.
type SearchClient struct {
	client *Client
}

// IndividualDocument is the searchable projection of an individual.
type IndividualDocument struct {
	TreeID     int64     `json:"tree_id"`
	Xref       string    `json:"xref"`
	Names      []string  `json:"names,omitempty"`
	Given      string    `json:"given,omitempty"`
	Surname    string    `json:"surname,omitempty"`
	Sex        string    `json:"sex,omitempty"`
	BirthDate  string    `json:"birth_date,omitempty"`
	BirthYear  int       `json:"birth_year,omitempty"`
	BirthPlace string    `json:"birth_place,omitempty"`
	DeathDate  string    `json:"death_date,omitempty"`
	DeathYear  int       `json:"death_year,omitempty"`
	DeathPlace string    `json:"death_place,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SourceDocument is the searchable projection of a source.
type SourceDocument struct {
	TreeID    int64     `json:"tree_id"`
	Xref      string    `json:"xref"`
	Title     string    `json:"title,omitempty"`
	Author    string    `json:"author,omitempty"`
	Text      string    `json:"text,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IndividualHit is one individual match.
type IndividualHit struct {
	Score      float64             `json:"score"`
	Individual IndividualDocument  `json:"individual"`
	Highlights map[string][]string `json:"highlights,omitempty"`
}

// SourceHit is one source match.
type SourceHit struct {
	Score      float64             `json:"score"`
	Source     SourceDocument      `json:"source"`
	Highlights map[string][]string `json:"highlights,omitempty"`
}

// IndividualResults is one page of individual matches.
type IndividualResults struct {
	Hits       []IndividualHit  `json:"hits"`
	Pagination PaginationResult `json:"pagination"`
	TookMs     int64            `json:"took_ms"`
}

// SourceResults is one page of source matches.
type SourceResults struct {
	Hits       []SourceHit      `json:"hits"`
	Pagination PaginationResult `json:"pagination"`
	TookMs     int64            `json:"took_ms"`
}

// SurnameCount is one bucket of the surname frequency list.
type SurnameCount struct {
	Surname string `json:"surname"`
	Count   int64  `json:"count"`
}

// ReindexResult summarizes one tree rebuild.
type ReindexResult struct {
	TreeID  int64 `json:"tree_id"`
	Purged  int64 `json:"purged"`
	Indexed int   `json:"indexed"`
	Failed  int   `json:"failed"`
}

// IndividualSearch filters an individual query. All fields are optional;
// an empty search browses the tree in surname order.
type IndividualSearch struct {
	Term      string
	Surname   string
	Sex       string
	BirthFrom int
	BirthTo   int
	Page      Pagination
}

// Individuals searches one tree's individuals.
// GET /api/v1/trees/{treeID}/search/individuals
func (sc *SearchClient) Individuals(ctx context.Context, treeID int64, q IndividualSearch) (*IndividualResults, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	params := url.Values{}
	if q.Term != "" {
		params.Set("term", q.Term)
	}
	if q.Surname != "" {
		params.Set("surname", q.Surname)
	}
	if q.Sex != "" {
		params.Set("sex", q.Sex)
	}
	if q.BirthFrom != 0 {
		params.Set("birth_from", strconv.Itoa(q.BirthFrom))
	}
	if q.BirthTo != 0 {
		params.Set("birth_to", strconv.Itoa(q.BirthTo))
	}
	addPagination(params, q.Page)

	path := fmt.Sprintf("/api/v1/trees/%d/search/individuals", treeID)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var results IndividualResults
	if err := sc.client.get(ctx, path, &results); err != nil {
		return nil, err
	}
	return &results, nil
}

// Sources searches one tree's sources by title, author and text.
// GET /api/v1/trees/{treeID}/search/sources
func (sc *SearchClient) Sources(ctx context.Context, treeID int64, term string, page Pagination) (*SourceResults, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	params := url.Values{}
	if term != "" {
		params.Set("term", term)
	}
	addPagination(params, page)

	path := fmt.Sprintf("/api/v1/trees/%d/search/sources", treeID)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var results SourceResults
	if err := sc.client.get(ctx, path, &results); err != nil {
		return nil, err
	}
	return &results, nil
}

// Surnames returns the tree's surname frequency list.
// GET /api/v1/trees/{treeID}/search/surnames?limit=
func (sc *SearchClient) Surnames(ctx context.Context, treeID int64, limit int) ([]SurnameCount, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	path := fmt.Sprintf("/api/v1/trees/%d/search/surnames", treeID)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Items []SurnameCount `json:"items"`
	}
	if err := sc.client.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Reindex rebuilds the tree's search index synchronously. Manager role or
// better.
// POST /api/v1/trees/{treeID}/search/reindex
func (sc *SearchClient) Reindex(ctx context.Context, treeID int64) (*ReindexResult, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	var result ReindexResult
	if err := sc.client.post(ctx, fmt.Sprintf("/api/v1/trees/%d/search/reindex", treeID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func addPagination(params url.Values, p Pagination) {
	if p.Page > 0 {
		params.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(p.PageSize))
	}
}
