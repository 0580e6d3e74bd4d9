package handlers

import (
	"context"
	"net/http"

	"github.com/mirono/webtrees/internal/application/search"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
)

// SearchService is the slice of the search application service the handler
// uses.
type SearchService interface {
	SearchIndividuals(ctx context.Context, q search.IndividualQuery) (*search.IndividualResults, error)
	SearchSources(ctx context.Context, q search.SourceQuery) (*search.SourceResults, error)
	Surnames(ctx context.Context, treeID int64, limit int) ([]search.SurnameCount, error)
	ReindexTree(ctx context.Context, treeID int64) (*search.ReindexResult, error)
}

// SearchHandler serves full-text search over a tree's records.
type SearchHandler struct {
	search SearchService
	logger logging.Logger
}

// NewSearchHandler creates a SearchHandler.
func NewSearchHandler(svc SearchService, logger logging.Logger) *SearchHandler {
	return &SearchHandler{search: svc, logger: logger}
}

// Individuals handles GET /api/v1/trees/{treeID}/search/individuals.
// Filters arrive as query parameters: term, surname, sex, birth_from,
// birth_to, page, page_size.
func (h *SearchHandler) Individuals(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	q := search.IndividualQuery{
		TreeID:    treeID,
		Term:      r.URL.Query().Get("term"),
		Surname:   r.URL.Query().Get("surname"),
		Sex:       r.URL.Query().Get("sex"),
		BirthFrom: queryInt(r, "birth_from", 0),
		BirthTo:   queryInt(r, "birth_to", 0),
		Page:      parsePagination(r),
	}
	results, err := h.search.SearchIndividuals(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// Sources handles GET /api/v1/trees/{treeID}/search/sources.
func (h *SearchHandler) Sources(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	q := search.SourceQuery{
		TreeID: treeID,
		Term:   r.URL.Query().Get("term"),
		Page:   parsePagination(r),
	}
	results, err := h.search.SearchSources(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// Surnames handles GET /api/v1/trees/{treeID}/search/surnames, the
// frequency list behind the surname cloud.
func (h *SearchHandler) Surnames(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	limit := queryInt(r, "limit", 100)
	counts, err := h.search.Surnames(r.Context(), treeID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": counts})
}

// Reindex handles POST /api/v1/trees/{treeID}/search/reindex. It rebuilds
// the tree's index synchronously and reports what it did; for large trees
// the asynchronous path via the import pipeline is preferable.
func (h *SearchHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.search.ReindexTree(r.Context(), treeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
