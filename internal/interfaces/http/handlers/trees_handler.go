package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/tree"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
)

// TreesService is the slice of the genealogy service covering tree
// lifecycle, preferences and site-wide settings.
type TreesService interface {
	CreateTree(ctx context.Context, name, title string, ownerID uuid.UUID) (*tree.Tree, error)
	GetTree(ctx context.Context, id int64) (*tree.Tree, error)
	ListTrees(ctx context.Context) ([]*tree.Tree, error)
	RenameTree(ctx context.Context, id int64, title string) (*tree.Tree, error)
	DeleteTree(ctx context.Context, id int64) error
	TreePreference(ctx context.Context, id int64, name string) (string, error)
	SetTreePreference(ctx context.Context, id int64, name, value string) error
	TreeStats(ctx context.Context, treeID int64) (map[gedcom.RecordType]int64, error)
	MapProvider(ctx context.Context) (string, error)
	SetMapProvider(ctx context.Context, provider string) error
	MapProviders() []string
}

// TreesHandler serves tree lifecycle and site settings.
type TreesHandler struct {
	trees  TreesService
	logger logging.Logger
}

// NewTreesHandler creates a TreesHandler.
func NewTreesHandler(svc TreesService, logger logging.Logger) *TreesHandler {
	return &TreesHandler{trees: svc, logger: logger}
}

// CreateTreeRequest is the POST /trees body. The name is the permanent
// URL-safe identifier, the title is free text shown to visitors.
type CreateTreeRequest struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Create handles POST /api/v1/trees.
func (h *TreesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTreeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.trees.CreateTree(r.Context(), req.Name, req.Title, currentUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// List handles GET /api/v1/trees.
func (h *TreesHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.trees.ListTrees(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": list})
}

// Get handles GET /api/v1/trees/{treeID}.
func (h *TreesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := h.trees.GetTree(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// RenameTreeRequest is the PUT /trees/{treeID} body.
type RenameTreeRequest struct {
	Title string `json:"title"`
}

// Rename handles PUT /api/v1/trees/{treeID}. Only the title changes; the
// name stays fixed because record identity and import bookkeeping hang off
// it.
func (h *TreesHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req RenameTreeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.trees.RenameTree(r.Context(), id, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/v1/trees/{treeID}.
func (h *TreesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.trees.DeleteTree(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/v1/trees/{treeID}/stats.
func (h *TreesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := h.trees.TreeStats(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	// Key by record type string so the JSON reads naturally.
	out := make(map[string]int64, len(stats))
	for typ, n := range stats {
		out[string(typ)] = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tree_id": id, "counts": out})
}

// Preference handles GET /api/v1/trees/{treeID}/preferences/{name}.
func (h *TreesHandler) Preference(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	name := chi.URLParam(r, "name")
	if name == "" {
		writeValidationError(w, "preference name is required")
		return
	}
	value, err := h.trees.TreePreference(r.Context(), id, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PreferenceResponse{Name: name, Value: value})
}

// SetPreference handles PUT /api/v1/trees/{treeID}/preferences/{name}.
func (h *TreesHandler) SetPreference(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	name := chi.URLParam(r, "name")
	if name == "" {
		writeValidationError(w, "preference name is required")
		return
	}
	var req SetPreferenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.trees.SetTreePreference(r.Context(), id, name, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PreferenceResponse{Name: name, Value: req.Value})
}

// MapProviderResponse is the GET /site/map-provider body.
type MapProviderResponse struct {
	Provider  string   `json:"provider"`
	Available []string `json:"available"`
}

// MapProvider handles GET /api/v1/site/map-provider.
func (h *TreesHandler) MapProvider(w http.ResponseWriter, r *http.Request) {
	provider, err := h.trees.MapProvider(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MapProviderResponse{
		Provider:  provider,
		Available: h.trees.MapProviders(),
	})
}

// SetMapProviderRequest is the PUT /site/map-provider body.
type SetMapProviderRequest struct {
	Provider string `json:"provider"`
}

// SetMapProvider handles PUT /api/v1/site/map-provider.
func (h *TreesHandler) SetMapProvider(w http.ResponseWriter, r *http.Request) {
	var req SetMapProviderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.trees.SetMapProvider(r.Context(), req.Provider); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"provider": req.Provider})
}
