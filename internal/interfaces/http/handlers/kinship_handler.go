package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mirono/webtrees/internal/application/kinship"
	neo4jrepo "github.com/mirono/webtrees/internal/infrastructure/database/neo4j/repositories"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
)

// KinshipService is the slice of the kinship application service the
// handler uses.
type KinshipService interface {
	Path(ctx context.Context, treeID int64, fromXref, toXref string, maxDepth int) (*kinship.Relationship, error)
	Ancestors(ctx context.Context, treeID int64, xref string, generations int) ([]neo4jrepo.Relative, error)
	Descendants(ctx context.Context, treeID int64, xref string, generations int) ([]neo4jrepo.Relative, error)
	CommonAncestors(ctx context.Context, treeID int64, xrefA, xrefB string, limit int) ([]neo4jrepo.Relative, error)
	Counts(ctx context.Context, treeID int64) (*neo4jrepo.GraphCounts, error)
	SyncTree(ctx context.Context, treeID int64) (*kinship.SyncResult, error)
}

// KinshipHandler serves relationship queries against the kinship graph.
type KinshipHandler struct {
	kinship KinshipService
	logger  logging.Logger
}

// NewKinshipHandler creates a KinshipHandler.
func NewKinshipHandler(svc KinshipService, logger logging.Logger) *KinshipHandler {
	return &KinshipHandler{kinship: svc, logger: logger}
}

// Path handles GET /api/v1/trees/{treeID}/kinship/path?from=&to=&max_depth=.
func (h *KinshipHandler) Path(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeValidationError(w, "from and to are required")
		return
	}
	rel, err := h.kinship.Path(r.Context(), treeID, from, to, queryInt(r, "max_depth", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// Ancestors handles GET /api/v1/trees/{treeID}/kinship/ancestors/{xref}.
func (h *KinshipHandler) Ancestors(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	xref := chi.URLParam(r, "xref")
	if xref == "" {
		writeValidationError(w, "xref is required")
		return
	}
	relatives, err := h.kinship.Ancestors(r.Context(), treeID, xref, queryInt(r, "generations", 4))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": relatives})
}

// Descendants handles GET /api/v1/trees/{treeID}/kinship/descendants/{xref}.
func (h *KinshipHandler) Descendants(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	xref := chi.URLParam(r, "xref")
	if xref == "" {
		writeValidationError(w, "xref is required")
		return
	}
	relatives, err := h.kinship.Descendants(r.Context(), treeID, xref, queryInt(r, "generations", 4))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": relatives})
}

// CommonAncestors handles GET /api/v1/trees/{treeID}/kinship/common-ancestors?a=&b=.
func (h *KinshipHandler) CommonAncestors(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	a := r.URL.Query().Get("a")
	b := r.URL.Query().Get("b")
	if a == "" || b == "" {
		writeValidationError(w, "a and b are required")
		return
	}
	relatives, err := h.kinship.CommonAncestors(r.Context(), treeID, a, b, queryInt(r, "limit", 10))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": relatives})
}

// Counts handles GET /api/v1/trees/{treeID}/kinship/counts.
func (h *KinshipHandler) Counts(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	counts, err := h.kinship.Counts(r.Context(), treeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// Sync handles POST /api/v1/trees/{treeID}/kinship/sync, rebuilding the
// graph projection from the relational truth.
func (h *KinshipHandler) Sync(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.kinship.SyncTree(r.Context(), treeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
