package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"strconv"

	"github.com/mirono/webtrees/internal/application/reporting"
	"github.com/mirono/webtrees/internal/domain/report"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/internal/interfaces/http/middleware"
)

// ReportsService is the slice of the reporting service the handler uses.
// Rendering happens in the worker; the handler only queues, polls and
// fetches.
type ReportsService interface {
	Generate(ctx context.Context, req reporting.Request) (*reporting.Job, error)
	Status(ctx context.Context, handle string) (*reporting.Job, error)
	Fetch(ctx context.Context, handle string) ([]byte, string, error)
}

// ReportsHandler serves report generation, status polling and artifact
// download.
type ReportsHandler struct {
	reports ReportsService
	trees   TreesService
	logger  logging.Logger
}

// NewReportsHandler creates a ReportsHandler. The trees service resolves
// the tree title for the report page header.
func NewReportsHandler(reports ReportsService, trees TreesService, logger logging.Logger) *ReportsHandler {
	return &ReportsHandler{reports: reports, trees: trees, logger: logger}
}

// GenerateReportRequest is the POST /trees/{treeID}/reports body.
type GenerateReportRequest struct {
	Kind        string `json:"kind"`
	Format      string `json:"format"`
	Xref        string `json:"xref"`
	Generations int    `json:"generations,omitempty"`
}

// Generate handles POST /api/v1/trees/{treeID}/reports. The response is the
// pending job; clients poll GET /reports/{handle} and download when ready.
func (h *ReportsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req GenerateReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	t, err := h.trees.GetTree(r.Context(), treeID)
	if err != nil {
		writeError(w, err)
		return
	}

	requestedBy := ""
	if claims := middleware.ContextGetClaims(r.Context()); claims != nil {
		requestedBy = claims.Username
	}

	job, err := h.reports.Generate(r.Context(), reporting.Request{
		TreeID:      treeID,
		TreeName:    t.Title,
		Kind:        reporting.Kind(req.Kind),
		Format:      report.Format(req.Format),
		Xref:        req.Xref,
		Generations: req.Generations,
		RequestedBy: requestedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// Status handles GET /api/v1/reports/{handle}.
func (h *ReportsHandler) Status(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if handle == "" {
		writeValidationError(w, "report handle is required")
		return
	}
	job, err := h.reports.Status(r.Context(), handle)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Download handles GET /api/v1/reports/{handle}/download. A still-pending
// job maps onto a retryable status through the error tables so clients can
// keep polling.
func (h *ReportsHandler) Download(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if handle == "" {
		writeValidationError(w, "report handle is required")
		return
	}
	data, contentType, err := h.reports.Fetch(r.Context(), handle)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+handle+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
