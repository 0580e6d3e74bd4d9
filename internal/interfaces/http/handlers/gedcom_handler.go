package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/application/importexport"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
)

// maxGedcomMemory bounds the in-memory part of a multipart GEDCOM upload;
// larger files spill to disk.
const maxGedcomMemory = 8 << 20

// GedcomService is the slice of the import/export service the handler uses.
type GedcomService interface {
	Import(ctx context.Context, treeID int64, r io.Reader, source string, author uuid.UUID) (*importexport.ImportResult, error)
	ExportTree(ctx context.Context, treeID int64) (*importexport.ExportResult, error)
	WriteTree(ctx context.Context, treeID int64, w io.Writer) (int, error)
}

// GedcomHandler serves GEDCOM file import and export for a tree.
type GedcomHandler struct {
	gedcom GedcomService
	logger logging.Logger
}

// NewGedcomHandler creates a GedcomHandler.
func NewGedcomHandler(svc GedcomService, logger logging.Logger) *GedcomHandler {
	return &GedcomHandler{gedcom: svc, logger: logger}
}

// Import handles POST /api/v1/trees/{treeID}/gedcom. The body is either
// multipart form data with a "file" part or the raw GEDCOM text itself.
// Import is synchronous: the response carries the per-type counts and the
// number of remapped xrefs.
func (h *GedcomHandler) Import(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}

	var (
		reader io.Reader = r.Body
		source           = "upload"
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxGedcomMemory); err != nil {
			writeValidationError(w, "request is not valid multipart form data")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeValidationError(w, "file part is required")
			return
		}
		defer file.Close()
		reader = file
		source = header.Filename
	}

	result, err := h.gedcom.Import(r.Context(), treeID, reader, source, currentUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Export handles POST /api/v1/trees/{treeID}/export: the tree is written to
// object storage and the response carries the object key and a best-effort
// presigned URL.
func (h *GedcomHandler) Export(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.gedcom.ExportTree(r.Context(), treeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Download handles GET /api/v1/trees/{treeID}/gedcom and streams the tree
// as canonical GEDCOM without going through object storage.
func (h *GedcomHandler) Download(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-gedcom; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="tree.ged"`)
	if _, err := h.gedcom.WriteTree(r.Context(), treeID, w); err != nil {
		// Headers are gone; all that is left is to log.
		h.logger.Error("gedcom download failed", logging.Int64("tree_id", treeID), logging.Err(err))
	}
}
