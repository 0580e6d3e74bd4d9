package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/application/genealogy"
	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
)

// maxMediaMemory caps how much of a multipart upload is buffered in memory
// before spilling to disk.
const maxMediaMemory = 8 << 20

// RecordsService is the slice of the genealogy service covering record
// editing, history, merging and media.
type RecordsService interface {
	CreateRecord(ctx context.Context, treeID int64, gedcomText string, author uuid.UUID) (*record.Record, error)
	GetRecord(ctx context.Context, treeID int64, xref string) (*record.Record, error)
	UpdateRecord(ctx context.Context, treeID int64, xref, gedcomText string, author uuid.UUID) (*record.Record, error)
	DeleteRecord(ctx context.Context, treeID int64, xref string, author uuid.UUID) error
	ListRecords(ctx context.Context, filter record.ListFilter) ([]*record.Record, int64, error)
	ListChanges(ctx context.Context, treeID int64, xref string, limit int) ([]*record.Change, error)
	MergeRecords(ctx context.Context, treeID int64, targetXref, sourceXref string, author uuid.UUID) (*genealogy.MergeResult, error)
	UploadMedia(ctx context.Context, req genealogy.UploadMediaRequest) (*record.Record, error)
	MediaContent(ctx context.Context, treeID int64, xref string) ([]byte, string, error)
}

// RecordsHandler serves record CRUD, change history, merging and media.
type RecordsHandler struct {
	records RecordsService
	logger  logging.Logger
}

// NewRecordsHandler creates a RecordsHandler.
func NewRecordsHandler(svc RecordsService, logger logging.Logger) *RecordsHandler {
	return &RecordsHandler{records: svc, logger: logger}
}

// RecordBody carries raw GEDCOM text for create and update.
type RecordBody struct {
	Gedcom string `json:"gedcom"`
}

// Create handles POST /api/v1/trees/{treeID}/records. The body carries the
// record as GEDCOM text; the xref in it is advisory and may be reassigned.
func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req RecordBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Gedcom == "" {
		writeValidationError(w, "gedcom is required")
		return
	}
	rec, err := h.records.CreateRecord(r.Context(), treeID, req.Gedcom, currentUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// List handles GET /api/v1/trees/{treeID}/records with type and name
// filters.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	filter := record.ListFilter{
		TreeID: treeID,
		Name:   r.URL.Query().Get("name"),
		Page:   parsePagination(r),
	}
	if v := r.URL.Query().Get("type"); v != "" {
		typ := gedcom.RecordType(v)
		if !typ.IsKnown() {
			writeValidationError(w, fmt.Sprintf("unknown record type %q", v))
			return
		}
		filter.Type = typ
	}

	list, total, err := h.records.ListRecords(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeList(w, list, filter.Page, total)
}

// Get handles GET /api/v1/trees/{treeID}/records/{xref}.
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	rec, err := h.records.GetRecord(r.Context(), treeID, xref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Update handles PUT /api/v1/trees/{treeID}/records/{xref}.
func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	var req RecordBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Gedcom == "" {
		writeValidationError(w, "gedcom is required")
		return
	}
	rec, err := h.records.UpdateRecord(r.Context(), treeID, xref, req.Gedcom, currentUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Delete handles DELETE /api/v1/trees/{treeID}/records/{xref}.
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.records.DeleteRecord(r.Context(), treeID, xref, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Changes handles GET /api/v1/trees/{treeID}/records/{xref}/changes.
func (h *RecordsHandler) Changes(w http.ResponseWriter, r *http.Request) {
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
	limit := queryInt(r, "limit", 20)
	changes, err := h.records.ListChanges(r.Context(), treeID, xref, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": changes})
}

// MergeRequest is the POST /records/{xref}/merge body. The path names the
// surviving record; the body names the one folded into it.
type MergeRequest struct {
	SourceXref string `json:"source_xref"`
}

// Merge handles POST /api/v1/trees/{treeID}/records/{xref}/merge.
func (h *RecordsHandler) Merge(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	targetXref := chi.URLParam(r, "xref")
	if targetXref == "" {
		writeValidationError(w, "xref is required")
		return
	}
	var req MergeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SourceXref == "" {
		writeValidationError(w, "source_xref is required")
		return
	}
	result, err := h.records.MergeRecords(r.Context(), treeID, targetXref, req.SourceXref, currentUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UploadMedia handles POST /api/v1/trees/{treeID}/media as multipart form
// data with a "file" part and an optional "title" field.
func (h *RecordsHandler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathInt64(r, "treeID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := r.ParseMultipartForm(maxMediaMemory); err != nil {
		writeValidationError(w, "request is not valid multipart form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeValidationError(w, "file part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeValidationError(w, "failed to read uploaded file")
		return
	}

	rec, err := h.records.UploadMedia(r.Context(), genealogy.UploadMediaRequest{
		TreeID:      treeID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Title:       r.FormValue("title"),
		Author:      currentUserID(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// MediaContent handles GET /api/v1/trees/{treeID}/media/{xref}/content and
// streams the stored file back with its original content type.
func (h *RecordsHandler) MediaContent(w http.ResponseWriter, r *http.Request) {
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
	data, contentType, err := h.records.MediaContent(r.Context(), treeID, xref)
	if err != nil {
		writeError(w, err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
