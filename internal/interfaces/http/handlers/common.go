// Package handlers contains the HTTP handlers of the JSON API. Each handler
// owns the narrow service interface it consumes and translates between HTTP
// and application types; all business rules live in the application layer.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/interfaces/http/middleware"
	"github.com/mirono/webtrees/pkg/errors"
	"github.com/mirono/webtrees/pkg/types/common"
)

// timeLayout is the wire format for timestamps the handlers render themselves.
const timeLayout = time.RFC3339

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// errUnauthorized is returned when a handler on an authenticated route finds
// no claims in the context, which means the auth middleware was bypassed.
func errUnauthorized() error {
	return errors.New(errors.ErrCodeUnauthorized, "authentication required")
}

// ListResponse is the envelope for paginated collections.
type ListResponse struct {
	Items      interface{}             `json:"items"`
	Pagination common.PaginationResult `json:"pagination"`
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeList writes a paginated collection.
func writeList(w http.ResponseWriter, items interface{}, p common.Pagination, total int64) {
	writeJSON(w, http.StatusOK, ListResponse{Items: items, Pagination: common.NewPaginationResult(p, total)})
}

// writeError maps an application error onto the HTTP response. The status
// and body come from the error-code tables; unclassified and server-side
// failures are masked so internals never leak to API clients.
func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)

	resp := ErrorResponse{Code: string(code), Message: errors.DefaultMessageForCode(code)}
	if !errors.IsServerError(code) {
		if ae, ok := errors.AsAppError(err); ok && ae.Message != "" {
			resp.Message = ae.Message
			resp.Detail = ae.Detail
		}
	}
	writeJSON(w, status, resp)
}

// writeValidationError is a shorthand for malformed input discovered in the
// handler itself, before any service call.
func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, errors.New(errors.ErrCodeValidation, message))
}

// decodeJSON decodes a request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid request body")
	}
	return nil
}

// currentUserID returns the authenticated user's ID, uuid.Nil when the
// route is public.
func currentUserID(r *http.Request) uuid.UUID {
	return middleware.ContextGetUserID(r.Context())
}

// clientIP is the peer address without the port. The RealIP middleware has
// already resolved proxy headers into RemoteAddr.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
		if addr[i] == ']' { // bracketed IPv6 without port
			break
		}
	}
	return addr
}

// parsePagination reads page/page_size query parameters into the shared
// pagination type; absent or malformed values fall back to the defaults.
func parsePagination(r *http.Request) common.Pagination {
	p := common.DefaultPagination()
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Page = n
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.PageSize = n
		}
	}
	return p
}

// pathInt64 parses a numeric path parameter such as {treeID}.
func pathInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return 0, errors.Newf(errors.ErrCodeValidation, "%s is required", name)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.Newf(errors.ErrCodeValidation, "%s must be a positive integer", name)
	}
	return n, nil
}

// pathUUID parses a UUID path parameter such as {userID}.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return uuid.Nil, errors.Newf(errors.ErrCodeValidation, "%s is required", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Newf(errors.ErrCodeValidation, "%s must be a UUID", name)
	}
	return id, nil
}

// queryInt reads an integer query parameter, returning def when absent or
// malformed.
func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// readBody drains a request body up to the server's size cap, which
// http.MaxBytesReader enforces upstream.
func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to read request body")
	}
	return data, nil
}
