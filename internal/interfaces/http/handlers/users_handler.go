package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/application/users"
	"github.com/mirono/webtrees/internal/domain/user"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/internal/interfaces/http/middleware"
	"github.com/mirono/webtrees/pkg/errors"
)

// UsersService is the slice of the users application service the handler uses.
type UsersService interface {
	Register(ctx context.Context, req users.RegisterRequest, actorID string) (*user.User, error)
	Get(ctx context.Context, id uuid.UUID) (*user.User, error)
	List(ctx context.Context, filter user.ListFilter) ([]*user.User, int64, error)
	Update(ctx context.Context, id uuid.UUID, req users.UpdateRequest, actorID string) (*user.User, error)
	Delete(ctx context.Context, id uuid.UUID, actorID string) error
	SetPassword(ctx context.Context, id uuid.UUID, password, actorID string) error
	VerifyEmail(ctx context.Context, id uuid.UUID, actorID string) error
	Preference(ctx context.Context, id uuid.UUID, name string) (string, error)
	SetPreference(ctx context.Context, id uuid.UUID, name, value string) error
}

// UsersHandler serves account management. Registration, listing, deletion
// and email verification sit behind the admin gate in the router; the
// remaining routes let users act on their own account, so the handler
// checks admin-or-self itself.
type UsersHandler struct {
	users  UsersService
	logger logging.Logger
}

// NewUsersHandler creates a UsersHandler.
func NewUsersHandler(svc UsersService, logger logging.Logger) *UsersHandler {
	return &UsersHandler{users: svc, logger: logger}
}

// canManage reports whether the caller may act on the given account.
func canManage(r *http.Request, id uuid.UUID) bool {
	claims := middleware.ContextGetClaims(r.Context())
	if claims == nil {
		return false
	}
	return claims.Role == string(user.RoleAdmin) || claims.Subject == id.String()
}

func isAdmin(r *http.Request) bool {
	claims := middleware.ContextGetClaims(r.Context())
	return claims != nil && claims.Role == string(user.RoleAdmin)
}

// Register handles POST /api/v1/users.
func (h *UsersHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req users.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.users.Register(r.Context(), req, currentUserID(r).String())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// List handles GET /api/v1/users with search, role and status filters.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := user.ListFilter{
		Search: r.URL.Query().Get("search"),
		Page:   parsePagination(r),
	}
	if v := r.URL.Query().Get("role"); v != "" {
		role, err := user.ParseRole(v)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.Role = role
	}
	if v := r.URL.Query().Get("status"); v != "" {
		switch user.Status(v) {
		case user.StatusActive, user.StatusDisabled:
			filter.Status = user.Status(v)
		default:
			writeValidationError(w, "status must be active or disabled")
			return
		}
	}

	list, total, err := h.users.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeList(w, list, filter.Page, total)
}

// Get handles GET /api/v1/users/{userID}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}
	if !canManage(r, id) {
		writeError(w, errors.New(errors.ErrCodeForbidden, "cannot access another account"))
		return
	}
	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Update handles PUT /api/v1/users/{userID}. Everyone may edit their own
// profile; changing role or status is an admin action.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}
	if !canManage(r, id) {
		writeError(w, errors.New(errors.ErrCodeForbidden, "cannot modify another account"))
		return
	}
	var req users.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if (req.Role != nil || req.Status != nil) && !isAdmin(r) {
		writeError(w, errors.New(errors.ErrCodeForbidden, "only administrators may change role or status"))
		return
	}
	u, err := h.users.Update(r.Context(), id, req, currentUserID(r).String())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Delete handles DELETE /api/v1/users/{userID}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.users.Delete(r.Context(), id, currentUserID(r).String()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetPasswordRequest is the PUT /users/{userID}/password body.
type SetPasswordRequest struct {
	Password string `json:"password"`
}

// SetPassword handles PUT /api/v1/users/{userID}/password.
func (h *UsersHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}
	if !canManage(r, id) {
		writeError(w, errors.New(errors.ErrCodeForbidden, "cannot change another account's password"))
		return
	}
	var req SetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.users.SetPassword(r.Context(), id, req.Password, currentUserID(r).String()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyEmail handles POST /api/v1/users/{userID}/verify-email, the manual
// override for accounts whose verification mail never arrived.
func (h *UsersHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.users.VerifyEmail(r.Context(), id, currentUserID(r).String()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PreferenceResponse is the GET /users/{userID}/preferences/{name} body.
type PreferenceResponse struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Preference handles GET /api/v1/users/{userID}/preferences/{name}.
func (h *UsersHandler) Preference(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}
	if !canManage(r, id) {
		writeError(w, errors.New(errors.ErrCodeForbidden, "cannot read another account's preferences"))
		return
	}
	name := chi.URLParam(r, "name")
	if name == "" {
		writeValidationError(w, "preference name is required")
		return
	}
	value, err := h.users.Preference(r.Context(), id, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PreferenceResponse{Name: name, Value: value})
}

// SetPreferenceRequest is the PUT /users/{userID}/preferences/{name} body.
type SetPreferenceRequest struct {
	Value string `json:"value"`
}

// SetPreference handles PUT /api/v1/users/{userID}/preferences/{name}.
func (h *UsersHandler) SetPreference(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}
	if !canManage(r, id) {
		writeError(w, errors.New(errors.ErrCodeForbidden, "cannot change another account's preferences"))
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
	if err := h.users.SetPreference(r.Context(), id, name, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PreferenceResponse{Name: name, Value: req.Value})
}
