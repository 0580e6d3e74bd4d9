package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/application/reporting"
	"github.com/mirono/webtrees/internal/domain/report"
	"github.com/mirono/webtrees/internal/domain/tree"
	"github.com/mirono/webtrees/internal/domain/user"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

var _ ReportsService = (*reporting.Service)(nil)

type mockReportsService struct {
	mock.Mock
}

func (m *mockReportsService) Generate(ctx context.Context, req reporting.Request) (*reporting.Job, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reporting.Job), args.Error(1)
}

func (m *mockReportsService) Status(ctx context.Context, handle string) (*reporting.Job, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reporting.Job), args.Error(1)
}

func (m *mockReportsService) Fetch(ctx context.Context, handle string) ([]byte, string, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

func newReportsHandler(t *testing.T) (*ReportsHandler, *mockReportsService, *mockTreesService) {
	t.Helper()
	reports := new(mockReportsService)
	trees := new(mockTreesService)
	return NewReportsHandler(reports, trees, logging.NewNopLogger()), reports, trees
}

func TestReportsGenerate(t *testing.T) {
	h, reports, trees := newReportsHandler(t)

	trees.On("GetTree", mock.Anything, int64(1)).
		Return(&tree.Tree{ID: 1, Name: "kennedy", Title: "Kennedy Family"}, nil)
	reports.On("Generate", mock.Anything, reporting.Request{
		TreeID:      1,
		TreeName:    "Kennedy Family",
		Kind:        reporting.KindPedigree,
		Format:      report.FormatPDF,
		Xref:        "I1",
		Generations: 4,
		RequestedBy: "margaret",
	}).Return(&reporting.Job{
		Handle: "9f0d6f24-1111-4222-8333-444455556666",
		TreeID: 1,
		Kind:   reporting.KindPedigree,
		Format: report.FormatPDF,
		Status: reporting.StatusPending,
	}, nil)

	body := `{"kind":"pedigree","format":"pdf","xref":"I1","generations":4}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trees/1/reports", strings.NewReader(body))
	req = setPathValue(req, "treeID", "1")
	claims := claimsFor(uuid.New(), user.RoleMember)
	claims.Username = "margaret"
	req = withClaims(req, claims)
	rec := httptest.NewRecorder()

	h.Generate(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var got reporting.Job
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, reporting.StatusPending, got.Status)
	assert.NotEmpty(t, got.Handle)
	reports.AssertExpectations(t)
	trees.AssertExpectations(t)
}

func TestReportsGenerate_UnknownKind(t *testing.T) {
	h, reports, trees := newReportsHandler(t)

	trees.On("GetTree", mock.Anything, int64(1)).
		Return(&tree.Tree{ID: 1, Title: "Kennedy Family"}, nil)
	reports.On("Generate", mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.ErrCodeReportTypeUnknown, "unknown report kind"))

	body := `{"kind":"fan-chart","format":"pdf","xref":"I1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trees/1/reports", strings.NewReader(body))
	req = setPathValue(req, "treeID", "1")
	rec := httptest.NewRecorder()

	h.Generate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportsGenerate_TreeNotFound(t *testing.T) {
	h, reports, trees := newReportsHandler(t)

	trees.On("GetTree", mock.Anything, int64(42)).
		Return(nil, errors.New(errors.ErrCodeTreeNotFound, "tree not found"))

	body := `{"kind":"pedigree","format":"pdf","xref":"I1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trees/42/reports", strings.NewReader(body))
	req = setPathValue(req, "treeID", "42")
	rec := httptest.NewRecorder()

	h.Generate(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	reports.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestReportsStatus(t *testing.T) {
	h, reports, _ := newReportsHandler(t)

	reports.On("Status", mock.Anything, "h-1").
		Return(&reporting.Job{Handle: "h-1", Status: reporting.StatusReady, ObjectKey: "reports/h-1.pdf"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/h-1", nil)
	req = setPathValue(req, "handle", "h-1")
	rec := httptest.NewRecorder()

	h.Status(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got reporting.Job
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, reporting.StatusReady, got.Status)
}

func TestReportsStatus_MissingHandle(t *testing.T) {
	h, _, _ := newReportsHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/", nil)
	rec := httptest.NewRecorder()

	h.Status(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestReportsDownload(t *testing.T) {
	h, reports, _ := newReportsHandler(t)

	reports.On("Fetch", mock.Anything, "h-1").
		Return([]byte("%PDF-1.4 ..."), "application/pdf", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/h-1/download", nil)
	req = setPathValue(req, "handle", "h-1")
	rec := httptest.NewRecorder()

	h.Download(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "%PDF-1.4 ...", rec.Body.String())
}

func TestReportsDownload_StillPending(t *testing.T) {
	h, reports, _ := newReportsHandler(t)

	reports.On("Fetch", mock.Anything, "h-2").
		Return(nil, "", errors.New(errors.ErrCodeReportPending, "report is still being generated"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/h-2/download", nil)
	req = setPathValue(req, "handle", "h-2")
	rec := httptest.NewRecorder()

	h.Download(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}
