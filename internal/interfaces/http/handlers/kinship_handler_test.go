package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/application/kinship"
	neo4jrepo "github.com/mirono/webtrees/internal/infrastructure/database/neo4j/repositories"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

var _ KinshipService = (*kinship.Service)(nil)

type mockKinshipService struct {
	mock.Mock
}

func (m *mockKinshipService) Path(ctx context.Context, treeID int64, fromXref, toXref string, maxDepth int) (*kinship.Relationship, error) {
	args := m.Called(ctx, treeID, fromXref, toXref, maxDepth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*kinship.Relationship), args.Error(1)
}

func (m *mockKinshipService) Ancestors(ctx context.Context, treeID int64, xref string, generations int) ([]neo4jrepo.Relative, error) {
	args := m.Called(ctx, treeID, xref, generations)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]neo4jrepo.Relative), args.Error(1)
}

func (m *mockKinshipService) Descendants(ctx context.Context, treeID int64, xref string, generations int) ([]neo4jrepo.Relative, error) {
	args := m.Called(ctx, treeID, xref, generations)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]neo4jrepo.Relative), args.Error(1)
}

func (m *mockKinshipService) CommonAncestors(ctx context.Context, treeID int64, xrefA, xrefB string, limit int) ([]neo4jrepo.Relative, error) {
	args := m.Called(ctx, treeID, xrefA, xrefB, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]neo4jrepo.Relative), args.Error(1)
}

func (m *mockKinshipService) Counts(ctx context.Context, treeID int64) (*neo4jrepo.GraphCounts, error) {
	args := m.Called(ctx, treeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*neo4jrepo.GraphCounts), args.Error(1)
}

func (m *mockKinshipService) SyncTree(ctx context.Context, treeID int64) (*kinship.SyncResult, error) {
	args := m.Called(ctx, treeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*kinship.SyncResult), args.Error(1)
}

func TestKinshipPath(t *testing.T) {
	svc := new(mockKinshipService)
	h := NewKinshipHandler(svc, logging.NewNopLogger())

	svc.On("Path", mock.Anything, int64(1), "I1", "I9", 0).Return(&kinship.Relationship{
		From:        neo4jrepo.Person{Xref: "I1", Name: "John Doe"},
		To:          neo4jrepo.Person{Xref: "I9", Name: "Ann Roe"},
		Description: "first cousin",
		Hops:        4,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trees/1/kinship/path?from=I1&to=I9", nil)
	req = setPathValue(req, "treeID", "1")
	rec := httptest.NewRecorder()

	h.Path(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got kinship.Relationship
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "first cousin", got.Description)
	svc.AssertExpectations(t)
}

func TestKinshipPath_NoneFound(t *testing.T) {
	svc := new(mockKinshipService)
	h := NewKinshipHandler(svc, logging.NewNopLogger())

	svc.On("Path", mock.Anything, int64(1), "I1", "I999", 0).
		Return(nil, errors.New(errors.ErrCodeKinshipNoPath, "no relationship within depth"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trees/1/kinship/path?from=I1&to=I999", nil)
	req = setPathValue(req, "treeID", "1")
	rec := httptest.NewRecorder()

	h.Path(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, string(errors.ErrCodeKinshipNoPath), resp.Code)
}

func TestKinshipPath_MissingEndpoints(t *testing.T) {
	svc := new(mockKinshipService)
	h := NewKinshipHandler(svc, logging.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trees/1/kinship/path?from=I1", nil)
	req = setPathValue(req, "treeID", "1")
	rec := httptest.NewRecorder()

	h.Path(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	svc.AssertNotCalled(t, "Path")
}

func TestKinshipAncestors_DefaultGenerations(t *testing.T) {
	svc := new(mockKinshipService)
	h := NewKinshipHandler(svc, logging.NewNopLogger())

	svc.On("Ancestors", mock.Anything, int64(1), "I1", 4).Return([]neo4jrepo.Relative{
		{Person: neo4jrepo.Person{Xref: "I2", Name: "Father Doe"}, Generation: 1},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trees/1/kinship/I1/ancestors", nil)
	req = setPathValue(req, "treeID", "1")
	req = setPathValue(req, "xref", "I1")
	rec := httptest.NewRecorder()

	h.Ancestors(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestKinshipCommonAncestors(t *testing.T) {
	svc := new(mockKinshipService)
	h := NewKinshipHandler(svc, logging.NewNopLogger())

	svc.On("CommonAncestors", mock.Anything, int64(1), "I1", "I9", 10).
		Return([]neo4jrepo.Relative{{Person: neo4jrepo.Person{Xref: "I50"}, Generation: 2}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trees/1/kinship/common-ancestors?a=I1&b=I9", nil)
	req = setPathValue(req, "treeID", "1")
	rec := httptest.NewRecorder()

	h.CommonAncestors(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestKinshipSync(t *testing.T) {
	svc := new(mockKinshipService)
	h := NewKinshipHandler(svc, logging.NewNopLogger())

	svc.On("SyncTree", mock.Anything, int64(1)).
		Return(&kinship.SyncResult{TreeID: 1, Persons: 120, Links: 240}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/trees/1/kinship/sync", nil)
	req = setPathValue(req, "treeID", "1")
	rec := httptest.NewRecorder()

	h.Sync(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got kinship.SyncResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 120, got.Persons)
	svc.AssertExpectations(t)
}
