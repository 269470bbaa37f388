package rest_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupwatch/group-indexer/internal/api/rest"
	"github.com/groupwatch/group-indexer/internal/api/shared/dto"
	"github.com/groupwatch/group-indexer/internal/api/shared/executor"
	"github.com/groupwatch/group-indexer/internal/api/shared/types"
	"github.com/groupwatch/group-indexer/internal/domain"
	"github.com/groupwatch/group-indexer/internal/logger"
	"github.com/groupwatch/group-indexer/internal/mocks"
)

func TestMain(m *testing.M) {
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}
	gin.SetMode(gin.TestMode)

	code := m.Run()
	os.Exit(code)
}

type testHandlerMocks struct {
	ctrl     *gomock.Controller
	executor *mocks.MockAPIExecutor
	router   *gin.Engine
}

func setupTestHandler(t *testing.T) *testHandlerMocks {
	ctrl := gomock.NewController(t)
	exec := mocks.NewMockAPIExecutor(ctrl)

	router := gin.New()
	rest.SetupRoutes(router, rest.NewHandler(exec))

	return &testHandlerMocks{ctrl: ctrl, executor: exec, router: router}
}

func (m *testHandlerMocks) get(t *testing.T, path string) *httptest.ResponseRecorder {
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	m.router.ServeHTTP(w, req)
	return w
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorEnvelope {
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHandler_GetGroup(t *testing.T) {
	m := setupTestHandler(t)

	m.executor.EXPECT().
		GetGroup(gomock.Any(), "123456").
		Return(&dto.GroupResponse{GroupID: "123456", ContentVersion: 2, Tags: []string{"role-play"}}, nil)

	w := m.get(t, "/api/v1/groups/123456")

	assert.Equal(t, http.StatusOK, w.Code)
	var got dto.GroupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "123456", got.GroupID)
	assert.Equal(t, uint32(2), got.ContentVersion)
}

func TestHandler_GetGroup_NotFound(t *testing.T) {
	m := setupTestHandler(t)

	m.executor.EXPECT().GetGroup(gomock.Any(), "999999").Return(nil, nil)

	w := m.get(t, "/api/v1/groups/999999")

	assert.Equal(t, http.StatusNotFound, w.Code)
	env := decodeError(t, w)
	assert.Equal(t, "not_found", env.Error.Code)
	assert.Equal(t, "Group not found", env.Error.Message)
	assert.Equal(t, "999999", env.Error.Details)
}

func TestHandler_GetGroup_StorageUnavailable(t *testing.T) {
	m := setupTestHandler(t)

	m.executor.EXPECT().
		GetGroup(gomock.Any(), "123456").
		Return(nil, fmt.Errorf("failed to get group: %w", domain.ErrStorageUnavailable))

	w := m.get(t, "/api/v1/groups/123456")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "database_error", decodeError(t, w).Error.Code)
}

func TestHandler_GetGroup_InternalError(t *testing.T) {
	m := setupTestHandler(t)

	m.executor.EXPECT().GetGroup(gomock.Any(), "123456").Return(nil, assert.AnError)

	w := m.get(t, "/api/v1/groups/123456")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", decodeError(t, w).Error.Code)
}

func TestHandler_ListGroups(t *testing.T) {
	m := setupTestHandler(t)

	roleplay := domain.GroupTypeRolePlay
	scifi := domain.WorldviewSciFi
	m.executor.EXPECT().
		ListGroups(gomock.Any(), executor.GroupQuery{
			Page:             2,
			PerPage:          100,
			GroupID:          "123",
			GroupType:        &roleplay,
			Worldview:        &scifi,
			HasSexualContent: boolPtr(false),
			SortBy:           types.SortFirstSeenGroup,
			Order:            types.OrderAsc,
		}).
		Return(&dto.GroupListResponse{Groups: []dto.GroupResponse{}, Total: 150, Page: 2, PerPage: 100, TotalPages: 2}, nil)

	w := m.get(t, "/api/v1/groups?page=2&per_page=500&group_id=123&group_type=role-play&worldview=sci-fi&has_sexual_content=false&sort_by=first_seen_group&sort_order=asc")

	assert.Equal(t, http.StatusOK, w.Code)
	var got dto.GroupListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(150), got.Total)
	assert.Equal(t, int64(2), got.TotalPages)
}

func TestHandler_ListGroups_Defaults(t *testing.T) {
	m := setupTestHandler(t)

	m.executor.EXPECT().
		ListGroups(gomock.Any(), executor.GroupQuery{
			Page:    1,
			PerPage: 20,
			SortBy:  types.SortLastSeenGroup,
			Order:   types.OrderDesc,
		}).
		Return(&dto.GroupListResponse{Groups: []dto.GroupResponse{}, Page: 1, PerPage: 20}, nil)

	w := m.get(t, "/api/v1/groups")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_ListGroups_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "invalid group type", query: "group_type=chess"},
		{name: "invalid worldview", query: "worldview=steampunk"},
		{name: "invalid sort field", query: "sort_by=content"},
		{name: "invalid sort order", query: "sort_order=sideways"},
		{name: "zero page", query: "page=0"},
		{name: "non numeric page", query: "page=abc"},
		{name: "page beyond maximum", query: "page=1000001"},
		{name: "page near integer limit", query: "page=9223372036854775807"},
		{name: "non boolean flag", query: "has_sexual_content=maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := setupTestHandler(t)

			w := m.get(t, "/api/v1/groups?"+tt.query)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "validation_failed", decodeError(t, w).Error.Code)
		})
	}
}

func TestHandler_RecentGroups(t *testing.T) {
	m := setupTestHandler(t)

	m.executor.EXPECT().
		RecentGroups(gomock.Any(), 5).
		Return(&dto.GroupsResponse{Groups: []dto.GroupResponse{{GroupID: "111111"}}, Count: 1}, nil)

	w := m.get(t, "/api/v1/groups/recent?limit=5")

	assert.Equal(t, http.StatusOK, w.Code)
	var got dto.GroupsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Count)
}

func TestHandler_GetHistory(t *testing.T) {
	m := setupTestHandler(t)

	m.executor.EXPECT().
		GetHistory(gomock.Any(), "123456", 0).
		Return(&dto.HistoryResponse{
			GroupID: "123456",
			History: []dto.HistoryEntryResponse{{ContentVersion: 2}, {ContentVersion: 1}},
			Count:   2,
		}, nil)

	w := m.get(t, "/api/v1/groups/123456/history")

	assert.Equal(t, http.StatusOK, w.Code)
	var got dto.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.History, 2)
	assert.Equal(t, uint32(2), got.History[0].ContentVersion)
}

func TestHandler_GetHistory_NotFound(t *testing.T) {
	m := setupTestHandler(t)

	m.executor.EXPECT().GetHistory(gomock.Any(), "123456", 3).Return(nil, nil)

	w := m.get(t, "/api/v1/groups/123456/history?limit=3")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_GetHistory_NegativeLimit(t *testing.T) {
	m := setupTestHandler(t)

	w := m.get(t, "/api/v1/groups/123456/history?limit=-1")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_SearchGroups(t *testing.T) {
	m := setupTestHandler(t)

	m.executor.EXPECT().
		SearchGroups(gomock.Any(), "科幻", 10).
		Return(&dto.SearchResponse{Keyword: "科幻", Groups: []dto.GroupResponse{}, Count: 0}, nil)

	w := m.get(t, "/api/v1/search?q=%E7%A7%91%E5%B9%BB&limit=10")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_SearchGroups_MissingKeyword(t *testing.T) {
	m := setupTestHandler(t)

	w := m.get(t, "/api/v1/search?q=%20")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", decodeError(t, w).Error.Code)
}

func TestHandler_GetStats(t *testing.T) {
	m := setupTestHandler(t)

	m.executor.EXPECT().
		GetStats(gomock.Any()).
		Return(&dto.StatsResponse{TotalGroups: 3, GroupTypeStats: map[string]int64{"role-play": 2, "exchange": 1}}, nil)

	w := m.get(t, "/api/v1/stats")

	assert.Equal(t, http.StatusOK, w.Code)
	var got dto.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(3), got.TotalGroups)
	assert.Equal(t, int64(2), got.GroupTypeStats["role-play"])
}

func TestHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name     string
		health   *dto.HealthResponse
		wantCode int
	}{
		{
			name:     "connected",
			health:   &dto.HealthResponse{Status: "ok", Database: "connected", Backend: "mysql"},
			wantCode: http.StatusOK,
		},
		{
			name:     "disconnected",
			health:   &dto.HealthResponse{Status: "degraded", Database: "disconnected", Backend: "mysql"},
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := setupTestHandler(t)
			m.executor.EXPECT().Health(gomock.Any()).Return(tt.health)

			w := m.get(t, "/health")

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func boolPtr(b bool) *bool {
	return &b
}
