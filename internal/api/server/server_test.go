package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/api/server"
	"github.com/groupwatch/group-indexer/internal/api/shared/dto"
	"github.com/groupwatch/group-indexer/internal/domain"
	"github.com/groupwatch/group-indexer/internal/logger"
	"github.com/groupwatch/group-indexer/internal/store"
)

func TestMain(m *testing.M) {
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

func setupTestServer(t *testing.T) http.Handler {
	st, err := store.NewFileStore(t.TempDir(), adapter.NewFileSystem(), adapter.NewJSON())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seed := []struct {
		id       string
		content  string
		hints    domain.ClassificationHints
		versions uint32
	}{
		{id: "111111", content: "群号 111111 古风原创", hints: domain.ClassificationHints{GroupType: domain.GroupTypeRolePlay, Worldview: domain.WorldviewAncientOriginal}, versions: 1},
		{id: "222222", content: "群号 222222 出物交换 无审", hints: domain.ClassificationHints{GroupType: domain.GroupTypeExchange, Worldview: domain.WorldviewUnspecified, NoAuditNoSetting: true}, versions: 2},
	}

	for i, s := range seed {
		seen := base.Add(time.Duration(i) * time.Hour)
		var prevSeen uint64
		for v := uint32(1); v <= s.versions; v++ {
			record := &domain.GroupRecord{
				GroupID:             s.id,
				Content:             s.content,
				ContentHash:         s.id,
				ContentVersion:      v,
				Tags:                []string{string(s.hints.GroupType)},
				ClassificationHints: s.hints,
				FirstSeenGroup:      seen,
				LastSeenGroup:       seen,
				LastUpdatedContent:  seen,
				SeenCount:           uint64(v),
				Source:              "telegram_group_-1",
				BatchID:             "batch",
			}
			require.NoError(t, st.UpsertLatest(ctx, record, prevSeen))
			require.NoError(t, st.AppendHistory(ctx, &domain.HistoryEntry{
				GroupID:             s.id,
				ContentVersion:      v,
				Content:             s.content,
				ContentHash:         s.id,
				Tags:                record.Tags,
				ClassificationHints: s.hints,
				Source:              record.Source,
				BatchID:             record.BatchID,
				CreatedAt:           seen,
			}))
			prevSeen = uint64(v)
		}
	}

	srv := server.New(server.Config{}, st)
	return srv.Router()
}

func get(t *testing.T, h http.Handler, path string, out interface{}) int {
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func TestServer_Routes(t *testing.T) {
	h := setupTestServer(t)

	var health dto.HealthResponse
	assert.Equal(t, http.StatusOK, get(t, h, "/health", &health))
	assert.Equal(t, store.BackendFile, health.Backend)

	var stats dto.StatsResponse
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/stats", &stats))
	assert.Equal(t, int64(2), stats.TotalGroups)
	assert.Equal(t, int64(3), stats.TotalHistoryRecords)
	assert.Equal(t, int64(3), stats.TotalSeenCount)

	var list dto.GroupListResponse
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/groups?no_audit_no_setting=true", &list))
	require.Len(t, list.Groups, 1)
	assert.Equal(t, "222222", list.Groups[0].GroupID)
	assert.Equal(t, int64(1), list.TotalPages)

	var recent dto.GroupsResponse
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/groups/recent?limit=1", &recent))
	require.Len(t, recent.Groups, 1)
	assert.Equal(t, "222222", recent.Groups[0].GroupID)

	var group dto.GroupResponse
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/groups/111111", &group))
	assert.Equal(t, "ancient-original", group.Worldview)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/groups/999999", nil))

	var history dto.HistoryResponse
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/groups/222222/history", &history))
	require.Len(t, history.History, 2)
	assert.Equal(t, uint32(2), history.History[0].ContentVersion)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/groups/999999/history", nil))

	var search dto.SearchResponse
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/search?q=%E5%8F%A4%E9%A3%8E", &search))
	require.Len(t, search.Groups, 1)
	assert.Equal(t, "111111", search.Groups[0].GroupID)
}

func TestServer_Shutdown_NotStarted(t *testing.T) {
	srv := server.New(server.Config{}, nil)

	assert.NoError(t, srv.Shutdown(context.Background()))
}
