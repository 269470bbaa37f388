package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupwatch/group-indexer/internal/domain"
	"github.com/groupwatch/group-indexer/internal/logger"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

// =============================================================================
// Test Data Builders
// =============================================================================

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// buildTestRecord creates a latest record first seen at baseTime+offset
func buildTestRecord(groupID string, version uint32, seenCount uint64, offset time.Duration) *domain.GroupRecord {
	at := baseTime.Add(offset)
	return &domain.GroupRecord{
		GroupID:        groupID,
		Content:        "招募 " + groupID + " 古风仙侠 #纯爱",
		ContentHash:    "hash-" + groupID,
		ContentVersion: version,
		Tags:           []string{"仙侠", "纯爱"},
		ClassificationHints: domain.ClassificationHints{
			GroupType: domain.GroupTypeRolePlay,
			Worldview: domain.WorldviewAncientSupernatural,
		},
		FirstSeenGroup:     at,
		LastSeenGroup:      at,
		LastUpdatedContent: at,
		SeenCount:          seenCount,
		Source:             "telegram_group_-1001",
		BatchID:            "batch-1",
	}
}

// buildTestHistory creates a history entry for the given version
func buildTestHistory(groupID string, version uint32, offset time.Duration) *domain.HistoryEntry {
	return &domain.HistoryEntry{
		GroupID:        groupID,
		ContentVersion: version,
		Content:        fmt.Sprintf("content v%d", version),
		ContentHash:    fmt.Sprintf("hash-v%d", version),
		Tags:           []string{"日常"},
		ClassificationHints: domain.ClassificationHints{
			GroupType: domain.GroupTypeExchange,
			Worldview: domain.WorldviewUnspecified,
		},
		Source:    "telegram_group_-1001",
		BatchID:   "batch-1",
		CreatedAt: baseTime.Add(offset),
	}
}

func assertRecordEqual(t *testing.T, expected, actual *domain.GroupRecord) {
	t.Helper()
	require.NotNil(t, actual)
	assert.Equal(t, expected.GroupID, actual.GroupID)
	assert.Equal(t, expected.Content, actual.Content)
	assert.Equal(t, expected.ContentHash, actual.ContentHash)
	assert.Equal(t, expected.ContentVersion, actual.ContentVersion)
	assert.Equal(t, expected.Tags, actual.Tags)
	assert.Equal(t, expected.ClassificationHints, actual.ClassificationHints)
	assert.True(t, expected.FirstSeenGroup.Equal(actual.FirstSeenGroup), "first_seen_group: %v != %v", expected.FirstSeenGroup, actual.FirstSeenGroup)
	assert.True(t, expected.LastSeenGroup.Equal(actual.LastSeenGroup), "last_seen_group: %v != %v", expected.LastSeenGroup, actual.LastSeenGroup)
	assert.True(t, expected.LastUpdatedContent.Equal(actual.LastUpdatedContent), "last_updated_content: %v != %v", expected.LastUpdatedContent, actual.LastUpdatedContent)
	assert.Equal(t, expected.SeenCount, actual.SeenCount)
	assert.Equal(t, expected.Source, actual.Source)
	assert.Equal(t, expected.BatchID, actual.BatchID)
}

func groupIDs(records []domain.GroupRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.GroupID)
	}
	return ids
}

func boolPtr(b bool) *bool {
	return &b
}

// seedGroups inserts three groups with distinct classifications and seen times
func seedGroups(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	a := buildTestRecord("111111", 1, 3, 0)
	a.LastSeenGroup = baseTime.Add(5 * time.Hour)

	b := buildTestRecord("222222", 2, 1, time.Hour)
	b.Content = "出闲置 交换 周边"
	b.ClassificationHints = domain.ClassificationHints{
		GroupType:        domain.GroupTypeExchange,
		Worldview:        domain.WorldviewUnspecified,
		NoAuditNoSetting: true,
	}
	b.LastSeenGroup = baseTime.Add(2 * time.Hour)

	c := buildTestRecord("333111", 1, 2, 2*time.Hour)
	c.Content = "星际 机甲 r18"
	c.ClassificationHints = domain.ClassificationHints{
		GroupType:        domain.GroupTypeRolePlay,
		Worldview:        domain.WorldviewSciFi,
		HasSexualContent: true,
	}
	c.LastSeenGroup = baseTime.Add(3 * time.Hour)

	for _, r := range []*domain.GroupRecord{a, b, c} {
		require.NoError(t, store.UpsertLatest(ctx, r, 0))
	}
}

// =============================================================================
// Tests
// =============================================================================

func testGetLatestMissing(t *testing.T, store Store) {
	record, err := store.GetLatest(context.Background(), "404404")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func testUpsertLatest(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("insert with zero precondition creates record", func(t *testing.T) {
		record := buildTestRecord("123456", 1, 1, 0)
		require.NoError(t, store.UpsertLatest(ctx, record, 0))

		got, err := store.GetLatest(ctx, "123456")
		require.NoError(t, err)
		assertRecordEqual(t, record, got)
	})

	t.Run("insert of existing group conflicts", func(t *testing.T) {
		record := buildTestRecord("123456", 1, 1, 0)
		err := store.UpsertLatest(ctx, record, 0)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})

	t.Run("update with matching seen count succeeds", func(t *testing.T) {
		record := buildTestRecord("123456", 2, 2, 0)
		record.Content = "updated content"
		record.Tags = []string{}
		record.LastSeenGroup = baseTime.Add(time.Hour)
		record.LastUpdatedContent = baseTime.Add(time.Hour)
		record.ClassificationHints.HasSexualContent = true
		require.NoError(t, store.UpsertLatest(ctx, record, 1))

		got, err := store.GetLatest(ctx, "123456")
		require.NoError(t, err)
		assertRecordEqual(t, record, got)
	})

	t.Run("update with stale seen count conflicts", func(t *testing.T) {
		record := buildTestRecord("123456", 3, 2, 0)
		err := store.UpsertLatest(ctx, record, 1)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)

		got, err := store.GetLatest(ctx, "123456")
		require.NoError(t, err)
		assert.Equal(t, uint32(2), got.ContentVersion)
		assert.Equal(t, uint64(2), got.SeenCount)
	})

	t.Run("update of unknown group conflicts", func(t *testing.T) {
		record := buildTestRecord("999999", 2, 6, 0)
		err := store.UpsertLatest(ctx, record, 5)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})
}

func testAppendHistory(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.AppendHistory(ctx, buildTestHistory("123456", 1, 0)))

	err := store.AppendHistory(ctx, buildTestHistory("123456", 1, time.Minute))
	assert.ErrorIs(t, err, domain.ErrDuplicateVersion)

	require.NoError(t, store.AppendHistory(ctx, buildTestHistory("123456", 2, time.Hour)))
	require.NoError(t, store.AppendHistory(ctx, buildTestHistory("654321", 1, 0)))

	entries, err := store.GetHistory(ctx, "123456", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint32(2), entries[0].ContentVersion)
	assert.Equal(t, uint32(1), entries[1].ContentVersion)
	assert.Equal(t, "content v2", entries[0].Content)
	assert.Equal(t, []string{"日常"}, entries[0].Tags)
	assert.Equal(t, domain.GroupTypeExchange, entries[0].ClassificationHints.GroupType)
	assert.True(t, baseTime.Add(time.Hour).Equal(entries[0].CreatedAt))

	limited, err := store.GetHistory(ctx, "123456", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, uint32(2), limited[0].ContentVersion)

	none, err := store.GetHistory(ctx, "000000", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testRunInTx(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("commit persists both writes", func(t *testing.T) {
		record := buildTestRecord("700001", 1, 1, 0)
		err := store.RunInTx(ctx, func(tx Gateway) error {
			if err := tx.UpsertLatest(ctx, record, 0); err != nil {
				return err
			}
			return tx.AppendHistory(ctx, buildTestHistory("700001", 1, 0))
		})
		require.NoError(t, err)

		got, err := store.GetLatest(ctx, "700001")
		require.NoError(t, err)
		assertRecordEqual(t, record, got)

		entries, err := store.GetHistory(ctx, "700001", 0)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("error rolls back both writes", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.RunInTx(ctx, func(tx Gateway) error {
			if err := tx.UpsertLatest(ctx, buildTestRecord("700002", 1, 1, 0), 0); err != nil {
				return err
			}
			if err := tx.AppendHistory(ctx, buildTestHistory("700002", 1, 0)); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := store.GetLatest(ctx, "700002")
		require.NoError(t, err)
		assert.Nil(t, got)

		entries, err := store.GetHistory(ctx, "700002", 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("duplicate version inside transaction is reported and rolled back", func(t *testing.T) {
		err := store.RunInTx(ctx, func(tx Gateway) error {
			latest, err := tx.GetLatest(ctx, "700001")
			if err != nil {
				return err
			}
			next := *latest
			next.SeenCount++
			if err := tx.UpsertLatest(ctx, &next, latest.SeenCount); err != nil {
				return err
			}
			return tx.AppendHistory(ctx, buildTestHistory("700001", 1, time.Hour))
		})
		assert.ErrorIs(t, err, domain.ErrDuplicateVersion)

		got, err := store.GetLatest(ctx, "700001")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), got.SeenCount)
	})

	t.Run("conflict inside transaction is reported unchanged", func(t *testing.T) {
		err := store.RunInTx(ctx, func(tx Gateway) error {
			return tx.UpsertLatest(ctx, buildTestRecord("700001", 1, 1, 0), 0)
		})
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
		assert.NotErrorIs(t, err, domain.ErrStorageUnavailable)
	})
}

func testListGroups(t *testing.T, store Store) {
	ctx := context.Background()
	seedGroups(t, store)

	t.Run("no filter sorts by first seen ascending", func(t *testing.T) {
		records, total, err := store.ListGroups(ctx, GroupFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Equal(t, []string{"111111", "222222", "333111"}, groupIDs(records))
	})

	t.Run("sort by last seen descending", func(t *testing.T) {
		records, _, err := store.ListGroups(ctx, GroupFilter{SortBy: SortByLastSeenGroup, SortDesc: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"111111", "333111", "222222"}, groupIDs(records))
	})

	t.Run("pagination keeps total", func(t *testing.T) {
		records, total, err := store.ListGroups(ctx, GroupFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Equal(t, []string{"222222"}, groupIDs(records))
	})

	t.Run("group type filter", func(t *testing.T) {
		gt := domain.GroupTypeExchange
		records, total, err := store.ListGroups(ctx, GroupFilter{GroupType: &gt})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, []string{"222222"}, groupIDs(records))
	})

	t.Run("worldview filter", func(t *testing.T) {
		wv := domain.WorldviewSciFi
		records, _, err := store.ListGroups(ctx, GroupFilter{Worldview: &wv})
		require.NoError(t, err)
		assert.Equal(t, []string{"333111"}, groupIDs(records))
	})

	t.Run("flag filters", func(t *testing.T) {
		records, _, err := store.ListGroups(ctx, GroupFilter{HasSexualContent: boolPtr(true)})
		require.NoError(t, err)
		assert.Equal(t, []string{"333111"}, groupIDs(records))

		records, _, err = store.ListGroups(ctx, GroupFilter{NoAuditNoSetting: boolPtr(false)})
		require.NoError(t, err)
		assert.Equal(t, []string{"111111", "333111"}, groupIDs(records))
	})

	t.Run("group id substring filter", func(t *testing.T) {
		records, total, err := store.ListGroups(ctx, GroupFilter{GroupID: "111"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Equal(t, []string{"111111", "333111"}, groupIDs(records))
	})

	t.Run("offset past the end returns empty page", func(t *testing.T) {
		records, total, err := store.ListGroups(ctx, GroupFilter{Limit: 10, Offset: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Empty(t, records)
	})
}

func testRecentGroups(t *testing.T, store Store) {
	ctx := context.Background()
	seedGroups(t, store)

	records, err := store.RecentGroups(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"111111", "333111"}, groupIDs(records))
}

func testSearchGroups(t *testing.T, store Store) {
	ctx := context.Background()
	seedGroups(t, store)

	records, err := store.SearchGroups(ctx, "机甲", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"333111"}, groupIDs(records))

	records, err = store.SearchGroups(ctx, "招募", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"111111"}, groupIDs(records))

	records, err = store.SearchGroups(ctx, "不存在的关键词", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func testGetStats(t *testing.T, store Store) {
	ctx := context.Background()

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalGroups)
	assert.Equal(t, int64(0), stats.TotalSeenCount)

	seedGroups(t, store)
	require.NoError(t, store.AppendHistory(ctx, buildTestHistory("111111", 1, 0)))
	require.NoError(t, store.AppendHistory(ctx, buildTestHistory("222222", 1, 0)))
	require.NoError(t, store.AppendHistory(ctx, buildTestHistory("222222", 2, time.Hour)))

	stats, err = store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalGroups)
	assert.Equal(t, int64(3), stats.TotalHistoryRecords)
	assert.Equal(t, int64(6), stats.TotalSeenCount)
	assert.Equal(t, map[domain.GroupType]int64{
		domain.GroupTypeRolePlay: 2,
		domain.GroupTypeExchange: 1,
	}, stats.GroupTypeStats)
}

func testReset(t *testing.T, store Store) {
	ctx := context.Background()
	seedGroups(t, store)
	require.NoError(t, store.AppendHistory(ctx, buildTestHistory("111111", 1, 0)))

	require.NoError(t, store.Reset(ctx))

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalGroups)
	assert.Equal(t, int64(0), stats.TotalHistoryRecords)

	// Tables are usable after reset
	require.NoError(t, store.UpsertLatest(ctx, buildTestRecord("111111", 1, 1, 0), 0))
}

func testPing(t *testing.T, store Store) {
	assert.True(t, store.Ping(context.Background()))
	assert.NotEmpty(t, store.Backend())
}

// RunStoreTests runs all store tests against a specific implementation
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(*testing.T, Store)
	}{
		{"GetLatestMissing", testGetLatestMissing},
		{"UpsertLatest", testUpsertLatest},
		{"AppendHistory", testAppendHistory},
		{"RunInTx", testRunInTx},
		{"ListGroups", testListGroups},
		{"RecentGroups", testRecentGroups},
		{"SearchGroups", testSearchGroups},
		{"GetStats", testGetStats},
		{"Reset", testReset},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := initDB(t)
			defer cleanupDB(t)
			tt.fn(t, store)
		})
	}
}

func TestNormalizeConnectionPoolSettings(t *testing.T) {
	tests := []struct {
		name         string
		maxOpen      int
		maxIdle      int
		lifetime     time.Duration
		idleTime     time.Duration
		wantOpen     int
		wantIdle     int
		wantLifetime time.Duration
		wantIdleTime time.Duration
	}{
		{
			name:         "defaults",
			wantOpen:     20,
			wantIdle:     5,
			wantLifetime: 5 * time.Minute,
			wantIdleTime: 10 * time.Minute,
		},
		{
			name:         "idle clamped to open",
			maxOpen:      2,
			maxIdle:      8,
			lifetime:     time.Minute,
			idleTime:     time.Second,
			wantOpen:     2,
			wantIdle:     2,
			wantLifetime: time.Minute,
			wantIdleTime: time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open, idle, lifetime, idleTime := NormalizeConnectionPoolSettings(tt.maxOpen, tt.maxIdle, tt.lifetime, tt.idleTime)
			assert.Equal(t, tt.wantOpen, open)
			assert.Equal(t, tt.wantIdle, idle)
			assert.Equal(t, tt.wantLifetime, lifetime)
			assert.Equal(t, tt.wantIdleTime, idleTime)
		})
	}
}
