package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/domain"
)

// unreachableMySQL points at a closed local port so the connection is refused immediately
const unreachableMySQL = "user:pass@tcp(127.0.0.1:1)/groups?timeout=1s&parseTime=true"

func TestOpen(t *testing.T) {
	ctx := context.Background()
	fs := adapter.NewFileSystem()
	jsonAdapter := adapter.NewJSON()

	t.Run("file driver", func(t *testing.T) {
		st, err := Open(ctx, Config{Driver: DriverFile, FilePath: t.TempDir(), AutoMigrate: true}, fs, jsonAdapter)
		require.NoError(t, err)
		defer st.Close()
		assert.Equal(t, BackendFile, st.Backend())
		assert.True(t, st.Ping(ctx))
	})

	t.Run("sqlite driver", func(t *testing.T) {
		st, err := Open(ctx, Config{
			Driver:       DriverSQLite,
			DSN:          "file:open_test?mode=memory&cache=shared",
			MaxOpenConns: 1,
			AutoMigrate:  true,
		}, fs, jsonAdapter)
		require.NoError(t, err)
		defer st.Close()
		assert.Equal(t, DriverSQLite, st.Backend())

		require.NoError(t, st.UpsertLatest(ctx, buildTestRecord("123456", 1, 1, 0), 0))
	})

	t.Run("falls back to file store when database is unreachable", func(t *testing.T) {
		st, err := Open(ctx, Config{
			Driver:   DriverMySQL,
			DSN:      unreachableMySQL,
			FilePath: t.TempDir(),
			Fallback: true,
		}, fs, jsonAdapter)
		require.NoError(t, err)
		defer st.Close()
		assert.Equal(t, BackendFile, st.Backend())
	})

	t.Run("reports storage unavailable without fallback", func(t *testing.T) {
		_, err := Open(ctx, Config{
			Driver:   DriverMySQL,
			DSN:      unreachableMySQL,
			FilePath: t.TempDir(),
		}, fs, jsonAdapter)
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	})

	t.Run("unsupported driver", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: "oracle"}, fs, jsonAdapter)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database driver")
	})
}
