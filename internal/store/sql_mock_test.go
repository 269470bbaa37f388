package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/mocks"
	"github.com/groupwatch/group-indexer/internal/store"
)

// openSQLiteWithJSON opens a private in-memory database and two stores over it: one
// using jsonAdapter for its JSON columns and one using the real adapter
func openSQLiteWithJSON(t *testing.T, jsonAdapter adapter.JSON) (store.Store, store.Store) {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := store.OpenDB(store.Config{
		Driver:       store.DriverSQLite,
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)

	reference := store.NewSQLStore(db, adapter.NewJSON())
	require.NoError(t, reference.Migrate(context.Background()))
	t.Cleanup(func() { _ = reference.Close() })

	return store.NewSQLStore(db, jsonAdapter), reference
}

func TestSQLStore_JSONColumnsUseAdapter(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		setupMocks func(j *mocks.MockJSON)
		run        func(t *testing.T, s, reference store.Store)
	}{
		{
			name: "round trip",
			setupMocks: func(j *mocks.MockJSON) {
				j.EXPECT().Marshal(gomock.Any()).DoAndReturn(json.Marshal).Times(2)
				j.EXPECT().Unmarshal(gomock.Any(), gomock.Any()).DoAndReturn(json.Unmarshal).Times(2)
			},
			run: func(t *testing.T, s, _ store.Store) {
				record := buildRecord("123456", 1, 1, 0)
				record.Tags = []string{"古风", "纯爱"}
				require.NoError(t, s.UpsertLatest(ctx, record, 0))

				got, err := s.GetLatest(ctx, "123456")
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, record.Tags, got.Tags)
				assert.Equal(t, record.ClassificationHints, got.ClassificationHints)
			},
		},
		{
			name: "marshal failure writes nothing",
			setupMocks: func(j *mocks.MockJSON) {
				j.EXPECT().Marshal(gomock.Any()).Return(nil, errors.New("unsupported value"))
			},
			run: func(t *testing.T, s, reference store.Store) {
				err := s.UpsertLatest(ctx, buildRecord("123456", 1, 1, 0), 0)
				require.Error(t, err)
				assert.Contains(t, err.Error(), "failed to marshal tags")

				got, err := reference.GetLatest(ctx, "123456")
				require.NoError(t, err)
				assert.Nil(t, got)
			},
		},
		{
			name: "unmarshal failure on read",
			setupMocks: func(j *mocks.MockJSON) {
				j.EXPECT().Unmarshal(gomock.Any(), gomock.Any()).Return(errors.New("unexpected end of JSON input"))
			},
			run: func(t *testing.T, s, reference store.Store) {
				require.NoError(t, reference.UpsertLatest(ctx, buildRecord("123456", 1, 1, 0), 0))

				got, err := s.GetLatest(ctx, "123456")
				require.Error(t, err)
				assert.Nil(t, got)
				assert.Contains(t, err.Error(), "failed to decode latest record")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			jsonMock := mocks.NewMockJSON(ctrl)
			tt.setupMocks(jsonMock)

			s, reference := openSQLiteWithJSON(t, jsonMock)
			tt.run(t, s, reference)
		})
	}
}
