package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/api/shared/dto"
	"github.com/groupwatch/group-indexer/internal/domain"
	"github.com/groupwatch/group-indexer/internal/logger"
	"github.com/groupwatch/group-indexer/internal/pipeline"
	"github.com/groupwatch/group-indexer/internal/store"
)

func TestMain(m *testing.M) {
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	m.Run()
}

type testApp struct {
	app *app
	out *bytes.Buffer
}

func setupTestApp(t *testing.T) *testApp {
	fs := adapter.NewFileSystem()
	jsonAdapter := adapter.NewJSON()
	clock := adapter.NewClock()

	dataStore, err := store.NewFileStore(t.TempDir(), fs, jsonAdapter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dataStore.Close() })

	processor, err := pipeline.Build(pipeline.BuildOptions{}, dataStore, fs, adapter.NewYAML(), clock)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	return &testApp{
		app: &app{
			store:     dataStore,
			processor: processor,
			json:      jsonAdapter,
			clock:     clock,
			in:        strings.NewReader(""),
			out:       out,
		},
		out: out,
	}
}

func (ta *testApp) process(t *testing.T, text string, args ...string) pipeline.Result {
	ta.out.Reset()
	ta.app.in = strings.NewReader(text)

	err := ta.app.run(context.Background(), append([]string{"process"}, args...))
	require.NoError(t, err)

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &result))
	return result
}

func TestRun_Usage(t *testing.T) {
	ta := setupTestApp(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: nil},
		{name: "unknown command", args: []string{"drop"}},
		{name: "reset without force", args: []string{"reset"}},
		{name: "reset with unknown flag", args: []string{"reset", "-yes"}},
		{name: "show without id", args: []string{"show"}},
		{name: "history without id", args: []string{"history"}},
		{name: "history with invalid limit", args: []string{"history", "-limit", "0", "123456"}},
		{name: "search without keyword", args: []string{"search"}},
		{name: "search with blank keyword", args: []string{"search", " "}},
		{name: "search with invalid limit", args: []string{"search", "-limit", "0", "古风"}},
		{name: "recent with argument", args: []string{"recent", "5"}},
		{name: "recent with negative limit", args: []string{"recent", "-limit", "-1"}},
		{name: "sample with unknown flag", args: []string{"sample", "-n", "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ta.app.run(context.Background(), tt.args)
			assert.ErrorIs(t, err, errUsage)
		})
	}
}

func TestRun_Init(t *testing.T) {
	ta := setupTestApp(t)

	err := ta.app.run(context.Background(), []string{"init"})
	require.NoError(t, err)
	assert.Equal(t, "initialized file storage\n", ta.out.String())
}

func TestRun_ProcessAndShow(t *testing.T) {
	ta := setupTestApp(t)

	first := ta.process(t, "古风原创语C 群号：123456789\n")
	assert.Equal(t, "123456789", first.GroupID)
	assert.EqualValues(t, 1, first.ContentVersion)

	second := ta.process(t, "古风原创语C 群号：123456789 招人啦", "-source", "manual")
	assert.Equal(t, "123456789", second.GroupID)
	assert.EqualValues(t, 2, second.ContentVersion)
	assert.True(t, second.ContentChanged)

	ta.out.Reset()
	err := ta.app.run(context.Background(), []string{"show", "123456789"})
	require.NoError(t, err)

	var group dto.GroupResponse
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &group))
	assert.Equal(t, "123456789", group.GroupID)
	assert.Equal(t, "古风原创语C 群号：123456789 招人啦", group.Content)

	ta.out.Reset()
	err = ta.app.run(context.Background(), []string{"history", "-limit", "1", "123456789"})
	require.NoError(t, err)

	var history dto.HistoryResponse
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &history))
	assert.Equal(t, 1, history.Count)
	require.Len(t, history.History, 1)
	assert.EqualValues(t, 2, history.History[0].ContentVersion)
}

func TestRun_ProcessWithEventGroupID(t *testing.T) {
	ta := setupTestApp(t)

	result := ta.process(t, "no digits here", "-group", "987654")
	assert.Equal(t, "987654", result.GroupID)
}

func TestRun_ProcessNoIdentifier(t *testing.T) {
	ta := setupTestApp(t)
	ta.app.in = strings.NewReader("just chatting")

	err := ta.app.run(context.Background(), []string{"process"})
	assert.ErrorIs(t, err, domain.ErrNoIdentifierFound)
}

func TestRun_NotFound(t *testing.T) {
	ta := setupTestApp(t)

	err := ta.app.run(context.Background(), []string{"show", "404404"})
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)

	err = ta.app.run(context.Background(), []string{"history", "404404"})
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)
}

func TestRun_StatsAndReset(t *testing.T) {
	ta := setupTestApp(t)
	ta.process(t, "群号 11111111")
	ta.process(t, "群号 22222222")

	ta.out.Reset()
	err := ta.app.run(context.Background(), []string{"stats"})
	require.NoError(t, err)

	var stats dto.StatsResponse
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &stats))
	assert.EqualValues(t, 2, stats.TotalGroups)
	assert.EqualValues(t, 2, stats.TotalHistoryRecords)

	ta.out.Reset()
	err = ta.app.run(context.Background(), []string{"reset", "-force"})
	require.NoError(t, err)
	assert.Equal(t, "reset file storage\n", ta.out.String())

	ta.out.Reset()
	err = ta.app.run(context.Background(), []string{"stats"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &stats))
	assert.EqualValues(t, 0, stats.TotalGroups)
}

func TestRun_Search(t *testing.T) {
	ta := setupTestApp(t)
	ta.process(t, "古风原创语C 群号：123456789")
	ta.process(t, "现代都市交友 群号：22222222")
	ta.process(t, "古风仙侠 群号：33333333")

	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{name: "matches content", args: []string{"search", "都市"}, expected: []string{"22222222"}},
		{name: "case insensitive", args: []string{"search", "语c"}, expected: []string{"123456789"}},
		{name: "limit", args: []string{"search", "-limit", "1", "古风"}, expected: nil},
		{name: "no match", args: []string{"search", "科幻"}, expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta.out.Reset()
			err := ta.app.run(context.Background(), tt.args)
			require.NoError(t, err)

			var resp dto.SearchResponse
			require.NoError(t, json.Unmarshal(ta.out.Bytes(), &resp))
			assert.Equal(t, tt.args[len(tt.args)-1], resp.Keyword)
			if tt.expected == nil {
				assert.Equal(t, 1, resp.Count)
				require.Len(t, resp.Groups, 1)
				assert.Contains(t, resp.Groups[0].Content, "古风")
				return
			}

			ids := make([]string, 0, len(resp.Groups))
			for _, g := range resp.Groups {
				ids = append(ids, g.GroupID)
			}
			assert.ElementsMatch(t, tt.expected, ids)
			assert.Equal(t, len(tt.expected), resp.Count)
		})
	}
}

func TestRun_Recent(t *testing.T) {
	ta := setupTestApp(t)
	ta.process(t, "群号 11111111")
	ta.process(t, "群号 22222222")
	ta.process(t, "群号 33333333")

	tests := []struct {
		name  string
		args  []string
		count int
	}{
		{name: "default limit", args: []string{"recent"}, count: 3},
		{name: "explicit limit", args: []string{"recent", "-limit", "2"}, count: 2},
		{name: "sample alias", args: []string{"sample", "-limit", "1"}, count: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta.out.Reset()
			err := ta.app.run(context.Background(), tt.args)
			require.NoError(t, err)

			var resp dto.GroupsResponse
			require.NoError(t, json.Unmarshal(ta.out.Bytes(), &resp))
			assert.Equal(t, tt.count, resp.Count)
			assert.Len(t, resp.Groups, tt.count)
		})
	}
}

func TestRun_Ping(t *testing.T) {
	for _, cmd := range []string{"ping", "test"} {
		t.Run(cmd, func(t *testing.T) {
			ta := setupTestApp(t)

			err := ta.app.run(context.Background(), []string{cmd})
			require.NoError(t, err)
			assert.Equal(t, "file storage is reachable\n", ta.out.String())
		})
	}
}

func TestRun_PingUnreachable(t *testing.T) {
	dir := t.TempDir()
	dataStore, err := store.NewFileStore(dir, adapter.NewFileSystem(), adapter.NewJSON())
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	out := &bytes.Buffer{}
	a := &app{store: dataStore, json: adapter.NewJSON(), clock: adapter.NewClock(), out: out}

	err = a.run(context.Background(), []string{"ping"})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Empty(t, out.String())
}
