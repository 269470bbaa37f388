package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/api/shared/constants"
	"github.com/groupwatch/group-indexer/internal/api/shared/dto"
	"github.com/groupwatch/group-indexer/internal/domain"
	"github.com/groupwatch/group-indexer/internal/pipeline"
	"github.com/groupwatch/group-indexer/internal/store"
	"github.com/groupwatch/group-indexer/internal/types"
)

const usage = `Usage: groupctl [-config file] [-env dir] <command> [arguments]

Commands:
  init                              create the tables or data files
  reset -force                      drop every stored record
  stats                             print storage statistics
  show <group_id>                   print the latest record of a group
  history [-limit n] <group_id>     print the version history of a group
  search [-limit n] <keyword>       print groups whose content contains keyword
  recent [-limit n]                 print the most recently seen groups (alias: sample)
  ping                              check that the storage backend is reachable (alias: test)
  process [-source s] [-group id]   run one message read from stdin through the pipeline
`

// errUsage reports a malformed command line
var errUsage = errors.New("invalid usage")

// app executes groupctl commands against an opened store
type app struct {
	store     store.Store
	processor pipeline.Processor
	json      adapter.JSON
	clock     adapter.Clock
	in        io.Reader
	out       io.Writer
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "init":
		return a.initCmd(ctx)
	case "reset":
		return a.resetCmd(ctx, rest)
	case "stats":
		return a.statsCmd(ctx)
	case "show":
		return a.showCmd(ctx, rest)
	case "history":
		return a.historyCmd(ctx, rest)
	case "search":
		return a.searchCmd(ctx, rest)
	case "recent", "sample":
		return a.recentCmd(ctx, rest)
	case "ping", "test":
		return a.pingCmd(ctx)
	case "process":
		return a.processCmd(ctx, rest)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *app) initCmd(ctx context.Context) error {
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	_, err := fmt.Fprintf(a.out, "initialized %s storage\n", a.store.Backend())
	return err
}

func (a *app) resetCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	force := fs.Bool("force", false, "confirm dropping every stored record")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	if !*force {
		return fmt.Errorf("%w: reset drops every stored record, pass -force to confirm", errUsage)
	}

	if err := a.store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset storage: %w", err)
	}

	_, err := fmt.Fprintf(a.out, "reset %s storage\n", a.store.Backend())
	return err
}

func (a *app) statsCmd(ctx context.Context) error {
	stats, err := a.store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	return a.print(dto.MapStatsToDTO(stats))
}

func (a *app) showCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: show takes exactly one group id", errUsage)
	}

	record, err := a.store.GetLatest(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get group: %w", err)
	}
	if record == nil {
		return fmt.Errorf("%w: %s", domain.ErrGroupNotFound, args[0])
	}

	return a.print(dto.MapGroupToDTO(*record))
}

func (a *app) historyCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", constants.DEFAULT_HISTORY_LIMIT, "maximum number of versions")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: history takes exactly one group id", errUsage)
	}
	if *limit <= 0 {
		return fmt.Errorf("%w: limit must be positive", errUsage)
	}

	groupID := fs.Arg(0)
	entries, err := a.store.GetHistory(ctx, groupID, *limit)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: %s", domain.ErrGroupNotFound, groupID)
	}

	return a.print(dto.HistoryResponse{
		GroupID: groupID,
		History: dto.MapHistoryToDTO(entries),
		Count:   len(entries),
	})
}

func (a *app) searchCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", constants.DEFAULT_SEARCH_LIMIT, "maximum number of groups")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	keyword := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if keyword == "" {
		return fmt.Errorf("%w: search takes a keyword", errUsage)
	}
	n, err := parseLimit(*limit)
	if err != nil {
		return err
	}

	records, err := a.store.SearchGroups(ctx, keyword, n)
	if err != nil {
		return fmt.Errorf("failed to search groups: %w", err)
	}

	return a.print(dto.SearchResponse{
		Keyword: keyword,
		Groups:  dto.MapGroupsToDTO(records),
		Count:   len(records),
	})
}

func (a *app) recentCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("recent", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", constants.DEFAULT_RECENT_LIMIT, "maximum number of groups")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("%w: recent takes no arguments", errUsage)
	}
	n, err := parseLimit(*limit)
	if err != nil {
		return err
	}

	records, err := a.store.RecentGroups(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to get recent groups: %w", err)
	}

	return a.print(dto.GroupsResponse{
		Groups: dto.MapGroupsToDTO(records),
		Count:  len(records),
	})
}

func (a *app) pingCmd(ctx context.Context) error {
	if !a.store.Ping(ctx) {
		return fmt.Errorf("%w: %s storage is not reachable", domain.ErrStorageUnavailable, a.store.Backend())
	}

	_, err := fmt.Fprintf(a.out, "%s storage is reachable\n", a.store.Backend())
	return err
}

func (a *app) processCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	source := fs.String("source", "groupctl", "source recorded with the observation")
	groupID := fs.String("group", "", "group id supplied with the message")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	data, err := io.ReadAll(a.in)
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	messageID, err := types.GenerateUUID()
	if err != nil {
		return fmt.Errorf("failed to generate message id: %w", err)
	}

	result, err := a.processor.Process(ctx, domain.Observation{
		MessageID:    messageID,
		RawText:      strings.TrimRight(string(data), "\r\n"),
		EventGroupID: *groupID,
		Timestamp:    a.clock.Now().UTC(),
		Source:       *source,
	})
	if err != nil {
		return fmt.Errorf("failed to process message: %w", err)
	}

	return a.print(result)
}

// parseLimit rejects non-positive limits and caps the rest at the maximum page size
func parseLimit(limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("%w: limit must be positive", errUsage)
	}
	if limit > constants.MAX_PAGE_SIZE {
		return constants.MAX_PAGE_SIZE, nil
	}
	return limit, nil
}

func (a *app) print(v interface{}) error {
	data, err := a.json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	_, err = fmt.Fprintln(a.out, string(data))
	return err
}
