package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/domain"
	"github.com/groupwatch/group-indexer/internal/logger"
	"github.com/groupwatch/group-indexer/internal/pipeline"
	"github.com/groupwatch/group-indexer/internal/reconciler"
	"github.com/groupwatch/group-indexer/internal/store"
)

const (
	defaultDriver   = store.DriverFile
	baseGroupNumber = 100000000
)

// announcementTemplates are rotated so the classifier sees every group type
var announcementTemplates = []string{
	"现代原创语C 招人 群号：%d 审核严格 %s",
	"古风玄幻戏群 开团啦 群号 %d %s",
	"互宣交流 水群闲聊 欢迎加入 %d %s",
	"兼职日结 刷单返利 加微信 群%d %s",
}

const noiseText = "今天天气不错，大家晚上好"

type Config struct {
	Driver      string
	DSN         string
	DataDir     string
	Messages    int // Total observations to process
	Groups      int // Distinct group ids the observations spread over
	Revisions   int // Distinct contents per group
	NoisePct    int // Share of observations without any group id
	Concurrency int // Number of concurrent workers
	OutputFile  string
	Debug       bool
}

type BenchmarkStats struct {
	Backend     string
	Messages    int
	Succeeded   int
	Dropped     int
	Failed      int
	Actions     map[reconciler.Action]int
	Retried     int
	MaxAttempts int
	Latencies   []time.Duration
	StartTime   time.Time
	Duration    time.Duration
	Errors      map[string]int
	Final       *domain.GroupStats
}

func main() {
	cfg := parseFlags()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	level := "warn"
	if cfg.Debug {
		level = "debug"
	}
	if err := logger.Initialize(logger.Config{Debug: cfg.Debug, Level: level}); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	if cfg.Driver == store.DriverFile && cfg.DataDir == "" {
		dir, err := os.MkdirTemp("", "group-indexer-benchmark-")
		if err != nil {
			fmt.Printf("Error creating data directory: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = os.RemoveAll(dir) }()
		cfg.DataDir = dir
	}

	fs := adapter.NewFileSystem()
	jsonAdapter := adapter.NewJSON()
	clock := adapter.NewClock()

	dataStore, err := store.Open(ctx, store.Config{
		Driver:      cfg.Driver,
		DSN:         cfg.DSN,
		FilePath:    cfg.DataDir,
		AutoMigrate: true,
		Debug:       cfg.Debug,
	}, fs, jsonAdapter)
	if err != nil {
		fmt.Printf("Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = dataStore.Close() }()

	processor, err := pipeline.Build(pipeline.BuildOptions{}, dataStore, fs, adapter.NewYAML(), clock)
	if err != nil {
		fmt.Printf("Error building pipeline: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Storage backend: %s\n", dataStore.Backend())
	fmt.Printf("Processing %d messages over %d groups with %d workers...\n", cfg.Messages, cfg.Groups, cfg.Concurrency)

	stats := runBenchmark(ctx, cfg, processor, clock)
	stats.Backend = dataStore.Backend()

	stats.Final, err = dataStore.GetStats(context.Background())
	if err != nil {
		fmt.Printf("\n⚠️  Warning: Failed to read final stats: %v\n", err)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	if ctx.Err() != nil {
		fmt.Println("INTERRUPTED - PARTIAL RESULTS")
	} else {
		fmt.Println("BENCHMARK RESULTS")
	}
	fmt.Println(strings.Repeat("=", 80))
	printStats(stats)

	// Write to markdown file if specified
	if cfg.OutputFile != "" {
		if err := writeMarkdownReport(cfg.OutputFile, stats); err != nil {
			fmt.Printf("\n⚠️  Warning: Failed to write markdown file: %v\n", err)
		} else {
			fmt.Printf("\n✓ Report written to: %s\n", cfg.OutputFile)
		}
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Driver, "driver", defaultDriver, "Storage driver: file, sqlite, mysql or postgres")
	flag.StringVar(&cfg.DSN, "dsn", "", "Database DSN (ignored by the file driver)")
	flag.StringVar(&cfg.DataDir, "data-dir", "", "Directory of the file driver (default: temporary directory)")
	flag.IntVar(&cfg.Messages, "messages", 1000, "Number of messages to process")
	flag.IntVar(&cfg.Groups, "groups", 50, "Number of distinct groups")
	flag.IntVar(&cfg.Revisions, "revisions", 3, "Number of distinct contents per group")
	flag.IntVar(&cfg.NoisePct, "noise", 10, "Percentage of messages without a group id")
	flag.IntVar(&cfg.Concurrency, "concurrency", 8, "Number of concurrent workers")
	flag.StringVar(&cfg.OutputFile, "output", "", "Output markdown file path (optional)")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")

	configFile := flag.String("config", "", "Path to config file (optional)")

	flag.Parse()

	// Load from config file if specified
	if *configFile != "" {
		fileCfg, err := LoadConfig(*configFile)
		if err != nil {
			fmt.Printf("Warning: Failed to load config file: %v\n", err)
		} else {
			applyFileConfig(cfg, fileCfg)
		}
	} else if fileCfg, err := LoadConfig(GetDefaultConfigPath()); err == nil {
		applyFileConfig(cfg, fileCfg)
	}

	normalizeConfig(cfg)
	return cfg
}

// applyFileConfig fills storage settings not given on the command line
func applyFileConfig(cfg *Config, fileCfg *BenchmarkConfig) {
	if cfg.Driver == defaultDriver && fileCfg.Driver != "" {
		cfg.Driver = fileCfg.Driver
	}
	if cfg.DSN == "" {
		cfg.DSN = fileCfg.DSN
	}
	if cfg.DataDir == "" {
		cfg.DataDir = fileCfg.DataDir
	}
}

func normalizeConfig(cfg *Config) {
	if cfg.Messages <= 0 {
		cfg.Messages = 1000
	}
	if cfg.Groups <= 0 {
		cfg.Groups = 1
	}
	if cfg.Revisions <= 0 {
		cfg.Revisions = 1
	}
	if cfg.NoisePct < 0 {
		cfg.NoisePct = 0
	}
	if cfg.NoisePct > 100 {
		cfg.NoisePct = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
}

// buildObservations spreads cfg.Messages observations round-robin over the groups.
// Each group cycles through cfg.Revisions contents, so later passes repeat earlier ones.
func buildObservations(cfg *Config, start time.Time) []domain.Observation {
	observations := make([]domain.Observation, 0, cfg.Messages)
	for i := 0; i < cfg.Messages; i++ {
		text := noiseText
		if i%100 >= cfg.NoisePct {
			group := baseGroupNumber + i%cfg.Groups
			revision := (i / cfg.Groups) % cfg.Revisions
			template := announcementTemplates[(i%cfg.Groups)%len(announcementTemplates)]
			text = fmt.Sprintf(template, group, fmt.Sprintf("v%d", revision+1))
		}

		observations = append(observations, domain.Observation{
			MessageID: fmt.Sprintf("bench-%d", i),
			RawText:   text,
			Timestamp: start.Add(time.Duration(i) * time.Millisecond),
			Source:    "benchmark",
			BatchID:   "benchmark",
		})
	}
	return observations
}

func runBenchmark(ctx context.Context, cfg *Config, processor pipeline.Processor, clock adapter.Clock) *BenchmarkStats {
	stats := &BenchmarkStats{
		Messages: cfg.Messages,
		Actions:  make(map[reconciler.Action]int),
		Errors:   make(map[string]int),
	}
	observations := buildObservations(cfg, clock.Now().UTC())

	var mu sync.Mutex
	pool := pond.NewPool(cfg.Concurrency, pond.WithContext(ctx))

	stats.StartTime = clock.Now()
	for _, obs := range observations {
		pool.Submit(func() {
			began := clock.Now()
			result, err := processor.Process(ctx, obs)
			elapsed := clock.Since(began)

			mu.Lock()
			defer mu.Unlock()

			stats.Latencies = append(stats.Latencies, elapsed)
			switch {
			case errors.Is(err, domain.ErrNoIdentifierFound):
				stats.Dropped++
			case err != nil:
				stats.Failed++
				stats.Errors[err.Error()]++
			default:
				stats.Succeeded++
				stats.Actions[result.Action]++
				if result.Attempts > 1 {
					stats.Retried++
				}
				if result.Attempts > stats.MaxAttempts {
					stats.MaxAttempts = result.Attempts
				}
			}
		})
	}
	pool.StopAndWait()
	stats.Duration = clock.Since(stats.StartTime)

	return stats
}

func sortedActions(actions map[reconciler.Action]int) []reconciler.Action {
	keys := make([]reconciler.Action, 0, len(actions))
	for a := range actions {
		keys = append(keys, a)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func printStats(stats *BenchmarkStats) {
	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("%s Backend: %s\n", statusEmoji(stats.Succeeded, stats.Failed), stats.Backend)
	fmt.Printf("  Start Time:  %s\n", stats.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Duration:    %s\n", formatDuration(stats.Duration))
	fmt.Printf("  Throughput:  %s\n", formatRate(stats.Messages, stats.Duration))
	fmt.Println()

	fmt.Printf("Messages:\n")
	fmt.Printf("  Total:       %d\n", stats.Messages)
	fmt.Printf("  Succeeded:   %d (%s)\n", stats.Succeeded, percentageString(stats.Succeeded, stats.Messages))
	fmt.Printf("  Dropped:     %d (%s)\n", stats.Dropped, percentageString(stats.Dropped, stats.Messages))
	if stats.Failed > 0 {
		fmt.Printf("  Failed:      %d (%s)\n", stats.Failed, percentageString(stats.Failed, stats.Messages))
	}
	fmt.Printf("  Retried:     %d (max attempts %d)\n", stats.Retried, stats.MaxAttempts)
	fmt.Println()

	fmt.Println("Actions:")
	for _, a := range sortedActions(stats.Actions) {
		fmt.Printf("  %-28s %d\n", a, stats.Actions[a])
	}
	fmt.Println()

	fmt.Println("Latency:")
	fmt.Printf("  p50:         %s\n", formatDuration(percentile(stats.Latencies, 50)))
	fmt.Printf("  p95:         %s\n", formatDuration(percentile(stats.Latencies, 95)))
	fmt.Printf("  max:         %s\n", formatDuration(percentile(stats.Latencies, 100)))

	if stats.Final != nil {
		fmt.Println()
		fmt.Println("Stored:")
		fmt.Printf("  Groups:      %d\n", stats.Final.TotalGroups)
		fmt.Printf("  History:     %d\n", stats.Final.TotalHistoryRecords)
		fmt.Printf("  Seen Count:  %d\n", stats.Final.TotalSeenCount)
	}

	if len(stats.Errors) > 0 {
		fmt.Println()
		fmt.Println("Errors:")
		for msg, n := range stats.Errors {
			fmt.Printf("  %dx %s\n", n, msg)
		}
	}

	fmt.Println(strings.Repeat("-", 80))
}

// writeMarkdownReport writes a markdown report of the benchmark stats
func writeMarkdownReport(filepath string, stats *BenchmarkStats) error {
	file, err := os.Create(filepath)
	if err != nil {
		return err
	}
	defer func() {
		_ = file.Close()
	}()

	var b strings.Builder
	b.WriteString("# Group Indexer Pipeline Benchmark\n\n")
	fmt.Fprintf(&b, "**Backend:** %s  \n", stats.Backend)
	fmt.Fprintf(&b, "**Start Time:** %s  \n", stats.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Duration:** %s  \n", formatDuration(stats.Duration))
	fmt.Fprintf(&b, "**Throughput:** %s\n\n", formatRate(stats.Messages, stats.Duration))

	b.WriteString("## Messages\n\n")
	b.WriteString("| Outcome | Count | Share |\n")
	b.WriteString("|---------|------:|------:|\n")
	fmt.Fprintf(&b, "| Succeeded | %d | %s |\n", stats.Succeeded, percentageString(stats.Succeeded, stats.Messages))
	fmt.Fprintf(&b, "| Dropped | %d | %s |\n", stats.Dropped, percentageString(stats.Dropped, stats.Messages))
	fmt.Fprintf(&b, "| Failed | %d | %s |\n", stats.Failed, percentageString(stats.Failed, stats.Messages))
	fmt.Fprintf(&b, "| Retried | %d | %s |\n\n", stats.Retried, percentageString(stats.Retried, stats.Messages))

	b.WriteString("## Actions\n\n")
	b.WriteString("| Action | Count |\n")
	b.WriteString("|--------|------:|\n")
	for _, a := range sortedActions(stats.Actions) {
		fmt.Fprintf(&b, "| %s | %d |\n", a, stats.Actions[a])
	}
	b.WriteString("\n")

	b.WriteString("## Latency\n\n")
	b.WriteString("| p50 | p95 | max |\n")
	b.WriteString("|----:|----:|----:|\n")
	fmt.Fprintf(&b, "| %s | %s | %s |\n",
		formatDuration(percentile(stats.Latencies, 50)),
		formatDuration(percentile(stats.Latencies, 95)),
		formatDuration(percentile(stats.Latencies, 100)))

	if stats.Final != nil {
		b.WriteString("\n## Stored\n\n")
		fmt.Fprintf(&b, "- Groups: %d\n", stats.Final.TotalGroups)
		fmt.Fprintf(&b, "- History records: %d\n", stats.Final.TotalHistoryRecords)
		fmt.Fprintf(&b, "- Total seen count: %d\n", stats.Final.TotalSeenCount)
	}

	_, err = file.WriteString(b.String())
	return err
}
