package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/config"
	"github.com/groupwatch/group-indexer/internal/extractor"
	"github.com/groupwatch/group-indexer/internal/logger"
	"github.com/groupwatch/group-indexer/internal/pipeline"
	"github.com/groupwatch/group-indexer/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
	}
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadCtlConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger; errors are reported on stderr so sentry stays off
	err = logger.Initialize(logger.Config{Debug: cfg.Debug})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, cfg, flag.Args())
	stop()

	logger.Flush(time.Second)
	os.Exit(code)
}

func execute(ctx context.Context, cfg *config.CtlConfig, args []string) int {
	fs := adapter.NewFileSystem()
	jsonAdapter := adapter.NewJSON()
	clock := adapter.NewClock()

	storeConfig := config.StoreConfig(cfg.Debug, cfg.Storage, cfg.Database)
	storeConfig.AutoMigrate = len(args) > 0 && args[0] == "init"

	dataStore, err := store.Open(ctx, storeConfig, fs, jsonAdapter)
	if err != nil {
		logger.Error(err, zap.String("driver", cfg.Storage.Driver))
		return 1
	}
	defer func() {
		if err := dataStore.Close(); err != nil {
			logger.Error(err, zap.String("component", "store"))
		}
	}()

	processor, err := pipeline.Build(pipeline.BuildOptions{
		Config: pipeline.Config{
			MaxAttempts:    cfg.Pipeline.MaxAttempts,
			InitialBackoff: cfg.Pipeline.InitialBackoff,
			MaxBackoff:     cfg.Pipeline.MaxBackoff,
		},
		SanitizerPatterns: cfg.Processing.SanitizerPatterns,
		Extractor: extractor.Config{
			MinDigits: cfg.Processing.MinDigits,
			MaxDigits: cfg.Processing.MaxDigits,
			Labels:    cfg.Processing.Labels,
		},
		RulesPath: cfg.Processing.ClassifierRulesPath,
	}, dataStore, fs, adapter.NewYAML(), clock)
	if err != nil {
		logger.Error(err, zap.String("component", "pipeline"))
		return 1
	}

	a := &app{
		store:     dataStore,
		processor: processor,
		json:      jsonAdapter,
		clock:     clock,
		in:        os.Stdin,
		out:       os.Stdout,
	}

	if err := a.run(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "groupctl: %v\n", err)
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			return 2
		}
		return 1
	}

	return 0
}
