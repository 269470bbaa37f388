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
	"go.uber.org/zap/zapcore"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/config"
	"github.com/groupwatch/group-indexer/internal/extractor"
	"github.com/groupwatch/group-indexer/internal/ingest"
	"github.com/groupwatch/group-indexer/internal/logger"
	"github.com/groupwatch/group-indexer/internal/pipeline"
	"github.com/groupwatch/group-indexer/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadIndexerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "group-indexer",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Group Indexer")

	// Initialize adapters
	fs := adapter.NewFileSystem()
	jsonAdapter := adapter.NewJSON()
	yamlAdapter := adapter.NewYAML()
	clock := adapter.NewClock()
	natsJS := adapter.NewNatsJetStream()

	// Open storage, falling back to the file backend when configured
	dataStore, err := store.Open(ctx, config.StoreConfig(cfg.Debug, cfg.Storage, cfg.Database), fs, jsonAdapter)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to open store", zap.Error(err), zap.String("driver", cfg.Storage.Driver))
	}
	defer func() {
		if err := dataStore.Close(); err != nil {
			logger.Error(err, zap.String("component", "store"))
		}
	}()
	logger.InfoCtx(ctx, "Opened store", zap.String("backend", dataStore.Backend()))

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
	}, dataStore, fs, yamlAdapter, clock)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to build pipeline", zap.Error(err))
	}

	// Create ingest consumer
	consumer, err := ingest.NewConsumer(
		ingest.Config{
			URL:             cfg.NATS.URL,
			StreamName:      cfg.NATS.StreamName,
			ConsumerName:    cfg.NATS.ConsumerName,
			MaxReconnects:   cfg.NATS.MaxReconnects,
			ReconnectWait:   cfg.NATS.ReconnectWait,
			ConnectionName:  cfg.NATS.ConnectionName,
			AckWaitTimeout:  cfg.NATS.AckWait,
			MaxDeliver:      cfg.NATS.MaxDeliver,
			WorkerPoolSize:  cfg.Worker.WorkerPoolSize,
			WorkerQueueSize: cfg.Worker.WorkerQueueSize,
		},
		natsJS,
		processor,
		jsonAdapter,
	)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create ingest consumer", zap.Error(err))
	}
	defer consumer.Close()
	logger.InfoCtx(ctx, "Ingest consumer created",
		zap.String("stream", cfg.NATS.StreamName),
		zap.String("consumer", cfg.NATS.ConsumerName),
	)

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel for consumer errors
	errCh := make(chan error, 1)

	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "consumer"))
		cancel()
	}

	// Give in-flight messages time to settle
	time.Sleep(time.Second)

	logger.Info("Group Indexer stopped")
}
