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
	"github.com/groupwatch/group-indexer/internal/listener"
	"github.com/groupwatch/group-indexer/internal/logger"
	"github.com/groupwatch/group-indexer/internal/providers/jetstream"
	"github.com/groupwatch/group-indexer/internal/providers/telegram"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadListenerConfig(*configFile, *envPath)
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
			"service": "group-listener",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Group Listener")

	// Initialize adapters
	clock := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()
	natsJS := adapter.NewNatsJetStream()
	telegramClient := adapter.NewTelegramClient()

	// Create telegram subscriber
	subscriber, err := telegram.NewSubscriber(
		telegram.Config{
			Token:          cfg.Telegram.Token,
			Debug:          cfg.Telegram.Debug,
			AllowedChatIDs: cfg.Telegram.AllowedChatIDs,
			UpdateTimeout:  cfg.Telegram.UpdateTimeout,
		},
		telegramClient,
		clock,
	)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create telegram subscriber", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to Telegram", zap.Int("allowed_chats", len(cfg.Telegram.AllowedChatIDs)))

	// Create NATS publisher
	publisher, err := jetstream.NewPublisher(
		jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		},
		natsJS,
		jsonAdapter,
		clock,
	)
	if err != nil {
		subscriber.Close()
		logger.FatalCtx(ctx, "Failed to create NATS publisher", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to NATS", zap.String("url", cfg.NATS.URL))

	chatListener := listener.NewListener(subscriber, publisher, listener.Config{
		StatsInterval: cfg.StatsInterval,
	}, clock)
	defer chatListener.Close()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel for listener errors
	errCh := make(chan error, 1)

	go func() {
		if err := chatListener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "listener"))
		cancel()
	}

	// Give some time for graceful shutdown
	time.Sleep(time.Second)

	logger.Info("Group Listener stopped")
}
