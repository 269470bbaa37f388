package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/domain"
	"github.com/groupwatch/group-indexer/internal/logger"
	"github.com/groupwatch/group-indexer/internal/pipeline"
	"github.com/groupwatch/group-indexer/internal/types"
)

// Subject is the filter subject covering every observation source
const Subject = "observations.>"

const (
	defaultWorkerPoolSize  = 8
	defaultWorkerQueueSize = 256
	excerptLength          = 50
)

// Config holds the configuration for the ingest consumer
type Config struct {
	URL             string
	StreamName      string
	ConsumerName    string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ConnectionName  string
	AckWaitTimeout  time.Duration
	MaxDeliver      int
	WorkerPoolSize  int
	WorkerQueueSize int
}

// Consumer defines the interface for the ingest consumer
type Consumer interface {
	// Run consumes observations until ctx is done
	Run(ctx context.Context) error
	// Close closes the consumer and cleans up resources
	Close()
}

type consumer struct {
	nc        adapter.NatsConn
	js        adapter.JetStream
	processor pipeline.Processor
	json      adapter.JSON
	config    Config
}

// NewConsumer creates a new ingest consumer
func NewConsumer(
	cfg Config,
	natsJS adapter.NatsJetStream,
	processor pipeline.Processor,
	jsonAdapter adapter.JSON,
) (Consumer, error) {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = defaultWorkerPoolSize
	}
	if cfg.WorkerQueueSize <= 0 {
		cfg.WorkerQueueSize = defaultWorkerQueueSize
	}

	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	return &consumer{
		nc:        nc,
		js:        js,
		processor: processor,
		json:      jsonAdapter,
		config:    cfg,
	}, nil
}

// Run starts consuming observations
func (c *consumer) Run(ctx context.Context) error {
	logger.Info("Starting ingest consumer", zap.String("stream", c.config.StreamName), zap.String("consumer", c.config.ConsumerName))

	consumerConfig := jetstream.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.config.AckWaitTimeout,
		MaxDeliver:    c.config.MaxDeliver,
		FilterSubject: Subject,
	}

	jsConsumer, err := c.js.CreateOrUpdateConsumer(ctx, c.config.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create/update consumer: %w", err)
	}

	consumerInfo, err := jsConsumer.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get consumer info: %w", err)
	}
	logger.Info("Consumer created/retrieved", zap.String("consumer", consumerInfo.Name))

	pool := pond.NewPool(c.config.WorkerPoolSize,
		pond.WithQueueSize(c.config.WorkerQueueSize),
		pond.WithContext(ctx))
	defer func() {
		pool.StopAndWait()
		logger.Info("Worker pool stopped",
			zap.Uint64("submitted", pool.SubmittedTasks()),
			zap.Uint64("successful", pool.SuccessfulTasks()),
			zap.Uint64("failed", pool.FailedTasks()),
			zap.Uint64("completed", pool.CompletedTasks()))
	}()

	msgChan := make(chan adapter.Message, c.config.WorkerQueueSize)
	sub, err := jsConsumer.Consume(func(msg adapter.Message) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	defer sub.Stop()

	logger.Info("Started consuming messages", zap.Int("workers", c.config.WorkerPoolSize))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down ingest consumer")
			return ctx.Err()
		case msg := <-msgChan:
			pool.Submit(func() {
				c.handleMessage(ctx, msg)
			})
		}
	}
}

// handleMessage runs a single message through the pipeline and settles it
func (c *consumer) handleMessage(ctx context.Context, msg adapter.Message) {
	var delivered uint64
	if metadata, err := msg.Metadata(); err == nil && metadata != nil {
		delivered = metadata.NumDelivered
	}

	var obs domain.Observation
	if err := c.json.Unmarshal(msg.Data(), &obs); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to unmarshal observation"), zap.String("subject", msg.Subject()))
		if err := msg.Term(); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("message", "Failed to terminate message"))
		}
		return
	}

	logger.DebugCtx(ctx, "Received observation",
		zap.String("subject", msg.Subject()),
		zap.String("source", obs.Source),
		zap.String("message_id", obs.MessageID),
		zap.Uint64("deliveryCount", delivered))

	result, err := c.processor.Process(ctx, obs)
	switch {
	case errors.Is(err, domain.ErrNoIdentifierFound):
		logger.InfoCtx(ctx, "Dropping observation without group identifier",
			zap.String("source", obs.Source),
			zap.String("excerpt", types.Excerpt(obs.RawText, excerptLength)))
	case err != nil:
		logger.ErrorCtx(ctx, err,
			zap.String("message", "Failed to process observation"),
			zap.String("source", obs.Source),
			zap.Uint64("deliveryCount", delivered))
		if err := msg.Nak(); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("message", "Failed to NAK message"))
		}
		return
	default:
		logger.DebugCtx(ctx, "Observation processed",
			zap.String("group_id", result.GroupID),
			zap.String("action", string(result.Action)))
	}

	if err := msg.Ack(); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to ACK message"))
	}
}

// Close closes the consumer and cleans up resources
func (c *consumer) Close() {
	if c.nc == nil {
		return
	}

	c.nc.Close()
}
