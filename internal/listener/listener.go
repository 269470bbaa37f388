package listener

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/domain"
	"github.com/groupwatch/group-indexer/internal/logger"
	"github.com/groupwatch/group-indexer/internal/messaging"
)

// Config holds the configuration for the chat listener
type Config struct {
	StatsInterval time.Duration // Log forwarding stats every N seconds
}

// Listener defines the interface for the chat listener
type Listener interface {
	// Run starts forwarding chat announcements to the message broker
	Run(ctx context.Context) error
	// Close closes the listener and cleans up resources
	Close()
}

// listener forwards announcements from a chat subscriber to NATS
type listener struct {
	subscriber messaging.Subscriber
	publisher  messaging.Publisher
	config     Config
	clock      adapter.Clock
}

// NewListener creates a new chat listener
func NewListener(
	sub messaging.Subscriber,
	pub messaging.Publisher,
	cfg Config,
	clock adapter.Clock,
) Listener {
	return &listener{
		subscriber: sub,
		publisher:  pub,
		config:     cfg,
		clock:      clock,
	}
}

// Run starts the chat listener
func (l *listener) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		logger.Info("Starting chat subscription")

		var forwarded uint64
		lastStatsTime := l.clock.Now()

		handler := func(obs *domain.Observation) error {
			if err := l.publisher.PublishObservation(ctx, obs); err != nil {
				return fmt.Errorf("failed to publish observation from %s: %w", obs.Source, err)
			}
			forwarded++

			if l.config.StatsInterval > 0 && l.clock.Since(lastStatsTime) >= l.config.StatsInterval {
				logger.Info("Listener stats", zap.Uint64("forwarded", forwarded))
				lastStatsTime = l.clock.Now()
			}

			return nil
		}

		if err := l.subscriber.SubscribeObservations(ctx, handler); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the listener and cleans up resources
func (l *listener) Close() {
	l.subscriber.Close()
	l.publisher.Close()
}
