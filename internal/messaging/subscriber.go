package messaging

import (
	"context"

	"github.com/groupwatch/group-indexer/internal/domain"
)

// ObservationHandler is called when a new announcement is received
type ObservationHandler func(obs *domain.Observation) error

// Subscriber defines the common interface for receiving announcements from a chat platform
//
//go:generate mockgen -source=subscriber.go -destination=../mocks/subscriber.go -package=mocks -mock_names=Subscriber=MockSubscriber
type Subscriber interface {
	// SubscribeObservations blocks delivering announcements to handler until ctx is done,
	// the platform connection fails or handler returns an error
	SubscribeObservations(ctx context.Context, handler ObservationHandler) error

	// Close closes the connection and cleans up resources
	Close()
}
