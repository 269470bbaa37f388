package messaging

import (
	"context"

	"github.com/groupwatch/group-indexer/internal/domain"
)

// Publisher defines the interface for publishing observations to message queue
//
//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// PublishObservation publishes a group announcement to the message broker
	PublishObservation(ctx context.Context, obs *domain.Observation) error
	// Close closes the connection
	Close()
}
