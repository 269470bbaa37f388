package store

import (
	"context"

	"github.com/groupwatch/group-indexer/internal/domain"
)

// Gateway is the storage surface used by the ingestion pipeline
//
//go:generate mockgen -source=store.go -destination=../mocks/store.go -package=mocks -mock_names=Gateway=MockGateway,Transactor=MockTransactor,Store=MockStore
type Gateway interface {
	// GetLatest retrieves the latest record of a group, or nil if the group is unknown
	GetLatest(ctx context.Context, groupID string) (*domain.GroupRecord, error)
	// UpsertLatest writes the latest record of a group. With expectedSeenCount == 0 the
	// record must not exist yet; otherwise the stored seen_count must equal expectedSeenCount.
	// Returns domain.ErrVersionConflict when the precondition does not hold.
	UpsertLatest(ctx context.Context, record *domain.GroupRecord, expectedSeenCount uint64) error
	// AppendHistory inserts a history entry. Returns domain.ErrDuplicateVersion when an
	// entry for the same group and version already exists.
	AppendHistory(ctx context.Context, entry *domain.HistoryEntry) error
	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) bool
}

// Transactor runs a function against a Gateway whose writes commit or roll back together
type Transactor interface {
	RunInTx(ctx context.Context, fn func(tx Gateway) error) error
}

// SortField is a sortable column of the latest table
type SortField string

const (
	SortByFirstSeenGroup SortField = "first_seen_group"
	SortByLastSeenGroup  SortField = "last_seen_group"
)

// GroupFilter holds the filters and paging for ListGroups
type GroupFilter struct {
	// GroupID matches as a substring
	GroupID          string
	GroupType        *domain.GroupType
	Worldview        *domain.Worldview
	HasSexualContent *bool
	NoAuditNoSetting *bool

	SortBy   SortField
	SortDesc bool
	Limit    int
	Offset   int
}

// Store defines the interface for database operations
type Store interface {
	Gateway
	Transactor

	// ListGroups retrieves latest records matching the filter and the total match count
	ListGroups(ctx context.Context, filter GroupFilter) ([]domain.GroupRecord, int64, error)
	// RecentGroups retrieves the most recently seen groups
	RecentGroups(ctx context.Context, limit int) ([]domain.GroupRecord, error)
	// GetHistory retrieves the history of a group, newest version first
	GetHistory(ctx context.Context, groupID string, limit int) ([]domain.HistoryEntry, error)
	// SearchGroups retrieves groups whose content contains keyword
	SearchGroups(ctx context.Context, keyword string, limit int) ([]domain.GroupRecord, error)
	// GetStats summarizes stored records
	GetStats(ctx context.Context) (*domain.GroupStats, error)

	// Migrate creates the tables or files if they do not exist
	Migrate(ctx context.Context) error
	// Reset drops all stored data and recreates empty tables
	Reset(ctx context.Context) error
	// Backend names the storage backend, e.g. "mysql" or "file"
	Backend() string
	// Close releases the underlying resources
	Close() error
}
