package executor

import (
	"context"
	"fmt"

	"github.com/groupwatch/group-indexer/internal/api/shared/constants"
	"github.com/groupwatch/group-indexer/internal/api/shared/dto"
	"github.com/groupwatch/group-indexer/internal/api/shared/types"
	"github.com/groupwatch/group-indexer/internal/domain"
	"github.com/groupwatch/group-indexer/internal/store"
)

// ServiceName is reported by the health check
const ServiceName = "group-indexer-api"

// GroupQuery holds the filters and paging of a group listing
type GroupQuery struct {
	Page             int
	PerPage          int
	GroupID          string
	GroupType        *domain.GroupType
	Worldview        *domain.Worldview
	HasSexualContent *bool
	NoAuditNoSetting *bool
	SortBy           types.SortField
	Order            types.Order
}

// Executor is the interface for the API executor
//
//go:generate mockgen -source=executor.go -destination=../../../mocks/api_executor.go -package=mocks -mock_names=Executor=MockAPIExecutor
type Executor interface {
	// GetGroup retrieves the latest record of a group, nil when unknown
	GetGroup(ctx context.Context, groupID string) (*dto.GroupResponse, error)

	// ListGroups retrieves a filtered, sorted page of groups
	ListGroups(ctx context.Context, query GroupQuery) (*dto.GroupListResponse, error)

	// RecentGroups retrieves the most recently seen groups
	RecentGroups(ctx context.Context, limit int) (*dto.GroupsResponse, error)

	// GetHistory retrieves the content versions of a group, newest first, nil when unknown
	GetHistory(ctx context.Context, groupID string, limit int) (*dto.HistoryResponse, error)

	// SearchGroups retrieves groups whose content contains keyword
	SearchGroups(ctx context.Context, keyword string, limit int) (*dto.SearchResponse, error)

	// GetStats retrieves aggregate counters
	GetStats(ctx context.Context) (*dto.StatsResponse, error)

	// Health reports service and storage health
	Health(ctx context.Context) *dto.HealthResponse
}

type executor struct {
	store store.Store
}

func NewExecutor(store store.Store) Executor {
	return &executor{store: store}
}

func (e *executor) GetGroup(ctx context.Context, groupID string) (*dto.GroupResponse, error) {
	record, err := e.store.GetLatest(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	if record == nil {
		return nil, nil
	}

	group := dto.MapGroupToDTO(*record)
	return &group, nil
}

func (e *executor) ListGroups(ctx context.Context, query GroupQuery) (*dto.GroupListResponse, error) {
	if query.Page < 1 {
		query.Page = constants.DEFAULT_PAGE
	}
	// Keeps the offset far from integer overflow
	if query.Page > constants.MAX_PAGE {
		query.Page = constants.MAX_PAGE
	}
	if query.PerPage < 1 {
		query.PerPage = constants.DEFAULT_PER_PAGE
	}
	if query.PerPage > constants.MAX_PAGE_SIZE {
		query.PerPage = constants.MAX_PAGE_SIZE
	}
	if !query.SortBy.Valid() {
		query.SortBy = constants.DEFAULT_SORT_FIELD
	}
	if !query.Order.Valid() {
		query.Order = constants.DEFAULT_SORT_ORDER
	}

	filter := store.GroupFilter{
		GroupID:          query.GroupID,
		GroupType:        query.GroupType,
		Worldview:        query.Worldview,
		HasSexualContent: query.HasSexualContent,
		NoAuditNoSetting: query.NoAuditNoSetting,
		SortBy:           store.SortField(query.SortBy),
		SortDesc:         query.Order.Desc(),
		Limit:            query.PerPage,
		Offset:           (query.Page - 1) * query.PerPage,
	}

	records, total, err := e.store.ListGroups(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	perPage := int64(query.PerPage)
	return &dto.GroupListResponse{
		Groups:     dto.MapGroupsToDTO(records),
		Total:      total,
		Page:       query.Page,
		PerPage:    query.PerPage,
		TotalPages: (total + perPage - 1) / perPage,
	}, nil
}

func (e *executor) RecentGroups(ctx context.Context, limit int) (*dto.GroupsResponse, error) {
	limit = clampLimit(limit, constants.DEFAULT_RECENT_LIMIT)

	records, err := e.store.RecentGroups(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent groups: %w", err)
	}

	return &dto.GroupsResponse{
		Groups: dto.MapGroupsToDTO(records),
		Count:  len(records),
	}, nil
}

func (e *executor) GetHistory(ctx context.Context, groupID string, limit int) (*dto.HistoryResponse, error) {
	limit = clampLimit(limit, constants.DEFAULT_HISTORY_LIMIT)

	record, err := e.store.GetLatest(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	if record == nil {
		return nil, nil
	}

	entries, err := e.store.GetHistory(ctx, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get group history: %w", err)
	}

	return &dto.HistoryResponse{
		GroupID: groupID,
		History: dto.MapHistoryToDTO(entries),
		Count:   len(entries),
	}, nil
}

func (e *executor) SearchGroups(ctx context.Context, keyword string, limit int) (*dto.SearchResponse, error) {
	limit = clampLimit(limit, constants.DEFAULT_SEARCH_LIMIT)

	records, err := e.store.SearchGroups(ctx, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search groups: %w", err)
	}

	return &dto.SearchResponse{
		Keyword: keyword,
		Groups:  dto.MapGroupsToDTO(records),
		Count:   len(records),
	}, nil
}

func (e *executor) GetStats(ctx context.Context) (*dto.StatsResponse, error) {
	stats, err := e.store.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	return dto.MapStatsToDTO(stats), nil
}

func (e *executor) Health(ctx context.Context) *dto.HealthResponse {
	resp := &dto.HealthResponse{
		Status:   "ok",
		Service:  ServiceName,
		Database: "connected",
		Backend:  e.store.Backend(),
	}

	if !e.store.Ping(ctx) {
		resp.Status = "degraded"
		resp.Database = "disconnected"
	}

	return resp
}

// clampLimit applies the default for non-positive limits and caps at the page size
func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > constants.MAX_PAGE_SIZE {
		return constants.MAX_PAGE_SIZE
	}
	return limit
}
