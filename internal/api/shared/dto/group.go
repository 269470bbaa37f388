package dto

import (
	"time"

	"github.com/groupwatch/group-indexer/internal/domain"
)

// GroupResponse represents a group's latest record
type GroupResponse struct {
	GroupID            string    `json:"group_id"`
	Content            string    `json:"content"`
	ContentHash        string    `json:"content_hash"`
	ContentVersion     uint32    `json:"content_version"`
	Tags               []string  `json:"tags"`
	GroupType          string    `json:"group_type"`
	Worldview          string    `json:"worldview"`
	HasSexualContent   bool      `json:"has_sexual_content"`
	NoAuditNoSetting   bool      `json:"no_audit_no_setting"`
	FirstSeenGroup     time.Time `json:"first_seen_group"`
	LastSeenGroup      time.Time `json:"last_seen_group"`
	LastUpdatedContent time.Time `json:"last_updated_content"`
	SeenCount          uint64    `json:"seen_count"`
	Source             string    `json:"source"`
	BatchID            string    `json:"batch_id"`
}

// GroupListResponse represents a page of groups
type GroupListResponse struct {
	Groups     []GroupResponse `json:"groups"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	TotalPages int64           `json:"total_pages"`
}

// GroupsResponse represents an unpaged list of groups
type GroupsResponse struct {
	Groups []GroupResponse `json:"groups"`
	Count  int             `json:"count"`
}

// SearchResponse represents keyword search results
type SearchResponse struct {
	Keyword string          `json:"keyword"`
	Groups  []GroupResponse `json:"groups"`
	Count   int             `json:"count"`
}

// HistoryEntryResponse represents one stored content version
type HistoryEntryResponse struct {
	ContentVersion   uint32    `json:"content_version"`
	Content          string    `json:"content"`
	ContentHash      string    `json:"content_hash"`
	Tags             []string  `json:"tags"`
	GroupType        string    `json:"group_type"`
	Worldview        string    `json:"worldview"`
	HasSexualContent bool      `json:"has_sexual_content"`
	NoAuditNoSetting bool      `json:"no_audit_no_setting"`
	Source           string    `json:"source"`
	BatchID          string    `json:"batch_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// HistoryResponse represents the version history of a group, newest first
type HistoryResponse struct {
	GroupID string                 `json:"group_id"`
	History []HistoryEntryResponse `json:"history"`
	Count   int                    `json:"count"`
}

// StatsResponse represents aggregate counters
type StatsResponse struct {
	TotalGroups         int64            `json:"total_groups"`
	TotalHistoryRecords int64            `json:"total_history_records"`
	TotalSeenCount      int64            `json:"total_seen_count"`
	GroupTypeStats      map[string]int64 `json:"group_type_stats"`
}

// HealthResponse represents the service health
type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Database string `json:"database"`
	Backend  string `json:"backend"`
}

// MapGroupToDTO maps a domain record to its response
func MapGroupToDTO(r domain.GroupRecord) GroupResponse {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}

	return GroupResponse{
		GroupID:            r.GroupID,
		Content:            r.Content,
		ContentHash:        r.ContentHash,
		ContentVersion:     r.ContentVersion,
		Tags:               tags,
		GroupType:          string(r.ClassificationHints.GroupType),
		Worldview:          string(r.ClassificationHints.Worldview),
		HasSexualContent:   r.ClassificationHints.HasSexualContent,
		NoAuditNoSetting:   r.ClassificationHints.NoAuditNoSetting,
		FirstSeenGroup:     r.FirstSeenGroup,
		LastSeenGroup:      r.LastSeenGroup,
		LastUpdatedContent: r.LastUpdatedContent,
		SeenCount:          r.SeenCount,
		Source:             r.Source,
		BatchID:            r.BatchID,
	}
}

// MapGroupsToDTO maps domain records to responses
func MapGroupsToDTO(records []domain.GroupRecord) []GroupResponse {
	groups := make([]GroupResponse, len(records))
	for i, r := range records {
		groups[i] = MapGroupToDTO(r)
	}
	return groups
}

// MapHistoryToDTO maps history entries to responses
func MapHistoryToDTO(entries []domain.HistoryEntry) []HistoryEntryResponse {
	history := make([]HistoryEntryResponse, len(entries))
	for i, e := range entries {
		tags := e.Tags
		if tags == nil {
			tags = []string{}
		}
		history[i] = HistoryEntryResponse{
			ContentVersion:   e.ContentVersion,
			Content:          e.Content,
			ContentHash:      e.ContentHash,
			Tags:             tags,
			GroupType:        string(e.ClassificationHints.GroupType),
			Worldview:        string(e.ClassificationHints.Worldview),
			HasSexualContent: e.ClassificationHints.HasSexualContent,
			NoAuditNoSetting: e.ClassificationHints.NoAuditNoSetting,
			Source:           e.Source,
			BatchID:          e.BatchID,
			CreatedAt:        e.CreatedAt,
		}
	}
	return history
}

// MapStatsToDTO maps store statistics to a response
func MapStatsToDTO(s *domain.GroupStats) *StatsResponse {
	byType := make(map[string]int64, len(s.GroupTypeStats))
	for t, n := range s.GroupTypeStats {
		byType[string(t)] = n
	}

	return &StatsResponse{
		TotalGroups:         s.TotalGroups,
		TotalHistoryRecords: s.TotalHistoryRecords,
		TotalSeenCount:      s.TotalSeenCount,
		GroupTypeStats:      byType,
	}
}
