package domain

import (
	"time"
)

// GroupType represents the coarse category of an announced group
type GroupType string

const (
	GroupTypeRolePlay     GroupType = "role-play"
	GroupTypeExchange     GroupType = "exchange"
	GroupTypeSpam         GroupType = "spam"
	GroupTypeUnclassified GroupType = "unclassified"
)

// IsValidGroupType checks if a group type is one of the known categories
func IsValidGroupType(t GroupType) bool {
	return t == GroupTypeRolePlay ||
		t == GroupTypeExchange ||
		t == GroupTypeSpam ||
		t == GroupTypeUnclassified
}

// Worldview represents the fictional setting genre of a role-play group
type Worldview string

const (
	WorldviewModernOriginal      Worldview = "modern-original"
	WorldviewAncientOriginal     Worldview = "ancient-original"
	WorldviewModernSupernatural  Worldview = "modern-supernatural"
	WorldviewAncientSupernatural Worldview = "ancient-supernatural"
	WorldviewWesternFantasy      Worldview = "western-fantasy"
	WorldviewSciFi               Worldview = "sci-fi"
	WorldviewFandom              Worldview = "fandom"
	WorldviewUnspecified         Worldview = "unspecified"
)

// IsValidWorldview checks if a worldview is one of the known genres
func IsValidWorldview(w Worldview) bool {
	switch w {
	case WorldviewModernOriginal,
		WorldviewAncientOriginal,
		WorldviewModernSupernatural,
		WorldviewAncientSupernatural,
		WorldviewWesternFantasy,
		WorldviewSciFi,
		WorldviewFandom,
		WorldviewUnspecified:
		return true
	default:
		return false
	}
}

// ClassificationHints holds the derived attributes of an announcement
type ClassificationHints struct {
	GroupType        GroupType `json:"group_type"`
	Worldview        Worldview `json:"worldview"`
	HasSexualContent bool      `json:"has_sexual_content"`
	NoAuditNoSetting bool      `json:"no_audit_no_setting"`
}

// Observation represents one incoming announcement as delivered by a listener
// This is the standard format published to NATS
type Observation struct {
	MessageID    string    `json:"message_id,omitempty"`     // transport id, informational only
	RawText      string    `json:"raw_text"`                 // unprocessed message body
	EventGroupID string    `json:"event_group_id,omitempty"` // group id supplied by the platform, if any
	Timestamp    time.Time `json:"timestamp"`                // arrival time
	Source       string    `json:"source"`                   // e.g. "telegram_group_-1001234"
	BatchID      string    `json:"batch_id"`
}

// GroupRecord is the latest known state of a group, keyed by GroupID
type GroupRecord struct {
	GroupID             string              `json:"group_id"`
	Content             string              `json:"content"`
	ContentHash         string              `json:"content_hash"`
	ContentVersion      uint32              `json:"content_version"`
	Tags                []string            `json:"tags"`
	ClassificationHints ClassificationHints `json:"classification_hints"`
	FirstSeenGroup      time.Time           `json:"first_seen_group"`
	LastSeenGroup       time.Time           `json:"last_seen_group"`
	LastUpdatedContent  time.Time           `json:"last_updated_content"`
	SeenCount           uint64              `json:"seen_count"`
	Source              string              `json:"source"`
	BatchID             string              `json:"batch_id"`
}

// HistoryEntry is an immutable snapshot of one content version of a group
type HistoryEntry struct {
	GroupID             string              `json:"group_id"`
	ContentVersion      uint32              `json:"content_version"`
	Content             string              `json:"content"`
	ContentHash         string              `json:"content_hash"`
	Tags                []string            `json:"tags"`
	ClassificationHints ClassificationHints `json:"classification_hints"`
	Source              string              `json:"source"`
	BatchID             string              `json:"batch_id"`
	CreatedAt           time.Time           `json:"created_at"`
}

// GroupStats summarizes the stored records
type GroupStats struct {
	TotalGroups         int64               `json:"total_groups"`
	TotalHistoryRecords int64               `json:"total_history_records"`
	TotalSeenCount      int64               `json:"total_seen_count"`
	GroupTypeStats      map[GroupType]int64 `json:"group_type_stats"`
}
