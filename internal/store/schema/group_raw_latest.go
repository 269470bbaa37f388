package schema

import (
	"time"

	"gorm.io/datatypes"
)

// GroupRawLatest stores the latest known state of each group
// Classification hints are kept as JSON and also denormalized into indexed columns for filtering
type GroupRawLatest struct {
	GroupID             string         `gorm:"column:group_id;primaryKey;type:varchar(32)"`
	Content             string         `gorm:"column:content;type:text;not null"`
	ContentHash         string         `gorm:"column:content_hash;type:char(64);not null"`
	ContentVersion      uint32         `gorm:"column:content_version;not null"`
	Tags                datatypes.JSON `gorm:"column:tags"`
	ClassificationHints datatypes.JSON `gorm:"column:classification_hints"`
	GroupType           string         `gorm:"column:group_type;type:varchar(32);index:idx_latest_group_type"`
	Worldview           string         `gorm:"column:worldview;type:varchar(32);index:idx_latest_worldview"`
	HasSexualContent    bool           `gorm:"column:has_sexual_content;not null"`
	NoAuditNoSetting    bool           `gorm:"column:no_audit_no_setting;not null"`
	Source              string         `gorm:"column:source;type:varchar(64)"`
	BatchID             string         `gorm:"column:batch_id;type:varchar(64)"`
	FirstSeenGroup      time.Time      `gorm:"column:first_seen_group;not null;index:idx_latest_first_seen"`
	LastSeenGroup       time.Time      `gorm:"column:last_seen_group;not null;index:idx_latest_last_seen"`
	LastUpdatedContent  time.Time      `gorm:"column:last_updated_content;not null"`
	SeenCount           uint64         `gorm:"column:seen_count;not null"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (GroupRawLatest) TableName() string {
	return "group_raw_latest"
}
