package schema

import (
	"time"

	"gorm.io/datatypes"
)

// GroupRawHistory is an append-only log of content versions per group
// (group_id, content_version) is unique so a version can only be written once
type GroupRawHistory struct {
	ID                  uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	GroupID             string         `gorm:"column:group_id;type:varchar(32);not null;uniqueIndex:idx_history_group_version,priority:1;index:idx_history_group_time,priority:1"`
	ContentVersion      uint32         `gorm:"column:content_version;not null;uniqueIndex:idx_history_group_version,priority:2"`
	Content             string         `gorm:"column:content;type:text;not null"`
	ContentHash         string         `gorm:"column:content_hash;type:char(64);not null"`
	Tags                datatypes.JSON `gorm:"column:tags"`
	ClassificationHints datatypes.JSON `gorm:"column:classification_hints"`
	Source              string         `gorm:"column:source;type:varchar(64)"`
	BatchID             string         `gorm:"column:batch_id;type:varchar(64)"`
	CreatedAt           time.Time      `gorm:"column:created_at;not null;index:idx_history_group_time,priority:2"`
}

func (GroupRawHistory) TableName() string {
	return "group_raw_history"
}
