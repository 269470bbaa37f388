package store

import (
	"fmt"

	"gorm.io/datatypes"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/domain"
	"github.com/groupwatch/group-indexer/internal/store/schema"
)

// rowMapper converts between domain records and table rows. Tags and classification
// hints are stored as JSON columns.
type rowMapper struct {
	json adapter.JSON
}

func (m rowMapper) marshalTags(tags []string) (datatypes.JSON, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := m.json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}
	return datatypes.JSON(b), nil
}

func (m rowMapper) unmarshalTags(raw datatypes.JSON) ([]string, error) {
	tags := []string{}
	if len(raw) == 0 {
		return tags, nil
	}
	if err := m.json.Unmarshal(raw, &tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	return tags, nil
}

func (m rowMapper) marshalHints(hints domain.ClassificationHints) (datatypes.JSON, error) {
	b, err := m.json.Marshal(hints)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal classification hints: %w", err)
	}
	return datatypes.JSON(b), nil
}

func (m rowMapper) unmarshalHints(raw datatypes.JSON) (domain.ClassificationHints, error) {
	var hints domain.ClassificationHints
	if len(raw) == 0 {
		return hints, nil
	}
	if err := m.json.Unmarshal(raw, &hints); err != nil {
		return hints, fmt.Errorf("failed to unmarshal classification hints: %w", err)
	}
	return hints, nil
}

func (m rowMapper) toLatestRow(record *domain.GroupRecord) (*schema.GroupRawLatest, error) {
	tags, err := m.marshalTags(record.Tags)
	if err != nil {
		return nil, err
	}
	hints, err := m.marshalHints(record.ClassificationHints)
	if err != nil {
		return nil, err
	}

	return &schema.GroupRawLatest{
		GroupID:             record.GroupID,
		Content:             record.Content,
		ContentHash:         record.ContentHash,
		ContentVersion:      record.ContentVersion,
		Tags:                tags,
		ClassificationHints: hints,
		GroupType:           string(record.ClassificationHints.GroupType),
		Worldview:           string(record.ClassificationHints.Worldview),
		HasSexualContent:    record.ClassificationHints.HasSexualContent,
		NoAuditNoSetting:    record.ClassificationHints.NoAuditNoSetting,
		Source:              record.Source,
		BatchID:             record.BatchID,
		FirstSeenGroup:      record.FirstSeenGroup.UTC(),
		LastSeenGroup:       record.LastSeenGroup.UTC(),
		LastUpdatedContent:  record.LastUpdatedContent.UTC(),
		SeenCount:           record.SeenCount,
	}, nil
}

func (m rowMapper) fromLatestRow(row *schema.GroupRawLatest) (*domain.GroupRecord, error) {
	tags, err := m.unmarshalTags(row.Tags)
	if err != nil {
		return nil, err
	}
	hints, err := m.unmarshalHints(row.ClassificationHints)
	if err != nil {
		return nil, err
	}

	return &domain.GroupRecord{
		GroupID:             row.GroupID,
		Content:             row.Content,
		ContentHash:         row.ContentHash,
		ContentVersion:      row.ContentVersion,
		Tags:                tags,
		ClassificationHints: hints,
		FirstSeenGroup:      row.FirstSeenGroup.UTC(),
		LastSeenGroup:       row.LastSeenGroup.UTC(),
		LastUpdatedContent:  row.LastUpdatedContent.UTC(),
		SeenCount:           row.SeenCount,
		Source:              row.Source,
		BatchID:             row.BatchID,
	}, nil
}

func (m rowMapper) fromLatestRows(rows []schema.GroupRawLatest) ([]domain.GroupRecord, error) {
	records := make([]domain.GroupRecord, 0, len(rows))
	for i := range rows {
		record, err := m.fromLatestRow(&rows[i])
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", rows[i].GroupID, err)
		}
		records = append(records, *record)
	}
	return records, nil
}

func (m rowMapper) toHistoryRow(entry *domain.HistoryEntry) (*schema.GroupRawHistory, error) {
	tags, err := m.marshalTags(entry.Tags)
	if err != nil {
		return nil, err
	}
	hints, err := m.marshalHints(entry.ClassificationHints)
	if err != nil {
		return nil, err
	}

	return &schema.GroupRawHistory{
		GroupID:             entry.GroupID,
		ContentVersion:      entry.ContentVersion,
		Content:             entry.Content,
		ContentHash:         entry.ContentHash,
		Tags:                tags,
		ClassificationHints: hints,
		Source:              entry.Source,
		BatchID:             entry.BatchID,
		CreatedAt:           entry.CreatedAt.UTC(),
	}, nil
}

func (m rowMapper) fromHistoryRows(rows []schema.GroupRawHistory) ([]domain.HistoryEntry, error) {
	entries := make([]domain.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		tags, err := m.unmarshalTags(row.Tags)
		if err != nil {
			return nil, fmt.Errorf("group %s version %d: %w", row.GroupID, row.ContentVersion, err)
		}
		hints, err := m.unmarshalHints(row.ClassificationHints)
		if err != nil {
			return nil, fmt.Errorf("group %s version %d: %w", row.GroupID, row.ContentVersion, err)
		}
		entries = append(entries, domain.HistoryEntry{
			GroupID:             row.GroupID,
			ContentVersion:      row.ContentVersion,
			Content:             row.Content,
			ContentHash:         row.ContentHash,
			Tags:                tags,
			ClassificationHints: hints,
			Source:              row.Source,
			BatchID:             row.BatchID,
			CreatedAt:           row.CreatedAt.UTC(),
		})
	}
	return entries, nil
}
