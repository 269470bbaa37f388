package reconciler

import (
	"time"

	"github.com/groupwatch/group-indexer/internal/classifier"
	"github.com/groupwatch/group-indexer/internal/domain"
)

// Action is the outcome of reconciling an observation with the stored record
type Action string

const (
	// ActionInsertedNew means the group was seen for the first time
	ActionInsertedNew Action = "inserted_new"
	// ActionUpdatedExisting means the group was re-observed with unchanged content
	ActionUpdatedExisting Action = "updated_existing"
	// ActionUpdatedWithNewVersion means the group content changed
	ActionUpdatedWithNewVersion Action = "updated_with_new_version"
)

// Candidate is a fully processed observation ready to be reconciled
type Candidate struct {
	GroupID        string
	Content        string
	ContentHash    string
	Classification classifier.Result
	Source         string
	BatchID        string
	ObservedAt     time.Time
}

// Decision describes the writes needed to apply a candidate
type Decision struct {
	Action Action
	// Record is the new latest record
	Record domain.GroupRecord
	// History is set when a new content version was created
	History *domain.HistoryEntry
	// ExpectedSeenCount is the seen_count the stored record must still have
	// for the write to apply; 0 means the record must not exist yet
	ExpectedSeenCount uint64
}

// Reconcile decides how a candidate changes the stored state of its group.
// It performs no I/O and does not modify existing.
func Reconcile(existing *domain.GroupRecord, c Candidate) Decision {
	now := c.ObservedAt

	if existing == nil {
		record := domain.GroupRecord{
			GroupID:             c.GroupID,
			Content:             c.Content,
			ContentHash:         c.ContentHash,
			ContentVersion:      1,
			Tags:                cloneTags(c.Classification.Tags),
			ClassificationHints: c.Classification.Hints,
			FirstSeenGroup:      now,
			LastSeenGroup:       now,
			LastUpdatedContent:  now,
			SeenCount:           1,
			Source:              c.Source,
			BatchID:             c.BatchID,
		}
		return Decision{
			Action:            ActionInsertedNew,
			Record:            record,
			History:           historyFrom(record, now),
			ExpectedSeenCount: 0,
		}
	}

	record := *existing
	record.Tags = cloneTags(existing.Tags)
	record.SeenCount = existing.SeenCount + 1
	record.LastSeenGroup = latest(existing.LastSeenGroup, now)
	record.Source = c.Source
	record.BatchID = c.BatchID

	if existing.ContentHash == c.ContentHash {
		return Decision{
			Action:            ActionUpdatedExisting,
			Record:            record,
			ExpectedSeenCount: existing.SeenCount,
		}
	}

	record.Content = c.Content
	record.ContentHash = c.ContentHash
	record.Tags = cloneTags(c.Classification.Tags)
	record.ClassificationHints = c.Classification.Hints
	record.ContentVersion = existing.ContentVersion + 1
	record.LastUpdatedContent = now

	return Decision{
		Action:            ActionUpdatedWithNewVersion,
		Record:            record,
		History:           historyFrom(record, now),
		ExpectedSeenCount: existing.SeenCount,
	}
}

func historyFrom(r domain.GroupRecord, createdAt time.Time) *domain.HistoryEntry {
	return &domain.HistoryEntry{
		GroupID:             r.GroupID,
		ContentVersion:      r.ContentVersion,
		Content:             r.Content,
		ContentHash:         r.ContentHash,
		Tags:                cloneTags(r.Tags),
		ClassificationHints: r.ClassificationHints,
		Source:              r.Source,
		BatchID:             r.BatchID,
		CreatedAt:           createdAt,
	}
}

// latest keeps last_seen_group monotonic under out-of-order delivery
func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func cloneTags(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}
