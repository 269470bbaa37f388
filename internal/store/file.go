package store

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/domain"
	"github.com/groupwatch/group-indexer/internal/logger"
)

const (
	// BackendFile names the local file backend
	BackendFile = "file"

	latestFileName  = "group_raw_latest.json"
	historyFileName = "group_raw_history.jsonl"
)

// fileStore keeps the latest records as a JSON snapshot and the history as JSON lines.
// The whole dataset is held in memory; every write goes through mu.
type fileStore struct {
	mu      sync.Mutex
	dir     string
	fs      adapter.FileSystem
	json    adapter.JSON
	latest  map[string]domain.GroupRecord
	history map[string][]domain.HistoryEntry
}

// NewFileStore creates a store persisted under dir
func NewFileStore(dir string, fs adapter.FileSystem, json adapter.JSON) (Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store directory is required")
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, unavailable("failed to create data directory", err)
	}

	s := &fileStore{
		dir:     dir,
		fs:      fs,
		json:    json,
		latest:  make(map[string]domain.GroupRecord),
		history: make(map[string][]domain.HistoryEntry),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) latestPath() string {
	return filepath.Join(s.dir, latestFileName)
}

func (s *fileStore) historyPath() string {
	return filepath.Join(s.dir, historyFileName)
}

func (s *fileStore) load() error {
	data, err := s.fs.ReadFile(s.latestPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return unavailable("failed to read latest snapshot", err)
	case len(bytes.TrimSpace(data)) > 0:
		if err := s.json.Unmarshal(data, &s.latest); err != nil {
			return fmt.Errorf("failed to parse latest snapshot: %w", err)
		}
	}

	data, err = s.fs.ReadFile(s.historyPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return unavailable("failed to read history log", err)
	default:
		if err := s.loadHistoryLocked(data); err != nil {
			return err
		}
	}

	return s.repairHistoryLocked()
}

// loadHistoryLocked indexes the history log. A later line for the same group and version
// supersedes an earlier one. Lines beyond the snapshot's version of their group belong
// to commits whose snapshot write never happened and are discarded.
func (s *fileStore) loadHistoryLocked(data []byte) error {
	byGroup := make(map[string]map[uint32]domain.HistoryEntry)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 10*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry domain.HistoryEntry
		if err := s.json.Unmarshal(line, &entry); err != nil {
			logger.Warn("Skipping malformed history line", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		versions, ok := byGroup[entry.GroupID]
		if !ok {
			versions = make(map[uint32]domain.HistoryEntry)
			byGroup[entry.GroupID] = versions
		}
		versions[entry.ContentVersion] = entry
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan history log: %w", err)
	}

	for groupID, versions := range byGroup {
		record, ok := s.latest[groupID]
		entries := make([]domain.HistoryEntry, 0, len(versions))
		for version, entry := range versions {
			if !ok || version > record.ContentVersion {
				logger.Warn("Discarding uncommitted history entry",
					zap.String("group_id", groupID),
					zap.Uint32("content_version", version))
				continue
			}
			entries = append(entries, entry)
		}
		if len(entries) == 0 {
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].ContentVersion < entries[j].ContentVersion })
		s.history[groupID] = entries
	}
	return nil
}

// repairHistoryLocked restores the history entry of each latest version from the snapshot.
// Older missing versions cannot be rebuilt since their content is gone; they are reported.
func (s *fileStore) repairHistoryLocked() error {
	var missing []domain.HistoryEntry
	for _, record := range s.latest {
		for v := uint32(1); v < record.ContentVersion; v++ {
			if !s.hasVersionLocked(record.GroupID, v) {
				logger.Warn("History version missing",
					zap.String("group_id", record.GroupID),
					zap.Uint32("content_version", v))
			}
		}
		if s.hasVersionLocked(record.GroupID, record.ContentVersion) {
			continue
		}
		missing = append(missing, historyFromRecord(record))
	}
	if len(missing) == 0 {
		return nil
	}

	sort.Slice(missing, func(i, j int) bool { return missing[i].GroupID < missing[j].GroupID })
	if err := s.appendHistoryLinesLocked(missing); err != nil {
		return err
	}
	for _, entry := range missing {
		logger.Warn("Restored missing history entry",
			zap.String("group_id", entry.GroupID),
			zap.Uint32("content_version", entry.ContentVersion))
		s.history[entry.GroupID] = append(s.history[entry.GroupID], entry)
	}
	return nil
}

func historyFromRecord(record domain.GroupRecord) domain.HistoryEntry {
	return domain.HistoryEntry{
		GroupID:             record.GroupID,
		ContentVersion:      record.ContentVersion,
		Content:             record.Content,
		ContentHash:         record.ContentHash,
		Tags:                cloneTags(record.Tags),
		ClassificationHints: record.ClassificationHints,
		Source:              record.Source,
		BatchID:             record.BatchID,
		CreatedAt:           record.LastUpdatedContent,
	}
}

func cloneTags(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}

func cloneRecord(record domain.GroupRecord) domain.GroupRecord {
	record.Tags = cloneTags(record.Tags)
	return record
}

func (s *fileStore) hasVersionLocked(groupID string, version uint32) bool {
	for _, entry := range s.history[groupID] {
		if entry.ContentVersion == version {
			return true
		}
	}
	return false
}

func (s *fileStore) getLatestLocked(groupID string) *domain.GroupRecord {
	record, ok := s.latest[groupID]
	if !ok {
		return nil
	}
	r := cloneRecord(record)
	return &r
}

func (s *fileStore) checkUpsertLocked(record *domain.GroupRecord, expectedSeenCount uint64) error {
	current, ok := s.latest[record.GroupID]
	if expectedSeenCount == 0 {
		if ok {
			return fmt.Errorf("%w: group %s already exists", domain.ErrVersionConflict, record.GroupID)
		}
		return nil
	}
	if !ok || current.SeenCount != expectedSeenCount {
		return fmt.Errorf("%w: group %s changed since seen_count %d", domain.ErrVersionConflict, record.GroupID, expectedSeenCount)
	}
	return nil
}

func (s *fileStore) checkAppendLocked(entry *domain.HistoryEntry) error {
	if s.hasVersionLocked(entry.GroupID, entry.ContentVersion) {
		return fmt.Errorf("%w: group %s version %d", domain.ErrDuplicateVersion, entry.GroupID, entry.ContentVersion)
	}
	return nil
}

// writeLatestLocked rewrites the snapshot through a temp file and an atomic rename
func (s *fileStore) writeLatestLocked() error {
	data, err := s.json.Marshal(s.latest)
	if err != nil {
		return fmt.Errorf("failed to marshal latest snapshot: %w", err)
	}

	tmpPath := s.latestPath() + ".tmp"
	f, err := s.fs.Create(tmpPath)
	if err != nil {
		return unavailable("failed to create snapshot file", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return unavailable("failed to write snapshot file", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return unavailable("failed to sync snapshot file", err)
	}
	if err := f.Close(); err != nil {
		return unavailable("failed to close snapshot file", err)
	}
	if err := s.fs.Rename(tmpPath, s.latestPath()); err != nil {
		return unavailable("failed to replace snapshot file", err)
	}
	return nil
}

func (s *fileStore) appendHistoryLinesLocked(entries []domain.HistoryEntry) error {
	var buf bytes.Buffer
	for i := range entries {
		line, err := s.json.Marshal(&entries[i])
		if err != nil {
			return fmt.Errorf("failed to marshal history entry: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	f, err := s.fs.OpenAppend(s.historyPath())
	if err != nil {
		return unavailable("failed to open history log", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return unavailable("failed to append history log", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return unavailable("failed to sync history log", err)
	}
	if err := f.Close(); err != nil {
		return unavailable("failed to close history log", err)
	}
	return nil
}

// Backend returns "file"
func (s *fileStore) Backend() string {
	return BackendFile
}

// Ping reports whether the data directory is accessible
func (s *fileStore) Ping(ctx context.Context) bool {
	info, err := s.fs.Stat(s.dir)
	return err == nil && info.IsDir()
}

// Close is a no-op; every write is flushed immediately
func (s *fileStore) Close() error {
	return nil
}

// Migrate creates empty data files if they do not exist
func (s *fileStore) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.migrateLocked()
}

func (s *fileStore) migrateLocked() error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return unavailable("failed to create data directory", err)
	}
	if _, err := s.fs.Stat(s.latestPath()); errors.Is(err, os.ErrNotExist) {
		if err := s.writeLatestLocked(); err != nil {
			return err
		}
	}
	if _, err := s.fs.Stat(s.historyPath()); errors.Is(err, os.ErrNotExist) {
		if err := s.appendHistoryLinesLocked(nil); err != nil {
			return err
		}
	}
	return nil
}

// Reset removes every record and recreates empty data files
func (s *fileStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range []string{s.latestPath(), s.historyPath()} {
		if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return unavailable("failed to remove data file", err)
		}
	}
	s.latest = make(map[string]domain.GroupRecord)
	s.history = make(map[string][]domain.HistoryEntry)
	return s.migrateLocked()
}

// GetLatest retrieves the latest record of a group
func (s *fileStore) GetLatest(ctx context.Context, groupID string) (*domain.GroupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLatestLocked(groupID), nil
}

// UpsertLatest writes the latest record and persists the snapshot
func (s *fileStore) UpsertLatest(ctx context.Context, record *domain.GroupRecord, expectedSeenCount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUpsertLocked(record, expectedSeenCount); err != nil {
		return err
	}

	previous, existed := s.latest[record.GroupID]
	s.latest[record.GroupID] = cloneRecord(*record)
	if err := s.writeLatestLocked(); err != nil {
		if existed {
			s.latest[record.GroupID] = previous
		} else {
			delete(s.latest, record.GroupID)
		}
		return err
	}
	return nil
}

// AppendHistory appends an entry to the history log
func (s *fileStore) AppendHistory(ctx context.Context, entry *domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAppendLocked(entry); err != nil {
		return err
	}

	e := *entry
	e.Tags = cloneTags(entry.Tags)
	if err := s.appendHistoryLinesLocked([]domain.HistoryEntry{e}); err != nil {
		return err
	}
	s.history[e.GroupID] = append(s.history[e.GroupID], e)
	return nil
}

// RunInTx holds the store lock while fn runs and persists its writes only if fn succeeds
func (s *fileStore) RunInTx(ctx context.Context, fn func(tx Gateway) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &fileTx{s: s, undo: make(map[string]latestUndo)}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return tx.commit()
}

type latestUndo struct {
	record  domain.GroupRecord
	existed bool
}

// fileTx is the Gateway handed to RunInTx callbacks; the store lock is already held
type fileTx struct {
	s       *fileStore
	undo    map[string]latestUndo
	pending []domain.HistoryEntry
}

func (tx *fileTx) GetLatest(ctx context.Context, groupID string) (*domain.GroupRecord, error) {
	return tx.s.getLatestLocked(groupID), nil
}

func (tx *fileTx) UpsertLatest(ctx context.Context, record *domain.GroupRecord, expectedSeenCount uint64) error {
	if err := tx.s.checkUpsertLocked(record, expectedSeenCount); err != nil {
		return err
	}
	if _, touched := tx.undo[record.GroupID]; !touched {
		previous, existed := tx.s.latest[record.GroupID]
		tx.undo[record.GroupID] = latestUndo{record: previous, existed: existed}
	}
	tx.s.latest[record.GroupID] = cloneRecord(*record)
	return nil
}

func (tx *fileTx) AppendHistory(ctx context.Context, entry *domain.HistoryEntry) error {
	if err := tx.s.checkAppendLocked(entry); err != nil {
		return err
	}
	e := *entry
	e.Tags = cloneTags(entry.Tags)
	tx.s.history[e.GroupID] = append(tx.s.history[e.GroupID], e)
	tx.pending = append(tx.pending, e)
	return nil
}

func (tx *fileTx) Ping(ctx context.Context) bool {
	return tx.s.Ping(ctx)
}

func (tx *fileTx) rollback() {
	tx.rollbackHistory()
	for groupID, u := range tx.undo {
		if u.existed {
			tx.s.latest[groupID] = u.record
		} else {
			delete(tx.s.latest, groupID)
		}
	}
	tx.undo = map[string]latestUndo{}
}

func (tx *fileTx) rollbackHistory() {
	for i := len(tx.pending) - 1; i >= 0; i-- {
		groupID := tx.pending[i].GroupID
		entries := tx.s.history[groupID]
		if len(entries) <= 1 {
			delete(tx.s.history, groupID)
			continue
		}
		tx.s.history[groupID] = entries[:len(entries)-1]
	}
	tx.pending = nil
}

// commit appends the history log before replacing the snapshot. A failure after the
// append leaves history lines past the snapshot version, which load discards.
func (tx *fileTx) commit() error {
	if len(tx.pending) > 0 {
		if err := tx.s.appendHistoryLinesLocked(tx.pending); err != nil {
			tx.rollback()
			return err
		}
	}
	if len(tx.undo) > 0 {
		if err := tx.s.writeLatestLocked(); err != nil {
			logger.Error(err, zap.Int("pending_entries", len(tx.pending)))
			tx.rollback()
			return err
		}
	}
	return nil
}

func (s *fileStore) snapshotLocked() []domain.GroupRecord {
	records := make([]domain.GroupRecord, 0, len(s.latest))
	for _, record := range s.latest {
		records = append(records, cloneRecord(record))
	}
	return records
}

func sortRecords(records []domain.GroupRecord, sortBy SortField, desc bool) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].FirstSeenGroup, records[j].FirstSeenGroup
		if sortBy == SortByLastSeenGroup {
			a, b = records[i].LastSeenGroup, records[j].LastSeenGroup
		}
		if !a.Equal(b) {
			if desc {
				return a.After(b)
			}
			return a.Before(b)
		}
		return records[i].GroupID < records[j].GroupID
	})
}

func matchesFilter(record domain.GroupRecord, filter GroupFilter) bool {
	hints := record.ClassificationHints
	if filter.GroupID != "" && !strings.Contains(record.GroupID, filter.GroupID) {
		return false
	}
	if filter.GroupType != nil && hints.GroupType != *filter.GroupType {
		return false
	}
	if filter.Worldview != nil && hints.Worldview != *filter.Worldview {
		return false
	}
	if filter.HasSexualContent != nil && hints.HasSexualContent != *filter.HasSexualContent {
		return false
	}
	if filter.NoAuditNoSetting != nil && hints.NoAuditNoSetting != *filter.NoAuditNoSetting {
		return false
	}
	return true
}

func paginate(records []domain.GroupRecord, offset, limit int) []domain.GroupRecord {
	if offset >= len(records) {
		return []domain.GroupRecord{}
	}
	if offset > 0 {
		records = records[offset:]
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}

// ListGroups retrieves latest records matching the filter
func (s *fileStore) ListGroups(ctx context.Context, filter GroupFilter) ([]domain.GroupRecord, int64, error) {
	s.mu.Lock()
	all := s.snapshotLocked()
	s.mu.Unlock()

	matched := make([]domain.GroupRecord, 0, len(all))
	for _, record := range all {
		if matchesFilter(record, filter) {
			matched = append(matched, record)
		}
	}
	sortRecords(matched, filter.SortBy, filter.SortDesc)

	return paginate(matched, filter.Offset, filter.Limit), int64(len(matched)), nil
}

// RecentGroups retrieves the most recently seen groups
func (s *fileStore) RecentGroups(ctx context.Context, limit int) ([]domain.GroupRecord, error) {
	s.mu.Lock()
	all := s.snapshotLocked()
	s.mu.Unlock()

	sortRecords(all, SortByLastSeenGroup, true)
	return paginate(all, 0, limit), nil
}

// GetHistory retrieves the history of a group, newest version first
func (s *fileStore) GetHistory(ctx context.Context, groupID string, limit int) ([]domain.HistoryEntry, error) {
	s.mu.Lock()
	entries := make([]domain.HistoryEntry, 0, len(s.history[groupID]))
	for _, entry := range s.history[groupID] {
		entry.Tags = cloneTags(entry.Tags)
		entries = append(entries, entry)
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ContentVersion > entries[j].ContentVersion
	})
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}

// SearchGroups retrieves groups whose content contains keyword, case-insensitively
func (s *fileStore) SearchGroups(ctx context.Context, keyword string, limit int) ([]domain.GroupRecord, error) {
	s.mu.Lock()
	all := s.snapshotLocked()
	s.mu.Unlock()

	needle := strings.ToLower(keyword)
	matched := make([]domain.GroupRecord, 0)
	for _, record := range all {
		if strings.Contains(strings.ToLower(record.Content), needle) {
			matched = append(matched, record)
		}
	}
	sortRecords(matched, SortByLastSeenGroup, true)
	return paginate(matched, 0, limit), nil
}

// GetStats summarizes stored records
func (s *fileStore) GetStats(ctx context.Context) (*domain.GroupStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &domain.GroupStats{
		TotalGroups:    int64(len(s.latest)),
		GroupTypeStats: map[domain.GroupType]int64{},
	}
	for _, entries := range s.history {
		stats.TotalHistoryRecords += int64(len(entries))
	}
	for _, record := range s.latest {
		stats.TotalSeenCount += int64(record.SeenCount) //nolint:gosec,G115
		stats.GroupTypeStats[record.ClassificationHints.GroupType]++
	}
	return stats, nil
}
