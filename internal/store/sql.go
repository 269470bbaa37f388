package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/domain"
	"github.com/groupwatch/group-indexer/internal/store/schema"
)

type sqlStore struct {
	db   *gorm.DB
	rows rowMapper
}

func hasDBResolver(db *gorm.DB) bool {
	return db != nil && db.Callback().Query().Get("gorm:db_resolver") != nil
}

// NewSQLStore creates a store backed by a gorm connection (MySQL, PostgreSQL or SQLite).
// The connection should be opened with TranslateError enabled.
func NewSQLStore(db *gorm.DB, json adapter.JSON) Store {
	return &sqlStore{db: db, rows: rowMapper{json: json}}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// It accesses the underlying *sql.DB and sets the pool configuration.
// If any of the pool settings are 0 or empty, reasonable defaults are used:
//   - MaxOpenConns: 20 (if 0)
//   - MaxIdleConns: 5 (if 0)
//   - ConnMaxLifetime: 5 minutes (if 0)
//   - ConnMaxIdleTime: 10 minutes (if 0)
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings into safe values.
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// unavailable wraps a backend failure so callers can match domain.ErrStorageUnavailable
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorageUnavailable, op, err)
}

func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict) ||
		errors.Is(err, domain.ErrDuplicateVersion) ||
		errors.Is(err, domain.ErrStorageUnavailable) ||
		errors.Is(err, domain.ErrNoIdentifierFound)
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// primary routes the query to the write connection when a read replica is registered
func (s *sqlStore) primary(ctx context.Context) *gorm.DB {
	db := s.db.WithContext(ctx)
	if hasDBResolver(s.db) {
		db = db.Clauses(dbresolver.Write)
	}
	return db
}

// Backend returns the SQL dialect name
func (s *sqlStore) Backend() string {
	return s.db.Dialector.Name()
}

// Ping checks the connection to the database
func (s *sqlStore) Ping(ctx context.Context) bool {
	sqlDB, err := s.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}

// Close closes the underlying connection pool
func (s *sqlStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Migrate creates the group tables and indexes if they do not exist
func (s *sqlStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&schema.GroupRawLatest{}, &schema.GroupRawHistory{}); err != nil {
		return unavailable("failed to migrate tables", err)
	}
	return nil
}

// Reset drops and recreates the group tables
func (s *sqlStore) Reset(ctx context.Context) error {
	migrator := s.db.WithContext(ctx).Migrator()
	if err := migrator.DropTable(&schema.GroupRawHistory{}, &schema.GroupRawLatest{}); err != nil {
		return unavailable("failed to drop tables", err)
	}
	return s.Migrate(ctx)
}

// GetLatest retrieves the latest record of a group from the primary
func (s *sqlStore) GetLatest(ctx context.Context, groupID string) (*domain.GroupRecord, error) {
	var row schema.GroupRawLatest
	err := s.primary(ctx).Where("group_id = ?", groupID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, unavailable("failed to get latest record", err)
	}

	record, err := s.rows.fromLatestRow(&row)
	if err != nil {
		return nil, fmt.Errorf("failed to decode latest record: %w", err)
	}
	return record, nil
}

// UpsertLatest inserts or conditionally updates the latest record of a group
func (s *sqlStore) UpsertLatest(ctx context.Context, record *domain.GroupRecord, expectedSeenCount uint64) error {
	row, err := s.rows.toLatestRow(record)
	if err != nil {
		return err
	}

	if expectedSeenCount == 0 {
		err := s.db.WithContext(ctx).Create(row).Error
		if err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("%w: group %s already exists", domain.ErrVersionConflict, record.GroupID)
			}
			return unavailable("failed to insert latest record", err)
		}
		return nil
	}

	result := s.db.WithContext(ctx).
		Model(&schema.GroupRawLatest{}).
		Where("group_id = ? AND seen_count = ?", row.GroupID, expectedSeenCount).
		Updates(map[string]interface{}{
			"content":              row.Content,
			"content_hash":         row.ContentHash,
			"content_version":      row.ContentVersion,
			"tags":                 row.Tags,
			"classification_hints": row.ClassificationHints,
			"group_type":           row.GroupType,
			"worldview":            row.Worldview,
			"has_sexual_content":   row.HasSexualContent,
			"no_audit_no_setting":  row.NoAuditNoSetting,
			"source":               row.Source,
			"batch_id":             row.BatchID,
			"first_seen_group":     row.FirstSeenGroup,
			"last_seen_group":      row.LastSeenGroup,
			"last_updated_content": row.LastUpdatedContent,
			"seen_count":           row.SeenCount,
		})
	if result.Error != nil {
		return unavailable("failed to update latest record", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: group %s changed since seen_count %d", domain.ErrVersionConflict, record.GroupID, expectedSeenCount)
	}

	return nil
}

// AppendHistory inserts a new history entry
func (s *sqlStore) AppendHistory(ctx context.Context, entry *domain.HistoryEntry) error {
	row, err := s.rows.toHistoryRow(entry)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: group %s version %d", domain.ErrDuplicateVersion, entry.GroupID, entry.ContentVersion)
		}
		return unavailable("failed to append history", err)
	}
	return nil
}

// RunInTx runs fn inside a database transaction
func (s *sqlStore) RunInTx(ctx context.Context, fn func(tx Gateway) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqlStore{db: tx, rows: s.rows})
	})
	if err != nil && !isDomainError(err) {
		return unavailable("transaction failed", err)
	}
	return err
}

// ListGroups retrieves latest records matching the filter
func (s *sqlStore) ListGroups(ctx context.Context, filter GroupFilter) ([]domain.GroupRecord, int64, error) {
	query := s.db.WithContext(ctx).Model(&schema.GroupRawLatest{})

	if filter.GroupID != "" {
		query = query.Where("group_id LIKE ?", "%"+filter.GroupID+"%")
	}
	if filter.GroupType != nil {
		query = query.Where("group_type = ?", string(*filter.GroupType))
	}
	if filter.Worldview != nil {
		query = query.Where("worldview = ?", string(*filter.Worldview))
	}
	if filter.HasSexualContent != nil {
		query = query.Where("has_sexual_content = ?", *filter.HasSexualContent)
	}
	if filter.NoAuditNoSetting != nil {
		query = query.Where("no_audit_no_setting = ?", *filter.NoAuditNoSetting)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, unavailable("failed to count groups", err)
	}

	sortBy := filter.SortBy
	if sortBy != SortByLastSeenGroup {
		sortBy = SortByFirstSeenGroup
	}

	var rows []schema.GroupRawLatest
	q := query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: string(sortBy)}, Desc: filter.SortDesc}).
		Order("group_id ASC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, unavailable("failed to list groups", err)
	}

	records, err := s.rows.fromLatestRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// RecentGroups retrieves the most recently seen groups
func (s *sqlStore) RecentGroups(ctx context.Context, limit int) ([]domain.GroupRecord, error) {
	var rows []schema.GroupRawLatest
	err := s.db.WithContext(ctx).
		Order("last_seen_group DESC").
		Order("group_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, unavailable("failed to get recent groups", err)
	}
	return s.rows.fromLatestRows(rows)
}

// GetHistory retrieves the history entries of a group, newest version first
func (s *sqlStore) GetHistory(ctx context.Context, groupID string, limit int) ([]domain.HistoryEntry, error) {
	var rows []schema.GroupRawHistory
	q := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("content_version DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, unavailable("failed to get history", err)
	}
	return s.rows.fromHistoryRows(rows)
}

// SearchGroups retrieves the most recently seen groups whose content contains keyword
func (s *sqlStore) SearchGroups(ctx context.Context, keyword string, limit int) ([]domain.GroupRecord, error) {
	var rows []schema.GroupRawLatest
	err := s.db.WithContext(ctx).
		Where("content LIKE ?", "%"+keyword+"%").
		Order("last_seen_group DESC").
		Order("group_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, unavailable("failed to search groups", err)
	}
	return s.rows.fromLatestRows(rows)
}

// GetStats summarizes the stored records
func (s *sqlStore) GetStats(ctx context.Context) (*domain.GroupStats, error) {
	db := s.db.WithContext(ctx)
	stats := &domain.GroupStats{GroupTypeStats: map[domain.GroupType]int64{}}

	if err := db.Model(&schema.GroupRawLatest{}).Count(&stats.TotalGroups).Error; err != nil {
		return nil, unavailable("failed to count groups", err)
	}
	if err := db.Model(&schema.GroupRawHistory{}).Count(&stats.TotalHistoryRecords).Error; err != nil {
		return nil, unavailable("failed to count history", err)
	}
	if err := db.Model(&schema.GroupRawLatest{}).
		Select("COALESCE(SUM(seen_count), 0)").
		Scan(&stats.TotalSeenCount).Error; err != nil {
		return nil, unavailable("failed to sum seen count", err)
	}

	var typeCounts []struct {
		GroupType string
		Count     int64
	}
	if err := db.Model(&schema.GroupRawLatest{}).
		Select("group_type, COUNT(*) AS count").
		Group("group_type").
		Scan(&typeCounts).Error; err != nil {
		return nil, unavailable("failed to count group types", err)
	}
	for _, tc := range typeCounts {
		stats.GroupTypeStats[domain.GroupType(tc.GroupType)] = tc.Count
	}

	return stats, nil
}
