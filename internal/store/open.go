package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"

	"github.com/groupwatch/group-indexer/internal/adapter"
	"github.com/groupwatch/group-indexer/internal/domain"
	"github.com/groupwatch/group-indexer/internal/logger"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverFile     = BackendFile
)

// Config describes how to reach the storage backend
type Config struct {
	Driver  string
	DSN     string
	ReadDSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// FilePath is the directory of the local file backend, used when Driver is "file"
	// or when the relational backend is unreachable and Fallback is set
	FilePath string
	Fallback bool

	AutoMigrate bool
	Debug       bool
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverMySQL:
		return mysql.Open(dsn), nil
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// OpenDB opens a gorm connection for the configured driver, registers the read
// replica if one is configured and applies the pool settings
func OpenDB(cfg Config) (*gorm.DB, error) {
	d, err := dialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	logLevel := gormlogger.Warn
	if cfg.Debug {
		logLevel = gormlogger.Info
	}
	db, err := gorm.Open(d, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.ReadDSN != "" {
		replica, err := dialector(cfg.Driver, cfg.ReadDSN)
		if err != nil {
			return nil, err
		}
		err = db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: []gorm.Dialector{replica},
			Policy:   dbresolver.RandomPolicy{},
		}))
		if err != nil {
			return nil, fmt.Errorf("failed to register read replica: %w", err)
		}
	}

	if err := ConfigureConnectionPool(db, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime, cfg.ConnMaxIdleTime); err != nil {
		return nil, err
	}
	return db, nil
}

// Open returns the configured store. When the relational backend cannot be opened or
// does not answer a ping and Fallback is set, the local file store is returned instead.
func Open(ctx context.Context, cfg Config, fs adapter.FileSystem, json adapter.JSON) (Store, error) {
	var st Store
	if cfg.Driver == DriverFile {
		local, err := NewFileStore(cfg.FilePath, fs, json)
		if err != nil {
			return nil, err
		}
		st = local
	} else {
		remote, err := openSQL(ctx, cfg, json)
		if err != nil {
			if !cfg.Fallback {
				return nil, err
			}
			logger.WarnCtx(ctx, "Database unavailable, falling back to local file store",
				zap.Error(err),
				zap.String("driver", cfg.Driver),
				zap.String("path", cfg.FilePath))

			local, ferr := NewFileStore(cfg.FilePath, fs, json)
			if ferr != nil {
				return nil, errors.Join(err, ferr)
			}
			st = local
		} else {
			st = remote
		}
	}

	if cfg.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	logger.InfoCtx(ctx, "Storage backend ready", zap.String("backend", st.Backend()))
	return st, nil
}

func openSQL(ctx context.Context, cfg Config, json adapter.JSON) (Store, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, unavailable("failed to open database", err)
	}

	st := NewSQLStore(db, json)
	if !st.Ping(ctx) {
		_ = st.Close()
		return nil, fmt.Errorf("%w: %s database did not answer ping", domain.ErrStorageUnavailable, cfg.Driver)
	}
	return st, nil
}
