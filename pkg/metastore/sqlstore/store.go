// Package sqlstore implements the blob metadata store on a relational
// backend through GORM. It supports SQLite, PostgreSQL and MySQL via the
// same codebase.
//
// Every mutating operation runs inside a single transaction: look up the
// target rows (container existence first), materialize the embedded lease,
// project it to the request's start time, validate access conditions,
// compute the new state and persist. Read operations share the first four
// steps without a write.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/lazurite/internal/logger"
	"github.com/marmos91/lazurite/pkg/metastore"
	"github.com/marmos91/lazurite/pkg/metastore/models"
)

// ErrClosed is returned by operations against a closed store.
var ErrClosed = errors.New("metadata store is closed")

// SQLStore implements metastore.Store on a relational database.
type SQLStore struct {
	db      *gorm.DB
	config  *Config
	metrics *storeMetrics
	closed  atomic.Bool
}

var _ metastore.Store = (*SQLStore)(nil)

// New opens the database, synchronizes the schema and returns a ready store.
// Schema synchronization is idempotent, so concurrent instances and restarts
// are safe.
func New(config *Config) (*SQLStore, error) {
	if config == nil {
		config = FromEnv()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Dialect {
	case DialectSQLite:
		if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// WAL for concurrent readers, busy_timeout to ride out writer locks.
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case DialectPostgres:
		dialector = postgres.Open(config.PostgresDSN())

	case DialectMySQL:
		dialector = mysql.Open(config.MySQLDSN())

	default:
		return nil, fmt.Errorf("unsupported database dialect: %s", config.Dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if server := config.server(); server != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(server.MaxOpenConns)
		sqlDB.SetMaxIdleConns(server.MaxIdleConns)
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to synchronize schema: %w", err)
	}

	logger.Info("metadata store initialized", "dialect", config.Dialect)

	return &SQLStore{
		db:      db,
		config:  config,
		metrics: newStoreMetrics(),
	}, nil
}

func (c *Config) server() *ServerConfig {
	switch c.Dialect {
	case DialectPostgres:
		return &c.Postgres
	case DialectMySQL:
		return &c.MySQL
	default:
		return nil
	}
}

// Close drains connections and marks the store closed. A second Close fails.
func (s *SQLStore) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the underlying GORM database connection. Useful for advanced
// queries and testing.
func (s *SQLStore) DB() *gorm.DB {
	return s.db
}

// transaction runs fn inside a single backing-store transaction. SQLite
// transactions are serializable by construction; the server backends request
// serializable isolation explicitly to rule out lost updates on lease
// fields.
func (s *SQLStore) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.config.Dialect == DialectSQLite {
		return s.db.WithContext(ctx).Transaction(fn)
	}
	return s.db.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

// observe records metrics and a debug log line for a finished operation.
func (s *SQLStore) observe(op string, started time.Time, err error) {
	s.metrics.observe(op, started, err)
	if err != nil {
		logger.Debug("metastore operation failed", "operation", op, "error", err)
	}
}

// newEtag mints an opaque etag. Every entity mutation must change the etag.
func newEtag() string {
	return "\"" + uuid.NewString() + "\""
}

// isUniqueConstraintError checks if the error is a unique constraint
// violation on any of the supported backends.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "Duplicate entry")
}
