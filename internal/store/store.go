package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var (
	ErrIOFailure  = errors.New("order store unavailable")
	ErrSchemaInit = errors.New("order store schema initialisation failed")
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// dialect holds the statements that differ between backends.
type dialect struct {
	idColumn        string
	createTable     string
	hasScreenshot   string
	addScreenshot   string
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
}

var dialects = map[string]dialect{
	"sqlite": {
		idColumn: "rowid",
		createTable: `
		CREATE TABLE IF NOT EXISTS orders (
			name TEXT,
			address TEXT,
			phone TEXT,
			pincode TEXT,
			payment TEXT,
			gpay_number TEXT,
			txn_id TEXT,
			items TEXT,
			screenshot TEXT DEFAULT 'N/A'
		)`,
		hasScreenshot:   `SELECT COUNT(*) FROM pragma_table_info('orders') WHERE name = 'screenshot'`,
		addScreenshot:   `ALTER TABLE orders ADD COLUMN screenshot TEXT DEFAULT 'N/A'`,
		maxOpenConns:    4,
		maxIdleConns:    2,
		connMaxLifetime: 30 * time.Minute,
	},
	"postgres": {
		idColumn: "id",
		createTable: `
		CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			name TEXT,
			address TEXT,
			phone TEXT,
			pincode TEXT,
			payment TEXT,
			gpay_number TEXT,
			txn_id TEXT,
			items TEXT,
			screenshot TEXT DEFAULT 'N/A'
		)`,
		hasScreenshot: `SELECT COUNT(*) FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = 'orders' AND column_name = 'screenshot'`,
		addScreenshot:   `ALTER TABLE orders ADD COLUMN IF NOT EXISTS screenshot TEXT DEFAULT 'N/A'`,
		maxOpenConns:    25,
		maxIdleConns:    5,
		connMaxLifetime: 5 * time.Minute,
	},
}

type Store struct {
	db      *sqlx.DB
	dialect dialect
}

// NewStore opens the order database. For sqlite, url is a file path (parent
// directories are created) or a "file:" DSN.
func NewStore(driver, url string) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	dsn := url
	if driver == "sqlite" {
		var err error
		if dsn, err = sqliteDSN(url); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(d.maxOpenConns)
	db.SetMaxIdleConns(d.maxIdleConns)
	db.SetConnMaxLifetime(d.connMaxLifetime)

	return &Store{db: db, dialect: d}, nil
}

// NewStoreWithDB wraps an already open connection.
func NewStoreWithDB(db *sqlx.DB) (*Store, error) {
	d, ok := dialects[db.DriverName()]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s", db.DriverName())
	}
	return &Store{db: db, dialect: d}, nil
}

// sqliteDSN turns a plain path into a DSN that waits on the file lock held by
// other writers instead of failing immediately.
func sqliteDSN(url string) (string, error) {
	if strings.HasPrefix(url, "file:") || url == ":memory:" {
		return url, nil
	}
	if dir := filepath.Dir(url); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	return "file:" + url + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping reports whether the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// EnsureSchema creates the orders table if it is missing and adds the
// screenshot column to tables created before it existed. Safe to call on
// every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.createTable); err != nil {
		return fmt.Errorf("%w: create orders: %w", ErrSchemaInit, err)
	}

	var n int
	if err := s.db.GetContext(ctx, &n, s.dialect.hasScreenshot); err != nil {
		return fmt.Errorf("%w: inspect orders: %w", ErrSchemaInit, err)
	}
	if n > 0 {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, s.dialect.addScreenshot); err != nil {
		return fmt.Errorf("%w: add screenshot column: %w", ErrSchemaInit, err)
	}
	return nil
}
