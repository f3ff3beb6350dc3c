package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fomcagent/datasync/internal/utils"
	"github.com/jmoiron/sqlx"
)

const MemoryPath = ":memory:"

const defaultPragmas = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
PRAGMA temp_store=MEMORY;
`

type options struct {
	path            string
	pragmas         string
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
}

// Option configures NewSqliteDB
type Option func(*options)

// WithPath sets the database file. MemoryPath (the default) keeps everything in memory.
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithPragmas replaces the default pragma block
func WithPragmas(pragmas string) Option {
	return func(o *options) {
		o.pragmas = pragmas
	}
}

func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		o.maxOpenConns = n
	}
}

func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *options) {
		o.connMaxLifetime = d
	}
}

// NewSqliteDB opens a sqlite database through sqlx with the driver selected at build time
func NewSqliteDB(opts ...Option) (*sqlx.DB, error) {
	cfg := &options{
		path:         MemoryPath,
		pragmas:      defaultPragmas,
		maxIdleConns: 2,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var dsn string
	if cfg.path == MemoryPath {
		// every connection to :memory: is a separate database
		dsn = MemoryPath
		cfg.maxOpenConns = 1
	} else {
		if err := utils.EnsureParent(cfg.path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", cfg.path)
	}

	slog.Debug("sqlite open", "driver", driverID, "path", cfg.path)
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.maxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.maxOpenConns)
	}
	if cfg.maxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.maxIdleConns)
	}
	if cfg.connMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.connMaxLifetime)
	}

	if cfg.pragmas != "" {
		if _, err := db.Exec(cfg.pragmas); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragmas: %w", err)
		}
	}

	return db, nil
}
