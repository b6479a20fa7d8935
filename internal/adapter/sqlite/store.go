package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ambientflow/ambientmix/internal/port"
)

// Options tune the SQLite connection
type Options struct {
	CacheSizeMB   int
	BusyTimeoutMs int
}

// Store implements port.Store interface using SQLite
type Store struct {
	db *sql.DB
}

// Ensure Store implements the repository ports
var (
	_ port.Store           = (*Store)(nil)
	_ port.BlobIndex       = (*Store)(nil)
	_ port.EntryRepository = (*Store)(nil)
)

// Open opens a connection to the SQLite database
func Open(dbPath string, opts Options) (*Store, error) {
	if opts.CacheSizeMB <= 0 {
		opts.CacheSizeMB = 16
	}
	if opts.BusyTimeoutMs <= 0 {
		opts.BusyTimeoutMs = 5000
	}

	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database with WAL mode and busy timeout
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", dbPath, opts.BusyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", opts.CacheSizeMB*1000),
		"PRAGMA temp_store = MEMORY",
		fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeoutMs),
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Blobs returns the blob index view of the store
func (s *Store) Blobs() port.BlobIndex {
	return s
}

// Entries returns the cache entry view of the store
func (s *Store) Entries() port.EntryRepository {
	return s
}

// migrate creates or updates the database schema
func (s *Store) migrate() error {
	migrations := []string{
		// Stored blobs keyed by asset URL
		`CREATE TABLE IF NOT EXISTS blobs (
			key TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			size INTEGER NOT NULL DEFAULT 0,
			stored_size INTEGER NOT NULL DEFAULT 0,
			stored_at INTEGER NOT NULL
		)`,

		// Per-sound cache metadata
		`CREATE TABLE IF NOT EXISTS cache_entries (
			sound_id TEXT PRIMARY KEY,
			priority TEXT NOT NULL DEFAULT 'low',
			preload BOOLEAN NOT NULL DEFAULT FALSE,
			url TEXT NOT NULL DEFAULT '',
			size_bytes INTEGER NOT NULL DEFAULT 0,
			last_used_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_cache_entries_priority ON cache_entries(priority, last_used_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}
