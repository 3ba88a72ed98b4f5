package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/port"
)

// Store implements port.Store interface using SQLite
type Store struct {
	db *sql.DB
}

// Ensure Store implements port.Store
var _ port.Store = (*Store)(nil)

// Open opens a connection to the SQLite database
func Open(dbPath string) (*Store, error) {
	// Open database with WAL mode and busy timeout
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
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
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate creates or updates the database schema
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS resources (
			url TEXT PRIMARY KEY,
			data_path TEXT NOT NULL,
			meta_path TEXT NOT NULL,
			content_length INTEGER NOT NULL DEFAULT -1,
			content_type TEXT NOT NULL DEFAULT '',
			cached_bytes INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			last_access_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_resources_last_access ON resources(last_access_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}

// GetCacheStats returns cache statistics
func (s *Store) GetCacheStats() (*domain.CacheStats, error) {
	stats := &domain.CacheStats{}

	err := s.db.QueryRow("SELECT COUNT(*) FROM resources").Scan(&stats.Resources)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRow(`SELECT COUNT(*) FROM resources
		WHERE content_length >= 0 AND cached_bytes >= content_length`).Scan(&stats.CompleteResources)
	if err != nil {
		return nil, err
	}

	var totalSize sql.NullInt64
	err = s.db.QueryRow("SELECT SUM(cached_bytes) FROM resources").Scan(&totalSize)
	if err != nil {
		return nil, err
	}
	stats.CachedSizeBytes = uint64(totalSize.Int64)

	return stats, nil
}
