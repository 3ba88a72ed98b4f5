package sqlite

import (
	"database/sql"
	"time"

	"github.com/vertextoedge/media-cache/internal/domain"
)

const resourceColumns = `url, data_path, meta_path, content_length, content_type,
	cached_bytes, created_at, last_access_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*domain.CachedResource, error) {
	res := &domain.CachedResource{}
	var cachedBytes int64
	err := row.Scan(
		&res.URL, &res.DataPath, &res.MetaPath, &res.ContentLength, &res.ContentType,
		&cachedBytes, &res.CreatedAt, &res.LastAccessAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	res.CachedBytes = uint64(cachedBytes)
	return res, nil
}

// GetByURL retrieves a resource by its canonical URL
func (s *Store) GetByURL(url string) (*domain.CachedResource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE url = ?`

	res, err := scanResource(s.db.QueryRow(query, url))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Upsert creates or updates a resource entry, keeping its creation time
func (s *Store) Upsert(res *domain.CachedResource) error {
	query := `
		INSERT INTO resources (` + resourceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			data_path = excluded.data_path,
			meta_path = excluded.meta_path,
			content_length = excluded.content_length,
			content_type = excluded.content_type,
			cached_bytes = excluded.cached_bytes,
			last_access_at = excluded.last_access_at,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	createdAt := utcOr(res.CreatedAt, now)
	lastAccess := utcOr(res.LastAccessAt, now)
	updatedAt := utcOr(res.UpdatedAt, now)

	_, err := s.db.Exec(query,
		res.URL, res.DataPath, res.MetaPath, res.ContentLength, res.ContentType,
		int64(res.CachedBytes), createdAt, lastAccess, updatedAt,
	)
	return err
}

// Touch records an access to a resource
func (s *Store) Touch(url string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE resources SET last_access_at = ? WHERE url = ?`, at.UTC(), url)
	return err
}

// Delete removes a resource entry
func (s *Store) Delete(url string) error {
	_, err := s.db.Exec(`DELETE FROM resources WHERE url = ?`, url)
	return err
}

// List returns every resource, most recently accessed first
func (s *Store) List() ([]*domain.CachedResource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources ORDER BY last_access_at DESC, url`
	return s.queryResources(query)
}

// ListExpired returns resources last accessed before the given time
func (s *Store) ListExpired(before time.Time) ([]*domain.CachedResource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources
		WHERE last_access_at < ?
		ORDER BY last_access_at ASC, url`
	return s.queryResources(query, before.UTC())
}

// GetEvictionCandidates returns resources in least recently accessed order.
// A non-positive limit returns every resource.
func (s *Store) GetEvictionCandidates(limit int) ([]*domain.CachedResource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources ORDER BY last_access_at ASC, url`
	if limit > 0 {
		return s.queryResources(query+` LIMIT ?`, limit)
	}
	return s.queryResources(query)
}

func (s *Store) queryResources(query string, args ...any) ([]*domain.CachedResource, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.CachedResource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func utcOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t.UTC()
}
