package repository

import (
	"time"

	"github.com/vertextoedge/media-cache/internal/domain"
)

// ResourceRepository defines the interface for the cached resource catalog
type ResourceRepository interface {
	// GetByURL retrieves a resource by its canonical URL.
	// Returns nil, nil if the resource is not in the catalog.
	GetByURL(url string) (*domain.CachedResource, error)

	// Upsert creates or updates a resource entry, keeping its creation time
	Upsert(res *domain.CachedResource) error

	// Touch records an access to a resource
	Touch(url string, at time.Time) error

	// Delete removes a resource entry
	Delete(url string) error

	// List returns every resource, most recently accessed first
	List() ([]*domain.CachedResource, error)

	// ListExpired returns resources last accessed before the given time
	ListExpired(before time.Time) ([]*domain.CachedResource, error)

	// GetEvictionCandidates returns resources in least recently accessed order
	GetEvictionCandidates(limit int) ([]*domain.CachedResource, error)
}
