package port

import (
	"github.com/vertextoedge/media-cache/internal/domain/repository"
)

// ResourceRepository is an alias to domain repository interface
type ResourceRepository = repository.ResourceRepository

// StatsRepository is an alias to domain repository interface
type StatsRepository = repository.StatsRepository

// Store is an alias to domain repository interface
type Store = repository.Store
