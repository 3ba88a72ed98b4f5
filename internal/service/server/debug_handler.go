package server

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/port"
	"github.com/vertextoedge/media-cache/internal/service/session"
)

// DebugHandler handles debug endpoint requests
type DebugHandler struct {
	registry *session.Registry
	store    port.Store
	fs       port.CacheFileSystem
	logger   *zap.Logger
}

// NewDebugHandler creates a new DebugHandler
func NewDebugHandler(registry *session.Registry, store port.Store, fs port.CacheFileSystem, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		registry: registry,
		store:    store,
		fs:       fs,
		logger:   logger,
	}
}

type sessionInfo struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	ContentLength int64     `json:"content_length"`
	CachedBytes   uint64    `json:"cached_bytes"`
	Progress      float64   `json:"progress"`
	RecentRate    float64   `json:"recent_rate"`
	Busy          bool      `json:"busy"`
	Served        uint64    `json:"served"`
	LastActive    time.Time `json:"last_active"`
}

type segmentInfo struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

type resourceInfo struct {
	URL            string        `json:"url"`
	ContentLength  int64         `json:"content_length"`
	ContentType    string        `json:"content_type"`
	RangeSupported bool          `json:"range_supported"`
	CachedBytes    uint64        `json:"cached_bytes"`
	Progress       float64       `json:"progress"`
	Complete       bool          `json:"complete"`
	DownloadSpeed  float64       `json:"download_speed"`
	Segments       []segmentInfo `json:"segments"`
	Live           bool          `json:"live"`
	LastAccessAt   *time.Time    `json:"last_access_at,omitempty"`
}

// HandleStats handles debug statistics requests
func (h *DebugHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetCacheStats()
	if err != nil {
		h.logger.Error("failed to get cache stats", zap.Error(err))
		http.Error(w, "Failed to get cache stats", http.StatusInternalServerError)
		return
	}

	size, err := h.fs.GetCacheSize()
	if err != nil {
		h.logger.Warn("failed to get cache size", zap.Error(err))
	}

	live := h.registry.Sessions()
	sessions := make([]sessionInfo, 0, len(live))
	for _, s := range live {
		snap := s.Snapshot()
		sessions = append(sessions, sessionInfo{
			ID:            s.ID(),
			URL:           s.URL(),
			ContentLength: snap.ContentLength,
			CachedBytes:   snap.CachedBytes(),
			Progress:      snap.Progress(),
			RecentRate:    s.RecentRate(),
			Busy:          s.IsBusy(),
			Served:        s.Served(),
			LastActive:    s.LastActive(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stats":            stats,
		"cache_size_bytes": size,
		"sessions":         sessions,
		"in_flight":        h.registry.InFlight().Active(),
	})
}

// HandleResource returns the cache state of one resource: GET /debug/resource?url=<u>
func (h *DebugHandler) HandleResource(w http.ResponseWriter, r *http.Request) {
	url, err := domain.CanonicalURL(r.URL.Query().Get("url"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var meta *domain.CacheMetadata
	s, live := h.registry.Get(url)
	if live {
		meta = s.Snapshot()
	} else {
		meta, err = h.fs.LoadMetadata(url)
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Resource not cached", http.StatusNotFound)
			return
		}
		if err != nil {
			h.logger.Error("failed to load metadata", zap.String("url", url), zap.Error(err))
			http.Error(w, "Failed to load metadata", http.StatusInternalServerError)
			return
		}
	}

	info := resourceInfo{
		URL:            meta.URL,
		ContentLength:  meta.ContentLength,
		ContentType:    meta.ContentType,
		RangeSupported: meta.ByteRangeSupported,
		CachedBytes:    meta.CachedBytes(),
		Progress:       meta.Progress(),
		Complete:       meta.IsComplete(),
		DownloadSpeed:  meta.DownloadSpeed(),
		Segments:       []segmentInfo{},
		Live:           live,
	}
	for _, seg := range meta.Segments.Segments() {
		info.Segments = append(info.Segments, segmentInfo{Offset: seg.Offset, Length: seg.Length})
	}

	if entry, err := h.store.GetByURL(url); err != nil {
		h.logger.Warn("failed to read catalog entry", zap.String("url", url), zap.Error(err))
	} else if entry != nil {
		info.LastAccessAt = &entry.LastAccessAt
	}

	writeJSON(w, http.StatusOK, info)
}
