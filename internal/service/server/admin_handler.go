package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/service/session"
)

// AdminHandler handles cache management requests
type AdminHandler struct {
	registry   *session.Registry
	prefetcher *session.Prefetcher
	remover    ResourceRemover
	logger     *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(registry *session.Registry, prefetcher *session.Prefetcher, remover ResourceRemover, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		registry:   registry,
		prefetcher: prefetcher,
		remover:    remover,
		logger:     logger,
	}
}

// HandleFlush persists the metadata of every live session: POST /admin/flush
func (h *AdminHandler) HandleFlush(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.FlushAll(); err != nil {
		h.logger.Error("failed to flush sessions", zap.Error(err))
		http.Error(w, "Failed to flush sessions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sessions": h.registry.Len()})
}

// HandlePrefetch queues a whole-resource download: POST /admin/prefetch?url=<u>
func (h *AdminHandler) HandlePrefetch(w http.ResponseWriter, r *http.Request) {
	if h.prefetcher == nil {
		http.Error(w, "Prefetch disabled", http.StatusNotImplemented)
		return
	}

	err := h.prefetcher.Enqueue(r.URL.Query().Get("url"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]int{"pending": h.prefetcher.Pending()})
	case errors.Is(err, domain.ErrInvalidResourceURL):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, session.ErrQueueFull):
		w.Header().Set("Retry-After", "5")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.logger.Error("failed to queue prefetch", zap.Error(err))
		http.Error(w, "Failed to queue prefetch", http.StatusInternalServerError)
	}
}

// HandleRemove deletes a cached resource: DELETE /admin/resource?url=<u>
func (h *AdminHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	if h.remover == nil {
		http.Error(w, "Removal disabled", http.StatusNotImplemented)
		return
	}

	url, err := domain.CanonicalURL(r.URL.Query().Get("url"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	freed, err := h.remover.Remove(url)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]uint64{"freed_bytes": freed})
	case errors.Is(err, domain.ErrResourceActive):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("failed to remove resource", zap.String("url", url), zap.Error(err))
		http.Error(w, "Failed to remove resource", http.StatusInternalServerError)
	}
}

// HandleRelease closes the session of a resource: DELETE /admin/session?url=<u>
func (h *AdminHandler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Release(r.URL.Query().Get("url")); err != nil {
		if errors.Is(err, domain.ErrInvalidResourceURL) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Warn("failed to release session", zap.Error(err))
		http.Error(w, "Failed to release session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
