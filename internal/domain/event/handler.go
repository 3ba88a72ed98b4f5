package event

import (
	"go.uber.org/zap"

	"github.com/vertextoedge/media-cache/internal/metrics"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case CacheProgressUpdated:
		fields := []zap.Field{
			zap.String("url", e.URL),
			zap.Bool("final", e.Final),
		}
		if e.Metadata != nil {
			fields = append(fields,
				zap.Uint64("cached_bytes", e.Metadata.CachedBytes()),
				zap.Int64("content_length", e.Metadata.ContentLength),
				zap.Float64("progress", e.Metadata.Progress()),
			)
		}
		h.logger.Debug("cache progress", fields...)
	case CacheFinished:
		if e.Err != nil {
			h.logger.Warn("cache download failed",
				zap.String("url", e.URL),
				zap.Error(e.Err),
			)
			return nil
		}
		h.logger.Info("resource fully cached", zap.String("url", e.URL))
	case RequestFailed:
		h.logger.Warn("request failed",
			zap.String("url", e.URL),
			zap.String("session_id", e.SessionID),
			zap.Stringer("range", e.Range),
			zap.String("kind", e.Kind),
			zap.Error(e.Err),
		)
	case SessionOpened:
		h.logger.Debug("session opened",
			zap.String("url", e.URL),
			zap.String("session_id", e.SessionID),
		)
	case SessionClosed:
		h.logger.Debug("session closed",
			zap.String("url", e.URL),
			zap.String("session_id", e.SessionID),
			zap.String("reason", e.Reason),
		)
	case ResourceEvicted:
		h.logger.Info("resource evicted",
			zap.String("url", e.URL),
			zap.Uint64("size", e.Size),
			zap.String("reason", e.Reason),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{"*"} // Handle all events
}

// MetricsHandler exports events as Prometheus metrics
type MetricsHandler struct{}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// Handle updates metrics based on the event
func (h *MetricsHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case CacheFinished:
		result := "complete"
		if e.Err != nil {
			result = "failed"
		}
		metrics.DownloadsFinishedTotal.WithLabelValues(result).Inc()
	case RequestFailed:
		metrics.RequestsTotal.WithLabelValues(e.Kind).Inc()
	case SessionOpened:
		metrics.ActiveSessions.Inc()
	case SessionClosed:
		metrics.ActiveSessions.Dec()
	case ResourceEvicted:
		metrics.ResourcesEvictedTotal.WithLabelValues(e.Reason).Inc()
		metrics.BytesEvictedTotal.Add(float64(e.Size))
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *MetricsHandler) HandledEvents() []string {
	return []string{
		NameCacheFinished,
		NameRequestFailed,
		NameSessionOpened,
		NameSessionClosed,
		NameResourceEvicted,
	}
}

// FuncHandler adapts a function to EventHandler
type FuncHandler struct {
	names []string
	fn    func(DomainEvent)
}

// NewFuncHandler creates a handler calling fn for the given event names
func NewFuncHandler(fn func(DomainEvent), names ...string) *FuncHandler {
	if len(names) == 0 {
		names = []string{"*"}
	}
	return &FuncHandler{names: names, fn: fn}
}

// Handle calls the wrapped function
func (h *FuncHandler) Handle(event DomainEvent) error {
	h.fn(event)
	return nil
}

// HandledEvents returns the events this handler handles
func (h *FuncHandler) HandledEvents() []string {
	return h.names
}
