package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vertextoedge/media-cache/internal/port"
	"github.com/vertextoedge/media-cache/internal/service/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config contains HTTP server configuration
type Config struct {
	BindAddr      string
	AdminUsername string
	AdminPassword string
	ReadTimeout   time.Duration
	// WriteTimeout bounds a whole response, streams included. Zero disables it.
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:    "127.0.0.1:8089",
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

// ResourceRemover deletes cached resources on demand
type ResourceRemover interface {
	Remove(url string) (uint64, error)
}

// Server represents the HTTP consumer adapter and admin API
type Server struct {
	config        *Config
	store         port.Store
	logger        *zap.Logger
	server        *http.Server
	router        *mux.Router
	streamHandler *StreamHandler
	adminHandler  *AdminHandler
	debugHandler  *DebugHandler
}

// New creates a new HTTP server. prefetcher and remover may be nil, which
// disables the matching admin endpoints.
func New(
	cfg *Config,
	registry *session.Registry,
	prefetcher *session.Prefetcher,
	remover ResourceRemover,
	store port.Store,
	fs port.CacheFileSystem,
	logger *zap.Logger,
) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config: cfg,
		store:  store,
		logger: logger,
	}

	s.streamHandler = NewStreamHandler(registry, logger)
	s.adminHandler = NewAdminHandler(registry, prefetcher, remover, logger)
	s.debugHandler = NewDebugHandler(registry, store, fs, logger)

	r := mux.NewRouter()
	r.Use(RequestIDMiddleware, LoggingMiddleware(logger))

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stream", s.streamHandler.HandleStream).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	debug := r.PathPrefix("/debug").Subrouter()
	debug.HandleFunc("/stats", s.debugHandler.HandleStats).Methods(http.MethodGet)
	debug.HandleFunc("/resource", s.debugHandler.HandleResource).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	if cfg.AdminPassword != "" {
		admin.Use(BasicAuthMiddleware(cfg.AdminUsername, cfg.AdminPassword, logger))
	}
	admin.HandleFunc("/flush", s.adminHandler.HandleFlush).Methods(http.MethodPost)
	admin.HandleFunc("/prefetch", s.adminHandler.HandlePrefetch).Methods(http.MethodPost)
	admin.HandleFunc("/resource", s.adminHandler.HandleRemove).Methods(http.MethodDelete)
	admin.HandleFunc("/session", s.adminHandler.HandleRelease).Methods(http.MethodDelete)

	s.router = r
	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
