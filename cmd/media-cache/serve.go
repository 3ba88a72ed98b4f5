package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/media-cache/internal/adapter/httpfetch"
	"github.com/vertextoedge/media-cache/internal/config"
	"github.com/vertextoedge/media-cache/internal/domain/service"
	"github.com/vertextoedge/media-cache/internal/logger"
	"github.com/vertextoedge/media-cache/internal/service/cacher"
	"github.com/vertextoedge/media-cache/internal/service/maintenance"
	"github.com/vertextoedge/media-cache/internal/service/server"
	"github.com/vertextoedge/media-cache/internal/service/session"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the caching HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	log := logger.GetZapLogger()
	log.Info("starting media-cache",
		zap.String("version", version),
		zap.String("cache_dir", cfg.Cache.RootDir))

	fsManager, store, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	transport := httpfetch.New(httpfetch.Config{
		UserAgent:             cfg.Transport.UserAgent,
		ResponseHeaderTimeout: cfg.Transport.GetResponseHeaderTimeout(),
		IdleConnTimeout:       cfg.Transport.GetIdleConnTimeout(),
		MaxIdleConnsPerHost:   cfg.Transport.MaxIdleConnsPerHost,
		ReadBufferSize:        cfg.Cache.GetReadBufferSize(),
		SkipTLSVerify:         cfg.Transport.SkipTLSVerify,
	}, logger.Named("transport"))

	registry := session.NewRegistry(session.Config{
		Coordinator: cacher.CoordinatorConfig{
			ChunkSize:      cfg.Cache.GetChunkSize(),
			ReadBufferSize: cfg.Cache.GetReadBufferSize(),
			NotifyInterval: cfg.Cache.GetNotifyInterval(),
		},
		Worker: cacher.WorkerConfig{
			PersistInterval: cfg.Cache.GetPersistInterval(),
		},
	}, fsManager, transport, store, nil, logger.Named("session"))

	policy := service.NewCachePolicy(cfg.Cache.GetMaxAge(), cfg.Cache.GetMaxSize(), float64(cfg.Cache.MaxDiskUsagePercent))
	space := maintenance.NewSpaceManager(fsManager, policy)
	evictor := maintenance.NewEvictor(store, fsManager, space, policy, registry, registry.Dispatcher(), nil,
		logger.Named("evictor"), cfg.Cache.GetEvictionInterval())

	janitor := maintenance.New(&maintenance.Config{
		SweepInterval:   cfg.Maintenance.GetSweepInterval(),
		FlushInterval:   cfg.Maintenance.GetFlushInterval(),
		IdleTimeout:     cfg.Maintenance.GetIdleTimeout(),
		CleanupInterval: cfg.Maintenance.GetCleanupInterval(),
		StaleFileMaxAge: cfg.Maintenance.GetStaleFileMaxAge(),
	}, registry, store, fsManager, evictor, nil, logger.Named("janitor"))

	prefetcher := session.NewPrefetcher(&session.PrefetcherConfig{
		Workers:   cfg.Prefetch.Workers,
		QueueSize: cfg.Prefetch.QueueSize,
	}, registry, space, logger.Named("prefetch"))

	httpServer := server.New(&server.Config{
		BindAddr:      cfg.HTTP.BindAddr,
		AdminUsername: cfg.HTTP.AdminUsername,
		AdminPassword: cfg.HTTP.AdminPassword,
		ReadTimeout:   cfg.HTTP.GetReadTimeout(),
		WriteTimeout:  cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:   cfg.HTTP.GetIdleTimeout(),
	}, registry, prefetcher, evictor, store, fsManager, logger.Named("http"))

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(httpServer.Start)

	// Closing the registry first ends open streams, so Shutdown does not wait on them
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down, flushing sessions")
		if err := registry.Close(); err != nil {
			log.Error("failed to close sessions", zap.Error(err))
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Stop(shutdownCtx)
	})

	g.Go(func() error {
		return janitor.Start(gctx)
	})

	g.Go(func() error {
		return prefetcher.Start(gctx)
	})

	// SIGHUP persists every live session without stopping
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := registry.FlushAll(); err != nil {
					log.Warn("flush on SIGHUP failed", zap.Error(err))
				} else {
					log.Info("flushed live sessions", zap.Int("sessions", registry.Len()))
				}
			}
		}
	})

	log.Info("application started successfully", zap.String("http_addr", cfg.HTTP.BindAddr))

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("service failed", zap.Error(err))
	}

	log.Info("application stopped successfully")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
