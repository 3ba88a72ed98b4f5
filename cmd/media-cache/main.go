package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vertextoedge/media-cache/internal/adapter/filesystem"
	"github.com/vertextoedge/media-cache/internal/adapter/sqlite"
	"github.com/vertextoedge/media-cache/internal/config"
	"github.com/vertextoedge/media-cache/internal/logger"
)

const version = "0.3.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "media-cache",
		Short: "Range-based caching proxy for progressive media",
		Long: `media-cache serves byte ranges of remote media resources, answering
from a local sparse cache where possible and fetching only the missing bytes
from the origin.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		return cfg, nil
	}

	rootCmd.AddCommand(
		newServeCmd(load),
		newInspectCmd(load),
		newCleanCmd(load),
	)
	return rootCmd
}

type configLoader func() (*config.Config, error)

// openCache opens the cache directory and its catalog
func openCache(cfg *config.Config) (*filesystem.Manager, *sqlite.Store, error) {
	fsManager, err := filesystem.NewManager(cfg.Cache.RootDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create filesystem manager: %w", err)
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = filepath.Join(cfg.Cache.RootDir, "catalog.db")
	}
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	return fsManager, store, nil
}
