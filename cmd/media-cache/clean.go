package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/domain/service"
	"github.com/vertextoedge/media-cache/internal/logger"
	"github.com/vertextoedge/media-cache/internal/service/maintenance"
)

// offline reports no live sessions; clean runs without a server in this process
type offline struct{}

func (offline) IsActive(string) bool { return false }

func newCleanCmd(load configLoader) *cobra.Command {
	var (
		url     string
		expired bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove cached resources",
		Long: `Remove every cached resource, one resource with --url, or only the
resources not accessed within cache.max_age with --expired.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url != "" && expired {
				return fmt.Errorf("--url and --expired are mutually exclusive")
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			fsManager, store, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			policy := service.NewCachePolicy(cfg.Cache.GetMaxAge(), cfg.Cache.GetMaxSize(), float64(cfg.Cache.MaxDiskUsagePercent))
			evictor := maintenance.NewEvictor(store, fsManager, maintenance.NewSpaceManager(fsManager, policy), policy,
				offline{}, nil, nil, logger.Named("clean"), 0)

			out := cmd.OutOrStdout()
			switch {
			case url != "":
				canonical, err := domain.CanonicalURL(url)
				if err != nil {
					return err
				}
				freed, err := evictor.Remove(canonical)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "removed %s (%d bytes)\n", canonical, freed)

			case expired:
				n, err := evictor.SweepExpired(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "removed %d expired resources\n", n)

			default:
				n, freed, err := evictor.RemoveAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "removed %d resources (%d bytes)\n", n, freed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Remove only this resource")
	cmd.Flags().BoolVar(&expired, "expired", false, "Remove only resources past cache.max_age")
	return cmd
}
