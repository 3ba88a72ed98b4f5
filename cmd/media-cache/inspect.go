package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/vertextoedge/media-cache/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newInspectCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [url]",
		Short: "Show cached resources, or the metadata record of one resource",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			fsManager, store, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()

			if len(args) == 1 {
				url, err := domain.CanonicalURL(args[0])
				if err != nil {
					return err
				}
				meta, err := fsManager.LoadMetadata(url)
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("%s is not cached", url)
				}
				if err != nil {
					return err
				}
				return printMetadata(out, meta)
			}

			resources, err := store.List()
			if err != nil {
				return err
			}
			stats, err := store.GetCacheStats()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "URL\tCACHED\tLENGTH\tLAST ACCESS")
			for _, res := range resources {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", res.URL, res.CachedBytes, res.ContentLength,
					res.LastAccessAt.Local().Format("2006-01-02 15:04:05"))
			}
			tw.Flush()
			fmt.Fprintf(out, "%d resources, %d complete, %d bytes cached\n",
				stats.Resources, stats.CompleteResources, stats.CachedSizeBytes)
			return nil
		},
	}
}

type segmentView struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

type metadataView struct {
	URL            string        `json:"url"`
	ContentLength  int64         `json:"content_length"`
	ContentType    string        `json:"content_type"`
	RangeSupported bool          `json:"range_supported"`
	CachedBytes    uint64        `json:"cached_bytes"`
	Progress       float64       `json:"progress"`
	DownloadSpeed  float64       `json:"download_speed"`
	Segments       []segmentView `json:"segments"`
}

func printMetadata(w io.Writer, meta *domain.CacheMetadata) error {
	view := metadataView{
		URL:            meta.URL,
		ContentLength:  meta.ContentLength,
		ContentType:    meta.ContentType,
		RangeSupported: meta.ByteRangeSupported,
		CachedBytes:    meta.CachedBytes(),
		Progress:       meta.Progress(),
		DownloadSpeed:  meta.DownloadSpeed(),
		Segments:       []segmentView{},
	}
	for _, seg := range meta.Segments.Segments() {
		view.Segments = append(view.Segments, segmentView{Offset: seg.Offset, Length: seg.Length})
	}

	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
