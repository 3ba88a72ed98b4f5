package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Media cache metrics. Data-path counters carry a "source" label,
// source="local" for bytes served from the cache store and source="remote"
// for bytes fetched from the network.

var (
	BytesDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_cache_bytes_delivered_total",
		Help: "Total number of bytes delivered to consumers",
	}, []string{"source"})

	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_cache_actions_total",
		Help: "Total number of executed download plan actions",
	}, []string{"source"})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_cache_requests_total",
		Help: "Total number of consumer range requests by result",
	}, []string{"result"})

	DownloadsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_cache_downloads_finished_total",
		Help: "Total number of finished resource downloads by result",
	}, []string{"result"})

	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_cache_store_errors_total",
		Help: "Total number of cache store failures by operation",
	}, []string{"op"})

	ResourcesEvictedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_cache_resources_evicted_total",
		Help: "Total number of cached resources removed by the janitor",
	}, []string{"reason"})

	BytesEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_cache_bytes_evicted_total",
		Help: "Total number of cached bytes removed by the janitor",
	})

	MetadataFlushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_cache_metadata_flushes_total",
		Help: "Total number of metadata records persisted",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "media_cache_active_sessions",
		Help: "Number of live resource sessions",
	})

	InFlightDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "media_cache_inflight_downloads",
		Help: "Number of resources with a running download coordinator",
	})

	CacheSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "media_cache_size_bytes",
		Help: "Total size of cached data on disk",
	})

	DiskUsagePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "media_cache_disk_usage_percent",
		Help: "Disk usage of the filesystem holding the cache",
	})

	RemoteFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "media_cache_remote_fetch_duration_seconds",
		Help:    "Duration of remote fetch actions",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)
