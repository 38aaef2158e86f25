package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	CacheGroup  = "group"
	CacheMember = "member"

	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultExpired = "expired"

	ResultCached     = "cached"
	ResultDownloaded = "downloaded"
	ResultJoined     = "joined"
	ResultFailed     = "failed"

	ResultSuccess     = "success"
	ResultUnsupported = "unsupported"
	ResultError       = "error"
)

var (
	MetadataCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapper_metadata_cache_lookups_total",
			Help: "Metadata cache lookups by cache and result (hit, miss, expired).",
		},
		[]string{"cache", "result"},
	)

	MetadataCacheEntriesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapper_metadata_cache_entries",
			Help: "Number of entries held by each metadata cache.",
		},
		[]string{"cache"},
	)

	AssetRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapper_asset_requests_total",
			Help: "Asset URI requests by outcome (cached, downloaded, joined, failed).",
		},
		[]string{"result"},
	)

	AssetDownloadsInFlightGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapper_asset_downloads_in_flight",
			Help: "Number of asset downloads currently holding a concurrency permit.",
		},
	)

	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapper_snapshots_total",
			Help: "Snapshot generation attempts by outcome.",
		},
		[]string{"result"},
	)

	RenderDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapper_render_duration_seconds",
			Help:    "Time spent in the renderer per snapshot.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	CacheSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapper_cache_snapshot_saves_total",
			Help: "Persisted cache snapshot writes by outcome.",
		},
		[]string{"result"},
	)
)

// ObserveCacheLookup records one metadata cache lookup.
func ObserveCacheLookup(cache, result string) {
	MetadataCacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// SetCacheEntries sets the current size of a metadata cache.
func SetCacheEntries(cache string, n int) {
	MetadataCacheEntriesGauge.WithLabelValues(cache).Set(float64(n))
}

// ObserveAssetRequest records the outcome of one asset URI request.
func ObserveAssetRequest(result string) {
	AssetRequestsTotal.WithLabelValues(result).Inc()
}

// IncrementDownloadsInFlight increments the in-flight downloads gauge.
func IncrementDownloadsInFlight() {
	AssetDownloadsInFlightGauge.Inc()
}

// DecrementDownloadsInFlight decrements the in-flight downloads gauge.
func DecrementDownloadsInFlight() {
	AssetDownloadsInFlightGauge.Dec()
}

// ObserveSnapshot records a snapshot outcome.
func ObserveSnapshot(result string) {
	SnapshotsTotal.WithLabelValues(result).Inc()
}

// ObserveRender records the renderer latency.
func ObserveRender(d time.Duration) {
	RenderDurationSeconds.Observe(d.Seconds())
}

// ObserveCacheSave records a cache snapshot write.
func ObserveCacheSave(ok bool) {
	if ok {
		CacheSavesTotal.WithLabelValues(ResultSuccess).Inc()
		return
	}
	CacheSavesTotal.WithLabelValues(ResultError).Inc()
}
