package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "resolve_total",
		Help:      "Resolve calls by result kind.",
	}, []string{"result"})

	FetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "fetch_total",
		Help:      "Fetch calls by final transfer state or error kind.",
	}, []string{"result"})

	RelayBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "bytes_total",
		Help:      "Media bytes forwarded to callers.",
	})

	ActiveTransfers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "active_transfers",
		Help:      "Transfers currently holding an upstream stream.",
	})

	UpstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relay",
		Name:      "upstream_request_duration_seconds",
		Help:      "Time spent on outbound calls to the source, by operation.",
		Buckets:   []float64{0.1, 0.3, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"operation"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "metadata_cache_hits_total",
		Help:      "Metadata lookups served from cache.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "metadata_cache_misses_total",
		Help:      "Metadata lookups that went upstream.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		ResolveTotal,
		FetchTotal,
		RelayBytesTotal,
		ActiveTransfers,
		UpstreamDuration,
		CacheHitsTotal,
		CacheMissesTotal,
	)
}
