package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	snapshotHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resumepress_snapshot_cache_hits_total",
		Help: "Snapshot reads served from the tag cache.",
	})
	snapshotMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resumepress_snapshot_cache_misses_total",
		Help: "Snapshot reads that fell through to the primary store.",
	})
	purgeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resumepress_cache_purge_failures_total",
		Help: "Invalidation failures per sink.",
	}, []string{"sink"})
)
