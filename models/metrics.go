package models

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	changeLabel = "change"
)

var (
	sessionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_count",
		Help: "The number of sessions.",
	})

	sessionCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_count_total",
		Help: "The total number of sessions.",
	})

	entityCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "entity_count",
		Help: "The number of entities across sessions.",
	})

	entityIndexChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entity_index_changes",
		Help: "The number of entities inserted, updated or removed by entity index refreshes.",
	}, []string{changeLabel})

	entityIndexRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "entity_index_refresh_duration_seconds",
		Help:    "The time taken to refresh an entity index.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})
)

func instrumentIncreaseSessionGauge() {
	sessionCount.Inc()
}

func instrumentDecreaseSessionGauge() {
	sessionCount.Dec()
}

func instrumentCountSession() {
	sessionCountTotal.Inc()
}

func instrumentEntityGauge(delta int) {
	entityCount.Add(float64(delta))
}

func instrumentIndexRefresh(res RefreshResult, d time.Duration) {
	entityIndexChanges.
		With(prometheus.Labels{changeLabel: "inserted"}).
		Add(float64(res.Inserted))
	entityIndexChanges.
		With(prometheus.Labels{changeLabel: "updated"}).
		Add(float64(res.Updated))
	entityIndexChanges.
		With(prometheus.Labels{changeLabel: "removed"}).
		Add(float64(res.Removed))

	entityIndexRefreshDuration.Observe(d.Seconds())
}
