package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	entriesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "readless_entries_ingested_total",
		Help: "Entries stored by feed refreshes",
	})
	entriesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readless_entries_skipped_total",
		Help: "Fetched entries left out of a refresh, by reason",
	}, []string{"reason"})
	fetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "readless_fetch_failures_total",
		Help: "Feed fetches that failed or timed out",
	})
	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "readless_refresh_duration_seconds",
		Help:    "Time spent refreshing a single feed",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	})
)

func recordRefresh(res RefreshResult) {
	entriesIngested.Add(float64(res.NewEntries))
	for _, s := range res.Skipped {
		entriesSkipped.WithLabelValues(string(s.Reason)).Inc()
	}
}
