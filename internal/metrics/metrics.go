// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvesterTasksTotal          *prometheus.CounterVec
	harvesterPostsUpsertedTotal  prometheus.Counter
	harvesterPostsSkippedTotal   prometheus.Counter
	harvesterBatchFlushSeconds   prometheus.Histogram
	harvesterResolveTotal        *prometheus.CounterVec
	harvesterCooldownSeconds     prometheus.Histogram
	harvesterRunDurationSeconds  prometheus.Histogram
	harvesterSimilarEdgesUpserts prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_tasks_total",
				Help: "Total number of queue tasks processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		harvesterPostsUpsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_posts_upserted_total",
				Help: "Total number of posts written through batch upserts.",
			},
		)

		harvesterPostsSkippedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_posts_skipped_total",
				Help: "Total number of posts dropped by per-record extraction failures.",
			},
		)

		harvesterBatchFlushSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_batch_flush_seconds",
				Help:    "Histogram of batch upsert transaction latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		harvesterResolveTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_resolve_total",
				Help: "Total handle resolutions, labeled by result (hit, miss, error).",
			},
			[]string{"result"},
		)

		harvesterCooldownSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_cooldown_seconds",
				Help:    "Histogram of cooldown durations reported by the platform.",
				Buckets: []float64{1, 10, 30, 60, 300, 900, 3600},
			},
		)

		harvesterRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_run_duration_seconds",
				Help:    "Histogram of wall-clock durations of completed scrape runs.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		)

		harvesterSimilarEdgesUpserts = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_similar_edges_upserted_total",
				Help: "Total similar-channel edges refreshed.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTask counts one processed task by outcome.
func ObserveTask(outcome string) {
	if harvesterTasksTotal != nil {
		harvesterTasksTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveBatch records one flushed batch.
func ObserveBatch(posts int, elapsed time.Duration) {
	if harvesterPostsUpsertedTotal != nil {
		harvesterPostsUpsertedTotal.Add(float64(posts))
	}
	if harvesterBatchFlushSeconds != nil {
		harvesterBatchFlushSeconds.Observe(elapsed.Seconds())
	}
}

// ObserveSkippedPost counts one post dropped during extraction.
func ObserveSkippedPost() {
	if harvesterPostsSkippedTotal != nil {
		harvesterPostsSkippedTotal.Inc()
	}
}

// ObserveResolve counts one resolution attempt by result.
func ObserveResolve(result string) {
	if harvesterResolveTotal != nil {
		harvesterResolveTotal.WithLabelValues(result).Inc()
	}
}

// ObserveCooldown records a platform-imposed cooldown duration.
func ObserveCooldown(wait time.Duration) {
	if harvesterCooldownSeconds != nil {
		harvesterCooldownSeconds.Observe(wait.Seconds())
	}
}

// ObserveRun records the wall-clock duration of a completed run.
func ObserveRun(elapsed time.Duration) {
	if harvesterRunDurationSeconds != nil {
		harvesterRunDurationSeconds.Observe(elapsed.Seconds())
	}
}

// ObserveSimilarEdges counts refreshed recommendation edges.
func ObserveSimilarEdges(n int) {
	if harvesterSimilarEdgesUpserts != nil {
		harvesterSimilarEdgesUpserts.Add(float64(n))
	}
}
