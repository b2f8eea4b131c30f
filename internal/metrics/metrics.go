// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the recommendation pipeline:
// - API endpoint latency and throughput
// - Per-source candidate retrieval
// - Candidate cache tier efficiency
// - Profile build activity

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Candidate Retrieval Metrics
	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "candidate_retrieval_duration_seconds",
			Help:    "Duration of per-source candidate retrieval in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"}, // "vector", "graph", "collaborative", "category", "trending"
	)

	RetrievalCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "candidate_retrieval_results",
			Help:    "Number of candidates returned per source per request",
			Buckets: []float64{0, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"source"},
	)

	RetrievalErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candidate_retrieval_errors_total",
			Help: "Total number of per-source retrieval failures",
		},
		[]string{"source"},
	)

	// Candidate Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candidate_cache_hits_total",
			Help: "Total number of candidate cache hits",
		},
		[]string{"tier"}, // "fast", "durable"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candidate_cache_misses_total",
			Help: "Total number of candidate cache misses",
		},
		[]string{"tier"},
	)

	CacheWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "candidate_cache_write_errors_total",
			Help: "Total number of failed durable cache writes",
		},
	)

	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "candidate_cache_invalidations_total",
			Help: "Total number of per-user cache invalidations",
		},
	)

	// Profile Metrics
	ProfileBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profile_builds_total",
			Help: "Total number of profile builds",
		},
		[]string{"result"}, // "ok", "empty", "error"
	)

	ProfileBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "profile_build_duration_seconds",
			Help:    "Duration of profile builds in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Rerank Metrics
	RerankDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rerank_duration_seconds",
			Help:    "Duration of MMR re-ranking in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRetrieval records one per-source retrieval outcome.
func RecordRetrieval(source string, count int, duration time.Duration, err error) {
	RetrievalDuration.WithLabelValues(source).Observe(duration.Seconds())
	if err != nil {
		RetrievalErrors.WithLabelValues(source).Inc()
		return
	}
	RetrievalCandidates.WithLabelValues(source).Observe(float64(count))
}
