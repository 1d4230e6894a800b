// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

// Package metrics exposes Prometheus instrumentation for the caching and
// recompute core: cache efficiency, invalidation volume, version bumps,
// batch run outcomes, and retry queue traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emberfeed_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emberfeed_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emberfeed_cache_errors_total",
			Help: "Total number of cache backend errors, by operation",
		},
		[]string{"operation"},
	)

	CacheBypass = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emberfeed_cache_bypass_total",
			Help: "Total number of cache-bypassing computations, by reason",
		},
		[]string{"reason"}, // "skip", "force_refresh", "stale", "backend_down"
	)

	// Invalidation metrics
	InvalidationPatterns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emberfeed_invalidation_patterns_total",
			Help: "Total number of pattern invalidations issued, by operation",
		},
		[]string{"operation"},
	)

	InvalidationKeysDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emberfeed_invalidation_keys_deleted_total",
			Help: "Total number of cache keys deleted by pattern invalidation",
		},
	)

	InvalidationDeduped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emberfeed_invalidation_deduped_total",
			Help: "Total number of patterns suppressed by within-call deduplication",
		},
	)

	// Version store metrics
	VersionBumps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emberfeed_version_bumps_total",
			Help: "Total number of version bumps, by level",
		},
		[]string{"level"},
	)

	// Batch recompute metrics
	BatchRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "emberfeed_batch_run_duration_seconds",
			Help:    "Duration of hot-score batch recompute runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	BatchItemsUpdated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emberfeed_batch_items_updated_total",
			Help: "Total number of items whose hot score was recomputed",
		},
	)

	BatchItemErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emberfeed_batch_item_errors_total",
			Help: "Total number of per-item recompute failures",
		},
	)

	// Retry queue metrics
	RetryEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emberfeed_retry_enqueued_total",
			Help: "Total number of jobs enqueued to the retry queue",
		},
	)

	RetrySucceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emberfeed_retry_succeeded_total",
			Help: "Total number of retry jobs that eventually succeeded",
		},
	)

	RetryDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emberfeed_retry_dropped_total",
			Help: "Total number of retry jobs dropped after exhausting attempts",
		},
	)

	// Scheduled job metrics
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emberfeed_job_runs_total",
			Help: "Total number of scheduled job runs, by job and outcome",
		},
		[]string{"job", "outcome"}, // outcome: "ok", "error", "skipped"
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emberfeed_job_duration_seconds",
			Help:    "Duration of scheduled job runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"job"},
	)
)
