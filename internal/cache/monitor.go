// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPruneWindow is how long a key's metric survives without access.
const DefaultPruneWindow = 24 * time.Hour

// pruneInterval bounds how often the amortized prune actually scans.
const pruneInterval = time.Minute

// Metric tracks hit/miss counts for one cache key. Observability state
// only; it is never persisted and safe to lose on restart.
type Metric struct {
	Key         string    `json:"key"`
	Hits        uint64    `json:"hits"`
	Misses      uint64    `json:"misses"`
	FirstAccess time.Time `json:"firstAccess"`
	LastAccess  time.Time `json:"lastAccess"`
}

// Total returns the metric's total access count.
func (m *Metric) Total() uint64 { return m.Hits + m.Misses }

// MonitorStats is the aggregate view returned by Stats.
type MonitorStats struct {
	TotalHits   uint64   `json:"totalHits"`
	TotalMisses uint64   `json:"totalMisses"`
	TotalErrors uint64   `json:"totalErrors"`
	HitRate     float64  `json:"hitRate"`
	TrackedKeys int      `json:"trackedKeys"`
	TopKeys     []Metric `json:"topKeys"`
}

// Monitor records per-key cache access metrics. It is purely
// observational: disabling it must never affect cache correctness, and no
// caller consumes a return value from its record methods.
type Monitor struct {
	logger zerolog.Logger

	mu        sync.Mutex
	enabled   bool
	window    time.Duration
	metrics   map[string]*Metric
	errors    uint64
	lastPrune time.Time

	// now is swappable for pruning tests.
	now func() time.Time
}

// NewMonitor creates an enabled monitor with the given inactivity window
// (zero means DefaultPruneWindow).
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewMonitor(window time.Duration, logger zerolog.Logger) *Monitor {
	if window <= 0 {
		window = DefaultPruneWindow
	}
	return &Monitor{
		logger:    logger.With().Str("component", "cache-monitor").Logger(),
		enabled:   true,
		window:    window,
		metrics:   make(map[string]*Metric),
		lastPrune: time.Now(),
		now:       time.Now,
	}
}

// SetEnabled toggles recording. Test suites disable the monitor globally.
func (m *Monitor) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
}

// RecordHit notes a cache hit for key.
func (m *Monitor) RecordHit(key string) { m.record(key, true) }

// RecordMiss notes a cache miss for key.
func (m *Monitor) RecordMiss(key string) { m.record(key, false) }

// RecordError notes a backend error. Log-only: callers never branch on it.
func (m *Monitor) RecordError(op, key string, err error) {
	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return
	}
	m.errors++
	m.mu.Unlock()

	m.logger.Warn().Err(err).Str("op", op).Str("key", key).Msg("cache operation error")
}

func (m *Monitor) record(key string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return
	}

	now := m.now()
	metric, ok := m.metrics[key]
	if !ok {
		metric = &Metric{Key: key, FirstAccess: now}
		m.metrics[key] = metric
	}
	if hit {
		metric.Hits++
	} else {
		metric.Misses++
	}
	metric.LastAccess = now

	m.pruneLocked(now)
}

// pruneLocked drops metrics untouched for longer than the window. Runs
// amortized inside record calls; no timer goroutine.
func (m *Monitor) pruneLocked(now time.Time) {
	if now.Sub(m.lastPrune) < pruneInterval {
		return
	}
	m.lastPrune = now

	pruned := 0
	for key, metric := range m.metrics {
		if now.Sub(metric.LastAccess) > m.window {
			delete(m.metrics, key)
			pruned++
		}
	}
	if pruned > 0 {
		m.logger.Debug().Int("pruned", pruned).Msg("pruned inactive cache metrics")
	}
}

// HitRate returns the hit rate in [0,1] for one key, or globally when key
// is empty. A key with no accesses reports 0.
func (m *Monitor) HitRate(key string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var hits, total uint64
	if key != "" {
		metric, ok := m.metrics[key]
		if !ok {
			return 0
		}
		hits, total = metric.Hits, metric.Total()
	} else {
		for _, metric := range m.metrics {
			hits += metric.Hits
			total += metric.Total()
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Stats returns the global summary plus the top-N busiest keys by total
// access count.
func (m *Monitor) Stats(topN int) MonitorStats {
	if topN <= 0 {
		topN = 10
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := MonitorStats{TrackedKeys: len(m.metrics), TotalErrors: m.errors}
	all := make([]Metric, 0, len(m.metrics))
	for _, metric := range m.metrics {
		stats.TotalHits += metric.Hits
		stats.TotalMisses += metric.Misses
		all = append(all, *metric)
	}
	if total := stats.TotalHits + stats.TotalMisses; total > 0 {
		stats.HitRate = float64(stats.TotalHits) / float64(total)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Total() != all[j].Total() {
			return all[i].Total() > all[j].Total()
		}
		return all[i].Key < all[j].Key
	})
	if len(all) > topN {
		all = all[:topN]
	}
	stats.TopKeys = all
	return stats
}

// PerformanceReport renders a human-readable digest of cache performance.
func (m *Monitor) PerformanceReport() string {
	stats := m.Stats(10)

	var b strings.Builder
	b.WriteString("Cache Performance Report\n")
	b.WriteString("========================\n")
	fmt.Fprintf(&b, "Tracked keys:  %d\n", stats.TrackedKeys)
	fmt.Fprintf(&b, "Total hits:    %d\n", stats.TotalHits)
	fmt.Fprintf(&b, "Total misses:  %d\n", stats.TotalMisses)
	fmt.Fprintf(&b, "Backend errors: %d\n", stats.TotalErrors)
	fmt.Fprintf(&b, "Hit rate:      %.1f%%\n", stats.HitRate*100)

	if len(stats.TopKeys) > 0 {
		b.WriteString("\nBusiest keys:\n")
		for i, metric := range stats.TopKeys {
			fmt.Fprintf(&b, "  %2d. %-48s hits=%d misses=%d last=%s\n",
				i+1, metric.Key, metric.Hits, metric.Misses,
				metric.LastAccess.Format(time.RFC3339))
		}
	}
	return b.String()
}

// Reset drops all recorded metrics.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.metrics = make(map[string]*Metric)
	m.errors = 0
	m.lastPrune = m.now()
	m.mu.Unlock()
}
