// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package cache

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMonitorHitRate(t *testing.T) {
	m := NewMonitor(0, zerolog.Nop())

	for i := 0; i < 3; i++ {
		m.RecordHit("feed:hot:1")
	}
	m.RecordMiss("feed:hot:1")
	m.RecordMiss("feed:latest:1")

	if got := m.HitRate("feed:hot:1"); got != 0.75 {
		t.Errorf("HitRate(feed:hot:1) = %v, want 0.75", got)
	}
	if got := m.HitRate("feed:latest:1"); got != 0 {
		t.Errorf("HitRate(feed:latest:1) = %v, want 0", got)
	}
	if got := m.HitRate(""); got != 0.6 {
		t.Errorf("global HitRate = %v, want 0.6", got)
	}
	if got := m.HitRate("untracked"); got != 0 {
		t.Errorf("HitRate(untracked) = %v, want 0", got)
	}
}

func TestMonitorStatsTopKeys(t *testing.T) {
	m := NewMonitor(0, zerolog.Nop())

	for i := 0; i < 5; i++ {
		m.RecordHit("busy")
	}
	m.RecordHit("quiet")
	m.RecordError("get", "k", errors.New("boom"))

	stats := m.Stats(1)
	if stats.TrackedKeys != 2 {
		t.Errorf("TrackedKeys = %d, want 2", stats.TrackedKeys)
	}
	if stats.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1", stats.TotalErrors)
	}
	if len(stats.TopKeys) != 1 || stats.TopKeys[0].Key != "busy" {
		t.Errorf("TopKeys = %+v, want [busy]", stats.TopKeys)
	}
}

func TestMonitorPruning(t *testing.T) {
	m := NewMonitor(time.Hour, zerolog.Nop())

	base := time.Now()
	m.now = func() time.Time { return base }
	m.RecordHit("old")

	// Two hours later a fresh access triggers the amortized prune and
	// the stale key drops out.
	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	m.RecordHit("fresh")

	if got := m.Stats(10).TrackedKeys; got != 1 {
		t.Errorf("TrackedKeys after prune = %d, want 1", got)
	}
	if m.HitRate("old") != 0 {
		t.Error("pruned key still tracked")
	}
}

func TestMonitorDisabled(t *testing.T) {
	m := NewMonitor(0, zerolog.Nop())
	m.SetEnabled(false)

	m.RecordHit("k")
	m.RecordMiss("k")
	m.RecordError("get", "k", errors.New("boom"))

	stats := m.Stats(10)
	if stats.TrackedKeys != 0 || stats.TotalErrors != 0 {
		t.Errorf("disabled monitor recorded: %+v", stats)
	}
}

func TestMonitorConcurrentAccess(t *testing.T) {
	m := NewMonitor(0, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordHit("shared")
				m.RecordMiss("shared")
			}
		}()
	}
	wg.Wait()

	stats := m.Stats(1)
	if total := stats.TotalHits + stats.TotalMisses; total != 1600 {
		t.Errorf("total accesses = %d, want 1600", total)
	}
}

func TestPerformanceReport(t *testing.T) {
	m := NewMonitor(0, zerolog.Nop())
	m.RecordHit("feed:hot:1")
	m.RecordMiss("feed:hot:1")

	report := m.PerformanceReport()
	for _, want := range []string{"Cache Performance Report", "feed:hot:1", "Hit rate:"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}
