// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/emberfeed/emberfeed/internal/kvstore"
	"github.com/emberfeed/emberfeed/internal/metrics"
	"github.com/emberfeed/emberfeed/internal/version"
)

// DefaultTTL applies when Options.TTL is zero.
const DefaultTTL = 5 * time.Minute

// Options controls a single GetOrCompute call.
type Options struct {
	// TTL for a freshly cached result. Zero means DefaultTTL.
	TTL time.Duration

	// UseVersion tags cached payloads with the key's semantic version and
	// enables staleness detection.
	UseVersion bool

	// ClientVersion is the version the caller last saw. Only meaningful
	// with UseVersion; a stored version newer than this forces a recompute.
	ClientVersion string

	// SkipCache bypasses the backend entirely: compute, don't cache.
	SkipCache bool

	// ForceRefresh recomputes and overwrites whatever is cached.
	ForceRefresh bool
}

// Result is the outcome of a GetOrCompute call.
type Result struct {
	// Data is the JSON-encoded payload.
	Data json.RawMessage `json:"data"`

	// Version is the key's semantic version, when versioning was requested.
	Version string `json:"version,omitempty"`

	// FromCache reports whether Data was served from the backend.
	FromCache bool `json:"fromCache"`
}

// ComputeFunc produces the value for a key on miss. It is the caller's
// source-of-truth read; its error is the only error GetOrCompute returns.
type ComputeFunc func(ctx context.Context) (any, error)

// envelope is the stored representation of a cache entry.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	Version  string          `json:"version,omitempty"`
	CachedAt time.Time       `json:"cachedAt"`
}

// BreakerConfig tunes the circuit breaker guarding backend calls.
type BreakerConfig struct {
	// ConsecutiveFailures before the breaker opens. Default: 5.
	ConsecutiveFailures uint32 `koanf:"consecutive_failures"`

	// OpenTimeout is how long the breaker stays open. Default: 30s.
	OpenTimeout time.Duration `koanf:"open_timeout"`
}

// Facade is the unified cache interface handed to business logic.
type Facade struct {
	backend  kvstore.Store
	versions *version.Store
	monitor  *Monitor
	logger   zerolog.Logger
	breaker  *gobreaker.CircuitBreaker[any]
}

// NewFacade creates a cache facade over the given backend.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewFacade(backend kvstore.Store, versions *version.Store, monitor *Monitor, breakerCfg BreakerConfig, logger zerolog.Logger) *Facade {
	if breakerCfg.ConsecutiveFailures == 0 {
		breakerCfg.ConsecutiveFailures = 5
	}
	if breakerCfg.OpenTimeout <= 0 {
		breakerCfg.OpenTimeout = 30 * time.Second
	}

	log := logger.With().Str("component", "cache").Logger()

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "cache-backend",
		Timeout: breakerCfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerCfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("cache breaker state change")
		},
	})

	return &Facade{
		backend:  backend,
		versions: versions,
		monitor:  monitor,
		logger:   log,
		breaker:  breaker,
	}
}

// Versions exposes the underlying version store.
func (f *Facade) Versions() *version.Store { return f.versions }

// Monitor exposes the cache monitor.
func (f *Facade) Monitor() *Monitor { return f.monitor }

// GetOrCompute returns the cached value for key or computes, caches, and
// returns a fresh one.
//
// The only error ever returned is computeFn's own; every backend failure
// degrades to "cache disabled for this call".
func (f *Facade) GetOrCompute(ctx context.Context, key string, computeFn ComputeFunc, opts Options) (*Result, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	if opts.SkipCache {
		metrics.CacheBypass.WithLabelValues("skip").Inc()
		return f.computeOnly(ctx, computeFn)
	}

	if opts.ForceRefresh {
		metrics.CacheBypass.WithLabelValues("force_refresh").Inc()
		return f.computeAndCache(ctx, key, computeFn, opts)
	}

	// Version-based staleness: a stored version newer than the client's is
	// a miss regardless of what the backend holds.
	if opts.UseVersion && opts.ClientVersion != "" && f.versions.IsStale(ctx, key, opts.ClientVersion) {
		metrics.CacheBypass.WithLabelValues("stale").Inc()
		f.monitor.RecordMiss(key)
		metrics.CacheMisses.Inc()
		return f.computeAndCache(ctx, key, computeFn, opts)
	}

	if env, ok := f.fetch(ctx, key); ok {
		current := env.Version
		if opts.UseVersion {
			if v, err := f.versions.GetVersion(ctx, key, false); err == nil {
				current = v.String()
			}
			// A payload tagged older than the recorded version must never
			// be served, even without a client version to compare against.
			if env.Version != "" && version.Compare(env.Version, current) < 0 {
				metrics.CacheBypass.WithLabelValues("stale").Inc()
				f.monitor.RecordMiss(key)
				metrics.CacheMisses.Inc()
				return f.computeAndCache(ctx, key, computeFn, opts)
			}
		}
		f.monitor.RecordHit(key)
		metrics.CacheHits.Inc()
		return &Result{Data: env.Data, Version: current, FromCache: true}, nil
	}

	f.monitor.RecordMiss(key)
	metrics.CacheMisses.Inc()
	return f.computeAndCache(ctx, key, computeFn, opts)
}

// computeOnly runs computeFn without touching the backend.
func (f *Facade) computeOnly(ctx context.Context, computeFn ComputeFunc) (*Result, error) {
	value, err := computeFn(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal computed value: %w", err)
	}
	return &Result{Data: data, FromCache: false}, nil
}

// computeAndCache recomputes, bumps the version when requested, and caches
// the result tagged with the post-bump version so a subsequent read sees a
// payload at least as new as the recorded version.
func (f *Facade) computeAndCache(ctx context.Context, key string, computeFn ComputeFunc, opts Options) (*Result, error) {
	value, err := computeFn(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal computed value: %w", err)
	}

	env := envelope{Data: data, CachedAt: time.Now()}
	if opts.UseVersion {
		if v, bumpErr := f.versions.BumpVersion(ctx, key, version.LevelPatch); bumpErr == nil {
			env.Version = v.String()
			metrics.VersionBumps.WithLabelValues(string(version.LevelPatch)).Inc()
		} else {
			f.logger.Warn().Err(bumpErr).Str("key", key).Msg("version bump failed, caching unversioned")
		}
	}

	f.store(ctx, key, env, opts.TTL)
	return &Result{Data: data, Version: env.Version, FromCache: false}, nil
}

// Get returns the raw cached payload for key. Fail-soft: any backend
// problem reports a miss.
func (f *Facade) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	env, ok := f.fetch(ctx, key)
	if !ok {
		f.monitor.RecordMiss(key)
		metrics.CacheMisses.Inc()
		return nil, false
	}
	f.monitor.RecordHit(key)
	metrics.CacheHits.Inc()
	return env.Data, true
}

// Set caches a value under key. Returns false when the backend refused the
// write; the caller is expected to ignore it.
func (f *Facade) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		f.logger.Warn().Err(err).Str("key", key).Msg("set: marshal failed")
		return false
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return f.store(ctx, key, envelope{Data: data, CachedAt: time.Now()}, ttl)
}

// Delete removes key, its version sidecar, and the in-process version
// mirror entry. Fail-soft; reports whether the value key existed.
func (f *Facade) Delete(ctx context.Context, key string) bool {
	f.versions.Forget(key)

	existed := false
	f.guard(ctx, "del", func() error {
		var err error
		existed, err = f.backend.Delete(ctx, key)
		return err
	})
	f.guard(ctx, "del", func() error {
		_, err := f.backend.Delete(ctx, version.RecordPrefix+key)
		return err
	})
	return existed
}

// DeleteMulti removes several keys, returning how many of them existed.
func (f *Facade) DeleteMulti(ctx context.Context, keys []string) int {
	deleted := 0
	for _, key := range keys {
		if f.Delete(ctx, key) {
			deleted++
		}
	}
	return deleted
}

// DeletePattern removes every key matching a glob pattern, returning the
// number of keys deleted. The backend has no native pattern delete, so
// this lists matches and deletes each. Fail-soft: errors yield 0.
func (f *Facade) DeletePattern(ctx context.Context, pattern string) int {
	var keys []string
	ok := f.guard(ctx, "keys", func() error {
		var err error
		keys, err = f.backend.Keys(ctx, pattern)
		return err
	})
	if !ok {
		return 0
	}

	deleted := 0
	for _, key := range keys {
		if f.Delete(ctx, key) {
			deleted++
		}
	}
	return deleted
}

// Exists reports whether key is cached. Fail-soft: errors report false.
func (f *Facade) Exists(ctx context.Context, key string) bool {
	var exists bool
	ok := f.guard(ctx, "exists", func() error {
		var err error
		exists, err = f.backend.Exists(ctx, key)
		return err
	})
	return ok && exists
}

// Health is the composite status returned by HealthCheck.
type Health struct {
	Healthy      bool   `json:"healthy"`
	Backend      string `json:"backend"`
	VersionStore string `json:"versionStore"`
	Breaker      string `json:"breaker"`
	HitRate      string `json:"hitRate"`
}

// HealthCheck probes the backend and the version store and summarizes the
// monitor's view.
func (f *Facade) HealthCheck(ctx context.Context) Health {
	h := Health{
		Backend:      "ok",
		VersionStore: "ok",
		Breaker:      f.breaker.State().String(),
		HitRate:      fmt.Sprintf("%.1f%%", f.monitor.HitRate("")*100),
	}
	if err := f.backend.Ping(ctx); err != nil {
		h.Backend = err.Error()
	}
	if err := f.versions.Ping(ctx); err != nil {
		h.VersionStore = err.Error()
	}
	h.Healthy = h.Backend == "ok" && h.VersionStore == "ok"
	return h
}

// fetch reads and decodes an envelope. Fail-soft: any backend or decode
// problem reports a miss.
func (f *Facade) fetch(ctx context.Context, key string) (envelope, bool) {
	var raw []byte
	ok := f.guard(ctx, "get", func() error {
		var err error
		raw, err = f.backend.Get(ctx, key)
		if errors.Is(err, kvstore.ErrNotFound) {
			raw = nil
			return nil
		}
		return err
	})
	if !ok || raw == nil {
		return envelope{}, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		f.logger.Warn().Err(err).Str("key", key).Msg("corrupt cache entry, treating as miss")
		f.guard(ctx, "del", func() error {
			_, derr := f.backend.Delete(ctx, key)
			return derr
		})
		return envelope{}, false
	}
	return env, true
}

// store writes an envelope. Fail-soft.
func (f *Facade) store(ctx context.Context, key string, env envelope, ttl time.Duration) bool {
	data, err := json.Marshal(env)
	if err != nil {
		f.logger.Warn().Err(err).Str("key", key).Msg("store: marshal failed")
		return false
	}
	return f.guard(ctx, "set", func() error {
		return f.backend.Set(ctx, key, data, int(ttl.Seconds()))
	})
}

// guard is the single fail-soft boundary for backend calls. The operation
// runs through the circuit breaker; on failure it is logged and counted,
// and the caller sees only "false".
func (f *Facade) guard(_ context.Context, op string, fn func() error) bool {
	_, err := f.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CacheBypass.WithLabelValues("backend_down").Inc()
		}
		f.monitor.RecordError(op, "", err)
		metrics.CacheErrors.WithLabelValues(op).Inc()
		f.logger.Warn().Err(err).Str("op", op).Msg("cache backend unavailable, degrading")
		return false
	}
	return true
}
