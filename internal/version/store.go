// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package version

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/emberfeed/emberfeed/internal/kvstore"
)

// RecordPrefix namespaces version records in the backing store. The facade
// uses it to delete a key's version sidecar alongside the value.
const RecordPrefix = "version:"

// Change reports a single key's version transition from a bump.
type Change struct {
	Old Version `json:"old"`
	New Version `json:"new"`
}

// Store is the persistent key → version mapping with a process-local
// mirror for hot reads.
//
// The mirror is a plain map with explicit per-key invalidation, not a TTL
// cache: every write path updates or evicts its entry immediately, so this
// process never serves a version older than one it just wrote. Only
// ResetAll sweeps the whole mirror.
//
// Bumps are read-modify-write, serialized per process by bumpMu.
// Concurrent bumps from different processes may coalesce (last writer
// wins); versions are compared for staleness, never counted, so a lost
// intermediate increment does not violate monotonicity.
type Store struct {
	backend kvstore.Store
	logger  zerolog.Logger

	bumpMu sync.Mutex

	mu     sync.RWMutex
	mirror map[string]Version
}

// NewStore creates a version store over the given backend.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewStore(backend kvstore.Store, logger zerolog.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger.With().Str("component", "version-store").Logger(),
		mirror:  make(map[string]Version),
	}
}

// recordKey maps a cache key to its version record key.
func recordKey(key string) string {
	return RecordPrefix + key
}

// GetVersion returns the current version for key. On first access the
// initial version 1.0.0 is persisted, unless createIfMissing is false, in
// which case it is returned without being written. Malformed stored text
// falls back to 1.0.0.
func (s *Store) GetVersion(ctx context.Context, key string, createIfMissing bool) (Version, error) {
	s.mu.RLock()
	v, ok := s.mirror[key]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}

	raw, err := s.backend.Get(ctx, recordKey(key))
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		if !createIfMissing {
			return Initial, nil
		}
		if err := s.persist(ctx, key, Initial); err != nil {
			return Initial, err
		}
		return Initial, nil
	case err != nil:
		return Initial, fmt.Errorf("read version for %q: %w", key, err)
	}

	v, perr := Parse(strings.TrimSpace(string(raw)))
	if perr != nil {
		s.logger.Warn().Str("key", key).Str("stored", string(raw)).
			Msg("malformed stored version, falling back to initial")
		v = Initial
	}

	s.mu.Lock()
	s.mirror[key] = v
	s.mu.Unlock()
	return v, nil
}

// SetVersion records an explicit version for key.
func (s *Store) SetVersion(ctx context.Context, key string, v Version) error {
	return s.persist(ctx, key, v)
}

// BumpVersion increments key's version at the given level and persists it.
// The returned version is the new value.
func (s *Store) BumpVersion(ctx context.Context, key string, level Level) (Version, error) {
	s.bumpMu.Lock()
	defer s.bumpMu.Unlock()

	current, err := s.GetVersion(ctx, key, false)
	if err != nil {
		return Version{}, err
	}
	next := current.Bump(level)
	if err := s.persist(ctx, key, next); err != nil {
		return Version{}, err
	}
	return next, nil
}

// BumpMany bumps every key in one logical call, returning the per-key
// transitions. Per-key failures are aggregated rather than aborting the
// batch; strict makes the first failure abort and return immediately.
func (s *Store) BumpMany(ctx context.Context, keys []string, level Level, strict bool) (map[string]Change, error) {
	changes := make(map[string]Change, len(keys))
	var failures []string

	for _, key := range keys {
		s.bumpMu.Lock()
		old, err := s.GetVersion(ctx, key, false)
		if err == nil {
			next := old.Bump(level)
			if err = s.persist(ctx, key, next); err == nil {
				changes[key] = Change{Old: old, New: next}
			}
		}
		s.bumpMu.Unlock()

		if err != nil {
			if strict {
				return changes, fmt.Errorf("bump %q: %w", key, err)
			}
			failures = append(failures, fmt.Sprintf("%s: %v", key, err))
		}
	}

	if len(failures) > 0 {
		sort.Strings(failures)
		return changes, fmt.Errorf("bump failed for %d of %d keys: %s",
			len(failures), len(keys), strings.Join(failures, "; "))
	}
	return changes, nil
}

// IsStale reports whether a client-held version is older than the stored
// one. Any backend failure and any malformed client version report stale:
// the facade must fail toward recomputation, never toward serving old data.
func (s *Store) IsStale(ctx context.Context, key, clientVersion string) bool {
	client, err := Parse(clientVersion)
	if err != nil {
		return true
	}
	stored, err := s.GetVersion(ctx, key, false)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("staleness check failed, treating as stale")
		return true
	}
	return stored.Compare(client) > 0
}

// DeleteVersion removes key's version record and mirror entry.
func (s *Store) DeleteVersion(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.mirror, key)
	s.mu.Unlock()

	if _, err := s.backend.Delete(ctx, recordKey(key)); err != nil {
		return fmt.Errorf("delete version for %q: %w", key, err)
	}
	return nil
}

// Forget evicts key's mirror entry without touching the backend. Called
// whenever another component writes or deletes the backing record.
func (s *Store) Forget(key string) {
	s.mu.Lock()
	delete(s.mirror, key)
	s.mu.Unlock()
}

// ResetAll clears the whole mirror. The only full-sweep operation.
func (s *Store) ResetAll() {
	s.mu.Lock()
	s.mirror = make(map[string]Version)
	s.mu.Unlock()
}

// Ping probes the backing store.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// persist writes v for key and updates the mirror.
func (s *Store) persist(ctx context.Context, key string, v Version) error {
	if err := s.backend.Set(ctx, recordKey(key), []byte(v.String()), 0); err != nil {
		// The mirror must not run ahead of the backend.
		s.Forget(key)
		return fmt.Errorf("persist version for %q: %w", key, err)
	}
	s.mu.Lock()
	s.mirror[key] = v
	s.mu.Unlock()
	return nil
}
