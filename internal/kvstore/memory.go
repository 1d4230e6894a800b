// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package kvstore

import (
	"context"
	"sync"
	"time"
)

// memEntry is a stored value with an optional expiry.
type memEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is a process-local Store implementation. It backs tests and
// deployments that run without a persistent cache backend.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	closed  bool

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

// Get returns the value for key, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if entry.expired(s.now()) {
		delete(s.entries, key)
		return nil, ErrNotFound
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set stores value under key with an optional TTL.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttlSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	entry := memEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if ttlSeconds > 0 {
		entry.expiresAt = s.now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	s.entries[key] = entry
	return nil
}

// Delete removes key, reporting whether it existed.
func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	entry, ok := s.entries[key]
	if ok && entry.expired(s.now()) {
		ok = false
	}
	delete(s.entries, key)
	return ok, nil
}

// Exists reports whether key is present and unexpired.
func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if entry.expired(s.now()) {
		delete(s.entries, key)
		return false, nil
	}
	return true, nil
}

// Keys returns all unexpired keys matching a glob pattern.
func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	now := s.now()
	var matches []string
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
			continue
		}
		if MatchGlob(pattern, key) {
			matches = append(matches, key)
		}
	}
	return matches, nil
}

// Ping reports whether the store is open.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close marks the store closed and drops all entries.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

// Len returns the number of live entries. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
