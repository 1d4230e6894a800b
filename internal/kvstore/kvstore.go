// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

// Package kvstore provides the backing key-value store used by the cache
// facade and the version store.
//
// The store contract is deliberately minimal: byte values, per-key TTL,
// glob-style key listing, and a connectivity probe. Pattern deletion is
// implemented by callers as "list keys matching glob, then delete each",
// since the store has no native pattern-delete primitive.
package kvstore

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("kvstore: key not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kvstore: store closed")

// Store is the backing key-value store contract.
//
// Implementations must be safe for concurrent use. All methods honor
// context cancellation where the backing engine allows it.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. ttlSeconds <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error

	// Delete removes key. Deleting a missing key is not an error;
	// the bool reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Keys returns all keys matching a glob pattern ("feed:hot:*",
	// "feed:*:page:*"). An empty pattern matches nothing.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources. The store is unusable afterwards.
	Close() error
}

// MatchGlob reports whether key matches a glob pattern. Only the `*`
// wildcard is supported (zero or more characters), which is all the
// invalidation key families require.
func MatchGlob(pattern, key string) bool {
	if pattern == "" {
		return false
	}
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == key
	}

	// Anchored prefix.
	if parts[0] != "" {
		if !strings.HasPrefix(key, parts[0]) {
			return false
		}
		key = key[len(parts[0]):]
	}

	// Anchored suffix.
	last := parts[len(parts)-1]
	if last != "" {
		if !strings.HasSuffix(key, last) {
			return false
		}
		key = key[:len(key)-len(last)]
	}

	// Middle fragments must appear in order.
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(key, part)
		if idx < 0 {
			return false
		}
		key = key[idx+len(part):]
	}
	return true
}

// globPrefix returns the literal prefix of a glob pattern, used to bound
// iterator scans.
func globPrefix(pattern string) string {
	if idx := strings.IndexByte(pattern, '*'); idx >= 0 {
		return pattern[:idx]
	}
	return pattern
}
