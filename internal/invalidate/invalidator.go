// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

// Package invalidate translates domain events into precise cache-key
// invalidations.
//
// Each operation maps to a fixed, hand-specified set of key-pattern
// families. A within-call dedupe set collapses repeated patterns across an
// operation's cascade to a single backend delete, and every backend
// failure is swallowed: an invalidation problem must never throw out of a
// business-logic call site. The worst case is a bounded staleness window.
package invalidate

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/emberfeed/emberfeed/internal/cache"
	"github.com/emberfeed/emberfeed/internal/metrics"
	"github.com/emberfeed/emberfeed/internal/version"
)

// CallOptions tunes one top-level invalidation call.
type CallOptions struct {
	// SkipLogging suppresses the per-operation info log (bulk callers).
	SkipLogging bool

	// ForceInvalidate bypasses within-call deduplication, resending every
	// pattern even if already issued during this call.
	ForceInvalidate bool
}

// Stats summarizes invalidator activity since the last Reset.
type Stats struct {
	Operations     uint64 `json:"operations"`
	PatternsIssued uint64 `json:"patternsIssued"`
	KeysDeleted    uint64 `json:"keysDeleted"`
	Deduped        uint64 `json:"deduped"`
	SkippedNoParam uint64 `json:"skippedNoParam"`
}

// Invalidator is the operation-driven smart invalidator.
type Invalidator struct {
	cache  *cache.Facade
	logger zerolog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates an invalidator issuing deletes through the cache facade.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(facade *cache.Facade, logger zerolog.Logger) *Invalidator {
	return &Invalidator{
		cache:  facade,
		logger: logger.With().Str("component", "invalidator").Logger(),
	}
}

// InvalidateByOperation expands op into its pattern families and deletes
// every matching cache key, returning the number of keys deleted.
//
// Missing required parameters make the whole call a warned no-op with
// zero backend deletes; callers with incomplete context must not break.
func (inv *Invalidator) InvalidateByOperation(ctx context.Context, op Operation, opts CallOptions) int {
	patterns, ok := inv.expand(op)
	if !ok {
		inv.mu.Lock()
		inv.stats.SkippedNoParam++
		inv.mu.Unlock()
		inv.logger.Warn().Str("operation", op.Name()).
			Msg("invalidation skipped: missing required parameters")
		return 0
	}

	call := inv.Begin(opts)
	deleted := 0
	for _, pattern := range patterns {
		deleted += call.InvalidatePattern(ctx, pattern)
	}

	// One patch bump per touched family root ties pattern invalidation to
	// version-based staleness for versioned readers.
	roots := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		roots = append(roots, familyRoot(pattern))
	}
	if _, err := inv.cache.Versions().BumpMany(ctx, roots, version.LevelPatch, false); err != nil {
		inv.logger.Warn().Err(err).Str("operation", op.Name()).Msg("family version bump incomplete")
	}

	inv.mu.Lock()
	inv.stats.Operations++
	inv.mu.Unlock()
	metrics.InvalidationPatterns.WithLabelValues(op.Name()).Add(float64(len(patterns)))

	if !opts.SkipLogging {
		inv.logger.Info().Str("operation", op.Name()).
			Int("patterns", len(patterns)).Int("keys_deleted", deleted).
			Msg("cache invalidated")
	}
	return deleted
}

// expand maps an operation to its pattern families. The second return is
// false when a required parameter is missing.
//
// The mapping is matched exhaustively over the closed Operation set; the
// default arm is unreachable for any variant defined in this package.
func (inv *Invalidator) expand(op Operation) ([]string, bool) {
	var p []string

	switch o := op.(type) {
	case ContentCreated:
		if o.ContentID == "" || o.AuthorID == "" {
			return nil, false
		}
		p = append(p, PatternHotFeed, PatternLatestFeed)
		for _, tag := range o.Tags {
			p = append(p, PatternTagFeed(tag))
		}
		p = append(p,
			PatternPersonalFeed(o.AuthorID),
			PatternGlobalStats,
			PatternSocialScore(o.AuthorID),
		)

	case ContentUpdated:
		if o.ContentID == "" || o.AuthorID == "" {
			return nil, false
		}
		for _, tag := range unionTags(o.OldTags, o.NewTags) {
			p = append(p, PatternTagFeed(tag))
		}
		if o.HotScoreChanged {
			p = append(p, PatternHotFeed, PatternUpdatedFeed)
		}
		p = append(p,
			PatternPersonalFeed(o.AuthorID),
			PatternSocialScore(o.AuthorID),
		)

	case ContentDeleted:
		if o.ContentID == "" || o.AuthorID == "" {
			return nil, false
		}
		p = append(p, PatternHotFeed, PatternLatestFeed, PatternUpdatedFeed)
		for _, tag := range o.Tags {
			p = append(p, PatternTagFeed(tag))
		}
		p = append(p,
			PatternPersonalFeed(o.AuthorID),
			PatternGlobalStats,
			PatternSocialScore(o.AuthorID),
		)

	case UserReacted:
		if o.UserID == "" || o.ContentID == "" {
			return nil, false
		}
		p = append(p,
			PatternPersonalFeed(o.UserID),
			PatternContentFeed(o.UserID),
			PatternCollabFeed(o.UserID),
			PatternActivity(o.UserID),
			PatternColdStart(o.UserID),
			PatternSocialScore(o.UserID),
		)
		// Dislikes cool an item without reshuffling the hot feed.
		if o.Like {
			p = append(p, PatternHotFeed)
		}

	case UserCommented:
		if o.UserID == "" || o.ContentID == "" {
			return nil, false
		}
		p = append(p,
			PatternPersonalFeed(o.UserID),
			PatternSocialFeed(o.UserID),
			PatternActivity(o.UserID),
			PatternSocialScore(o.UserID),
			PatternHotFeed,
		)

	case UserCollected:
		if o.UserID == "" || o.ContentID == "" {
			return nil, false
		}
		p = append(p,
			PatternPersonalFeed(o.UserID),
			PatternContentFeed(o.UserID),
			PatternActivity(o.UserID),
		)

	case UserFollowed:
		if o.UserID == "" || o.TargetID == "" {
			return nil, false
		}
		p = append(p,
			PatternPersonalFeed(o.UserID),
			PatternPersonalFeed(o.TargetID),
			PatternSocialScore(o.UserID),
			PatternSocialScore(o.TargetID),
		)

	case UserActivityChanged:
		if o.UserID == "" {
			return nil, false
		}
		p = append(p,
			PatternPersonalFeed(o.UserID),
			PatternContentFeed(o.UserID),
			PatternCollabFeed(o.UserID),
			PatternSocialFeed(o.UserID),
			PatternActivity(o.UserID),
			PatternColdStart(o.UserID),
		)

	default:
		return nil, false
	}

	return p, true
}

// Stats returns a snapshot of invalidator counters.
func (inv *Invalidator) Stats() Stats {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.stats
}

// Reset clears the invalidator counters. Diagnostics and tests only.
func (inv *Invalidator) Reset() {
	inv.mu.Lock()
	inv.stats = Stats{}
	inv.mu.Unlock()
}

// Call is one logical invalidation's dedupe scope. Patterns and keys are
// check-then-added to the seen set before any backend call, so the same
// literal pattern cascading in from several sub-invalidations reaches the
// backend once.
type Call struct {
	inv   *Invalidator
	force bool
	seen  map[string]struct{}
}

// Begin opens a dedupe scope. InvalidateByOperation opens one per
// operation; controllers batching several sub-invalidations may hold one
// across them.
func (inv *Invalidator) Begin(opts CallOptions) *Call {
	return &Call{
		inv:   inv,
		force: opts.ForceInvalidate,
		seen:  make(map[string]struct{}),
	}
}

// InvalidatePattern deletes every cache key matching pattern, returning
// the number deleted. Errors are swallowed (0, log, continue).
func (c *Call) InvalidatePattern(ctx context.Context, pattern string) int {
	if !c.admit(pattern) {
		return 0
	}
	deleted := c.inv.cache.DeletePattern(ctx, pattern)

	c.inv.mu.Lock()
	c.inv.stats.PatternsIssued++
	c.inv.stats.KeysDeleted += uint64(deleted)
	c.inv.mu.Unlock()
	metrics.InvalidationKeysDeleted.Add(float64(deleted))
	return deleted
}

// InvalidateKey deletes a single cache key, returning 1 if it existed.
// Errors are swallowed.
func (c *Call) InvalidateKey(ctx context.Context, key string) int {
	if !c.admit(key) {
		return 0
	}
	deleted := 0
	if c.inv.cache.Delete(ctx, key) {
		deleted = 1
	}

	c.inv.mu.Lock()
	c.inv.stats.KeysDeleted += uint64(deleted)
	c.inv.mu.Unlock()
	metrics.InvalidationKeysDeleted.Add(float64(deleted))
	return deleted
}

// admit reports whether target should be sent to the backend, recording
// it in the dedupe set.
func (c *Call) admit(target string) bool {
	if c.force {
		return true
	}
	if _, dup := c.seen[target]; dup {
		c.inv.mu.Lock()
		c.inv.stats.Deduped++
		c.inv.mu.Unlock()
		metrics.InvalidationDeduped.Inc()
		return false
	}
	c.seen[target] = struct{}{}
	return true
}

// unionTags merges two tag lists preserving first-seen order.
func unionTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, tag := range a {
		if _, ok := seen[tag]; !ok && tag != "" {
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	for _, tag := range b {
		if _, ok := seen[tag]; !ok && tag != "" {
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}
