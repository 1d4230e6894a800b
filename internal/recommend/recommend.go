// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

// Package recommend precomputes per-user recommendation feeds and
// parks them in the cache so read traffic never pays the query cost.
// Three passes run on independent schedules: content-based (tag
// affinity), collaborative (co-visitation) and social-collaborative
// (co-visitation restricted to followed users).
package recommend

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/emberfeed/emberfeed/internal/cache"
	"github.com/emberfeed/emberfeed/internal/invalidate"
	"github.com/emberfeed/emberfeed/internal/storage"
)

const (
	// DefaultFeedSize is how many items each precomputed feed holds.
	DefaultFeedSize = 50

	// DefaultSeedLimit caps how much of a user's history seeds a pass.
	DefaultSeedLimit = 100

	// DefaultActiveWindow selects which users get refreshed feeds.
	DefaultActiveWindow = 30 * 24 * time.Hour

	// DefaultUserLimit caps users visited per refresh run.
	DefaultUserLimit = 10000

	// FeedTTL keeps precomputed feeds alive well past the daily
	// refresh cadence so a missed run degrades to stale, not empty.
	FeedTTL = 48 * time.Hour
)

// Config tunes the refresh passes.
type Config struct {
	FeedSize     int           `koanf:"feed_size"`
	SeedLimit    int           `koanf:"seed_limit"`
	ActiveWindow time.Duration `koanf:"active_window"`
	UserLimit    int           `koanf:"user_limit"`
}

func (c *Config) applyDefaults() {
	if c.FeedSize <= 0 {
		c.FeedSize = DefaultFeedSize
	}
	if c.SeedLimit <= 0 {
		c.SeedLimit = DefaultSeedLimit
	}
	if c.ActiveWindow <= 0 {
		c.ActiveWindow = DefaultActiveWindow
	}
	if c.UserLimit <= 0 {
		c.UserLimit = DefaultUserLimit
	}
}

// Feed is what lands in the cache for one user and pass.
type Feed struct {
	UserID      string           `json:"userId"`
	Kind        string           `json:"kind"`
	Items       []storage.Ranked `json:"items"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// RunStats summarizes one refresh run.
type RunStats struct {
	UsersVisited int `json:"usersVisited"`
	FeedsWritten int `json:"feedsWritten"`
	Errors       int `json:"errors"`
}

// Refresher computes recommendation feeds from the document store and
// writes them through the cache facade.
type Refresher struct {
	store  *storage.Store
	cache  *cache.Facade
	cfg    Config
	logger zerolog.Logger
}

// NewRefresher creates a refresher with defaults applied to cfg.
func NewRefresher(store *storage.Store, facade *cache.Facade, cfg Config, logger zerolog.Logger) *Refresher {
	cfg.applyDefaults()
	return &Refresher{
		store:  store,
		cache:  facade,
		cfg:    cfg,
		logger: logger.With().Str("component", "recommend").Logger(),
	}
}

// userFeed is one pass's per-user computation.
type userFeed func(ctx context.Context, userID string, seen []string) ([]storage.Ranked, error)

// RefreshContentBased rebuilds the tag-affinity feeds for all recently
// active users.
func (r *Refresher) RefreshContentBased(ctx context.Context) (*RunStats, error) {
	return r.refresh(ctx, "content", invalidate.KeyContentFeed, r.contentBased)
}

// RefreshCollaborative rebuilds the co-visitation feeds.
func (r *Refresher) RefreshCollaborative(ctx context.Context) (*RunStats, error) {
	return r.refresh(ctx, "collab", invalidate.KeyCollabFeed, r.collaborative)
}

// RefreshSocial rebuilds the followed-users co-visitation feeds.
func (r *Refresher) RefreshSocial(ctx context.Context) (*RunStats, error) {
	return r.refresh(ctx, "social", invalidate.KeySocialFeed, r.social)
}

func (r *Refresher) refresh(ctx context.Context, kind string, keyFn func(string) string, compute userFeed) (*RunStats, error) {
	start := time.Now()
	since := start.Add(-r.cfg.ActiveWindow)

	users, err := r.store.ActiveUserIDs(ctx, since, r.cfg.UserLimit)
	if err != nil {
		return nil, err
	}

	stats := &RunStats{}
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.UsersVisited++

		seen, err := r.store.SeenContentIDs(ctx, userID, r.cfg.SeedLimit)
		if err != nil {
			stats.Errors++
			r.logger.Warn().Err(err).Str("user_id", userID).Str("kind", kind).Msg("seed fetch failed")
			continue
		}

		items, err := compute(ctx, userID, seen)
		if err != nil {
			stats.Errors++
			r.logger.Warn().Err(err).Str("user_id", userID).Str("kind", kind).Msg("feed computation failed")
			continue
		}
		if len(items) == 0 {
			// Cold start falls back to globally hot content so a new
			// user's feed is never empty.
			if items, err = r.store.TopHotContent(ctx, r.cfg.FeedSize); err != nil {
				stats.Errors++
				continue
			}
		}

		feed := Feed{
			UserID:      userID,
			Kind:        kind,
			Items:       items,
			GeneratedAt: time.Now().UTC(),
		}
		if r.cache.Set(ctx, keyFn(userID), feed, FeedTTL) {
			stats.FeedsWritten++
		} else {
			stats.Errors++
		}
	}

	r.logger.Info().
		Str("kind", kind).
		Int("users", stats.UsersVisited).
		Int("written", stats.FeedsWritten).
		Int("errors", stats.Errors).
		Dur("duration", time.Since(start)).
		Msg("recommendation refresh finished")
	return stats, nil
}

// contentBased ranks unseen content sharing tags with the user's
// interaction history.
func (r *Refresher) contentBased(ctx context.Context, userID string, seen []string) ([]storage.Ranked, error) {
	affinity, err := r.store.UserTagAffinity(ctx, userID, 20)
	if err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(affinity))
	for _, a := range affinity {
		tags = append(tags, a.Tag)
	}
	return r.store.ContentByTags(ctx, tags, seen, r.cfg.FeedSize)
}

// collaborative ranks content co-visited with the user's history.
func (r *Refresher) collaborative(ctx context.Context, _ string, seen []string) ([]storage.Ranked, error) {
	return r.store.CoVisited(ctx, seen, nil, r.cfg.FeedSize)
}

// social ranks what the user's followed accounts interacted with.
func (r *Refresher) social(ctx context.Context, userID string, seen []string) ([]storage.Ranked, error) {
	followed, err := r.store.Follows(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.store.ContentSeenByUsers(ctx, followed, seen, r.cfg.FeedSize)
}
