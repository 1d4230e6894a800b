// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package invalidate

import "strings"

// Cache key families. Every derived read the platform caches lives under
// one of these namespaces; invalidation deletes whole families by glob
// rather than tracking exact key sets.
const (
	// Global feed families.
	PatternHotFeed     = "feed:hot:*"
	PatternLatestFeed  = "feed:latest:*"
	PatternUpdatedFeed = "feed:updated:*"

	// Global aggregate stats.
	PatternGlobalStats = "stats:global:*"
)

// PatternTagFeed matches the mixed feed pages for one tag.
func PatternTagFeed(tag string) string { return "feed:tag:" + tag + ":*" }

// PatternPersonalFeed matches a user's personalized feed pages.
func PatternPersonalFeed(userID string) string { return "feed:personal:" + userID + ":*" }

// PatternContentFeed matches a user's content-based recommendation pages.
func PatternContentFeed(userID string) string { return "feed:content:" + userID + ":*" }

// PatternCollabFeed matches a user's collaborative-filtering pages.
func PatternCollabFeed(userID string) string { return "feed:collab:" + userID + ":*" }

// PatternSocialFeed matches a user's social-collaborative pages.
func PatternSocialFeed(userID string) string { return "feed:social:" + userID + ":*" }

// PatternActivity matches a user's activity cache.
func PatternActivity(userID string) string { return "user:activity:" + userID + ":*" }

// PatternColdStart matches a user's cold-start recommendation cache.
func PatternColdStart(userID string) string { return "user:coldstart:" + userID + ":*" }

// PatternSocialScore matches a user's social-score cache.
func PatternSocialScore(userID string) string { return "score:social:" + userID + ":*" }

// KeyContentFeed is the concrete key the content-based refresher writes.
func KeyContentFeed(userID string) string { return "feed:content:" + userID + ":recs" }

// KeyCollabFeed is the concrete key the collaborative refresher writes.
func KeyCollabFeed(userID string) string { return "feed:collab:" + userID + ":recs" }

// KeySocialFeed is the concrete key the social-collaborative refresher writes.
func KeySocialFeed(userID string) string { return "feed:social:" + userID + ":recs" }

// familyRoot strips the glob suffix from a pattern, yielding the version
// key that tracks the family's staleness token.
func familyRoot(pattern string) string {
	root := strings.TrimSuffix(pattern, ":*")
	return strings.TrimSuffix(root, "*")
}
