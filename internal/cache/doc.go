// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

// Package cache provides the unified cache facade for Emberfeed.
//
// The facade wraps the backing key-value store with version-aware reads,
// TTL management, and a strict fail-soft contract: a cache backend failure
// degrades to direct computation and is never surfaced to business logic.
// The source of truth stays independently correct; the cache only ever
// makes reads cheaper.
//
// Every backend call goes through a single circuit-breaker-guarded helper,
// so the "never throw past this boundary" rule is structural rather than a
// convention repeated at call sites.
package cache
