// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package invalidate

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/emberfeed/emberfeed/internal/cache"
	"github.com/emberfeed/emberfeed/internal/kvstore"
	"github.com/emberfeed/emberfeed/internal/version"
)

func newTestInvalidator(t *testing.T) (*Invalidator, *cache.Facade, *kvstore.MemoryStore) {
	t.Helper()
	backend := kvstore.NewMemoryStore()
	versions := version.NewStore(backend, zerolog.Nop())
	monitor := cache.NewMonitor(0, zerolog.Nop())
	facade := cache.NewFacade(backend, versions, monitor, cache.BreakerConfig{}, zerolog.Nop())
	return New(facade, zerolog.Nop()), facade, backend
}

func seed(t *testing.T, f *cache.Facade, keys ...string) {
	t.Helper()
	ctx := context.Background()
	for _, k := range keys {
		if !f.Set(ctx, k, "cached", time.Minute) {
			t.Fatalf("seed %s failed", k)
		}
	}
}

func TestContentCreatedInvalidation(t *testing.T) {
	inv, f, _ := newTestInvalidator(t)
	ctx := context.Background()

	seed(t, f,
		"feed:hot:page:1",
		"feed:latest:page:1",
		"feed:tag:go:page:1",
		"feed:personal:author1:page:1",
		"stats:global:daily",
		"score:social:author1:total",
		// Must survive:
		"feed:tag:rust:page:1",
		"feed:personal:other:page:1",
	)

	deleted := inv.InvalidateByOperation(ctx, ContentCreated{
		ContentID: "c1",
		AuthorID:  "author1",
		Tags:      []string{"go"},
	}, CallOptions{})

	if deleted != 6 {
		t.Errorf("deleted %d keys, want 6", deleted)
	}
	if !f.Exists(ctx, "feed:tag:rust:page:1") {
		t.Error("unrelated tag feed deleted")
	}
	if !f.Exists(ctx, "feed:personal:other:page:1") {
		t.Error("unrelated personal feed deleted")
	}
}

func TestContentUpdatedTagUnion(t *testing.T) {
	inv, f, _ := newTestInvalidator(t)
	ctx := context.Background()

	seed(t, f,
		"feed:tag:old:page:1",
		"feed:tag:new:page:1",
		"feed:tag:kept:page:1",
		"feed:hot:page:1",
		"feed:updated:page:1",
	)

	// Hot score unchanged: hot and updated feeds must survive, both the
	// removed and the added tag go stale.
	deleted := inv.InvalidateByOperation(ctx, ContentUpdated{
		ContentID: "c1",
		AuthorID:  "a1",
		OldTags:   []string{"old", "kept"},
		NewTags:   []string{"new", "kept"},
	}, CallOptions{})

	if deleted != 3 {
		t.Errorf("deleted %d keys, want 3", deleted)
	}
	if !f.Exists(ctx, "feed:hot:page:1") {
		t.Error("hot feed deleted without a hot-score change")
	}
	if !f.Exists(ctx, "feed:updated:page:1") {
		t.Error("updated feed deleted without a hot-score change")
	}

	// With a hot-score change the global feeds go too.
	inv.InvalidateByOperation(ctx, ContentUpdated{
		ContentID:       "c1",
		AuthorID:        "a1",
		HotScoreChanged: true,
	}, CallOptions{})
	if f.Exists(ctx, "feed:hot:page:1") {
		t.Error("hot feed survived a hot-score change")
	}
}

func TestMissingParamsIsNoOp(t *testing.T) {
	inv, f, _ := newTestInvalidator(t)
	ctx := context.Background()

	seed(t, f, "feed:hot:page:1", "feed:personal:u1:page:1")

	ops := []Operation{
		ContentCreated{AuthorID: "a1"},        // no content id
		ContentCreated{ContentID: "c1"},       // no author
		UserReacted{UserID: "u1", Like: true}, // no content id
		UserFollowed{UserID: "u1"},            // no target
		UserActivityChanged{},                 // no user
	}
	for _, op := range ops {
		if got := inv.InvalidateByOperation(ctx, op, CallOptions{}); got != 0 {
			t.Errorf("%s with missing params deleted %d keys", op.Name(), got)
		}
	}

	if !f.Exists(ctx, "feed:hot:page:1") || !f.Exists(ctx, "feed:personal:u1:page:1") {
		t.Error("no-op invalidation deleted keys")
	}
	if got := inv.Stats().SkippedNoParam; got != uint64(len(ops)) {
		t.Errorf("SkippedNoParam = %d, want %d", got, len(ops))
	}
}

func TestDislikeDoesNotTouchHotFeed(t *testing.T) {
	inv, f, _ := newTestInvalidator(t)
	ctx := context.Background()

	seed(t, f, "feed:hot:page:1", "feed:personal:u1:page:1")

	inv.InvalidateByOperation(ctx, UserReacted{UserID: "u1", ContentID: "c1", Like: false}, CallOptions{})
	if !f.Exists(ctx, "feed:hot:page:1") {
		t.Error("dislike invalidated the hot feed")
	}
	if f.Exists(ctx, "feed:personal:u1:page:1") {
		t.Error("dislike did not invalidate the user's personal feed")
	}

	inv.InvalidateByOperation(ctx, UserReacted{UserID: "u1", ContentID: "c1", Like: true}, CallOptions{})
	if f.Exists(ctx, "feed:hot:page:1") {
		t.Error("like did not invalidate the hot feed")
	}
}

func TestCallDedupe(t *testing.T) {
	inv, f, _ := newTestInvalidator(t)
	ctx := context.Background()

	seed(t, f, "feed:hot:page:1")

	call := inv.Begin(CallOptions{})
	first := call.InvalidatePattern(ctx, PatternHotFeed)
	second := call.InvalidatePattern(ctx, PatternHotFeed)

	if first != 1 {
		t.Errorf("first pattern deleted %d, want 1", first)
	}
	if second != 0 {
		t.Errorf("deduped pattern deleted %d, want 0", second)
	}
	if got := inv.Stats().Deduped; got != 1 {
		t.Errorf("Deduped = %d, want 1", got)
	}
}

func TestInvalidateSingleKey(t *testing.T) {
	inv, f, _ := newTestInvalidator(t)
	ctx := context.Background()

	seed(t, f, "feed:hot:page:1", "feed:hot:page:2")

	call := inv.Begin(CallOptions{})
	if got := call.InvalidateKey(ctx, "feed:hot:page:1"); got != 1 {
		t.Errorf("delete existing key = %d, want 1", got)
	}
	if f.Exists(ctx, "feed:hot:page:1") {
		t.Error("key survived invalidation")
	}
	if !f.Exists(ctx, "feed:hot:page:2") {
		t.Error("sibling key deleted by single-key invalidation")
	}

	// Same key in the same scope is deduped before the backend; a key
	// that was never cached admits but deletes nothing.
	if got := call.InvalidateKey(ctx, "feed:hot:page:1"); got != 0 {
		t.Errorf("deduped key deleted %d, want 0", got)
	}
	if got := call.InvalidateKey(ctx, "feed:hot:page:9"); got != 0 {
		t.Errorf("missing key deleted %d, want 0", got)
	}

	stats := inv.Stats()
	if stats.KeysDeleted != 1 {
		t.Errorf("KeysDeleted = %d, want 1", stats.KeysDeleted)
	}
	if stats.Deduped != 1 {
		t.Errorf("Deduped = %d, want 1", stats.Deduped)
	}
}

func TestForceInvalidateBypassesDedupe(t *testing.T) {
	inv, f, _ := newTestInvalidator(t)
	ctx := context.Background()

	seed(t, f, "feed:hot:page:1")

	call := inv.Begin(CallOptions{ForceInvalidate: true})
	call.InvalidatePattern(ctx, PatternHotFeed)

	// Re-seed and resend the same pattern within the same call.
	seed(t, f, "feed:hot:page:1")
	if got := call.InvalidatePattern(ctx, PatternHotFeed); got != 1 {
		t.Errorf("forced resend deleted %d, want 1", got)
	}
}

func TestInvalidationBumpsFamilyVersions(t *testing.T) {
	inv, f, _ := newTestInvalidator(t)
	ctx := context.Background()

	before, err := f.Versions().GetVersion(ctx, "feed:hot", false)
	if err != nil {
		t.Fatal(err)
	}

	inv.InvalidateByOperation(ctx, ContentCreated{ContentID: "c1", AuthorID: "a1"}, CallOptions{})

	after, err := f.Versions().GetVersion(ctx, "feed:hot", false)
	if err != nil {
		t.Fatal(err)
	}
	if after.Compare(before) <= 0 {
		t.Errorf("hot family version %v not bumped past %v", after, before)
	}
}

func TestDecodeOperation(t *testing.T) {
	op, err := DecodeOperation("content-updated", []byte(`{
		"contentId": "c1", "authorId": "a1",
		"oldTags": ["x"], "newTags": ["y"], "hotScoreChanged": true
	}`))
	if err != nil {
		t.Fatalf("DecodeOperation: %v", err)
	}
	upd, ok := op.(ContentUpdated)
	if !ok {
		t.Fatalf("decoded %T, want ContentUpdated", op)
	}
	if !upd.HotScoreChanged || upd.ContentID != "c1" || len(upd.OldTags) != 1 {
		t.Errorf("decoded %+v", upd)
	}

	if _, err := DecodeOperation("no-such-op", nil); err == nil {
		t.Error("unknown operation accepted")
	}
	if _, err := DecodeOperation("user-liked", []byte("{broken")); err == nil {
		t.Error("malformed params accepted")
	}

	liked, err := DecodeOperation("user-liked", []byte(`{"userId":"u1","contentId":"c1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if r := liked.(UserReacted); !r.Like {
		t.Error("user-liked decoded with Like=false")
	}
	disliked, err := DecodeOperation("user-disliked", []byte(`{"userId":"u1","contentId":"c1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if r := disliked.(UserReacted); r.Like {
		t.Error("user-disliked decoded with Like=true")
	}
}
