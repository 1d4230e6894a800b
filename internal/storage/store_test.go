// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/emberfeed/emberfeed/internal/score"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Threads: 2}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreate(t *testing.T, s *Store, c *Content) {
	t.Helper()
	if err := s.CreateContent(context.Background(), c); err != nil {
		t.Fatalf("CreateContent(%s): %v", c.ID, err)
	}
}

func TestMigrationsAreIdempotentOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emberfeed.duckdb")

	s, err := Open(Config{Path: path, Threads: 1}, zerolog.Nop())
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	mustCreate(t, s, &Content{ID: "c1", AuthorID: "u1", Title: "hello"})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(Config{Path: path, Threads: 1}, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.GetContent(context.Background(), "c1")
	if err != nil {
		t.Fatalf("GetContent after reopen: %v", err)
	}
	if got.Title != "hello" {
		t.Errorf("Title = %q, want hello", got.Title)
	}
}

func TestContentLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, &Content{
		ID: "c1", AuthorID: "u1", Title: "first post",
		Tags: []string{"go", "caching"},
	})

	got, err := s.GetContent(ctx, "c1")
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if got.AuthorID != "u1" || got.Title != "first post" {
		t.Errorf("content = %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "caching" || got.Tags[1] != "go" {
		t.Errorf("Tags = %v, want sorted [caching go]", got.Tags)
	}
	if got.HotLevel != "new" {
		t.Errorf("HotLevel = %q, want new", got.HotLevel)
	}
	if got.ModifiedAt != nil {
		t.Error("fresh content must have no ModifiedAt")
	}

	if err := s.UpdateContent(ctx, "c1", "edited post", []string{"go"}); err != nil {
		t.Fatalf("UpdateContent: %v", err)
	}
	got, err = s.GetContent(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "edited post" {
		t.Errorf("Title = %q", got.Title)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "go" {
		t.Errorf("Tags = %v, want [go]", got.Tags)
	}
	if got.ModifiedAt == nil {
		t.Error("update must set ModifiedAt")
	}

	if err := s.DeleteContent(ctx, "c1"); err != nil {
		t.Fatalf("DeleteContent: %v", err)
	}
	if _, err := s.GetContent(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetContent after delete = %v, want ErrNotFound", err)
	}
	// A second delete hits no live row.
	if err := s.DeleteContent(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete = %v, want ErrNotFound", err)
	}
	if err := s.UpdateContent(ctx, "c1", "zombie", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("update deleted = %v, want ErrNotFound", err)
	}
}

func TestRecordInteractionBumpsCounters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, &Content{ID: "c1", AuthorID: "u1"})

	for _, kind := range []string{"like", "like", "view", "comment", "share", "collect", "dislike"} {
		if err := s.RecordInteraction(ctx, "u2", "c1", kind); err != nil {
			t.Fatalf("RecordInteraction(%s): %v", kind, err)
		}
	}
	// Unknown kinds are recorded but bump nothing.
	if err := s.RecordInteraction(ctx, "u2", "c1", "hover"); err != nil {
		t.Fatalf("RecordInteraction(hover): %v", err)
	}

	got, err := s.GetContent(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.LikeCount != 2 || got.ViewCount != 1 || got.CommentCount != 1 ||
		got.ShareCount != 1 || got.CollectionCount != 1 || got.DislikeCount != 1 {
		t.Errorf("counters = %+v", got)
	}
	if got.ModifiedAt == nil {
		t.Error("counted interaction must touch ModifiedAt")
	}
}

func TestRecomputeSelection(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-30 * 24 * time.Hour)

	// Never scored: always selected.
	mustCreate(t, s, &Content{ID: "fresh", AuthorID: "u1"})
	// Scored long ago, untouched since: only selected under force.
	mustCreate(t, s, &Content{ID: "stale", AuthorID: "u1", CreatedAt: old})
	if err := s.UpdateHotScore(ctx, "stale", 1.5, score.LevelNew, old); err != nil {
		t.Fatal(err)
	}
	// Deleted: never selected.
	mustCreate(t, s, &Content{ID: "gone", AuthorID: "u1"})
	if err := s.DeleteContent(ctx, "gone"); err != nil {
		t.Fatal(err)
	}

	window := 7 * 24 * time.Hour
	n, err := s.CountForRecompute(ctx, false, window)
	if err != nil {
		t.Fatalf("CountForRecompute: %v", err)
	}
	if n != 1 {
		t.Errorf("incremental count = %d, want 1", n)
	}
	page, err := s.FetchRecomputePage(ctx, false, window, 0, 10)
	if err != nil {
		t.Fatalf("FetchRecomputePage: %v", err)
	}
	if len(page) != 1 || page[0].ID != "fresh" {
		t.Errorf("incremental page = %+v", page)
	}

	n, err = s.CountForRecompute(ctx, true, window)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("force count = %d, want 2", n)
	}
	page, err = s.FetchRecomputePage(ctx, true, window, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != "fresh" || page[1].ID != "stale" {
		t.Errorf("force page = %+v", page)
	}
}

func TestFetchItemAndUpdateHotScore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, &Content{ID: "c1", AuthorID: "u1", LikeCount: 7})

	in, err := s.FetchItem(ctx, "c1")
	if err != nil {
		t.Fatalf("FetchItem: %v", err)
	}
	if in.ID != "c1" || in.LikeCount != int64(7) {
		t.Errorf("snapshot = %+v", in)
	}
	if in.CreatedAt == nil || in.CreatedAt.IsZero() {
		t.Error("snapshot must carry CreatedAt")
	}
	if err := score.Validate(in); err != nil {
		t.Errorf("snapshot must be scorable: %v", err)
	}

	at := time.Now().UTC()
	if err := s.UpdateHotScore(ctx, "c1", 123.5, score.LevelPopular, at); err != nil {
		t.Fatalf("UpdateHotScore: %v", err)
	}
	got, err := s.GetContent(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.HotScore != 123.5 || got.HotLevel != "popular" {
		t.Errorf("score = %v level = %q", got.HotScore, got.HotLevel)
	}
	if got.ScoreUpdatedAt == nil {
		t.Error("ScoreUpdatedAt must be set")
	}

	if _, err := s.FetchItem(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FetchItem(ghost) = %v, want ErrNotFound", err)
	}
	if err := s.UpdateHotScore(ctx, "ghost", 1, score.LevelNew, at); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateHotScore(ghost) = %v, want ErrNotFound", err)
	}
}
