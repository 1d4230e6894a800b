// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package kvstore

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMemoryStoreBasics(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get = %q, want v", got)
	}

	ok, err := s.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v, want true, nil", ok, err)
	}

	existed, err := s.Delete(ctx, "k")
	if err != nil || !existed {
		t.Errorf("Delete = %v, %v, want true, nil", existed, err)
	}
	existed, err = s.Delete(ctx, "k")
	if err != nil || existed {
		t.Errorf("second Delete = %v, %v, want false, nil", existed, err)
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Now()
	s.now = func() time.Time { return base }

	if err := s.Set(ctx, "short", []byte("v"), 10); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "forever", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return base.Add(11 * time.Second) }

	if _, err := s.Get(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired key Get = %v, want ErrNotFound", err)
	}
	if ok, _ := s.Exists(ctx, "forever"); !ok {
		t.Error("no-TTL key expired")
	}
}

func TestMemoryStoreKeys(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, k := range []string{"feed:hot:1", "feed:hot:2", "feed:latest:1", "user:activity:u1:x"} {
		if err := s.Set(ctx, k, []byte("v"), 0); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := s.Keys(ctx, "feed:hot:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	sort.Strings(keys)
	want := []string{"feed:hot:1", "feed:hot:2"}
	if len(keys) != len(want) {
		t.Fatalf("Keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}
	if err := s.Set(ctx, "k", nil, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after Close = %v, want ErrClosed", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping after Close = %v, want ErrClosed", err)
	}
}

func TestBadgerStoreInMemory(t *testing.T) {
	s, err := OpenBadger(BadgerConfig{InMemory: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Set(ctx, "feed:hot:1", []byte("a"), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "feed:latest:1", []byte("b"), 0); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "feed:hot:1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "a" {
		t.Errorf("Get = %q, want a", got)
	}

	keys, err := s.Keys(ctx, "feed:hot:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "feed:hot:1" {
		t.Errorf("Keys = %v, want [feed:hot:1]", keys)
	}

	existed, err := s.Delete(ctx, "feed:hot:1")
	if err != nil || !existed {
		t.Errorf("Delete = %v, %v, want true, nil", existed, err)
	}
	if _, err := s.Get(ctx, "feed:hot:1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}
}
