// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package kvstore

import "testing"

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"feed:hot:*", "feed:hot:page:1", true},
		{"feed:hot:*", "feed:hot:", true},
		{"feed:hot:*", "feed:latest:page:1", false},
		{"feed:tag:go:*", "feed:tag:go:page:2", true},
		{"feed:tag:go:*", "feed:tag:golang:page:2", false},
		{"*", "anything", true},
		{"*", "", true},
		{"exact:key", "exact:key", true},
		{"exact:key", "exact:key:more", false},
		{"feed:*:page:*", "feed:hot:page:1", true},
		{"feed:*:page:*", "feed:hot:item:1", false},
		{"*suffix", "has-suffix", true},
		{"*suffix", "suffixed", false},
		{"", "anything", false},
	}
	for _, tt := range tests {
		if got := MatchGlob(tt.pattern, tt.key); got != tt.want {
			t.Errorf("MatchGlob(%q, %q) = %v, want %v", tt.pattern, tt.key, got, tt.want)
		}
	}
}

func TestGlobPrefix(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"feed:hot:*", "feed:hot:"},
		{"*", ""},
		{"exact", "exact"},
		{"feed:*:page:*", "feed:"},
	}
	for _, tt := range tests {
		if got := globPrefix(tt.pattern); got != tt.want {
			t.Errorf("globPrefix(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}
