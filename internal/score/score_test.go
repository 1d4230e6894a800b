// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package score

import (
	"math"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func timePtr(t time.Time) *time.Time { return &t }

func freshInput(created time.Time) Input {
	return Input{
		ID:              "c1",
		LikeCount:       10,
		DislikeCount:    2,
		ViewCount:       100,
		CommentCount:    5,
		CollectionCount: 3,
		ShareCount:      4,
		CreatedAt:       timePtr(created),
	}
}

func TestHotScoreWeights(t *testing.T) {
	now := time.Now()
	in := freshInput(now)

	// Age zero means decay 1 and no bonus; the score is the raw
	// weighted sum: 10 - 1 + 10 + 10 + 9 + 10 = 48.
	got := HotScore(in, now)
	want := 48.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("HotScore = %v, want %v", got, want)
	}
}

func TestHotScoreDecaysWithAge(t *testing.T) {
	now := time.Now()

	young := HotScore(freshInput(now.Add(-24*time.Hour)), now)
	old := HotScore(freshInput(now.Add(-30*24*time.Hour)), now)

	if young <= old {
		t.Errorf("older item scored higher: young=%v old=%v", young, old)
	}
	if old <= 0 {
		t.Errorf("old item with engagement scored %v, want > 0", old)
	}
}

func TestHotScoreMoreEngagementScoresHigher(t *testing.T) {
	now := time.Now()
	created := now.Add(-48 * time.Hour)

	base := freshInput(created)
	more := freshInput(created)
	more.LikeCount = 50

	if HotScore(more, now) <= HotScore(base, now) {
		t.Error("more likes did not raise the score")
	}
}

func TestHotScoreEditRestoresVisibility(t *testing.T) {
	now := time.Now()
	created := now.Add(-30 * 24 * time.Hour)

	stale := freshInput(created)
	edited := freshInput(created)
	edited.ModifiedAt = timePtr(now.Add(-time.Hour))

	if HotScore(edited, now) <= HotScore(stale, now) {
		t.Error("recent edit did not raise the score")
	}
}

func TestHotScoreMalformedInputIsZero(t *testing.T) {
	now := time.Now()

	cases := map[string]Input{
		"nil createdAt":  {ID: "x", LikeCount: 1},
		"zero createdAt": {ID: "x", LikeCount: 1, CreatedAt: &time.Time{}},
		"string counter": func() Input {
			in := freshInput(now)
			in.LikeCount = "many"
			return in
		}(),
		"map counter": func() Input {
			in := freshInput(now)
			in.ViewCount = map[string]int{"n": 1}
			return in
		}(),
		"NaN counter": func() Input {
			in := freshInput(now)
			in.ShareCount = math.NaN()
			return in
		}(),
	}
	for name, in := range cases {
		if got := HotScore(in, now); got != 0 {
			t.Errorf("%s: HotScore = %v, want 0", name, got)
		}
	}
}

func TestHotScoreNeverNegative(t *testing.T) {
	now := time.Now()
	in := Input{
		ID:           "x",
		DislikeCount: 1000,
		CreatedAt:    timePtr(now.Add(-time.Hour)),
	}
	if got := HotScore(in, now); got != 0 {
		t.Errorf("all-dislike item scored %v, want 0", got)
	}
}

func TestHotScoreAcceptsJSONNumbers(t *testing.T) {
	now := time.Now()
	in := freshInput(now)
	in.LikeCount = json.Number("10")
	in.ViewCount = float64(100)
	in.CommentCount = int64(5)

	if got := HotScore(in, now); got <= 0 {
		t.Errorf("numeric variants scored %v, want > 0", got)
	}
}

func TestHotLevelThresholds(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
	}{
		{1500, LevelViral},
		{1000, LevelViral},
		{999.9, LevelTrending},
		{500, LevelTrending},
		{499, LevelPopular},
		{100, LevelPopular},
		{99, LevelActive},
		{50, LevelActive},
		{49, LevelNormal},
		{10, LevelNormal},
		{9.9, LevelNew},
		{0, LevelNew},
	}
	for _, tt := range tests {
		if got := HotLevel(tt.score); got != tt.want {
			t.Errorf("HotLevel(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	now := time.Now()

	if err := Validate(freshInput(now)); err != nil {
		t.Errorf("valid input rejected: %v", err)
	}

	bad := freshInput(now)
	bad.CommentCount = "lots"
	if err := Validate(bad); err == nil {
		t.Error("non-numeric counter accepted")
	}

	if err := Validate(Input{ID: "x"}); err == nil {
		t.Error("missing createdAt accepted")
	}
	if err := Validate(Input{CreatedAt: timePtr(now)}); err == nil {
		t.Error("missing id accepted")
	}

	// Absent counters are fine; they read as zero.
	sparse := Input{ID: "x", CreatedAt: timePtr(now)}
	if err := Validate(sparse); err != nil {
		t.Errorf("sparse input rejected: %v", err)
	}
}
