// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

// Package score computes the time-decayed popularity ("hot") score for a
// content item, and classifies scores into ordinal levels.
//
// HotScore is total over all inputs: malformed counters or a missing
// creation time yield 0, never a panic. Upstream documents are not
// trusted, so counters arrive as loosely typed values.
package score

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
)

// Engagement weights. Collections and shares signal the strongest intent;
// dislikes subtract half a like.
const (
	weightLike       = 1.0
	weightDislike    = -0.5
	weightView       = 0.1
	weightComment    = 2.0
	weightCollection = 3.0
	weightShare      = 2.5
)

// freshnessBonus applies when an item was edited after creation.
const freshnessBonus = 1.2

// Level is the ordinal popularity classification of a hot score.
type Level string

// Levels, hottest first.
const (
	LevelViral    Level = "viral"
	LevelTrending Level = "trending"
	LevelPopular  Level = "popular"
	LevelActive   Level = "active"
	LevelNormal   Level = "normal"
	LevelNew      Level = "new"
)

// Input is a read-only snapshot of one content item at recompute time.
// Counter fields are deliberately untyped: the storage collaborator may
// hand back malformed documents, and scoring must absorb them.
type Input struct {
	ID              string     `json:"id"`
	LikeCount       any        `json:"likeCount"`
	DislikeCount    any        `json:"dislikeCount"`
	ViewCount       any        `json:"viewCount"`
	CommentCount    any        `json:"commentCount"`
	CollectionCount any        `json:"collectionCount"`
	ShareCount      any        `json:"shareCount"`
	CreatedAt       *time.Time `json:"createdAt"`
	ModifiedAt      *time.Time `json:"modifiedAt,omitempty"`
}

// HotScore computes the weighted, time-decayed popularity score of in as
// of now. The result is always finite and >= 0; any malformed or missing
// required field yields exactly 0.
func HotScore(in Input, now time.Time) float64 {
	if in.CreatedAt == nil || in.CreatedAt.IsZero() {
		return 0
	}

	counts := [6]float64{}
	for i, raw := range []any{
		in.LikeCount, in.DislikeCount, in.ViewCount,
		in.CommentCount, in.CollectionCount, in.ShareCount,
	} {
		n, ok := asCount(raw)
		if !ok {
			return 0
		}
		counts[i] = n
	}

	base := counts[0]*weightLike +
		counts[1]*weightDislike +
		counts[2]*weightView +
		counts[3]*weightComment +
		counts[4]*weightCollection +
		counts[5]*weightShare

	// Decay from the most recent touch, so an edit restores visibility.
	reference := *in.CreatedAt
	modified := in.ModifiedAt != nil && in.ModifiedAt.After(*in.CreatedAt)
	if modified {
		reference = *in.ModifiedAt
	}

	ageDays := now.Sub(reference).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	decay := 1 / (1 + math.Log(ageDays+1))

	result := base * decay
	if modified {
		result *= freshnessBonus
	}

	if math.IsNaN(result) || math.IsInf(result, 0) || result < 0 {
		return 0
	}
	return result
}

// HotLevel classifies a score into its ordinal level.
func HotLevel(s float64) Level {
	switch {
	case s >= 1000:
		return LevelViral
	case s >= 500:
		return LevelTrending
	case s >= 100:
		return LevelPopular
	case s >= 50:
		return LevelActive
	case s >= 10:
		return LevelNormal
	default:
		return LevelNew
	}
}

// Validate reports why a snapshot cannot be scored. HotScore itself is
// total and quietly yields 0 for such inputs; batch recompute instead
// wants the failure surfaced per item so it can be counted and retried.
func Validate(in Input) error {
	if in.ID == "" {
		return errors.New("missing id")
	}
	if in.CreatedAt == nil || in.CreatedAt.IsZero() {
		return errors.New("missing createdAt")
	}
	for _, field := range []struct {
		name string
		raw  any
	}{
		{"likeCount", in.LikeCount},
		{"dislikeCount", in.DislikeCount},
		{"viewCount", in.ViewCount},
		{"commentCount", in.CommentCount},
		{"collectionCount", in.CollectionCount},
		{"shareCount", in.ShareCount},
	} {
		if _, ok := asCount(field.raw); !ok {
			return fmt.Errorf("non-numeric %s: %v", field.name, field.raw)
		}
	}
	return nil
}

// asCount coerces a loosely typed counter to a float64. A nil counter is
// zero (absent field); anything non-numeric or non-finite is rejected.
func asCount(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return finite(float64(v))
	case float64:
		return finite(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return finite(n)
	default:
		return 0, false
	}
}

func finite(n float64) (float64, bool) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
