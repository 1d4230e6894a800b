// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

// Package version tracks a semantic version per cache key as a monotonic
// staleness token. Versions are compared, never counted: a cached payload
// tagged with a version lower than the currently recorded one is stale.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Level selects which component a bump increments.
type Level string

// Bump levels. Patch is the default for routine invalidation; minor and
// major are reserved for schema-shaped changes to a key family.
const (
	LevelPatch Level = "patch"
	LevelMinor Level = "minor"
	LevelMajor Level = "major"
)

// Version is a major.minor.patch triple.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
}

// Initial is the version assigned to a key on first access and the
// fallback for malformed stored text.
var Initial = Version{Major: 1}

// Parse parses "major.minor.patch". Each component must be a base-10
// unsigned integer with no extra whitespace or pre-release suffix.
func Parse(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("version %q: want 3 components, got %d", s, len(parts))
	}

	var nums [3]uint64
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("version %q: component %d: %w", s, i, err)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// IsValid reports whether s parses as a version.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// String returns the textual "major.minor.patch" form.
func (v Version) String() string {
	return strconv.FormatUint(v.Major, 10) + "." +
		strconv.FormatUint(v.Minor, 10) + "." +
		strconv.FormatUint(v.Patch, 10)
}

// Compare returns -1, 0, or 1 ordering v against o lexicographically on
// the (major, minor, patch) triple.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpUint(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpUint(v.Minor, o.Minor)
	default:
		return cmpUint(v.Patch, o.Patch)
	}
}

// Bump returns the next version at the given level. Minor and major bumps
// reset the lower components to zero. An unknown level bumps patch.
func (v Version) Bump(level Level) Version {
	switch level {
	case LevelMajor:
		return Version{Major: v.Major + 1}
	case LevelMinor:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	default:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	}
}

// Compare orders two textual versions, returning -1, 0, or 1.
// A malformed string compares as equal to anything, so callers that only
// branch on strict inequality treat garbage as "same version".
func Compare(a, b string) int {
	va, errA := Parse(a)
	vb, errB := Parse(b)
	if errA != nil || errB != nil {
		return 0
	}
	return va.Compare(vb)
}

func cmpUint(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
