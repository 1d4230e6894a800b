// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

// Package jobs schedules the recompute jobs on independent calendar
// cadences and guards each job name against overlapping runs.
package jobs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
// Field values are stored as bitmasks; bit n set means value n matches.
type Schedule struct {
	minutes uint64 // 0-59
	hours   uint32 // 0-23
	dom     uint32 // 1-31
	months  uint16 // 1-12
	dow     uint8  // 0-6, Sunday = 0

	domWild bool
	dowWild bool
}

// ParseSchedule parses a standard 5-field cron expression.
//
// Supported syntax per field: * | n | n-m | n,m,o | */s | n-m/s.
// Day 7 in the day-of-week field is normalized to Sunday (0).
//
// Examples:
//   - "0 * * * *"  every hour on the hour
//   - "0 2 * * *"  daily at 02:00
//   - "*/15 * * * *"  every 15 minutes
func ParseSchedule(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression %q: want 5 fields, got %d", expr, len(fields))
	}

	minutes, err := parseField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("minute field: %w", err)
	}
	hours, err := parseField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("hour field: %w", err)
	}
	dom, err := parseField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("day-of-month field: %w", err)
	}
	months, err := parseField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("month field: %w", err)
	}
	dow, err := parseField(fields[4], 0, 7)
	if err != nil {
		return nil, fmt.Errorf("day-of-week field: %w", err)
	}
	// Both 0 and 7 mean Sunday.
	if dow&(1<<7) != 0 {
		dow = (dow &^ (1 << 7)) | 1
	}

	return &Schedule{
		minutes: minutes,
		hours:   uint32(hours),
		dom:     uint32(dom),
		months:  uint16(months),
		dow:     uint8(dow),
		domWild: fields[2] == "*",
		dowWild: fields[4] == "*",
	}, nil
}

// parseField expands one cron field into a bitmask over [min,max].
func parseField(field string, min, max int) (uint64, error) {
	var mask uint64
	for _, part := range strings.Split(field, ",") {
		m, err := parsePart(part, min, max)
		if err != nil {
			return 0, err
		}
		mask |= m
	}
	if mask == 0 {
		return 0, fmt.Errorf("field %q matches nothing", field)
	}
	return mask, nil
}

func parsePart(part string, min, max int) (uint64, error) {
	step := 1
	if idx := strings.IndexByte(part, '/'); idx >= 0 {
		s, err := strconv.Atoi(part[idx+1:])
		if err != nil || s < 1 {
			return 0, fmt.Errorf("invalid step in %q", part)
		}
		step = s
		part = part[:idx]
	}

	lo, hi := min, max
	switch {
	case part == "*":
		// full range
	case strings.ContainsRune(part, '-'):
		bounds := strings.SplitN(part, "-", 2)
		var err error
		if lo, err = strconv.Atoi(bounds[0]); err != nil {
			return 0, fmt.Errorf("invalid range start in %q", part)
		}
		if hi, err = strconv.Atoi(bounds[1]); err != nil {
			return 0, fmt.Errorf("invalid range end in %q", part)
		}
	default:
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", part)
		}
		lo, hi = n, n
	}

	if lo < min || hi > max || lo > hi {
		return 0, fmt.Errorf("value %q out of range %d-%d", part, min, max)
	}

	var mask uint64
	for v := lo; v <= hi; v += step {
		mask |= 1 << uint(v)
	}
	return mask, nil
}

// matches reports whether t satisfies the schedule.
func (s *Schedule) matches(t time.Time) bool {
	if s.minutes&(1<<uint(t.Minute())) == 0 {
		return false
	}
	if s.hours&(1<<uint(t.Hour())) == 0 {
		return false
	}
	if s.months&(1<<uint(int(t.Month()))) == 0 {
		return false
	}

	domMatch := s.dom&(1<<uint(t.Day())) != 0
	dowMatch := s.dow&(1<<uint(int(t.Weekday()))) != 0

	// Standard cron: when both day fields are restricted, either matching
	// is sufficient.
	switch {
	case s.domWild && s.dowWild:
		return true
	case s.domWild:
		return dowMatch
	case s.dowWild:
		return domMatch
	default:
		return domMatch || dowMatch
	}
}

// Next returns the first matching time strictly after t in loc
// (UTC when nil). Returns the zero time if nothing matches within four
// years, which only a contradictory day/month combination can cause.
func (s *Schedule) Next(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc).Add(time.Minute).Truncate(time.Minute)

	limit := t.AddDate(4, 0, 0)
	for !t.After(limit) {
		if s.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

// Handle controls one running schedule registration.
type Handle struct {
	stop chan struct{}
	done chan struct{}
}

// Stop cancels the registration and waits for the timer goroutine.
// Safe to call once.
func (h *Handle) Stop() {
	close(h.stop)
	<-h.done
}

// Start fires fn at every matching instant until the handle is stopped.
// fn runs on the timer goroutine; long callbacks delay later tics of the
// same handle, which is exactly the backpressure single-job timelines
// want.
func (s *Schedule) Start(loc *time.Location, fn func(time.Time)) *Handle {
	h := &Handle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		for {
			next := s.Next(time.Now(), loc)
			if next.IsZero() {
				return
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case at := <-timer.C:
				fn(at)
			case <-h.stop:
				timer.Stop()
				return
			}
		}
	}()
	return h
}
