// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package storage

import (
	"context"
	"fmt"
	"time"
)

// Ranked is a content id with a relevance weight, ordered best first.
type Ranked struct {
	ContentID string  `json:"contentId"`
	Weight    float64 `json:"weight"`
}

// ActiveUserIDs returns users with at least one interaction since the
// cutoff, most recently active first.
func (s *Store) ActiveUserIDs(ctx context.Context, since time.Time, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT user_id FROM interactions
		WHERE created_at >= ?
		GROUP BY user_id
		ORDER BY MAX(created_at) DESC
		LIMIT ?`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("active users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SeenContentIDs returns the content a user has interacted with,
// newest first. Recommendation passes use it both as the seed set and
// as the exclusion set.
func (s *Store) SeenContentIDs(ctx context.Context, userID string, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT content_id FROM interactions
		WHERE user_id = ?
		GROUP BY content_id
		ORDER BY MAX(created_at) DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("seen content for %s: %w", userID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan content id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Follows returns the ids a user follows.
func (s *Store) Follows(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT target_id FROM follows WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("follows for %s: %w", userID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan follow target: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TagAffinity is one tag with how strongly a user gravitates to it.
type TagAffinity struct {
	Tag    string  `json:"tag"`
	Weight float64 `json:"weight"`
}

// UserTagAffinity aggregates how often a user's interactions touched
// each tag, strongest affinity first.
func (s *Store) UserTagAffinity(ctx context.Context, userID string, limit int) ([]TagAffinity, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT ct.tag, COUNT(*) AS hits
		FROM interactions i
		JOIN content_tags ct ON ct.content_id = i.content_id
		WHERE i.user_id = ?
		GROUP BY ct.tag
		ORDER BY hits DESC, ct.tag
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("tag affinity for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []TagAffinity
	for rows.Next() {
		var a TagAffinity
		if err := rows.Scan(&a.Tag, &a.Weight); err != nil {
			return nil, fmt.Errorf("scan tag affinity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ContentByTags returns live content carrying any of the tags, ranked
// by matched-tag count and then hot score. excludeIDs removes content
// the user has already seen.
func (s *Store) ContentByTags(ctx context.Context, tags, excludeIDs []string, limit int) ([]Ranked, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	args := make([]any, 0, len(tags)+len(excludeIDs)+1)
	for _, t := range tags {
		args = append(args, t)
	}
	q := `
		SELECT c.id, COUNT(*) + c.hot_score / 10000.0 AS weight
		FROM content c
		JOIN content_tags ct ON ct.content_id = c.id
		WHERE NOT c.deleted AND ct.tag IN (` + placeholders(len(tags)) + `)`
	if len(excludeIDs) > 0 {
		q += ` AND c.id NOT IN (` + placeholders(len(excludeIDs)) + `)`
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}
	q += `
		GROUP BY c.id, c.hot_score
		ORDER BY weight DESC, c.id
		LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("content by tags: %w", err)
	}
	defer rows.Close()
	return scanRanked(rows)
}

// CoVisited returns content interacted with by the users who touched
// the seed set, weighted by how many distinct such users touched each
// candidate. The classic "users who liked this also liked" signal.
func (s *Store) CoVisited(ctx context.Context, seedIDs, excludeIDs []string, limit int) ([]Ranked, error) {
	if len(seedIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	args := make([]any, 0, len(seedIDs)*2+len(excludeIDs)+1)
	for _, id := range seedIDs {
		args = append(args, id)
	}
	q := `
		WITH neighbours AS (
			SELECT DISTINCT user_id FROM interactions
			WHERE content_id IN (` + placeholders(len(seedIDs)) + `)
		)
		SELECT i.content_id, COUNT(DISTINCT i.user_id) AS weight
		FROM interactions i
		JOIN neighbours n ON n.user_id = i.user_id
		JOIN content c ON c.id = i.content_id AND NOT c.deleted
		WHERE i.content_id NOT IN (` + placeholders(len(seedIDs)) + `)`
	for _, id := range seedIDs {
		args = append(args, id)
	}
	if len(excludeIDs) > 0 {
		q += ` AND i.content_id NOT IN (` + placeholders(len(excludeIDs)) + `)`
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}
	q += `
		GROUP BY i.content_id
		ORDER BY weight DESC, i.content_id
		LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("co-visited content: %w", err)
	}
	defer rows.Close()
	return scanRanked(rows)
}

// ContentSeenByUsers returns what a set of users (typically the ones a
// user follows) interacted with, weighted by distinct user count.
func (s *Store) ContentSeenByUsers(ctx context.Context, userIDs, excludeIDs []string, limit int) ([]Ranked, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	args := make([]any, 0, len(userIDs)+len(excludeIDs)+1)
	for _, id := range userIDs {
		args = append(args, id)
	}
	q := `
		SELECT i.content_id, COUNT(DISTINCT i.user_id) AS weight
		FROM interactions i
		JOIN content c ON c.id = i.content_id AND NOT c.deleted
		WHERE i.user_id IN (` + placeholders(len(userIDs)) + `)`
	if len(excludeIDs) > 0 {
		q += ` AND i.content_id NOT IN (` + placeholders(len(excludeIDs)) + `)`
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}
	q += `
		GROUP BY i.content_id
		ORDER BY weight DESC, i.content_id
		LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("content seen by users: %w", err)
	}
	defer rows.Close()
	return scanRanked(rows)
}

// TopHotContent returns the highest-scored live content.
func (s *Store) TopHotContent(ctx context.Context, limit int) ([]Ranked, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, hot_score FROM content
		WHERE NOT deleted
		ORDER BY hot_score DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("top hot content: %w", err)
	}
	defer rows.Close()
	return scanRanked(rows)
}

type rankedRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRanked(rows rankedRows) ([]Ranked, error) {
	var out []Ranked
	for rows.Next() {
		var r Ranked
		if err := rows.Scan(&r.ContentID, &r.Weight); err != nil {
			return nil, fmt.Errorf("scan ranked row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
