// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emberfeed/emberfeed/internal/score"
)

// Content is one stored content document.
type Content struct {
	ID              string     `json:"id"`
	AuthorID        string     `json:"authorId"`
	Title           string     `json:"title"`
	Tags            []string   `json:"tags"`
	LikeCount       int64      `json:"likeCount"`
	DislikeCount    int64      `json:"dislikeCount"`
	ViewCount       int64      `json:"viewCount"`
	CommentCount    int64      `json:"commentCount"`
	CollectionCount int64      `json:"collectionCount"`
	ShareCount      int64      `json:"shareCount"`
	HotScore        float64    `json:"hotScore"`
	HotLevel        string     `json:"hotLevel"`
	CreatedAt       time.Time  `json:"createdAt"`
	ModifiedAt      *time.Time `json:"modifiedAt,omitempty"`
	ScoreUpdatedAt  *time.Time `json:"scoreUpdatedAt,omitempty"`
}

// interactionColumns maps interaction kinds to the counter column they
// increment. Kinds outside this map are recorded but count nothing.
var interactionColumns = map[string]string{
	"like":    "like_count",
	"dislike": "dislike_count",
	"view":    "view_count",
	"comment": "comment_count",
	"collect": "collection_count",
	"share":   "share_count",
}

// CreateContent inserts a new document together with its tag rows.
func (s *Store) CreateContent(ctx context.Context, c *Content) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO content (id, author_id, title, like_count, dislike_count, view_count,
			comment_count, collection_count, share_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AuthorID, c.Title,
		c.LikeCount, c.DislikeCount, c.ViewCount,
		c.CommentCount, c.CollectionCount, c.ShareCount,
		c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert content %s: %w", c.ID, err)
	}
	return s.replaceTags(ctx, c.ID, c.Tags)
}

// UpdateContent rewrites title and tags and touches modified_at.
func (s *Store) UpdateContent(ctx context.Context, id, title string, tags []string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.conn.ExecContext(ctx, `
		UPDATE content SET title = ?, modified_at = ? WHERE id = ? AND NOT deleted`,
		title, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update content %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update content %s: %w", id, ErrNotFound)
	}
	return s.replaceTags(ctx, id, tags)
}

func (s *Store) replaceTags(ctx context.Context, id string, tags []string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM content_tags WHERE content_id = ?`, id); err != nil {
		return fmt.Errorf("clear tags for %s: %w", id, err)
	}
	for _, tag := range tags {
		if _, err := s.conn.ExecContext(ctx,
			`INSERT INTO content_tags (content_id, tag) VALUES (?, ?)`, id, tag); err != nil {
			return fmt.Errorf("insert tag %s for %s: %w", tag, id, err)
		}
	}
	return nil
}

// DeleteContent soft-deletes a document. Its rows stay for analytics
// but drop out of every recompute and recommendation query.
func (s *Store) DeleteContent(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.conn.ExecContext(ctx,
		`UPDATE content SET deleted = TRUE, modified_at = ? WHERE id = ? AND NOT deleted`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("delete content %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete content %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetContent loads one live document with its tags.
func (s *Store) GetContent(ctx context.Context, id string) (*Content, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		c        Content
		modified sql.NullTime
		scored   sql.NullTime
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, author_id, title, like_count, dislike_count, view_count,
			comment_count, collection_count, share_count, hot_score, hot_level,
			created_at, modified_at, score_updated_at
		FROM content WHERE id = ? AND NOT deleted`, id).Scan(
		&c.ID, &c.AuthorID, &c.Title,
		&c.LikeCount, &c.DislikeCount, &c.ViewCount,
		&c.CommentCount, &c.CollectionCount, &c.ShareCount,
		&c.HotScore, &c.HotLevel,
		&c.CreatedAt, &modified, &scored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content %s: %w", id, err)
	}
	if modified.Valid {
		c.ModifiedAt = &modified.Time
	}
	if scored.Valid {
		c.ScoreUpdatedAt = &scored.Time
	}

	tags, err := s.tagsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Tags = tags
	return &c, nil
}

func (s *Store) tagsFor(ctx context.Context, id string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT tag FROM content_tags WHERE content_id = ? ORDER BY tag`, id)
	if err != nil {
		return nil, fmt.Errorf("tags for %s: %w", id, err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// RecordInteraction appends an interaction event and bumps the matching
// counter column when the kind has one.
func (s *Store) RecordInteraction(ctx context.Context, userID, contentID, kind string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := s.conn.ExecContext(ctx, `
		INSERT INTO interactions (user_id, content_id, kind, created_at)
		VALUES (?, ?, ?, ?)`,
		userID, contentID, kind, time.Now().UTC()); err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}

	col, counted := interactionColumns[kind]
	if !counted {
		return nil
	}
	q := fmt.Sprintf(`UPDATE content SET %s = %s + 1, modified_at = ? WHERE id = ? AND NOT deleted`, col, col)
	if _, err := s.conn.ExecContext(ctx, q, time.Now().UTC(), contentID); err != nil {
		return fmt.Errorf("bump %s for %s: %w", col, contentID, err)
	}
	return nil
}

// SetFollow records or removes a follow edge.
func (s *Store) SetFollow(ctx context.Context, userID, targetID string, followed bool) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var err error
	if followed {
		_, err = s.conn.ExecContext(ctx, `
			INSERT OR IGNORE INTO follows (user_id, target_id, created_at) VALUES (?, ?, ?)`,
			userID, targetID, time.Now().UTC())
	} else {
		_, err = s.conn.ExecContext(ctx,
			`DELETE FROM follows WHERE user_id = ? AND target_id = ?`, userID, targetID)
	}
	if err != nil {
		return fmt.Errorf("set follow %s -> %s: %w", userID, targetID, err)
	}
	return nil
}

// recomputeFilter selects the rows a recompute run visits: everything
// live when forced, otherwise rows touched or scored within the window
// plus rows never scored at all.
const recomputeFilter = `NOT deleted AND (
	? OR score_updated_at IS NULL
	OR COALESCE(modified_at, created_at) >= ?
	OR score_updated_at >= ?)`

// CountForRecompute implements batch.ContentStore.
func (s *Store) CountForRecompute(ctx context.Context, force bool, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cutoff := time.Now().UTC().Add(-window)
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content WHERE `+recomputeFilter,
		force, cutoff, cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recompute candidates: %w", err)
	}
	return n, nil
}

// FetchRecomputePage implements batch.ContentStore. Pages are ordered
// by id so repeated fetches walk the selection exhaustively.
func (s *Store) FetchRecomputePage(ctx context.Context, force bool, window time.Duration, offset, limit int) ([]score.Input, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cutoff := time.Now().UTC().Add(-window)
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, like_count, dislike_count, view_count, comment_count,
			collection_count, share_count, created_at, modified_at
		FROM content WHERE `+recomputeFilter+`
		ORDER BY id LIMIT ? OFFSET ?`,
		force, cutoff, cutoff, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch recompute page: %w", err)
	}
	defer rows.Close()

	var out []score.Input
	for rows.Next() {
		in, err := scanInput(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// FetchItem implements retry.ItemStore: a fresh snapshot of one item.
func (s *Store) FetchItem(ctx context.Context, id string) (score.Input, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := s.conn.QueryRowContext(ctx, `
		SELECT id, like_count, dislike_count, view_count, comment_count,
			collection_count, share_count, created_at, modified_at
		FROM content WHERE id = ? AND NOT deleted`, id)
	in, err := scanInput(row)
	if errors.Is(err, sql.ErrNoRows) {
		return score.Input{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return in, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInput(row rowScanner) (score.Input, error) {
	var (
		in       score.Input
		likes    int64
		dislikes int64
		views    int64
		comments int64
		collects int64
		shares   int64
		created  time.Time
		modified sql.NullTime
	)
	if err := row.Scan(&in.ID, &likes, &dislikes, &views, &comments, &collects, &shares, &created, &modified); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return score.Input{}, err
		}
		return score.Input{}, fmt.Errorf("scan content row: %w", err)
	}
	in.LikeCount = likes
	in.DislikeCount = dislikes
	in.ViewCount = views
	in.CommentCount = comments
	in.CollectionCount = collects
	in.ShareCount = shares
	in.CreatedAt = &created
	if modified.Valid {
		in.ModifiedAt = &modified.Time
	}
	return in, nil
}

// UpdateHotScore implements batch.ContentStore and retry.ItemStore.
func (s *Store) UpdateHotScore(ctx context.Context, id string, hotScore float64, level score.Level, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.conn.ExecContext(ctx, `
		UPDATE content SET hot_score = ?, hot_level = ?, score_updated_at = ?
		WHERE id = ? AND NOT deleted`,
		hotScore, string(level), at, id)
	if err != nil {
		return fmt.Errorf("update hot score %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update hot score %s: %w", id, ErrNotFound)
	}
	return nil
}

// placeholders renders "?, ?, ?" for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
