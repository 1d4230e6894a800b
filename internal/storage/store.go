// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

// Package storage is the DuckDB-backed document store for content,
// interactions and follow relations. It is the system of record the
// cache layer sits in front of.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a row does not exist or is soft-deleted.
var ErrNotFound = errors.New("storage: not found")

const queryTimeout = 30 * time.Second

// Config holds document store settings.
type Config struct {
	// Path is the database file. Empty means in-memory, which tests use.
	Path string `koanf:"path"`

	// Threads caps DuckDB worker threads. 0 means NumCPU.
	Threads int `koanf:"threads"`

	// MemoryLimit is passed through to DuckDB, e.g. "512MB".
	MemoryLimit string `koanf:"memory_limit"`
}

// Store wraps the DuckDB connection.
type Store struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// Open opens the database and brings the schema up to date.
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	if cfg.Path != "" {
		dir := filepath.Dir(cfg.Path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dir, err)
			}
		}
	}

	dsn := fmt.Sprintf("%s?threads=%d", cfg.Path, threads)
	if cfg.MemoryLimit != "" {
		dsn += "&memory_limit=" + cfg.MemoryLimit
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// DuckDB is embedded; a small pool avoids write contention.
	conn.SetMaxOpenConns(threads)
	conn.SetMaxIdleConns(threads)

	s := &Store{
		conn:   conn,
		logger: logger.With().Str("component", "storage").Logger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s.logger.Info().Str("path", cfg.Path).Int("threads", threads).Msg("document store opened")
	return s, nil
}

// Ping probes connectivity. Batch runs call this before touching data.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.conn.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

type migration struct {
	version int
	name    string
	sql     string
}

func migrations() []migration {
	return []migration{
		{
			version: 1,
			name:    "content",
			sql: `CREATE TABLE IF NOT EXISTS content (
				id TEXT PRIMARY KEY,
				author_id TEXT NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				like_count BIGINT NOT NULL DEFAULT 0,
				dislike_count BIGINT NOT NULL DEFAULT 0,
				view_count BIGINT NOT NULL DEFAULT 0,
				comment_count BIGINT NOT NULL DEFAULT 0,
				collection_count BIGINT NOT NULL DEFAULT 0,
				share_count BIGINT NOT NULL DEFAULT 0,
				hot_score DOUBLE NOT NULL DEFAULT 0,
				hot_level TEXT NOT NULL DEFAULT 'new',
				deleted BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP NOT NULL,
				modified_at TIMESTAMP,
				score_updated_at TIMESTAMP
			)`,
		},
		{
			version: 2,
			name:    "content_tags",
			sql: `CREATE TABLE IF NOT EXISTS content_tags (
				content_id TEXT NOT NULL,
				tag TEXT NOT NULL,
				PRIMARY KEY (content_id, tag)
			)`,
		},
		{
			version: 3,
			name:    "interactions",
			sql: `CREATE TABLE IF NOT EXISTS interactions (
				user_id TEXT NOT NULL,
				content_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`,
		},
		{
			version: 4,
			name:    "follows",
			sql: `CREATE TABLE IF NOT EXISTS follows (
				user_id TEXT NOT NULL,
				target_id TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL,
				PRIMARY KEY (user_id, target_id)
			)`,
		},
		{
			version: 5,
			name:    "content_indexes",
			sql: `CREATE INDEX IF NOT EXISTS idx_content_recompute
				ON content (deleted, modified_at, score_updated_at)`,
		},
		{
			version: 6,
			name:    "interaction_indexes",
			sql: `CREATE INDEX IF NOT EXISTS idx_interactions_user
				ON interactions (user_id, created_at)`,
		},
		{
			version: 7,
			name:    "interaction_content_index",
			sql: `CREATE INDEX IF NOT EXISTS idx_interactions_content
				ON interactions (content_id)`,
		},
	}
}

// migrate applies pending schema migrations exactly once each, tracked
// in schema_migrations.
func (s *Store) migrate(ctx context.Context) error {
	const track = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := s.conn.ExecContext(ctx, track); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	err := s.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations() {
		if m.version <= current {
			continue
		}
		if _, err := s.conn.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := s.conn.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		s.logger.Debug().Int("version", m.version).Str("name", m.name).Msg("migration applied")
	}
	return nil
}
