// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// BadgerConfig holds configuration for the BadgerDB-backed store.
type BadgerConfig struct {
	// Dir is the on-disk location. Ignored when InMemory is true.
	Dir string `koanf:"dir"`

	// InMemory runs badger without persistence. Used by tests and
	// cache-optional deployments.
	InMemory bool `koanf:"in_memory"`

	// GCInterval is how often the value-log garbage collector runs.
	// Default: 10 minutes.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// BadgerStore implements Store on BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	logger zerolog.Logger
	stopGC chan struct{}
	doneGC chan struct{}
}

// OpenBadger opens (or creates) a BadgerDB-backed store.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func OpenBadger(cfg BadgerConfig, logger zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		logger: logger.With().Str("component", "kvstore").Logger(),
		stopGC: make(chan struct{}),
		doneGC: make(chan struct{}),
	}

	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go s.gcLoop(interval)

	return s, nil
}

// gcLoop periodically runs badger's value-log garbage collection.
// Badger requires the caller to drive GC; ErrNoRewrite is the normal
// "nothing to collect" outcome.
func (s *BadgerStore) gcLoop(interval time.Duration) {
	defer close(s.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Debug().Err(err).Msg("value log gc")
			}
		case <-s.stopGC:
			return
		}
	}
}

// Get returns the value for key, or ErrNotFound.
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return value, nil
}

// Set stores value under key with an optional TTL.
func (s *BadgerStore) Set(_ context.Context, key string, value []byte, ttlSeconds int) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttlSeconds > 0 {
			entry = entry.WithTTL(time.Duration(ttlSeconds) * time.Second)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// Delete removes key, reporting whether it existed.
func (s *BadgerStore) Delete(_ context.Context, key string) (bool, error) {
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err == nil {
			existed = true
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return false, fmt.Errorf("badger delete: %w", err)
	}
	return existed, nil
}

// Exists reports whether key is present and unexpired.
func (s *BadgerStore) Exists(_ context.Context, key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("badger exists: %w", err)
	}
	return true, nil
}

// Keys returns all keys matching a glob pattern. The scan is bounded by
// the pattern's literal prefix so "feed:hot:*" never walks the whole
// keyspace.
func (s *BadgerStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		return nil, nil
	}

	var matches []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(globPrefix(pattern))

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := string(it.Item().KeyCopy(nil))
			if MatchGlob(pattern, key) {
				matches = append(matches, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger keys: %w", err)
	}
	return matches, nil
}

// Ping verifies the store is open and usable.
func (s *BadgerStore) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

// Close stops the GC loop and closes the database.
func (s *BadgerStore) Close() error {
	close(s.stopGC)
	<-s.doneGC
	return s.db.Close()
}
