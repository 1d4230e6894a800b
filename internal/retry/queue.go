// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

// Package retry is the durable, at-least-once queue for hot-score
// recompute jobs that failed inside a batch run.
//
// Enqueue is best-effort: a lost retry must never escalate into a
// user-facing failure, so publish errors are logged and swallowed. The
// worker retries each job with exponential backoff up to a fixed attempt
// bound; jobs past the bound are dropped with a terminal log entry
// (dead-letter by omission, no separate store).
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/emberfeed/emberfeed/internal/metrics"
	"github.com/emberfeed/emberfeed/internal/score"
)

// Topic carries hot-score retry jobs.
const Topic = "score.retry"

// handlerName identifies the worker on the router.
const handlerName = "score-retry-worker"

// DefaultMaxAttempts bounds deliveries per job when Config.MaxAttempts
// is unset.
const DefaultMaxAttempts = 5

// ErrClosed is returned by Enqueue-adjacent operations after Close.
var ErrClosed = errors.New("retry: queue closed")

// Job is one failed recompute, keyed by item identity.
type Job struct {
	ItemID     string    `json:"itemId"`
	LastError  string    `json:"lastError"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	RunID      string    `json:"runId,omitempty"`
}

// ItemStore is the storage surface the worker needs: re-fetch one item's
// snapshot and persist its recomputed score.
type ItemStore interface {
	FetchItem(ctx context.Context, id string) (score.Input, error)
	UpdateHotScore(ctx context.Context, id string, hotScore float64, level score.Level, at time.Time) error
}

// Config holds retry queue tuning.
type Config struct {
	// MaxAttempts bounds deliveries per job before it is dropped.
	// Default: 5.
	MaxAttempts int `koanf:"max_attempts"`

	// InitialBackoff is the first retry delay. Default: 1s.
	InitialBackoff time.Duration `koanf:"initial_backoff"`

	// MaxBackoff caps the exponential backoff. Default: 1 minute.
	MaxBackoff time.Duration `koanf:"max_backoff"`

	// BackoffMultiplier grows the delay between attempts. Default: 2.
	BackoffMultiplier float64 `koanf:"backoff_multiplier"`

	// CloseTimeout is how long Close waits for in-flight work.
	// Default: 30s.
	CloseTimeout time.Duration `koanf:"close_timeout"`
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = 2.0
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 30 * time.Second
	}
}

// Queue owns the publisher side and the worker router.
type Queue struct {
	publisher message.Publisher
	router    *message.Router
	store     ItemStore
	config    Config
	logger    zerolog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewQueue wires a retry queue over the given transport. The subscriber
// feeds the worker; both ends of the transport are owned by the caller.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewQueue(publisher message.Publisher, subscriber message.Subscriber, store ItemStore, cfg Config, logger zerolog.Logger) (*Queue, error) {
	cfg.applyDefaults()
	log := logger.With().Str("component", "retry-queue").Logger()

	wmLogger := watermill.NewStdLogger(false, false)
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create retry router: %w", err)
	}

	q := &Queue{
		publisher: publisher,
		router:    router,
		store:     store,
		config:    cfg,
		logger:    log,
		now:       time.Now,
	}

	// Middleware order matters: the terminal-drop wrapper must sit outside
	// Retry so it only sees errors that survived every attempt.
	router.AddMiddleware(
		middleware.Recoverer,
		q.dropExhausted,
		middleware.Retry{
			MaxRetries:      cfg.MaxAttempts - 1,
			InitialInterval: cfg.InitialBackoff,
			MaxInterval:     cfg.MaxBackoff,
			Multiplier:      cfg.BackoffMultiplier,
			Logger:          wmLogger,
		}.Middleware,
	)

	router.AddNoPublisherHandler(handlerName, Topic, subscriber, q.handle)
	return q, nil
}

// EnqueueRetry publishes a job for itemID. Best-effort: failures are
// logged and swallowed. Implements batch.RetryEnqueuer.
func (q *Queue) EnqueueRetry(_ context.Context, itemID, lastError, runID string) {
	job := Job{
		ItemID:     itemID,
		LastError:  lastError,
		EnqueuedAt: q.now(),
		RunID:      runID,
	}
	payload, err := json.Marshal(job)
	if err != nil {
		q.logger.Error().Err(err).Str("item_id", itemID).Msg("retry job marshal failed, dropping")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := q.publisher.Publish(Topic, msg); err != nil {
		q.logger.Warn().Err(err).Str("item_id", itemID).
			Msg("retry enqueue failed, score update deferred to next batch run")
		return
	}
	metrics.RetryEnqueued.Inc()
	q.logger.Debug().Str("item_id", itemID).Str("run_id", runID).Msg("retry job enqueued")
}

// Serve starts the worker and blocks until ctx is canceled or the router
// closes. Implements suture.Service.
func (q *Queue) Serve(ctx context.Context) error {
	q.logger.Info().Int("max_attempts", q.config.MaxAttempts).
		Dur("initial_backoff", q.config.InitialBackoff).
		Msg("retry worker starting")
	return q.router.Run(ctx)
}

// Running returns a channel closed once the router is running. Tests use
// it to sequence publishes after subscription.
func (q *Queue) Running() chan struct{} {
	return q.router.Running()
}

// Close gracefully drains in-flight work, bounded by CloseTimeout.
func (q *Queue) Close() error {
	return q.router.Close()
}

// handle processes one delivery: re-fetch, validate, recompute, persist.
func (q *Queue) handle(msg *message.Message) error {
	var job Job
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		// Undecodable jobs can never succeed; drop immediately.
		q.logger.Error().Err(err).Str("msg_uuid", msg.UUID).Msg("undecodable retry job, dropping")
		return nil
	}

	ctx := msg.Context()
	item, err := q.store.FetchItem(ctx, job.ItemID)
	if err != nil {
		return fmt.Errorf("refetch item %s: %w", job.ItemID, err)
	}
	if err := score.Validate(item); err != nil {
		return fmt.Errorf("item %s still invalid: %w", job.ItemID, err)
	}

	now := q.now()
	s := score.HotScore(item, now)
	if err := q.store.UpdateHotScore(ctx, job.ItemID, s, score.HotLevel(s), now); err != nil {
		return fmt.Errorf("persist score for %s: %w", job.ItemID, err)
	}

	metrics.RetrySucceeded.Inc()
	q.logger.Info().Str("item_id", job.ItemID).Float64("hot_score", s).Msg("retry succeeded")
	return nil
}

// dropExhausted converts an error that survived the whole retry envelope
// into an ack plus a terminal log entry. Letting the error propagate
// would nack the message back into the stream forever.
func (q *Queue) dropExhausted(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		produced, err := h(msg)
		if err == nil {
			return produced, nil
		}

		itemID := "unknown"
		var job Job
		if jerr := json.Unmarshal(msg.Payload, &job); jerr == nil && job.ItemID != "" {
			itemID = job.ItemID
		}

		metrics.RetryDropped.Inc()
		q.logger.Error().Err(err).Str("item_id", itemID).
			Int("max_attempts", q.config.MaxAttempts).
			Msg("retry attempts exhausted, dropping job")
		return nil, nil
	}
}
