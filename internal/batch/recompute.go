// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

// Package batch implements the paginated hot-score recompute run over the
// content collection.
//
// A run is a small state machine: health check, query, page loop,
// summary. The pre-run health probe is the single hard gate; past it,
// failures are isolated per item (counted, enqueued for retry) and per
// page (logged with bounds, run continues up to a consecutive-failure
// cap). Success means the run completed, not that every item succeeded.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/emberfeed/emberfeed/internal/metrics"
	"github.com/emberfeed/emberfeed/internal/score"
)

// Defaults for Config zero values.
const (
	DefaultPageSize          = 500
	DefaultPagePause         = 200 * time.Millisecond
	DefaultIncrementalWindow = 7 * 24 * time.Hour
	maxSampledErrors         = 10

	// maxConsecutivePageFailures bounds the page loop when storage fails
	// persistently after the pre-run probe passed. The run ends partial
	// instead of spinning offsets forever.
	maxConsecutivePageFailures = 3
)

// ContentStore is the document-storage contract the recomputer consumes.
type ContentStore interface {
	// Ping is the lightweight connectivity probe gating every run.
	Ping(ctx context.Context) error

	// CountForRecompute returns how many items the run will visit.
	// force selects all non-deleted items; otherwise items touched or
	// recomputed within window, or never scored at all.
	CountForRecompute(ctx context.Context, force bool, window time.Duration) (int, error)

	// FetchRecomputePage returns one page of item snapshots under the
	// same selection, sorted stably so pagination is exhaustive.
	FetchRecomputePage(ctx context.Context, force bool, window time.Duration, offset, limit int) ([]score.Input, error)

	// UpdateHotScore atomically persists one item's recomputed score.
	UpdateHotScore(ctx context.Context, id string, hotScore float64, level score.Level, at time.Time) error
}

// RetryEnqueuer receives items that failed inside a run. Enqueue is
// best-effort; implementations swallow their own transport failures.
type RetryEnqueuer interface {
	EnqueueRetry(ctx context.Context, itemID, lastError, runID string)
}

// Config holds recomputer tuning.
type Config struct {
	// PageSize is the number of items per page. Default: 500.
	PageSize int `koanf:"page_size"`

	// PagePause is the inter-page backpressure pause. Default: 200ms.
	PagePause time.Duration `koanf:"page_pause"`

	// IncrementalWindow selects recently touched items outside force
	// mode. Default: 7 days.
	IncrementalWindow time.Duration `koanf:"incremental_window"`
}

func (c *Config) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PagePause <= 0 {
		c.PagePause = DefaultPagePause
	}
	if c.IncrementalWindow <= 0 {
		c.IncrementalWindow = DefaultIncrementalWindow
	}
}

// RunOptions selects the scope of one run.
type RunOptions struct {
	// Force visits every non-deleted item instead of the incremental set.
	Force bool `json:"force"`

	// PageSize overrides the configured page size when positive.
	PageSize int `json:"pageSize,omitempty"`
}

// RunResult summarizes a completed (or aborted) run.
type RunResult struct {
	RunID        string        `json:"runId"`
	Success      bool          `json:"success"`
	UpdatedCount int           `json:"updatedCount"`
	ErrorCount   int           `json:"errorCount"`
	Errors       []string      `json:"errors,omitempty"` // first few, for diagnostics
	Message      string        `json:"message"`
	Duration     time.Duration `json:"duration"`
}

// Recomputer drives hot-score batch recompute runs.
type Recomputer struct {
	store  ContentStore
	queue  RetryEnqueuer // may be nil
	config Config
	logger zerolog.Logger

	// now is swappable for decay-sensitive tests.
	now func() time.Time
}

// NewRecomputer creates a recomputer. queue may be nil when no retry
// queue is wired.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRecomputer(store ContentStore, queue RetryEnqueuer, cfg Config, logger zerolog.Logger) *Recomputer {
	cfg.applyDefaults()
	return &Recomputer{
		store:  store,
		queue:  queue,
		config: cfg,
		logger: logger.With().Str("component", "batch-recompute").Logger(),
		now:    time.Now,
	}
}

// Run executes one recompute pass. The returned error is non-nil only for
// the hard failures: pre-run health probe or context cancellation.
func (r *Recomputer) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	runID := uuid.NewString()
	start := r.now()
	log := r.logger.With().Str("run_id", runID).Bool("force", opts.Force).Logger()

	// The one hard gate: a run never starts against unreachable storage.
	if err := r.store.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("pre-run health check failed, aborting")
		return nil, fmt.Errorf("content store health check: %w", err)
	}

	pageSize := r.config.PageSize
	if opts.PageSize > 0 {
		pageSize = opts.PageSize
	}

	total, err := r.store.CountForRecompute(ctx, opts.Force, r.config.IncrementalWindow)
	if err != nil {
		// Non-fatal: the page loop discovers the end on its own.
		log.Warn().Err(err).Msg("count query failed, proceeding without total")
		total = -1
	}
	log.Info().Int("total", total).Int("page_size", pageSize).Msg("recompute run starting")

	result := &RunResult{RunID: runID}
	limiter := rate.NewLimiter(rate.Every(r.config.PagePause), 1)

	offset := 0
	pageFailures := 0
	aborted := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run %s canceled at offset %d: %w", runID, offset, err)
		}

		page, err := r.store.FetchRecomputePage(ctx, opts.Force, r.config.IncrementalWindow, offset, pageSize)
		if err != nil {
			// Page-level isolation: log with bounds, skip ahead.
			log.Error().Err(err).Int("offset", offset).Int("limit", pageSize).
				Msg("page query failed, skipping page")
			result.ErrorCount++
			r.sampleError(result, fmt.Sprintf("page offset=%d: %v", offset, err))
			pageFailures++
			if pageFailures >= maxConsecutivePageFailures {
				aborted = fmt.Sprintf("aborted after %d consecutive page failures", pageFailures)
				log.Error().Int("failures", pageFailures).Msg("persistent page failures, ending run early")
				break
			}
			offset += pageSize
			if total >= 0 && offset >= total {
				break
			}
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("run %s canceled between pages: %w", runID, err)
			}
			continue
		}
		pageFailures = 0
		if len(page) == 0 {
			break
		}

		for _, item := range page {
			if err := r.processItem(ctx, item); err != nil {
				result.ErrorCount++
				r.sampleError(result, fmt.Sprintf("item %s: %v", item.ID, err))
				metrics.BatchItemErrors.Inc()
				log.Warn().Err(err).Str("item_id", item.ID).Msg("item recompute failed")
				if r.queue != nil {
					r.queue.EnqueueRetry(ctx, item.ID, err.Error(), runID)
				}
				continue
			}
			result.UpdatedCount++
			metrics.BatchItemsUpdated.Inc()
		}

		offset += len(page)
		if len(page) < pageSize {
			break
		}

		// Deliberate backpressure between pages.
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("run %s canceled between pages: %w", runID, err)
		}
	}

	result.Success = aborted == ""
	result.Duration = r.now().Sub(start)
	result.Message = fmt.Sprintf("recomputed %d items, %d errors in %s",
		result.UpdatedCount, result.ErrorCount, result.Duration.Round(time.Millisecond))
	if aborted != "" {
		result.Message = aborted + "; " + result.Message
	}
	metrics.BatchRunDuration.Observe(result.Duration.Seconds())

	log.Info().Int("updated", result.UpdatedCount).Int("errors", result.ErrorCount).
		Dur("duration", result.Duration).Msg("recompute run finished")
	return result, nil
}

// processItem validates, scores, and persists one snapshot.
func (r *Recomputer) processItem(ctx context.Context, item score.Input) error {
	if err := score.Validate(item); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	now := r.now()
	s := score.HotScore(item, now)
	if err := r.store.UpdateHotScore(ctx, item.ID, s, score.HotLevel(s), now); err != nil {
		return fmt.Errorf("persist score: %w", err)
	}
	return nil
}

// sampleError keeps the first few errors for the run summary.
func (r *Recomputer) sampleError(result *RunResult, msg string) {
	if len(result.Errors) < maxSampledErrors {
		result.Errors = append(result.Errors, msg)
	}
}
