// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package jobs

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/emberfeed/emberfeed/internal/metrics"
)

var (
	// ErrUnknownJob is returned for a job name that was never registered.
	ErrUnknownJob = errors.New("jobs: unknown job")

	// ErrAlreadyRunning is returned when a run is requested for a job
	// whose previous run has not finished.
	ErrAlreadyRunning = errors.New("jobs: job already running")
)

// Result is what a job reports back after a run.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Func is the body of a job. cfg is the job's live configuration merged
// with any per-run override.
type Func func(ctx context.Context, cfg map[string]any) (*Result, error)

// Descriptor declares one scheduled job.
type Descriptor struct {
	Name    string
	Expr    string
	Enabled bool
	Config  map[string]any
}

// LastRun records the outcome of a job's most recent execution.
type LastRun struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Manual    bool          `json:"manual"`
}

// Status is the externally visible state of one job.
type Status struct {
	Name    string         `json:"name"`
	Expr    string         `json:"expr"`
	Enabled bool           `json:"enabled"`
	Running bool           `json:"running"`
	NextRun *time.Time     `json:"next_run,omitempty"`
	LastRun *LastRun       `json:"last_run,omitempty"`
	Config  map[string]any `json:"config,omitempty"`
}

// Update is a partial change applied to a registered job. Nil fields are
// left untouched; Config entries are merged key by key into the job's
// live configuration.
type Update struct {
	Expr    *string        `json:"expr,omitempty"`
	Enabled *bool          `json:"enabled,omitempty"`
	Config  map[string]any `json:"config,omitempty"`
}

type jobState struct {
	desc     Descriptor
	schedule *Schedule
	fn       Func
	handle   *Handle
	running  atomic.Bool

	mu      sync.Mutex
	lastRun *LastRun
}

// Orchestrator owns the job registry and their cron timelines. Each job
// runs on its own schedule; a single job never overlaps itself, and a
// manual trigger goes through the exact same execution path as a
// scheduled one.
type Orchestrator struct {
	mu      sync.Mutex
	jobs    map[string]*jobState
	order   []string
	loc     *time.Location
	logger  zerolog.Logger
	started bool
}

// NewOrchestrator creates an orchestrator whose schedules are evaluated
// in loc (UTC when nil).
func NewOrchestrator(loc *time.Location, logger zerolog.Logger) *Orchestrator {
	if loc == nil {
		loc = time.UTC
	}
	return &Orchestrator{
		jobs:   make(map[string]*jobState),
		loc:    loc,
		logger: logger.With().Str("component", "jobs").Logger(),
	}
}

// Register adds a job. Must be called before Start; duplicate names and
// unparsable expressions are rejected.
func (o *Orchestrator) Register(desc Descriptor, fn Func) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return fmt.Errorf("jobs: register %q after start", desc.Name)
	}
	if _, dup := o.jobs[desc.Name]; dup {
		return fmt.Errorf("jobs: duplicate job %q", desc.Name)
	}
	sched, err := ParseSchedule(desc.Expr)
	if err != nil {
		return fmt.Errorf("jobs: job %q: %w", desc.Name, err)
	}
	if desc.Config == nil {
		desc.Config = make(map[string]any)
	}

	o.jobs[desc.Name] = &jobState{desc: desc, schedule: sched, fn: fn}
	o.order = append(o.order, desc.Name)
	return nil
}

// Start arms the cron timelines for every enabled job. Idempotent.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return
	}
	o.started = true

	for _, name := range o.order {
		st := o.jobs[name]
		if st.desc.Enabled {
			o.armLocked(st)
		}
		o.logger.Info().
			Str("job", name).
			Str("expr", st.desc.Expr).
			Bool("enabled", st.desc.Enabled).
			Msg("job registered")
	}
}

// armLocked starts the cron handle for st. Caller holds o.mu.
func (o *Orchestrator) armLocked(st *jobState) {
	name := st.desc.Name
	st.handle = st.schedule.Start(o.loc, func(time.Time) {
		if _, err := o.execute(context.Background(), st, nil, false); err != nil {
			if errors.Is(err, ErrAlreadyRunning) {
				o.logger.Warn().Str("job", name).Msg("scheduled run skipped, previous run still in progress")
				return
			}
			o.logger.Error().Err(err).Str("job", name).Msg("scheduled run failed")
		}
	})
}

// Stop tears down all cron timelines. Runs already in flight finish on
// their own. Idempotent.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return
	}
	o.started = false

	for _, st := range o.jobs {
		if st.handle != nil {
			st.handle.Stop()
			st.handle = nil
		}
	}
	o.logger.Info().Msg("job scheduler stopped")
}

// Serve runs the orchestrator under a supervision tree: starts the
// schedules, blocks until ctx is cancelled, then stops them.
func (o *Orchestrator) Serve(ctx context.Context) error {
	o.Start()
	<-ctx.Done()
	o.Stop()
	return ctx.Err()
}

// RunNow triggers a job immediately, regardless of its enabled flag.
// override entries shadow the job's configuration for this run only.
// Returns ErrAlreadyRunning when the job is mid-run.
func (o *Orchestrator) RunNow(ctx context.Context, name string, override map[string]any) (*Result, error) {
	o.mu.Lock()
	st, ok := o.jobs[name]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return o.execute(ctx, st, override, true)
}

// execute is the single run path for scheduled and manual triggers.
func (o *Orchestrator) execute(ctx context.Context, st *jobState, override map[string]any, manual bool) (*Result, error) {
	name := st.desc.Name
	if !st.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyRunning, name)
	}
	defer st.running.Store(false)

	o.mu.Lock()
	cfg := make(map[string]any, len(st.desc.Config)+len(override))
	for k, v := range st.desc.Config {
		cfg[k] = v
	}
	o.mu.Unlock()
	for k, v := range override {
		cfg[k] = v
	}

	start := time.Now()
	o.logger.Info().Str("job", name).Bool("manual", manual).Msg("job run started")

	res, err := st.fn(ctx, cfg)
	elapsed := time.Since(start)

	last := &LastRun{
		StartedAt: start,
		Duration:  elapsed,
		Manual:    manual,
	}
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
		last.Error = err.Error()
		o.logger.Error().Err(err).Str("job", name).Dur("duration", elapsed).Msg("job run failed")
	case res != nil && !res.Success:
		outcome = "failure"
		last.Message = res.Message
		o.logger.Warn().Str("job", name).Str("message", res.Message).Dur("duration", elapsed).Msg("job run unsuccessful")
	default:
		last.Success = true
		if res != nil {
			last.Message = res.Message
		}
		o.logger.Info().Str("job", name).Dur("duration", elapsed).Msg("job run finished")
	}

	st.mu.Lock()
	st.lastRun = last
	st.mu.Unlock()

	metrics.JobRuns.WithLabelValues(name, outcome).Inc()
	metrics.JobDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	return res, err
}

// UpdateJob applies a partial update to a registered job without a
// restart. Changing the expression or the enabled flag re-arms the
// job's timeline when the orchestrator is running.
func (o *Orchestrator) UpdateJob(name string, upd Update) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}

	if upd.Expr != nil && *upd.Expr != st.desc.Expr {
		sched, err := ParseSchedule(*upd.Expr)
		if err != nil {
			return fmt.Errorf("jobs: job %q: %w", name, err)
		}
		st.desc.Expr = *upd.Expr
		st.schedule = sched
	}
	if upd.Enabled != nil {
		st.desc.Enabled = *upd.Enabled
	}
	for k, v := range upd.Config {
		st.desc.Config[k] = v
	}

	if o.started {
		if st.handle != nil {
			st.handle.Stop()
			st.handle = nil
		}
		if st.desc.Enabled {
			o.armLocked(st)
		}
	}

	o.logger.Info().Str("job", name).Str("expr", st.desc.Expr).Bool("enabled", st.desc.Enabled).Msg("job updated")
	return nil
}

// Statuses returns every job's state in registration order.
func (o *Orchestrator) Statuses() []Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Status, 0, len(o.order))
	now := time.Now()
	for _, name := range o.order {
		st := o.jobs[name]

		// Copied so callers never alias a map UpdateJob may be merging into.
		s := Status{
			Name:    name,
			Expr:    st.desc.Expr,
			Enabled: st.desc.Enabled,
			Running: st.running.Load(),
			Config:  maps.Clone(st.desc.Config),
		}
		if o.started && st.desc.Enabled {
			if next := st.schedule.Next(now, o.loc); !next.IsZero() {
				s.NextRun = &next
			}
		}
		st.mu.Lock()
		s.LastRun = st.lastRun
		st.mu.Unlock()

		out = append(out, s)
	}
	return out
}

// JobStatus returns one job's state.
func (o *Orchestrator) JobStatus(name string) (Status, error) {
	for _, s := range o.Statuses() {
		if s.Name == name {
			return s, nil
		}
	}
	return Status{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
}

// Names returns the registered job names sorted.
func (o *Orchestrator) Names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := append([]string(nil), o.order...)
	sort.Strings(out)
	return out
}
