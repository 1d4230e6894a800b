// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestOrchestrator() *Orchestrator {
	return NewOrchestrator(time.UTC, zerolog.Nop())
}

func okJob(context.Context, map[string]any) (*Result, error) {
	return &Result{Success: true, Message: "ok"}, nil
}

func TestRegisterRejectsDuplicatesAndBadExpressions(t *testing.T) {
	o := newTestOrchestrator()

	desc := Descriptor{Name: "recompute", Expr: "0 * * * *", Enabled: true}
	if err := o.Register(desc, okJob); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := o.Register(desc, okJob); err == nil {
		t.Error("duplicate name must be rejected")
	}
	if err := o.Register(Descriptor{Name: "bad", Expr: "not cron"}, okJob); err == nil {
		t.Error("unparsable expression must be rejected")
	}

	o.Start()
	defer o.Stop()
	if err := o.Register(Descriptor{Name: "late", Expr: "0 * * * *"}, okJob); err == nil {
		t.Error("registration after start must be rejected")
	}
}

func TestRunNowUnknownJob(t *testing.T) {
	o := newTestOrchestrator()
	if _, err := o.RunNow(context.Background(), "nope", nil); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("err = %v, want ErrUnknownJob", err)
	}
}

func TestRunNowIgnoresDisabledFlag(t *testing.T) {
	o := newTestOrchestrator()
	ran := false
	err := o.Register(Descriptor{Name: "recompute", Expr: "0 2 * * *", Enabled: false},
		func(context.Context, map[string]any) (*Result, error) {
			ran = true
			return &Result{Success: true}, nil
		})
	if err != nil {
		t.Fatal(err)
	}

	res, err := o.RunNow(context.Background(), "recompute", nil)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if !ran || !res.Success {
		t.Error("manual trigger must run a disabled job")
	}
}

func TestRunNowRejectsOverlap(t *testing.T) {
	o := newTestOrchestrator()
	entered := make(chan struct{})
	release := make(chan struct{})
	var enterOnce sync.Once
	err := o.Register(Descriptor{Name: "slow", Expr: "0 * * * *"},
		func(context.Context, map[string]any) (*Result, error) {
			enterOnce.Do(func() { close(entered) })
			<-release
			return &Result{Success: true}, nil
		})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := o.RunNow(context.Background(), "slow", nil); err != nil {
			t.Errorf("first run: %v", err)
		}
	}()

	<-entered
	if _, err := o.RunNow(context.Background(), "slow", nil); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("err = %v, want ErrAlreadyRunning", err)
	}
	close(release)
	<-done

	// The guard resets once the run finishes.
	if _, err := o.RunNow(context.Background(), "slow", nil); err != nil {
		t.Errorf("run after completion: %v", err)
	}
}

func TestRunNowMergesOverrideConfig(t *testing.T) {
	o := newTestOrchestrator()
	var seen map[string]any
	err := o.Register(
		Descriptor{Name: "recompute", Expr: "0 * * * *", Config: map[string]any{"force": false, "pageSize": 100}},
		func(_ context.Context, cfg map[string]any) (*Result, error) {
			seen = cfg
			return &Result{Success: true}, nil
		})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := o.RunNow(context.Background(), "recompute", map[string]any{"force": true}); err != nil {
		t.Fatal(err)
	}
	if seen["force"] != true {
		t.Errorf("override not applied: %v", seen)
	}
	if seen["pageSize"] != 100 {
		t.Errorf("base config lost: %v", seen)
	}

	// The override is for one run only.
	if _, err := o.RunNow(context.Background(), "recompute", nil); err != nil {
		t.Fatal(err)
	}
	if seen["force"] != false {
		t.Errorf("override leaked into later run: %v", seen)
	}
}

func TestLastRunRecordsOutcome(t *testing.T) {
	o := newTestOrchestrator()
	jobErr := errors.New("storage down")
	calls := 0
	err := o.Register(Descriptor{Name: "flaky", Expr: "0 * * * *"},
		func(context.Context, map[string]any) (*Result, error) {
			calls++
			if calls == 1 {
				return nil, jobErr
			}
			return &Result{Success: true, Message: "recovered"}, nil
		})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := o.RunNow(context.Background(), "flaky", nil); !errors.Is(err, jobErr) {
		t.Fatalf("err = %v, want job error", err)
	}
	st, err := o.JobStatus("flaky")
	if err != nil {
		t.Fatal(err)
	}
	if st.LastRun == nil || st.LastRun.Success || st.LastRun.Error == "" {
		t.Errorf("LastRun after failure = %+v", st.LastRun)
	}
	if !st.LastRun.Manual {
		t.Error("manual run must be marked manual")
	}

	if _, err := o.RunNow(context.Background(), "flaky", nil); err != nil {
		t.Fatal(err)
	}
	st, _ = o.JobStatus("flaky")
	if st.LastRun == nil || !st.LastRun.Success || st.LastRun.Message != "recovered" {
		t.Errorf("LastRun after success = %+v", st.LastRun)
	}
}

func TestUpdateJob(t *testing.T) {
	o := newTestOrchestrator()
	err := o.Register(Descriptor{Name: "recompute", Expr: "0 * * * *", Enabled: true,
		Config: map[string]any{"pageSize": 100}}, okJob)
	if err != nil {
		t.Fatal(err)
	}

	expr := "0 3 * * *"
	enabled := false
	err = o.UpdateJob("recompute", Update{
		Expr:    &expr,
		Enabled: &enabled,
		Config:  map[string]any{"pageSize": 250, "force": true},
	})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	st, err := o.JobStatus("recompute")
	if err != nil {
		t.Fatal(err)
	}
	if st.Expr != expr {
		t.Errorf("Expr = %q, want %q", st.Expr, expr)
	}
	if st.Enabled {
		t.Error("Enabled should be false")
	}
	if st.Config["pageSize"] != 250 || st.Config["force"] != true {
		t.Errorf("Config = %v", st.Config)
	}

	bad := "nope"
	if err := o.UpdateJob("recompute", Update{Expr: &bad}); err == nil {
		t.Error("bad expression must be rejected")
	}
	if err := o.UpdateJob("ghost", Update{}); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("err = %v, want ErrUnknownJob", err)
	}
}

func TestStatusesConfigIsASnapshot(t *testing.T) {
	o := newTestOrchestrator()
	err := o.Register(Descriptor{
		Name: "recompute", Expr: "0 * * * *", Enabled: true,
		Config: map[string]any{"pageSize": 100},
	}, okJob)
	if err != nil {
		t.Fatal(err)
	}

	before := o.Statuses()
	if err := o.UpdateJob("recompute", Update{Config: map[string]any{"pageSize": 25}}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if got := before[0].Config["pageSize"]; got != 100 {
		t.Errorf("earlier snapshot mutated by UpdateJob: pageSize = %v, want 100", got)
	}

	// Writes through a snapshot must not reach the live configuration.
	before[0].Config["pageSize"] = -1
	if got := o.Statuses()[0].Config["pageSize"]; got != 25 {
		t.Errorf("live config polluted through snapshot: pageSize = %v, want 25", got)
	}
}

func TestStatusesOrderAndNextRun(t *testing.T) {
	o := newTestOrchestrator()
	for _, name := range []string{"zeta", "alpha"} {
		if err := o.Register(Descriptor{Name: name, Expr: "0 * * * *", Enabled: true}, okJob); err != nil {
			t.Fatal(err)
		}
	}

	statuses := o.Statuses()
	if len(statuses) != 2 || statuses[0].Name != "zeta" || statuses[1].Name != "alpha" {
		t.Errorf("Statuses order = %v, want registration order", statuses)
	}
	if statuses[0].NextRun != nil {
		t.Error("NextRun must be empty before Start")
	}

	o.Start()
	defer o.Stop()
	statuses = o.Statuses()
	if statuses[0].NextRun == nil {
		t.Error("NextRun must be set for an enabled job after Start")
	}

	names := o.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("Names = %v, want sorted", names)
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	o := newTestOrchestrator()
	if err := o.Register(Descriptor{Name: "recompute", Expr: "0 * * * *", Enabled: true}, okJob); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
