// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package main

import (
	"context"

	"github.com/emberfeed/emberfeed/internal/batch"
	"github.com/emberfeed/emberfeed/internal/config"
	"github.com/emberfeed/emberfeed/internal/invalidate"
	"github.com/emberfeed/emberfeed/internal/jobs"
	"github.com/emberfeed/emberfeed/internal/recommend"
)

// Job names, also the path segments of the jobs API.
const (
	jobHotScore      = "hot-score-recompute"
	jobContentBased  = "content-based-refresh"
	jobCollaborative = "collaborative-refresh"
	jobSocial        = "social-collaborative-refresh"
)

func registerJobs(orch *jobs.Orchestrator, cfg config.JobsConfig, recomputer *batch.Recomputer, refresher *recommend.Refresher, inv *invalidate.Invalidator) error {
	register := []struct {
		desc jobs.Descriptor
		fn   jobs.Func
	}{
		{
			desc: jobs.Descriptor{
				Name:    jobHotScore,
				Expr:    cfg.HotScore.Expr,
				Enabled: cfg.HotScore.Enabled,
			},
			fn: hotScoreJob(recomputer, inv),
		},
		{
			desc: jobs.Descriptor{
				Name:    jobContentBased,
				Expr:    cfg.ContentBased.Expr,
				Enabled: cfg.ContentBased.Enabled,
			},
			fn: refreshJob(refresher.RefreshContentBased),
		},
		{
			desc: jobs.Descriptor{
				Name:    jobCollaborative,
				Expr:    cfg.Collaborative.Expr,
				Enabled: cfg.Collaborative.Enabled,
			},
			fn: refreshJob(refresher.RefreshCollaborative),
		},
		{
			desc: jobs.Descriptor{
				Name:    jobSocial,
				Expr:    cfg.Social.Expr,
				Enabled: cfg.Social.Enabled,
			},
			fn: refreshJob(refresher.RefreshSocial),
		},
	}

	for _, r := range register {
		if err := orch.Register(r.desc, r.fn); err != nil {
			return err
		}
	}
	return nil
}

// hotScoreJob runs a recompute pass and then drops the feed families
// the fresh scores make stale.
func hotScoreJob(recomputer *batch.Recomputer, inv *invalidate.Invalidator) jobs.Func {
	return func(ctx context.Context, cfg map[string]any) (*jobs.Result, error) {
		opts := batch.RunOptions{
			Force:    boolOption(cfg, "force"),
			PageSize: intOption(cfg, "page_size"),
		}

		result, err := recomputer.Run(ctx, opts)
		if err != nil {
			return nil, err
		}

		if result.Success && result.UpdatedCount > 0 {
			call := inv.Begin(invalidate.CallOptions{})
			call.InvalidatePattern(ctx, invalidate.PatternHotFeed)
			call.InvalidatePattern(ctx, invalidate.PatternUpdatedFeed)
			call.InvalidatePattern(ctx, invalidate.PatternGlobalStats)
		}

		return &jobs.Result{
			Success: result.Success,
			Message: result.Message,
			Details: result,
		}, nil
	}
}

func refreshJob(run func(context.Context) (*recommend.RunStats, error)) jobs.Func {
	return func(ctx context.Context, _ map[string]any) (*jobs.Result, error) {
		stats, err := run(ctx)
		if err != nil {
			return nil, err
		}
		return &jobs.Result{
			Success: stats.Errors == 0,
			Message: "refresh finished",
			Details: stats,
		}, nil
	}
}

// boolOption and intOption read override values that arrive as JSON,
// where numbers decode as float64.
func boolOption(cfg map[string]any, key string) bool {
	v, ok := cfg[key].(bool)
	return ok && v
}

func intOption(cfg map[string]any, key string) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
