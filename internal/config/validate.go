// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks the loaded configuration for values that would only
// fail later at runtime. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q not one of trace, debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q not one of json, console", c.Log.Format))
	}

	if !c.KV.InMemory && c.KV.Dir == "" {
		errs = append(errs, errors.New("kv.dir required unless kv.in_memory is set"))
	}

	if c.Cache.DefaultTTL <= 0 {
		errs = append(errs, errors.New("cache.default_ttl must be positive"))
	}
	if c.Cache.Breaker.ConsecutiveFailures == 0 {
		errs = append(errs, errors.New("cache.breaker.consecutive_failures must be at least 1"))
	}

	switch c.Queue.Transport {
	case "channel":
	case "nats":
		if !c.Queue.NATS.Embedded && c.Queue.NATS.URL == "" {
			errs = append(errs, errors.New("queue.nats.url required when queue.nats.embedded is off"))
		}
	default:
		errs = append(errs, fmt.Errorf("queue.transport %q not one of channel, nats", c.Queue.Transport))
	}
	if c.Queue.Retry.BackoffMultiplier < 1 && c.Queue.Retry.BackoffMultiplier != 0 {
		errs = append(errs, errors.New("queue.retry.backoff_multiplier must be >= 1"))
	}

	if c.Batch.PageSize < 0 {
		errs = append(errs, errors.New("batch.page_size must not be negative"))
	}

	if _, err := time.LoadLocation(c.Jobs.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("jobs.timezone %q: %w", c.Jobs.Timezone, err))
	}
	for name, jc := range map[string]JobConfig{
		"jobs.hot_score":     c.Jobs.HotScore,
		"jobs.content_based": c.Jobs.ContentBased,
		"jobs.collaborative": c.Jobs.Collaborative,
		"jobs.social":        c.Jobs.Social,
	} {
		if jc.Expr == "" {
			errs = append(errs, fmt.Errorf("%s.expr must not be empty", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Location resolves the orchestrator timezone. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Jobs.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
