// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

// Command server runs the Emberfeed caching and recommendation-refresh
// backend: the versioned cache in front of the document store, the
// smart invalidator, the scheduled hot-score and recommendation jobs,
// the retry queue and the ops HTTP API, all under one supervision tree.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/emberfeed/emberfeed/internal/api"
	"github.com/emberfeed/emberfeed/internal/batch"
	"github.com/emberfeed/emberfeed/internal/cache"
	"github.com/emberfeed/emberfeed/internal/config"
	"github.com/emberfeed/emberfeed/internal/invalidate"
	"github.com/emberfeed/emberfeed/internal/jobs"
	"github.com/emberfeed/emberfeed/internal/kvstore"
	"github.com/emberfeed/emberfeed/internal/logging"
	"github.com/emberfeed/emberfeed/internal/recommend"
	"github.com/emberfeed/emberfeed/internal/retry"
	"github.com/emberfeed/emberfeed/internal/storage"
	"github.com/emberfeed/emberfeed/internal/supervisor"
	"github.com/emberfeed/emberfeed/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(cfg.Log)
	logging.Info().
		Str("listen", cfg.Server.Addr()).
		Str("kv_dir", cfg.KV.Dir).
		Str("db_path", cfg.Database.Path).
		Str("queue_transport", cfg.Queue.Transport).
		Msg("starting emberfeed")

	logger := logging.Logger()

	// Cache backing store.
	kv, err := kvstore.OpenBadger(cfg.KV, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open kv store")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing kv store")
		}
	}()

	// Document store.
	store, err := storage.Open(cfg.Database, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open document store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing document store")
		}
	}()

	// Cache facade stack.
	versions := version.NewStore(kv, logger)
	monitor := cache.NewMonitor(cfg.Cache.PruneWindow, logger)
	monitor.SetEnabled(cfg.Cache.MonitorEnabled)
	facade := cache.NewFacade(kv, versions, monitor, cfg.Cache.Breaker, logger)
	invalidator := invalidate.New(facade, logger)

	// Retry transport and queue.
	transport, err := newTransport(cfg.Queue)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to start retry transport")
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing retry transport")
		}
	}()

	queue, err := retry.NewQueue(transport.Publisher, transport.Subscriber, store, cfg.Queue.Retry, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to build retry queue")
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing retry queue")
		}
	}()

	// Batch recompute and recommendation refreshers.
	recomputer := batch.NewRecomputer(store, queue, cfg.Batch, logger)
	refresher := recommend.NewRefresher(store, facade, cfg.Recommend, logger)

	orchestrator := jobs.NewOrchestrator(cfg.Location(), logger)
	if err := registerJobs(orchestrator, cfg.Jobs, recomputer, refresher, invalidator); err != nil {
		logging.Fatal().Err(err).Msg("failed to register jobs")
	}

	// Ops HTTP surface.
	router := api.NewRouter(facade, invalidator, orchestrator, logger)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logger, supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddWorkerService(queue)
	tree.AddWorkerService(orchestrator)
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("supervision tree running")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervision tree exited")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop in time")
		}
	}
	logging.Info().Msg("shutdown complete")
}

func newTransport(cfg config.QueueConfig) (*retry.Transport, error) {
	if cfg.Transport == "nats" {
		return retry.NewNATSTransport(cfg.NATS)
	}
	return retry.NewChannelTransport(), nil
}
