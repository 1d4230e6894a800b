// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

// Package api exposes the operational HTTP surface: health, metrics,
// job control, cache diagnostics and manual invalidation.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/emberfeed/emberfeed/internal/cache"
	"github.com/emberfeed/emberfeed/internal/invalidate"
	"github.com/emberfeed/emberfeed/internal/jobs"
)

// Router bundles the handler dependencies.
type Router struct {
	cache        *cache.Facade
	invalidator  *invalidate.Invalidator
	orchestrator *jobs.Orchestrator
	logger       zerolog.Logger
}

// NewRouter creates the ops router.
func NewRouter(facade *cache.Facade, inv *invalidate.Invalidator, orch *jobs.Orchestrator, logger zerolog.Logger) *Router {
	return &Router{
		cache:        facade,
		invalidator:  inv,
		orchestrator: orch,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

// Handler builds the chi mux.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(rt.requestLogging)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/healthz", rt.handleHealth)
	r.Get("/readyz", rt.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", rt.handleListJobs)
			r.Get("/{name}", rt.handleJobStatus)
			r.Post("/{name}/run", rt.handleRunJob)
			r.Patch("/{name}", rt.handleUpdateJob)
		})
		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", rt.handleCacheStats)
			r.Get("/report", rt.handleCacheReport)
			r.Post("/invalidate", rt.handleInvalidate)
		})
		r.Get("/invalidation/stats", rt.handleInvalidationStats)
	})

	return r
}

// requestLogging logs one line per request after it completes.
func (rt *Router) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		rt.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("request")
	})
}
