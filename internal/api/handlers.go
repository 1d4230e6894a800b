// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/emberfeed/emberfeed/internal/invalidate"
	"github.com/emberfeed/emberfeed/internal/jobs"
)

func (rt *Router) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // response write errors are not recoverable
	json.NewEncoder(w).Encode(data)
}

func (rt *Router) writeError(w http.ResponseWriter, status int, err error) {
	rt.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (rt *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	rt.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports cache-boundary health. Degraded is still 200:
// the service serves traffic without its cache.
func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	health := rt.cache.HealthCheck(r.Context())
	rt.writeJSON(w, http.StatusOK, health)
}

func (rt *Router) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	rt.writeJSON(w, http.StatusOK, map[string]any{"jobs": rt.orchestrator.Statuses()})
}

func (rt *Router) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	status, err := rt.orchestrator.JobStatus(name)
	if err != nil {
		rt.writeError(w, http.StatusNotFound, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, status)
}

// handleRunJob triggers a job immediately. The request body may carry a
// config override object applied to this run only.
func (rt *Router) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var override map[string]any
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&override); err != nil {
			rt.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	result, err := rt.orchestrator.RunNow(r.Context(), name, override)
	switch {
	case errors.Is(err, jobs.ErrUnknownJob):
		rt.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, jobs.ErrAlreadyRunning):
		rt.writeError(w, http.StatusConflict, err)
	case err != nil:
		rt.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"result": result,
		})
	default:
		rt.writeJSON(w, http.StatusOK, result)
	}
}

func (rt *Router) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var upd jobs.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		rt.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := rt.orchestrator.UpdateJob(name, upd); err != nil {
		if errors.Is(err, jobs.ErrUnknownJob) {
			rt.writeError(w, http.StatusNotFound, err)
			return
		}
		rt.writeError(w, http.StatusBadRequest, err)
		return
	}

	status, err := rt.orchestrator.JobStatus(name)
	if err != nil {
		rt.writeError(w, http.StatusInternalServerError, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, status)
}

func (rt *Router) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	topN := 20
	if v := r.URL.Query().Get("top"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			topN = n
		}
	}
	rt.writeJSON(w, http.StatusOK, rt.cache.Monitor().Stats(topN))
}

func (rt *Router) handleCacheReport(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // response write errors are not recoverable
	w.Write([]byte(rt.cache.Monitor().PerformanceReport()))
}

// invalidateRequest names a domain operation and its parameters, the
// same shape internal callers build as typed values.
type invalidateRequest struct {
	Operation string          `json:"operation"`
	Params    json.RawMessage `json:"params"`
	Force     bool            `json:"force"`
}

func (rt *Router) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, http.StatusBadRequest, err)
		return
	}

	op, err := invalidate.DecodeOperation(req.Operation, req.Params)
	if err != nil {
		rt.writeError(w, http.StatusBadRequest, err)
		return
	}

	deleted := rt.invalidator.InvalidateByOperation(r.Context(), op, invalidate.CallOptions{
		ForceInvalidate: req.Force,
	})
	rt.writeJSON(w, http.StatusOK, map[string]any{
		"operation":   op.Name(),
		"keysDeleted": deleted,
	})
}

func (rt *Router) handleInvalidationStats(w http.ResponseWriter, _ *http.Request) {
	rt.writeJSON(w, http.StatusOK, rt.invalidator.Stats())
}

func parsePositiveInt(s string) (int, error) {
	var n int
	if err := json.Unmarshal([]byte(s), &n); err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("value must be positive")
	}
	return n, nil
}
