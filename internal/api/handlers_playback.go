// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// parseWindow extracts the from/to query parameters, RFC 3339. A missing
// window defaults to the last 24 hours.
func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from, to := now.Add(-24*time.Hour), now

	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
	}
	return from, to, nil
}

// Playback handles GET /api/v1/channels/{id}/playback. Returns the
// gap-annotated timeline for the requested window.
func (h *Handler) Playback(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	id := chi.URLParam(r, "id")

	if _, err := h.registry.Get(id); err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "channel not found", nil)
		return
	}

	from, to, err := parseWindow(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_RANGE", "from/to must be RFC 3339 timestamps", err)
		return
	}

	items, err := h.resolver.Resolve(r.Context(), id, from, to)
	if err != nil {
		respondError(w, http.StatusBadRequest, "RESOLVE_FAILED", err.Error(), err)
		return
	}
	respondJSON(w, http.StatusOK, items, started)
}

// Segments handles GET /api/v1/channels/{id}/segments, the raw catalog
// rows for a window without gap resolution.
func (h *Handler) Segments(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	id := chi.URLParam(r, "id")

	if _, err := h.registry.Get(id); err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "channel not found", nil)
		return
	}

	from, to, err := parseWindow(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_RANGE", "from/to must be RFC 3339 timestamps", err)
		return
	}

	segs, err := h.catalog.Query(r.Context(), id, from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_FAILED", "segment query failed", err)
		return
	}
	respondJSON(w, http.StatusOK, segs, started)
}

// FlaggedSegments handles GET /api/v1/segments/flagged, the manual
// review queue of overlap-flagged segments. Optional channel filter.
func (h *Handler) FlaggedSegments(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	segs, err := h.catalog.Flagged(r.Context(), r.URL.Query().Get("channel"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_FAILED", "flagged segment query failed", err)
		return
	}
	respondJSON(w, http.StatusOK, segs, started)
}

// RecordingSummaries handles GET /api/v1/recordings/summary.
func (h *Handler) RecordingSummaries(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	summaries, err := h.catalog.Summaries(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_FAILED", "summary query failed", err)
		return
	}
	respondJSON(w, http.StatusOK, summaries, started)
}
