// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/nanonvr/internal/engine"
	"github.com/tomtom215/nanonvr/internal/metrics"
	"github.com/tomtom215/nanonvr/internal/models"
)

// EngineHook handles POST /api/v1/engine/hooks, the media engine's
// webhook. The engine retries on non-2xx, so only transport-level
// publish failures return 5xx; a malformed payload is acknowledged with
// 400 and will be dropped the same way on any retry.
func (h *Handler) EngineHook(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	if token := h.cfg.Engine.WebhookToken; token != "" {
		got := r.Header.Get("X-Engine-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			respondError(w, http.StatusUnauthorized, "BAD_TOKEN", "invalid webhook token", nil)
			return
		}
	}

	var hook models.EngineHook
	if err := decodeJSON(r, &hook); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "could not decode hook payload", err)
		return
	}

	if err := h.gateway.Publish(&hook); err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			metrics.EventsMalformed.Inc()
			respondError(w, http.StatusBadRequest, "MALFORMED_EVENT", vErr.Error(), vErr)
			return
		}
		respondError(w, http.StatusServiceUnavailable, "PUBLISH_FAILED", "event could not be queued", err)
		return
	}

	// ZLMediaKit inspects "code" in hook responses.
	respondJSON(w, http.StatusOK, map[string]int{"code": 0}, started)
}

// EngineStats handles GET /api/v1/engine/stats.
func (h *Handler) EngineStats(w http.ResponseWriter, r *http.Request) {
	h.enginePassthrough(w, r, func() (json.RawMessage, error) {
		return h.facade.Statistic(r.Context())
	})
}

// EngineThreads handles GET /api/v1/engine/threads.
func (h *Handler) EngineThreads(w http.ResponseWriter, r *http.Request) {
	h.enginePassthrough(w, r, func() (json.RawMessage, error) {
		return h.facade.WorkThreadsLoad(r.Context())
	})
}

// EngineConfig handles GET /api/v1/engine/config.
func (h *Handler) EngineConfig(w http.ResponseWriter, r *http.Request) {
	h.enginePassthrough(w, r, func() (json.RawMessage, error) {
		return h.facade.ServerConfig(r.Context())
	})
}

// SetEngineConfig handles POST /api/v1/engine/config with a flat map of
// engine configuration keys.
func (h *Handler) SetEngineConfig(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var settings map[string]string
	if err := decodeJSON(r, &settings); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "could not decode settings", err)
		return
	}
	if len(settings) == 0 {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "no settings supplied", nil)
		return
	}

	if err := h.facade.SetServerConfig(r.Context(), settings); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"applied": len(settings)}, started)
}

func (h *Handler) enginePassthrough(w http.ResponseWriter, _ *http.Request, fetch func() (json.RawMessage, error)) {
	started := time.Now()
	data, err := fetch()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, data, started)
}

func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrEngineRejected):
		respondError(w, http.StatusBadGateway, "ENGINE_REJECTED", err.Error(), nil)
	case errors.Is(err, engine.ErrEngineUnavailable):
		respondError(w, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", "media engine unreachable", err)
	default:
		respondError(w, http.StatusInternalServerError, "ENGINE_ERROR", "engine call failed", err)
	}
}
