// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

// Package api provides the operator HTTP surface: channel CRUD, playback
// queries, the engine webhook, and engine passthrough endpoints. It is a
// thin facade over the registry, catalog, resolver, and policy engine
// and carries no business logic of its own.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/nanonvr/internal/catalog"
	"github.com/tomtom215/nanonvr/internal/config"
	"github.com/tomtom215/nanonvr/internal/engine"
	"github.com/tomtom215/nanonvr/internal/ingest"
	"github.com/tomtom215/nanonvr/internal/logging"
	"github.com/tomtom215/nanonvr/internal/models"
	"github.com/tomtom215/nanonvr/internal/playback"
	"github.com/tomtom215/nanonvr/internal/policy"
	"github.com/tomtom215/nanonvr/internal/registry"
	"github.com/tomtom215/nanonvr/internal/websocket"
)

// Handler bundles the operator API dependencies.
type Handler struct {
	cfg      *config.Config
	registry *registry.Registry
	catalog  *catalog.Catalog
	resolver *playback.Resolver
	facade   *engine.Client
	policy   *policy.Engine
	gateway  *ingest.Gateway
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
}

// NewHandler wires the handler to its collaborators.
func NewHandler(
	cfg *config.Config,
	reg *registry.Registry,
	cat *catalog.Catalog,
	resolver *playback.Resolver,
	facade *engine.Client,
	pol *policy.Engine,
	gateway *ingest.Gateway,
	hub *websocket.Hub,
) *Handler {
	return &Handler{
		cfg:      cfg,
		registry: reg,
		catalog:  cat,
		resolver: resolver,
		facade:   facade,
		policy:   pol,
		gateway:  gateway,
		hub:      hub,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ListChannels handles GET /api/v1/channels.
func (h *Handler) ListChannels(w http.ResponseWriter, _ *http.Request) {
	started := time.Now()
	respondJSON(w, http.StatusOK, h.registry.List(), started)
}

// GetChannel handles GET /api/v1/channels/{id}.
func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ch, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "channel not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, ch, started)
}

// UpsertChannel handles PUT /api/v1/channels/{id}. Creating an enabled
// channel with a source URL makes the policy engine pull it on its next
// evaluation; no inline engine call happens here.
func (h *Handler) UpsertChannel(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	id := chi.URLParam(r, "id")

	var cfg models.ChannelConfig
	if err := decodeJSON(r, &cfg); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "could not decode channel config", err)
		return
	}
	cfg.ID = id

	ch, err := h.registry.UpsertConfig(r.Context(), cfg)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_CONFIG", err.Error(), err)
		return
	}
	respondJSON(w, http.StatusOK, ch, started)
}

// DeleteChannel handles DELETE /api/v1/channels/{id}. Catalog entries
// are removed logically; recording files stay on disk. The engine-side
// proxy is torn down best effort.
func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	id := chi.URLParam(r, "id")

	ch, err := h.registry.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "channel not found", nil)
		return
	}

	if err := h.registry.Delete(r.Context(), id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "channel not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "DELETE_FAILED", "failed to delete channel", err)
		return
	}

	dropped, err := h.catalog.DropChannel(r.Context(), id)
	if err != nil {
		logging.Error().Err(err).Str("channel", id).Msg("failed to drop catalog entries for deleted channel")
	}

	if ch.Config.SourceURL != "" {
		if err := h.facade.CloseStreams(r.Context(), ch.EngineApp(), ch.EngineStream()); err != nil {
			logging.Warn().Err(err).Str("channel", id).Msg("failed to close engine streams for deleted channel")
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deleted":          id,
		"segments_dropped": len(dropped),
	}, started)
}

// Motion handles POST /api/v1/channels/{id}/motion, the external
// motion-detector input. Each call extends the channel's motion hold.
func (h *Handler) Motion(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	id := chi.URLParam(r, "id")

	if _, err := h.registry.Get(id); err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "channel not found", nil)
		return
	}

	h.policy.Motion(id)
	respondJSON(w, http.StatusOK, map[string]string{"channel": id, "motion": "registered"}, started)
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	started := time.Now()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"channels": len(h.registry.List()),
	}, started)
}

// WebSocket handles GET /api/v1/ws, upgrading to the live update feed.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	websocket.NewClient(h.hub, conn).Start()
}
