// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/nanonvr/internal/config"
	"github.com/tomtom215/nanonvr/internal/middleware"
)

// NewRouter assembles the HTTP surface.
//
// Route groups: /metrics is unthrottled for scrapers; /api/v1/health has
// permissive limits for monitors; /api/v1/engine/hooks takes the engine
// webhook volume, throttled only by the global limit; everything else
// under /api/v1 is the operator API.
func NewRouter(h *Handler, cfg *config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/", h.Health)
	})

	r.Route("/api/v1/engine/hooks", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		r.Post("/", h.EngineHook)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
		r.Use(middleware.PrometheusMetrics)

		r.Get("/channels", h.ListChannels)
		r.Route("/channels/{id}", func(r chi.Router) {
			r.Get("/", h.GetChannel)
			r.Put("/", h.UpsertChannel)
			r.Delete("/", h.DeleteChannel)
			r.Post("/motion", h.Motion)
			r.Get("/playback", h.Playback)
			r.Get("/segments", h.Segments)
		})

		r.Get("/segments/flagged", h.FlaggedSegments)
		r.Get("/recordings/summary", h.RecordingSummaries)

		r.Get("/engine/stats", h.EngineStats)
		r.Get("/engine/threads", h.EngineThreads)
		r.Get("/engine/config", h.EngineConfig)
		r.Post("/engine/config", h.SetEngineConfig)

		r.Get("/ws", h.WebSocket)
	})

	return r
}
