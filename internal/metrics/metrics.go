// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

// Package metrics provides Prometheus instrumentation for the orchestrator:
// ingest throughput and dedupe hits, registry transition outcomes, catalog
// growth, engine command results, and API latency.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanonvr_events_ingested_total",
			Help: "Lifecycle events applied, by kind",
		},
		[]string{"kind"},
	)

	EventsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nanonvr_events_duplicate_total",
			Help: "Lifecycle events dropped as idempotent redeliveries",
		},
	)

	EventsMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nanonvr_events_malformed_total",
			Help: "Inbound events dropped for schema violations",
		},
	)

	// Registry metrics
	TransitionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanonvr_transitions_rejected_total",
			Help: "Lifecycle transitions rejected by the registry guards",
		},
		[]string{"reason"}, // stale, session_mismatch, invalid
	)

	ChannelsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nanonvr_channels",
			Help: "Channels currently in each lifecycle state",
		},
		[]string{"state"},
	)

	UpdatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nanonvr_registry_updates_dropped_total",
			Help: "State-change notifications dropped on slow watchers",
		},
	)

	// Catalog metrics
	SegmentsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nanonvr_segments_inserted_total",
			Help: "Segments committed to the catalog",
		},
	)

	SegmentsOverlapFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nanonvr_segments_overlap_flagged_total",
			Help: "Segments stored with the overlap review flag",
		},
	)

	SegmentsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nanonvr_segments_deleted_total",
			Help: "Segments removed by retention",
		},
	)

	// Engine command metrics
	EngineCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanonvr_engine_commands_total",
			Help: "Control commands issued to the media engine",
		},
		[]string{"op", "result"}, // result: ok, rejected, unavailable
	)

	CommandRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nanonvr_engine_command_retries_total",
			Help: "Engine command retry attempts",
		},
	)

	// API metrics
	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nanonvr_api_request_duration_seconds",
			Help:    "Operator API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	apiActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nanonvr_api_active_requests",
			Help: "In-flight operator API requests",
		},
	)

	// WebSocket metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nanonvr_websocket_clients",
			Help: "Connected video-wall websocket clients",
		},
	)
)

// RecordAPIRequest records one completed HTTP request.
func RecordAPIRequest(method, path string, status int, duration time.Duration) {
	apiRequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(active bool) {
	if active {
		apiActiveRequests.Inc()
	} else {
		apiActiveRequests.Dec()
	}
}
