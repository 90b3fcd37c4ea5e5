// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

// Package config holds all application configuration, loaded in layers:
// built-in defaults, then an optional YAML config file, then environment
// variables. Config is immutable after Load and safe for concurrent reads.
package config

import "time"

// Config is the root configuration for the NanoNVR server.
type Config struct {
	Engine    EngineConfig    `koanf:"engine"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	NATS      NATSConfig      `koanf:"nats"`
	Dedupe    DedupeConfig    `koanf:"dedupe"`
	Recording RecordingConfig `koanf:"recording"`
	Retention RetentionConfig `koanf:"retention"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// EngineConfig holds the ZLMediaKit control API connection settings.
//
// Environment variables:
//   - ENGINE_URL: control API base URL (e.g. http://127.0.0.1:8080)
//   - ENGINE_SECRET: the api secret from the engine's config.ini
//   - ENGINE_WEBHOOK_TOKEN: optional shared token checked on inbound hooks
type EngineConfig struct {
	URL          string        `koanf:"url" validate:"required,url"`
	Secret       string        `koanf:"secret" validate:"required"`
	Vhost        string        `koanf:"vhost"`
	Timeout      time.Duration `koanf:"timeout"`
	WebhookToken string        `koanf:"webhook_token"`

	// RequestsPerSecond caps outbound control calls; 0 disables the limiter.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// Circuit breaker thresholds for the control client.
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

// ServerConfig holds the operator HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// DatabaseConfig holds DuckDB settings for channel and segment persistence.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// NATSConfig configures the ingest pipeline (Watermill over NATS JetStream).
type NATSConfig struct {
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	StreamName      string        `koanf:"stream_name"`
	StreamMaxAge    time.Duration `koanf:"stream_max_age"`
	DuplicateWindow time.Duration `koanf:"duplicate_window"`

	DurableName      string        `koanf:"durable_name"`
	QueueGroup       string        `koanf:"queue_group"`
	SubscribersCount int           `koanf:"subscribers_count"`
	AckWaitTimeout   time.Duration `koanf:"ack_wait_timeout"`
	MaxDeliver       int           `koanf:"max_deliver"`
	MaxAckPending    int           `koanf:"max_ack_pending"`
	MaxReconnects    int           `koanf:"max_reconnects"`
	ReconnectWait    time.Duration `koanf:"reconnect_wait"`

	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterRetryMaxInterval     time.Duration `koanf:"router_retry_max_interval"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
	PoisonQueueTopic           string        `koanf:"poison_queue_topic"`
}

// DedupeConfig configures the durable idempotency index (BadgerDB).
type DedupeConfig struct {
	Path string        `koanf:"path" validate:"required"`
	TTL  time.Duration `koanf:"ttl"`
}

// RecordingConfig tunes the recording policy engine.
type RecordingConfig struct {
	// TickInterval is the schedule re-evaluation period.
	TickInterval time.Duration `koanf:"tick_interval"`

	// MotionHold keeps motion-triggered recording intent active after the
	// last motion signal.
	MotionHold time.Duration `koanf:"motion_hold"`

	// Command retry bounds toward the engine.
	MaxAttempts          int           `koanf:"max_attempts" validate:"min=1"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval"`

	// SegmentSeconds is passed to the engine as the mp4 slice length.
	SegmentSeconds int `koanf:"segment_seconds"`
}

// RetentionConfig tunes the segment retention sweeper.
type RetentionConfig struct {
	Enabled bool `koanf:"enabled"`

	// Interval between sweeps; the original ran hourly.
	Interval time.Duration `koanf:"interval"`

	// KeepSegments is the number of newest segments kept per channel.
	KeepSegments int `koanf:"keep_segments"`

	// DeleteFiles removes the underlying recording files as well as the
	// catalog rows.
	DeleteFiles bool `koanf:"delete_files"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}
