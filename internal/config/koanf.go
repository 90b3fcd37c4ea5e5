// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/nanonvr/config.yaml",
	"/etc/nanonvr/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults load
// first, then config file, then environment variables.
func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			URL:               "http://127.0.0.1:8080",
			Vhost:             "__defaultVhost__",
			Timeout:           5 * time.Second,
			RequestsPerSecond: 20,
			BreakerFailures:   5,
			BreakerCooldown:   30 * time.Second,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            10801,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Database: DatabaseConfig{
			Path:      "/data/nanonvr.duckdb",
			MaxMemory: "512MB",
			Threads:   0,
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "/data/nats/jetstream",
			MaxMemory:      256 << 20, // 256MB
			MaxStore:       4 << 30,   // 4GB

			StreamName:      "LIFECYCLE",
			StreamMaxAge:    72 * time.Hour,
			DuplicateWindow: 2 * time.Minute,

			DurableName:      "lifecycle-ingest",
			QueueGroup:       "ingestors",
			SubscribersCount: 4,
			AckWaitTimeout:   30 * time.Second,
			MaxDeliver:       5,
			MaxAckPending:    512,
			MaxReconnects:    -1,
			ReconnectWait:    2 * time.Second,

			RouterRetryCount:           3,
			RouterRetryInitialInterval: 100 * time.Millisecond,
			RouterRetryMaxInterval:     10 * time.Second,
			RouterCloseTimeout:         30 * time.Second,
			PoisonQueueTopic:           "dlq.lifecycle",
		},
		Dedupe: DedupeConfig{
			Path: "/data/dedupe",
			TTL:  24 * time.Hour,
		},
		Recording: RecordingConfig{
			TickInterval:         15 * time.Second,
			MotionHold:           30 * time.Second,
			MaxAttempts:          5,
			RetryInitialInterval: time.Second,
			RetryMaxInterval:     time.Minute,
			SegmentSeconds:       1200, // 20 minute slices, 72/day like the classic layout
		},
		Retention: RetentionConfig{
			Enabled:      true,
			Interval:     time.Hour,
			KeepSegments: 72,
			DeleteFiles:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration with layered sources:
//  1. Defaults: built-in values above
//  2. Config file: optional YAML (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment variables: ENGINE_URL -> engine.url, etc.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envTransform maps environment variable names to koanf paths.
// The first underscore separates the section: RETENTION_KEEP_SEGMENTS
// becomes retention.keep_segments.
func envTransform(s string) string {
	s = strings.ToLower(s)
	section, rest, found := strings.Cut(s, "_")
	if !found {
		return ""
	}
	switch section {
	case "engine", "server", "database", "nats", "dedupe", "recording", "retention", "logging":
		return section + "." + rest
	default:
		// Not ours; ignore unrelated environment variables.
		return ""
	}
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
