// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks structural constraints (validator tags) plus the
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}

	if c.Recording.RetryInitialInterval > c.Recording.RetryMaxInterval {
		return fmt.Errorf("recording.retry_initial_interval %v exceeds retry_max_interval %v",
			c.Recording.RetryInitialInterval, c.Recording.RetryMaxInterval)
	}
	if c.Retention.Enabled && c.Retention.KeepSegments <= 0 {
		return fmt.Errorf("retention.keep_segments must be positive when retention is enabled")
	}
	if c.NATS.DuplicateWindow <= 0 {
		return fmt.Errorf("nats.duplicate_window must be positive")
	}
	if c.Dedupe.TTL < c.NATS.DuplicateWindow {
		// The badger index is the long-horizon dedupe backstop behind the
		// JetStream duplicate window; a shorter TTL would reopen the gap.
		return fmt.Errorf("dedupe.ttl %v must not be below nats.duplicate_window %v",
			c.Dedupe.TTL, c.NATS.DuplicateWindow)
	}
	return nil
}
