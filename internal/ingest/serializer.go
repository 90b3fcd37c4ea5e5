// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package ingest

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/nanonvr/internal/models"
)

// MarshalEvent encodes a lifecycle event for transport.
func MarshalEvent(ev *models.LifecycleEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal lifecycle event: %w", err)
	}
	return payload, nil
}

// UnmarshalEvent decodes and validates a transported lifecycle event.
// A decode or validation failure means the payload is malformed; callers
// drop it rather than retry, since redelivery cannot fix the payload.
func UnmarshalEvent(payload []byte) (*models.LifecycleEvent, error) {
	var ev models.LifecycleEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal lifecycle event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}
