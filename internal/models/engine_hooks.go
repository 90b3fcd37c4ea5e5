// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package models

import (
	"time"
)

// Engine hook names as posted by the media engine's webhook interface.
// These follow the ZLMediaKit hook vocabulary.
const (
	HookPublish       = "on_publish"
	HookUnpublish     = "on_unpublish"
	HookRecordStarted = "on_record_started"
	HookRecordStopped = "on_record_stopped"
	HookRecordMP4     = "on_record_mp4"
)

// EngineHook is the raw webhook payload pushed by the media engine.
//
// Session is the engine's stream session id (new on every publish) and Seq
// the per-session event counter; together they let the registry discard
// duplicate and out-of-order deliveries.
type EngineHook struct {
	Hook      string `json:"hook"`
	ChannelID string `json:"channel_id"`
	Session   string `json:"session"`
	Seq       uint64 `json:"seq"`

	// TS is the engine-reported event time, unix seconds.
	TS int64 `json:"ts"`

	// Recording file fields, set on on_record_mp4 only.
	FilePath  string `json:"file_path,omitempty"`
	StartTime int64  `json:"start_time,omitempty"` // unix seconds
	TimeLenMS int64  `json:"time_len_ms,omitempty"`
	FileSize  int64  `json:"file_size,omitempty"`
}

// Kind maps the hook name onto the normalized event kind.
// Unknown hooks map to an empty kind and are rejected by validation.
func (h *EngineHook) Kind() EventKind {
	switch h.Hook {
	case HookPublish:
		return EventPublished
	case HookUnpublish:
		return EventUnpublished
	case HookRecordStarted:
		return EventRecordStarted
	case HookRecordStopped:
		return EventRecordStopped
	case HookRecordMP4:
		return EventSegmentClosed
	default:
		return ""
	}
}

// ToLifecycleEvent normalizes the hook into the canonical event format.
// The result still requires Validate before use.
func (h *EngineHook) ToLifecycleEvent() *LifecycleEvent {
	ev := NewLifecycleEvent(h.ChannelID, h.Kind())
	ev.Session = h.Session
	ev.Seq = h.Seq
	if h.TS > 0 {
		ev.Timestamp = time.Unix(h.TS, 0).UTC()
	}
	if h.Hook == HookRecordMP4 {
		start := time.Unix(h.StartTime, 0).UTC()
		ev.Segment = &SegmentDescriptor{
			Path:      h.FilePath,
			StartTS:   start,
			EndTS:     start.Add(time.Duration(h.TimeLenMS) * time.Millisecond),
			SizeBytes: h.FileSize,
		}
	}
	return ev
}
