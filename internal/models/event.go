// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package models

import (
	"time"

	"github.com/google/uuid"
)

// EventSchemaVersion is the current lifecycle event schema version.
// Increment on breaking changes to LifecycleEvent.
const EventSchemaVersion = 1

// EventKind identifies one kind of engine lifecycle notification.
type EventKind string

const (
	EventPublished     EventKind = "published"
	EventUnpublished   EventKind = "unpublished"
	EventRecordStarted EventKind = "record-started"
	EventRecordStopped EventKind = "record-stopped"
	EventSegmentClosed EventKind = "segment-closed"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventPublished, EventUnpublished, EventRecordStarted, EventRecordStopped, EventSegmentClosed:
		return true
	}
	return false
}

// SegmentDescriptor carries the recording file metadata attached to
// segment-closed events.
type SegmentDescriptor struct {
	Path      string    `json:"path"`
	StartTS   time.Time `json:"start_ts"`
	EndTS     time.Time `json:"end_ts"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
}

// LifecycleEvent is the canonical, immutable record of one engine
// notification after webhook normalization.
//
// (channel id, session token, kind) is the idempotency key: redelivery of
// the same event must not double-apply effects. Segment-closed events add
// the segment start timestamp to the key because one session closes many
// segments.
type LifecycleEvent struct {
	SchemaVersion int `json:"schema_version,omitempty"`

	EventID   string    `json:"event_id"`
	ChannelID string    `json:"channel_id"`
	Kind      EventKind `json:"kind"`

	// Session is the engine-assigned session token; Seq is the
	// engine-assigned per-session sequence number.
	Session string `json:"session"`
	Seq     uint64 `json:"seq"`

	// Timestamp is engine-reported, not ingestion time.
	Timestamp time.Time `json:"timestamp"`

	Segment *SegmentDescriptor `json:"segment,omitempty"`
}

// NewLifecycleEvent creates an event with a unique id and schema version.
func NewLifecycleEvent(channelID string, kind EventKind) *LifecycleEvent {
	return &LifecycleEvent{
		SchemaVersion: EventSchemaVersion,
		EventID:       uuid.New().String(),
		ChannelID:     channelID,
		Kind:          kind,
		Timestamp:     time.Now().UTC(),
	}
}

// Validate checks required fields. Events failing validation are malformed
// and must be logged and dropped, never retried.
func (e *LifecycleEvent) Validate() error {
	if e.ChannelID == "" {
		return &ValidationError{Field: "channel_id", Message: "required"}
	}
	if !e.Kind.Valid() {
		return &ValidationError{Field: "kind", Message: "unknown event kind"}
	}
	if e.Session == "" {
		return &ValidationError{Field: "session", Message: "required"}
	}
	if e.Kind == EventSegmentClosed {
		if e.Segment == nil {
			return &ValidationError{Field: "segment", Message: "required for segment-closed"}
		}
		if e.Segment.Path == "" {
			return &ValidationError{Field: "segment.path", Message: "required"}
		}
		if !e.Segment.EndTS.After(e.Segment.StartTS) {
			return &ValidationError{Field: "segment.end_ts", Message: "must be after start_ts"}
		}
	}
	return nil
}

// IdempotencyKey uniquely identifies this event for deduplication.
func (e *LifecycleEvent) IdempotencyKey() string {
	key := e.ChannelID + ":" + e.Session + ":" + string(e.Kind)
	if e.Kind == EventSegmentClosed && e.Segment != nil {
		key += ":" + e.Segment.StartTS.UTC().Format(time.RFC3339Nano)
	}
	return key
}

// Topic returns the broker subject for this event.
// Format: lifecycle.<kind>, e.g. lifecycle.published.
func (e *LifecycleEvent) Topic() string {
	return "lifecycle." + string(e.Kind)
}

// ValidationError describes a schema violation in an inbound payload.
type ValidationError struct {
	Field   string
	Message string
}

func (v *ValidationError) Error() string {
	return "validation failed: " + v.Field + ": " + v.Message
}
