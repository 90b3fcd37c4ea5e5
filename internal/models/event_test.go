// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package models

import (
	"errors"
	"testing"
	"time"
)

func validEvent(kind EventKind) *LifecycleEvent {
	ev := NewLifecycleEvent("cam1", kind)
	ev.Session = "sess-1"
	ev.Seq = 7
	if kind == EventSegmentClosed {
		start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		ev.Segment = &SegmentDescriptor{
			Path:    "/recordings/cam1/seg.mp4",
			StartTS: start,
			EndTS:   start.Add(20 * time.Minute),
		}
	}
	return ev
}

func TestLifecycleEventValidate(t *testing.T) {
	t.Run("valid events", func(t *testing.T) {
		for _, kind := range []EventKind{EventPublished, EventUnpublished, EventRecordStarted, EventRecordStopped, EventSegmentClosed} {
			if err := validEvent(kind).Validate(); err != nil {
				t.Errorf("Validate(%s) = %v, want nil", kind, err)
			}
		}
	})

	t.Run("rejects malformed", func(t *testing.T) {
		cases := []struct {
			name   string
			mutate func(*LifecycleEvent)
			field  string
		}{
			{"missing channel", func(e *LifecycleEvent) { e.ChannelID = "" }, "channel_id"},
			{"unknown kind", func(e *LifecycleEvent) { e.Kind = "rebooted" }, "kind"},
			{"missing session", func(e *LifecycleEvent) { e.Session = "" }, "session"},
		}
		for _, tc := range cases {
			ev := validEvent(EventPublished)
			tc.mutate(ev)
			err := ev.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("%s: Validate() = %v, want ValidationError", tc.name, err)
				continue
			}
			if verr.Field != tc.field {
				t.Errorf("%s: field = %q, want %q", tc.name, verr.Field, tc.field)
			}
		}
	})

	t.Run("segment-closed requires descriptor", func(t *testing.T) {
		ev := validEvent(EventSegmentClosed)
		ev.Segment = nil
		if err := ev.Validate(); err == nil {
			t.Error("missing segment accepted")
		}

		ev = validEvent(EventSegmentClosed)
		ev.Segment.Path = ""
		if err := ev.Validate(); err == nil {
			t.Error("missing segment path accepted")
		}

		ev = validEvent(EventSegmentClosed)
		ev.Segment.EndTS = ev.Segment.StartTS
		if err := ev.Validate(); err == nil {
			t.Error("zero-length segment accepted")
		}
	})
}

func TestIdempotencyKey(t *testing.T) {
	ev := validEvent(EventPublished)
	if got, want := ev.IdempotencyKey(), "cam1:sess-1:published"; got != want {
		t.Errorf("IdempotencyKey() = %q, want %q", got, want)
	}

	// Segment-closed keys include the segment start so one session can
	// close many segments without colliding.
	seg := validEvent(EventSegmentClosed)
	want := "cam1:sess-1:segment-closed:" + seg.Segment.StartTS.UTC().Format(time.RFC3339Nano)
	if got := seg.IdempotencyKey(); got != want {
		t.Errorf("IdempotencyKey() = %q, want %q", got, want)
	}

	other := validEvent(EventSegmentClosed)
	other.Segment.StartTS = other.Segment.StartTS.Add(20 * time.Minute)
	if seg.IdempotencyKey() == other.IdempotencyKey() {
		t.Error("distinct segments produced the same key")
	}
}

func TestTopic(t *testing.T) {
	if got := validEvent(EventPublished).Topic(); got != "lifecycle.published" {
		t.Errorf("Topic() = %q", got)
	}
	if got := validEvent(EventSegmentClosed).Topic(); got != "lifecycle.segment-closed" {
		t.Errorf("Topic() = %q", got)
	}
}

func TestEngineHookKind(t *testing.T) {
	cases := []struct {
		hook string
		want EventKind
	}{
		{HookPublish, EventPublished},
		{HookUnpublish, EventUnpublished},
		{HookRecordStarted, EventRecordStarted},
		{HookRecordStopped, EventRecordStopped},
		{HookRecordMP4, EventSegmentClosed},
		{"on_reboot", ""},
		{"", ""},
	}
	for _, tc := range cases {
		h := &EngineHook{Hook: tc.hook}
		if got := h.Kind(); got != tc.want {
			t.Errorf("Kind(%q) = %q, want %q", tc.hook, got, tc.want)
		}
	}
}

func TestToLifecycleEvent(t *testing.T) {
	t.Run("publish hook", func(t *testing.T) {
		h := &EngineHook{
			Hook:      HookPublish,
			ChannelID: "cam1",
			Session:   "sess-9",
			Seq:       3,
			TS:        1767225600, // 2026-01-01T00:00:00Z
		}
		ev := h.ToLifecycleEvent()
		if err := ev.Validate(); err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if ev.Kind != EventPublished {
			t.Errorf("kind = %q", ev.Kind)
		}
		if ev.ChannelID != "cam1" || ev.Session != "sess-9" || ev.Seq != 3 {
			t.Errorf("identity fields not carried: %+v", ev)
		}
		if !ev.Timestamp.Equal(time.Unix(1767225600, 0).UTC()) {
			t.Errorf("timestamp = %v", ev.Timestamp)
		}
		if ev.EventID == "" || ev.SchemaVersion != EventSchemaVersion {
			t.Errorf("envelope fields not set: %+v", ev)
		}
	})

	t.Run("zero ts falls back to ingest time", func(t *testing.T) {
		h := &EngineHook{Hook: HookPublish, ChannelID: "cam1", Session: "s", Seq: 1}
		ev := h.ToLifecycleEvent()
		if ev.Timestamp.IsZero() {
			t.Error("timestamp not defaulted")
		}
	})

	t.Run("record mp4 hook builds segment", func(t *testing.T) {
		h := &EngineHook{
			Hook:      HookRecordMP4,
			ChannelID: "cam1",
			Session:   "sess-9",
			Seq:       12,
			TS:        1767226800,
			FilePath:  "/recordings/cam1/2026-01-01/00-00-00.mp4",
			StartTime: 1767225600,
			TimeLenMS: 1200000,
			FileSize:  104857600,
		}
		ev := h.ToLifecycleEvent()
		if err := ev.Validate(); err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if ev.Segment == nil {
			t.Fatal("segment descriptor missing")
		}
		if ev.Segment.Path != h.FilePath {
			t.Errorf("path = %q", ev.Segment.Path)
		}
		start := time.Unix(1767225600, 0).UTC()
		if !ev.Segment.StartTS.Equal(start) {
			t.Errorf("start_ts = %v", ev.Segment.StartTS)
		}
		if !ev.Segment.EndTS.Equal(start.Add(20 * time.Minute)) {
			t.Errorf("end_ts = %v", ev.Segment.EndTS)
		}
		if ev.Segment.SizeBytes != 104857600 {
			t.Errorf("size = %d", ev.Segment.SizeBytes)
		}
	})
}
