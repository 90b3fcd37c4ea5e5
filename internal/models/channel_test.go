// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package models

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct {
		from, to ChannelState
	}{
		{StateIdle, StateConnecting},
		{StateIdle, StateLive},
		{StateIdle, StateOffline},
		{StateIdle, StateError},
		{StateConnecting, StateLive},
		{StateConnecting, StateIdle},
		{StateConnecting, StateOffline},
		{StateConnecting, StateError},
		{StateLive, StateRecording},
		{StateLive, StateIdle},
		{StateLive, StateOffline},
		{StateLive, StateError},
		{StateRecording, StateLive},
		{StateRecording, StateIdle},
		{StateRecording, StateOffline},
		{StateRecording, StateError},
		{StateOffline, StateConnecting},
		{StateOffline, StateLive},
		{StateOffline, StateIdle},
		{StateOffline, StateError},
		{StateError, StateIdle},
		{StateError, StateConnecting},
		{StateError, StateLive},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to ChannelState
	}{
		{StateIdle, StateRecording},
		{StateConnecting, StateRecording},
		{StateOffline, StateRecording},
		{StateError, StateRecording},
		{StateError, StateOffline},
		{StateIdle, StateIdle},
		{StateLive, StateLive},
		{StateRecording, StateRecording},
		{ChannelState("bogus"), StateIdle},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = true, want false", tc.from, tc.to)
		}
	}
}

func TestRecordPolicyValid(t *testing.T) {
	for _, p := range []RecordPolicy{PolicyOff, PolicyContinuous, PolicyScheduled, PolicyMotion} {
		if !p.Valid() {
			t.Errorf("policy %q reported invalid", p)
		}
	}
	for _, p := range []RecordPolicy{"", "always", "OFF"} {
		if p.Valid() {
			t.Errorf("policy %q reported valid", p)
		}
	}
}

func TestEngineAddressingDefaults(t *testing.T) {
	ch := &Channel{Config: ChannelConfig{ID: "cam1"}}
	if got := ch.EngineApp(); got != "live" {
		t.Errorf("EngineApp() = %q, want live", got)
	}
	if got := ch.EngineStream(); got != "cam1" {
		t.Errorf("EngineStream() = %q, want cam1", got)
	}

	ch.Config.App = "proxy"
	ch.Config.Stream = "front-door"
	if got := ch.EngineApp(); got != "proxy" {
		t.Errorf("EngineApp() = %q, want proxy", got)
	}
	if got := ch.EngineStream(); got != "front-door" {
		t.Errorf("EngineStream() = %q, want front-door", got)
	}
}
