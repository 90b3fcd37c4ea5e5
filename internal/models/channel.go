// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package models

import "time"

// ChannelState is the lifecycle state of a configured camera channel.
// The registry owns the transition graph; nothing else mutates state directly.
type ChannelState string

const (
	// StateIdle means the channel is configured but no stream session exists.
	StateIdle ChannelState = "idle"

	// StateConnecting means a proxy pull has been requested from the engine
	// but no publish event has been observed yet.
	StateConnecting ChannelState = "connecting"

	// StateLive means the engine reported a published stream session.
	StateLive ChannelState = "live"

	// StateRecording means the engine confirmed recording is active for the
	// current session.
	StateRecording ChannelState = "recording"

	// StateOffline means the source is unreachable or the proxy was torn down.
	StateOffline ChannelState = "offline"

	// StateError is reachable from any non-terminal state, set when a
	// control command fails permanently. Operator-visible.
	StateError ChannelState = "error"
)

// CanTransition enforces the allowed lifecycle transition graph.
// Keep this table small and explicit.
func CanTransition(from, to ChannelState) bool {
	if from == to {
		return false
	}
	switch from {
	case StateIdle:
		return to == StateConnecting || to == StateLive || to == StateOffline || to == StateError
	case StateConnecting:
		return to == StateLive || to == StateIdle || to == StateOffline || to == StateError
	case StateLive:
		return to == StateRecording || to == StateIdle || to == StateOffline || to == StateError
	case StateRecording:
		return to == StateLive || to == StateIdle || to == StateOffline || to == StateError
	case StateOffline:
		return to == StateConnecting || to == StateLive || to == StateIdle || to == StateError
	case StateError:
		// A fresh publish or an operator re-enable recovers an errored channel.
		return to == StateIdle || to == StateConnecting || to == StateLive
	default:
		return false
	}
}

// RecordPolicy selects how the policy engine derives recording intent.
type RecordPolicy string

const (
	PolicyOff        RecordPolicy = "off"
	PolicyContinuous RecordPolicy = "continuous"
	PolicyScheduled  RecordPolicy = "scheduled"
	PolicyMotion     RecordPolicy = "motion"
)

// Valid reports whether p is a known policy value.
func (p RecordPolicy) Valid() bool {
	switch p {
	case PolicyOff, PolicyContinuous, PolicyScheduled, PolicyMotion:
		return true
	}
	return false
}

// ChannelConfig is the durable, operator-assigned configuration of a channel.
// App and Stream address the channel on the engine side (ZLMediaKit vhost
// routing); they default to "live" and the channel id respectively.
type ChannelConfig struct {
	ID        string       `json:"id" validate:"required"`
	Label     string       `json:"label,omitempty"`
	App       string       `json:"app,omitempty"`
	Stream    string       `json:"stream,omitempty"`
	SourceURL string       `json:"source_url,omitempty"`
	Enabled   bool         `json:"enabled"`
	Policy    RecordPolicy `json:"policy"`

	// Schedule holds "HH:MM-HH:MM" windows, local time, used when Policy
	// is scheduled. Windows may wrap midnight ("22:00-06:00").
	Schedule []string `json:"schedule,omitempty"`
}

// Channel is a configured camera source plus its current lifecycle state.
// Config fields are persisted; runtime fields reset on restart.
type Channel struct {
	Config ChannelConfig `json:"config"`

	State ChannelState `json:"state"`

	// Session is the engine-assigned token of the current stream session.
	// It changes every time the engine reports a fresh publish.
	Session string `json:"session,omitempty"`

	// LastSeq is the last applied event sequence for the current session.
	LastSeq uint64 `json:"last_seq"`

	// LastError carries the reason the channel entered the error state.
	LastError string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EngineApp returns the engine-side application name, defaulting to "live".
func (c *Channel) EngineApp() string {
	if c.Config.App != "" {
		return c.Config.App
	}
	return "live"
}

// EngineStream returns the engine-side stream id, defaulting to the channel id.
func (c *Channel) EngineStream() string {
	if c.Config.Stream != "" {
		return c.Config.Stream
	}
	return c.Config.ID
}

// ChannelUpdate is the notification emitted on every successful lifecycle
// transition, consumed by the policy engine and the websocket hub.
type ChannelUpdate struct {
	Channel  Channel      `json:"channel"`
	Previous ChannelState `json:"previous"`
	At       time.Time    `json:"at"`
}
