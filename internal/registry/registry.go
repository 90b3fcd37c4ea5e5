// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

// Package registry is the authoritative owner of channel lifecycle state.
//
// All mutations to a single channel are serialized behind a per-channel
// lock, and event-driven transitions are additionally guarded by the
// engine-assigned (session, seq) pair: a transition whose seq is not
// greater than the last applied one for the current session is stale, and
// a transition carrying an old session token after a newer session started
// is a mismatch. Both are expected under redelivery and are dropped with a
// log entry, never surfaced as operator failures. Events for different
// channels apply fully in parallel.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/nanonvr/internal/logging"
	"github.com/tomtom215/nanonvr/internal/metrics"
	"github.com/tomtom215/nanonvr/internal/models"
)

// Sentinel errors returned by registry operations.
var (
	// ErrNotFound indicates the channel id is not configured.
	ErrNotFound = errors.New("channel not found")

	// ErrStaleTransition indicates the event seq is not newer than the last
	// applied seq for the channel's current session.
	ErrStaleTransition = errors.New("stale transition")

	// ErrSessionMismatch indicates the event belongs to a session that has
	// already been replaced by a newer publish.
	ErrSessionMismatch = errors.New("session mismatch")

	// ErrInvalidTransition indicates the target state is unreachable from
	// the current state.
	ErrInvalidTransition = errors.New("invalid transition")
)

// Store persists channel configuration. Lifecycle state is runtime-only
// and resets on restart; only configuration survives.
type Store interface {
	UpsertChannel(ctx context.Context, cfg models.ChannelConfig) error
	DeleteChannel(ctx context.Context, id string) error
	ListChannelConfigs(ctx context.Context) ([]models.ChannelConfig, error)
}

// validateSourceURL accepts the pull protocols the engine's addStreamProxy
// supports. An empty source means the channel is push-only.
func validateSourceURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid source url: %w", err)
	}
	switch u.Scheme {
	case "rtsp", "rtsps", "rtmp", "rtmps", "http", "https":
		return nil
	}
	return fmt.Errorf("unsupported source url scheme %q", u.Scheme)
}

// Transition is one requested lifecycle state change.
type Transition struct {
	To      models.ChannelState
	Session string
	Seq     uint64

	// NewSession marks a fresh publish: the session token replaces the
	// channel's current one and the seq counter restarts.
	NewSession bool

	// At is the engine-reported event time. For a fresh publish it becomes
	// the session's start time in the channel's session history.
	At time.Time

	Reason string
}

// sessionHistorySize bounds the per-channel session start history. Old
// entries only matter for late segment-closed deliveries, which arrive
// within the broker's redelivery window.
const sessionHistorySize = 64

// Registry holds all configured channels and their live state.
type Registry struct {
	store Store

	mu       sync.RWMutex // guards the channels map only
	channels map[string]*entry

	watchMu  sync.RWMutex
	watchers map[int]chan models.ChannelUpdate
	nextID   int
}

// entry serializes all mutations to one channel.
type entry struct {
	mu sync.Mutex
	ch models.Channel

	// sessionStarts maps session tokens to their publish times so that a
	// late segment-closed can still be attributed to its session's start.
	sessionStarts map[string]time.Time
}

// recordSessionStart remembers when a session was published, evicting the
// oldest entry once the history is full. Caller holds e.mu.
func (e *entry) recordSessionStart(session string, at time.Time) {
	if e.sessionStarts == nil {
		e.sessionStarts = make(map[string]time.Time)
	}
	if _, ok := e.sessionStarts[session]; !ok && len(e.sessionStarts) >= sessionHistorySize {
		var oldest string
		var oldestAt time.Time
		for s, t := range e.sessionStarts {
			if oldest == "" || t.Before(oldestAt) {
				oldest, oldestAt = s, t
			}
		}
		delete(e.sessionStarts, oldest)
	}
	e.sessionStarts[session] = at
}

// New creates a Registry backed by the given store.
func New(store Store) *Registry {
	return &Registry{
		store:    store,
		channels: make(map[string]*entry),
		watchers: make(map[int]chan models.ChannelUpdate),
	}
}

// Load restores channel configurations from the store. All channels start
// idle; the engine's publish events rebuild live state after a restart.
func (r *Registry) Load(ctx context.Context) error {
	configs, err := r.store.ListChannelConfigs(ctx)
	if err != nil {
		return fmt.Errorf("load channel configs: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, cfg := range configs {
		r.channels[cfg.ID] = &entry{ch: models.Channel{
			Config:    cfg,
			State:     models.StateIdle,
			CreatedAt: now,
			UpdatedAt: now,
		}}
		metrics.ChannelsByState.WithLabelValues(string(models.StateIdle)).Inc()
	}
	logging.Info().Int("channels", len(configs)).Msg("channel registry loaded")
	return nil
}

// Get returns a snapshot of one channel.
func (r *Registry) Get(id string) (models.Channel, error) {
	e := r.lookup(id)
	if e == nil {
		return models.Channel{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch, nil
}

// List returns snapshots of all channels, ordered by id.
func (r *Registry) List() []models.Channel {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.channels))
	for _, e := range r.channels {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]models.Channel, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.ch)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Config.ID < out[j].Config.ID })
	return out
}

// UpsertConfig creates or updates a channel's configuration. Runtime state
// is preserved on update; new channels start idle.
func (r *Registry) UpsertConfig(ctx context.Context, cfg models.ChannelConfig) (models.Channel, error) {
	if cfg.ID == "" {
		return models.Channel{}, fmt.Errorf("%w: empty channel id", ErrInvalidTransition)
	}
	if cfg.Policy == "" {
		cfg.Policy = models.PolicyOff
	}
	if !cfg.Policy.Valid() {
		return models.Channel{}, fmt.Errorf("unknown record policy %q", cfg.Policy)
	}
	if err := validateSourceURL(cfg.SourceURL); err != nil {
		return models.Channel{}, err
	}

	if err := r.store.UpsertChannel(ctx, cfg); err != nil {
		return models.Channel{}, fmt.Errorf("persist channel %s: %w", cfg.ID, err)
	}

	now := time.Now().UTC()

	r.mu.Lock()
	e, ok := r.channels[cfg.ID]
	if !ok {
		e = &entry{ch: models.Channel{
			Config:    cfg,
			State:     models.StateIdle,
			CreatedAt: now,
			UpdatedAt: now,
		}}
		r.channels[cfg.ID] = e
		r.mu.Unlock()
		metrics.ChannelsByState.WithLabelValues(string(models.StateIdle)).Inc()
		snap := e.ch
		r.notify(models.ChannelUpdate{Channel: snap, Previous: snap.State, At: now})
		return snap, nil
	}
	r.mu.Unlock()

	e.mu.Lock()
	prev := e.ch.State
	e.ch.Config = cfg
	e.ch.UpdatedAt = now
	snap := e.ch
	e.mu.Unlock()

	r.notify(models.ChannelUpdate{Channel: snap, Previous: prev, At: now})
	return snap, nil
}

// Delete removes a channel. Catalog entries for its segments are deleted
// logically by the caller; the registry only owns channel objects.
func (r *Registry) Delete(ctx context.Context, id string) error {
	e := r.lookup(id)
	if e == nil {
		return ErrNotFound
	}

	// Persist first: dropping the entry before the store confirms would
	// leave a config that resurrects the channel on restart.
	if err := r.store.DeleteChannel(ctx, id); err != nil {
		return fmt.Errorf("delete channel %s: %w", id, err)
	}

	r.mu.Lock()
	delete(r.channels, id)
	r.mu.Unlock()

	e.mu.Lock()
	metrics.ChannelsByState.WithLabelValues(string(e.ch.State)).Dec()
	e.mu.Unlock()

	return nil
}

// ApplyTransition applies one event-driven lifecycle transition under the
// per-channel ordering guards. Returns the resulting snapshot.
func (r *Registry) ApplyTransition(id string, t Transition) (models.Channel, error) {
	e := r.lookup(id)
	if e == nil {
		return models.Channel{}, ErrNotFound
	}

	e.mu.Lock()

	cur := e.ch
	if t.NewSession {
		if t.Session == cur.Session {
			// Redelivered publish for the already-current session.
			if t.Seq <= cur.LastSeq {
				e.mu.Unlock()
				metrics.TransitionsRejected.WithLabelValues("stale").Inc()
				return cur, ErrStaleTransition
			}
		}
	} else {
		if t.Session != cur.Session {
			e.mu.Unlock()
			metrics.TransitionsRejected.WithLabelValues("session_mismatch").Inc()
			return cur, fmt.Errorf("%w: event session %q, current %q", ErrSessionMismatch, t.Session, cur.Session)
		}
		if t.Seq <= cur.LastSeq {
			e.mu.Unlock()
			metrics.TransitionsRejected.WithLabelValues("stale").Inc()
			return cur, fmt.Errorf("%w: seq %d <= %d", ErrStaleTransition, t.Seq, cur.LastSeq)
		}
	}

	if t.To == cur.State {
		// Seq advances, state does not. Keeps later guards monotonic.
		e.ch.LastSeq = t.Seq
		if t.NewSession {
			e.ch.Session = t.Session
			e.recordSessionStart(t.Session, sessionStartTime(t))
		}
		snap := e.ch
		e.mu.Unlock()
		return snap, nil
	}

	if !models.CanTransition(cur.State, t.To) {
		e.mu.Unlock()
		metrics.TransitionsRejected.WithLabelValues("invalid").Inc()
		return cur, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.State, t.To)
	}

	now := time.Now().UTC()
	prev := cur.State
	e.ch.State = t.To
	e.ch.Session = t.Session
	e.ch.LastSeq = t.Seq
	e.ch.UpdatedAt = now
	if t.NewSession {
		e.recordSessionStart(t.Session, sessionStartTime(t))
	}
	if t.To != models.StateError {
		e.ch.LastError = ""
	}
	snap := e.ch
	e.mu.Unlock()

	metrics.ChannelsByState.WithLabelValues(string(prev)).Dec()
	metrics.ChannelsByState.WithLabelValues(string(t.To)).Inc()

	logging.Debug().
		Str("channel", id).
		Str("from", string(prev)).
		Str("to", string(t.To)).
		Uint64("seq", t.Seq).
		Msg("lifecycle transition")

	r.notify(models.ChannelUpdate{Channel: snap, Previous: prev, At: now})
	return snap, nil
}

// SetOperational applies a command-driven state change (connecting,
// offline, error, recovery to idle). These originate from this process,
// not from engine events, so no seq guard applies; the transition table
// still does, except for error which is reachable from anywhere.
func (r *Registry) SetOperational(id string, to models.ChannelState, reason string) (models.Channel, error) {
	e := r.lookup(id)
	if e == nil {
		return models.Channel{}, ErrNotFound
	}

	e.mu.Lock()
	prev := e.ch.State
	if prev == to {
		snap := e.ch
		e.mu.Unlock()
		return snap, nil
	}
	if to != models.StateError && !models.CanTransition(prev, to) {
		e.mu.Unlock()
		metrics.TransitionsRejected.WithLabelValues("invalid").Inc()
		return models.Channel{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, to)
	}

	now := time.Now().UTC()
	e.ch.State = to
	e.ch.UpdatedAt = now
	if to == models.StateError {
		e.ch.LastError = reason
	} else {
		e.ch.LastError = ""
	}
	snap := e.ch
	e.mu.Unlock()

	metrics.ChannelsByState.WithLabelValues(string(prev)).Dec()
	metrics.ChannelsByState.WithLabelValues(string(to)).Inc()

	if to == models.StateError {
		logging.Warn().Str("channel", id).Str("reason", reason).Msg("channel entered error state")
	}

	r.notify(models.ChannelUpdate{Channel: snap, Previous: prev, At: now})
	return snap, nil
}

// SessionStart returns when the given session was published, if the
// channel's session history still holds it.
func (r *Registry) SessionStart(id, session string) (time.Time, bool) {
	e := r.lookup(id)
	if e == nil {
		return time.Time{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	at, ok := e.sessionStarts[session]
	return at, ok
}

func sessionStartTime(t Transition) time.Time {
	if !t.At.IsZero() {
		return t.At
	}
	return time.Now().UTC()
}

func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[id]
}
