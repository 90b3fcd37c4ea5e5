// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/nanonvr/internal/models"
)

// fakeStore is an in-memory Store for registry tests.
type fakeStore struct {
	configs map[string]models.ChannelConfig
	failOn  string
}

func newFakeStore() *fakeStore {
	return &fakeStore{configs: make(map[string]models.ChannelConfig)}
}

func (s *fakeStore) UpsertChannel(_ context.Context, cfg models.ChannelConfig) error {
	if s.failOn == "upsert" {
		return errors.New("store unavailable")
	}
	s.configs[cfg.ID] = cfg
	return nil
}

func (s *fakeStore) DeleteChannel(_ context.Context, id string) error {
	if s.failOn == "delete" {
		return errors.New("store unavailable")
	}
	delete(s.configs, id)
	return nil
}

func (s *fakeStore) ListChannelConfigs(_ context.Context) ([]models.ChannelConfig, error) {
	out := make([]models.ChannelConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cfg)
	}
	return out, nil
}

func newTestRegistry(t *testing.T, ids ...string) *Registry {
	t.Helper()
	reg := New(newFakeStore())
	for _, id := range ids {
		if _, err := reg.UpsertConfig(context.Background(), models.ChannelConfig{
			ID:      id,
			Enabled: true,
			Policy:  models.PolicyContinuous,
		}); err != nil {
			t.Fatalf("UpsertConfig(%s) failed: %v", id, err)
		}
	}
	return reg
}

func TestUpsertConfig(t *testing.T) {
	t.Run("creates channel in idle state", func(t *testing.T) {
		reg := New(newFakeStore())
		ch, err := reg.UpsertConfig(context.Background(), models.ChannelConfig{ID: "cam1"})
		if err != nil {
			t.Fatalf("UpsertConfig failed: %v", err)
		}
		if ch.State != models.StateIdle {
			t.Errorf("state = %s, want idle", ch.State)
		}
		if ch.Config.Policy != models.PolicyOff {
			t.Errorf("default policy = %s, want off", ch.Config.Policy)
		}
	})

	t.Run("rejects unknown policy", func(t *testing.T) {
		reg := New(newFakeStore())
		_, err := reg.UpsertConfig(context.Background(), models.ChannelConfig{
			ID:     "cam1",
			Policy: "sometimes",
		})
		if err == nil {
			t.Fatal("expected error for unknown policy")
		}
	})

	t.Run("rejects unsupported source scheme", func(t *testing.T) {
		reg := New(newFakeStore())
		for _, src := range []string{"ftp://cam/stream", "file:///dev/video0"} {
			_, err := reg.UpsertConfig(context.Background(), models.ChannelConfig{
				ID: "cam1", Policy: models.PolicyOff, SourceURL: src,
			})
			if err == nil {
				t.Errorf("source %q accepted", src)
			}
		}
		for _, src := range []string{"rtsp://cam/stream", "rtmp://cam/live", "https://cam/feed.m3u8"} {
			_, err := reg.UpsertConfig(context.Background(), models.ChannelConfig{
				ID: "cam1", Policy: models.PolicyOff, SourceURL: src,
			})
			if err != nil {
				t.Errorf("source %q rejected: %v", src, err)
			}
		}
	})

	t.Run("rejects empty id", func(t *testing.T) {
		reg := New(newFakeStore())
		if _, err := reg.UpsertConfig(context.Background(), models.ChannelConfig{}); err == nil {
			t.Fatal("expected error for empty id")
		}
	})

	t.Run("update preserves runtime state", func(t *testing.T) {
		reg := newTestRegistry(t, "cam1")
		if _, err := reg.ApplyTransition("cam1", Transition{
			To: models.StateLive, Session: "s1", Seq: 1, NewSession: true,
		}); err != nil {
			t.Fatalf("ApplyTransition failed: %v", err)
		}

		ch, err := reg.UpsertConfig(context.Background(), models.ChannelConfig{
			ID:     "cam1",
			Label:  "front door",
			Policy: models.PolicyMotion,
		})
		if err != nil {
			t.Fatalf("UpsertConfig failed: %v", err)
		}
		if ch.State != models.StateLive {
			t.Errorf("state = %s, want live after config update", ch.State)
		}
		if ch.Session != "s1" {
			t.Errorf("session = %q, want s1", ch.Session)
		}
		if ch.Config.Label != "front door" {
			t.Errorf("label = %q, want updated label", ch.Config.Label)
		}
	})

	t.Run("not visible when persist fails", func(t *testing.T) {
		store := newFakeStore()
		store.failOn = "upsert"
		reg := New(store)
		if _, err := reg.UpsertConfig(context.Background(), models.ChannelConfig{ID: "cam1"}); err == nil {
			t.Fatal("expected persist error")
		}
		if _, err := reg.Get("cam1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get after failed persist = %v, want ErrNotFound", err)
		}
	})
}

func TestApplyTransition(t *testing.T) {
	t.Run("publish starts a new session", func(t *testing.T) {
		reg := newTestRegistry(t, "cam1")
		ch, err := reg.ApplyTransition("cam1", Transition{
			To: models.StateLive, Session: "s1", Seq: 1, NewSession: true,
		})
		if err != nil {
			t.Fatalf("ApplyTransition failed: %v", err)
		}
		if ch.State != models.StateLive || ch.Session != "s1" || ch.LastSeq != 1 {
			t.Errorf("got state=%s session=%s seq=%d", ch.State, ch.Session, ch.LastSeq)
		}
	})

	t.Run("stale seq within session is rejected", func(t *testing.T) {
		reg := newTestRegistry(t, "cam1")
		mustTransition(t, reg, "cam1", Transition{To: models.StateLive, Session: "s1", Seq: 1, NewSession: true})
		mustTransition(t, reg, "cam1", Transition{To: models.StateRecording, Session: "s1", Seq: 3})

		_, err := reg.ApplyTransition("cam1", Transition{To: models.StateLive, Session: "s1", Seq: 2})
		if !errors.Is(err, ErrStaleTransition) {
			t.Errorf("err = %v, want ErrStaleTransition", err)
		}
		ch, _ := reg.Get("cam1")
		if ch.State != models.StateRecording {
			t.Errorf("state = %s, want recording unchanged", ch.State)
		}
	})

	t.Run("old session token is rejected after new publish", func(t *testing.T) {
		reg := newTestRegistry(t, "cam1")
		mustTransition(t, reg, "cam1", Transition{To: models.StateLive, Session: "s1", Seq: 5, NewSession: true})
		mustTransition(t, reg, "cam1", Transition{To: models.StateLive, Session: "s2", Seq: 1, NewSession: true})

		_, err := reg.ApplyTransition("cam1", Transition{To: models.StateRecording, Session: "s1", Seq: 6})
		if !errors.Is(err, ErrSessionMismatch) {
			t.Errorf("err = %v, want ErrSessionMismatch", err)
		}
	})

	t.Run("new session resets the seq scope", func(t *testing.T) {
		reg := newTestRegistry(t, "cam1")
		mustTransition(t, reg, "cam1", Transition{To: models.StateLive, Session: "s1", Seq: 40, NewSession: true})

		// A fresh publish may carry any seq; the old counter does not apply.
		ch := mustTransition(t, reg, "cam1", Transition{To: models.StateLive, Session: "s2", Seq: 1, NewSession: true})
		if ch.Session != "s2" || ch.LastSeq != 1 {
			t.Errorf("got session=%s seq=%d, want s2/1", ch.Session, ch.LastSeq)
		}
	})

	t.Run("same state advances seq without notification", func(t *testing.T) {
		reg := newTestRegistry(t, "cam1")
		mustTransition(t, reg, "cam1", Transition{To: models.StateLive, Session: "s1", Seq: 1, NewSession: true})

		updates, cancelWatch := reg.Watch(8)
		defer cancelWatch()

		ch := mustTransition(t, reg, "cam1", Transition{To: models.StateLive, Session: "s1", Seq: 2})
		if ch.LastSeq != 2 {
			t.Errorf("seq = %d, want 2", ch.LastSeq)
		}
		select {
		case u := <-updates:
			t.Errorf("unexpected update for no-op transition: %+v", u)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("invalid transition is rejected", func(t *testing.T) {
		reg := newTestRegistry(t, "cam1")

		// recording is not reachable from idle.
		_, err := reg.ApplyTransition("cam1", Transition{
			To: models.StateRecording, Session: "s1", Seq: 1, NewSession: true,
		})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("err = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("unknown channel", func(t *testing.T) {
		reg := newTestRegistry(t)
		_, err := reg.ApplyTransition("ghost", Transition{To: models.StateLive, Session: "s1", Seq: 1, NewSession: true})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

// TestOutOfOrderDelivery runs a teardown race: unpublish overtakes the
// record-started event in the broker. The channel must settle idle and the
// late event must be discarded.
func TestOutOfOrderDelivery(t *testing.T) {
	reg := newTestRegistry(t, "cam1")

	mustTransition(t, reg, "cam1", Transition{To: models.StateLive, Session: "s1", Seq: 1, NewSession: true})
	mustTransition(t, reg, "cam1", Transition{To: models.StateIdle, Session: "s1", Seq: 3})

	_, err := reg.ApplyTransition("cam1", Transition{To: models.StateRecording, Session: "s1", Seq: 2})
	if !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("late record-started: err = %v, want ErrStaleTransition", err)
	}

	ch, err := reg.Get("cam1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ch.State != models.StateIdle {
		t.Errorf("final state = %s, want idle", ch.State)
	}
}

func TestSetOperational(t *testing.T) {
	t.Run("error reachable from any state", func(t *testing.T) {
		reg := newTestRegistry(t, "cam1")
		mustTransition(t, reg, "cam1", Transition{To: models.StateLive, Session: "s1", Seq: 1, NewSession: true})
		mustTransition(t, reg, "cam1", Transition{To: models.StateRecording, Session: "s1", Seq: 2})

		ch, err := reg.SetOperational("cam1", models.StateError, "start_record rejected")
		if err != nil {
			t.Fatalf("SetOperational failed: %v", err)
		}
		if ch.State != models.StateError || ch.LastError == "" {
			t.Errorf("got state=%s lastError=%q", ch.State, ch.LastError)
		}
	})

	t.Run("recovery clears last error", func(t *testing.T) {
		reg := newTestRegistry(t, "cam1")
		if _, err := reg.SetOperational("cam1", models.StateError, "boom"); err != nil {
			t.Fatalf("SetOperational failed: %v", err)
		}
		ch, err := reg.SetOperational("cam1", models.StateConnecting, "")
		if err != nil {
			t.Fatalf("SetOperational failed: %v", err)
		}
		if ch.State != models.StateConnecting || ch.LastError != "" {
			t.Errorf("got state=%s lastError=%q, want connecting with cleared error", ch.State, ch.LastError)
		}
	})

	t.Run("same state is a no-op", func(t *testing.T) {
		reg := newTestRegistry(t, "cam1")
		ch, err := reg.SetOperational("cam1", models.StateIdle, "")
		if err != nil {
			t.Fatalf("SetOperational failed: %v", err)
		}
		if ch.State != models.StateIdle {
			t.Errorf("state = %s, want idle", ch.State)
		}
	})

	t.Run("table still applies to non-error targets", func(t *testing.T) {
		reg := newTestRegistry(t, "cam1")
		mustTransition(t, reg, "cam1", Transition{To: models.StateLive, Session: "s1", Seq: 1, NewSession: true})

		if _, err := reg.SetOperational("cam1", models.StateConnecting, ""); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("err = %v, want ErrInvalidTransition for live -> connecting", err)
		}
	})
}

func TestDelete(t *testing.T) {
	t.Run("removes channel", func(t *testing.T) {
		reg := newTestRegistry(t, "cam1")

		if err := reg.Delete(context.Background(), "cam1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := reg.Get("cam1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get after delete = %v, want ErrNotFound", err)
		}
		if err := reg.Delete(context.Background(), "cam1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("second delete = %v, want ErrNotFound", err)
		}
	})

	t.Run("store failure keeps channel", func(t *testing.T) {
		store := newFakeStore()
		reg := New(store)
		if _, err := reg.UpsertConfig(context.Background(), models.ChannelConfig{
			ID: "cam1", Policy: models.PolicyOff,
		}); err != nil {
			t.Fatalf("UpsertConfig failed: %v", err)
		}

		store.failOn = "delete"
		if err := reg.Delete(context.Background(), "cam1"); err == nil {
			t.Fatal("expected store failure to surface")
		}
		// The channel must survive in both the registry and the store so a
		// restart cannot disagree with the running process.
		if _, err := reg.Get("cam1"); err != nil {
			t.Errorf("channel gone from registry after failed delete: %v", err)
		}
		if _, ok := store.configs["cam1"]; !ok {
			t.Error("config gone from store despite reported failure")
		}

		store.failOn = ""
		if err := reg.Delete(context.Background(), "cam1"); err != nil {
			t.Errorf("retry after store recovery failed: %v", err)
		}
	})
}

func TestSessionStart(t *testing.T) {
	reg := newTestRegistry(t, "cam1")

	s1At := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	mustTransition(t, reg, "cam1", Transition{To: models.StateLive, Session: "s1", Seq: 1, NewSession: true, At: s1At})

	got, ok := reg.SessionStart("cam1", "s1")
	if !ok || !got.Equal(s1At) {
		t.Errorf("SessionStart(s1) = %v, %v; want %v, true", got, ok, s1At)
	}

	// A replaced session stays in the history for late segment deliveries.
	s2At := s1At.Add(time.Hour)
	mustTransition(t, reg, "cam1", Transition{To: models.StateLive, Session: "s2", Seq: 1, NewSession: true, At: s2At})

	if got, ok := reg.SessionStart("cam1", "s1"); !ok || !got.Equal(s1At) {
		t.Errorf("SessionStart(s1) after replacement = %v, %v; want %v, true", got, ok, s1At)
	}
	if got, ok := reg.SessionStart("cam1", "s2"); !ok || !got.Equal(s2At) {
		t.Errorf("SessionStart(s2) = %v, %v; want %v, true", got, ok, s2At)
	}

	if _, ok := reg.SessionStart("cam1", "ghost"); ok {
		t.Error("unknown session reported a start time")
	}
	if _, ok := reg.SessionStart("ghost", "s1"); ok {
		t.Error("unknown channel reported a start time")
	}
}

func TestList(t *testing.T) {
	reg := newTestRegistry(t, "cam2", "cam1", "cam3")
	channels := reg.List()
	if len(channels) != 3 {
		t.Fatalf("len = %d, want 3", len(channels))
	}
	for i, want := range []string{"cam1", "cam2", "cam3"} {
		if channels[i].Config.ID != want {
			t.Errorf("channels[%d] = %s, want %s", i, channels[i].Config.ID, want)
		}
	}
}

func TestWatch(t *testing.T) {
	t.Run("delivers transitions", func(t *testing.T) {
		reg := newTestRegistry(t, "cam1")
		updates, cancelWatch := reg.Watch(8)
		defer cancelWatch()

		mustTransition(t, reg, "cam1", Transition{To: models.StateLive, Session: "s1", Seq: 1, NewSession: true})

		select {
		case u := <-updates:
			if u.Channel.Config.ID != "cam1" || u.Channel.State != models.StateLive || u.Previous != models.StateIdle {
				t.Errorf("unexpected update: %+v", u)
			}
		case <-time.After(time.Second):
			t.Fatal("no update received")
		}
	})

	t.Run("canceled watcher stops receiving", func(t *testing.T) {
		reg := newTestRegistry(t, "cam1")
		updates, cancelWatch := reg.Watch(8)
		cancelWatch()

		mustTransition(t, reg, "cam1", Transition{To: models.StateLive, Session: "s1", Seq: 1, NewSession: true})

		if _, ok := <-updates; ok {
			t.Error("expected closed channel after cancel")
		}
	})
}

func mustTransition(t *testing.T, reg *Registry, id string, tr Transition) models.Channel {
	t.Helper()
	ch, err := reg.ApplyTransition(id, tr)
	if err != nil {
		t.Fatalf("ApplyTransition(%s, %+v) failed: %v", id, tr, err)
	}
	return ch
}
