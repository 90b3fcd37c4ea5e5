// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package registry

import (
	"github.com/tomtom215/nanonvr/internal/logging"
	"github.com/tomtom215/nanonvr/internal/metrics"
	"github.com/tomtom215/nanonvr/internal/models"
)

// Watch registers a buffered subscriber for channel updates. The returned
// cancel func unregisters it and closes the channel. Sends never block: a
// subscriber that falls behind loses updates, which is acceptable because
// every consumer reconciles from registry snapshots on its own tick.
func (r *Registry) Watch(buffer int) (<-chan models.ChannelUpdate, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan models.ChannelUpdate, buffer)

	r.watchMu.Lock()
	id := r.nextID
	r.nextID++
	r.watchers[id] = ch
	r.watchMu.Unlock()

	cancel := func() {
		r.watchMu.Lock()
		if _, ok := r.watchers[id]; ok {
			delete(r.watchers, id)
			close(ch)
		}
		r.watchMu.Unlock()
	}
	return ch, cancel
}

func (r *Registry) notify(u models.ChannelUpdate) {
	r.watchMu.RLock()
	defer r.watchMu.RUnlock()
	for _, ch := range r.watchers {
		select {
		case ch <- u:
		default:
			metrics.UpdatesDropped.Inc()
			logging.Debug().Str("channel", u.Channel.Config.ID).Msg("slow watcher, update dropped")
		}
	}
}
