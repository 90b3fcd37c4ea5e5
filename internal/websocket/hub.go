// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

// Package websocket pushes channel lifecycle updates to connected
// operator UIs, primarily the video wall.
package websocket

import (
	"context"
	"sync"

	"github.com/tomtom215/nanonvr/internal/logging"
	"github.com/tomtom215/nanonvr/internal/metrics"
	"github.com/tomtom215/nanonvr/internal/models"
)

// Message types pushed to clients.
const (
	MessageTypeChannelUpdate = "channel_update"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
)

// Message is one websocket frame payload.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// UpdateSource is where the hub gets channel updates from. Implemented
// by the registry.
type UpdateSource interface {
	Watch(buffer int) (<-chan models.ChannelUpdate, func())
}

// Hub maintains the set of active clients and fans registry updates
// out to them.
type Hub struct {
	source UpdateSource

	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub fed by the given update source.
func NewHub(source UpdateSource) *Hub {
	return &Hub{
		source:     source,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Serve runs the hub until the context is canceled, then closes every
// client so the supervisor can restart without orphaned connections.
func (h *Hub) Serve(ctx context.Context) error {
	updates, cancel := h.source.Watch(256)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			logging.Info().Int("total_clients", total).Msg("websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			logging.Info().Int("total_clients", total).Msg("websocket client disconnected")

		case u, ok := <-updates:
			if !ok {
				return nil
			}
			h.broadcastToClients(Message{Type: MessageTypeChannelUpdate, Data: u})

		case msg := <-h.broadcast:
			h.broadcastToClients(msg)
		}
	}
}

// String names the service for the supervision tree.
func (h *Hub) String() string { return "websocket-hub" }

// Broadcast queues a message for every connected client.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		logging.Debug().Str("type", msg.Type).Msg("hub broadcast queue full, message dropped")
	}
}

func (h *Hub) broadcastToClients(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Slow consumer; it will miss this frame and re-sync from
			// the channel list endpoint.
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WebSocketClients.Set(0)
}
