// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package ingest

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/nanonvr/internal/models"
)

// Gateway turns validated webhook payloads into published lifecycle
// messages. The idempotency key doubles as the Nats-Msg-Id so the
// stream's duplicate window drops fast webhook retries at the broker.
type Gateway struct {
	publisher message.Publisher
}

// NewGateway creates a Gateway over the given publisher.
func NewGateway(pub message.Publisher) *Gateway {
	return &Gateway{publisher: pub}
}

// Publish validates and enqueues one engine hook.
func (g *Gateway) Publish(hook *models.EngineHook) error {
	ev := hook.ToLifecycleEvent()
	if err := ev.Validate(); err != nil {
		return err
	}

	payload, err := MarshalEvent(ev)
	if err != nil {
		return err
	}

	msg := message.NewMessage(ev.EventID, payload)
	msg.Metadata.Set(natsgo.MsgIdHdr, ev.IdempotencyKey())

	if err := g.publisher.Publish(ev.Topic(), msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Topic(), err)
	}
	return nil
}
