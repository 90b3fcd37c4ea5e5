// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package ingest

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/nanonvr/internal/config"
)

// NewRouter builds the message router that drives the ingestor.
//
// Middleware, outer to inner: panic recovery, exponential-backoff retry
// for transient handler failures (database down), and a poison queue so
// a message that exhausts retries parks on its own subject instead of
// blocking the consumer.
func NewRouter(
	cfg *config.NATSConfig,
	subscriber message.Subscriber,
	poisonPublisher message.Publisher,
	ingestor *Ingestor,
	logger watermill.LoggerAdapter,
) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.RouterCloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.RouterRetryCount,
		InitialInterval: cfg.RouterRetryInitialInterval,
		MaxInterval:     cfg.RouterRetryMaxInterval,
		Multiplier:      2.0,
		Logger:          logger,
	}
	router.AddMiddleware(retry.Middleware)

	if poisonPublisher != nil && cfg.PoisonQueueTopic != "" {
		poisonQueue, err := middleware.PoisonQueue(poisonPublisher, cfg.PoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		router.AddMiddleware(poisonQueue)
	}

	router.AddConsumerHandler(
		"lifecycle-ingestor",
		"lifecycle.*",
		subscriber,
		func(msg *message.Message) error {
			return ingestor.Handle(msg.Context(), msg.Payload)
		},
	)

	return router, nil
}

// RunRouter adapts the router to the supervision tree's Serve contract.
type RunRouter struct {
	Router *message.Router
}

// Serve runs the router until the context is canceled.
func (r *RunRouter) Serve(ctx context.Context) error {
	return r.Router.Run(ctx)
}

// String names the service for the supervision tree.
func (r *RunRouter) String() string { return "lifecycle-router" }
