// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

// Package engine is the control-plane facade over ZLMediaKit's HTTP API.
//
// The facade owns no state. Every call is one bounded request/response
// round trip, rate limited and wrapped in a circuit breaker so a wedged
// engine fails fast instead of tying up policy workers. Transport
// failures map to ErrEngineUnavailable, explicit non-zero result codes
// to ErrEngineRejected.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/nanonvr/internal/config"
	"github.com/tomtom215/nanonvr/internal/logging"
	"github.com/tomtom215/nanonvr/internal/metrics"
)

// apiResponse is the envelope every ZLMediaKit endpoint returns. Data
// holds the endpoint-specific payload, kept raw for passthrough calls.
type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Client talks to one ZLMediaKit instance.
type Client struct {
	baseURL string
	secret  string
	vhost   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*apiResponse]
	limiter *rate.Limiter
}

// NewClient creates an engine client from configuration.
func NewClient(cfg *config.EngineConfig) *Client {
	breaker := gobreaker.NewCircuitBreaker[*apiResponse](gobreaker.Settings{
		Name:        "engine-api",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("engine circuit breaker state change")
		},
	})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL: cfg.URL,
		secret:  cfg.Secret,
		vhost:   cfg.Vhost,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		limiter: limiter,
	}
}

// AddStreamProxy asks the engine to start pulling a source URL and
// publish it under app/stream. Returns the engine-assigned proxy key.
func (c *Client) AddStreamProxy(ctx context.Context, app, stream, sourceURL string) (string, error) {
	params := c.params(app, stream)
	params.Set("url", sourceURL)
	params.Set("enable_rtsp", "1")
	params.Set("enable_rtmp", "1")
	params.Set("enable_hls", "1")
	params.Set("enable_fmp4", "1")

	resp, err := c.call(ctx, "addStreamProxy", params)
	if err != nil {
		return "", err
	}
	var data struct {
		Key string `json:"key"`
	}
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return "", fmt.Errorf("decode addStreamProxy data: %w", err)
		}
	}
	return data.Key, nil
}

// CloseStreams force-closes every publisher of app/stream, which also
// stops a proxy pull.
func (c *Client) CloseStreams(ctx context.Context, app, stream string) error {
	params := c.params(app, stream)
	params.Set("force", "1")
	_, err := c.call(ctx, "close_streams", params)
	return err
}

// StartRecord begins MP4 recording for app/stream with the given
// per-file segment length in seconds.
func (c *Client) StartRecord(ctx context.Context, app, stream string, maxSecond int) error {
	params := c.params(app, stream)
	params.Set("type", "1")
	if maxSecond > 0 {
		params.Set("max_second", strconv.Itoa(maxSecond))
	}
	_, err := c.call(ctx, "startRecord", params)
	return err
}

// StopRecord stops MP4 recording for app/stream.
func (c *Client) StopRecord(ctx context.Context, app, stream string) error {
	params := c.params(app, stream)
	params.Set("type", "1")
	_, err := c.call(ctx, "stopRecord", params)
	return err
}

// Statistic returns the engine's object counters (sessions, buffers,
// media sources) as raw JSON for the operator API to pass through.
func (c *Client) Statistic(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.call(ctx, "getStatistic", url.Values{})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// WorkThreadsLoad returns the engine's per-thread load as raw JSON.
func (c *Client) WorkThreadsLoad(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.call(ctx, "getWorkThreadsLoad", url.Values{})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ServerConfig returns the engine's full configuration as raw JSON.
func (c *Client) ServerConfig(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.call(ctx, "getServerConfig", url.Values{})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// SetServerConfig applies configuration keys on the engine.
func (c *Client) SetServerConfig(ctx context.Context, settings map[string]string) error {
	params := url.Values{}
	for k, v := range settings {
		params.Set(k, v)
	}
	_, err := c.call(ctx, "setServerConfig", params)
	return err
}

func (c *Client) params(app, stream string) url.Values {
	v := url.Values{}
	v.Set("vhost", c.vhost)
	v.Set("app", app)
	v.Set("stream", stream)
	return v
}

// call performs one engine API round trip. The circuit breaker counts
// only transport-level failures: an explicit rejection is a healthy
// engine saying no, and must not open the circuit.
func (c *Client) call(ctx context.Context, op string, params url.Values) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("secret", c.secret)
	endpoint := fmt.Sprintf("%s/index/api/%s?%s", c.baseURL, op, params.Encode())

	resp, err := c.breaker.Execute(func() (*apiResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		httpResp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = httpResp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		var decoded apiResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, fmt.Errorf("decode %s response (status %d): %w", op, httpResp.StatusCode, err)
		}
		return &decoded, nil
	})
	if err != nil {
		metrics.EngineCommands.WithLabelValues(op, "unavailable").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrEngineUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	if resp.Code != codeSuccess {
		metrics.EngineCommands.WithLabelValues(op, "rejected").Inc()
		msg := resp.Msg
		if msg == "" {
			msg = codeMessage(resp.Code)
		}
		logging.Warn().Str("op", op).Int("code", resp.Code).Str("msg", msg).Msg("engine rejected command")
		return nil, &APIError{Code: resp.Code, Msg: msg}
	}

	metrics.EngineCommands.WithLabelValues(op, "ok").Inc()
	return resp, nil
}
