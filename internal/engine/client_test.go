// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/nanonvr/internal/config"
)

func testClient(serverURL string) *Client {
	return NewClient(&config.EngineConfig{
		URL:             serverURL,
		Secret:          "test-secret",
		Vhost:           "__defaultVhost__",
		Timeout:         2 * time.Second,
		BreakerFailures: 3,
		BreakerCooldown: time.Minute,
	})
}

func TestAddStreamProxy(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"data":{"key":"__defaultVhost__/live/cam1"}}`))
	}))
	defer srv.Close()

	key, err := testClient(srv.URL).AddStreamProxy(context.Background(), "live", "cam1", "rtsp://10.0.0.5/stream")
	if err != nil {
		t.Fatalf("AddStreamProxy failed: %v", err)
	}
	if key != "__defaultVhost__/live/cam1" {
		t.Errorf("key = %q", key)
	}
	if gotPath != "/index/api/addStreamProxy" {
		t.Errorf("path = %q", gotPath)
	}
	for param, want := range map[string]string{
		"secret": "test-secret",
		"app":    "live",
		"stream": "cam1",
		"url":    "rtsp://10.0.0.5/stream",
	} {
		if gotQuery[param] != want {
			t.Errorf("query %s = %q, want %q", param, gotQuery[param], want)
		}
	}
}

func TestStartRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/index/api/startRecord" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("type") != "1" {
			t.Errorf("type = %q, want 1 (mp4)", r.URL.Query().Get("type"))
		}
		if r.URL.Query().Get("max_second") != "300" {
			t.Errorf("max_second = %q, want 300", r.URL.Query().Get("max_second"))
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"result":true}}`))
	}))
	defer srv.Close()

	if err := testClient(srv.URL).StartRecord(context.Background(), "live", "cam1", 300); err != nil {
		t.Fatalf("StartRecord failed: %v", err)
	}
}

func TestRejectedCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":-500,"msg":"can not find the stream"}`))
	}))
	defer srv.Close()

	err := testClient(srv.URL).StopRecord(context.Background(), "live", "cam1")
	if !errors.Is(err, ErrEngineRejected) {
		t.Fatalf("err = %v, want ErrEngineRejected", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Code != -500 || apiErr.Msg != "can not find the stream" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":-100,"msg":""}`))
	}))
	defer srv.Close()

	err := testClient(srv.URL).CloseStreams(context.Background(), "live", "cam1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	// Empty engine message falls back to the documented code meaning.
	if apiErr.Msg == "" {
		t.Error("expected a fallback message for an empty engine msg")
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	err := testClient(srv.URL).CloseStreams(context.Background(), "live", "cam1")
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("err = %v, want ErrEngineUnavailable", err)
	}
}

func TestBreakerOpensOnConsecutiveFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	for range 3 {
		_ = client.CloseStreams(context.Background(), "live", "cam1")
	}

	// The breaker tripped; subsequent calls fail fast without a request.
	before := calls
	err := client.CloseStreams(context.Background(), "live", "cam1")
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("err = %v, want ErrEngineUnavailable with open circuit", err)
	}
	if calls != before {
		t.Errorf("request reached the engine with an open circuit (calls %d -> %d)", before, calls)
	}
}

func TestRejectionsDoNotTripBreaker(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"code":-1,"msg":"busy"}`))
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	for range 5 {
		err := client.StartRecord(context.Background(), "live", "cam1", 0)
		if !errors.Is(err, ErrEngineRejected) {
			t.Fatalf("err = %v, want ErrEngineRejected", err)
		}
	}
	if calls != 5 {
		t.Errorf("calls = %d, want every rejection to reach the engine", calls)
	}
}

func TestPassthroughData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/index/api/getStatistic" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"MediaSource":4,"TcpSession":12}}`))
	}))
	defer srv.Close()

	data, err := testClient(srv.URL).Statistic(context.Background())
	if err != nil {
		t.Fatalf("Statistic failed: %v", err)
	}
	if string(data) != `{"MediaSource":4,"TcpSession":12}` {
		t.Errorf("data = %s", data)
	}
}
