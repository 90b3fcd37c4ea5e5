// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package engine

import (
	"errors"
	"fmt"
)

// The engine error taxonomy. Callers branch on these two sentinels:
// unavailable is retryable, rejected is not.
var (
	// ErrEngineUnavailable covers timeouts, refused connections, open
	// circuit breaker, and 5xx responses without a decodable body.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrEngineRejected covers explicit non-zero result codes from the
	// engine: bad secret, unknown stream, invalid parameters.
	ErrEngineRejected = errors.New("engine rejected command")
)

// APIError carries the engine's own result code alongside the sentinel.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engine rejected command: code %d: %s", e.Code, e.Msg)
}

func (e *APIError) Unwrap() error { return ErrEngineRejected }

// ZLMediaKit result codes. Anything non-zero is a rejection; these get
// a friendlier message in logs.
const (
	codeSuccess     = 0
	codeOtherFailed = -1
	codeAuthFailed  = -100
	codeSQLFailed   = -200
	codeInvalidArgs = -300
	codeException   = -400
)

func codeMessage(code int) string {
	switch code {
	case codeOtherFailed:
		return "operation failed"
	case codeAuthFailed:
		return "authentication failed"
	case codeSQLFailed:
		return "engine storage failure"
	case codeInvalidArgs:
		return "invalid arguments"
	case codeException:
		return "engine exception"
	default:
		return "unknown engine error"
	}
}
