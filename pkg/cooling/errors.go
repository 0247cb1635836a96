// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cooling

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers of Session read/write operations.
var (
	// ErrStale means the cached value is older than the protocol's
	// validity window. Expected immediately after session start and
	// after a missed poll; not a device fault.
	ErrStale = errors.New("sensor data is stale")

	// ErrTimeout means no matching response arrived within the
	// transaction deadline. Not retried automatically.
	ErrTimeout = errors.New("timed out waiting for device response")

	// ErrUnsupported means the channel or operation does not exist on
	// this device kind.
	ErrUnsupported = errors.New("operation not supported by this device")

	// ErrClosed means the session has been torn down.
	ErrClosed = errors.New("session closed")
)

// ProtocolError reports a single malformed, corrupt or checksum-failed
// inbound report. It is recoverable: the report is dropped without any
// cache mutation and any armed transaction stays armed.
type ProtocolError struct {
	Reason   string
	Size     int
	Checksum bool // true when the failure was a checksum mismatch
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s (report size %d)", e.Reason, e.Size)
}

// ValidationError reports a caller-supplied control value that is out of
// range or logically inconsistent. Rejected before any transmission.
type ValidationError struct {
	Field   string
	Value   int64
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s=%d: %s", e.Field, e.Value, e.Message)
}

// TransportError wraps a failure of the underlying report send path, such
// as a disconnected device or a stalled pipe from wrong command ordering.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
