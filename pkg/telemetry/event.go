// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

// Package telemetry captures protocol traffic and session events in a
// compact CBOR stream, for offline analysis of device behavior: reply
// latencies, corrupt report rates, cross-talk from other programs on a
// shared device.
package telemetry

import "time"

// Event is one captured protocol event. CBOR encoding uses integer keys
// for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID uniquely identifies the device session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Driver names the protocol in use.
	Driver string `cbor:"3,keyasint"`

	// Direction indicates report flow.
	Direction Direction `cbor:"4,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"5,keyasint"`

	// Type-specific payload (one of these will be set).
	Report *ReportEvent `cbor:"6,keyasint,omitempty"`
	State  *StateEvent  `cbor:"7,keyasint,omitempty"`
	Error  *ErrorEvent  `cbor:"8,keyasint,omitempty"`
}

// Direction indicates the direction of report flow.
type Direction uint8

// Directions.
const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

// Categories.
const (
	CategoryReport Category = 0
	CategoryState  Category = 1
	CategoryError  Category = 2
)

func (c Category) String() string {
	switch c {
	case CategoryReport:
		return "REPORT"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// maxCapturedBytes bounds the raw data stored per report; a truncated
// prefix is enough to identify report type and header fields.
const maxCapturedBytes = 32

// ReportEvent captures one raw report.
type ReportEvent struct {
	// Size is the full report size in bytes.
	Size int `cbor:"1,keyasint"`

	// Control marks an outbound control transfer rather than an
	// interrupt write.
	Control bool `cbor:"2,keyasint,omitempty"`

	// Data holds the report bytes, possibly truncated.
	Data []byte `cbor:"3,keyasint,omitempty"`

	// Truncated indicates Data was cut at maxCapturedBytes.
	Truncated bool `cbor:"4,keyasint,omitempty"`
}

// StateEvent captures a session lifecycle change.
type StateEvent struct {
	// NewState is the state entered.
	NewState string `cbor:"1,keyasint"`

	// Reason for the change, if available.
	Reason string `cbor:"2,keyasint,omitempty"`
}

// ErrorEvent captures a transport or protocol failure.
type ErrorEvent struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Context describes the operation that failed.
	Context string `cbor:"2,keyasint,omitempty"`
}

// captureData copies at most maxCapturedBytes of a report.
func captureData(data []byte) ([]byte, bool) {
	if len(data) <= maxCapturedBytes {
		out := make([]byte, len(data))
		copy(out, data)
		return out, false
	}
	out := make([]byte, maxCapturedBytes)
	copy(out, data)
	return out, true
}
