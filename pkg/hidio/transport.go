// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

// Package hidio provides the report transport used by the cooling engine:
// fixed-size binary reports written to the device and inbound reports
// delivered asynchronously to a registered handler. Implementations cover
// Linux hidraw devices, serial protocol bridges used on bring-up rigs,
// WebSocket bridges for remote rigs, and an in-memory loopback for tests.
package hidio

import "errors"

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("transport closed")

// Handler receives one inbound report per invocation. It runs on the
// transport's delivery goroutine and must be fast and non-blocking; the
// buffer is only valid for the duration of the call and must be copied
// if retained.
type Handler func(data []byte)

// Transport sends reports to a device and delivers inbound reports to a
// registered handler.
type Transport interface {
	// WriteReport sends an output report on the interrupt OUT pipe
	// (or the closest equivalent the bridge offers). Returns the
	// number of bytes written.
	WriteReport(data []byte) (int, error)

	// SetReport issues a control-transfer Set_Report for protocols
	// that do not accept interrupt OUT commands.
	SetReport(reportID byte, data []byte) (int, error)

	// SetHandler registers the inbound report handler. Must be called
	// before the first report can arrive; a nil handler drops reports.
	SetHandler(h Handler)

	// Close releases the device. Pending deliveries stop; it is safe
	// to call more than once.
	Close() error
}
