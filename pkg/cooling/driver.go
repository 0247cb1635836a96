// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cooling

import "time"

// Spec is the immutable protocol descriptor a driver hands to the
// session: report geometry, timing constants and refresh policy. Exact
// header layouts, field offsets and checksum algorithms stay inside the
// driver package; the session only needs what is declared here.
type Spec struct {
	// Name identifies the protocol in logs and telemetry.
	Name string

	// OutputLength is the fixed outbound report size in bytes.
	OutputLength int

	// MinInputLength is the minimum inbound report size; shorter
	// reports are rejected before the driver sees them.
	MinInputLength int

	// Validity is the staleness window for cached sensor values.
	Validity time.Duration

	// Timeout bounds every send-and-wait transaction.
	Timeout time.Duration

	// OnDemandRefresh selects the refresh policy: when true, a stale
	// read triggers a status request and blocks on its response; when
	// false the cache is populated purely by asynchronous reports.
	OnDemandRefresh bool

	// ControlTransfer routes outbound reports through a Set_Report
	// control transfer instead of the interrupt OUT pipe.
	ControlTransfer bool

	// PadOutput zero-pads commands to OutputLength before sending.
	// Protocols like the Grid+ V3 send short reports verbatim.
	PadOutput bool

	// SeqMod is the wrap modulus of the per-device sequence counter
	// (the counter runs 1..SeqMod). Zero when the protocol has no
	// sequence numbers.
	SeqMod uint8
}

// SeqFunc allocates the next sequence number for an outbound report. It
// is provided by the session and is only valid for the duration of the
// compose call; the session guarantees it is invoked under the same lock
// that serializes output-buffer reuse.
type SeqFunc func() uint8

// Command is one fully formed outbound report. It is built fresh per
// write and never mutated once returned; the session copies it into the
// device scratch buffer for transmission.
type Command struct {
	// Data is the complete wire content, including any report ID
	// prefix the transport expects.
	Data []byte

	// Key is the correlation key the acknowledging inbound report
	// will carry. When HasKey is set, the session arms a transaction
	// before sending and waits for the matching report (or timeout)
	// before the next command in a sequence may be sent.
	Key    uint32
	HasKey bool

	// Commit, when set, runs once this command was sent successfully
	// (and acknowledged, when HasKey is set). Drivers use it to latch
	// commanded state that Decode later reads back, so a failed send
	// never pollutes subsequent reports.
	Commit func()
}

// Inbound is the decoded content of one input report.
type Inbound struct {
	// Measurements are applied to the sensor cache atomically. Empty
	// for pure acknowledgements.
	Measurements []Measurement

	// Key correlates this report to a pending transaction (echoed
	// sequence number or report ID, depending on the protocol).
	Key    uint32
	HasKey bool

	// Firmware carries the device firmware version when this report
	// contains it; the session records it write-once.
	Firmware string
}

// WriteRequest is one control operation against a writable channel, with
// the value on its host-facing scale (0-255 for duty).
type WriteRequest struct {
	Kind  ChannelKind
	Index int
	Value int64
}

// Driver implements one device protocol: codec, command composition and
// per-model channel layout. Compose methods are always invoked under the
// session's output lock and must not block.
type Driver interface {
	// Spec returns the protocol descriptor. The returned value must
	// not change for the life of the session.
	Spec() Spec

	// Channels enumerates the device's channel set, fixed at session
	// creation.
	Channels() []ChannelInfo

	// Decode parses one inbound report. Unknown or foreign report IDs
	// return (nil, nil) and are ignored. Malformed or checksum-failed
	// reports return a *ProtocolError; nothing reaches the cache.
	Decode(data []byte) (*Inbound, error)

	// InitCommands returns the ordered sequence that brings the device
	// to a known-safe state at session start (the device powers up in
	// an indeterminate state and holds no settings across power
	// cycles).
	InitCommands(next SeqFunc) ([]Command, error)

	// StatusRequest builds the status poll used by the on-demand
	// refresh policy. Drivers with a purely passive protocol return
	// ErrUnsupported.
	StatusRequest(next SeqFunc) (Command, error)

	// FirmwareRequest builds the firmware version query, or returns
	// ErrUnsupported for devices that never report one. Drivers whose
	// firmware version arrives in ordinary status replies may also
	// return ErrUnsupported and rely on Inbound.Firmware.
	FirmwareRequest(next SeqFunc) (Command, error)

	// ComposeWrite validates a control request, folds it into the
	// driver's target state and returns the ordered command sequence
	// realizing it, plus the optimistic cache updates to apply after
	// the whole sequence succeeded (most devices cannot report back
	// what was commanded).
	ComposeWrite(req WriteRequest, next SeqFunc) ([]Command, []Measurement, error)
}

// CurveWriter is implemented by drivers whose devices are controlled
// through a temperature-indexed duty curve.
type CurveWriter interface {
	// CurvePoints returns the fixed size of the device's curve table.
	CurvePoints() int

	// ComposeCurve validates and encodes a whole replacement curve for
	// a control channel. The table is validated in full before any
	// command is produced.
	ComposeCurve(index int, points []uint8, next SeqFunc) ([]Command, []Measurement, error)
}
