// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

// Package cooling implements the device-independent engine shared by all
// supported liquid-cooling protocols: a per-device session with a reused
// output buffer and sequence counter, a single-slot transaction pairing
// outbound commands with correlated inbound reports, a staleness-bounded
// sensor cache, and an ordered write pipeline for control commands.
//
// Device protocols (wire framing, checksums, field offsets) live in their
// own packages (hydro, kraken, grid) and plug in through the Driver
// interface. Transports (hidraw, serial and WebSocket bridges) live in
// package hidio.
package cooling
