// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package hidio

import "sync"

// Loopback is an in-memory Transport for tests and device simulation.
// Written reports are captured for inspection, and inbound reports are
// injected with Inject. An optional OnWrite hook lets a simulated device
// respond to commands.
type Loopback struct {
	mu      sync.Mutex
	handler Handler
	writes  [][]byte
	closed  bool

	// OnWrite, when set, is invoked synchronously with a copy of every
	// written report (control or interrupt). Set before first use.
	OnWrite func(reportID byte, data []byte, control bool)
}

// NewLoopback creates an unconnected loopback transport.
func NewLoopback() *Loopback {
	return &Loopback{}
}

func (l *Loopback) record(reportID byte, data []byte, control bool) (int, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, ErrClosed
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	l.writes = append(l.writes, buf)
	hook := l.OnWrite
	l.mu.Unlock()

	if hook != nil {
		hook(reportID, buf, control)
	}
	return len(data), nil
}

// WriteReport captures an interrupt OUT report.
func (l *Loopback) WriteReport(data []byte) (int, error) {
	var id byte
	if len(data) > 0 {
		id = data[0]
	}
	return l.record(id, data, false)
}

// SetReport captures a control-transfer Set_Report.
func (l *Loopback) SetReport(reportID byte, data []byte) (int, error) {
	return l.record(reportID, data, true)
}

// SetHandler registers the inbound handler.
func (l *Loopback) SetHandler(h Handler) {
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
}

// Inject delivers an inbound report to the registered handler, as the
// device (or other software sharing the device) would.
func (l *Loopback) Inject(data []byte) {
	l.mu.Lock()
	h := l.handler
	closed := l.closed
	l.mu.Unlock()

	if closed || h == nil {
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	h(buf)
}

// Writes returns copies of all captured reports in transmission order.
func (l *Loopback) Writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([][]byte, len(l.writes))
	for i, w := range l.writes {
		buf := make([]byte, len(w))
		copy(buf, w)
		out[i] = buf
	}
	return out
}

// Reset discards captured reports.
func (l *Loopback) Reset() {
	l.mu.Lock()
	l.writes = nil
	l.mu.Unlock()
}

// Close marks the transport closed.
func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

var _ Transport = (*Loopback)(nil)
