// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package hidio

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// SerialTransport carries reports over a serial protocol bridge, used on
// bring-up rigs where the cooler's HID endpoints are tunneled through a
// microcontroller. The bridge frames traffic as fixed-size chunks: every
// report occupies exactly ReportSize bytes on the wire in each direction,
// zero padded, with the report ID in the first byte. Control-transfer
// Set_Report is performed by the bridge firmware, so both send paths look
// identical from this side.
type SerialTransport struct {
	port       serial.Port
	reportSize int

	mu      sync.Mutex
	handler Handler
	closed  bool
	done    chan struct{}
}

// OpenSerial opens a serial bridge and starts the read loop. reportSize
// is the fixed frame size both directions use, normally the device's
// input report length plus the report ID byte.
func OpenSerial(portName string, baudRate, reportSize int) (*SerialTransport, error) {
	if reportSize <= 0 {
		return nil, fmt.Errorf("invalid report size %d", reportSize)
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}

	t := &SerialTransport{port: port, reportSize: reportSize, done: make(chan struct{})}
	go t.readLoop()
	return t, nil
}

func (t *SerialTransport) readLoop() {
	defer close(t.done)

	for {
		frame := make([]byte, t.reportSize)
		if _, err := io.ReadFull(t.port, frame); err != nil {
			return
		}

		t.mu.Lock()
		h := t.handler
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
		if h != nil {
			h(frame)
		}
	}
}

func (t *SerialTransport) writeFrame(data []byte) (int, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if len(data) > t.reportSize {
		return 0, fmt.Errorf("report of %d bytes exceeds frame size %d", len(data), t.reportSize)
	}

	frame := make([]byte, t.reportSize)
	copy(frame, data)
	if _, err := t.port.Write(frame); err != nil {
		return 0, err
	}
	return len(data), nil
}

// WriteReport sends one report as a fixed-size frame.
func (t *SerialTransport) WriteReport(data []byte) (int, error) {
	return t.writeFrame(data)
}

// SetReport sends one report as a fixed-size frame; the bridge issues
// the actual control transfer.
func (t *SerialTransport) SetReport(_ byte, data []byte) (int, error) {
	return t.writeFrame(data)
}

// SetHandler registers the inbound handler.
func (t *SerialTransport) SetHandler(h Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Close closes the port and stops the read loop.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.port.Close()
	<-t.done
	return err
}

var _ Transport = (*SerialTransport)(nil)
