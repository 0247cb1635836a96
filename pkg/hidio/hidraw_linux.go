// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package hidio

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// hidraw ioctl number: _IOC(_IOC_WRITE|_IOC_READ, 'H', nr, len).
const hidiocNrSOutput = 0x0B

func hidioc(nr, length int) uint {
	return uint(3<<30 | length<<16 | 'H'<<8 | nr)
}

// HidrawTransport talks to a local device through /dev/hidrawN. Output
// reports go out with write(2); control-transfer Set_Report uses the
// HIDIOCSOUTPUT ioctl. A background goroutine reads input reports and
// hands them to the registered handler.
type HidrawTransport struct {
	f *os.File

	mu      sync.Mutex
	handler Handler
	closed  bool
	done    chan struct{}
}

// OpenHidraw opens a hidraw device node and starts the read loop.
func OpenHidraw(path string) (*HidrawTransport, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	t := &HidrawTransport{f: f, done: make(chan struct{})}
	go t.readLoop()
	return t, nil
}

func (t *HidrawTransport) readLoop() {
	defer close(t.done)

	// Largest input report any supported device produces is 64 bytes;
	// leave headroom for the report ID prefix and future devices.
	buf := make([]byte, 256)
	for {
		n, err := t.f.Read(buf)
		if err != nil {
			return
		}
		if n <= 0 {
			continue
		}

		t.mu.Lock()
		h := t.handler
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
		if h == nil {
			continue
		}
		report := make([]byte, n)
		copy(report, buf[:n])
		h(report)
	}
}

// WriteReport sends an output report on the interrupt OUT pipe.
func (t *HidrawTransport) WriteReport(data []byte) (int, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return t.f.Write(data)
}

// SetReport issues a control-transfer Set_Report with the report ID in
// the first byte of data, per the hidraw contract.
func (t *HidrawTransport) SetReport(_ byte, data []byte) (int, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("empty report")
	}

	conn, err := t.f.SyscallConn()
	if err != nil {
		return 0, err
	}
	var ierr error
	err = conn.Control(func(fd uintptr) {
		_, _, errno := unix.Syscall(
			unix.SYS_IOCTL,
			fd,
			uintptr(hidioc(hidiocNrSOutput, len(data))),
			uintptr(unsafe.Pointer(&data[0])),
		)
		if errno != 0 {
			ierr = errno
		}
	})
	if err != nil {
		return 0, err
	}
	if ierr != nil {
		return 0, fmt.Errorf("HIDIOCSOUTPUT: %w", ierr)
	}
	return len(data), nil
}

// SetHandler registers the inbound handler.
func (t *HidrawTransport) SetHandler(h Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Close releases the device node and stops the read loop.
func (t *HidrawTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.f.Close()
	<-t.done
	return err
}

var _ Transport = (*HidrawTransport)(nil)
