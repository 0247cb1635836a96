// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cooling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/liquidctl/liquidtux/pkg/hidio"
)

// ============================================================
// Fake Driver and Device
// ============================================================

// Wire format of the fake protocol. Outbound: [op, seq, value]. Inbound:
// [marker, seq, tempC, fwMinor].
const (
	fakeMarker   = 0xAA
	fakeOpInit   = 0x01
	fakeOpStatus = 0x02
	fakeOpMain   = 0x03
	fakeOpAux    = 0x04
	fakeOpFw     = 0x05
)

type fakeDriver struct {
	spec Spec

	mu        sync.Mutex
	committed []int64
}

// commitCount reports how many write sequences ran their commit hook.
func (d *fakeDriver) commitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.committed)
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{spec: Spec{
		Name:            "fake",
		OutputLength:    8,
		MinInputLength:  4,
		Validity:        time.Second,
		Timeout:         60 * time.Millisecond,
		OnDemandRefresh: true,
		PadOutput:       true,
		SeqMod:          31,
	}}
}

func (d *fakeDriver) Spec() Spec { return d.spec }

func (d *fakeDriver) Channels() []ChannelInfo {
	return []ChannelInfo{
		{Kind: KindTemp, Index: 1, Label: "Coolant"},
		{Kind: KindPWM, Index: 1, Label: "Pump", Writable: true},
	}
}

func (d *fakeDriver) Decode(data []byte) (*Inbound, error) {
	if data[0] != fakeMarker {
		return nil, nil
	}
	if data[1] == 0xFF {
		return nil, &ProtocolError{Reason: "checksum mismatch", Size: len(data), Checksum: true}
	}
	in := &Inbound{
		Key:    uint32(data[1]),
		HasKey: true,
		Measurements: []Measurement{
			{Kind: KindTemp, Index: 1, Value: int64(data[2]) * 1000},
		},
	}
	if data[3] != 0 {
		in.Firmware = fmt.Sprintf("1.%d", data[3])
	}
	return in, nil
}

func (d *fakeDriver) cmd(op byte, seq uint8, val byte) Command {
	return Command{Data: []byte{op, seq, val}, Key: uint32(seq), HasKey: true}
}

func (d *fakeDriver) InitCommands(next SeqFunc) ([]Command, error) {
	return []Command{d.cmd(fakeOpInit, next(), 0)}, nil
}

func (d *fakeDriver) StatusRequest(next SeqFunc) (Command, error) {
	return d.cmd(fakeOpStatus, next(), 0), nil
}

func (d *fakeDriver) FirmwareRequest(next SeqFunc) (Command, error) {
	return d.cmd(fakeOpFw, next(), 0), nil
}

func (d *fakeDriver) ComposeWrite(req WriteRequest, next SeqFunc) ([]Command, []Measurement, error) {
	if req.Kind != KindPWM || req.Index != 1 {
		return nil, nil, ErrUnsupported
	}
	if req.Value < 0 || req.Value > 255 {
		return nil, nil, &ValidationError{Field: "pwm", Value: req.Value, Message: "must be 0-255"}
	}
	duty := byte(req.Value)
	cmds := []Command{
		d.cmd(fakeOpMain, next(), duty),
		d.cmd(fakeOpAux, next(), duty),
	}
	// Commanded state latches only once the whole pair went out.
	cmds[1].Commit = func() {
		d.mu.Lock()
		d.committed = append(d.committed, req.Value)
		d.mu.Unlock()
	}
	echo := []Measurement{{Kind: KindPWM, Index: 1, Value: req.Value}}
	return cmds, echo, nil
}

// fakeDevice simulates the device side on a loopback transport. Fault
// injection is configured after session init so the probe sequence
// always succeeds.
type fakeDevice struct {
	lb *hidio.Loopback

	mu   sync.Mutex
	temp byte
	fw   byte
	// mute drops the response to a matching command.
	mute func(op byte, seq uint8) bool
	// skew rewrites the echoed sequence number, simulating replies
	// meant for another program sharing the device.
	skew func(seq uint8) []uint8
}

func (dev *fakeDevice) respond(_ byte, data []byte, _ bool) {
	op, seq := data[0], data[1]

	dev.mu.Lock()
	temp, fw := dev.temp, dev.fw
	mute, skew := dev.mute, dev.skew
	dev.mu.Unlock()

	if mute != nil && mute(op, seq) {
		return
	}
	var fwByte byte
	if op == fakeOpFw {
		fwByte = fw
	}
	keys := []uint8{seq}
	if skew != nil {
		keys = skew(seq)
	}
	for _, k := range keys {
		dev.lb.Inject([]byte{fakeMarker, k, temp, fwByte})
	}
}

func newTestSession(t *testing.T, drv Driver) (*Session, *fakeDevice, *hidio.Loopback) {
	t.Helper()
	lb := hidio.NewLoopback()
	dev := &fakeDevice{lb: lb, temp: 30, fw: 3}
	lb.OnWrite = dev.respond

	s, err := NewSession(context.Background(), drv, lb)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, dev, lb
}

// ============================================================
// Refresh Policy Tests
// ============================================================

func TestSession_OnDemandRefresh(t *testing.T) {
	s, _, lb := newTestSession(t, newFakeDriver())
	lb.Reset() // drop the init traffic

	r, err := s.Read(context.Background(), KindTemp, 1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Value != 30000 {
		t.Errorf("temp = %d, expected 30000", r.Value)
	}
	if n := len(lb.Writes()); n != 1 {
		t.Errorf("expected exactly one status request, got %d writes", n)
	}

	// A second read within the validity window is served from cache.
	if _, err := s.Read(context.Background(), KindTemp, 1); err != nil {
		t.Fatalf("cached Read: %v", err)
	}
	if n := len(lb.Writes()); n != 1 {
		t.Errorf("cached read must not touch the device, got %d writes", n)
	}
}

func TestSession_ReadTimeoutWhenDeviceSilent(t *testing.T) {
	s, dev, _ := newTestSession(t, newFakeDriver())

	dev.mu.Lock()
	dev.mute = func(op byte, _ uint8) bool { return op == fakeOpStatus }
	dev.mu.Unlock()

	_, err := s.Read(context.Background(), KindTemp, 1)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if s.Stats().Timeouts != 1 {
		t.Errorf("timeouts = %d, expected 1", s.Stats().Timeouts)
	}
}

func TestSession_PassivePolicyReturnsStale(t *testing.T) {
	drv := newFakeDriver()
	drv.spec.OnDemandRefresh = false
	s, _, lb := newTestSession(t, drv)
	lb.Reset()

	_, err := s.Read(context.Background(), KindTemp, 1)
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if n := len(lb.Writes()); n != 0 {
		t.Errorf("passive policy must not poll, got %d writes", n)
	}

	// An asynchronous report fills the cache without any request.
	lb.Inject([]byte{fakeMarker, 0, 27, 0})
	r, err := s.Read(context.Background(), KindTemp, 1)
	if err != nil {
		t.Fatalf("Read after push: %v", err)
	}
	if r.Value != 27000 {
		t.Errorf("temp = %d, expected 27000", r.Value)
	}
}

// ============================================================
// Write Pipeline Tests
// ============================================================

func TestSession_WriteOrderingAndEcho(t *testing.T) {
	drv := newFakeDriver()
	s, _, lb := newTestSession(t, drv)
	lb.Reset()

	if err := s.Write(context.Background(), WriteRequest{Kind: KindPWM, Index: 1, Value: 128}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	writes := lb.Writes()
	if len(writes) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(writes))
	}
	if writes[0][0] != fakeOpMain || writes[1][0] != fakeOpAux {
		t.Errorf("commands out of order: %#x then %#x", writes[0][0], writes[1][0])
	}
	for i, w := range writes {
		if len(w) != 8 {
			t.Errorf("command %d not padded: len %d", i, len(w))
		}
		if w[2] != 128 {
			t.Errorf("command %d duty = %d, expected 128", i, w[2])
		}
	}

	// The commanded value is served from cache; the device cannot
	// report it back.
	r, err := s.Read(context.Background(), KindPWM, 1)
	if err != nil {
		t.Fatalf("Read pwm: %v", err)
	}
	if r.Value != 128 {
		t.Errorf("pwm echo = %d, expected 128", r.Value)
	}
	if n := len(lb.Writes()); n != 2 {
		t.Errorf("pwm read must not touch the device, got %d writes", n)
	}
	if n := drv.commitCount(); n != 1 {
		t.Errorf("commit hook ran %d times, expected 1", n)
	}
}

func TestSession_WriteAbortsOnUnackedMain(t *testing.T) {
	s, dev, lb := newTestSession(t, newFakeDriver())

	dev.mu.Lock()
	dev.mute = func(op byte, _ uint8) bool { return op == fakeOpMain }
	dev.mu.Unlock()
	lb.Reset()

	err := s.Write(context.Background(), WriteRequest{Kind: KindPWM, Index: 1, Value: 200})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// The main command must not be retried and the secondary must not
	// be sent at all; a repeat would arrive out of order.
	writes := lb.Writes()
	if len(writes) != 1 || writes[0][0] != fakeOpMain {
		t.Fatalf("expected exactly one main command, got %d writes", len(writes))
	}

	// The cache must not pretend the write happened.
	if _, err := s.Read(context.Background(), KindPWM, 1); !errors.Is(err, ErrStale) {
		t.Errorf("failed write leaked into cache: %v", err)
	}
}

func TestSession_WriteAbortsOnUnackedSecondary(t *testing.T) {
	drv := newFakeDriver()
	s, dev, lb := newTestSession(t, drv)

	dev.mu.Lock()
	dev.mute = func(op byte, _ uint8) bool { return op == fakeOpAux }
	dev.mu.Unlock()
	lb.Reset()

	err := s.Write(context.Background(), WriteRequest{Kind: KindPWM, Index: 1, Value: 200})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// The secondary's failure must not re-send or duplicate the main
	// command; each member goes out exactly once, in order.
	writes := lb.Writes()
	if len(writes) != 2 {
		t.Fatalf("expected exactly main then secondary, got %d writes", len(writes))
	}
	if writes[0][0] != fakeOpMain || writes[1][0] != fakeOpAux {
		t.Errorf("commands out of order: %#x then %#x", writes[0][0], writes[1][0])
	}

	// Neither the optimistic echo nor the driver's commit hook may run
	// for a sequence that did not complete.
	if _, err := s.Read(context.Background(), KindPWM, 1); !errors.Is(err, ErrStale) {
		t.Errorf("failed write leaked into cache: %v", err)
	}
	if n := drv.commitCount(); n != 0 {
		t.Errorf("commit hook ran %d times on a failed sequence", n)
	}
}

func TestSession_WriteValidationRejectedBeforeSend(t *testing.T) {
	s, _, lb := newTestSession(t, newFakeDriver())
	lb.Reset()

	err := s.Write(context.Background(), WriteRequest{Kind: KindPWM, Index: 1, Value: 300})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if n := len(lb.Writes()); n != 0 {
		t.Errorf("rejected write reached the device: %d writes", n)
	}
}

func TestSession_ConcurrentWritesStayPaired(t *testing.T) {
	s, _, lb := newTestSession(t, newFakeDriver())
	lb.Reset()

	const writers, perWriter = 8, 5
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(base int64) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				val := (base*int64(perWriter)+int64(i))*5 + 1
				if err := s.Write(context.Background(), WriteRequest{Kind: KindPWM, Index: 1, Value: val}); err != nil {
					t.Errorf("Write(%d): %v", val, err)
				}
			}
		}(int64(w))
	}
	wg.Wait()

	writes := lb.Writes()
	if len(writes) != writers*perWriter*2 {
		t.Fatalf("expected %d commands, got %d", writers*perWriter*2, len(writes))
	}
	// The output lock spans whole sequences, so main/secondary pairs
	// never interleave and each pair carries one duty value.
	for i := 0; i < len(writes); i += 2 {
		main, aux := writes[i], writes[i+1]
		if main[0] != fakeOpMain || aux[0] != fakeOpAux {
			t.Fatalf("pair %d interleaved: %#x then %#x", i/2, main[0], aux[0])
		}
		if main[2] != aux[2] {
			t.Errorf("pair %d duty mismatch: %d vs %d", i/2, main[2], aux[2])
		}
	}
}

func TestSession_SequenceWrapsWithoutZero(t *testing.T) {
	s, _, lb := newTestSession(t, newFakeDriver())
	lb.Reset()

	for i := 0; i < 20; i++ {
		if err := s.Write(context.Background(), WriteRequest{Kind: KindPWM, Index: 1, Value: 100}); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	wrapped := false
	for _, w := range lb.Writes() {
		seq := w[1]
		if seq < 1 || seq > 31 {
			t.Fatalf("sequence %d out of 1..31", seq)
		}
		if seq == 1 {
			wrapped = true
		}
	}
	// init consumed seq 1; 40 more allocations must wrap past 31.
	if !wrapped {
		t.Error("sequence counter never wrapped")
	}
}

// ============================================================
// Correlation and Robustness Tests
// ============================================================

func TestSession_ForeignReplyLeavesTransactionArmed(t *testing.T) {
	s, dev, _ := newTestSession(t, newFakeDriver())

	// The device answers with someone else's sequence first, then ours.
	dev.mu.Lock()
	dev.skew = func(seq uint8) []uint8 { return []uint8{seq%31 + 1, seq} }
	dev.mu.Unlock()

	r, err := s.Read(context.Background(), KindTemp, 1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Value != 30000 {
		t.Errorf("temp = %d, expected 30000", r.Value)
	}
	if s.Stats().ForeignReports == 0 {
		t.Error("foreign reply was not counted")
	}
}

func TestSession_CrossTalkOnlyTimesOut(t *testing.T) {
	s, dev, _ := newTestSession(t, newFakeDriver())

	dev.mu.Lock()
	dev.skew = func(seq uint8) []uint8 { return []uint8{seq%31 + 1} }
	dev.mu.Unlock()

	_, err := s.Read(context.Background(), KindTemp, 1)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if s.Stats().ForeignReports == 0 {
		t.Error("foreign reply was not counted")
	}
}

func TestSession_CorruptReportDoesNotResolve(t *testing.T) {
	s, dev, _ := newTestSession(t, newFakeDriver())

	// Echo a checksum-failed report instead of a valid reply.
	dev.mu.Lock()
	dev.skew = func(uint8) []uint8 { return []uint8{0xFF} }
	dev.mu.Unlock()

	_, err := s.Read(context.Background(), KindTemp, 1)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if s.Stats().CRCErrors == 0 {
		t.Error("checksum failure was not counted")
	}
	if _, err := s.Read(context.Background(), KindPWM, 1); !errors.Is(err, ErrStale) {
		t.Errorf("corrupt report leaked into cache: %v", err)
	}
}

func TestSession_UnknownReportIgnored(t *testing.T) {
	s, _, lb := newTestSession(t, newFakeDriver())

	lb.Inject([]byte{0xBB, 0x01, 0x02, 0x03})
	if s.Stats().IgnoredReports != 1 {
		t.Errorf("ignored = %d, expected 1", s.Stats().IgnoredReports)
	}
}

func TestSession_ShortReportRejected(t *testing.T) {
	s, _, lb := newTestSession(t, newFakeDriver())

	lb.Inject([]byte{fakeMarker, 0x01})
	if s.Stats().DecodeErrors != 1 {
		t.Errorf("decode errors = %d, expected 1", s.Stats().DecodeErrors)
	}
}

// ============================================================
// Firmware and Lifecycle Tests
// ============================================================

func TestSession_FirmwareWriteOnce(t *testing.T) {
	s, dev, lb := newTestSession(t, newFakeDriver())

	fw, err := s.FirmwareVersion(context.Background())
	if err != nil {
		t.Fatalf("FirmwareVersion: %v", err)
	}
	if fw != "1.3" {
		t.Errorf("firmware = %q, expected 1.3", fw)
	}

	// A later, different report must not overwrite the recorded
	// version, and the cached string is served without device traffic.
	dev.mu.Lock()
	dev.fw = 9
	dev.mu.Unlock()
	before := len(lb.Writes())

	fw, err = s.FirmwareVersion(context.Background())
	if err != nil {
		t.Fatalf("second FirmwareVersion: %v", err)
	}
	if fw != "1.3" {
		t.Errorf("firmware changed to %q", fw)
	}
	if n := len(lb.Writes()); n != before {
		t.Errorf("cached firmware query touched the device: %d extra writes", n-before)
	}
}

func TestSession_CloseCancelsWaiter(t *testing.T) {
	drv := newFakeDriver()
	drv.spec.Timeout = 5 * time.Second
	s, dev, _ := newTestSession(t, drv)

	dev.mu.Lock()
	dev.mute = func(op byte, _ uint8) bool { return op == fakeOpStatus }
	dev.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := s.Read(context.Background(), KindTemp, 1)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	s.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by Close")
	}

	if _, err := s.Read(context.Background(), KindTemp, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Read after Close: %v", err)
	}
	if err := s.Write(context.Background(), WriteRequest{Kind: KindPWM, Index: 1, Value: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close: %v", err)
	}
}

// ============================================================
// Curve Writer Tests
// ============================================================

// fakeCurveDriver adds curve control to the fake protocol.
type fakeCurveDriver struct {
	*fakeDriver
}

func (d *fakeCurveDriver) CurvePoints() int { return 5 }

func (d *fakeCurveDriver) ComposeCurve(index int, points []uint8, next SeqFunc) ([]Command, []Measurement, error) {
	if index != 1 {
		return nil, nil, ErrUnsupported
	}
	if err := ValidateCurve(points, 20); err != nil {
		return nil, nil, err
	}
	data := append([]byte{fakeOpMain, next()}, points...)
	return []Command{{Data: data, Key: uint32(data[1]), HasKey: true}}, nil, nil
}

func TestSession_WriteCurve(t *testing.T) {
	s, _, lb := newTestSession(t, &fakeCurveDriver{newFakeDriver()})
	lb.Reset()

	if err := s.WriteCurve(context.Background(), 1, []uint8{20, 40, 60, 80, 100}); err != nil {
		t.Fatalf("WriteCurve: %v", err)
	}
	writes := lb.Writes()
	if len(writes) != 1 {
		t.Fatalf("expected 1 command, got %d", len(writes))
	}
	if writes[0][6] != 100 {
		t.Errorf("last curve point = %d, expected 100", writes[0][6])
	}
}

func TestSession_WriteCurveValidation(t *testing.T) {
	s, _, lb := newTestSession(t, &fakeCurveDriver{newFakeDriver()})
	lb.Reset()

	var verr *ValidationError
	if err := s.WriteCurve(context.Background(), 1, []uint8{20, 40}); !errors.As(err, &verr) {
		t.Errorf("wrong length: expected ValidationError, got %v", err)
	}
	if err := s.WriteCurve(context.Background(), 1, []uint8{80, 40, 60, 80, 100}); !errors.As(err, &verr) {
		t.Errorf("decreasing curve: expected ValidationError, got %v", err)
	}
	if n := len(lb.Writes()); n != 0 {
		t.Errorf("invalid curve reached the device: %d writes", n)
	}
}

func TestSession_WriteCurveUnsupportedDriver(t *testing.T) {
	s, _, _ := newTestSession(t, newFakeDriver())

	err := s.WriteCurve(context.Background(), 1, []uint8{20, 40, 60, 80, 100})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
