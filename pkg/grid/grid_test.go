// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package grid

import (
	"errors"
	"testing"

	"github.com/liquidctl/liquidtux/pkg/cooling"
)

func noSeq() uint8 { return 0 }

// statusReport builds a status report for a zero-based channel.
func statusReport(channel int, rpm uint16, volts, amps float64, fanType uint8) []byte {
	data := make([]byte, 21)
	data[0] = reportStatus
	data[3] = byte(rpm >> 8)
	data[4] = byte(rpm)
	cv := int(volts * 100)
	data[7] = byte(cv / 100)
	data[8] = byte(cv % 100)
	ca := int(amps * 100)
	data[9] = byte(ca / 100)
	data[10] = byte(ca % 100)
	data[15] = byte(channel)<<4 | fanType
	return data
}

// ============================================================
// Decode Tests
// ============================================================

func TestDecode_StatusReport(t *testing.T) {
	d := New(Models[0]) // Grid+ V3, 6 channels

	in, err := d.Decode(statusReport(2, 1344, 11.91, 0.15, fanTypePWM))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if in.HasKey {
		t.Error("status reports are unsolicited, no correlation key expected")
	}

	byKind := map[cooling.ChannelKind]cooling.Measurement{}
	for _, m := range in.Measurements {
		if m.Index != 3 {
			t.Errorf("measurement for channel %d, expected 3", m.Index)
		}
		byKind[m.Kind] = m
	}
	if got := byKind[cooling.KindFan].Value; got != 1344 {
		t.Errorf("rpm = %d, expected 1344", got)
	}
	if got := byKind[cooling.KindVoltage].Value; got != 11910 {
		t.Errorf("voltage = %d mV, expected 11910", got)
	}
}

func TestDecode_OutOfRangeChannelIgnored(t *testing.T) {
	d := New(Models[1]) // Smart Device, 3 channels

	in, err := d.Decode(statusReport(5, 1000, 12, 0.1, fanTypeDC))
	if err != nil || in != nil {
		t.Errorf("channel 5 on a 3-channel device: in=%v err=%v", in, err)
	}
}

func TestDecode_UnknownReportIgnored(t *testing.T) {
	d := New(Models[0])
	data := make([]byte, 21)
	data[0] = 0x99
	in, err := d.Decode(data)
	if err != nil || in != nil {
		t.Errorf("unknown report: in=%v err=%v", in, err)
	}
}

// pwmReadback extracts the PWM measurement from a decoded status report.
func pwmReadback(t *testing.T, d *Driver, report []byte) int64 {
	t.Helper()
	in, err := d.Decode(report)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for _, m := range in.Measurements {
		if m.Kind == cooling.KindPWM {
			return m.Value
		}
	}
	t.Fatal("status report carried no pwm measurement")
	return 0
}

func TestDecode_ValidatesCommandedDuty(t *testing.T) {
	d := New(Models[0])

	// Channel 0 was commanded to 200 and the send succeeded; a status
	// report for it carries that value into the cache.
	cmds, _, err := d.ComposeWrite(cooling.WriteRequest{Kind: cooling.KindPWM, Index: 1, Value: 200}, noSeq)
	if err != nil {
		t.Fatalf("ComposeWrite: %v", err)
	}
	cmds[0].Commit()

	if got := pwmReadback(t, d, statusReport(0, 900, 12, 0.05, fanTypePWM)); got != 200 {
		t.Errorf("pwm read-back = %d, expected 200", got)
	}
}

func TestDecode_FailedWriteNotReadBack(t *testing.T) {
	d := New(Models[0])

	// The command was composed but never reached the device. Status
	// reports must keep validating the power-on default, not a duty
	// the device never applied.
	if _, _, err := d.ComposeWrite(cooling.WriteRequest{Kind: cooling.KindPWM, Index: 1, Value: 200}, noSeq); err != nil {
		t.Fatalf("ComposeWrite: %v", err)
	}

	if got := pwmReadback(t, d, statusReport(0, 900, 12, 0.05, fanTypePWM)); got != 102 {
		t.Errorf("pwm read-back = %d, expected the power-on default 102", got)
	}
}

func TestFanTypeLatching(t *testing.T) {
	d := New(Models[0])

	if ft, err := d.FanType(1); err != nil || ft != cooling.FanTypeUnknown {
		t.Errorf("before detection: %v, %v", ft, err)
	}

	if _, err := d.Decode(statusReport(0, 800, 12, 0.1, fanTypeDC)); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ft, _ := d.FanType(1); ft != cooling.FanTypeDC {
		t.Errorf("fan type = %v, expected DC", ft)
	}

	if _, err := d.FanType(7); !errors.Is(err, cooling.ErrUnsupported) {
		t.Error("out-of-range channel should be unsupported")
	}
}

// ============================================================
// Command Tests
// ============================================================

func TestInitCommands(t *testing.T) {
	d := New(Models[1]) // 3 channels
	cmds, err := d.InitCommands(noSeq)
	if err != nil {
		t.Fatalf("InitCommands: %v", err)
	}
	if len(cmds) != 5 {
		t.Fatalf("expected detect + open + 3 duty writes, got %d", len(cmds))
	}

	if cmds[0].Data[0] != reportInit || cmds[0].Data[1] != initDetect {
		t.Errorf("first command = % x", cmds[0].Data)
	}
	if cmds[1].Data[0] != reportInit || cmds[1].Data[1] != initOpen {
		t.Errorf("second command = % x", cmds[1].Data)
	}

	// Power-on default: 40% on every channel.
	for i, cmd := range cmds[2:] {
		if len(cmd.Data) != 5 {
			t.Fatalf("duty command %d length = %d, expected 5 (sent verbatim)", i, len(cmd.Data))
		}
		if cmd.Data[2] != byte(i) || cmd.Data[4] != 40 {
			t.Errorf("duty command %d = % x, expected channel %d at 40%%", i, cmd.Data, i)
		}
	}
}

func TestComposeWrite_Layout(t *testing.T) {
	d := New(Models[0])
	cmds, echo, err := d.ComposeWrite(cooling.WriteRequest{Kind: cooling.KindPWM, Index: 4, Value: 255}, noSeq)
	if err != nil {
		t.Fatalf("ComposeWrite: %v", err)
	}

	data := cmds[0].Data
	want := []byte{reportConfig, configFanPWM, 3, 0x00, 100}
	if len(data) != len(want) {
		t.Fatalf("command length = %d, expected 5", len(data))
	}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("byte %d = %#x, expected %#x", i, data[i], want[i])
		}
	}
	if cmds[0].HasKey {
		t.Error("duty writes are not acknowledged")
	}
	if len(echo) != 1 || echo[0].Value != 255 {
		t.Errorf("echo = %v", echo)
	}
}

func TestComposeWrite_Validation(t *testing.T) {
	d := New(Models[1])

	var verr *cooling.ValidationError
	if _, _, err := d.ComposeWrite(cooling.WriteRequest{Kind: cooling.KindPWM, Index: 1, Value: -1}, noSeq); !errors.As(err, &verr) {
		t.Errorf("negative duty: %v", err)
	}
	if _, _, err := d.ComposeWrite(cooling.WriteRequest{Kind: cooling.KindPWM, Index: 4, Value: 100}, noSeq); !errors.Is(err, cooling.ErrUnsupported) {
		t.Errorf("channel 4 on a 3-channel device: %v", err)
	}
	if _, _, err := d.ComposeWrite(cooling.WriteRequest{Kind: cooling.KindFan, Index: 1, Value: 100}, noSeq); !errors.Is(err, cooling.ErrUnsupported) {
		t.Errorf("fan kind is read-only: %v", err)
	}
}

func TestNoPollingSurfaces(t *testing.T) {
	d := New(Models[0])
	if _, err := d.StatusRequest(noSeq); !errors.Is(err, cooling.ErrUnsupported) {
		t.Errorf("StatusRequest: %v", err)
	}
	if _, err := d.FirmwareRequest(noSeq); !errors.Is(err, cooling.ErrUnsupported) {
		t.Errorf("FirmwareRequest: %v", err)
	}
}

func TestModelByProduct(t *testing.T) {
	if m, ok := ModelByProduct(0x1711); !ok || m.Channels != 6 {
		t.Errorf("Grid+ V3 lookup: %+v %v", m, ok)
	}
	if _, ok := ModelByProduct(0x0000); ok {
		t.Error("unknown product matched")
	}
}
