// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package kraken

import (
	"errors"
	"testing"

	"github.com/liquidctl/liquidtux/pkg/cooling"
)

func noSeq() uint8 { return 0 }

// statusReport builds a minimal status report with the given readings.
func statusReport(tempWhole, tempTenths byte, pumpRPM uint16, pumpDuty byte, fanRPM uint16, fanDuty byte) []byte {
	data := make([]byte, 30)
	data[0] = statusReportID
	data[tempIntegralOffset] = tempWhole
	data[tempFractionalOffset] = tempTenths
	data[pumpSpeedOffset] = byte(pumpRPM)
	data[pumpSpeedOffset+1] = byte(pumpRPM >> 8)
	data[pumpDutyOffset] = pumpDuty
	data[fanSpeedOffset] = byte(fanRPM)
	data[fanSpeedOffset+1] = byte(fanRPM >> 8)
	data[fanDutyOffset] = fanDuty
	return data
}

// ============================================================
// Decode Tests
// ============================================================

func TestDecode_StatusX53(t *testing.T) {
	d := New(X53)
	in, err := d.Decode(statusReport(33, 4, 2692, 50, 0, 0))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !in.HasKey || in.Key != statusReportID {
		t.Errorf("key = %#x, expected status report ID", in.Key)
	}
	if len(in.Measurements) != 3 {
		t.Fatalf("X53 measurement count = %d, expected 3", len(in.Measurements))
	}

	byChannel := map[[2]int]int64{}
	for _, m := range in.Measurements {
		byChannel[[2]int{int(m.Kind), m.Index}] = m.Value
	}
	if got := byChannel[[2]int{int(cooling.KindTemp), 1}]; got != 33400 {
		t.Errorf("temp = %d, expected 33400", got)
	}
	if got := byChannel[[2]int{int(cooling.KindFan), 1}]; got != 2692 {
		t.Errorf("pump speed = %d, expected 2692", got)
	}
	// 50% duty on the host 0-255 scale.
	if got := byChannel[[2]int{int(cooling.KindPWM), 1}]; got != 128 {
		t.Errorf("pump duty = %d, expected 128", got)
	}
}

func TestDecode_StatusZ53IncludesFan(t *testing.T) {
	d := New(Z53)
	in, err := d.Decode(statusReport(30, 0, 2000, 60, 1500, 40))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(in.Measurements) != 5 {
		t.Fatalf("Z53 measurement count = %d, expected 5", len(in.Measurements))
	}

	byChannel := map[[2]int]int64{}
	for _, m := range in.Measurements {
		byChannel[[2]int{int(m.Kind), m.Index}] = m.Value
	}
	if got := byChannel[[2]int{int(cooling.KindFan), 2}]; got != 1500 {
		t.Errorf("fan speed = %d, expected 1500", got)
	}
	if got := byChannel[[2]int{int(cooling.KindPWM), 2}]; got != 102 {
		t.Errorf("fan duty = %d, expected 102", got)
	}
}

func TestDecode_DamagedFirmwareSentinel(t *testing.T) {
	d := New(X53)
	in, err := d.Decode(statusReport(0xff, 0xff, 1234, 50, 0, 0))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if in != nil {
		t.Error("damaged-firmware report must be dropped whole")
	}
}

func TestDecode_FirmwareReport(t *testing.T) {
	d := New(X53)
	data := make([]byte, 24)
	data[0] = firmwareReportID
	data[firmwareVersionOffset] = 2
	data[firmwareVersionOffset+1] = 1
	data[firmwareVersionOffset+2] = 8

	in, err := d.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if in.Firmware != "2.1.8" {
		t.Errorf("firmware = %q, expected 2.1.8", in.Firmware)
	}
	if in.Key != firmwareReportID {
		t.Errorf("key = %#x", in.Key)
	}
	if len(in.Measurements) != 0 {
		t.Error("firmware report should carry no measurements")
	}
}

func TestDecode_UnknownReportIgnored(t *testing.T) {
	d := New(Z53)
	data := make([]byte, 30)
	data[0] = 0x42
	in, err := d.Decode(data)
	if err != nil || in != nil {
		t.Errorf("unknown report: in=%v err=%v", in, err)
	}
}

// ============================================================
// Command Tests
// ============================================================

func TestInitCommands(t *testing.T) {
	d := New(X53)
	cmds, err := d.InitCommands(noSeq)
	if err != nil {
		t.Fatalf("InitCommands: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 init commands, got %d", len(cmds))
	}
	if cmds[0].Data[0] != 0x70 || cmds[0].Data[1] != 0x02 {
		t.Errorf("first command = % x, expected set interval", cmds[0].Data)
	}
	if cmds[1].Data[0] != 0x70 || cmds[1].Data[1] != 0x01 {
		t.Errorf("second command = % x, expected finish init", cmds[1].Data)
	}
	for i, c := range cmds {
		if c.HasKey {
			t.Errorf("init command %d expects an ack, but the device sends none", i)
		}
	}
}

func TestStatusRequest(t *testing.T) {
	if _, err := New(X53).StatusRequest(noSeq); !errors.Is(err, cooling.ErrUnsupported) {
		t.Errorf("X53 status request: %v", err)
	}

	cmd, err := New(Z53).StatusRequest(noSeq)
	if err != nil {
		t.Fatalf("Z53 StatusRequest: %v", err)
	}
	if cmd.Data[0] != 0x74 || cmd.Data[1] != 0x01 {
		t.Errorf("status command = % x", cmd.Data)
	}
	if !cmd.HasKey || cmd.Key != statusReportID {
		t.Errorf("status key = %#x", cmd.Key)
	}
}

func TestComposeWrite_FixedDutyBecomesFlatCurve(t *testing.T) {
	d := New(X53)
	cmds, echo, err := d.ComposeWrite(cooling.WriteRequest{Kind: cooling.KindPWM, Index: 1, Value: 128}, noSeq)
	if err != nil {
		t.Fatalf("ComposeWrite: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}

	data := cmds[0].Data
	if len(data) != 4+CurvePoints {
		t.Fatalf("command length = %d, expected %d", len(data), 4+CurvePoints)
	}
	if data[0] != 0x72 || data[1] != 1 {
		t.Errorf("header = % x, expected 0x72 with pump selector", data[:4])
	}
	for i := 4; i < 4+CurvePoints-1; i++ {
		if data[i] != 50 {
			t.Errorf("curve point %d = %d, expected 50", i-4, data[i])
		}
	}
	if data[4+CurvePoints-1] != 100 {
		t.Errorf("critical point = %d, expected 100", data[4+CurvePoints-1])
	}

	if len(echo) != 1 || echo[0].Value != 128 {
		t.Errorf("echo = %v, expected pwm 128", echo)
	}
}

func TestComposeWrite_DutyBounds(t *testing.T) {
	d := New(X53)
	var verr *cooling.ValidationError

	// 40/255 maps to 16%, below the 20% floor.
	if _, _, err := d.ComposeWrite(cooling.WriteRequest{Kind: cooling.KindPWM, Index: 1, Value: 40}, noSeq); !errors.As(err, &verr) {
		t.Errorf("below floor: %v", err)
	}
	// 51/255 maps to exactly 20%.
	if _, _, err := d.ComposeWrite(cooling.WriteRequest{Kind: cooling.KindPWM, Index: 1, Value: 51}, noSeq); err != nil {
		t.Errorf("at floor: %v", err)
	}
	if _, _, err := d.ComposeWrite(cooling.WriteRequest{Kind: cooling.KindPWM, Index: 1, Value: 300}, noSeq); !errors.As(err, &verr) {
		t.Errorf("above range: %v", err)
	}
}

func TestComposeWrite_FanChannel(t *testing.T) {
	if _, _, err := New(X53).ComposeWrite(cooling.WriteRequest{Kind: cooling.KindPWM, Index: 2, Value: 128}, noSeq); !errors.Is(err, cooling.ErrUnsupported) {
		t.Errorf("X53 has no fan channel: %v", err)
	}

	cmds, _, err := New(Z53).ComposeWrite(cooling.WriteRequest{Kind: cooling.KindPWM, Index: 2, Value: 128}, noSeq)
	if err != nil {
		t.Fatalf("Z53 fan write: %v", err)
	}
	if cmds[0].Data[1] != 2 {
		t.Errorf("channel selector = %d, expected 2", cmds[0].Data[1])
	}
}

func TestComposeCurve(t *testing.T) {
	d := New(Z53)

	points := make([]uint8, CurvePoints)
	for i := range points {
		points[i] = uint8(20 + 2*i)
	}
	cmds, _, err := d.ComposeCurve(1, points, noSeq)
	if err != nil {
		t.Fatalf("ComposeCurve: %v", err)
	}
	if cmds[0].Data[4] != 20 || cmds[0].Data[4+CurvePoints-1] != 98 {
		t.Errorf("curve endpoints = %d..%d", cmds[0].Data[4], cmds[0].Data[4+CurvePoints-1])
	}

	// A decreasing curve is rejected before anything is built.
	points[10] = 10
	var verr *cooling.ValidationError
	if _, _, err := d.ComposeCurve(1, points, noSeq); !errors.As(err, &verr) {
		t.Errorf("invalid curve: %v", err)
	}
}

func TestKindByProduct(t *testing.T) {
	tests := []struct {
		productID uint16
		kind      Kind
		ok        bool
	}{
		{0x2007, X53, true},
		{0x2014, X53, true},
		{0x3008, Z53, true},
		{0x1234, 0, false},
	}
	for _, tt := range tests {
		kind, ok := KindByProduct(tt.productID)
		if ok != tt.ok || (ok && kind != tt.kind) {
			t.Errorf("KindByProduct(%#x) = %v, %v", tt.productID, kind, ok)
		}
	}
}
