// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

// Package kraken implements the NZXT Kraken X53/X63/X73 and Z53/Z63/Z73
// protocol. Status arrives in unsolicited input reports on the X models;
// the Z models report on request. All control goes through a 40-point
// temperature-indexed duty curve spanning 20C to the 59C critical liquid
// temperature, so fixed duties are written as flat curves.
package kraken

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/liquidctl/liquidtux/pkg/cooling"
)

// Report IDs and layout offsets. Offsets count from the report ID byte.
const (
	statusReportID   = 0x75
	firmwareReportID = 0x11

	maxReportLength = 64
	minReportLength = 20

	tempIntegralOffset   = 15
	tempFractionalOffset = 16
	pumpSpeedOffset      = 17
	pumpDutyOffset       = 19
	fanSpeedOffset       = 23 // Z models only
	fanDutyOffset        = 25 // Z models only

	firmwareVersionOffset = 0x11

	// CurvePoints is the fixed size of the on-device duty curve.
	CurvePoints = 40

	minDutyPercent = 20

	statusInterval = 1 // seconds, requested at init
)

// Timing constants: reports are requested at one-second intervals and
// cached values expire after four missed ones.
const (
	statusValidity  = 4 * time.Second
	responseTimeout = 2 * time.Second
)

var (
	setIntervalCmd = []byte{0x70, 0x02, 0x01, 0xB8, statusInterval}
	finishInitCmd  = []byte{0x70, 0x01}
	getFirmwareCmd = []byte{0x10, 0x01}
	getStatusCmd   = []byte{0x74, 0x01} // Z models only
	setDutyHeader  = []byte{0x72, 0x00, 0x00, 0x00}
)

const setDutyChannelOffset = 1

// Kind selects the device family.
type Kind int

// Device kinds.
const (
	X53 Kind = iota // X53/X63/X73: pump only, pushes status unprompted
	Z53             // Z53/Z63/Z73: pump and fan, reports on request
)

func (k Kind) String() string {
	if k == Z53 {
		return "z53"
	}
	return "x53"
}

// VendorID is NZXT's USB vendor ID.
const VendorID = 0x1e71

// KindByProduct maps a USB product ID to the device kind.
func KindByProduct(productID uint16) (Kind, bool) {
	switch productID {
	case 0x2007, 0x2014:
		return X53, true
	case 0x3008:
		return Z53, true
	}
	return 0, false
}

// Driver implements the protocol for one cooler. It keeps the last
// commanded curve per control channel so per-point edits re-transmit a
// complete table. Mutation happens in compose methods only, which the
// session serializes.
type Driver struct {
	kind Kind

	pumpCurve [CurvePoints]uint8
	fanCurve  [CurvePoints]uint8
}

// New creates a driver for the given device kind.
func New(kind Kind) *Driver {
	return &Driver{kind: kind}
}

// Spec implements cooling.Driver. X models push status unprompted, so
// only the Z models use the on-demand refresh policy.
func (d *Driver) Spec() cooling.Spec {
	return cooling.Spec{
		Name:            "kraken3_" + d.kind.String(),
		OutputLength:    maxReportLength,
		MinInputLength:  minReportLength,
		Validity:        statusValidity,
		Timeout:         responseTimeout,
		OnDemandRefresh: d.kind == Z53,
		PadOutput:       true,
	}
}

// Channels implements cooling.Driver.
func (d *Driver) Channels() []cooling.ChannelInfo {
	chs := []cooling.ChannelInfo{
		{Kind: cooling.KindTemp, Index: 1, Label: "Coolant temp"},
		{Kind: cooling.KindFan, Index: 1, Label: "Pump speed"},
		{Kind: cooling.KindPWM, Index: 1, Label: "Pump duty", Writable: true},
	}
	if d.kind == Z53 {
		chs = append(chs,
			cooling.ChannelInfo{Kind: cooling.KindFan, Index: 2, Label: "Fan speed"},
			cooling.ChannelInfo{Kind: cooling.KindPWM, Index: 2, Label: "Fan duty", Writable: true},
		)
	}
	return chs
}

// Decode implements cooling.Driver. Inbound reports are correlated by
// report ID; anything other than the status and firmware reports is
// ignored.
func (d *Driver) Decode(data []byte) (*cooling.Inbound, error) {
	switch data[0] {
	case firmwareReportID:
		if len(data) < firmwareVersionOffset+3 {
			return nil, &cooling.ProtocolError{Reason: "firmware report too short", Size: len(data)}
		}
		return &cooling.Inbound{
			Key:    firmwareReportID,
			HasKey: true,
			Firmware: fmt.Sprintf("%d.%d.%d",
				data[firmwareVersionOffset],
				data[firmwareVersionOffset+1],
				data[firmwareVersionOffset+2]),
		}, nil

	case statusReportID:
		// 0xff in both temperature bytes means the firmware is
		// possibly damaged; nothing in the report can be trusted.
		if data[tempIntegralOffset] == 0xff && data[tempFractionalOffset] == 0xff {
			return nil, nil
		}
		in := &cooling.Inbound{
			Key:    statusReportID,
			HasKey: true,
			Measurements: []cooling.Measurement{
				{Kind: cooling.KindTemp, Index: 1, Value: coolantTemp(data)},
				{Kind: cooling.KindFan, Index: 1, Value: int64(binary.LittleEndian.Uint16(data[pumpSpeedOffset:]))},
				{Kind: cooling.KindPWM, Index: 1, Value: percentValue(data[pumpDutyOffset])},
			},
		}
		if d.kind == Z53 {
			if len(data) < fanDutyOffset+1 {
				return nil, &cooling.ProtocolError{Reason: "status report too short for fan data", Size: len(data)}
			}
			in.Measurements = append(in.Measurements,
				cooling.Measurement{Kind: cooling.KindFan, Index: 2, Value: int64(binary.LittleEndian.Uint16(data[fanSpeedOffset:]))},
				cooling.Measurement{Kind: cooling.KindPWM, Index: 2, Value: percentValue(data[fanDutyOffset])},
			)
		}
		return in, nil
	}
	return nil, nil
}

// coolantTemp converts the temperature bytes to millidegrees: whole
// degrees and tenths.
func coolantTemp(data []byte) int64 {
	return int64(data[tempIntegralOffset])*1000 + int64(data[tempFractionalOffset])*100
}

// percentValue converts a device duty percentage to the host 0-255
// scale used by pwm channels.
func percentValue(percent uint8) int64 {
	return cooling.PercentToDuty(int(percent))
}

// InitCommands implements cooling.Driver: request the one-second status
// interval, then finalize initialization. The device acknowledges
// neither command.
func (d *Driver) InitCommands(cooling.SeqFunc) ([]cooling.Command, error) {
	return []cooling.Command{
		{Data: setIntervalCmd},
		{Data: finishInitCmd},
	}, nil
}

// StatusRequest implements cooling.Driver. Only the Z models answer a
// status request; the X models push status unprompted.
func (d *Driver) StatusRequest(cooling.SeqFunc) (cooling.Command, error) {
	if d.kind != Z53 {
		return cooling.Command{}, cooling.ErrUnsupported
	}
	return cooling.Command{Data: getStatusCmd, Key: statusReportID, HasKey: true}, nil
}

// FirmwareRequest implements cooling.Driver.
func (d *Driver) FirmwareRequest(cooling.SeqFunc) (cooling.Command, error) {
	return cooling.Command{Data: getFirmwareCmd, Key: firmwareReportID, HasKey: true}, nil
}

// ComposeWrite implements cooling.Driver. The device only takes duty
// curves, so a fixed duty becomes a flat curve with the critical point
// forced to 100%. Duties below 20% are rejected; the pump cannot run
// slower.
func (d *Driver) ComposeWrite(req cooling.WriteRequest, next cooling.SeqFunc) ([]cooling.Command, []cooling.Measurement, error) {
	curve, err := d.curveFor(req.Kind, req.Index)
	if err != nil {
		return nil, nil, err
	}
	percent, err := cooling.DutyToPercent(req.Value)
	if err != nil {
		return nil, nil, err
	}
	if percent < minDutyPercent || percent > 100 {
		return nil, nil, &cooling.ValidationError{
			Field:   "pwm",
			Value:   req.Value,
			Message: fmt.Sprintf("duty must map to %d-100 percent", minDutyPercent),
		}
	}

	copy(curve[:], cooling.FillFixedCurve(CurvePoints, percent))
	echo := []cooling.Measurement{{Kind: cooling.KindPWM, Index: req.Index, Value: percentValue(uint8(percent))}}
	return []cooling.Command{d.curveCommand(req.Index, curve)}, echo, nil
}

// CurvePoints implements cooling.CurveWriter.
func (d *Driver) CurvePoints() int { return CurvePoints }

// ComposeCurve implements cooling.CurveWriter: replace the whole curve
// of a control channel. Points are device percentages, validated in full
// before anything is built.
func (d *Driver) ComposeCurve(index int, points []uint8, next cooling.SeqFunc) ([]cooling.Command, []cooling.Measurement, error) {
	curve, err := d.curveFor(cooling.KindPWM, index)
	if err != nil {
		return nil, nil, err
	}
	if err := cooling.ValidateCurve(points, minDutyPercent); err != nil {
		return nil, nil, err
	}

	copy(curve[:], points)
	return []cooling.Command{d.curveCommand(index, curve)}, nil, nil
}

func (d *Driver) curveFor(kind cooling.ChannelKind, index int) (*[CurvePoints]uint8, error) {
	if kind != cooling.KindPWM {
		return nil, cooling.ErrUnsupported
	}
	switch {
	case index == 1:
		return &d.pumpCurve, nil
	case index == 2 && d.kind == Z53:
		return &d.fanCurve, nil
	}
	return nil, cooling.ErrUnsupported
}

// curveCommand encodes a full-curve write: the 0x72 header with the
// channel selector, followed by all 40 points. The device sends no
// acknowledgement.
func (d *Driver) curveCommand(index int, curve *[CurvePoints]uint8) cooling.Command {
	data := make([]byte, 0, len(setDutyHeader)+CurvePoints)
	data = append(data, setDutyHeader...)
	data[setDutyChannelOffset] = byte(index) // 1 = pump, 2 = fan
	data = append(data, curve[:]...)
	return cooling.Command{Data: data}
}

var (
	_ cooling.Driver      = (*Driver)(nil)
	_ cooling.CurveWriter = (*Driver)(nil)
)
