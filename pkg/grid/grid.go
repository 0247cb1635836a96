// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

// Package grid implements the NZXT Grid+ V3 and Smart Device (V1)
// protocol. After an initialization request the device pushes one status
// report per channel five times a second; it answers no queries, so the
// cache is purely push-fed and each channel goes stale on its own clock.
// Duty cycles cannot be read back: a status report validates the last
// commanded value instead.
package grid

import (
	"fmt"
	"sync"
	"time"

	"github.com/liquidctl/liquidtux/pkg/cooling"
)

// Report IDs and layout.
const (
	reportInit   = 0x01
	initDetect   = 0x5c
	initOpen     = 0x5d
	reportStatus = 0x04
	reportConfig = 0x02
	configFanPWM = 0x4d

	minStatusLength = 16

	fanTypeDC  = 0x1
	fanTypePWM = 0x2
)

const statusValidity = 3 * time.Second

// VendorID is NZXT's USB vendor ID.
const VendorID = 0x1e71

// Model describes one supported fan controller.
type Model struct {
	Name      string
	ProductID uint16
	Channels  int
}

// Models lists the supported controllers.
var Models = []Model{
	{"NZXT Grid+ V3", 0x1711, 6},
	{"NZXT Smart Device", 0x1714, 3},
}

// ModelByProduct looks a model up by USB product ID.
func ModelByProduct(productID uint16) (Model, bool) {
	for _, m := range Models {
		if m.ProductID == productID {
			return m, true
		}
	}
	return Model{}, false
}

// Driver implements the protocol for one controller. The commanded duty
// per channel is remembered here: the device never reports it, but a
// status report for a channel proves the device is alive and validates
// the stored value. Fan types come from the device's auto-detection and
// are latched from status reports.
type Driver struct {
	model Model

	mu       sync.Mutex
	lastPWM  []uint8
	fanTypes []cooling.FanType
}

// New creates a driver for the given model.
func New(model Model) *Driver {
	d := &Driver{
		model:    model,
		lastPWM:  make([]uint8, model.Channels),
		fanTypes: make([]cooling.FanType, model.Channels),
	}
	for i := range d.lastPWM {
		// The device powers up at 40% on every channel.
		d.lastPWM[i] = 40 * 255 / 100
	}
	return d
}

// Spec implements cooling.Driver. Commands are short reports sent
// verbatim; the device never acknowledges them and never answers polls.
func (d *Driver) Spec() cooling.Spec {
	return cooling.Spec{
		Name:           "grid3",
		OutputLength:   8,
		MinInputLength: minStatusLength,
		Validity:       statusValidity,
		Timeout:        500 * time.Millisecond,
	}
}

// Channels implements cooling.Driver: per fan channel a speed, current,
// voltage and duty channel.
func (d *Driver) Channels() []cooling.ChannelInfo {
	var chs []cooling.ChannelInfo
	for i := 1; i <= d.model.Channels; i++ {
		label := fmt.Sprintf("Fan %d", i)
		chs = append(chs,
			cooling.ChannelInfo{Kind: cooling.KindFan, Index: i, Label: label},
			cooling.ChannelInfo{Kind: cooling.KindCurrent, Index: i, Label: label},
			cooling.ChannelInfo{Kind: cooling.KindVoltage, Index: i, Label: label},
			cooling.ChannelInfo{Kind: cooling.KindPWM, Index: i, Label: label, Writable: true},
		)
	}
	return chs
}

// Decode implements cooling.Driver. One status report covers one
// channel: speed as big-endian rpm, voltage and current as separate
// whole and fractional bytes in centi-units, and the channel number and
// detected fan type packed into byte 15.
func (d *Driver) Decode(data []byte) (*cooling.Inbound, error) {
	if data[0] != reportStatus {
		return nil, nil
	}
	channel := int(data[15] >> 4)
	if channel >= d.model.Channels {
		return nil, nil
	}

	d.mu.Lock()
	d.fanTypes[channel] = cooling.FanType(data[15] & 0x3)
	pwm := d.lastPWM[channel]
	d.mu.Unlock()

	rpm := int64(data[3])<<8 | int64(data[4])
	millivolts := (int64(data[7])*100 + int64(data[8])) * 10
	milliamps := (int64(data[9])*100 + int64(data[10])) * 10

	return &cooling.Inbound{
		Measurements: []cooling.Measurement{
			{Kind: cooling.KindFan, Index: channel + 1, Value: rpm},
			{Kind: cooling.KindVoltage, Index: channel + 1, Value: millivolts},
			{Kind: cooling.KindCurrent, Index: channel + 1, Value: milliamps},
			// The device cannot report duty; a status report
			// validates the last commanded value.
			{Kind: cooling.KindPWM, Index: channel + 1, Value: int64(pwm)},
		},
	}, nil
}

// FanType returns the detected control mode of a fan channel. Undetected
// channels are treated as PWM, matching the device's own behavior.
func (d *Driver) FanType(index int) (cooling.FanType, error) {
	if index < 1 || index > d.model.Channels {
		return cooling.FanTypeUnknown, cooling.ErrUnsupported
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fanTypes[index-1], nil
}

// InitCommands implements cooling.Driver: request fan detection, open
// the status stream, and set every channel to the 40% power-on default
// so a reloaded driver behaves like a power cycle.
func (d *Driver) InitCommands(cooling.SeqFunc) ([]cooling.Command, error) {
	cmds := []cooling.Command{
		{Data: []byte{reportInit, initDetect}},
		{Data: []byte{reportInit, initOpen}},
	}
	for i := 0; i < d.model.Channels; i++ {
		cmds = append(cmds, d.pwmCommand(i, 40*255/100))
	}
	return cmds, nil
}

// StatusRequest implements cooling.Driver; the protocol is purely
// passive.
func (d *Driver) StatusRequest(cooling.SeqFunc) (cooling.Command, error) {
	return cooling.Command{}, cooling.ErrUnsupported
}

// FirmwareRequest implements cooling.Driver; the device has no firmware
// version surface.
func (d *Driver) FirmwareRequest(cooling.SeqFunc) (cooling.Command, error) {
	return cooling.Command{}, cooling.ErrUnsupported
}

// ComposeWrite implements cooling.Driver.
func (d *Driver) ComposeWrite(req cooling.WriteRequest, next cooling.SeqFunc) ([]cooling.Command, []cooling.Measurement, error) {
	if req.Kind != cooling.KindPWM || req.Index < 1 || req.Index > d.model.Channels {
		return nil, nil, cooling.ErrUnsupported
	}
	if req.Value < 0 || req.Value > 255 {
		return nil, nil, &cooling.ValidationError{Field: "pwm", Value: req.Value, Message: "must be 0-255"}
	}

	cmd := d.pwmCommand(req.Index-1, uint8(req.Value))
	echo := []cooling.Measurement{{Kind: cooling.KindPWM, Index: req.Index, Value: req.Value}}
	return []cooling.Command{cmd}, echo, nil
}

// pwmCommand builds the five-byte duty report for a zero-based channel.
// The commanded value is latched for status-report read-back only after
// the send succeeded; a duty the device never applied must not surface
// in later reports.
func (d *Driver) pwmCommand(channel int, val uint8) cooling.Command {
	return cooling.Command{
		Data: []byte{reportConfig, configFanPWM, byte(channel), 0x00, byte(int(val) * 100 / 255)},
		Commit: func() {
			d.mu.Lock()
			d.lastPWM[channel] = val
			d.mu.Unlock()
		},
	}
}

var _ cooling.Driver = (*Driver)(nil)
