// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

// Package hydro implements the Corsair Hydro Platinum, Pro XT and Elite
// RGB protocol: 64-byte CRC-protected reports sent as control transfers,
// with a 5-bit sequence number echoed by the device. Every reply carries
// the full sensor state, so the cache is refreshed on demand by a status
// poll and opportunistically by command acknowledgements.
package hydro

import (
	"fmt"
	"time"

	"github.com/liquidctl/liquidtux/pkg/cooling"
)

const maxFans = 3

// Timing constants. A response normally arrives within a few
// milliseconds; cached sensor values stay valid for one second.
const (
	statusValidity  = time.Second
	responseTimeout = 500 * time.Millisecond
)

// Model describes one supported cooler.
type Model struct {
	Name      string
	ProductID uint16
	Fans      int
}

// VendorID is Corsair's USB vendor ID.
const VendorID = 0x1b1c

// Models lists the supported coolers.
var Models = []Model{
	{"Corsair Hydro H115i Platinum", 0x0c17, 2},
	{"Corsair Hydro H100i Platinum", 0x0c18, 2},
	{"Corsair Hydro H100i Platinum SE", 0x0c19, 2},
	{"Corsair Hydro H100i Pro XT", 0x0c20, 2},
	{"Corsair Hydro H115i Pro XT", 0x0c21, 2},
	{"Corsair Hydro H150i Pro XT", 0x0c22, 3},
	{"Corsair Hydro H60i Pro XT", 0x0c29, 2},
	{"Corsair iCUE H100i Elite RGB", 0x0c35, 2},
	{"Corsair iCUE H115i Elite RGB", 0x0c36, 2},
	{"Corsair iCUE H150i Elite RGB", 0x0c37, 3},
	{"Corsair iCUE H100i Elite RGB (White)", 0x0c40, 2},
	{"Corsair iCUE H150i Elite RGB (White)", 0x0c41, 3},
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

// Driver implements the protocol for one cooler. The device cannot
// report commanded settings back, so the driver keeps the full target
// state and re-transmits it whole on every control write. All state
// mutation happens in compose methods, which the session serializes.
type Driver struct {
	model Model

	targetPumpMode uint8
	targetFanMode  [maxFans]uint8
	targetFanDuty  [maxFans]uint8
}

// New creates a driver for the given model with safe control targets:
// pump balanced, all fans at a fixed 50% duty.
func New(model Model) *Driver {
	d := &Driver{model: model, targetPumpMode: pumpModeBalanced}
	for i := range d.targetFanMode {
		d.targetFanMode[i] = fanModeFixedDuty
		d.targetFanDuty[i] = 128
	}
	return d
}

// Spec implements cooling.Driver.
func (d *Driver) Spec() cooling.Spec {
	return cooling.Spec{
		Name:            "hydro_platinum",
		OutputLength:    outputLength,
		MinInputLength:  reportLength,
		Validity:        statusValidity,
		Timeout:         responseTimeout,
		OnDemandRefresh: true,
		ControlTransfer: true,
		PadOutput:       true,
		SeqMod:          seqMod,
	}
}

// Channels implements cooling.Driver. Fan and pwm channel 1 is the pump;
// channels 2..N+1 are the fans, as in the hwmon layout.
func (d *Driver) Channels() []cooling.ChannelInfo {
	chs := []cooling.ChannelInfo{
		{Kind: cooling.KindTemp, Index: 1, Label: "Coolant temp"},
		{Kind: cooling.KindFan, Index: 1, Label: "Pump"},
		{Kind: cooling.KindPWM, Index: 1, Label: "Pump", Writable: true},
	}
	for i := 0; i < d.model.Fans; i++ {
		label := fmt.Sprintf("Fan %d", i+1)
		chs = append(chs,
			cooling.ChannelInfo{Kind: cooling.KindFan, Index: i + 2, Label: label},
			cooling.ChannelInfo{Kind: cooling.KindPWM, Index: i + 2, Label: label, Writable: true},
		)
	}
	return chs
}

// Decode implements cooling.Driver. Every CRC-valid reply carries the
// current sensor state and the firmware version, regardless of which
// command it acknowledges.
func (d *Driver) Decode(data []byte) (*cooling.Inbound, error) {
	if err := checkFrame(data); err != nil {
		return nil, err
	}
	seq := data[1] >> 3
	if seq == 0 {
		// The device always echoes a live sequence number. A zeroed
		// frame checksums to zero, so this is the only thing standing
		// between an empty buffer and the cache.
		return nil, &cooling.ProtocolError{Reason: "missing sequence number", Size: len(data)}
	}

	in := &cooling.Inbound{
		Key:      uint32(seq),
		HasKey:   true,
		Firmware: firmwareVersion(data),
		Measurements: []cooling.Measurement{
			{Kind: cooling.KindTemp, Index: 1, Value: liquidTemp(data)},
			{Kind: cooling.KindFan, Index: 1, Value: speedAt(data, pumpBase)},
			{Kind: cooling.KindPWM, Index: 1, Value: dutyAt(data, pumpBase)},
		},
	}
	for i := 0; i < d.model.Fans; i++ {
		in.Measurements = append(in.Measurements,
			cooling.Measurement{Kind: cooling.KindFan, Index: i + 2, Value: speedAt(data, fanBases[i])},
			cooling.Measurement{Kind: cooling.KindPWM, Index: i + 2, Value: dutyAt(data, fanBases[i])},
		)
	}
	return in, nil
}

// InitCommands implements cooling.Driver: commit the safe default
// targets, then poll status once to learn the firmware version and fill
// the cache.
func (d *Driver) InitCommands(next cooling.SeqFunc) ([]cooling.Command, error) {
	cmds := d.coolingCommands(next)
	status, err := d.StatusRequest(next)
	if err != nil {
		return nil, err
	}
	return append(cmds, status), nil
}

// StatusRequest implements cooling.Driver.
func (d *Driver) StatusRequest(next cooling.SeqFunc) (cooling.Command, error) {
	return d.command(next(), featureCooling, cmdGetStatus, nil), nil
}

// FirmwareRequest implements cooling.Driver. The version rides along in
// every reply, so a plain status poll serves.
func (d *Driver) FirmwareRequest(next cooling.SeqFunc) (cooling.Command, error) {
	return d.StatusRequest(next)
}

// ComposeWrite implements cooling.Driver. Pump control maps the 0-255
// scale onto the three discrete pump modes; fan control sets a fixed
// duty. Either way the whole target state is re-transmitted: main
// cooling feature first, then the fan 3 extension on three-fan models.
func (d *Driver) ComposeWrite(req cooling.WriteRequest, next cooling.SeqFunc) ([]cooling.Command, []cooling.Measurement, error) {
	if req.Kind != cooling.KindPWM {
		return nil, nil, cooling.ErrUnsupported
	}
	if req.Value < 0 || req.Value > 255 {
		return nil, nil, &cooling.ValidationError{Field: "pwm", Value: req.Value, Message: "must be 0-255"}
	}

	var echoValue int64
	switch {
	case req.Index == 1:
		mode, quantized := pumpModeFor(req.Value)
		d.targetPumpMode = mode
		echoValue = quantized
	case req.Index >= 2 && req.Index <= d.model.Fans+1:
		i := req.Index - 2
		d.targetFanMode[i] = fanModeFixedDuty
		d.targetFanDuty[i] = uint8(req.Value)
		echoValue = req.Value
	default:
		return nil, nil, cooling.ErrUnsupported
	}

	echo := []cooling.Measurement{{Kind: cooling.KindPWM, Index: req.Index, Value: echoValue}}
	return d.coolingCommands(next), echo, nil
}

// pumpModeFor maps a 0-255 value onto the discrete pump modes and
// returns the mode plus the representative value recorded in the cache.
func pumpModeFor(val int64) (uint8, int64) {
	switch {
	case val < 85:
		return pumpModeQuiet, 42
	case val < 170:
		return pumpModeBalanced, 127
	default:
		return pumpModeExtreme, 212
	}
}

// coolingCommands realizes the current targets as a command sequence.
// The main cooling feature must go out before the fan 3 extension;
// reversed, the device can stall the endpoint.
func (d *Driver) coolingCommands(next cooling.SeqFunc) []cooling.Command {
	cmds := []cooling.Command{
		d.command(next(), featureCooling, cmdSetCooling, d.mainPayload()),
	}
	if d.model.Fans >= 3 {
		cmds = append(cmds, d.command(next(), featureFan3, cmdSetCooling, d.fan3Payload()))
	}
	return cmds
}

func (d *Driver) command(seq uint8, feature, cmd byte, payload []byte) cooling.Command {
	return cooling.Command{
		Data:   buildFrame(seq, feature, cmd, payload),
		Key:    uint32(seq),
		HasKey: true,
	}
}

func basePayload() []byte {
	p := make([]byte, payloadLength)
	p[1] = 0xff
	p[2] = 0x05
	for i := 3; i < 8; i++ {
		p[i] = 0xff
	}
	p[offProfileLen] = profileLength
	return p
}

func (d *Driver) mainPayload() []byte {
	p := basePayload()
	p[offPumpMode] = d.targetPumpMode

	p[offFan1Mode] = d.targetFanMode[0]
	if d.targetFanMode[0] == fanModeFixedDuty {
		p[offFan1Duty] = d.targetFanDuty[0]
	}
	if d.model.Fans >= 2 {
		p[offFan2Mode] = d.targetFanMode[1]
		if d.targetFanMode[1] == fanModeFixedDuty {
			p[offFan2Duty] = d.targetFanDuty[1]
		}
	}
	return p
}

// fan3Payload places fan 3 in the fan 1 slot of the extension feature
// and keeps the pump mode consistent with the main command.
func (d *Driver) fan3Payload() []byte {
	p := basePayload()
	p[offPumpMode] = d.targetPumpMode
	p[offFan1Mode] = d.targetFanMode[2]
	if d.targetFanMode[2] == fanModeFixedDuty {
		p[offFan1Duty] = d.targetFanDuty[2]
	}
	return p
}

var _ cooling.Driver = (*Driver)(nil)
