// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cooling

import "time"

// ChannelKind identifies the class of a sensor or control channel,
// mirroring the hwmon sensor types the original drivers expose.
type ChannelKind int

// Channel kinds.
const (
	KindTemp    ChannelKind = iota // millidegrees Celsius
	KindFan                        // RPM
	KindPWM                        // duty, host-facing 0-255 scale
	KindCurrent                    // milliamperes
	KindVoltage                    // millivolts
	KindPower                      // microwatts
)

// String returns the hwmon-style name of the kind.
func (k ChannelKind) String() string {
	switch k {
	case KindTemp:
		return "temp"
	case KindFan:
		return "fan"
	case KindPWM:
		return "pwm"
	case KindCurrent:
		return "curr"
	case KindVoltage:
		return "in"
	case KindPower:
		return "power"
	default:
		return "unknown"
	}
}

// FanType is the control mode a device detected for a fan channel during
// its on-device auto-detect routine. It does not change for the life of
// the session once detected.
type FanType uint8

// Fan types, matching the Grid+ V3 status bits.
const (
	FanTypeUnknown FanType = 0
	FanTypeDC      FanType = 1
	FanTypePWM     FanType = 2
)

// ChannelInfo describes one channel of a device kind. The channel set is
// fixed at session creation.
type ChannelInfo struct {
	Kind     ChannelKind
	Index    int
	Label    string
	Writable bool
}

// Reading is one cached sensor value together with the time it was
// decoded from a device report (or optimistically recorded by a write).
type Reading struct {
	Value   int64
	Updated time.Time
}

// Measurement is one decoded field destined for the sensor cache. All
// measurements decoded from a single report are applied atomically.
type Measurement struct {
	Kind  ChannelKind
	Index int
	Value int64
}
