// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cooling

// Duty-cycle scale conversions. Host-facing values use the 0-255 PWM
// scale; the devices speak 0-100 percent. Both directions round to
// nearest, matching DIV_ROUND_CLOSEST in the original drivers.

// DutyToPercent converts a host 0-255 duty value to a device percentage.
func DutyToPercent(val int64) (int, error) {
	if val < 0 || val > 255 {
		return 0, &ValidationError{Field: "pwm", Value: val, Message: "must be 0-255"}
	}
	return int((val*100 + 127) / 255), nil
}

// PercentToDuty converts a device percentage to the host 0-255 scale.
func PercentToDuty(percent int) int64 {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return int64((percent*255 + 50) / 100)
}

// ClampDuty clamps a host value into the 0-255 range without failing,
// for protocols that accept the full range.
func ClampDuty(val int64) uint8 {
	if val < 0 {
		return 0
	}
	if val > 255 {
		return 255
	}
	return uint8(val)
}

// ValidateCurve checks a temperature-indexed duty curve before any
// transmission: every point must lie within [minPercent, 100] and the
// curve must not decrease with temperature. The whole curve is validated
// before the whole curve is sent; a partial table is never transmitted.
func ValidateCurve(points []uint8, minPercent int) error {
	prev := -1
	for _, p := range points {
		if int(p) < minPercent || p > 100 {
			return &ValidationError{
				Field:   "curve point",
				Value:   int64(p),
				Message: "duty percent out of range",
			}
		}
		if int(p) < prev {
			return &ValidationError{
				Field:   "curve point",
				Value:   int64(p),
				Message: "curve must not decrease with temperature",
			}
		}
		prev = int(p)
	}
	return nil
}

// FillFixedCurve fills a curve with a constant duty for every point below
// the critical temperature and forces the critical (last) point to 100%,
// so the device always cools maximally past the critical liquid
// temperature. The table is fully constructed before being returned.
func FillFixedCurve(n int, percent int) []uint8 {
	curve := make([]uint8, n)
	for i := 0; i < n-1; i++ {
		curve[i] = uint8(percent)
	}
	curve[n-1] = 100
	return curve
}
