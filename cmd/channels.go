// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/liquidctl/liquidtux/pkg/cooling"
)

// parseChannel splits an hwmon-style channel name ("pwm1", "fan2",
// "temp1") into its kind and one-based index.
func parseChannel(name string) (cooling.ChannelKind, int, error) {
	kinds := []cooling.ChannelKind{
		cooling.KindTemp, cooling.KindFan, cooling.KindPWM,
		cooling.KindCurrent, cooling.KindVoltage, cooling.KindPower,
	}
	for _, kind := range kinds {
		prefix := kind.String()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		index, err := strconv.Atoi(name[len(prefix):])
		if err != nil || index < 1 {
			return 0, 0, fmt.Errorf("invalid channel %q", name)
		}
		return kind, index, nil
	}
	return 0, 0, fmt.Errorf("invalid channel %q (expected e.g. temp1, fan2, pwm1)", name)
}

// channelName renders a channel in hwmon style ("pwm1").
func channelName(info cooling.ChannelInfo) string {
	return fmt.Sprintf("%s%d", info.Kind, info.Index)
}

// formatValue renders a cached value in the channel's natural unit.
func formatValue(kind cooling.ChannelKind, value int64) string {
	switch kind {
	case cooling.KindTemp:
		return fmt.Sprintf("%.1f °C", float64(value)/1000)
	case cooling.KindFan:
		return fmt.Sprintf("%d RPM", value)
	case cooling.KindPWM:
		if percent, err := cooling.DutyToPercent(value); err == nil {
			return fmt.Sprintf("%d (%d%%)", value, percent)
		}
		return strconv.FormatInt(value, 10)
	case cooling.KindCurrent:
		return fmt.Sprintf("%.2f A", float64(value)/1000)
	case cooling.KindVoltage:
		return fmt.Sprintf("%.2f V", float64(value)/1000)
	case cooling.KindPower:
		return fmt.Sprintf("%.1f W", float64(value)/1e6)
	default:
		return strconv.FormatInt(value, 10)
	}
}
