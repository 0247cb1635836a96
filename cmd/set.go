// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/liquidctl/liquidtux/pkg/cooling"
)

var setCmd = &cobra.Command{
	Use:   "set <channel> <value>",
	Short: "Write a control channel",
	Long: `Write a value to a control channel.

The channel is named in hwmon style and the value is on the hwmon scale,
so duty cycles are 0-255:

  liquidtux set pwm1 128     # pump or fan 1 to 50% duty

Devices quantize what they can: the Hydro Platinum pump, for instance,
only knows three modes, so the written duty snaps to the nearest one.`,
	Args: cobra.ExactArgs(2),
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
}

func runSet(cmd *cobra.Command, args []string) error {
	kind, index, err := parseChannel(args[0])
	if err != nil {
		return err
	}
	value, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %v", args[1], err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	session, cleanup, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := session.Write(ctx, cooling.WriteRequest{Kind: kind, Index: index, Value: value}); err != nil {
		return err
	}

	// Report the value the device actually holds, after quantization.
	if reading, err := session.Read(ctx, kind, index); err == nil {
		fmt.Printf("%s = %s\n", args[0], formatValue(kind, reading.Value))
	} else {
		fmt.Printf("%s written\n", args[0])
	}
	return nil
}
