// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/liquidctl/liquidtux/pkg/cooling"
)

var curveCmd = &cobra.Command{
	Use:   "curve <channel> <points>",
	Short: "Write a temperature-indexed duty curve",
	Long: `Write a whole replacement duty curve to a control channel.

Points are duty percentages, comma separated, one per degree step of the
device's curve table (40 points for the Kraken family, covering 20-59°C):

  liquidtux curve pwm1 20,20,20,25,30,...,100

The curve must be non-decreasing and within the device's duty limits.
Only curve-controlled devices accept this command.`,
	Args: cobra.ExactArgs(2),
	RunE: runCurve,
}

func init() {
	rootCmd.AddCommand(curveCmd)
}

func parseCurve(s string) ([]uint8, error) {
	fields := strings.Split(s, ",")
	points := make([]uint8, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid curve point %q: %v", f, err)
		}
		points = append(points, uint8(v))
	}
	return points, nil
}

func runCurve(cmd *cobra.Command, args []string) error {
	kind, index, err := parseChannel(args[0])
	if err != nil {
		return err
	}
	if kind != cooling.KindPWM {
		return fmt.Errorf("curves are written to pwm channels, not %q", args[0])
	}
	points, err := parseCurve(args[1])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	session, cleanup, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := session.WriteCurve(ctx, index, points); err != nil {
		return err
	}
	fmt.Printf("%s curve written (%d points)\n", args[0], len(points))
	return nil
}
