// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/liquidctl/liquidtux/pkg/cooling"
)

var statusShowStats bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read all sensor and control channels once",
	Long: `Read every channel the device exposes and print the current values.

Devices with an on-demand protocol are polled for fresh values; devices
that push unsolicited status reports are given a short grace period to
deliver one. Channels still stale after that are reported as such.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusShowStats, "stats", false, "Also print session report counters")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	session, cleanup, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("%s\n\n", session.Name())

	for _, info := range session.Channels() {
		reading, err := readWithGrace(ctx, session, info)
		name := channelName(info)
		label := info.Label

		switch {
		case errors.Is(err, cooling.ErrStale):
			fmt.Printf("  %-6s  %-22s  (stale)\n", name, label)
		case err != nil:
			fmt.Printf("  %-6s  %-22s  error: %v\n", name, label, err)
		default:
			fmt.Printf("  %-6s  %-22s  %s\n", name, label, formatValue(info.Kind, reading.Value))
		}
	}

	if fw, err := session.FirmwareVersion(ctx); err == nil {
		fmt.Printf("\n  firmware: %s\n", fw)
	} else if !errors.Is(err, cooling.ErrUnsupported) {
		fmt.Printf("\n  firmware: unavailable (%v)\n", err)
	}

	if statusShowStats {
		fmt.Printf("\n%s\n", session.Stats())
	}
	return nil
}

// readWithGrace reads one channel, retrying briefly for passive devices
// that only push status reports a few times per second.
func readWithGrace(ctx context.Context, session *cooling.Session, info cooling.ChannelInfo) (cooling.Reading, error) {
	deadline := time.Now().Add(2 * time.Second)
	for {
		reading, err := session.Read(ctx, info.Kind, info.Index)
		if !errors.Is(err, cooling.ErrStale) || time.Now().After(deadline) {
			return reading, err
		}
		select {
		case <-ctx.Done():
			return cooling.Reading{}, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
