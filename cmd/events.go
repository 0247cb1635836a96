// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liquidctl/liquidtux/pkg/telemetry"
)

var eventsCmd = &cobra.Command{
	Use:   "events <file>",
	Short: "Display a recorded telemetry log",
	Long: `Decode a CBOR telemetry log recorded with --log-file and print each
event with timestamp, direction and payload summary.

Report payloads are captured truncated; the full report size is always
recorded.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	events, err := telemetry.ReadAll(f)
	if err != nil {
		return fmt.Errorf("decoding %s after %d events: %v", args[0], len(events), err)
	}

	for _, e := range events {
		fmt.Print(formatEvent(e))
	}
	fmt.Printf("\n%d events\n", len(events))
	return nil
}

func formatEvent(e telemetry.Event) string {
	ts := e.Timestamp.Format("15:04:05.000")
	head := fmt.Sprintf("[%s] %-8s %-3s %s", ts, e.Driver, e.Direction, e.Category)

	switch {
	case e.Report != nil:
		kind := "interrupt"
		if e.Report.Control {
			kind = "control"
		}
		suffix := ""
		if e.Report.Truncated {
			suffix = "..."
		}
		return fmt.Sprintf("%s %s %dB % x%s\n", head, kind, e.Report.Size, e.Report.Data, suffix)

	case e.State != nil:
		if e.State.Reason != "" {
			return fmt.Sprintf("%s %s (%s)\n", head, e.State.NewState, e.State.Reason)
		}
		return fmt.Sprintf("%s %s\n", head, e.State.NewState)

	case e.Error != nil:
		return fmt.Sprintf("%s %s: %s\n", head, e.Error.Context, e.Error.Message)

	default:
		return head + "\n"
	}
}
