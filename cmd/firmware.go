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

var firmwareCmd = &cobra.Command{
	Use:   "firmware",
	Short: "Print the device firmware version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		session, cleanup, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		fw, err := session.FirmwareVersion(ctx)
		if errors.Is(err, cooling.ErrUnsupported) {
			return fmt.Errorf("%s does not report a firmware version", session.Name())
		}
		if err != nil {
			return err
		}
		fmt.Println(fw)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(firmwareCmd)
}
