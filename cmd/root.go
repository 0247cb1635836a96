// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "liquidtux",
	Short: "Liquid cooler monitoring and control",
	Long: `Liquidtux - monitor and control USB HID liquid coolers and fan hubs.

Supported device families:
  hydro    Corsair Hydro Platinum / Pro XT coolers
  kraken   NZXT Kraken X53/X63/X73 and Z53/Z63/Z73 coolers
  grid     NZXT Grid+ V3 and Smart Device (V1) fan hubs

Connection modes:
  Hidraw:    --device /dev/hidraw3 (default)
  Serial:    --serial /dev/ttyUSB0 [--baud 115200] (debug bridge)
  WebSocket: --url ws://host/path [--username user] (remote bridge)

The device family is picked from the USB product ID (--product 0x0c29)
or forced with --driver. For WebSocket authentication the password is
read from the LIQUIDTUX_PASSWORD environment variable, or prompted
interactively if not set. Every flag can also be set through an
environment variable with the LIQUIDTUX_ prefix (e.g. LIQUIDTUX_DEVICE).`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Device selection flags
	rootCmd.PersistentFlags().StringP("device", "d", "", "Hidraw device node (e.g. /dev/hidraw3)")
	rootCmd.PersistentFlags().String("driver", "", "Force device family (hydro, kraken, grid)")
	rootCmd.PersistentFlags().String("product", "", "USB product ID, hex (e.g. 0x0c29)")

	// Serial bridge flags
	rootCmd.PersistentFlags().String("serial", "", "Serial bridge port (e.g. /dev/ttyUSB0)")
	rootCmd.PersistentFlags().IntP("baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket bridge flags
	rootCmd.PersistentFlags().StringP("url", "u", "", "WebSocket bridge URL (ws:// or wss://)")
	rootCmd.PersistentFlags().String("username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "Append CBOR protocol telemetry to this file")

	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	viper.SetEnvPrefix("LIQUIDTUX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
