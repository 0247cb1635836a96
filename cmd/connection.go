// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/liquidctl/liquidtux/pkg/cooling"
	"github.com/liquidctl/liquidtux/pkg/hidio"
	"github.com/liquidctl/liquidtux/pkg/telemetry"
)

// GetPassword retrieves the bridge password from the environment or
// prompts for it without echo.
func GetPassword() (string, error) {
	if pw := os.Getenv("LIQUIDTUX_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal; fall back to a plain line read.
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}
	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// openTransport opens the report transport selected by the connection
// flags and returns it with a human-readable description. frameSize is
// the fixed report size a byte-stream bridge frames reports into.
func openTransport(ctx context.Context, frameSize int) (hidio.Transport, string, error) {
	device := viper.GetString("device")
	serialPort := viper.GetString("serial")
	wsURL := viper.GetString("url")

	modes := 0
	for _, set := range []bool{device != "", serialPort != "", wsURL != ""} {
		if set {
			modes++
		}
	}
	if modes == 0 {
		return nil, "", fmt.Errorf("no connection specified (use --device, --serial or --url)")
	}
	if modes > 1 {
		return nil, "", fmt.Errorf("--device, --serial and --url are mutually exclusive")
	}

	switch {
	case serialPort != "":
		baud := viper.GetInt("baud")
		tr, err := hidio.OpenSerial(serialPort, baud, frameSize)
		if err != nil {
			return nil, "", err
		}
		return tr, fmt.Sprintf("serial %s @ %d baud", serialPort, baud), nil

	case wsURL != "":
		username := viper.GetString("username")
		password := ""
		if username != "" {
			pw, err := GetPassword()
			if err != nil {
				return nil, "", err
			}
			password = pw
		}
		tr, err := hidio.DialWebSocket(ctx, hidio.WebSocketConfig{
			URL:           wsURL,
			Username:      username,
			Password:      password,
			SkipSSLVerify: viper.GetBool("no-ssl-verify"),
		})
		if err != nil {
			return nil, "", err
		}
		return tr, fmt.Sprintf("websocket %s", wsURL), nil

	default:
		tr, err := hidio.OpenHidraw(device)
		if err != nil {
			return nil, "", err
		}
		return tr, fmt.Sprintf("hidraw %s", device), nil
	}
}

func newLogger() (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level: %v", err)
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// openSession selects the driver, opens the transport, optionally wraps
// it in a telemetry recorder and establishes the device session. The
// returned cleanup closes everything in order.
func openSession(ctx context.Context) (*cooling.Session, func(), error) {
	product := viper.GetString("product")
	if product == "" {
		return nil, nil, fmt.Errorf("no product ID specified (use --product)")
	}
	productID, err := parseProductID(product)
	if err != nil {
		return nil, nil, err
	}
	drv, err := newDriver(viper.GetString("driver"), productID)
	if err != nil {
		return nil, nil, err
	}

	log, err := newLogger()
	if err != nil {
		return nil, nil, err
	}

	spec := drv.Spec()
	tr, connInfo, err := openTransport(ctx, spec.OutputLength)
	if err != nil {
		return nil, nil, err
	}

	eventLog := telemetry.Logger(telemetry.NopLogger{})
	if path := viper.GetString("log-file"); path != "" {
		fl, err := telemetry.NewFileLogger(path)
		if err != nil {
			tr.Close()
			return nil, nil, fmt.Errorf("telemetry log: %v", err)
		}
		eventLog = fl
		tr = telemetry.WrapTransport(tr, fl, spec.Name)
	}

	session, err := cooling.NewSession(ctx, drv, tr, cooling.WithLogger(log))
	if err != nil {
		eventLog.Close()
		return nil, nil, err
	}

	log.Info().Str("connection", connInfo).Msg("session open")
	cleanup := func() {
		session.Close()
		eventLog.Close()
	}
	return session, cleanup, nil
}
