// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package hidio

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport carries reports over a WebSocket bridge to a remote
// rig. One binary message is one report, report ID first; text messages
// are skipped. The bridge performs the actual interrupt write or control
// transfer on its side.
type WebSocketTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex // gorilla permits one concurrent writer

	mu      sync.Mutex
	handler Handler
	closed  bool
	done    chan struct{}
}

// WebSocketConfig holds the dial parameters for a report bridge.
type WebSocketConfig struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

// DialWebSocket connects to a report bridge with optional HTTP Basic
// auth and starts the read loop.
func DialWebSocket(ctx context.Context, cfg WebSocketConfig) (*WebSocketTransport, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if cfg.Username != "" && cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	t := &WebSocketTransport{conn: conn, done: make(chan struct{})}
	go t.readLoop()
	return t, nil
}

func (t *WebSocketTransport) readLoop() {
	defer close(t.done)

	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		t.mu.Lock()
		h := t.handler
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
		if h != nil {
			h(data)
		}
	}
}

func (t *WebSocketTransport) writeMessage(data []byte) (int, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	t.writeMu.Lock()
	err := t.conn.WriteMessage(websocket.BinaryMessage, data)
	t.writeMu.Unlock()
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// WriteReport sends one report as a binary message.
func (t *WebSocketTransport) WriteReport(data []byte) (int, error) {
	return t.writeMessage(data)
}

// SetReport sends one report as a binary message; the bridge issues the
// actual control transfer.
func (t *WebSocketTransport) SetReport(_ byte, data []byte) (int, error) {
	return t.writeMessage(data)
}

// SetHandler registers the inbound handler.
func (t *WebSocketTransport) SetHandler(h Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Close closes the connection and stops the read loop.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.conn.Close()
	<-t.done
	return err
}

var _ Transport = (*WebSocketTransport)(nil)
