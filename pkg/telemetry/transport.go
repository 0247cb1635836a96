// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package telemetry

import (
	"time"

	"github.com/google/uuid"

	"github.com/liquidctl/liquidtux/pkg/hidio"
)

// Transport wraps a report transport and records every report crossing
// it, in both directions, under one session UUID. It adds no buffering
// and preserves the wrapped transport's semantics.
type Transport struct {
	inner     hidio.Transport
	logger    Logger
	sessionID string
	driver    string
}

// WrapTransport records traffic on inner to logger, tagged with the
// protocol name.
func WrapTransport(inner hidio.Transport, logger Logger, driver string) *Transport {
	t := &Transport{
		inner:     inner,
		logger:    logger,
		sessionID: uuid.NewString(),
		driver:    driver,
	}
	t.logState("open", "")
	return t
}

// SessionID returns the UUID tagging this session's events.
func (t *Transport) SessionID() string { return t.sessionID }

func (t *Transport) event(dir Direction, cat Category) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: t.sessionID,
		Driver:    t.driver,
		Direction: dir,
		Category:  cat,
	}
}

func (t *Transport) logReport(dir Direction, data []byte, control bool) {
	e := t.event(dir, CategoryReport)
	captured, truncated := captureData(data)
	e.Report = &ReportEvent{
		Size:      len(data),
		Control:   control,
		Data:      captured,
		Truncated: truncated,
	}
	t.logger.Log(e)
}

func (t *Transport) logState(state, reason string) {
	e := t.event(DirectionOut, CategoryState)
	e.State = &StateEvent{NewState: state, Reason: reason}
	t.logger.Log(e)
}

func (t *Transport) logError(err error, context string) {
	e := t.event(DirectionOut, CategoryError)
	e.Error = &ErrorEvent{Message: err.Error(), Context: context}
	t.logger.Log(e)
}

// WriteReport implements hidio.Transport.
func (t *Transport) WriteReport(data []byte) (int, error) {
	n, err := t.inner.WriteReport(data)
	if err != nil {
		t.logError(err, "write report")
		return n, err
	}
	t.logReport(DirectionOut, data, false)
	return n, nil
}

// SetReport implements hidio.Transport.
func (t *Transport) SetReport(reportID byte, data []byte) (int, error) {
	n, err := t.inner.SetReport(reportID, data)
	if err != nil {
		t.logError(err, "set report")
		return n, err
	}
	t.logReport(DirectionOut, data, true)
	return n, nil
}

// SetHandler implements hidio.Transport, recording inbound reports
// before forwarding them.
func (t *Transport) SetHandler(h hidio.Handler) {
	t.inner.SetHandler(func(data []byte) {
		t.logReport(DirectionIn, data, false)
		if h != nil {
			h(data)
		}
	})
}

// Close implements hidio.Transport.
func (t *Transport) Close() error {
	err := t.inner.Close()
	if err != nil {
		t.logState("closed", err.Error())
	} else {
		t.logState("closed", "")
	}
	return err
}

var _ hidio.Transport = (*Transport)(nil)
