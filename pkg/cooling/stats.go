// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cooling

import (
	"fmt"
	"sync"
	"time"
)

// Statistics tracks per-session report and error counters. A shared USB
// device sees foreign traffic and corrupt reports as a matter of course,
// so these counters are diagnostics, not fault indicators.
type Statistics struct {
	mu        sync.Mutex
	startTime time.Time

	totalReports   uint64
	validReports   uint64
	ignoredReports uint64 // unknown report IDs, explicitly not errors
	foreignReports uint64 // well-formed but correlation-key mismatch
	crcErrors      uint64
	decodeErrors   uint64
	timeouts       uint64
}

// StatisticsSnapshot is a consistent copy of the counters.
type StatisticsSnapshot struct {
	StartTime      time.Time
	TotalReports   uint64
	ValidReports   uint64
	IgnoredReports uint64
	ForeignReports uint64
	CRCErrors      uint64
	DecodeErrors   uint64
	Timeouts       uint64

	ReportRate float64 // reports/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

func (s *Statistics) recordValid() {
	s.mu.Lock()
	s.totalReports++
	s.validReports++
	s.mu.Unlock()
}

func (s *Statistics) recordIgnored() {
	s.mu.Lock()
	s.totalReports++
	s.ignoredReports++
	s.mu.Unlock()
}

func (s *Statistics) recordForeign() {
	s.mu.Lock()
	s.foreignReports++
	s.mu.Unlock()
}

func (s *Statistics) recordProtocolError(e *ProtocolError) {
	s.mu.Lock()
	s.totalReports++
	if e.Checksum {
		s.crcErrors++
	} else {
		s.decodeErrors++
	}
	s.mu.Unlock()
}

func (s *Statistics) recordTimeout() {
	s.mu.Lock()
	s.timeouts++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters with derived rates.
func (s *Statistics) Snapshot() StatisticsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatisticsSnapshot{
		StartTime:      s.startTime,
		TotalReports:   s.totalReports,
		ValidReports:   s.validReports,
		IgnoredReports: s.ignoredReports,
		ForeignReports: s.foreignReports,
		CRCErrors:      s.crcErrors,
		DecodeErrors:   s.decodeErrors,
		Timeouts:       s.timeouts,
	}
	elapsed := time.Since(s.startTime).Seconds()
	if elapsed > 0 {
		snap.ReportRate = float64(snap.TotalReports) / elapsed
		snap.ErrorRate = float64(snap.CRCErrors+snap.DecodeErrors) / elapsed
	}
	return snap
}

// String returns a formatted summary of the counters.
func (s StatisticsSnapshot) String() string {
	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())
	result += fmt.Sprintf("Total Reports:   %8d\n", s.TotalReports)
	result += fmt.Sprintf("Valid Reports:   %8d\n", s.ValidReports)
	if s.IgnoredReports > 0 {
		result += fmt.Sprintf("Ignored Reports: %8d\n", s.IgnoredReports)
	}
	if s.ForeignReports > 0 {
		result += fmt.Sprintf("Foreign Reports: %8d\n", s.ForeignReports)
	}
	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d\n", s.CRCErrors)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}
	result += fmt.Sprintf("Report Rate:     %8.1f reports/sec\n", s.ReportRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	return result
}
