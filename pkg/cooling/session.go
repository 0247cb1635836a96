// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cooling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/liquidctl/liquidtux/pkg/hidio"
)

// Session drives one device: it owns the transport, serializes all
// outbound traffic, correlates responses to requests and keeps the
// sensor cache fresh per the driver's refresh policy.
//
// One mutex is held across compose, send and wait. That gives every
// protocol its required single-outstanding-transaction discipline, makes
// the reused output buffer safe, and keeps sequence numbers strictly
// ordered on the wire.
type Session struct {
	drv   Driver
	spec  Spec
	tr    hidio.Transport
	cache *Cache
	stats *Statistics
	log   zerolog.Logger

	// protoLog is rate-limited; a noisy or shared device can produce a
	// steady stream of corrupt or foreign reports.
	protoLog zerolog.Logger

	ioMu    sync.Mutex // held across compose, send and wait
	seq     uint8      // advanced under ioMu
	out     []byte     // zero-padded scratch, reused under ioMu
	pending pendingSlot

	fwMu sync.Mutex
	fw   string

	closeOnce sync.Once
	closed    chan struct{}
}

// Option configures a Session at creation time.
type Option func(*Session)

// WithLogger sets the session logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithClock overrides the cache clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.cache = NewCache(s.drv.Channels(), s.spec.Validity, clock) }
}

// NewSession opens a session over an already-connected transport and
// brings the device to a known-safe state. The device powers up in an
// indeterminate configuration and holds nothing across power cycles, so
// the driver's init sequence runs before the session is handed out. On
// error the transport is closed.
func NewSession(ctx context.Context, drv Driver, tr hidio.Transport, opts ...Option) (*Session, error) {
	spec := drv.Spec()
	if spec.OutputLength <= 0 {
		return nil, fmt.Errorf("driver %q: invalid output length %d", spec.Name, spec.OutputLength)
	}

	s := &Session{
		drv:    drv,
		spec:   spec,
		tr:     tr,
		cache:  NewCache(drv.Channels(), spec.Validity, nil),
		stats:  NewStatistics(),
		log:    zerolog.Nop(),
		out:    make([]byte, spec.OutputLength),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("driver", spec.Name).Logger()
	s.protoLog = s.log.Sample(&zerolog.BurstSampler{
		Burst:  5,
		Period: 10 * time.Second,
	})

	tr.SetHandler(s.handleReport)

	s.ioMu.Lock()
	cmds, err := drv.InitCommands(s.nextSeq)
	if err == nil {
		err = s.runSequence(ctx, cmds)
	}
	s.ioMu.Unlock()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("device init: %w", err)
	}

	s.log.Debug().Int("channels", len(drv.Channels())).Msg("session established")
	return s, nil
}

// Name returns the protocol name.
func (s *Session) Name() string { return s.spec.Name }

// Channels returns the device's channel set.
func (s *Session) Channels() []ChannelInfo { return s.drv.Channels() }

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() StatisticsSnapshot { return s.stats.Snapshot() }

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// nextSeq allocates the next wire sequence number. Called only under
// ioMu. The counter wraps within 1..SeqMod; zero is never produced, as
// some devices treat it as an idle marker.
func (s *Session) nextSeq() uint8 {
	if s.spec.SeqMod == 0 {
		return 0
	}
	s.seq = (s.seq % s.spec.SeqMod) + 1
	return s.seq
}

// send transmits one command and, when it expects an acknowledgement,
// blocks until the matching response arrives or the transaction times
// out. Caller holds ioMu. The transaction is armed strictly before the
// write so an immediate response cannot be lost.
func (s *Session) send(ctx context.Context, cmd Command) error {
	if s.isClosed() {
		return ErrClosed
	}

	var tx *transaction
	if cmd.HasKey {
		tx = s.pending.arm(cmd.Key, true)
	}

	data := cmd.Data
	if s.spec.PadOutput {
		for i := range s.out {
			s.out[i] = 0
		}
		copy(s.out, cmd.Data)
		data = s.out
	}

	var err error
	if s.spec.ControlTransfer {
		var id byte
		if len(data) > 0 {
			id = data[0]
		}
		_, err = s.tr.SetReport(id, data)
	} else {
		_, err = s.tr.WriteReport(data)
	}
	if err != nil {
		if tx != nil {
			tx.resolve(txCancelled)
			s.pending.clear(tx)
		}
		return &TransportError{Op: "write", Err: err}
	}
	if tx == nil {
		if cmd.Commit != nil {
			cmd.Commit()
		}
		return nil
	}

	err = tx.await(ctx, s.spec.Timeout)
	s.pending.clear(tx)
	if err == nil && cmd.Commit != nil {
		cmd.Commit()
	}
	if errors.Is(err, ErrTimeout) {
		s.stats.recordTimeout()
		s.protoLog.Warn().
			Uint32("key", cmd.Key).
			Dur("timeout", s.spec.Timeout).
			Msg("no response to command")
	}
	return err
}

// runSequence sends an ordered command sequence, stopping at the first
// failure. Earlier members are never retried: devices that require
// strict command ordering would stall on an out-of-order repeat, and a
// failed member leaves the device in the state the successful prefix
// put it in.
func (s *Session) runSequence(ctx context.Context, cmds []Command) error {
	for i, cmd := range cmds {
		if err := s.send(ctx, cmd); err != nil {
			return fmt.Errorf("command %d/%d: %w", i+1, len(cmds), err)
		}
	}
	return nil
}

// handleReport is the transport delivery callback. It never blocks on a
// transaction: corrupt, short, foreign and unsolicited reports are
// counted and dropped without touching the cache or the armed
// transaction, which simply times out if its real response never comes.
func (s *Session) handleReport(data []byte) {
	if s.isClosed() {
		return
	}
	if len(data) < s.spec.MinInputLength {
		s.stats.recordProtocolError(&ProtocolError{Reason: "report too short", Size: len(data)})
		s.protoLog.Warn().Int("size", len(data)).Msg("dropping short report")
		return
	}

	in, err := s.drv.Decode(data)
	if err != nil {
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			perr = &ProtocolError{Reason: err.Error(), Size: len(data)}
		}
		s.stats.recordProtocolError(perr)
		s.protoLog.Warn().
			Bool("checksum", perr.Checksum).
			Int("size", perr.Size).
			Msg(perr.Reason)
		return
	}
	if in == nil {
		// Unknown report ID. Expected on devices that multiplex other
		// functions over the same endpoint; not an error.
		s.stats.recordIgnored()
		return
	}

	s.stats.recordValid()
	if in.Firmware != "" {
		s.recordFirmware(in.Firmware)
	}

	// Cache first, then release the waiter, so an on-demand read
	// observes the values its own request produced.
	s.cache.Update(in.Measurements)

	delivered, armed := s.pending.deliver(in.Key, in.HasKey)
	if !delivered && armed && in.HasKey {
		s.stats.recordForeign()
		s.protoLog.Debug().Uint32("key", in.Key).Msg("response for someone else's request")
	}
}

func (s *Session) recordFirmware(v string) {
	s.fwMu.Lock()
	if s.fw == "" {
		s.fw = v
		s.fwMu.Unlock()
		s.log.Info().Str("firmware", v).Msg("device firmware version")
		return
	}
	s.fwMu.Unlock()
}

// Read returns the cached value of a sensor channel. Under the on-demand
// refresh policy a stale value triggers a status request and blocks until
// the response lands; under the passive policy staleness is surfaced to
// the caller as ErrStale.
func (s *Session) Read(ctx context.Context, kind ChannelKind, index int) (Reading, error) {
	if s.isClosed() {
		return Reading{}, ErrClosed
	}

	r, err := s.cache.Get(kind, index)
	if err == nil || !errors.Is(err, ErrStale) || !s.spec.OnDemandRefresh {
		return r, err
	}

	s.ioMu.Lock()
	// A refresh we queued behind may already have repopulated the cache.
	if r, err := s.cache.Get(kind, index); err == nil {
		s.ioMu.Unlock()
		return r, nil
	}
	cmd, cerr := s.drv.StatusRequest(s.nextSeq)
	if cerr != nil {
		s.ioMu.Unlock()
		return Reading{}, cerr
	}
	serr := s.send(ctx, cmd)
	s.ioMu.Unlock()

	if serr != nil {
		return Reading{}, serr
	}
	return s.cache.Get(kind, index)
}

// Write applies one control value. The driver composes the full ordered
// command sequence realizing the request; only after every member has
// been sent and acknowledged is the commanded value recorded in the
// cache. Devices here cannot report back what they were told, so the
// cache echo is the only read-back there is.
func (s *Session) Write(ctx context.Context, req WriteRequest) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	cmds, echo, err := s.drv.ComposeWrite(req, s.nextSeq)
	if err != nil {
		return err
	}
	if err := s.runSequence(ctx, cmds); err != nil {
		return err
	}
	s.cache.Update(echo)
	return nil
}

// WriteCurve replaces the whole duty curve of a control channel, for
// drivers that support curve control. The table is validated in full
// before anything is transmitted.
func (s *Session) WriteCurve(ctx context.Context, index int, points []uint8) error {
	if s.isClosed() {
		return ErrClosed
	}
	cw, ok := s.drv.(CurveWriter)
	if !ok {
		return ErrUnsupported
	}
	if len(points) != cw.CurvePoints() {
		return &ValidationError{
			Field:   "curve",
			Value:   int64(len(points)),
			Message: fmt.Sprintf("curve must have exactly %d points", cw.CurvePoints()),
		}
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	cmds, echo, err := cw.ComposeCurve(index, points, s.nextSeq)
	if err != nil {
		return err
	}
	if err := s.runSequence(ctx, cmds); err != nil {
		return err
	}
	s.cache.Update(echo)
	return nil
}

// FirmwareVersion returns the device firmware version, querying the
// device on first use. The version is recorded write-once; later calls
// return the cached string without touching the device.
func (s *Session) FirmwareVersion(ctx context.Context) (string, error) {
	if s.isClosed() {
		return "", ErrClosed
	}

	s.fwMu.Lock()
	fw := s.fw
	s.fwMu.Unlock()
	if fw != "" {
		return fw, nil
	}

	s.ioMu.Lock()
	cmd, err := s.drv.FirmwareRequest(s.nextSeq)
	if err != nil {
		s.ioMu.Unlock()
		return "", err
	}
	err = s.send(ctx, cmd)
	s.ioMu.Unlock()
	if err != nil {
		return "", err
	}

	s.fwMu.Lock()
	fw = s.fw
	s.fwMu.Unlock()
	if fw == "" {
		return "", &ProtocolError{Reason: "response carried no firmware version"}
	}
	return fw, nil
}

// Reinit re-runs the driver's init sequence, restoring the known-safe
// configuration after the device lost power or the host resumed from
// suspend.
func (s *Session) Reinit(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	cmds, err := s.drv.InitCommands(s.nextSeq)
	if err != nil {
		return err
	}
	return s.runSequence(ctx, cmds)
}

// Close tears the session down: any in-flight transaction resolves as
// cancelled and the transport is closed. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.pending.cancel()
		err = s.tr.Close()
		s.log.Debug().Msg("session closed")
	})
	return err
}
