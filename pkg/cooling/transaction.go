// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cooling

import (
	"context"
	"sync"
	"time"
)

// txState is the terminal outcome of a transaction.
type txState int

const (
	txOK txState = iota
	txTimeout
	txCancelled
)

// transaction is a single-slot, one-shot rendezvous between a sender and
// the report delivery path. It is armed strictly before the request is
// transmitted, so a response that arrives immediately cannot be lost.
// Resolution is idempotent: the first resolver wins and later attempts
// (a response racing a timeout, teardown racing both) are no-ops.
type transaction struct {
	key    uint32
	hasKey bool

	once  sync.Once
	done  chan struct{}
	state txState
}

func newTransaction(key uint32, hasKey bool) *transaction {
	return &transaction{key: key, hasKey: hasKey, done: make(chan struct{})}
}

// matches reports whether an inbound correlation key belongs to this
// transaction. Transactions armed without a key accept any report the
// driver decoded successfully.
func (t *transaction) matches(key uint32, hasKey bool) bool {
	if !t.hasKey {
		return true
	}
	return hasKey && key == t.key
}

// resolve moves the transaction to a terminal state. Only the first call
// has any effect.
func (t *transaction) resolve(s txState) {
	t.once.Do(func() {
		t.state = s
		close(t.done)
	})
}

// await blocks until the transaction resolves, the timeout elapses, or
// the context is cancelled. On timeout or cancellation the transaction is
// resolved locally so a late response is discarded harmlessly.
func (t *transaction) await(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.done:
	case <-timer.C:
		t.resolve(txTimeout)
	case <-ctx.Done():
		t.resolve(txCancelled)
	}

	// resolve() may have lost the race against a delivery; read the
	// final state after done is closed.
	<-t.done
	switch t.state {
	case txOK:
		return nil
	case txTimeout:
		return ErrTimeout
	default:
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrClosed
	}
}

// pendingSlot holds at most one armed transaction per session. Protocols
// supported here require strict request/response ordering, so a new
// transaction can only be armed once the previous one resolved.
type pendingSlot struct {
	mu sync.Mutex
	tx *transaction
}

// arm installs a fresh transaction. Must be called before the request is
// handed to the transport.
func (p *pendingSlot) arm(key uint32, hasKey bool) *transaction {
	t := newTransaction(key, hasKey)
	p.mu.Lock()
	p.tx = t
	p.mu.Unlock()
	return t
}

// deliver resolves the armed transaction if the inbound report's
// correlation key matches. A mismatched key (someone else's reply on a
// shared device) leaves the transaction armed. Returns whether a waiter
// was released and whether a transaction was armed at all.
func (p *pendingSlot) deliver(key uint32, hasKey bool) (delivered, armed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tx == nil {
		return false, false
	}
	if !p.tx.matches(key, hasKey) {
		return false, true
	}
	p.tx.resolve(txOK)
	p.tx = nil
	return true, true
}

// clear detaches the given transaction if it is still armed, so a late
// response cannot resolve a slot reused by a different logical request.
func (p *pendingSlot) clear(t *transaction) {
	p.mu.Lock()
	if p.tx == t {
		p.tx = nil
	}
	p.mu.Unlock()
}

// cancel resolves any armed transaction as cancelled. Used by session
// teardown so no waiter outlives the transport.
func (p *pendingSlot) cancel() {
	p.mu.Lock()
	if p.tx != nil {
		p.tx.resolve(txCancelled)
		p.tx = nil
	}
	p.mu.Unlock()
}
