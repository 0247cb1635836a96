// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package cooling

import (
	"sync"
	"time"
)

type channelKey struct {
	kind  ChannelKind
	index int
}

type channelEntry struct {
	value   int64
	updated time.Time
}

// Cache holds the last decoded value per channel with a staleness
// contract. It is written by the report delivery path and the write
// pipeline, and read by callers; updates from one report are applied
// atomically so a reader never observes a mix of old and new fields.
type Cache struct {
	mu       sync.RWMutex
	validity time.Duration
	clock    func() time.Time
	entries  map[channelKey]channelEntry
}

// NewCache creates a cache for the given channel set. Every channel's
// timestamp starts one validity window in the past, so the very first
// read reports ErrStale instead of returning zeroed placeholder data.
func NewCache(channels []ChannelInfo, validity time.Duration, clock func() time.Time) *Cache {
	if clock == nil {
		clock = time.Now
	}
	c := &Cache{
		validity: validity,
		clock:    clock,
		entries:  make(map[channelKey]channelEntry, len(channels)),
	}
	start := clock().Add(-validity)
	for _, ch := range channels {
		c.entries[channelKey{ch.Kind, ch.Index}] = channelEntry{updated: start}
	}
	return c
}

// Get returns the cached reading for a channel, or ErrStale if it is
// older than the validity window, or ErrUnsupported for a channel the
// device does not have.
func (c *Cache) Get(kind ChannelKind, index int) (Reading, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[channelKey{kind, index}]
	if !ok {
		return Reading{}, ErrUnsupported
	}
	if c.clock().Sub(e.updated) > c.validity {
		return Reading{}, ErrStale
	}
	return Reading{Value: e.value, Updated: e.updated}, nil
}

// Update applies a batch of measurements under a single lock with a
// single timestamp. Measurements for channels the cache does not know
// are ignored; a decode path never creates channels.
func (c *Cache) Update(ms []Measurement) {
	if len(ms) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	for _, m := range ms {
		k := channelKey{m.Kind, m.Index}
		if _, ok := c.entries[k]; !ok {
			continue
		}
		c.entries[k] = channelEntry{value: m.Value, updated: now}
	}
}

// Stale reports whether the channel's last update is outside the
// validity window. Unknown channels are reported stale.
func (c *Cache) Stale(kind ChannelKind, index int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[channelKey{kind, index}]
	if !ok {
		return true
	}
	return c.clock().Sub(e.updated) > c.validity
}
