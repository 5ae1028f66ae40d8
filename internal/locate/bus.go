// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

package locate

import (
	"sync"
	"time"

	"github.com/StepanNazar/city-report/internal/logger"
)

// Bus coordinates the publishing and subscribing of coordinate fixes between
// providers and consumers. Broadcasts never block; a subscriber with a full
// buffer misses the fix.
type Bus struct {
	mu          sync.RWMutex
	logger      *logger.Logger
	best        Fix
	subscribers map[chan Fix]struct{}
}

// NewBus returns an empty bus.
func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		logger:      log,
		subscribers: make(map[chan Fix]struct{}),
	}
}

// Subscribe registers a consumer with the given channel buffer and returns
// the fix channel plus an unsubscribe function. The current best fix, when
// not expired, is replayed immediately.
func (b *Bus) Subscribe(buffer int) (<-chan Fix, func()) {
	fixChan := make(chan Fix, buffer)
	b.mu.Lock()
	b.subscribers[fixChan] = struct{}{}
	if b.best.Source != "" && !b.best.IsExpired() {
		fixChan <- b.best
	}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.subscribers, fixChan)
		b.mu.Unlock()
		close(fixChan)
	}
	return fixChan, unsub
}

// Publish offers a fix to the bus. Fixes without an accuracy or with invalid
// coordinates are dropped; the fix is stored and broadcast only when it beats
// the current best or the current best expired.
func (b *Bus) Publish(fix Fix) {
	if fix.AccuracyMeters == 0 || !fix.Coords.Valid() {
		return
	}
	if fix.At.IsZero() {
		fix.At = time.Now()
	}

	b.mu.Lock()
	if b.best.Source == "" || b.best.IsExpired() || fix.BetterThan(b.best) {
		b.best = fix
		b.logger.Debug("new best coordinate fix", "source", fix.Source,
			"lat", fix.Coords.Latitude, "lon", fix.Coords.Longitude)
		for ch := range b.subscribers {
			select {
			case ch <- fix:
			default:
			}
		}
	} else if b.best.Source == fix.Source {
		// Same source refreshes the TTL window without a broadcast.
		b.best.At = fix.At
	}
	b.mu.Unlock()
}

// Best returns the current best fix, if one exists and has not expired.
func (b *Bus) Best() (Fix, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.best, b.best.Source != "" && !b.best.IsExpired()
}
