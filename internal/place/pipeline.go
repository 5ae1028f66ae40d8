// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

package place

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/StepanNazar/city-report/internal/logger"
)

// DefaultDebounce is the default quiescence window for coordinate events.
const DefaultDebounce = 500 * time.Millisecond

// State is a snapshot of the pipeline's current place signal. Result is nil
// until a reverse geocode succeeded; Unresolvable means the last resolved
// coordinate had no place and the user has to search manually. Err carries a
// retryable provider failure and leaves a previously valid Result untouched.
type State struct {
	Result       *Place
	Provider     string
	Resolving    bool
	Unresolvable bool
	Err          error
}

// Pipeline turns a noisy stream of coordinate events into a race-free
// current-place signal. Events are debounced, each quiescent window issues
// exactly one reverse geocode call, and a newer call supersedes an older
// in-flight one: the older result is discarded no matter when it arrives.
//
// Supersession is tracked with a generation counter. Every debounce fire
// increments the counter and captures it; a completion only applies if its
// captured generation is still current. Cancelling the superseded call's
// context is best-effort transport cleanup, the counter is authoritative.
type Pipeline struct {
	resolver Resolver
	debounce time.Duration
	logger   *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	timer      *time.Timer
	timerSeq   uint64
	pending    Coordinates
	generation uint64
	inflight   context.CancelFunc
	state      State
	updates    chan State
	closed     bool
}

// NewPipeline returns a new Pipeline resolving through the given resolver.
// A non-positive debounce falls back to DefaultDebounce.
func NewPipeline(resolver Resolver, debounce time.Duration, log *logger.Logger) *Pipeline {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		resolver: resolver,
		debounce: debounce,
		logger:   log,
		ctx:      ctx,
		cancel:   cancel,
		updates:  make(chan State, 1),
	}
}

// Offer feeds a coordinate event into the pipeline. Events may arrive at
// arbitrary frequency; only the last one of a quiescent debounce window is
// acted upon. Invalid coordinates are ignored. Offer never blocks.
func (p *Pipeline) Offer(coords Coordinates) {
	if !coords.Valid() {
		p.logger.Debug("ignoring invalid coordinates")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.pending = coords
	if p.timer != nil {
		p.timer.Stop()
	}
	// Stop does not cover a timer that already expired and is waiting on the
	// lock in fire. The sequence number makes such a stale fire a no-op so the
	// new window stays the only one that acts on p.pending.
	p.timerSeq++
	seq := p.timerSeq
	p.timer = time.AfterFunc(p.debounce, func() { p.fire(seq) })
}

// State returns a snapshot of the current place signal.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Updates returns the channel on which state snapshots are published. The
// channel holds at most one element and always carries the latest state; a
// slow consumer only ever misses intermediate snapshots, never the newest
// one. It is closed on Close.
func (p *Pipeline) Updates() <-chan State {
	return p.updates
}

// Close cancels any in-flight reverse geocode call, stops the debounce timer
// and closes the updates channel. Offer becomes a no-op. Idempotent.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.cancel()
	p.inflight = nil
	close(p.updates)
}

// fire runs when the debounce window elapses without new input. It captures
// the latest coordinate under a fresh generation and issues the reverse
// geocode call, superseding any call still in flight. A fire whose timer was
// replaced while it waited on the lock returns without acting.
func (p *Pipeline) fire(seq uint64) {
	p.mu.Lock()
	if p.closed || seq != p.timerSeq {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	coords := p.pending
	p.generation++
	generation := p.generation
	if p.inflight != nil {
		p.inflight()
	}
	ctx, cancel := context.WithCancel(p.ctx)
	p.inflight = cancel
	p.state.Resolving = true
	p.publishLocked()
	p.mu.Unlock()

	go p.resolve(ctx, cancel, coords, generation)
}

func (p *Pipeline) resolve(ctx context.Context, cancel context.CancelFunc, coords Coordinates, generation uint64) {
	defer cancel()
	result, err := p.resolver.Reverse(ctx, coords)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || generation != p.generation {
		// superseded by a newer coordinate, discard success and failure alike
		return
	}

	p.state.Resolving = false
	var noResult *NoResultError
	switch {
	case err == nil:
		p.state.Result = &result
		p.state.Provider = p.resolver.Name()
		p.state.Unresolvable = false
		p.state.Err = nil
	case errors.As(err, &noResult):
		p.state.Result = nil
		p.state.Provider = ""
		p.state.Unresolvable = true
		p.state.Err = nil
	default:
		// retryable failure, the previously valid result stays
		p.state.Err = err
		p.logger.Warn("reverse geocode failed", logger.Err(err))
	}
	p.publishLocked()
}

// publishLocked pushes the current state into the updates channel, dropping
// a stale unconsumed snapshot first. Callers must hold p.mu and must have
// checked p.closed.
func (p *Pipeline) publishLocked() {
	select {
	case <-p.updates:
	default:
	}
	select {
	case p.updates <- p.state:
	default:
	}
}
