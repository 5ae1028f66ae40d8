// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

package locate

import (
	"context"
	"sync"
	"time"

	"github.com/StepanNazar/city-report/internal/logger"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// Orchestrator runs every provider's fix stream against the bus, restarting
// dead streams with exponential backoff and recovering from provider panics.
type Orchestrator struct {
	Bus            *Bus
	Providers      []Provider
	Logger         *logger.Logger
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// NewOrchestrator wires the given providers to the bus with default backoff.
func (b *Bus) NewOrchestrator(providers []Provider) *Orchestrator {
	return &Orchestrator{
		Bus:            b,
		Providers:      providers,
		Logger:         b.logger,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
	}
}

// Run tracks all providers concurrently and blocks until ctx is done and
// every provider goroutine has drained.
func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, provider := range o.Providers {
		wg.Add(1)
		go func(provider Provider) {
			defer wg.Done()
			o.trackProvider(ctx, provider)
		}(provider)
	}
	<-ctx.Done()
	wg.Wait()
}

// trackProvider consumes one provider's stream, publishing every fix to the
// bus. A nil or closed stream is retried with backoff; a delivered fix resets
// the backoff.
func (o *Orchestrator) trackProvider(ctx context.Context, provider Provider) {
	backoff := o.InitialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		stream := o.safeLookup(ctx, provider)
		if stream == nil {
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = o.nextBackoff(backoff)
			continue
		}

	consume:
		for {
			select {
			case <-ctx.Done():
				return
			case fix, ok := <-stream:
				if !ok {
					if !sleepOrDone(ctx, backoff) {
						return
					}
					backoff = o.nextBackoff(backoff)
					break consume
				}
				o.Bus.Publish(fix)
				backoff = o.InitialBackoff
			}
		}
	}
}

// safeLookup invokes LookupStream and converts a provider panic into a nil
// stream.
func (o *Orchestrator) safeLookup(ctx context.Context, provider Provider) (stream <-chan Fix) {
	defer func() {
		if cause := recover(); cause != nil {
			o.Logger.Warn("coordinate provider panicked", "provider", provider.Name(), "cause", cause)
			stream = nil
		}
	}()
	return provider.LookupStream(ctx)
}

func (o *Orchestrator) nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > o.MaxBackoff {
		return o.MaxBackoff
	}
	return d
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
