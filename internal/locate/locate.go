// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

// Package locate distributes coordinate fixes from pluggable sources to the
// resolution pipeline over a small pub/sub bus.
package locate

import (
	"context"
	"time"

	"github.com/StepanNazar/city-report/internal/place"
)

const accuracyEpsilon = 1e-6

// Coarse accuracy classes for fix sources that carry no measured accuracy.
const (
	AccuracyLocality = 15000
	AccuracyRegion   = 100000
	AccuracyFallback = 300000
)

// Provider is a source of coordinate fixes. LookupStream delivers fixes until
// the context is done; the orchestrator restarts a closed stream with
// backoff.
type Provider interface {
	Name() string
	LookupStream(ctx context.Context) <-chan Fix
}

// Fix is one coordinate observation with its provenance.
type Fix struct {
	Coords         place.Coordinates
	AccuracyMeters float64
	Source         string
	At             time.Time
	TTL            time.Duration
}

// BetterThan reports whether the fix should replace prev. A fix wins against
// an empty or older-and-less-accurate fix; accuracy is compared with a small
// epsilon.
func (f Fix) BetterThan(prev Fix) bool {
	if prev.Source == "" {
		return true
	}
	if f.At.Before(prev.At) {
		return false
	}
	return f.AccuracyMeters < prev.AccuracyMeters-accuracyEpsilon
}

// IsExpired reports whether the fix outlived its TTL. A zero TTL never
// expires.
func (f Fix) IsExpired() bool {
	return f.TTL > 0 && time.Since(f.At) > f.TTL
}
