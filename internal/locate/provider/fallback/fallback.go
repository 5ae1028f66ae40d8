// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

// Package fallback emits a single configured coordinate fix so the map
// always has somewhere to center.
package fallback

import (
	"context"

	"github.com/StepanNazar/city-report/internal/locate"
	"github.com/StepanNazar/city-report/internal/place"
)

const name = "fallback"

// Kyiv city center, the default when nothing is configured.
const (
	DefaultLatitude  = 50.4501
	DefaultLongitude = 30.5234
)

type Provider struct {
	coords place.Coordinates
}

// New returns a provider for the given static coordinates. Invalid
// coordinates fall back to the default.
func New(coords place.Coordinates) *Provider {
	if !coords.Valid() || (coords.Latitude == 0 && coords.Longitude == 0) {
		coords = place.Coordinates{Latitude: DefaultLatitude, Longitude: DefaultLongitude}
	}
	return &Provider{coords: coords}
}

func (p *Provider) Name() string {
	return name
}

// LookupStream emits the static fix once and then idles until the context
// ends. The fix never expires, so better sources simply outrank it.
func (p *Provider) LookupStream(ctx context.Context) <-chan locate.Fix {
	out := make(chan locate.Fix, 1)
	go func() {
		defer close(out)
		out <- locate.Fix{
			Coords:         p.coords,
			AccuracyMeters: locate.AccuracyFallback,
			Source:         name,
		}
		<-ctx.Done()
	}()
	return out
}
