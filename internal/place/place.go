// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

// Package place provides the provider-agnostic geocoding abstraction and the
// debounced coordinate resolution pipeline built on top of it.
package place

import (
	"context"
	"math"
)

// Coordinates represents a geographic coordinate pair. It is an immutable
// value type; a new value fully replaces the previous one.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Valid checks if the coordinates are finite and within the EPSG ranges.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) ||
		math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Candidate is a single result of a text search. ID is the provider's
// canonical place identifier used downstream.
type Candidate struct {
	ID          string
	DisplayName string
	Latitude    float64
	Longitude   float64
}

// Place is the result of resolving coordinates to a place.
type Place struct {
	ID          string
	DisplayName string
	Country     string
	State       string
	City        string
}

// Resolver abstracts over an upstream geocoding provider. Place IDs are not
// guaranteed to be unique across providers, so Name() has to be persisted
// alongside any ID handed downstream.
type Resolver interface {
	Name() string
	Search(ctx context.Context, country, state, locality string) ([]Candidate, error)
	Reverse(ctx context.Context, coords Coordinates) (Place, error)
}
