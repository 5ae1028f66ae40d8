// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

// Package nominatim implements the place.Resolver interface on top of the
// OSM Nominatim API using its geocodejson response format.
package nominatim

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/text/language"

	"github.com/StepanNazar/city-report/internal/http"
	"github.com/StepanNazar/city-report/internal/place"
)

const (
	APISearchEndpoint  = "https://nominatim.openstreetmap.org/search"
	APIReverseEndpoint = "https://nominatim.openstreetmap.org/reverse"
	APITimeout         = time.Second * 10
	name               = "nominatim"
)

type Nominatim struct {
	http *http.Client
	lang language.Tag
}

type Response struct {
	Features []Feature `json:"features"`
}

type Feature struct {
	Properties Properties `json:"properties"`
	Geometry   Geometry   `json:"geometry"`
}

type Properties struct {
	Geocoding Geocoding `json:"geocoding"`
}

type Geocoding struct {
	OSMID   int64  `json:"osm_id"`
	OSMType string `json:"osm_type"`
	Label   string `json:"label"`
	Name    string `json:"name"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

type Geometry struct {
	// GeoJSON order: longitude first, then latitude
	Coordinates []float64 `json:"coordinates"`
}

func New(client *http.Client, lang language.Tag) *Nominatim {
	return &Nominatim{
		lang: lang,
		http: client,
	}
}

func (n *Nominatim) Name() string {
	return name
}

// Search queries Nominatim for settlements matching the given text criteria.
// All-empty criteria return an empty result without issuing a request. The
// provider's result ordering is preserved.
func (n *Nominatim) Search(ctx context.Context, country, state, locality string) ([]place.Candidate, error) {
	if country == "" && state == "" && locality == "" {
		return nil, nil
	}

	var response Response
	query := url.Values{}
	query.Set("format", "geocodejson")
	query.Set("featureType", "settlement")
	query.Set("country", country)
	query.Set("state", state)
	query.Set("city", locality)
	query.Set("accept-language", n.lang.String())

	if _, err := n.http.GetWithTimeout(ctx, APISearchEndpoint, &response, query, nil, APITimeout); err != nil {
		return nil, &place.ProviderError{Provider: name,
			Err: fmt.Errorf("failed to fetch search results from Nominatim API: %w", err)}
	}

	candidates := make([]place.Candidate, 0, len(response.Features))
	for _, feature := range response.Features {
		candidate := place.Candidate{
			ID:          strconv.FormatInt(feature.Properties.Geocoding.OSMID, 10),
			DisplayName: feature.Properties.Geocoding.Label,
		}
		if len(feature.Geometry.Coordinates) == 2 {
			candidate.Longitude = feature.Geometry.Coordinates[0]
			candidate.Latitude = feature.Geometry.Coordinates[1]
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// Reverse resolves coordinates to a place. Zero features at the location are
// reported as place.NoResultError, any transport or parse failure as
// place.ProviderError.
func (n *Nominatim) Reverse(ctx context.Context, coords place.Coordinates) (place.Place, error) {
	var response Response
	query := url.Values{}
	query.Set("format", "geocodejson")
	query.Set("lat", fmt.Sprintf("%f", coords.Latitude))
	query.Set("lon", fmt.Sprintf("%f", coords.Longitude))
	query.Set("accept-language", n.lang.String())

	if _, err := n.http.GetWithTimeout(ctx, APIReverseEndpoint, &response, query, nil, APITimeout); err != nil {
		return place.Place{}, &place.ProviderError{Provider: name,
			Err: fmt.Errorf("failed to fetch reverse geocoding result from Nominatim API: %w", err)}
	}
	if len(response.Features) < 1 {
		return place.Place{}, &place.NoResultError{Coords: coords}
	}

	geocoding := response.Features[0].Properties.Geocoding
	return place.Place{
		ID:          strconv.FormatInt(geocoding.OSMID, 10),
		DisplayName: geocoding.Label,
		Country:     geocoding.Country,
		State:       geocoding.State,
		City:        geocoding.City,
	}, nil
}
