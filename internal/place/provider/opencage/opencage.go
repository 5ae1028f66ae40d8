// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

// Package opencage implements the place.Resolver interface on top of the
// OpenCage geocoding API. OpenCage has no stable place identifier of its own,
// so the geohash annotation serves as the place ID.
package opencage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/StepanNazar/city-report/internal/http"
	"github.com/StepanNazar/city-report/internal/place"
)

const (
	APIEndpoint = "https://api.opencagedata.com/geocode/v1/json"
	APITimeout  = time.Second * 10
	name        = "opencage"
)

type OpenCage struct {
	apikey string
	http   *http.Client
	lang   language.Tag
}

type Response struct {
	Results      []Result `json:"results"`
	TotalResults int      `json:"total_results"`
}

type Result struct {
	Annotations Annotations `json:"annotations"`
	Components  Components  `json:"components"`
	DisplayName string      `json:"formatted"`
	Geometry    Geometry    `json:"geometry"`
}

type Annotations struct {
	Geohash string `json:"geohash"`
}

type Components struct {
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	Municipality string `json:"municipality"`
	State        string `json:"state"`
	Country      string `json:"country"`
}

type Geometry struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

func New(client *http.Client, lang language.Tag, apikey string) *OpenCage {
	return &OpenCage{
		apikey: apikey,
		lang:   lang,
		http:   client,
	}
}

func (o *OpenCage) Name() string {
	return name
}

// Search forward-geocodes the given text criteria. All-empty criteria return
// an empty result without issuing a request.
func (o *OpenCage) Search(ctx context.Context, country, state, locality string) ([]place.Candidate, error) {
	if country == "" && state == "" && locality == "" {
		return nil, nil
	}

	var response Response
	query := o.baseQuery()
	query.Set("q", searchText(country, state, locality))

	if _, err := o.http.GetWithTimeout(ctx, APIEndpoint, &response, query, nil, APITimeout); err != nil {
		return nil, &place.ProviderError{Provider: name,
			Err: fmt.Errorf("failed to fetch search results from OpenCage API: %w", err)}
	}

	candidates := make([]place.Candidate, 0, len(response.Results))
	for _, result := range response.Results {
		candidates = append(candidates, place.Candidate{
			ID:          result.Annotations.Geohash,
			DisplayName: result.DisplayName,
			Latitude:    result.Geometry.Lat,
			Longitude:   result.Geometry.Lon,
		})
	}
	return candidates, nil
}

// Reverse resolves coordinates to a place. Zero results are reported as
// place.NoResultError, any transport or parse failure as place.ProviderError.
func (o *OpenCage) Reverse(ctx context.Context, coords place.Coordinates) (place.Place, error) {
	var response Response
	query := o.baseQuery()
	query.Set("q", fmt.Sprintf("%f,%f", coords.Latitude, coords.Longitude))

	if _, err := o.http.GetWithTimeout(ctx, APIEndpoint, &response, query, nil, APITimeout); err != nil {
		return place.Place{}, &place.ProviderError{Provider: name,
			Err: fmt.Errorf("failed to fetch reverse geocoding result from OpenCage API: %w", err)}
	}
	if response.TotalResults < 1 || len(response.Results) < 1 {
		return place.Place{}, &place.NoResultError{Coords: coords}
	}

	result := response.Results[0]
	resolved := place.Place{
		ID:          result.Annotations.Geohash,
		DisplayName: result.DisplayName,
		Country:     result.Components.Country,
		State:       result.Components.State,
		City:        result.Components.City,
	}
	if resolved.City == "" && result.Components.Town != "" {
		resolved.City = result.Components.Town
	}
	if resolved.City == "" && result.Components.Village != "" {
		resolved.City = result.Components.Village
	}
	return resolved, nil
}

func (o *OpenCage) baseQuery() url.Values {
	query := url.Values{}
	query.Set("key", o.apikey)
	query.Set("no_record", "1")
	query.Set("language", o.lang.String())
	return query
}

func searchText(country, state, locality string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{locality, state, country} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}
