// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

// Package account centers the map on the signed-in account's locality by
// polling the backend's whoami endpoint.
package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/StepanNazar/city-report/internal/http"
	"github.com/StepanNazar/city-report/internal/locate"
	"github.com/StepanNazar/city-report/internal/place"
)

const (
	name          = "account"
	lookupTimeout = time.Second * 5
)

// TokenSource provides the bearer token for the whoami request.
type TokenSource interface {
	Token() string
}

type Provider struct {
	http     *http.Client
	baseURL  string
	tokens   TokenSource
	period   time.Duration
	ttl      time.Duration
	locateFn func(ctx context.Context) (place.Coordinates, error)
}

type whoamiResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Locality struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"locality"`
}

// New returns a provider polling <baseURL>/whoami on the given period.
func New(httpClient *http.Client, baseURL string, tokens TokenSource, period time.Duration) (*Provider, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if period <= 0 {
		period = time.Minute * 5
	}
	provider := &Provider{
		http:    httpClient,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tokens:  tokens,
		period:  period,
		ttl:     time.Hour * 2,
	}
	provider.locateFn = provider.locate
	return provider, nil
}

func (p *Provider) Name() string {
	return name
}

// LookupStream polls the account's locality, emitting a fix per successful
// poll until the context ends. Polls without a session token are skipped.
func (p *Provider) LookupStream(ctx context.Context) <-chan locate.Fix {
	out := make(chan locate.Fix)
	go func() {
		defer close(out)
		firstRun := true

		for {
			if !firstRun {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.period):
				}
			}
			firstRun = false

			if p.tokens != nil && p.tokens.Token() == "" {
				continue
			}
			coords, err := p.locateFn(ctx)
			if err != nil {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- locate.Fix{
				Coords:         coords,
				AccuracyMeters: locate.AccuracyLocality,
				Source:         name,
				At:             time.Now(),
				TTL:            p.ttl,
			}:
			}
		}
	}()
	return out
}

func (p *Provider) locate(ctx context.Context) (place.Coordinates, error) {
	ctxHTTP, cancelHTTP := context.WithTimeout(ctx, lookupTimeout)
	defer cancelHTTP()

	headers := make(map[string]string)
	if p.tokens != nil {
		if token := p.tokens.Token(); token != "" {
			headers["Authorization"] = "Bearer " + token
		}
	}

	account := new(whoamiResponse)
	if _, err := p.http.Get(ctxHTTP, p.baseURL+"/whoami", account, nil, headers); err != nil {
		return place.Coordinates{}, fmt.Errorf("failed to get account data: %w", err)
	}

	coords := place.Coordinates{
		Latitude:  account.Locality.Latitude,
		Longitude: account.Locality.Longitude,
	}
	if !coords.Valid() || (coords.Latitude == 0 && coords.Longitude == 0) {
		return place.Coordinates{}, fmt.Errorf("account carries no locality coordinates")
	}
	return coords, nil
}
