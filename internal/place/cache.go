// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

package place

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// coordPrecision is the precision used to quantize coordinates (0.01 degrees ≈ 1.1 km)
const coordPrecision = 1e-2

type cacheKey struct {
	Provider string
	LatQ     int32
	LonQ     int32
}

type cacheEntry struct {
	Place    Place
	NoResult bool
	Expiry   time.Time
}

// CachedResolver decorates a Resolver with an in-memory reverse geocoding
// cache. "No result at this location" answers are cached with their own,
// typically shorter TTL. Search calls are passed through uncached.
type CachedResolver struct {
	resolver Resolver
	ttlHit   time.Duration
	ttlMiss  time.Duration

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

func NewCachedResolver(resolver Resolver, ttlHit, ttlMiss time.Duration) *CachedResolver {
	return &CachedResolver{
		resolver: resolver,
		ttlHit:   ttlHit,
		ttlMiss:  ttlMiss,
		cache:    make(map[cacheKey]cacheEntry),
	}
}

func (c *CachedResolver) Name() string {
	return c.resolver.Name()
}

func (c *CachedResolver) Search(ctx context.Context, country, state, locality string) ([]Candidate, error) {
	return c.resolver.Search(ctx, country, state, locality)
}

func (c *CachedResolver) Reverse(ctx context.Context, coords Coordinates) (Place, error) {
	key := newKey(c.resolver.Name(), coords.Latitude, coords.Longitude)

	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.Expiry) {
		if entry.NoResult {
			return Place{}, &NoResultError{Coords: coords}
		}
		return entry.Place, nil
	}

	result, err := c.resolver.Reverse(ctx, coords)
	if err != nil {
		var noResult *NoResultError
		if errors.As(err, &noResult) {
			c.store(key, cacheEntry{NoResult: true, Expiry: time.Now().Add(c.ttlMiss)})
		}
		return result, err
	}

	c.store(key, cacheEntry{Place: result, Expiry: time.Now().Add(c.ttlHit)})
	return result, nil
}

// Sweep drops expired cache entries and returns the number of dropped entries.
func (c *CachedResolver) Sweep() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for key, entry := range c.cache {
		if now.After(entry.Expiry) {
			delete(c.cache, key)
			dropped++
		}
	}
	return dropped
}

func (c *CachedResolver) store(key cacheKey, entry cacheEntry) {
	c.mu.Lock()
	c.cache[key] = entry
	c.mu.Unlock()
}

func quantizeCoord(val float64) int32 {
	return int32(math.Round(val / coordPrecision))
}

func newKey(provider string, lat, lon float64) cacheKey {
	return cacheKey{
		Provider: provider,
		LatQ:     quantizeCoord(lat),
		LonQ:     quantizeCoord(lon),
	}
}
