// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/logger"
)

// coordPrecision is the precision used to quantize coordinates (1e-6 degrees ≈ 0.11 m). This is
// the precision the coordinates are displayed with, so two lookups share a cache entry only when
// they look the same to the user.
const coordPrecision = 1e-6

// CachedGeocoder wraps a Geocoder with a result cache. Concurrent lookups for the same key are
// collapsed into one provider request. Failures are never cached.
type CachedGeocoder struct {
	coder   Geocoder
	store   Store
	ttlHit  time.Duration
	ttlMiss time.Duration
	logger  *logger.Logger

	group singleflight.Group
}

type cacheResult struct {
	addrs []Address
}

func NewCachedGeocoder(coder Geocoder, store Store, ttlHit, ttlMiss time.Duration, log *logger.Logger) *CachedGeocoder {
	return &CachedGeocoder{
		coder:   coder,
		store:   store,
		ttlHit:  ttlHit,
		ttlMiss: ttlMiss,
		logger:  log,
	}
}

func (c *CachedGeocoder) Name() string {
	return "geocoder cache using " + c.coder.Name()
}

func (c *CachedGeocoder) Reverse(ctx context.Context, coord geobus.Coordinate) ([]Address, error) {
	key := newKey(c.coder.Name(), coord.Lat, coord.Lon)

	addrs, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("failed to read geocode cache, falling back to provider", logger.Err(err))
	}
	if ok {
		c.logger.Debug("geocode cache hit", "key", key, "results", len(addrs))
		return addrs, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := c.coder.Reverse(ctx, coord)
		if err != nil {
			return nil, err
		}

		ttl := c.ttlHit
		if len(result) == 0 {
			ttl = c.ttlMiss
		}
		if ttl > 0 {
			if err = c.store.Set(ctx, key, result, ttl); err != nil {
				c.logger.Warn("failed to write geocode cache", logger.Err(err))
			}
		}
		return cacheResult{addrs: result}, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(cacheResult).addrs, nil
}

// Purge removes expired entries from the underlying store.
func (c *CachedGeocoder) Purge(ctx context.Context) (int, error) {
	return c.store.Purge(ctx)
}

func quantizeCoord(val float64) int64 {
	return int64(math.Round(val / coordPrecision))
}

func newKey(provider string, lat, lon float64) string {
	return fmt.Sprintf("%s:%d:%d", provider, quantizeCoord(lat), quantizeCoord(lon))
}
