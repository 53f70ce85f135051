// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"time"

	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/gpspoll"
	"github.com/wneessen/revgeo/internal/vartype"
)

const (
	DefaultHost = "localhost"
	DefaultPort = "2947"
	name        = "gpsd"
	pollTimeout = time.Second * 5
)

// GeolocationGPSDProvider polls a local gpsd for a fix. It is the only provider that reports the
// full sensor sample: altitude for 3D fixes, speed and heading.
type GeolocationGPSDProvider struct {
	name     string
	period   time.Duration
	ttl      time.Duration
	locateFn func(ctx context.Context) (gpspoll.Fix, error)
}

// NewGeolocationGPSDProvider returns a provider polling gpsd at host:port.
func NewGeolocationGPSDProvider(host, port string) *GeolocationGPSDProvider {
	if host == "" {
		host = DefaultHost
	}
	if port == "" {
		port = DefaultPort
	}
	client := gpspoll.New(host, port)
	provider := &GeolocationGPSDProvider{
		name:   name,
		period: time.Second * 5,
		ttl:    time.Minute * 2,
	}
	provider.locateFn = func(ctx context.Context) (gpspoll.Fix, error) {
		ctxPoll, cancel := context.WithTimeout(ctx, pollTimeout)
		defer cancel()
		return client.Poll(ctxPoll)
	}
	return provider
}

func (p *GeolocationGPSDProvider) Name() string {
	return p.name
}

// LookupStream polls gpsd right away and then once per period. Reports without at least a 2D fix
// are dropped.
func (p *GeolocationGPSDProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		state := geobus.GeolocationState{}
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

			fix, err := p.locateFn(ctx)
			if err != nil {
				if !geobus.Send(ctx, out, geobus.Failure(key, p.Name(), err)) {
					return
				}
				continue
			}
			if !fix.Has2DFix() {
				continue
			}
			coord := geobus.Coordinate{
				Lat: geobus.Truncate(fix.Lat, geobus.TruncPrecision),
				Lon: geobus.Truncate(fix.Lon, geobus.TruncPrecision),
				Acc: fix.Acc,
			}
			if !coord.Valid() || !state.HasChanged(coord) {
				continue
			}
			state.Update(coord)

			select {
			case <-ctx.Done():
				return
			case out <- p.createResult(key, coord, fix):
			}
		}
	}()
	return out
}

// createResult composes and returns a Result using provided geolocation data and metadata.
func (p *GeolocationGPSDProvider) createResult(key string, coord geobus.Coordinate, fix gpspoll.Fix) geobus.Result {
	result := geobus.Result{
		Key:            key,
		Lat:            coord.Lat,
		Lon:            coord.Lon,
		AccuracyMeters: coord.Acc,
		Speed:          vartype.NewVariable(fix.Speed),
		Heading:        vartype.NewVariable(fix.Track),
		Source:         p.name,
		At:             fix.Time,
		TTL:            p.ttl,
	}
	if fix.Has3DFix() {
		result.Alt = vartype.NewVariable(fix.Alt)
	}
	if result.At.IsZero() {
		result.At = time.Now()
	}
	return result
}
