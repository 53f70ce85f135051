// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/vartype"
)

const (
	name = "geolocation_file"
)

var ErrNoCoordinates = fmt.Errorf("no valid coordinates found in geolocation file")

// fix is a single position read from the geolocation file.
type fix struct {
	coord geobus.Coordinate
	alt   vartype.VarFloat64
}

// GeolocationFileProvider reads a recorded position from a file and emits it via a stream. This is
// mostly useful for reproducing a lookup for a known device position without having the device at hand.
//
// The file holds one position per line in the form "latitude,longitude[,altitude[,accuracy]]". Empty
// lines and lines starting with # are ignored, the first valid line wins. Without an explicit accuracy
// the position is considered to be accurate at postal code level.
type GeolocationFileProvider struct {
	name     string
	path     string
	period   time.Duration
	ttl      time.Duration
	locateFn func() (fix, error)
}

// NewGeolocationFileProvider initializes a GeolocationFileProvider with a file path and default update
// interval and TTL settings.
func NewGeolocationFileProvider(path string) *GeolocationFileProvider {
	provider := &GeolocationFileProvider{
		name:   name,
		path:   path,
		period: time.Minute * 2,
		ttl:    time.Hour * 1,
	}
	provider.locateFn = provider.readFile
	return provider
}

// Name returns the name of the GeolocationFileProvider instance.
func (p *GeolocationFileProvider) Name() string {
	return p.name
}

// LookupStream continuously streams geolocation results from a file, emitting updates when data changes
// or context ends.
func (p *GeolocationFileProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
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

			position, err := p.locateFn()
			if err != nil {
				if !geobus.Send(ctx, out, geobus.Failure(key, p.Name(), err)) {
					return
				}
				continue
			}

			// Only emit if values changed or it's the first read
			if state.HasChanged(position.coord) {
				state.Update(position.coord)
				r := p.createResult(key, position)

				select {
				case <-ctx.Done():
					return
				case out <- r:
				}
			}
		}
	}()
	return out
}

// createResult composes and returns a Result using provided geolocation data and metadata.
func (p *GeolocationFileProvider) createResult(key string, position fix) geobus.Result {
	return geobus.Result{
		Key:            key,
		Lat:            position.coord.Lat,
		Lon:            position.coord.Lon,
		Alt:            position.alt,
		AccuracyMeters: position.coord.Acc,
		Source:         p.name,
		At:             time.Now(),
		TTL:            p.ttl,
	}
}

// readFile reads the first valid position from the file at the configured path.
func (p *GeolocationFileProvider) readFile() (fix, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fix{}, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		position, ok := parseLine(line)
		if !ok {
			continue
		}
		return position, nil
	}
	return fix{}, ErrNoCoordinates
}

func parseLine(line string) (fix, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 2 || len(fields) > 4 {
		return fix{}, false
	}
	values := make([]float64, len(fields))
	for i, field := range fields {
		val, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return fix{}, false
		}
		values[i] = val
	}

	position := fix{coord: geobus.Coordinate{Lat: values[0], Lon: values[1], Acc: geobus.AccuracyZip}}
	if !position.coord.Valid() {
		return fix{}, false
	}
	if len(values) > 2 {
		position.alt = vartype.NewVariable(values[2])
	}
	if len(values) > 3 && values[3] > 0 {
		position.coord.Acc = values[3]
	}
	return position, true
}
