// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package ipgeo implements geobus providers that estimate the device position from its public
// IP address. The estimate is coarse but works on every host, which makes it the last resort
// for a device fix.
package ipgeo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/http"
)

const lookupTimeout = time.Second * 5

var ErrNoHTTPClient = errors.New("http client is required")

// Service describes a public IP geolocation API.
type Service struct {
	name      string
	endpoint  string
	newAnswer func() answer
}

// Name returns the provider name of the service.
func (s Service) Name() string {
	return s.name
}

var (
	// ReallyFreeGeoIP queries reallyfreegeoip.org.
	ReallyFreeGeoIP = Service{
		name:      "geoip",
		endpoint:  "https://reallyfreegeoip.org/json/",
		newAnswer: func() answer { return new(geoIPAnswer) },
	}

	// GeoAPI queries geoapi.info.
	GeoAPI = Service{
		name:      "geoapi",
		endpoint:  "https://geoapi.info/api/geo",
		newAnswer: func() answer { return new(geoAPIAnswer) },
	}
)

// answer is the decoded JSON response of a Service.
type answer interface {
	position() (lat, lon float64, err error)
	locality() Locality
}

// Locality lists the address parts an IP geolocation service resolved for the address.
type Locality struct {
	CountryCode string
	Region      string
	City        string
	ZipCode     string
}

// Accuracy estimates the radius in meters the coordinate stands for. The finer the resolved
// locality, the smaller the radius.
func (l Locality) Accuracy() float64 {
	switch {
	case l.ZipCode != "":
		return geobus.AccuracyZip
	case l.City != "":
		return geobus.AccuracyCity
	case l.Region != "":
		return geobus.AccuracyRegion
	case l.CountryCode != "":
		return geobus.AccuracyCountry
	default:
		return geobus.AccuracyUnknown
	}
}

type geoIPAnswer struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country_name"`
	RegionCode  string  `json:"region_code,omitempty"`
	Region      string  `json:"region_name,omitempty"`
	City        string  `json:"city,omitempty"`
	ZipCode     string  `json:"zip_code,omitempty"`
	TimeZone    string  `json:"time_zone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

func (a *geoIPAnswer) position() (float64, float64, error) {
	return a.Latitude, a.Longitude, nil
}

func (a *geoIPAnswer) locality() Locality {
	return Locality{CountryCode: a.CountryCode, Region: a.RegionCode, City: a.City, ZipCode: a.ZipCode}
}

type geoAPIAnswer struct {
	IP       string `json:"ip"`
	Location struct {
		CountryCode string `json:"country,omitempty"`
		Country     string `json:"countryName,omitempty"`
		Region      string `json:"region,omitempty"`
		City        string `json:"city,omitempty"`
		ZipCode     string `json:"postalCode,omitempty"`
		TimeZone    string `json:"timezone"`
		Coordinates struct {
			Latitude  string `json:"latitude"`
			Longitude string `json:"longitude"`
		} `json:"coordinates"`
	} `json:"location"`
}

func (a *geoAPIAnswer) position() (lat, lon float64, err error) {
	lat, err = strconv.ParseFloat(a.Location.Coordinates.Latitude, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse latitude from API response: %w", err)
	}
	lon, err = strconv.ParseFloat(a.Location.Coordinates.Longitude, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse longitude from API response: %w", err)
	}
	return lat, lon, nil
}

func (a *geoAPIAnswer) locality() Locality {
	return Locality{
		CountryCode: a.Location.CountryCode,
		Region:      a.Location.Region,
		City:        a.Location.City,
		ZipCode:     a.Location.ZipCode,
	}
}

// Provider is a geobus.Provider backed by an IP geolocation Service.
type Provider struct {
	service  Service
	http     *http.Client
	period   time.Duration
	ttl      time.Duration
	locateFn func(ctx context.Context) (geobus.Coordinate, error)
}

// New returns a Provider that queries the given Service.
func New(client *http.Client, service Service) (*Provider, error) {
	if client == nil {
		return nil, ErrNoHTTPClient
	}
	provider := &Provider{
		service: service,
		http:    client,
		period:  time.Minute * 10,
		ttl:     time.Hour * 2,
	}
	provider.locateFn = provider.locate
	return provider, nil
}

func (p *Provider) Name() string {
	return p.service.name
}

// LookupStream queries the service right away and then once per period, emitting a result whenever
// the estimate changed significantly.
func (p *Provider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
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

			coord, err := p.locateFn(ctx)
			if err != nil {
				if !geobus.Send(ctx, out, geobus.Failure(key, p.Name(), err)) {
					return
				}
				continue
			}
			if !state.HasChanged(coord) {
				continue
			}
			state.Update(coord)

			select {
			case <-ctx.Done():
				return
			case out <- p.createResult(key, coord):
			}
		}
	}()
	return out
}

// createResult composes and returns a Result using provided geolocation data and metadata.
func (p *Provider) createResult(key string, coord geobus.Coordinate) geobus.Result {
	return geobus.Result{
		Key:            key,
		Lat:            coord.Lat,
		Lon:            coord.Lon,
		AccuracyMeters: coord.Acc,
		Source:         p.service.name,
		At:             time.Now(),
		TTL:            p.ttl,
	}
}

func (p *Provider) locate(ctx context.Context) (geobus.Coordinate, error) {
	ctxHttp, cancelHttp := context.WithTimeout(ctx, lookupTimeout)
	defer cancelHttp()

	result := p.service.newAnswer()
	if _, err := p.http.Get(ctxHttp, p.service.endpoint, result, nil, nil); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to get geolocation data from %s: %w", p.service.name, err)
	}

	lat, lon, err := result.position()
	if err != nil {
		return geobus.Coordinate{}, err
	}
	coord := geobus.Coordinate{
		Lat: geobus.Truncate(lat, geobus.TruncPrecision),
		Lon: geobus.Truncate(lon, geobus.TruncPrecision),
		Acc: result.locality().Accuracy(),
	}
	if err = coord.Validate(); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("%s returned an invalid position: %w", p.service.name, err)
	}
	return coord, nil
}
