// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/geocode"
	"github.com/wneessen/revgeo/internal/http"
)

const (
	APIReverseEndpoint = "https://nominatim.openstreetmap.org/reverse"
	APITimeout         = time.Second * 10
	name               = "osm-nominatim"

	// unableToGeocode is the error answer Nominatim sends when there is nothing at the coordinate
	unableToGeocode = "Unable to geocode"
)

// ErrAPI is returned when Nominatim answers with an error message other than "nothing found".
var ErrAPI = errors.New("nominatim API error")

type Nominatim struct {
	endpoint string
	http     *http.Client
	lang     language.Tag
	limiter  *rate.Limiter
}

type ReverseResult struct {
	Error       string  `json:"error"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
}

type Address struct {
	HouseNumber   string `json:"house_number"`
	Road          string `json:"road"`
	Suburb        string `json:"suburb"`
	Neighbourhood string `json:"neighbourhood"`
	CityDistrict  string `json:"city_district"`
	City          string `json:"city"`
	Town          string `json:"town"`
	Village       string `json:"village"`
	County        string `json:"county"`
	State         string `json:"state"`
	Postcode      string `json:"postcode"`
	Country       string `json:"country"`
	CountryCode   string `json:"country_code"`
}

// New returns a Nominatim geocoder for the public OSM instance. Requests are limited to one per
// second, as required by the Nominatim usage policy.
func New(client *http.Client, lang language.Tag) *Nominatim {
	return NewWithEndpoint(client, lang, APIReverseEndpoint)
}

// NewWithEndpoint returns a Nominatim geocoder for a self-hosted instance.
func NewWithEndpoint(client *http.Client, lang language.Tag, endpoint string) *Nominatim {
	return &Nominatim{
		endpoint: endpoint,
		lang:     lang,
		http:     client,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (n *Nominatim) Name() string {
	return name
}

func (n *Nominatim) Reverse(ctx context.Context, coords geobus.Coordinate) ([]geocode.Address, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("nominatim rate limit wait aborted: %w", err)
	}

	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", fmt.Sprintf("%f", coords.Lat))
	query.Set("lon", fmt.Sprintf("%f", coords.Lon))
	query.Set("accept-language", n.lang.String())

	var raw json.RawMessage
	if _, err := n.http.GetWithTimeout(ctx, n.endpoint, &raw, query, nil, APITimeout); err != nil {
		return nil, fmt.Errorf("failed to fetch reverse address details from Nominatim API: %w", err)
	}

	var result ReverseResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode Nominatim API response: %w", err)
	}
	if result.Error != "" {
		if strings.EqualFold(result.Error, unableToGeocode) {
			return []geocode.Address{}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrAPI, result.Error)
	}

	address := geocode.NewCanonicalAddress()
	address.SetString(geocode.KeyName, result.Name)
	address.SetString(geocode.KeyStreetNumber, result.Address.HouseNumber)
	address.SetString(geocode.KeyStreet, result.Address.Road)
	address.SetString(geocode.KeyDistrict, firstOf(result.Address.Suburb,
		result.Address.CityDistrict, result.Address.Neighbourhood))
	address.SetString(geocode.KeyCity, firstOf(result.Address.City, result.Address.Town, result.Address.Village))
	address.SetString(geocode.KeySubregion, result.Address.County)
	address.SetString(geocode.KeyRegion, result.Address.State)
	address.SetString(geocode.KeyPostalCode, result.Address.Postcode)
	address.SetString(geocode.KeyCountry, result.Address.Country)
	address.SetString(geocode.KeyISOCountryCode, strings.ToUpper(result.Address.CountryCode))
	address.SetString(geocode.KeyFormattedAddress, result.DisplayName)

	fields, err := geocode.FlattenJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw Nominatim API response: %w", err)
	}
	address.Append(fields)

	return []geocode.Address{address}, nil
}

func firstOf(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
