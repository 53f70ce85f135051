// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocodeearth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/geocode"
	"github.com/wneessen/revgeo/internal/http"
)

const (
	APIEndpoint = "https://api.geocode.earth/v1/reverse"
	APITimeout  = time.Second * 10
	name        = "geocode-earth"
)

var ErrMissingAPIKey = errors.New("geocode.earth API key is required")

type GeocodeEarth struct {
	apikey string
	http   *http.Client
	lang   language.Tag
}

type Response struct {
	Features []json.RawMessage `json:"features"`
	Type     string            `json:"type"`
}

type Feature struct {
	Properties Properties `json:"properties"`
	Type       string     `json:"type"`
}

type Properties struct {
	Name          string `json:"name"`
	Label         string `json:"label"`
	HouseNumber   string `json:"housenumber"`
	Street        string `json:"street"`
	Neighbourhood string `json:"neighbourhood"`
	Borough       string `json:"borough"`
	Locality      string `json:"locality"`
	County        string `json:"county"`
	Region        string `json:"region"`
	Postcode      string `json:"postalcode"`
	Country       string `json:"country"`
	CountryCode   string `json:"country_code"`
}

func New(client *http.Client, lang language.Tag, apikey string) (*GeocodeEarth, error) {
	if apikey == "" {
		return nil, ErrMissingAPIKey
	}
	return &GeocodeEarth{
		apikey: apikey,
		lang:   lang,
		http:   client,
	}, nil
}

func (g *GeocodeEarth) Name() string {
	return name
}

func (g *GeocodeEarth) Reverse(ctx context.Context, coords geobus.Coordinate) ([]geocode.Address, error) {
	var response Response

	query := url.Values{}
	query.Set("api_key", g.apikey)
	query.Set("point.lat", fmt.Sprintf("%f", coords.Lat))
	query.Set("point.lon", fmt.Sprintf("%f", coords.Lon))
	query.Set("lang", g.lang.String())

	if _, err := g.http.GetWithTimeout(ctx, APIEndpoint, &response, query, nil, APITimeout); err != nil {
		return nil, fmt.Errorf("failed to retrieve address details from geocode.earth API: %w", err)
	}

	addresses := make([]geocode.Address, 0, len(response.Features))
	for i, raw := range response.Features {
		var feature Feature
		if err := json.Unmarshal(raw, &feature); err != nil {
			return nil, fmt.Errorf("failed to decode geocode.earth feature %d: %w", i, err)
		}
		props := feature.Properties

		address := geocode.NewCanonicalAddress()
		address.SetString(geocode.KeyName, props.Name)
		address.SetString(geocode.KeyStreetNumber, props.HouseNumber)
		address.SetString(geocode.KeyStreet, props.Street)
		address.SetString(geocode.KeyDistrict, firstOf(props.Neighbourhood, props.Borough))
		address.SetString(geocode.KeyCity, props.Locality)
		address.SetString(geocode.KeySubregion, props.County)
		address.SetString(geocode.KeyRegion, props.Region)
		address.SetString(geocode.KeyPostalCode, props.Postcode)
		address.SetString(geocode.KeyCountry, props.Country)
		address.SetString(geocode.KeyISOCountryCode, strings.ToUpper(props.CountryCode))
		address.SetString(geocode.KeyFormattedAddress, props.Label)

		fields, err := geocode.FlattenJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to read raw geocode.earth feature %d: %w", i, err)
		}
		address.Append(fields)
		addresses = append(addresses, address)
	}

	return addresses, nil
}

func firstOf(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
