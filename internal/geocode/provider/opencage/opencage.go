// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package opencage

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
	APIEndpoint = "https://api.opencagedata.com/geocode/v1/json"
	APITimeout  = time.Second * 10
	name        = "opencage"
)

var ErrMissingAPIKey = errors.New("OpenCage API key is required")

type OpenCage struct {
	apikey string
	http   *http.Client
	lang   language.Tag
}

type Response struct {
	Results      []json.RawMessage `json:"results"`
	Status       Status            `json:"status"`
	TotalResults int               `json:"total_results"`
}

type Status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Result struct {
	Components  Components  `json:"components"`
	Formatted   string      `json:"formatted"`
	Annotations Annotations `json:"annotations"`
}

type Components struct {
	Type           string `json:"_type"`
	NormalizedCity string `json:"_normalized_city"`
	City           string `json:"city"`
	CityDistrict   string `json:"city_district"`
	Country        string `json:"country"`
	CountryCode    string `json:"country_code"`
	County         string `json:"county"`
	HouseNumber    string `json:"house_number"`
	Neighbourhood  string `json:"neighbourhood"`
	Postcode       string `json:"postcode"`
	Road           string `json:"road"`
	State          string `json:"state"`
	Suburb         string `json:"suburb"`
	Town           string `json:"town"`
	Village        string `json:"village"`

	raw map[string]any
}

type Annotations struct {
	Timezone struct {
		Name string `json:"name"`
	} `json:"timezone"`
}

// UnmarshalJSON keeps the raw component map next to the typed fields, since the name of the place
// lives in the component named by _type.
func (c *Components) UnmarshalJSON(data []byte) error {
	type plain Components
	var components plain
	if err := json.Unmarshal(data, &components); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &components.raw); err != nil {
		return err
	}
	*c = Components(components)
	return nil
}

func (c Components) placeName() string {
	if c.Type == "" {
		return ""
	}
	val, ok := c.raw[c.Type].(string)
	if !ok {
		return ""
	}
	return val
}

func New(client *http.Client, lang language.Tag, apikey string) (*OpenCage, error) {
	if apikey == "" {
		return nil, ErrMissingAPIKey
	}
	return &OpenCage{
		apikey: apikey,
		lang:   lang,
		http:   client,
	}, nil
}

func (o *OpenCage) Name() string {
	return name
}

func (o *OpenCage) Reverse(ctx context.Context, coords geobus.Coordinate) ([]geocode.Address, error) {
	var response Response

	query := url.Values{}
	query.Set("key", o.apikey)
	query.Set("q", fmt.Sprintf("%f,%f", coords.Lat, coords.Lon))
	query.Set("no_record", "1")
	query.Set("language", o.lang.String())

	if _, err := o.http.GetWithTimeout(ctx, APIEndpoint, &response, query, nil, APITimeout); err != nil {
		return nil, fmt.Errorf("failed to retrieve address details from OpenCage API: %w", err)
	}
	if response.Status.Code != 0 && response.Status.Code != 200 {
		return nil, fmt.Errorf("OpenCage API returned status %d: %s", response.Status.Code,
			response.Status.Message)
	}

	addresses := make([]geocode.Address, 0, len(response.Results))
	if response.TotalResults == 0 {
		return addresses, nil
	}
	for i, raw := range response.Results {
		var result Result
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("failed to decode OpenCage result %d: %w", i, err)
		}
		components := result.Components

		address := geocode.NewCanonicalAddress()
		address.SetString(geocode.KeyName, components.placeName())
		address.SetString(geocode.KeyStreetNumber, components.HouseNumber)
		address.SetString(geocode.KeyStreet, components.Road)
		address.SetString(geocode.KeyDistrict, firstOf(components.Suburb, components.CityDistrict,
			components.Neighbourhood))
		address.SetString(geocode.KeyCity, firstOf(components.NormalizedCity, components.City,
			components.Town, components.Village))
		address.SetString(geocode.KeySubregion, components.County)
		address.SetString(geocode.KeyRegion, components.State)
		address.SetString(geocode.KeyPostalCode, components.Postcode)
		address.SetString(geocode.KeyCountry, components.Country)
		address.SetString(geocode.KeyISOCountryCode, strings.ToUpper(components.CountryCode))
		address.SetString(geocode.KeyTimezone, result.Annotations.Timezone.Name)
		address.SetString(geocode.KeyFormattedAddress, result.Formatted)

		fields, err := geocode.FlattenJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to read raw OpenCage result %d: %w", i, err)
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
