// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocodeearth

import (
	"errors"
	"io"
	"log/slog"
	stdhttp "net/http"
	"os"
	"strings"
	"testing"

	"golang.org/x/text/language"

	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/geocode"
	"github.com/wneessen/revgeo/internal/http"
	"github.com/wneessen/revgeo/internal/logger"
	"github.com/wneessen/revgeo/internal/testhelper"
)

const (
	cityExpected = "San Francisco"
	cityFile     = "../../../../testdata/geocodeearth_sanfrancisco.json"
	emptyFile    = "../../../../testdata/geocodeearth_empty.json"
	testAPIKey   = "test-api-key"
)

var cityCoords = geobus.Coordinate{Lat: 37.7749, Lon: -122.4194}

func TestNew(t *testing.T) {
	t.Run("creating a new provider succeeds", func(t *testing.T) {
		coder := testCoder(t)
		if coder == nil {
			t.Fatal("expected a non-nil geocoder")
		}
	})
	t.Run("provider name is correct", func(t *testing.T) {
		coder := testCoder(t)
		if coder.Name() != name {
			t.Errorf("expected provider name to be %q, got %q", name, coder.Name())
		}
	})
	t.Run("creating a provider without API key fails", func(t *testing.T) {
		_, err := New(http.New(logger.New(slog.LevelDebug)), language.English, "")
		if !errors.Is(err, ErrMissingAPIKey) {
			t.Errorf("expected error to be %s, got %v", ErrMissingAPIKey, err)
		}
	})
}

func TestGeocodeEarth_Reverse(t *testing.T) {
	t.Run("reverse geocoding succeeds", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, fileResponse(t, cityFile))
		addrs, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		if len(addrs) != 1 {
			t.Fatalf("expected 1 address, got %d", len(addrs))
		}
		tests := map[string]string{
			geocode.KeyName:             "Market Street",
			geocode.KeyStreet:           "Market Street",
			geocode.KeyDistrict:         "Civic Center",
			geocode.KeyCity:             cityExpected,
			geocode.KeySubregion:        "San Francisco County",
			geocode.KeyRegion:           "California",
			geocode.KeyPostalCode:       "94102",
			geocode.KeyCountry:          "United States",
			geocode.KeyISOCountryCode:   "US",
			geocode.KeyTimezone:         "N/A",
			geocode.KeyFormattedAddress: "Market Street, San Francisco, CA, USA",
		}
		for key, want := range tests {
			if got := addrs[0].Display(key); got != want {
				t.Errorf("expected %s to be %q, got %q", key, want, got)
			}
		}
		if got := addrs[0].Display("geometry.coordinates.1"); got != "37.774929" {
			t.Errorf("expected raw latitude to be 37.774929, got %q", got)
		}
		if got := addrs[0].Display("properties.region_a"); got != "CA" {
			t.Errorf("expected raw region_a to be CA, got %q", got)
		}
	})
	t.Run("the query carries the point and key", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			query := req.URL.Query()
			if query.Get("api_key") != testAPIKey {
				t.Errorf("expected api_key to be %q, got %q", testAPIKey, query.Get("api_key"))
			}
			if query.Get("point.lat") != "37.774900" || query.Get("point.lon") != "-122.419400" {
				t.Errorf("unexpected point in query: %s", req.URL.RawQuery)
			}
			return fileResponse(t, cityFile)(req)
		}
		coder := testCoderWithRoundtripFunc(t, rtFn)
		if _, err := coder.Reverse(t.Context(), cityCoords); err != nil {
			t.Fatal(err)
		}
	})
	t.Run("an empty feature list returns an empty sequence", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, fileResponse(t, emptyFile))
		addrs, err := coder.Reverse(t.Context(), geobus.Coordinate{})
		if err != nil {
			t.Fatalf("expected no error, got %s", err)
		}
		if addrs == nil || len(addrs) != 0 {
			t.Errorf("expected an empty result, got %v", addrs)
		}
	})
	t.Run("reverse geocoding fails", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return nil, errors.New("intentionally failing")
		}
		coder := testCoderWithRoundtripFunc(t, rtFn)
		if _, err := coder.Reverse(t.Context(), cityCoords); err == nil {
			t.Fatal("expected API request to fail")
		}
	})
	t.Run("an unauthorized answer carries the server message", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return &stdhttp.Response{
				StatusCode: stdhttp.StatusUnauthorized,
				Body:       io.NopCloser(strings.NewReader(`{"error":"invalid api_key"}`)),
				Header:     make(stdhttp.Header),
			}, nil
		}
		coder := testCoderWithRoundtripFunc(t, rtFn)
		_, err := coder.Reverse(t.Context(), cityCoords)
		if err == nil {
			t.Fatal("expected reverse geocoding to fail")
		}
		if !strings.Contains(err.Error(), "invalid api_key") {
			t.Errorf("expected error to carry the server answer, got %s", err)
		}
	})
	t.Run("a broken feature fails", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return &stdhttp.Response{
				StatusCode: 200,
				Body:       io.NopCloser(strings.NewReader(`{"features":[{"properties":[]}]}`)),
				Header:     make(stdhttp.Header),
			}, nil
		}
		coder := testCoderWithRoundtripFunc(t, rtFn)
		if _, err := coder.Reverse(t.Context(), cityCoords); err == nil {
			t.Fatal("expected reverse geocoding to fail")
		}
	})
}

func TestGeocodeEarth_Reverse_integration(t *testing.T) {
	testhelper.PerformIntegrationTests(t)
	apikey := os.Getenv("GEOCODE_EARTH_API_KEY")
	if apikey == "" {
		t.Skip("GEOCODE_EARTH_API_KEY not set")
	}
	coder, err := New(http.New(logger.New(slog.LevelDebug)), language.English, apikey)
	if err != nil {
		t.Fatal(err)
	}
	addrs, err := coder.Reverse(t.Context(), cityCoords)
	if err != nil {
		t.Fatal(err)
	}
	if len(addrs) == 0 {
		t.Fatal("expected at least one address")
	}
}

func fileResponse(t *testing.T, file string) func(req *stdhttp.Request) (*stdhttp.Response, error) {
	t.Helper()
	return func(req *stdhttp.Request) (*stdhttp.Response, error) {
		data, err := os.Open(file)
		if err != nil {
			t.Fatalf("failed to open JSON response file: %s", err)
		}
		return &stdhttp.Response{
			StatusCode: 200,
			Body:       data,
			Header:     make(stdhttp.Header),
		}, nil
	}
}

func testCoder(t *testing.T) geocode.Geocoder {
	t.Helper()
	coder, err := New(http.New(logger.New(slog.LevelDebug)), language.English, testAPIKey)
	if err != nil {
		t.Fatalf("failed to create geocoder: %s", err)
	}
	return coder
}

func testCoderWithRoundtripFunc(t *testing.T, fn func(req *stdhttp.Request) (*stdhttp.Response, error)) geocode.Geocoder {
	t.Helper()
	testHttpClient := http.New(logger.NewLogger(slog.LevelDebug, io.Discard))
	testHttpClient.Transport = testhelper.MockRoundTripper{Fn: fn}
	coder, err := New(testHttpClient, language.English, testAPIKey)
	if err != nil {
		t.Fatalf("failed to create geocoder: %s", err)
	}
	return coder
}
