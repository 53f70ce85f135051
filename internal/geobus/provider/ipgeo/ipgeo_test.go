// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ipgeo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	stdhttp "net/http"
	"os"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/http"
	"github.com/wneessen/revgeo/internal/logger"
	"github.com/wneessen/revgeo/internal/testhelper"
)

const (
	testLat     = 40.7185
	testLon     = -74.0025
	testDataDir = "../../../../testdata/"
)

func fileClient(t *testing.T, file string) *http.Client {
	t.Helper()
	rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
		data, err := os.Open(testDataDir + file)
		if err != nil {
			t.Fatalf("failed to open JSON response file: %s", err)
		}
		return &stdhttp.Response{
			StatusCode: 200,
			Body:       data,
			Header:     make(stdhttp.Header),
		}, nil
	}
	client := http.New(logger.NewLogger(slog.LevelInfo, io.Discard))
	client.Transport = testhelper.MockRoundTripper{Fn: rtFn}
	return client
}

func TestNew(t *testing.T) {
	t.Run("new provider succeeds", func(t *testing.T) {
		for _, service := range []Service{ReallyFreeGeoIP, GeoAPI} {
			provider, err := New(http.New(logger.New(slog.LevelInfo)), service)
			if err != nil {
				t.Fatalf("failed to create %s provider: %s", service.Name(), err)
			}
			if provider.Name() != service.Name() {
				t.Errorf("expected provider name to be %s, got %s", service.Name(), provider.Name())
			}
		}
	})
	t.Run("new provider without http client fails", func(t *testing.T) {
		provider, err := New(nil, GeoAPI)
		if !errors.Is(err, ErrNoHTTPClient) {
			t.Errorf("expected error to be %s, got %v", ErrNoHTTPClient, err)
		}
		if provider != nil {
			t.Fatal("expected provider to be nil")
		}
	})
}

func TestLocality_Accuracy(t *testing.T) {
	tests := []struct {
		name     string
		locality Locality
		want     float64
	}{
		{"zip", Locality{CountryCode: "US", Region: "NY", City: "New York", ZipCode: "10013"}, geobus.AccuracyZip},
		{"city", Locality{CountryCode: "US", Region: "NY", City: "New York"}, geobus.AccuracyCity},
		{"region", Locality{CountryCode: "US", Region: "NY"}, geobus.AccuracyRegion},
		{"country", Locality{CountryCode: "US"}, geobus.AccuracyCountry},
		{"unknown", Locality{}, geobus.AccuracyUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.locality.Accuracy(); got != tc.want {
				t.Errorf("expected accuracy to be %f, got %f", tc.want, got)
			}
		})
	}
}

func TestProvider_locate(t *testing.T) {
	t.Run("locate succeeds with different accuracies", func(t *testing.T) {
		tests := []struct {
			name    string
			service Service
			file    string
			want    float64
		}{
			{"geoapi zip", GeoAPI, "geoapi.json", geobus.AccuracyZip},
			{"geoapi city", GeoAPI, "geoapi_nozip.json", geobus.AccuracyCity},
			{"geoapi region", GeoAPI, "geoapi_nocity.json", geobus.AccuracyRegion},
			{"geoapi country", GeoAPI, "geoapi_noregion.json", geobus.AccuracyCountry},
			{"geoapi unknown", GeoAPI, "geoapi_nocountry.json", geobus.AccuracyUnknown},
			{"geoip zip", ReallyFreeGeoIP, "geoip.json", geobus.AccuracyZip},
			{"geoip city", ReallyFreeGeoIP, "geoip_nozip.json", geobus.AccuracyCity},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				provider, err := New(fileClient(t, tc.file), tc.service)
				if err != nil {
					t.Fatalf("failed to create provider: %s", err)
				}
				coord, err := provider.locate(t.Context())
				if err != nil {
					t.Fatalf("failed to locate coordinates: %s", err)
				}
				if coord.Lat != testLat {
					t.Errorf("expected latitude to be %f, got %f", testLat, coord.Lat)
				}
				if coord.Lon != testLon {
					t.Errorf("expected longitude to be %f, got %f", testLon, coord.Lon)
				}
				if coord.Acc != tc.want {
					t.Errorf("expected accuracy to be %f, got %f", tc.want, coord.Acc)
				}
			})
		}
	})
	t.Run("locate fails on invalid coordinates", func(t *testing.T) {
		tests := []struct {
			name string
			file string
		}{
			{"latitude", "geoapi_brokenlat.json"},
			{"longitude", "geoapi_brokenlon.json"},
			{"out of range", "geoapi_outofrange.json"},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				provider, err := New(fileClient(t, tc.file), GeoAPI)
				if err != nil {
					t.Fatalf("failed to create provider: %s", err)
				}
				if _, err = provider.locate(t.Context()); err == nil {
					t.Error("expected locate to fail")
				}
			})
		}
	})
	t.Run("locate fails on API request", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return nil, errors.New("intentionally failing")
		}
		client := http.New(logger.New(slog.LevelInfo))
		client.Transport = testhelper.MockRoundTripper{Fn: rtFn}
		provider, err := New(client, ReallyFreeGeoIP)
		if err != nil {
			t.Fatalf("failed to create provider: %s", err)
		}
		if _, err = provider.locate(t.Context()); err == nil {
			t.Error("expected locate to fail")
		}
	})
}

func TestProvider_createResult(t *testing.T) {
	provider, err := New(http.New(logger.New(slog.LevelInfo)), GeoAPI)
	if err != nil {
		t.Fatalf("failed to create provider: %s", err)
	}
	result := provider.createResult("test", geobus.Coordinate{Lat: testLat, Lon: testLon, Acc: geobus.AccuracyCity})
	if result.Lat != testLat || result.Lon != testLon {
		t.Errorf("expected coordinate to be %f,%f, got %f,%f", testLat, testLon, result.Lat, result.Lon)
	}
	if result.Key != "test" {
		t.Errorf("expected key to be %s, got %s", "test", result.Key)
	}
	if result.AccuracyMeters != geobus.AccuracyCity {
		t.Errorf("expected accuracy to be %d, got %f", geobus.AccuracyCity, result.AccuracyMeters)
	}
	if result.Alt.IsSet() || result.Heading.IsSet() || result.Speed.IsSet() {
		t.Error("expected IP based results to carry no sensor values")
	}
	if result.Source != "geoapi" {
		t.Errorf("expected source to be geoapi, got %s", result.Source)
	}
	if result.TTL != provider.ttl {
		t.Errorf("expected TTL to be %d, got %d", provider.ttl, result.TTL)
	}
}

func TestProvider_LookupStream(t *testing.T) {
	t.Run("lookup stream succeeds", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			provider, err := New(fileClient(t, "geoip.json"), ReallyFreeGeoIP)
			if err != nil {
				t.Fatalf("failed to create provider: %s", err)
			}
			provider.period = time.Millisecond * 10

			var result geobus.Result
			select {
			case result = <-provider.LookupStream(ctx, "test"):
				cancel()
			case <-ctx.Done():
				t.Fatalf("context done before result: %v", ctx.Err())
			}
			synctest.Wait()

			if result.Key != "test" {
				t.Errorf("expected key to be %s, got %s", "test", result.Key)
			}
			if result.Lat != testLat || result.Lon != testLon {
				t.Errorf("expected coordinate to be %f,%f, got %f,%f", testLat, testLon, result.Lat, result.Lon)
			}
			if result.Source != "geoip" {
				t.Errorf("expected source to be geoip, got %s", result.Source)
			}
		})
	})
	t.Run("lookup stream retries after a failed lookup", func(t *testing.T) {
		runCount := 0
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			provider, err := New(http.New(logger.New(slog.LevelInfo)), GeoAPI)
			if err != nil {
				t.Fatalf("failed to create provider: %s", err)
			}
			provider.period = time.Millisecond * 10
			provider.locateFn = func(ctx context.Context) (geobus.Coordinate, error) {
				if runCount == 0 {
					runCount++
					return geobus.Coordinate{}, errors.New("intentionally failing")
				}
				return geobus.Coordinate{Lat: 1, Lon: 2, Acc: 3}, nil
			}

			out := provider.LookupStream(ctx, "test")
			failure := <-out
			if failure.Err == nil || failure.Source != "geoapi" || failure.Key != "test" {
				t.Errorf("expected the failed lookup to be reported, got %+v", failure)
			}

			var result geobus.Result
			select {
			case result = <-out:
				cancel()
			case <-ctx.Done():
				t.Fatalf("context done before result: %v", ctx.Err())
			}
			synctest.Wait()

			if result.Lat != 1 || result.Lon != 2 {
				t.Errorf("expected coordinate to be 1,2, got %f,%f", result.Lat, result.Lon)
			}
			if result.AccuracyMeters != 3 {
				t.Errorf("expected accuracy to be 3, got %f", result.AccuracyMeters)
			}
		})
	})
}
