// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/gpspoll"
)

const (
	testLat = 40.7185
	testLon = -74.0025
)

func TestNewGeolocationGPSDProvider(t *testing.T) {
	t.Run("new GPSd provider succeeds", func(t *testing.T) {
		provider := NewGeolocationGPSDProvider("", "")
		if provider == nil {
			t.Fatal("expected provider to be non-nil")
		}
	})
}

func TestGeolocationGPSDProvider_Name(t *testing.T) {
	provider := NewGeolocationGPSDProvider(DefaultHost, DefaultPort)
	if !strings.EqualFold(provider.Name(), name) {
		t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
	}
}

func TestGeolocationGPSDProvider_createResult(t *testing.T) {
	at := time.Date(2025, 11, 24, 10, 44, 41, 0, time.UTC)
	t.Run("a 3D fix carries all sensor values", func(t *testing.T) {
		provider := NewGeolocationGPSDProvider(DefaultHost, DefaultPort)
		fix := gpspoll.Fix{Lat: testLat, Lon: testLon, Alt: 75, Acc: 17.67, Speed: 0.229, Track: 332.6961,
			Time: at, Mode: 3}
		result := provider.createResult("test", geobus.Coordinate{Lat: testLat, Lon: testLon, Acc: fix.Acc}, fix)
		if result.Lat != testLat || result.Lon != testLon {
			t.Errorf("expected coordinate to be %f,%f, got %f,%f", testLat, testLon, result.Lat, result.Lon)
		}
		if result.Key != "test" {
			t.Errorf("expected key to be %s, got %s", "test", result.Key)
		}
		if result.AccuracyMeters != 17.67 {
			t.Errorf("expected accuracy to be 17.67, got %f", result.AccuracyMeters)
		}
		if result.Alt.Value() != 75 {
			t.Errorf("expected altitude to be 75, got %s", result.Alt)
		}
		if result.Speed.Value() != 0.229 {
			t.Errorf("expected speed to be 0.229, got %s", result.Speed)
		}
		if result.Heading.Value() != 332.6961 {
			t.Errorf("expected heading to be 332.6961, got %s", result.Heading)
		}
		if !result.At.Equal(at) {
			t.Errorf("expected timestamp to be %s, got %s", at, result.At)
		}
		if result.Source != provider.Name() {
			t.Errorf("expected source to be %s, got %s", provider.Name(), result.Source)
		}
		if result.TTL != provider.ttl {
			t.Errorf("expected TTL to be %d, got %d", provider.ttl, result.TTL)
		}
	})
	t.Run("a 2D fix has no altitude", func(t *testing.T) {
		provider := NewGeolocationGPSDProvider(DefaultHost, DefaultPort)
		fix := gpspoll.Fix{Lat: testLat, Lon: testLon, Alt: 75, Acc: 25, Mode: 2}
		result := provider.createResult("test", geobus.Coordinate{Lat: testLat, Lon: testLon, Acc: fix.Acc}, fix)
		if result.Alt.IsSet() {
			t.Errorf("expected altitude to be unknown, got %s", result.Alt)
		}
		if result.At.IsZero() {
			t.Error("expected timestamp to default to now")
		}
	})
}

func TestGeolocationGPSDProvider_LookupStream(t *testing.T) {
	t.Run("fetching GPS data fails on first run but then succeeds", func(t *testing.T) {
		runCount := 0
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			provider := NewGeolocationGPSDProvider(DefaultHost, DefaultPort)
			provider.period = time.Millisecond * 10
			provider.locateFn = func(ctx context.Context) (gpspoll.Fix, error) {
				if runCount == 0 {
					runCount++
					return gpspoll.Fix{}, errors.New("intentionally failing")
				}
				if runCount == 1 {
					runCount++
					return gpspoll.Fix{Lat: 1, Lon: 2, Acc: 3, Mode: 1}, nil
				}
				return gpspoll.Fix{Lat: 1.0, Lon: 2.0, Acc: 3.0, Mode: 2}, nil
			}

			out := provider.LookupStream(ctx, "test")
			if out == nil {
				t.Fatal("expected stream to be non-nil")
			}

			if failure := <-out; failure.Err == nil || failure.Source != provider.Name() {
				t.Errorf("expected the failed lookup to be reported, got %+v", failure)
			}

			var result geobus.Result
			select {
			case r := <-out:
				result = r
				cancel()
			case <-ctx.Done():
				t.Fatalf("context done before result: %v", ctx.Err())
			}
			synctest.Wait()

			if result.Lat != 1.0 {
				t.Errorf("expected latitude to be %f, got %f", 1.0, result.Lat)
			}
			if result.Lon != 2.0 {
				t.Errorf("expected longitude to be %f, got %f", 2.0, result.Lon)
			}
			if result.AccuracyMeters != 3.0 {
				t.Errorf("expected accuracy to be %f, got %f", 3.0, result.AccuracyMeters)
			}
			if runCount != 2 {
				t.Errorf("expected the no-fix poll to be skipped, got %d runs", runCount)
			}
		})
	})
}
