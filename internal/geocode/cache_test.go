// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/logger"
)

const (
	testHitTTL  = 200 * time.Millisecond
	testMissTTL = 100 * time.Millisecond
)

var (
	testCoords  = geobus.Coordinate{Lat: 52.5129, Lon: 13.3910}
	emptyCoords = geobus.Coordinate{Lat: 2, Lon: -2}
	failCoords  = geobus.Coordinate{Lat: 1, Lon: -1}
)

func testAddress() Address {
	addr := NewCanonicalAddress()
	addr.Set(KeyStreetNumber, "67")
	addr.Set(KeyStreet, "Friedrichstraße")
	addr.Set(KeyDistrict, "Mitte")
	addr.Set(KeyCity, "Berlin")
	addr.Set(KeyPostalCode, "10117")
	addr.Set(KeyCountry, "Germany")
	addr.Set(KeyISOCountryCode, "DE")
	return addr
}

type mockGeocoder struct {
	calls atomic.Int32
	delay time.Duration
}

func (m *mockGeocoder) Name() string { return "mock" }

func (m *mockGeocoder) Reverse(_ context.Context, coord geobus.Coordinate) ([]Address, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	switch coord {
	case failCoords:
		return nil, errors.New("lookup intentionally failed")
	case emptyCoords:
		return []Address{}, nil
	}
	return []Address{testAddress()}, nil
}

func testLogger() *logger.Logger {
	return logger.NewLogger(slog.LevelDebug, io.Discard)
}

func TestNewCachedGeocoder(t *testing.T) {
	t.Run("a new geocoder should be returned", func(t *testing.T) {
		coder := NewCachedGeocoder(&mockGeocoder{}, NewMemoryStore(), testHitTTL, testMissTTL, testLogger())
		if coder == nil {
			t.Fatal("expected a non-nil geocoder")
		}
		if coder.Name() != "geocoder cache using mock" {
			t.Errorf("expected geocoder name to be 'geocoder cache using mock', got %q", coder.Name())
		}
	})
}

func TestCachedGeocoder_Reverse(t *testing.T) {
	t.Run("fetching results twice should hit the cache", func(t *testing.T) {
		mock := &mockGeocoder{}
		coder := NewCachedGeocoder(mock, NewMemoryStore(), testHitTTL, testMissTTL, testLogger())
		for range 2 {
			addrs, err := coder.Reverse(t.Context(), testCoords)
			if err != nil {
				t.Fatal(err)
			}
			if len(addrs) != 1 {
				t.Fatalf("expected 1 address, got %d", len(addrs))
			}
			if addrs[0].Display(KeyCity) != "Berlin" {
				t.Errorf("expected city to be Berlin, got %q", addrs[0].Display(KeyCity))
			}
		}
		if mock.calls.Load() != 1 {
			t.Errorf("expected 1 provider call, got %d", mock.calls.Load())
		}
	})
	t.Run("a nearby but different coordinate should not hit the cache", func(t *testing.T) {
		mock := &mockGeocoder{}
		coder := NewCachedGeocoder(mock, NewMemoryStore(), testHitTTL, testMissTTL, testLogger())
		if _, err := coder.Reverse(t.Context(), testCoords); err != nil {
			t.Fatal(err)
		}
		if _, err := coder.Reverse(t.Context(), geobus.Coordinate{Lat: testCoords.Lat + 0.002, Lon: testCoords.Lon}); err != nil {
			t.Fatal(err)
		}
		if mock.calls.Load() != 2 {
			t.Errorf("expected 2 provider calls, got %d", mock.calls.Load())
		}
	})
	t.Run("an empty answer is cached as well", func(t *testing.T) {
		mock := &mockGeocoder{}
		coder := NewCachedGeocoder(mock, NewMemoryStore(), testHitTTL, testMissTTL, testLogger())
		for range 2 {
			addrs, err := coder.Reverse(t.Context(), emptyCoords)
			if err != nil {
				t.Fatal(err)
			}
			if len(addrs) != 0 {
				t.Errorf("expected no addresses, got %d", len(addrs))
			}
		}
		if mock.calls.Load() != 1 {
			t.Errorf("expected 1 provider call, got %d", mock.calls.Load())
		}
	})
	t.Run("failures are returned and never cached", func(t *testing.T) {
		mock := &mockGeocoder{}
		coder := NewCachedGeocoder(mock, NewMemoryStore(), testHitTTL, testMissTTL, testLogger())
		for range 2 {
			if _, err := coder.Reverse(t.Context(), failCoords); err == nil {
				t.Fatal("expected an error")
			}
		}
		if mock.calls.Load() != 2 {
			t.Errorf("expected 2 provider calls, got %d", mock.calls.Load())
		}
	})
	t.Run("cache should not trigger on expired TTL", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			mock := &mockGeocoder{}
			coder := NewCachedGeocoder(mock, NewMemoryStore(), testHitTTL, testMissTTL, testLogger())
			if _, err := coder.Reverse(t.Context(), testCoords); err != nil {
				t.Fatal(err)
			}
			time.Sleep(testHitTTL * 2)
			if _, err := coder.Reverse(t.Context(), testCoords); err != nil {
				t.Fatal(err)
			}
			if mock.calls.Load() != 2 {
				t.Errorf("expected 2 provider calls, got %d", mock.calls.Load())
			}
		})
	})
	t.Run("cache should hit on non-expired TTL", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			mock := &mockGeocoder{}
			coder := NewCachedGeocoder(mock, NewMemoryStore(), testHitTTL, testMissTTL, testLogger())
			if _, err := coder.Reverse(t.Context(), testCoords); err != nil {
				t.Fatal(err)
			}
			time.Sleep(testHitTTL - 5*time.Millisecond)
			if _, err := coder.Reverse(t.Context(), testCoords); err != nil {
				t.Fatal(err)
			}
			if mock.calls.Load() != 1 {
				t.Errorf("expected 1 provider call, got %d", mock.calls.Load())
			}
		})
	})
	t.Run("empty answers expire with the miss TTL", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			mock := &mockGeocoder{}
			coder := NewCachedGeocoder(mock, NewMemoryStore(), testHitTTL, testMissTTL, testLogger())
			if _, err := coder.Reverse(t.Context(), emptyCoords); err != nil {
				t.Fatal(err)
			}
			time.Sleep(testMissTTL + time.Millisecond)
			if _, err := coder.Reverse(t.Context(), emptyCoords); err != nil {
				t.Fatal(err)
			}
			if mock.calls.Load() != 2 {
				t.Errorf("expected 2 provider calls, got %d", mock.calls.Load())
			}
		})
	})
	t.Run("concurrent lookups for the same coordinate are collapsed", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			mock := &mockGeocoder{delay: time.Second}
			coder := NewCachedGeocoder(mock, NewMemoryStore(), testHitTTL, testMissTTL, testLogger())
			var wg sync.WaitGroup
			for range 5 {
				wg.Go(func() {
					if _, err := coder.Reverse(t.Context(), testCoords); err != nil {
						t.Error(err)
					}
				})
			}
			wg.Wait()
			if mock.calls.Load() != 1 {
				t.Errorf("expected 1 provider call, got %d", mock.calls.Load())
			}
		})
	})
}

func TestCachedGeocoder_Purge(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := NewMemoryStore()
		coder := NewCachedGeocoder(&mockGeocoder{}, store, testHitTTL, testMissTTL, testLogger())
		if _, err := coder.Reverse(t.Context(), testCoords); err != nil {
			t.Fatal(err)
		}
		if _, err := coder.Reverse(t.Context(), emptyCoords); err != nil {
			t.Fatal(err)
		}
		time.Sleep(testMissTTL + time.Millisecond)
		purged, err := coder.Purge(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if purged != 1 {
			t.Errorf("expected 1 purged entry, got %d", purged)
		}
		if store.Len() != 1 {
			t.Errorf("expected 1 remaining entry, got %d", store.Len())
		}
	})
}
