// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/geobus/provider/geoclue"
	"github.com/wneessen/revgeo/internal/geobus/provider/geolocation_file"
	"github.com/wneessen/revgeo/internal/geobus/provider/gpsd"
	"github.com/wneessen/revgeo/internal/geobus/provider/ichnaea"
	"github.com/wneessen/revgeo/internal/geobus/provider/ipgeo"
	"github.com/wneessen/revgeo/internal/geocode"
	geocodeearth "github.com/wneessen/revgeo/internal/geocode/provider/geocode-earth"
	"github.com/wneessen/revgeo/internal/geocode/provider/opencage"
	nominatim "github.com/wneessen/revgeo/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/revgeo/internal/http"
	"github.com/wneessen/revgeo/internal/logger"
)

// selectGeobusProviders creates the configured device location providers in configured order.
// Providers that fail to initialize are logged and skipped.
func (s *Service) selectGeobusProviders() []geobus.Provider {
	httpClient := http.New(s.logger)
	var provider []geobus.Provider

	for _, name := range s.config.Device.Providers {
		switch strings.ToLower(name) {
		case "geolocation_file":
			provider = append(provider, geolocation_file.NewGeolocationFileProvider(s.config.Device.File))
		case "gpsd":
			provider = append(provider, gpsd.NewGeolocationGPSDProvider(s.config.Device.GPSDHost,
				strconv.Itoa(s.config.Device.GPSDPort)))
		case "geoclue":
			provider = append(provider, geoclue.NewGeolocationGeoClueProvider(s.config.Device.DesktopID,
				geoclue.AccuracyLevelExact))
		case "geoip":
			gip, err := ipgeo.New(httpClient, ipgeo.ReallyFreeGeoIP)
			if err != nil {
				s.logger.Error("failed to create GeoIP provider", logger.Err(err))
				continue
			}
			provider = append(provider, gip)
		case "geoapi":
			gap, err := ipgeo.New(httpClient, ipgeo.GeoAPI)
			if err != nil {
				s.logger.Error("failed to create GeoAPI provider", logger.Err(err))
				continue
			}
			provider = append(provider, gap)
		case "ichnaea":
			mls, err := ichnaea.NewGeolocationICHNAEAProvider(httpClient)
			if err != nil {
				s.logger.Error("failed to create ICHNAEA provider", logger.Err(err))
				continue
			}
			provider = append(provider, mls)
		default:
			s.logger.Warn("ignoring unknown device location provider", slog.String("provider", name))
		}
	}

	return provider
}

func (s *Service) selectGeocodeProvider(lang language.Tag) (geocode.Geocoder, error) {
	httpClient := http.New(s.logger)

	switch strings.ToLower(s.config.Geocoder.Provider) {
	case "osm-nominatim", "nominatim":
		if s.config.Geocoder.Endpoint != "" {
			return nominatim.NewWithEndpoint(httpClient, lang, s.config.Geocoder.Endpoint), nil
		}
		return nominatim.New(httpClient, lang), nil
	case "opencage":
		coder, err := opencage.New(httpClient, lang, s.config.Geocoder.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenCage geocoder: %w", err)
		}
		return coder, nil
	case "geocode-earth":
		coder, err := geocodeearth.New(httpClient, lang, s.config.Geocoder.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create geocode.earth geocoder: %w", err)
		}
		return coder, nil
	default:
		return nil, fmt.Errorf("unsupported geocoder type: %s", s.config.Geocoder.Provider)
	}
}

// wrapGeocodeCache puts the configured cache in front of coder. The "none" backend returns coder
// as is.
func (s *Service) wrapGeocodeCache(ctx context.Context, coder geocode.Geocoder) (geocode.Geocoder, error) {
	var store geocode.Store
	switch s.config.Cache.Backend {
	case "none":
		return coder, nil
	case "redis":
		redisStore, err := geocode.NewRedisStore(ctx, s.config.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis geocode cache: %w", err)
		}
		s.closers = append(s.closers, redisStore)
		store = redisStore
	default:
		store = geocode.NewMemoryStore()
	}

	s.cache = geocode.NewCachedGeocoder(coder, store, s.config.Cache.HitTTL, s.config.Cache.MissTTL, s.logger)
	return s.cache, nil
}
