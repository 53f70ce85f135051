// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package device provides one-shot location fixes from the host's location providers.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/logger"
)

const (
	DefaultTimeout = time.Second * 30
	DefaultSettle  = time.Second * 3

	lookupKey = "device"
)

// Accuracy is the hint passed to CurrentPosition.
type Accuracy int

const (
	// AccuracyLow returns the first fix any provider delivers.
	AccuracyLow Accuracy = iota
	// AccuracyHigh waits for the settle window after the first fix and returns the best one.
	AccuracyHigh
)

// Permission is the policy used when asking for location access.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionPrompt  Permission = "prompt"
)

var (
	ErrPermissionDenied = errors.New("permission to access location was denied")
	ErrNoPosition       = errors.New("no position fix received")
	ErrNoProviders      = errors.New("no location providers configured")
	ErrUnknownPolicy    = errors.New("unknown permission policy")
)

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Config holds the settings of a Locator.
type Config struct {
	Permission Permission
	Prompter   Prompter
	Timeout    time.Duration
	Settle     time.Duration
}

// Locator requests location permission and single position fixes from a set of geobus providers.
// Every fix runs on its own GeoBus, so no provider keeps running between two calls.
type Locator struct {
	config    Config
	logger    *logger.Logger
	providers []geobus.Provider

	mu         sync.Mutex
	granted    bool
	authorized []geobus.Provider
}

// New returns a Locator for the given providers.
func New(log *logger.Logger, providers []geobus.Provider, config Config) *Locator {
	if config.Permission == "" {
		config.Permission = PermissionPrompt
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Settle <= 0 {
		config.Settle = DefaultSettle
	}
	return &Locator{
		config:    config,
		logger:    log,
		providers: providers,
	}
}

// RequestPermission applies the permission policy and then asks every provider that needs it for
// platform authorisation. Providers that are refused are not used for fixes. Permission is denied
// when no provider is left.
func (l *Locator) RequestPermission(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.granted = false
	l.authorized = nil

	if len(l.providers) == 0 {
		return false, ErrNoProviders
	}

	switch l.config.Permission {
	case PermissionGranted:
	case PermissionDenied:
		return false, nil
	case PermissionPrompt:
		if l.config.Prompter == nil {
			return false, errors.New("permission prompt requested but no prompter available")
		}
		ok, err := l.config.Prompter.Confirm(ctx, "Allow revgeo to access your location?")
		if err != nil {
			return false, fmt.Errorf("failed to ask for location permission: %w", err)
		}
		if !ok {
			return false, nil
		}
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownPolicy, l.config.Permission)
	}

	authorized := make([]geobus.Provider, 0, len(l.providers))
	for _, provider := range l.providers {
		authorizer, ok := provider.(geobus.Authorizer)
		if !ok {
			authorized = append(authorized, provider)
			continue
		}
		if err := authorizer.Authorize(ctx); err != nil {
			l.logger.Warn("location provider not authorized", slog.String("provider", provider.Name()),
				logger.Err(err))
			continue
		}
		authorized = append(authorized, provider)
	}
	if len(authorized) == 0 {
		return false, nil
	}

	l.granted = true
	l.authorized = authorized
	return true, nil
}

// CurrentPosition starts all authorized providers and returns a single fix. Low accuracy returns the
// first result, high accuracy returns the best result received within the settle window after the
// first one. All providers are stopped before CurrentPosition returns.
func (l *Locator) CurrentPosition(ctx context.Context, accuracy Accuracy) (geobus.Sample, error) {
	l.mu.Lock()
	granted, providers := l.granted, l.authorized
	l.mu.Unlock()
	if !granted {
		return geobus.Sample{}, ErrPermissionDenied
	}

	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	bus := geobus.New(l.logger)
	results, unsubscribe := bus.Subscribe(lookupKey, 16)
	orchestrator := bus.NewOrchestrator(providers)
	tracking := make(chan struct{})
	go func() {
		defer close(tracking)
		orchestrator.Track(ctx, lookupKey)
	}()
	defer func() {
		cancel()
		<-tracking
		unsubscribe()
	}()

	var best geobus.Result
	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if best.Key != "" {
				return l.fix(best), nil
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				if lastErr := orchestrator.LastError(); lastErr != nil {
					return geobus.Sample{}, fmt.Errorf("%w within %s, last failure: %w", ErrNoPosition,
						l.config.Timeout, lastErr)
				}
				return geobus.Sample{}, fmt.Errorf("%w within %s", ErrNoPosition, l.config.Timeout)
			}
			return geobus.Sample{}, ctx.Err()
		case <-settle:
			return l.fix(best), nil
		case result := <-results:
			if !result.BetterThan(best) {
				continue
			}
			best = result
			if accuracy == AccuracyLow {
				return l.fix(best), nil
			}
			if settle == nil {
				timer := time.NewTimer(l.config.Settle)
				defer timer.Stop()
				settle = timer.C
			}
		}
	}
}

func (l *Locator) fix(result geobus.Result) geobus.Sample {
	l.logger.Debug("device position fixed", slog.String("source", result.Source),
		slog.Float64("lat", result.Lat), slog.Float64("lon", result.Lon),
		slog.Float64("accuracy", result.AccuracyMeters))
	return result.Sample()
}
