// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wneessen/revgeo/internal/logger"
)

// Orchestrator coordinates the tracking and publication of geolocation results from multiple
// providers through a GeoBus.
type Orchestrator struct {
	Bus       *GeoBus
	Providers []Provider
	logger    *logger.Logger

	mu      sync.Mutex
	lastErr error
}

// LastError returns the most recent lookup failure reported by any provider, or nil.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

func (o *Orchestrator) recordFailure(provider string, err error) {
	o.mu.Lock()
	o.lastErr = fmt.Errorf("%s: %w", provider, err)
	o.mu.Unlock()
	o.debug("provider lookup failed", slog.String("provider", provider), logger.Err(err))
}

// Track initiates concurrent geolocation tracking for a given key across multiple providers in the Orchestrator.
// It blocks until ctx is done and all providers have stopped.
func (o *Orchestrator) Track(ctx context.Context, key string) {
	var wg sync.WaitGroup
	for _, p := range o.Providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			o.trackProvider(ctx, p, key)
		}(p)
	}
	<-ctx.Done()
	wg.Wait()
}

// trackProvider continuously tracks a Provider for geolocation data, publishing results to
// the GeoBus and implementing backoff.
func (o *Orchestrator) trackProvider(ctx context.Context, p Provider, key string) {
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		lookupChan := o.safeLookup(ctx, p, key)
		if lookupChan == nil {
			o.debug("provider returned no result stream", slog.String("provider", p.Name()))
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

	stream:
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-lookupChan:
				if !ok {
					if !sleepOrDone(ctx, backoff) {
						return
					}
					backoff = nextBackoff(backoff)
					break stream
				}
				if r.Err != nil {
					o.recordFailure(p.Name(), r.Err)
					continue
				}
				accepted := o.Bus.Publish(r)
				o.debug("provider published result", slog.String("provider", p.Name()),
					slog.Float64("lat", r.Lat), slog.Float64("lon", r.Lon),
					slog.Float64("accuracy", r.AccuracyMeters), slog.Bool("accepted", accepted))
				backoff = initialBackoff
			}
		}
	}
}

// safeLookup safely invokes the LookupStream method on a Provider and recovers from potential panics.
// Returns a read-only channel of Result or nil if the operation fails.
func (o *Orchestrator) safeLookup(ctx context.Context, provider Provider, key string) (ch <-chan Result) {
	defer func() { _ = recover() }()
	return provider.LookupStream(ctx, key)
}

func (o *Orchestrator) debug(msg string, attrs ...any) {
	if o.logger == nil {
		return
	}
	o.logger.Debug(msg, attrs...)
}
