// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/wneessen/revgeo/internal/logger"
	"github.com/wneessen/revgeo/internal/vartype"
)

const (
	accuracyEpsilon = 1e-6
	initialBackoff  = time.Second
	maxBackoff      = 30 * time.Second
)

// Nominal accuracies in meters for providers that only resolve to an area.
const (
	AccuracyCountry = 300000
	AccuracyRegion  = 100000
	AccuracyCity    = 15000
	AccuracyZip     = 3000
	AccuracyUnknown = 1000000
	TruncPrecision  = 4
)

// ErrAccessDenied is returned by an Authorizer when the platform refused location access.
var ErrAccessDenied = errors.New("location access denied by the platform")

// Provider streams position fixes for a lookup key until ctx is done.
type Provider interface {
	Name() string
	LookupStream(ctx context.Context, key string) <-chan Result
}

// Authorizer is implemented by providers that need the host platform to grant location access
// before they can deliver results.
type Authorizer interface {
	Authorize(ctx context.Context) error
}

// Result is a single position fix reported by a provider. A Result with Err set reports a failed
// lookup and carries no position.
type Result struct {
	Key            string
	Lat, Lon       float64
	Alt            vartype.VarFloat64
	Heading        vartype.VarFloat64
	Speed          vartype.VarFloat64
	AccuracyMeters float64
	Source         string
	At             time.Time
	TTL            time.Duration
	Err            error
}

// Failure returns the Result a provider emits for a failed lookup.
func Failure(key, source string, err error) Result {
	return Result{Key: key, Source: source, At: time.Now(), Err: err}
}

// Send delivers r on out unless ctx is done first. It reports whether r was delivered.
func Send(ctx context.Context, out chan<- Result, r Result) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- r:
		return true
	}
}

// BetterThan reports whether r should replace prev as the current fix. An empty prev is always
// replaced, an older fix never is.
func (r Result) BetterThan(prev Result) bool {
	switch {
	case prev.Key == "":
		return true
	case r.At.Before(prev.At):
		return false
	default:
		return r.AccuracyMeters < prev.AccuracyMeters-accuracyEpsilon
	}
}

// IsExpired reports whether the fix outlived its TTL. A zero TTL never expires.
func (r Result) IsExpired() bool {
	return r.TTL > 0 && time.Since(r.At) > r.TTL
}

func (r Result) coordinate() Coordinate {
	return Coordinate{Lat: r.Lat, Lon: r.Lon, Acc: r.AccuracyMeters}
}

// GeoBus fans the fixes of all providers out to the consumers of a lookup key. It remembers the
// current fix per key and replays it to late subscribers.
type GeoBus struct {
	mu      sync.Mutex
	logger  *logger.Logger
	current map[string]Result
	subs    map[string]map[chan Result]struct{}
}

// New returns an empty GeoBus.
func New(logger *logger.Logger) *GeoBus {
	return &GeoBus{
		logger:  logger,
		current: make(map[string]Result),
		subs:    make(map[string]map[chan Result]struct{}),
	}
}

// NewOrchestrator returns an Orchestrator that publishes the results of the given providers to the bus.
func (b *GeoBus) NewOrchestrator(providers []Provider) *Orchestrator {
	return &Orchestrator{
		Bus:       b,
		Providers: providers,
		logger:    b.logger,
	}
}

// Subscribe registers a consumer for key. The returned channel receives the current fix right away,
// if there is one. The returned function unregisters the consumer and closes the channel.
func (b *GeoBus) Subscribe(key string, size int) (<-chan Result, func()) {
	ch := make(chan Result, max(size, 1))

	b.mu.Lock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[chan Result]struct{})
	}
	b.subs[key][ch] = struct{}{}
	if cur, ok := b.current[key]; ok && !cur.IsExpired() {
		ch <- cur
	}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[key], ch)
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish offers r as the new fix for its key. Failures and fixes without an accuracy are dropped. r replaces
// the current fix if there is none, the current one expired, or r is more accurate and moved
// significantly. Only replacements reach the subscribers. A repeated fix from the same source
// refreshes the age of the current one.
func (b *GeoBus) Publish(r Result) bool {
	if r.Err != nil || r.AccuracyMeters == 0 {
		return false
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.current[r.Key]
	replace := !ok || cur.IsExpired() ||
		(r.BetterThan(cur) && r.coordinate().PosHasSignificantChange(cur.coordinate()))
	switch {
	case replace:
		b.current[r.Key] = r
		for ch := range b.subs[r.Key] {
			select {
			case ch <- r:
			default:
				// slow consumer, it keeps the fixes it already has
			}
		}
	case cur.Source == r.Source:
		cur.At = r.At
		b.current[r.Key] = cur
	}
	return replace
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	return min(d*2, maxBackoff)
}

// Truncate cuts x down to the given number of decimals.
func Truncate(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Trunc(x*p) / p
}
