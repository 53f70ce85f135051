// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package viewmodel holds the state of the reverse geocoding screen: the selected location, the
// results of the last lookup, the loading flag and the last error.
package viewmodel

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/wneessen/revgeo/internal/device"
	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/geocode"
	"github.com/wneessen/revgeo/internal/logger"
)

const (
	AlertTitle   = "Geocoding Error"
	LabelDevice  = "Current location"
	LabelPoint   = "Selected point"
	NoStackLabel = "No stack available"

	msgNoLocation       = "No location available"
	msgPermissionDenied = "Permission to access location was denied"
	msgPositionFailed   = "Failed to get current location"
	msgLookupFailed     = "Reverse geocoding failed"
)

// Notifier raises a blocking notification. Alert returns once the user acknowledged it.
type Notifier interface {
	Alert(title, body string)
}

// Locator is the device location provider used by InitializeFromDevice.
type Locator interface {
	RequestPermission(ctx context.Context) (bool, error)
	CurrentPosition(ctx context.Context, accuracy device.Accuracy) (geobus.Sample, error)
}

// State is a snapshot of the view-model. A nil Location means no location is selected, nil Results
// means no lookup finished for the current location. An empty, non-nil Results is a lookup that
// found nothing. The addresses are shared with the view-model and must not be modified.
type State struct {
	Label    string            `json:"label,omitempty" yaml:"label,omitempty"`
	Location *geobus.Sample    `json:"location" yaml:"location"`
	Results  []geocode.Address `json:"results" yaml:"results"`
	Loading  bool              `json:"loading" yaml:"loading"`
	Locating bool              `json:"locating" yaml:"locating"`
	Error    *LookupError      `json:"error" yaml:"error"`
	LookupID string            `json:"lookupId,omitempty" yaml:"lookupId,omitempty"`
	Geocoder string            `json:"geocoder" yaml:"geocoder"`
}

// HasResults reports whether a lookup finished for the current location.
func (s State) HasResults() bool {
	return s.Results != nil
}

// ViewModel owns the location, result and error state and implements the operations of the screen.
// All methods are safe for concurrent use, so a presenter can render snapshots while a lookup runs.
type ViewModel struct {
	geocoder geocode.Geocoder
	locator  Locator
	notifier Notifier
	logger   *logger.Logger

	mu         sync.RWMutex
	state      State
	generation uint64
}

// New returns a ViewModel with no location selected. locator may be nil if no device location
// provider is available.
func New(log *logger.Logger, geocoder geocode.Geocoder, locator Locator, notifier Notifier) *ViewModel {
	return &ViewModel{
		geocoder: geocoder,
		locator:  locator,
		notifier: notifier,
		logger:   log,
		state:    State{Geocoder: geocoder.Name()},
	}
}

// State returns a snapshot of the current state.
func (v *ViewModel) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	state := v.state
	if state.Location != nil {
		sample := *state.Location
		state.Location = &sample
	}
	if state.Results != nil {
		state.Results = slices.Clone(state.Results)
	}
	if state.Error != nil {
		lookupErr := *state.Error
		state.Error = &lookupErr
	}
	return state
}

// CanReverseGeocode reports whether the reverse geocode control should be enabled.
func (v *ViewModel) CanReverseGeocode() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state.Location != nil && !v.state.Loading && !v.state.Locating
}

// SelectLocation replaces the current location with a sample for coord. Sensor fields of the sample
// are unknown. Results and error are cleared. An invalid coordinate is rejected and the state is
// left untouched.
func (v *ViewModel) SelectLocation(coord geobus.Coordinate, label string) error {
	if err := coord.Validate(); err != nil {
		return err
	}
	if label == "" {
		label = LabelPoint
	}
	v.setLocation(geobus.NewSample(coord), label)
	return nil
}

// InitializeFromDevice asks the device location provider for permission and a single high accuracy
// fix. On success the fix becomes the current location, on failure the error is recorded and the
// current location is kept.
func (v *ViewModel) InitializeFromDevice(ctx context.Context) {
	if v.locator == nil {
		v.setError(newLookupError(KindPositionFetchFailed, msgPositionFailed+": no device location provider", nil))
		return
	}

	v.mu.Lock()
	v.state.Locating = true
	v.state.Error = nil
	v.mu.Unlock()

	granted, err := v.locator.RequestPermission(ctx)
	if err != nil || !granted {
		msg := msgPermissionDenied
		if err != nil {
			msg = msgPermissionDenied + ": " + err.Error()
			v.logger.Error("failed to request device location permission", logger.Err(err))
		}
		v.setError(newLookupError(KindPermissionDenied, msg, err))
		return
	}

	sample, err := v.locator.CurrentPosition(ctx, device.AccuracyHigh)
	if err != nil {
		v.logger.Error("failed to get device position", logger.Err(err))
		v.setError(newLookupError(KindPositionFetchFailed, msgPositionFailed+": "+err.Error(), err))
		return
	}
	v.setLocation(sample, LabelDevice)
}

// ReverseGeocode looks up the current location. Without a location the error is set to "No location
// available" and nothing else changes. A failed lookup is recorded and raised as one blocking
// notification.
func (v *ViewModel) ReverseGeocode(ctx context.Context) {
	v.mu.Lock()
	if v.state.Location == nil {
		v.state.Error = newLookupError(KindNoLocationSelected, msgNoLocation, nil)
		v.mu.Unlock()
		return
	}
	coord := v.state.Location.Coordinate
	generation := v.generation
	lookupID := uuid.NewString()
	v.state.Loading = true
	v.state.Error = nil
	v.state.LookupID = lookupID
	v.mu.Unlock()

	v.logger.Debug("reverse geocoding coordinate", logger.LookupID(lookupID),
		slog.String("coordinate", coord.String()), slog.String("geocoder", v.geocoder.Name()))
	results, err := v.geocoder.Reverse(ctx, coord)

	v.mu.Lock()
	if generation != v.generation {
		v.mu.Unlock()
		v.logger.Debug("discarding lookup for a replaced location", logger.LookupID(lookupID))
		return
	}
	v.state.Loading = false
	if err != nil {
		lookupErr := newLookupError(KindGeocodeLookupFailed, msgLookupFailed+": "+err.Error(), err)
		v.state.Error = lookupErr
		v.mu.Unlock()

		v.logger.Error("reverse geocoding failed", logger.LookupID(lookupID),
			slog.String("coordinate", coord.String()), logger.Err(err))
		if v.notifier != nil {
			v.notifier.Alert(AlertTitle, lookupErr.AlertBody())
		}
		return
	}
	if results == nil {
		results = []geocode.Address{}
	}
	v.state.Results = results
	v.mu.Unlock()

	v.logger.Debug("reverse geocoding succeeded", logger.LookupID(lookupID), slog.Int("results", len(results)))
}

func (v *ViewModel) setLocation(sample geobus.Sample, label string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.generation++
	v.state.Location = &sample
	v.state.Label = label
	v.state.Results = nil
	v.state.Error = nil
	v.state.Loading = false
	v.state.Locating = false
	v.state.LookupID = ""
}

func (v *ViewModel) setError(lookupErr *LookupError) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Locating = false
	v.state.Error = lookupErr
}

// String returns a one-line description of the state for logging.
func (s State) String() string {
	location := "none"
	if s.Location != nil {
		location = s.Location.Coordinate.String()
	}
	return fmt.Sprintf("location=%s results=%d loading=%t error=%t", location, len(s.Results), s.Loading,
		s.Error != nil)
}
