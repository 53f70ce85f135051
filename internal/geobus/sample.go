// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"time"

	"github.com/wneessen/revgeo/internal/vartype"
)

// Sample is a complete location reading. A Sample is always replaced as a whole, never patched.
type Sample struct {
	Coordinate Coordinate         `json:"coordinate" yaml:"coordinate"`
	Altitude   vartype.VarFloat64 `json:"altitude" yaml:"altitude"`
	Accuracy   vartype.VarFloat64 `json:"accuracy" yaml:"accuracy"`
	Heading    vartype.VarFloat64 `json:"heading" yaml:"heading"`
	Speed      vartype.VarFloat64 `json:"speed" yaml:"speed"`
	Timestamp  time.Time          `json:"timestamp" yaml:"timestamp"`
}

// NewSample returns a Sample for a bare coordinate. All sensor fields are unknown.
func NewSample(coord Coordinate) Sample {
	return Sample{
		Coordinate: Coordinate{Lat: coord.Lat, Lon: coord.Lon},
		Timestamp:  time.Now(),
	}
}

// Sample converts the Result into a location Sample, carrying over every sensor value the
// provider reported.
func (r Result) Sample() Sample {
	s := Sample{
		Coordinate: Coordinate{Lat: r.Lat, Lon: r.Lon},
		Altitude:   r.Alt,
		Heading:    r.Heading,
		Speed:      r.Speed,
		Timestamp:  r.At,
	}
	if r.AccuracyMeters > 0 && r.AccuracyMeters < AccuracyUnknown {
		s.Accuracy = vartype.NewVariable(r.AccuracyMeters)
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	return s
}
