// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"

	"github.com/wneessen/revgeo/internal/geobus"
)

// Geocoder resolves a coordinate into a sequence of addresses. An empty sequence is a valid answer
// and means the provider knows nothing about the coordinate.
type Geocoder interface {
	Name() string
	Reverse(ctx context.Context, coord geobus.Coordinate) ([]Address, error)
}
