// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/vartype"
)

const (
	busName         = "org.freedesktop.GeoClue2"
	managerPath     = "/org/freedesktop/GeoClue2/Manager"
	managerIface    = "org.freedesktop.GeoClue2.Manager"
	clientIface     = "org.freedesktop.GeoClue2.Client"
	locationIface   = "org.freedesktop.GeoClue2.Location"
	accessDeniedErr = "org.freedesktop.DBus.Error.AccessDenied"
	name            = "geoclue"

	// AccuracyLevelCity and AccuracyLevelExact are the GClueAccuracyLevel values we request.
	AccuracyLevelCity  uint32 = 4
	AccuracyLevelExact uint32 = 8
)

var (
	ErrServiceUnavailable = errors.New("GeoClue service is not available on the system bus")
	ErrNoLocationUpdate   = errors.New("GeoClue did not report a location")
)

// fix is a single GeoClue location with the sensor values GeoClue knows about.
type fix struct {
	coord   geobus.Coordinate
	alt     vartype.VarFloat64
	speed   vartype.VarFloat64
	heading vartype.VarFloat64
	at      time.Time
}

// GeolocationGeoClueProvider asks the GeoClue2 service on the system bus for the device position.
// GeoClue combines GPS, WiFi and cell data and enforces the desktop's location permissions through
// its agent, so it doubles as the platform permission check.
type GeolocationGeoClueProvider struct {
	name        string
	desktopID   string
	accuracy    uint32
	period      time.Duration
	ttl         time.Duration
	locateFn    func(ctx context.Context) (fix, error)
	authorizeFn func(ctx context.Context) error
}

// NewGeolocationGeoClueProvider returns a provider registering itself with GeoClue as desktopID.
func NewGeolocationGeoClueProvider(desktopID string, accuracy uint32) *GeolocationGeoClueProvider {
	if accuracy == 0 {
		accuracy = AccuracyLevelExact
	}
	provider := &GeolocationGeoClueProvider{
		name:      name,
		desktopID: desktopID,
		accuracy:  accuracy,
		period:    time.Minute,
		ttl:       time.Minute * 10,
	}
	provider.locateFn = provider.locate
	provider.authorizeFn = provider.authorize
	return provider
}

func (p *GeolocationGeoClueProvider) Name() string {
	return p.name
}

// Authorize checks that GeoClue grants location access to our desktop ID. If a GeoClue agent is
// running, this is the moment it asks the user.
func (p *GeolocationGeoClueProvider) Authorize(ctx context.Context) error {
	return p.authorizeFn(ctx)
}

// LookupStream requests a location from GeoClue right away and then once per period.
func (p *GeolocationGeoClueProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		state := geobus.GeolocationState{}
		firstRun := true

		for {
			if !firstRun {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.period):
				}
			}
			firstRun = false

			position, err := p.locateFn(ctx)
			if err != nil {
				if !geobus.Send(ctx, out, geobus.Failure(key, p.Name(), err)) {
					return
				}
				continue
			}
			if !state.HasChanged(position.coord) {
				continue
			}
			state.Update(position.coord)

			select {
			case <-ctx.Done():
				return
			case out <- p.createResult(key, position):
			}
		}
	}()
	return out
}

// createResult composes and returns a Result using provided geolocation data and metadata.
func (p *GeolocationGeoClueProvider) createResult(key string, position fix) geobus.Result {
	result := geobus.Result{
		Key:            key,
		Lat:            position.coord.Lat,
		Lon:            position.coord.Lon,
		Alt:            position.alt,
		Speed:          position.speed,
		Heading:        position.heading,
		AccuracyMeters: position.coord.Acc,
		Source:         p.name,
		At:             position.at,
		TTL:            p.ttl,
	}
	if result.At.IsZero() {
		result.At = time.Now()
	}
	return result
}

// session is a started GeoClue client on the system bus.
type session struct {
	conn    *dbus.Conn
	client  dbus.BusObject
	signals chan *dbus.Signal
}

// start connects to the system bus, registers a GeoClue client and starts it. The returned session
// must be closed.
func (p *GeolocationGeoClueProvider) start(ctx context.Context) (*session, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	s := &session{conn: conn, signals: make(chan *dbus.Signal, 4)}

	var clientPath dbus.ObjectPath
	manager := conn.Object(busName, managerPath)
	if err = manager.CallWithContext(ctx, managerIface+".GetClient", 0).Store(&clientPath); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to get GeoClue client: %w", mapError(err))
	}
	s.client = conn.Object(busName, clientPath)

	if err = s.client.SetProperty(clientIface+".DesktopId", dbus.MakeVariant(p.desktopID)); err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("failed to set desktop id: %w", mapError(err))
	}
	if err = s.client.SetProperty(clientIface+".RequestedAccuracyLevel", dbus.MakeVariant(p.accuracy)); err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("failed to set requested accuracy level: %w", mapError(err))
	}

	if err = conn.AddMatchSignal(
		dbus.WithMatchObjectPath(clientPath),
		dbus.WithMatchInterface(clientIface),
		dbus.WithMatchMember("LocationUpdated"),
	); err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("failed to subscribe to location updates: %w", err)
	}
	conn.Signal(s.signals)

	if err = s.client.CallWithContext(ctx, clientIface+".Start", 0).Err; err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("failed to start GeoClue client: %w", mapError(err))
	}
	return s, nil
}

func (s *session) close(ctx context.Context) {
	if s.client != nil {
		_ = s.client.CallWithContext(ctx, clientIface+".Stop", 0).Err
	}
	s.conn.RemoveSignal(s.signals)
	_ = s.conn.Close()
}

// authorize starts and stops a GeoClue client once.
func (p *GeolocationGeoClueProvider) authorize(ctx context.Context) error {
	s, err := p.start(ctx)
	if err != nil {
		return err
	}
	s.close(ctx)
	return nil
}

// locate starts a GeoClue client and waits for the first LocationUpdated signal.
func (p *GeolocationGeoClueProvider) locate(ctx context.Context) (fix, error) {
	s, err := p.start(ctx)
	if err != nil {
		return fix{}, err
	}
	defer s.close(context.Background())

	for {
		select {
		case <-ctx.Done():
			return fix{}, errors.Join(ErrNoLocationUpdate, ctx.Err())
		case signal, ok := <-s.signals:
			if !ok {
				return fix{}, ErrNoLocationUpdate
			}
			if len(signal.Body) != 2 {
				continue
			}
			locationPath, ok := signal.Body[1].(dbus.ObjectPath)
			if !ok {
				continue
			}
			return readLocation(s.conn.Object(busName, locationPath))
		}
	}
}

// readLocation reads the properties of a GeoClue Location object.
func readLocation(location dbus.BusObject) (fix, error) {
	props := map[string]float64{
		"Latitude": 0, "Longitude": 0, "Accuracy": 0, "Altitude": 0, "Speed": 0, "Heading": 0,
	}
	for prop := range props {
		var val float64
		if err := location.StoreProperty(locationIface+"."+prop, &val); err != nil {
			return fix{}, fmt.Errorf("failed to read location %s: %w", prop, err)
		}
		props[prop] = val
	}

	position := fix{
		coord: geobus.Coordinate{
			Lat: geobus.Truncate(props["Latitude"], geobus.TruncPrecision),
			Lon: geobus.Truncate(props["Longitude"], geobus.TruncPrecision),
			Acc: props["Accuracy"],
		},
		alt:     knownAltitude(props["Altitude"]),
		speed:   knownNonNegative(props["Speed"]),
		heading: knownNonNegative(props["Heading"]),
		at:      time.Now(),
	}
	if err := position.coord.Validate(); err != nil {
		return fix{}, fmt.Errorf("GeoClue reported an invalid position: %w", err)
	}
	return position, nil
}

// knownAltitude treats GeoClue's -DBL_MAX marker as unknown.
func knownAltitude(val float64) vartype.VarFloat64 {
	if val <= -math.MaxFloat64 || math.IsNaN(val) {
		return vartype.VarFloat64{}
	}
	return vartype.NewVariable(val)
}

// knownNonNegative treats GeoClue's negative markers for speed and heading as unknown.
func knownNonNegative(val float64) vartype.VarFloat64 {
	if val < 0 || math.IsNaN(val) {
		return vartype.VarFloat64{}
	}
	return vartype.NewVariable(val)
}

// mapError turns GeoClue's AccessDenied D-Bus error into geobus.ErrAccessDenied and a missing
// service into ErrServiceUnavailable.
func mapError(err error) error {
	var errName string
	var dbusErr dbus.Error
	var dbusErrPtr *dbus.Error
	switch {
	case errors.As(err, &dbusErr):
		errName = dbusErr.Name
	case errors.As(err, &dbusErrPtr):
		errName = dbusErrPtr.Name
	default:
		return err
	}
	switch errName {
	case accessDeniedErr:
		return fmt.Errorf("%w: %s", geobus.ErrAccessDenied, err)
	case "org.freedesktop.DBus.Error.ServiceUnknown", "org.freedesktop.DBus.Error.NameHasNoOwner":
		return fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
	default:
		return err
	}
}
