// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kkyr/fig"
)

const (
	configEnv = "REVGEO"

	// validateTag is the struct tag read by the validator. fig owns the "validate" tag.
	validateTag = "check"

	DefaultCoordinatesTpl = `{{loc "location"}}: {{.Label}}
  {{loc "latitude"}}:  {{floatFormat .Latitude 6}}
  {{loc "longitude"}}: {{floatFormat .Longitude 6}}
  {{loc "altitude"}}:  {{.Altitude}}
  {{loc "accuracy"}}:  {{.Accuracy}}
  {{loc "heading"}}:   {{.Heading}}
  {{loc "speed"}}:     {{.Speed}}
  {{loc "timestamp"}}: {{naturalTime .Timestamp}}
{{- if .HasDaylight}}
  {{loc "sunrise"}}: {{localizedTime .Sunrise}}, {{loc "sunset"}}: {{localizedTime .Sunset}}
{{- end}}
`
	DefaultResultTpl = `{{loc "result"}} {{.Number}}
{{range .Fields}}  {{.Key}}  {{.Value}}
{{end}}`
)

// DefaultProviders lists the device location providers in the order they are started.
var DefaultProviders = []string{"geolocation_file", "gpsd", "geoclue", "geoip", "geoapi", "ichnaea"}

// DefaultLocations are the named test locations used when the config does not list any.
var DefaultLocations = []Location{
	{Name: "San Francisco", Latitude: 37.7749, Longitude: -122.4194},
	{Name: "New York", Latitude: 40.7128, Longitude: -74.0060},
	{Name: "Tokyo", Latitude: 35.6762, Longitude: 139.6503},
}

// Location is a named test coordinate.
type Location struct {
	Name      string  `fig:"name" check:"required"`
	Latitude  float64 `fig:"latitude" check:"min=-90,max=90"`
	Longitude float64 `fig:"longitude" check:"min=-180,max=180"`
}

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`
	// Allowed values: text, json, yaml
	Output   string     `fig:"output" default:"text" check:"oneof=text json yaml"`

	Geocoder struct {
		// Allowed values: osm-nominatim, opencage, geocode-earth
		Provider string `fig:"provider" default:"osm-nominatim" check:"oneof=osm-nominatim opencage geocode-earth"`
		APIKey   string `fig:"apikey"`
		Endpoint string `fig:"endpoint" check:"omitempty,url"`
	} `fig:"geocoder"`

	Cache struct {
		// Allowed values: none, memory, redis. Lookups are never cached unless a backend is set.
		Backend       string        `fig:"backend" default:"none" check:"oneof=none memory redis"`
		HitTTL        time.Duration `fig:"hit_ttl" default:"10m" check:"gte=0"`
		MissTTL       time.Duration `fig:"miss_ttl" default:"1m" check:"gte=0"`
		PurgeInterval time.Duration `fig:"purge_interval" default:"5m" check:"gt=0"`
		RedisURL      string        `fig:"redis_url" default:"redis://localhost:6379/0"`
	} `fig:"cache"`

	Device struct {
		// Allowed values: granted, denied, prompt
		Permission string        `fig:"permission" default:"prompt" check:"oneof=granted denied prompt"`
		Providers  []string      `fig:"providers" check:"dive,oneof=geolocation_file gpsd geoclue geoip geoapi ichnaea"`
		Timeout    time.Duration `fig:"timeout" default:"30s" check:"gt=0"`
		Settle     time.Duration `fig:"settle" default:"3s" check:"gt=0"`
		File       string        `fig:"file"`
		GPSDHost   string        `fig:"gpsd_host" default:"localhost"`
		GPSDPort   int           `fig:"gpsd_port" default:"2947" check:"min=1,max=65535"`
		DesktopID  string        `fig:"desktop_id" default:"revgeo"`
	} `fig:"device"`

	Locations []Location `fig:"locations" check:"dive"`

	Templates struct {
		Coordinates string `fig:"coordinates"`
		Result      string `fig:"result"`
	} `fig:"templates"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

// LoadDotEnv loads the given .env files into the process environment. Missing files are skipped,
// variables that are already set are not overwritten.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %q: %w", file, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if len(c.Locations) == 0 {
		c.Locations = append([]Location(nil), DefaultLocations...)
	}
	if len(c.Device.Providers) == 0 {
		c.Device.Providers = append([]string(nil), DefaultProviders...)
	}
	if c.Device.File == "" {
		home, _ := os.UserHomeDir()
		c.Device.File = filepath.Join(home, ".config", "revgeo", "geolocation")
	}
	if c.Templates.Coordinates == "" {
		c.Templates.Coordinates = DefaultCoordinatesTpl
	}
	if c.Templates.Result == "" {
		c.Templates.Result = DefaultResultTpl
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.SetTagName(validateTag)
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		return errors.New("invalid config: redis cache backend requires a redis_url")
	}
	if c.Geocoder.Provider != "osm-nominatim" && c.Geocoder.APIKey == "" {
		return fmt.Errorf("invalid config: geocoder %q requires an apikey", c.Geocoder.Provider)
	}

	return nil
}

// Location returns the test location with the given name, case-insensitive.
func (c *Config) Location(name string) (Location, bool) {
	for _, loc := range c.Locations {
		if strings.EqualFold(loc.Name, name) {
			return loc, true
		}
	}
	return Location{}, false
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
