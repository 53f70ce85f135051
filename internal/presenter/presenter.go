// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/nathan-osman/go-sunrise"
	"github.com/vorlif/humanize"
	"github.com/vorlif/spreak"
	"gopkg.in/yaml.v3"

	"github.com/wneessen/revgeo/internal/config"
	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/geocode"
	"github.com/wneessen/revgeo/internal/i18n"
	"github.com/wneessen/revgeo/internal/vartype"
	"github.com/wneessen/revgeo/internal/viewmodel"
)

const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"

	activeMarker = "*"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// CoordinatesView is the template context of the coordinates card.
type CoordinatesView struct {
	Label     string
	Latitude  float64
	Longitude float64
	Altitude  string
	Accuracy  string
	Heading   string
	Speed     string
	Timestamp time.Time

	HasDaylight bool
	Sunrise     time.Time
	Sunset      time.Time
}

// FieldView is a single key/value line of a result. Key is padded to the widest key of the result.
type FieldView struct {
	Key   string
	Value string
}

// ResultView is the template context of a single address result.
type ResultView struct {
	Number int
	Fields []FieldView
}

// Presenter renders view-model snapshots to the console and implements the blocking notification
// and the permission prompt on top of it.
type Presenter struct {
	CoordinatesTemplate *template.Template
	ResultTemplate      *template.Template

	output    string
	out       io.Writer
	alertOut  io.Writer
	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
	now       func() time.Time

	writeLock   sync.Mutex
	interactive bool
	prompting   int
	frame       int
	statusWidth int

	input    io.Reader
	readOnce sync.Once
	lines    chan string
}

// New returns a Presenter that writes to out and reads answers from in. The configured templates are
// parsed and test rendered, so template errors surface on startup.
func New(conf *config.Config, loc *spreak.Localizer, in io.Reader, out io.Writer) (*Presenter, error) {
	humanizer, err := i18n.NewHumanizer(loc.Language())
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}

	pres := &Presenter{
		output:    conf.Output,
		out:       out,
		input:     in,
		localizer: loc,
		humanizer: humanizer,
		now:       time.Now,
	}
	if pres.output == "" {
		pres.output = OutputText
	}
	// Alerts must not end up in machine readable output.
	pres.alertOut = out
	if pres.output != OutputText {
		pres.alertOut = os.Stderr
	}

	tpl, err := template.New("coordinates").Funcs(pres.templateFuncMap()).Parse(conf.Templates.Coordinates)
	if err != nil {
		return nil, fmt.Errorf("failed to parse coordinates template: %w", err)
	}
	pres.CoordinatesTemplate = tpl

	tpl, err = template.New("result").Funcs(pres.templateFuncMap()).Parse(conf.Templates.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse result template: %w", err)
	}
	pres.ResultTemplate = tpl

	sample := geobus.NewSample(geobus.Coordinate{Lat: 37.7749, Lon: -122.4194})
	if err = pres.CoordinatesTemplate.Execute(io.Discard, pres.coordinatesView("test", sample)); err != nil {
		return nil, fmt.Errorf("failed to render coordinates template: %w", err)
	}
	addr := geocode.NewCanonicalAddress()
	addr.SetString(geocode.KeyCity, "San Francisco")
	if err = pres.ResultTemplate.Execute(io.Discard, resultView(1, addr)); err != nil {
		return nil, fmt.Errorf("failed to render result template: %w", err)
	}

	return pres, nil
}

// SetInteractive switches acknowledgement of alerts on or off.
func (p *Presenter) SetInteractive(interactive bool) {
	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	p.interactive = interactive
}

// Output returns the configured output format.
func (p *Presenter) Output() string {
	return p.output
}

// Render renders the state in the configured output format.
func (p *Presenter) Render(state viewmodel.State) (string, error) {
	switch p.output {
	case OutputJSON:
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode state as JSON: %w", err)
		}
		return string(data) + "\n", nil
	case OutputYAML:
		buf := bytes.NewBuffer(nil)
		encoder := yaml.NewEncoder(buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(state); err != nil {
			return "", fmt.Errorf("failed to encode state as YAML: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return "", fmt.Errorf("failed to encode state as YAML: %w", err)
		}
		return buf.String(), nil
	default:
		return p.renderText(state)
	}
}

// Show renders the state and writes it to the console.
func (p *Presenter) Show(state viewmodel.State) error {
	text, err := p.Render(state)
	if err != nil {
		return err
	}
	p.Printf("%s", text)
	return nil
}

func (p *Presenter) renderText(state viewmodel.State) (string, error) {
	buf := bytes.NewBuffer(nil)

	if state.Location == nil {
		buf.WriteString(p.loc("noselection") + "\n")
	} else {
		if err := p.CoordinatesTemplate.Execute(buf, p.coordinatesView(state.Label, *state.Location)); err != nil {
			return "", fmt.Errorf("failed to render coordinates template: %w", err)
		}
	}
	if state.Geocoder != "" {
		fmt.Fprintf(buf, "%s: %s\n", p.loc("geocoder"), state.Geocoder)
	}
	if state.LookupID != "" {
		fmt.Fprintf(buf, "%s: %s\n", p.loc("lookup"), state.LookupID)
	}
	if state.Locating {
		buf.WriteString(p.loc("locating") + "...\n")
	}
	if state.Loading {
		buf.WriteString(p.loc("loading") + "...\n")
	}
	if state.Error != nil {
		fmt.Fprintf(buf, "Error: %s\n", state.Error.Message)
	}
	if !state.HasResults() {
		return buf.String(), nil
	}

	buf.WriteString("\n")
	if len(state.Results) == 0 {
		buf.WriteString(p.loc("noresults") + "\n")
		return buf.String(), nil
	}
	for i, addr := range state.Results {
		if err := p.ResultTemplate.Execute(buf, resultView(i+1, addr)); err != nil {
			return "", fmt.Errorf("failed to render result template: %w", err)
		}
	}
	return buf.String(), nil
}

// RenderLocations renders the numbered list of test locations. The location the state currently
// points at is marked as active.
func (p *Presenter) RenderLocations(locations []config.Location, state viewmodel.State) string {
	buf := bytes.NewBuffer(nil)
	buf.WriteString(p.loc("locations") + "\n")
	for i, loc := range locations {
		marker := " "
		if isActive(loc, state) {
			marker = activeMarker
		}
		fmt.Fprintf(buf, "  %s %d) %s (%s, %s)\n", marker, i+1, loc.Name, floatFormat(loc.Latitude, 6),
			floatFormat(loc.Longitude, 6))
	}
	return buf.String()
}

// Loading writes the next frame of the loading indicator. The line is overwritten by the next frame
// and removed by ClearLoading.
func (p *Presenter) Loading(label string) {
	if p.output != OutputText {
		return
	}
	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	if p.prompting > 0 {
		return
	}
	line := fmt.Sprintf("%s %s...", spinnerFrames[p.frame%len(spinnerFrames)], label)
	p.frame++
	p.statusWidth = max(p.statusWidth, runewidth.StringWidth(line))
	_, _ = fmt.Fprintf(p.out, "\r%s", runewidth.FillRight(line, p.statusWidth))
}

// ClearLoading removes the loading indicator line if one was written.
func (p *Presenter) ClearLoading() {
	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	p.clearStatus()
}

// clearStatus must be called with writeLock held.
func (p *Presenter) clearStatus() {
	if p.statusWidth == 0 {
		return
	}
	_, _ = fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", p.statusWidth))
	p.statusWidth = 0
	p.frame = 0
}

// Printf writes a formatted message to the console.
func (p *Presenter) Printf(format string, args ...any) {
	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// Localize returns the translation of the given text key.
func (p *Presenter) Localize(key string) string {
	return p.loc(key)
}

func (p *Presenter) coordinatesView(label string, sample geobus.Sample) CoordinatesView {
	view := CoordinatesView{
		Label:     label,
		Latitude:  sample.Coordinate.Lat,
		Longitude: sample.Coordinate.Lon,
		Altitude:  measurement(sample.Altitude, "m"),
		Accuracy:  measurement(sample.Accuracy, "m"),
		Heading:   measurement(sample.Heading, "°"),
		Speed:     measurement(sample.Speed, "m/s"),
		Timestamp: sample.Timestamp,
	}

	now := p.now()
	rise, set := sunrise.SunriseSunset(sample.Coordinate.Lat, sample.Coordinate.Lon, now.Year(), now.Month(),
		now.Day())
	if !rise.IsZero() && !set.IsZero() {
		view.HasDaylight = true
		view.Sunrise = rise.In(now.Location())
		view.Sunset = set.In(now.Location())
	}
	return view
}

func resultView(number int, addr geocode.Address) ResultView {
	width := 0
	for _, key := range addr.Keys() {
		width = max(width, runewidth.StringWidth(key))
	}
	view := ResultView{Number: number, Fields: make([]FieldView, 0, addr.Len())}
	for _, field := range addr.Fields() {
		view.Fields = append(view.Fields, FieldView{
			Key:   runewidth.FillRight(field.Key+":", width+1),
			Value: geocode.FormatValue(field.Value),
		})
	}
	return view
}

func measurement(val vartype.VarFloat64, unit string) string {
	if !val.IsSet() {
		return vartype.NotAvailable
	}
	return fmt.Sprintf("%s %s", floatFormat(val.Value(), 1), unit)
}

func isActive(loc config.Location, state viewmodel.State) bool {
	if state.Location == nil || state.Label != loc.Name {
		return false
	}
	return state.Location.Coordinate.Lat == loc.Latitude && state.Location.Coordinate.Lon == loc.Longitude
}
