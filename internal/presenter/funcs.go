// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/vorlif/humanize"
	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/revgeo/internal/vartype"
)

var i18nVars = map[string]localize.MsgID{
	"location":    "Location",
	"latitude":    "Latitude",
	"longitude":   "Longitude",
	"altitude":    "Altitude",
	"accuracy":    "Accuracy",
	"heading":     "Heading",
	"speed":       "Speed",
	"timestamp":   "Timestamp",
	"sunrise":     "Sunrise",
	"sunset":      "Sunset",
	"result":      "Result",
	"locations":   "Test locations",
	"loading":     "Looking up address",
	"locating":    "Locating device",
	"noresults":   "No address information found",
	"noselection": "No location selected",
	"continue":    "Press Enter to continue",
	"geocoder":    "Geocoder",
	"lookup":      "Lookup",
	"commands":    "Commands",
}

func (p *Presenter) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":    p.timeFormat,
		"localizedTime": p.localizedTime,
		"naturalTime":   p.naturalTime,
		"floatFormat":   floatFormat,
		"loc":           p.loc,
		"lc":            strings.ToLower,
		"uc":            strings.ToUpper,
	}
}

func (p *Presenter) loc(val string) string {
	val = strings.ToLower(val)
	if raw, ok := i18nVars[val]; ok {
		return p.localizer.Get(raw)
	}
	return val
}

func (p *Presenter) localizedTime(val time.Time) string {
	return p.humanizer.FormatTime(val, humanize.TimeFormat)
}

func (p *Presenter) naturalTime(val time.Time) string {
	if val.IsZero() {
		return vartype.NotAvailable
	}
	return p.humanizer.NaturalTime(val)
}

func (p *Presenter) timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}

func floatFormat(val float64, precision int) string {
	return fmt.Sprintf("%.*f", precision, val)
}
