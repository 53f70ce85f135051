// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package i18n

import (
	"strings"
	"testing"
	"time"

	"golang.org/x/text/language"
)

func TestNew(t *testing.T) {
	t.Run("new i18n provider with empty locale string succeeds", func(t *testing.T) {
		provider, err := New("")
		if err != nil {
			t.Fatalf("failed to create i18n provider: %s", err)
		}
		if provider == nil {
			t.Fatal("expected i18n provider to be non-nil")
		}
	})
	t.Run("english locale returns the source text", func(t *testing.T) {
		provider, err := New("en")
		if err != nil {
			t.Fatalf("failed to create i18n provider: %s", err)
		}
		if got := provider.Get("No address information found"); got != "No address information found" {
			t.Errorf("expected source text, got %q", got)
		}
	})
	t.Run("german locale translates console texts", func(t *testing.T) {
		provider, err := New("de")
		if err != nil {
			t.Fatalf("failed to create i18n provider: %s", err)
		}
		if got := provider.Get("No address information found"); got != "Keine Adressinformationen gefunden" {
			t.Errorf("expected german translation, got %q", got)
		}
	})
	t.Run("unknown locale falls back to english", func(t *testing.T) {
		provider, err := New("xx")
		if err != nil {
			t.Fatalf("failed to create i18n provider: %s", err)
		}
		if got := provider.Get("Latitude"); got != "Latitude" {
			t.Errorf("expected source text, got %q", got)
		}
	})
}

func TestNewHumanizer(t *testing.T) {
	t.Run("humanizer renders natural time", func(t *testing.T) {
		humanizer, err := NewHumanizer(language.English)
		if err != nil {
			t.Fatalf("failed to create humanizer: %s", err)
		}
		got := humanizer.NaturalTime(time.Now().Add(-time.Hour * 2))
		if !strings.Contains(got, "ago") {
			t.Errorf("expected natural time to contain 'ago', got %q", got)
		}
	})
	t.Run("german humanizer renders natural time", func(t *testing.T) {
		humanizer, err := NewHumanizer(language.German)
		if err != nil {
			t.Fatalf("failed to create humanizer: %s", err)
		}
		got := humanizer.NaturalTime(time.Now().Add(-time.Hour * 2))
		if !strings.Contains(got, "vor") {
			t.Errorf("expected natural time to contain 'vor', got %q", got)
		}
	})
}
