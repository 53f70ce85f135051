// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package vartype

import (
	"encoding/json"
	"testing"
)

func TestVariable(t *testing.T) {
	t.Run("a new variable is set", func(t *testing.T) {
		v := NewVariable(12.5)
		if !v.IsSet() {
			t.Fatal("expected variable to be set")
		}
		if v.Value() != 12.5 {
			t.Errorf("expected value to be 12.5, got %f", v.Value())
		}
		if v.String() != "12.5" {
			t.Errorf("expected string to be 12.5, got %s", v.String())
		}
	})
	t.Run("an unset variable renders as not available", func(t *testing.T) {
		var v VarFloat64
		if v.IsSet() {
			t.Fatal("expected variable to be unset")
		}
		if v.String() != NotAvailable {
			t.Errorf("expected string to be %s, got %s", NotAvailable, v.String())
		}
	})
	t.Run("reset clears the variable", func(t *testing.T) {
		v := NewVariable("Berlin")
		v.Reset()
		if v.IsSet() {
			t.Error("expected variable to be unset after reset")
		}
		if v.Value() != "" {
			t.Errorf("expected value to be empty, got %s", v.Value())
		}
	})
	t.Run("from nil pointer is unset", func(t *testing.T) {
		v := FromPtr[float64](nil)
		if v.IsSet() {
			t.Error("expected variable to be unset")
		}
		alt := 42.0
		v = FromPtr(&alt)
		if !v.IsSet() || v.Value() != 42 {
			t.Errorf("expected variable to be set to 42, got %s", v)
		}
	})
}

func TestVariable_JSON(t *testing.T) {
	type sample struct {
		Altitude VarFloat64 `json:"altitude"`
		Heading  VarFloat64 `json:"heading"`
	}
	t.Run("unset variables are encoded as null", func(t *testing.T) {
		s := sample{Altitude: NewVariable(12.0)}
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("failed to marshal sample: %s", err)
		}
		want := `{"altitude":12,"heading":null}`
		if string(data) != want {
			t.Errorf("expected %s, got %s", want, data)
		}
	})
	t.Run("null is decoded as unset", func(t *testing.T) {
		var s sample
		if err := json.Unmarshal([]byte(`{"altitude":null,"heading":90.5}`), &s); err != nil {
			t.Fatalf("failed to unmarshal sample: %s", err)
		}
		if s.Altitude.IsSet() {
			t.Error("expected altitude to be unset")
		}
		if !s.Heading.IsSet() || s.Heading.Value() != 90.5 {
			t.Errorf("expected heading to be 90.5, got %s", s.Heading)
		}
	})
}
