// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/wneessen/revgeo/internal/vartype"
)

// Canonical address keys. Every provider maps its answer onto these keys first, in this order.
const (
	KeyName             = "name"
	KeyStreetNumber     = "streetNumber"
	KeyStreet           = "street"
	KeyDistrict         = "district"
	KeyCity             = "city"
	KeySubregion        = "subregion"
	KeyRegion           = "region"
	KeyPostalCode       = "postalCode"
	KeyCountry          = "country"
	KeyISOCountryCode   = "isoCountryCode"
	KeyTimezone         = "timezone"
	KeyFormattedAddress = "formattedAddress"
)

// CanonicalKeys lists the canonical address keys in display order.
var CanonicalKeys = []string{
	KeyName, KeyStreetNumber, KeyStreet, KeyDistrict, KeyCity, KeySubregion, KeyRegion,
	KeyPostalCode, KeyCountry, KeyISOCountryCode, KeyTimezone, KeyFormattedAddress,
}

// Field is a single key/value pair of an Address. A nil Value means the provider did not supply it.
type Field struct {
	Key   string
	Value any
}

// Address is an ordered open mapping from string keys to optional primitive values (string, number,
// bool or nil). The schema belongs to the provider, the order of insertion is kept.
type Address struct {
	keys   []string
	values map[string]any
}

// NewAddress returns an Address holding the given fields in order.
func NewAddress(fields ...Field) Address {
	addr := Address{}
	for _, field := range fields {
		addr.Set(field.Key, field.Value)
	}
	return addr
}

// NewCanonicalAddress returns an Address with all canonical keys present and unset.
func NewCanonicalAddress() Address {
	addr := Address{}
	for _, key := range CanonicalKeys {
		addr.Set(key, nil)
	}
	return addr
}

// Set stores value for key. A new key is appended, an existing key keeps its position.
func (a *Address) Set(key string, value any) {
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = normalize(value)
}

// SetString stores val for key, or nil if val is empty.
func (a *Address) SetString(key, val string) {
	if val == "" {
		a.Set(key, nil)
		return
	}
	a.Set(key, val)
}

// Get returns the value for key and whether the key is present.
func (a Address) Get(key string) (any, bool) {
	val, ok := a.values[key]
	return val, ok
}

// Keys returns the keys in order.
func (a Address) Keys() []string {
	keys := make([]string, len(a.keys))
	copy(keys, a.keys)
	return keys
}

// Len returns the number of fields.
func (a Address) Len() int {
	return len(a.keys)
}

// Fields returns all fields in order.
func (a Address) Fields() []Field {
	fields := make([]Field, 0, len(a.keys))
	for _, key := range a.keys {
		fields = append(fields, Field{Key: key, Value: a.values[key]})
	}
	return fields
}

// Append adds all fields of other whose keys are not present yet, keeping other's order.
func (a *Address) Append(other Address) {
	for _, field := range other.Fields() {
		if _, ok := a.values[field.Key]; ok {
			continue
		}
		a.Set(field.Key, field.Value)
	}
}

// Display returns the value for key formatted for display. Missing and nil values are rendered as
// vartype.NotAvailable.
func (a Address) Display(key string) string {
	val, ok := a.values[key]
	if !ok || val == nil {
		return vartype.NotAvailable
	}
	return FormatValue(val)
}

// FormatValue formats a field value for display.
func FormatValue(val any) string {
	switch v := val.(type) {
	case nil:
		return vartype.NotAvailable
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// MarshalJSON encodes the Address as a JSON object in field order.
func (a Address) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBufferString("{")
	for i, key := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyData, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		valData, err := json.Marshal(a.values[key])
		if err != nil {
			return nil, fmt.Errorf("failed to encode address field %q: %w", key, err)
		}
		buf.Write(keyData)
		buf.WriteByte(':')
		buf.Write(valData)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object, keeping the order of its keys. Nested values are
// flattened into dotted keys.
func (a *Address) UnmarshalJSON(data []byte) error {
	addr, err := FlattenJSON(data)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// MarshalYAML encodes the Address as a YAML mapping in field order.
func (a Address) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range a.keys {
		valNode := new(yaml.Node)
		if err := valNode.Encode(a.values[key]); err != nil {
			return nil, fmt.Errorf("failed to encode address field %q: %w", key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			valNode,
		)
	}
	return node, nil
}

// normalize maps numeric values onto float64 or int64 so addresses compare and encode the same
// regardless of where the value came from.
func normalize(value any) any {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float32:
		return float64(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		return v
	}
}
