// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrNotAnObject is returned when a JSON document to flatten is not an object.
var ErrNotAnObject = errors.New("JSON document is not an object")

// FlattenJSON decodes a JSON object into an Address, keeping the order of the keys as they appear in
// the document. Nested objects and arrays are flattened into dotted keys ("address.road", "bbox.0").
// Empty objects and arrays are dropped.
func FlattenJSON(data []byte) (Address, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	addr := Address{}
	token, err := decoder.Token()
	if err != nil {
		return addr, fmt.Errorf("failed to read JSON document: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return addr, ErrNotAnObject
	}
	if err = flattenObject(decoder, "", &addr); err != nil {
		return addr, err
	}
	if _, err = decoder.Token(); !errors.Is(err, io.EOF) {
		return addr, errors.New("unexpected data after JSON object")
	}
	return addr, nil
}

// flattenObject reads key/value pairs up to and including the closing brace.
func flattenObject(decoder *json.Decoder, prefix string, addr *Address) error {
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("failed to read JSON object key: %w", err)
		}
		key, ok := token.(string)
		if !ok {
			return fmt.Errorf("unexpected JSON object key: %v", token)
		}
		if err = flattenValue(decoder, joinKey(prefix, key), addr); err != nil {
			return err
		}
	}
	if _, err := decoder.Token(); err != nil {
		return fmt.Errorf("failed to read end of JSON object: %w", err)
	}
	return nil
}

func flattenValue(decoder *json.Decoder, key string, addr *Address) error {
	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("failed to read JSON value for %q: %w", key, err)
	}

	switch value := token.(type) {
	case json.Delim:
		switch value {
		case '{':
			return flattenObject(decoder, key, addr)
		case '[':
			for i := 0; decoder.More(); i++ {
				if err = flattenValue(decoder, joinKey(key, strconv.Itoa(i)), addr); err != nil {
					return err
				}
			}
			if _, err = decoder.Token(); err != nil {
				return fmt.Errorf("failed to read end of JSON array: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("unexpected JSON delimiter %q", value)
		}
	default:
		addr.Set(key, value)
	}
	return nil
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
