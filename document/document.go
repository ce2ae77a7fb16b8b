// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package document represents the structured output under validation as a
// JSON value tree addressable by dot-separated field paths (e.g. "user.hours").
// Model output is often almost-JSON; Parse repairs common defects before failing.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/verityhq/truthgate/pkg/utils"
)

var (
	// ErrMalformedDocument indicates that the content could not be parsed into a JSON document.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrInvalidFieldPath indicates that a field path could not be written to.
	ErrInvalidFieldPath = errors.New("invalid field path")
)

// Kind identifies the JSON type of a document value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Document is a JSON object tree with dot-path access to nested fields.
// The zero value is not usable; create instances with Parse, FromValue, or New.
type Document struct {
	raw []byte
}

// New creates an empty document.
func New() Document {
	return Document{raw: []byte("{}")}
}

// Parse creates a document from the given content. If the content is not
// valid JSON it is first repaired, so model output wrapped in markdown or
// missing closing braces still parses. Returns ErrMalformedDocument if no
// JSON object can be recovered.
func Parse(content string) (Document, error) {
	if json.Valid([]byte(content)) && gjson.Parse(content).IsObject() {
		return Document{raw: []byte(content)}, nil
	}
	repaired, err := utils.RepairTextJSON(content)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if !gjson.Parse(repaired).IsObject() {
		return Document{}, fmt.Errorf("%w: content is not a JSON object", ErrMalformedDocument)
	}
	return Document{raw: []byte(repaired)}, nil
}

// FromValue creates a document from a Go value tree, typically a
// map[string]interface{} decoded from a request body.
func FromValue(value interface{}) (Document, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if !gjson.ParseBytes(encoded).IsObject() {
		return Document{}, fmt.Errorf("%w: value is not an object", ErrMalformedDocument)
	}
	return Document{raw: encoded}, nil
}

// Get returns the value at the given dot-separated path.
// The returned Value reports Exists() == false when the path is absent;
// an explicit JSON null exists with kind KindNull.
func (d Document) Get(path string) Value {
	return Value{result: gjson.GetBytes(d.raw, path)}
}

// Set writes the given value at the dot-separated path, creating intermediate
// objects as needed, and mutates the document in place.
func (d *Document) Set(path string, value interface{}) error {
	updated, err := sjson.SetBytes(d.raw, path, value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFieldPath, err)
	}
	d.raw = updated
	return nil
}

// Clone returns an independent copy of the document.
func (d Document) Clone() Document {
	raw := make([]byte, len(d.raw))
	copy(raw, d.raw)
	return Document{raw: raw}
}

// JSON returns the document serialized as JSON.
func (d Document) JSON() string {
	return string(d.raw)
}

// Value returns the document decoded into a generic Go value tree.
func (d Document) Value() map[string]interface{} {
	decoded := make(map[string]interface{})
	_ = json.Unmarshal(d.raw, &decoded)
	return decoded
}

// NumericFields extracts all numeric leaf fields from the document, keyed by
// dot-separated path. Booleans are not numeric. Arrays are not descended into;
// only nested objects contribute paths.
func (d Document) NumericFields() map[string]float64 {
	fields := make(map[string]float64)
	collectNumericFields("", d.Value(), fields)
	return fields
}

func collectNumericFields(prefix string, value map[string]interface{}, into map[string]float64) {
	for key, item := range value {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch typed := item.(type) {
		case float64:
			into[path] = typed
		case json.Number:
			if number, err := typed.Float64(); err == nil {
				into[path] = number
			}
		case map[string]interface{}:
			collectNumericFields(path, typed, into)
		}
	}
}

// Value is a single tagged JSON value read from a document.
type Value struct {
	result gjson.Result
}

// Exists reports whether the value is present in the document.
// An explicit JSON null is present.
func (v Value) Exists() bool {
	return v.result.Exists()
}

// Kind returns the JSON type of the value.
func (v Value) Kind() Kind {
	switch v.result.Type {
	case gjson.False, gjson.True:
		return KindBool
	case gjson.Number:
		return KindNumber
	case gjson.String:
		return KindString
	case gjson.JSON:
		if v.result.IsArray() {
			return KindArray
		}
		return KindObject
	default:
		return KindNull
	}
}

// IsNull reports whether the value is an explicit JSON null.
func (v Value) IsNull() bool {
	return v.result.Exists() && v.result.Type == gjson.Null
}

// Float returns the value as a float64. Numeric strings are coerced.
// Returns false if the value is absent, boolean, or not numeric.
func (v Value) Float() (float64, bool) {
	switch v.Kind() {
	case KindNumber:
		return v.result.Num, true
	case KindString:
		trimmed := strings.TrimSpace(v.result.Str)
		if trimmed == "" {
			return 0, false
		}
		var number float64
		if err := json.Unmarshal([]byte(trimmed), &number); err != nil {
			return 0, false
		}
		return number, true
	default:
		return 0, false
	}
}

// String returns the value as a string and reports whether it is a JSON string.
func (v Value) String() (string, bool) {
	if v.Kind() == KindString {
		return v.result.Str, true
	}
	return "", false
}

// Text renders any value kind as display text for messages and prompts.
func (v Value) Text() string {
	if !v.result.Exists() {
		return ""
	}
	if v.result.Type == gjson.String {
		return v.result.Str
	}
	return v.result.Raw
}

// Interface returns the value decoded into a generic Go value.
func (v Value) Interface() interface{} {
	return v.result.Value()
}
