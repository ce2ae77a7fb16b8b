// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNoPanic(t *testing.T) {
	tests := []struct {
		name    string
		fn      func() error
		wantErr bool
	}{
		{
			name: "no panic",
			fn: func() error {
				return nil
			},
			wantErr: false,
		},
		{
			name: "panic occurs",
			fn: func() error {
				panic("something went wrong")
			},
			wantErr: true,
		},
		{
			name: "function returns error",
			fn: func() error {
				return errors.ErrUnsupported
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NoPanic(tt.fn)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPtr(t *testing.T) {
	intValue := 42
	require.NotNil(t, Ptr(intValue))
	assert.Equal(t, intValue, *Ptr(intValue))

	stringValue := "hello"
	require.NotNil(t, Ptr(stringValue))
	assert.Equal(t, stringValue, *Ptr(stringValue))
}

func TestJSONFromMarkdown(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "valid JSON block",
			content: "Here is some JSON: ```json {\"key\": \"value\"} ```",
			want:    "{\"key\": \"value\"}",
		},
		{
			name:    "no JSON block",
			content: "Here is some text without JSON.",
			want:    "Here is some text without JSON.",
		},
		{
			name:    "malformed JSON block",
			content: "Here is some malformed JSON: ```json {key: value} ```",
			want:    "{key: value}",
		},
		{
			name:    "multiple JSON blocks",
			content: "First block: ```json {\"key1\": \"value1\"} ``` Second block: ```json {\"key2\": \"value2\"} ```",
			want:    "{\"key1\": \"value1\"}",
		},
		{
			name:    "JSON block with newlines",
			content: "Here is some JSON: ```json\n{\n \"key\": \"value\"\n}\n```",
			want:    "{\n \"key\": \"value\"\n}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JSONFromMarkdown(tt.content))
		})
	}
}

func TestRepairTextJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "simple valid JSON",
			content: `{"key": "value"}`,
			want:    `{"key": "value"}`,
			wantErr: false,
		},
		{
			name:    "unclosed object",
			content: `{"key": "value"`,
			want:    `{"key": "value"}`,
			wantErr: false,
		},
		{
			name:    "empty content",
			content: ``,
			wantErr: true,
		},
		{
			name:    "whitespace only",
			content: "  \n\t",
			wantErr: true,
		},
		{
			name:    "markdown wrapped",
			content: "```json\n{\"hours\": 7.5}\n```",
			want:    `{"hours": 7.5}`,
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RepairTextJSON(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "empty string",
			input: "",
			want:  []string{},
		},
		{
			name:  "single line",
			input: "single line",
			want:  []string{"single line"},
		},
		{
			name:  "multiple lines",
			input: "first line\r\nsecond line\nthird line",
			want:  []string{"first line", "second line", "third line"},
		},
		{
			name:  "double newlines",
			input: "first line\n\nsecond line\r\n\r\nthird line",
			want:  []string{"first line", "", "second line", "", "third line"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitLines(tt.input))
		})
	}
}

func TestValidateAgainstSchema(t *testing.T) {
	tests := []struct {
		name    string
		schema  map[string]interface{}
		values  []interface{}
		wantErr bool
		errType error
	}{
		{
			name: "valid schema with valid value",
			schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{
						"type": "string",
					},
					"age": map[string]interface{}{
						"type": "number",
					},
				},
				"required": []interface{}{"name"},
			},
			values: []interface{}{
				map[string]interface{}{
					"name": "John",
					"age":  30,
				},
			},
			wantErr: false,
		},
		{
			name: "valid schema with no values",
			schema: map[string]interface{}{
				"type": "string",
			},
			values:  []interface{}{},
			wantErr: false,
		},
		{
			name: "invalid schema",
			schema: map[string]interface{}{
				"type": "invalid_type",
			},
			values: []interface{}{
				"test",
			},
			wantErr: true,
			errType: ErrInvalidJSONSchema,
		},
		{
			name: "valid schema with invalid value",
			schema: map[string]interface{}{
				"type": "string",
			},
			values: []interface{}{
				123,
			},
			wantErr: true,
			errType: ErrJSONSchemaValidation,
		},
		{
			name: "object schema with missing required field",
			schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{
						"type": "string",
					},
				},
				"required": []interface{}{"name"},
			},
			values: []interface{}{
				map[string]interface{}{
					"age": 30,
				},
			},
			wantErr: true,
			errType: ErrJSONSchemaValidation,
		},
		{
			name: "array schema validation",
			schema: map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "number",
				},
			},
			values: []interface{}{
				[]interface{}{1, 2, 3},
				[]interface{}{4.5, 6.7},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAgainstSchema(tt.schema, tt.values...)

			if tt.wantErr {
				require.Error(t, err)
				if tt.errType != nil {
					require.ErrorIs(t, err, tt.errType)
				}
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSortedKeys(t *testing.T) {
	tests := []struct {
		name string
		maps []map[string]interface{}
		want []string
	}{
		{
			name: "empty map",
			maps: []map[string]interface{}{{}},
			want: []string{},
		},
		{
			name: "nil map",
			maps: []map[string]interface{}{nil},
			want: []string{},
		},
		{
			name: "multiple elements",
			maps: []map[string]interface{}{{"c": nil, "a": nil, "b": nil}},
			want: []string{"a", "b", "c"},
		},
		{
			name: "varargs with duplicate keys",
			maps: []map[string]interface{}{
				{"b": nil, "d": nil},
				{"a": nil, "c": nil},
				{"e": nil, "b": nil},
			},
			want: []string{"a", "b", "c", "d", "e"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SortedKeys(tt.maps...))
		})
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 24.0, Clamp(30.0, 0.0, 24.0))
	assert.Equal(t, 0.0, Clamp(-3.0, 0.0, 24.0))
	assert.Equal(t, 7.5, Clamp(7.5, 0.0, 24.0))
	assert.Equal(t, 5, Clamp(5, 1, 10))
}

func TestStringSet_NewStringSet(t *testing.T) {
	s := NewStringSet("a", "b", "a", "c")
	assert.ElementsMatch(t, []string{"a", "b", "c"}, s.Values())
}

func TestStringSet_Any(t *testing.T) {
	s := NewStringSet("a", "b", "c")
	assert.True(t, s.Any(func(v string) bool { return v == "b" }))
	assert.False(t, s.Any(func(v string) bool { return v == "z" }))
}

func TestStringSet_YAMLUnmarshal(t *testing.T) {
	var unmarshaled StringSet
	err := yaml.Unmarshal([]byte("- a\n- b\n- a\n- c\n"), &unmarshaled)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, unmarshaled.Values())

	err = yaml.Unmarshal([]byte("foo"), &unmarshaled)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, unmarshaled.Values())
}
