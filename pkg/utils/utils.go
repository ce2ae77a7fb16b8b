// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package utils provides shared helpers for JSON handling, schema validation,
// and generic value manipulation used across the TruthGate packages.
package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/exp/constraints"
)

var (
	// ErrEmptyContent indicates that the given content is empty.
	ErrEmptyContent = errors.New("content is empty")
	// ErrRepairJSON indicates that the given content could not be repaired into valid JSON.
	ErrRepairJSON = errors.New("failed to repair malformed JSON content")
	// ErrInvalidJSONSchema indicates that the given value is not a valid JSON schema.
	ErrInvalidJSONSchema = errors.New("invalid JSON schema")
	// ErrJSONSchemaValidation indicates that a value does not conform to its JSON schema.
	ErrJSONSchemaValidation = errors.New("value does not conform to JSON schema")
)

var markdownJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// NoPanic executes the given function and converts any panic into an error.
// The function's own error is returned unchanged.
func NoPanic(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()
	return fn()
}

// Ptr returns a pointer to the given value.
func Ptr[T any](value T) *T {
	return &value
}

// JSONFromMarkdown extracts the first JSON object from a markdown code block
// in the given content. If no JSON block is found, the content is returned unchanged.
func JSONFromMarkdown(content string) string {
	if match := markdownJSONPattern.FindStringSubmatch(content); len(match) > 1 {
		return strings.TrimSpace(match[1])
	}
	return content
}

// RepairTextJSON attempts to turn the given content into valid JSON.
// It extracts JSON from markdown code blocks first and then repairs common
// defects produced by language models, such as unclosed braces, trailing
// commas, and raw newlines inside string values.
// Returns error if the content is empty or cannot be repaired.
func RepairTextJSON(content string) (string, error) {
	if len(strings.TrimSpace(content)) == 0 {
		return "", ErrEmptyContent
	}
	repaired, err := jsonrepair.JSONRepair(JSONFromMarkdown(content))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRepairJSON, err)
	}
	return repaired, nil
}

// SplitLines splits the given content into lines, handling both LF and CRLF endings.
func SplitLines(content string) []string {
	if content == "" {
		return []string{}
	}
	return strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
}

// ValidateAgainstSchema compiles the given map as a JSON schema and validates
// all given values against it. Returns ErrInvalidJSONSchema if the schema itself
// does not compile and ErrJSONSchemaValidation if any value fails validation.
func ValidateAgainstSchema(schema map[string]interface{}, values ...interface{}) error {
	validator, err := CompileSchema(schema)
	if err != nil {
		return err
	}
	for _, value := range values {
		instance, err := NormalizeJSONValue(value)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrJSONSchemaValidation, err)
		}
		if err := validator.Validate(instance); err != nil {
			return fmt.Errorf("%w: %v", ErrJSONSchemaValidation, err)
		}
	}
	return nil
}

// NormalizeJSONValue round-trips the given value through JSON so it takes
// the generic shape expected by the schema validator.
func NormalizeJSONValue(value interface{}) (interface{}, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
}

// CompileSchema compiles the given map into a reusable JSON schema validator.
func CompileSchema(schema map[string]interface{}) (*jsonschema.Schema, error) {
	normalized, err := NormalizeJSONValue(schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSONSchema, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", normalized); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSONSchema, err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSONSchema, err)
	}
	return compiled, nil
}

// SortedKeys returns all unique keys from the given maps in ascending order.
func SortedKeys[K constraints.Ordered, V any](maps ...map[K]V) []K {
	seen := make(map[K]struct{})
	keys := make([]K, 0)
	for _, m := range maps {
		for k := range m {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Clamp restricts the given value to the inclusive interval [lower, upper].
func Clamp[T constraints.Ordered](value T, lower T, upper T) T {
	if value < lower {
		return lower
	}
	if value > upper {
		return upper
	}
	return value
}
