// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package correction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/verityhq/truthgate/document"
	"github.com/verityhq/truthgate/rules"
	"github.com/verityhq/truthgate/validation"
)

// DefaultMinSimilarity is the fuzzy-match acceptance threshold.
const DefaultMinSimilarity = 0.6

// RangeClamp moves an out-of-range numeric value to the nearest bound.
type RangeClamp struct{}

func (RangeClamp) Name() string { return "range_clamp" }

func (RangeClamp) CanFix(violation validation.Violation) bool {
	_, ok := violation.Hint.(rules.RangeHint)
	return ok
}

func (RangeClamp) Apply(doc *document.Document, violation validation.Violation) (string, error) {
	hint := violation.Hint.(rules.RangeHint)
	current, ok := doc.Get(violation.Field).Float()
	if !ok {
		return "", fmt.Errorf("%w: %s is not numeric", ErrNotApplicable, violation.Field)
	}

	clamped := current
	if hint.Min != nil && clamped < *hint.Min {
		clamped = *hint.Min
	}
	if hint.Max != nil && clamped > *hint.Max {
		clamped = *hint.Max
	}
	if clamped == current {
		return "", fmt.Errorf("%w: %s is already within range", ErrNotApplicable, violation.Field)
	}

	if err := doc.Set(violation.Field, clamped); err != nil {
		return "", err
	}
	return fmt.Sprintf("Clamped %s from %s to %s (range: %s-%s)",
		violation.Field, formatNumber(current), formatNumber(clamped),
		formatBound(hint.Min, "-inf"), formatBound(hint.Max, "+inf")), nil
}

// TypeCoerce converts a schema type mismatch into the expected JSON type.
type TypeCoerce struct{}

var wantTypePattern = regexp.MustCompile(`want ([a-z]+)`)

func (TypeCoerce) Name() string { return "type_coerce" }

func (TypeCoerce) CanFix(violation validation.Violation) bool {
	return violation.Type == validation.TypeSchema && targetType(violation.Message) != ""
}

func (TypeCoerce) Apply(doc *document.Document, violation validation.Violation) (string, error) {
	target := targetType(violation.Message)
	value := doc.Get(violation.Field)
	if !value.Exists() {
		return "", fmt.Errorf("%w: %s is absent", ErrNotApplicable, violation.Field)
	}

	coerced, err := coerce(value.Interface(), target)
	if err != nil {
		return "", err
	}
	if err := doc.Set(violation.Field, coerced); err != nil {
		return "", err
	}
	return fmt.Sprintf("Coerced %s from %s to %s", violation.Field, jsonTypeName(value.Interface()), target), nil
}

// targetType extracts the expected JSON type from a schema violation message
// such as "got string, want integer".
func targetType(message string) string {
	if match := wantTypePattern.FindStringSubmatch(message); match != nil {
		switch match[1] {
		case "integer", "number", "string", "boolean", "array", "object":
			return match[1]
		}
	}
	for _, candidate := range []string{"integer", "number", "string", "boolean", "array", "object"} {
		if strings.Contains(message, candidate) {
			return candidate
		}
	}
	return ""
}

func coerce(value interface{}, target string) (interface{}, error) {
	switch target {
	case "integer":
		switch typed := value.(type) {
		case float64:
			return int64(typed), nil
		case string:
			number, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not numeric", ErrNotApplicable, typed)
			}
			return int64(number), nil
		}
	case "number":
		switch typed := value.(type) {
		case float64:
			return typed, nil
		case string:
			number, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not numeric", ErrNotApplicable, typed)
			}
			return number, nil
		}
	case "string":
		return fmt.Sprintf("%v", value), nil
	case "boolean":
		switch typed := value.(type) {
		case bool:
			return typed, nil
		case string:
			normalized := strings.ToLower(strings.TrimSpace(typed))
			return normalized == "true" || normalized == "yes" || normalized == "1", nil
		case float64:
			return typed != 0, nil
		}
	case "array":
		return []interface{}{value}, nil
	case "object":
		return map[string]interface{}{"value": value}, nil
	}
	return nil, fmt.Errorf("%w: cannot coerce %s to %s", ErrNotApplicable, jsonTypeName(value), target)
}

func jsonTypeName(value interface{}) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}

// StringTrim removes the surrounding whitespace a pattern or constraint
// violation complained about.
type StringTrim struct{}

func (StringTrim) Name() string { return "string_trim" }

func (StringTrim) CanFix(violation validation.Violation) bool {
	message := strings.ToLower(violation.Message)
	return strings.Contains(message, "whitespace") || strings.Contains(message, "trim")
}

func (StringTrim) Apply(doc *document.Document, violation validation.Violation) (string, error) {
	text, ok := doc.Get(violation.Field).String()
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", ErrNotApplicable, violation.Field)
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == text {
		return "", fmt.Errorf("%w: %s has no surrounding whitespace", ErrNotApplicable, violation.Field)
	}
	if err := doc.Set(violation.Field, trimmed); err != nil {
		return "", err
	}
	return fmt.Sprintf("Trimmed whitespace from %s", violation.Field), nil
}

// FuzzyMatch replaces a near-miss enum value with its closest valid option.
type FuzzyMatch struct {
	// MinSimilarity is the minimum normalized similarity for a replacement.
	MinSimilarity float64
}

func (FuzzyMatch) Name() string { return "fuzzy_match" }

func (FuzzyMatch) CanFix(violation validation.Violation) bool {
	_, ok := violation.Hint.(rules.OptionsHint)
	return ok
}

func (f FuzzyMatch) Apply(doc *document.Document, violation validation.Violation) (string, error) {
	hint := violation.Hint.(rules.OptionsHint)
	text, ok := doc.Get(violation.Field).String()
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", ErrNotApplicable, violation.Field)
	}

	threshold := f.MinSimilarity
	if threshold <= 0 {
		threshold = DefaultMinSimilarity
	}

	best := ""
	bestSimilarity := 0.0
	for _, option := range hint.Valid {
		similarity := Similarity(text, option)
		if similarity > bestSimilarity {
			best = option
			bestSimilarity = similarity
		}
	}
	if best == "" || bestSimilarity < threshold {
		return "", fmt.Errorf("%w: no option close enough to %q", ErrNotApplicable, text)
	}

	if err := doc.Set(violation.Field, best); err != nil {
		return "", err
	}
	return fmt.Sprintf("Fuzzy-matched %s from '%s' to '%s' (similarity: %.2f)",
		violation.Field, text, best, bestSimilarity), nil
}

// Similarity is the normalized Levenshtein similarity of two strings:
// 1 minus the edit distance over the longer length, in [0, 1].
func Similarity(a string, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := utf8.RuneCountInString(a)
	if other := utf8.RuneCountInString(b); other > longest {
		longest = other
	}
	if longest == 0 {
		return 1.0
	}
	dmp := diffmatchpatch.New()
	distance := dmp.DiffLevenshtein(dmp.DiffMain(a, b, false))
	return 1.0 - float64(distance)/float64(longest)
}

// DefaultValue fills a missing or null required field with its declared default.
type DefaultValue struct{}

func (DefaultValue) Name() string { return "default_value" }

func (DefaultValue) CanFix(violation validation.Violation) bool {
	hint, ok := violation.Hint.(rules.DefaultHint)
	return ok && hint.Value != nil
}

func (DefaultValue) Apply(doc *document.Document, violation validation.Violation) (string, error) {
	hint := violation.Hint.(rules.DefaultHint)
	value := doc.Get(violation.Field)
	if value.Exists() && !value.IsNull() {
		return "", fmt.Errorf("%w: %s is already set", ErrNotApplicable, violation.Field)
	}
	if err := doc.Set(violation.Field, hint.Value); err != nil {
		return "", err
	}
	return fmt.Sprintf("Filled %s with default value '%v'", violation.Field, hint.Value), nil
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func formatBound(bound *float64, fallback string) string {
	if bound == nil {
		return fallback
	}
	return formatNumber(*bound)
}
