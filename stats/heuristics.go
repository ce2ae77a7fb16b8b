// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package stats

import (
	"fmt"
	"math"
	"strings"

	"github.com/verityhq/truthgate/pkg/utils"
	"github.com/verityhq/truthgate/rules"
)

// Heuristics holds the suspicious-value sets used for pattern detection
// without any historical baseline. The defaults encode common model
// hallucination artifacts; callers may override them from configuration.
type Heuristics struct {
	// RoundNumbers flag exact matches as suspiciously round.
	RoundNumbers []float64 `yaml:"round-numbers"`
	// PlaceholderValues flag common filler constants.
	PlaceholderValues []float64 `yaml:"placeholder-values"`
	// PercentKeywords mark field names holding percentages or rates.
	// Accepts a single keyword or a list in YAML.
	PercentKeywords utils.StringSet `yaml:"percent-keywords"`
	// PercentMin and PercentMax bound a valid percentage value.
	PercentMin float64 `yaml:"percent-min"`
	PercentMax float64 `yaml:"percent-max"`
}

// DefaultHeuristics returns the built-in suspicious-value sets.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		RoundNumbers:      []float64{100, 1000, 10000, 100000},
		PlaceholderValues: []float64{0, 1, -1, 999, 9999},
		PercentKeywords:   utils.NewStringSet("percent", "rate"),
		PercentMin:        0,
		PercentMax:        100,
	}
}

// PatternFinding is one heuristic hit on a numeric field.
type PatternFinding struct {
	RuleName   string
	Field      string
	Value      float64
	Message    string
	Severity   rules.Severity
	Hint       rules.CorrectionHint
	Suggestion string
}

// DetectPatterns scans the numeric fields of a document for suspicious values.
// Each heuristic fires independently, so one field can produce several findings.
func (h Heuristics) DetectPatterns(numericFields map[string]float64, fieldOrder []string) []PatternFinding {
	findings := make([]PatternFinding, 0)

	for _, field := range fieldOrder {
		value, ok := numericFields[field]
		if !ok {
			continue
		}

		if h.isSuspiciousRoundNumber(value) {
			findings = append(findings, PatternFinding{
				RuleName:   "auto_pattern_round_number",
				Field:      field,
				Value:      value,
				Message:    fmt.Sprintf("%s has a suspiciously round value (%v) - possible AI hallucination", field, value),
				Severity:   rules.SeverityWarning,
				Suggestion: "Verify this value is accurate and not a placeholder",
			})
		}

		if containsValue(h.PlaceholderValues, value) {
			findings = append(findings, PatternFinding{
				RuleName:   "auto_pattern_placeholder",
				Field:      field,
				Value:      value,
				Message:    fmt.Sprintf("%s contains a common placeholder value (%v)", field, value),
				Severity:   rules.SeverityWarning,
				Suggestion: "Verify this is a real value and not a placeholder",
			})
		}

		if h.isPercentField(field) && (value < h.PercentMin || value > h.PercentMax) {
			findings = append(findings, PatternFinding{
				RuleName: "auto_pattern_invalid_percentage",
				Field:    field,
				Value:    value,
				Message:  fmt.Sprintf("%s has an invalid percentage value (%v%%)", field, value),
				Severity: rules.SeverityError,
				Hint: rules.RangeHint{
					Min: &h.PercentMin,
					Max: &h.PercentMax,
				},
				Suggestion: "Percentages should be between 0 and 100",
			})
		}
	}

	return findings
}

func (h Heuristics) isSuspiciousRoundNumber(value float64) bool {
	if containsValue(h.RoundNumbers, value) {
		return true
	}
	// Exact powers of ten read as rounded-off estimates.
	return value > 0 && value == math.Pow(10, math.Trunc(math.Log10(value)))
}

func (h Heuristics) isPercentField(field string) bool {
	lowered := strings.ToLower(field)
	return h.PercentKeywords.Any(func(keyword string) bool {
		return strings.Contains(lowered, keyword)
	})
}

func containsValue(values []float64, value float64) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
