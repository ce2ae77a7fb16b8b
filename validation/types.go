// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package validation is the core pipeline: it dispatches rules to their
// evaluators, collects violations, optionally repairs the document and
// scores how trustworthy the validated output is.
package validation

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/verityhq/truthgate/providers"
	"github.com/verityhq/truthgate/rules"
)

// Status is the overall verdict of one validation run.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
)

// ViolationType groups rule kinds into violation families.
type ViolationType string

const (
	TypeSchema      ViolationType = "schema"
	TypeConstraint  ViolationType = "constraint"
	TypeReference   ViolationType = "reference"
	TypeStatistical ViolationType = "statistical"
	TypeSemantic    ViolationType = "semantic"
)

// Violation is one reported rule failure. Instances are created by the
// evaluators and never mutated afterward.
type Violation struct {
	RuleName string
	Type     ViolationType
	Field    string
	Message  string
	Severity rules.Severity
	// FoundValue is the offending value as read from the document.
	FoundValue interface{}
	// Hint is the typed channel from the evaluator to the auto-corrector.
	Hint rules.CorrectionHint
	// Expected carries free-text expectation when no typed hint applies.
	Expected   string
	Suggestion string
	// Sources carries the supporting evidence of a web-verified violation.
	Sources []providers.WebSource
}

// violationJSON is the wire shape of a violation. The hint variants render
// as the expected_value shapes callers match on.
type violationJSON struct {
	RuleName   string                `json:"rule_name"`
	Type       ViolationType         `json:"violation_type"`
	Field      string                `json:"field"`
	Message    string                `json:"message"`
	Severity   rules.Severity        `json:"severity"`
	FoundValue interface{}           `json:"found_value"`
	Expected   interface{}           `json:"expected_value,omitempty"`
	Suggestion string                `json:"suggestion,omitempty"`
	Sources    []providers.WebSource `json:"sources,omitempty"`
}

func (v Violation) MarshalJSON() ([]byte, error) {
	return json.Marshal(violationJSON{
		RuleName:   v.RuleName,
		Type:       v.Type,
		Field:      v.Field,
		Message:    v.Message,
		Severity:   v.Severity,
		FoundValue: v.FoundValue,
		Expected:   v.ExpectedValue(),
		Suggestion: v.Suggestion,
		Sources:    v.Sources,
	})
}

// ExpectedValue renders the correction hint (or the free-text expectation)
// in the shape callers and correction strategies consume.
func (v Violation) ExpectedValue() interface{} {
	switch hint := v.Hint.(type) {
	case rules.RangeHint:
		expected := make(map[string]interface{}, 2)
		if hint.Min != nil {
			expected["min"] = *hint.Min
		}
		if hint.Max != nil {
			expected["max"] = *hint.Max
		}
		return expected
	case rules.OptionsHint:
		return map[string]interface{}{"valid_options": hint.Valid}
	case rules.DefaultHint:
		return map[string]interface{}{"default_value": hint.Value}
	}
	if v.Expected != "" {
		return v.Expected
	}
	return nil
}

// ValidationResult is the complete outcome of one validation run,
// assembled once by the orchestrator and returned to the caller.
type ValidationResult struct {
	Status             Status                 `json:"status"`
	IsValid            bool                   `json:"is_valid"`
	Violations         []Violation            `json:"violations"`
	AutoCorrected      bool                   `json:"auto_corrected"`
	CorrectedOutput    map[string]interface{} `json:"corrected_output,omitempty"`
	CorrectionsApplied []string               `json:"corrections_applied,omitempty"`
	ConfidenceScore    *float64               `json:"confidence_score,omitempty"`
	ConfidenceLevel    string                 `json:"confidence_level,omitempty"`
	AnomaliesDetected  int                    `json:"anomalies_detected,omitempty"`
	ValidationID       string                 `json:"validation_id"`
	LatencyMS          int64                  `json:"latency_ms"`
	Timestamp          time.Time              `json:"timestamp"`
}

// NewValidationID generates a unique identifier for one validation run.
func NewValidationID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "val_" + hex[:16]
}

// CountBySeverity tallies the violations holding the given severity.
func CountBySeverity(violations []Violation, severity rules.Severity) int {
	count := 0
	for _, violation := range violations {
		if violation.Severity == severity {
			count++
		}
	}
	return count
}

// StatusOf derives the overall verdict: failed with at least one error,
// warning with warnings only, passed otherwise.
func StatusOf(violations []Violation) Status {
	errorCount := CountBySeverity(violations, rules.SeverityError)
	warningCount := CountBySeverity(violations, rules.SeverityWarning)
	switch {
	case errorCount > 0:
		return StatusFailed
	case warningCount > 0:
		return StatusWarning
	default:
		return StatusPassed
	}
}
