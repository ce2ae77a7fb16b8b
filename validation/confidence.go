// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package validation

import (
	"math"

	"github.com/verityhq/truthgate/providers"
)

// Confidence factor weights. They sum to 1.0 so the overall score stays in [0, 1].
const (
	weightViolationCount = 0.30
	weightSeverity       = 0.25
	weightAutoCorrection = 0.15
	weightStatistical    = 0.20
	weightReference      = 0.10
)

// ConfidenceFactors breaks the overall trust score into its sub-scores,
// each in [0, 1].
type ConfidenceFactors struct {
	ViolationCount        float64 `json:"violation_count"`
	SeverityScore         float64 `json:"severity_score"`
	AutoCorrectionPenalty float64 `json:"auto_correction_penalty"`
	StatisticalConfidence float64 `json:"statistical_confidence"`
	ReferenceConfidence   float64 `json:"reference_confidence"`
	OverallConfidence     float64 `json:"overall_confidence"`
}

// CalculateConfidence combines violation counts, severities, applied
// corrections and the optional statistical score into one trust number.
// A nil statisticalScore defaults to full statistical confidence.
func CalculateConfidence(violations []Violation, autoCorrected bool, corrections []string, statisticalScore *float64, hasReferenceViolations bool) ConfidenceFactors {
	violationScore := violationCountScore(violations)
	severityScore := severityScore(violations)
	penalty := autoCorrectionPenalty(autoCorrected, corrections)

	statistical := 1.0
	if statisticalScore != nil {
		statistical = *statisticalScore
	}
	reference := 1.0
	if hasReferenceViolations {
		reference = 0.0
	}

	overall := violationScore*weightViolationCount +
		severityScore*weightSeverity +
		(1.0-penalty)*weightAutoCorrection +
		statistical*weightStatistical +
		reference*weightReference

	return ConfidenceFactors{
		ViolationCount:        violationScore,
		SeverityScore:         severityScore,
		AutoCorrectionPenalty: penalty,
		StatisticalConfidence: statistical,
		ReferenceConfidence:   reference,
		OverallConfidence:     providers.Clamp01(overall),
	}
}

// ConfidenceLevel maps a confidence score onto its discrete level.
func ConfidenceLevel(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return "very_high"
	case confidence >= 0.75:
		return "high"
	case confidence >= 0.5:
		return "medium"
	case confidence >= 0.25:
		return "low"
	default:
		return "very_low"
	}
}

// Recommendation maps a confidence score onto the advice shown to callers.
func Recommendation(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return "Output appears highly reliable. Safe to use."
	case confidence >= 0.75:
		return "Output is likely valid. Minor review recommended."
	case confidence >= 0.5:
		return "Output has some concerns. Review recommended before use."
	case confidence >= 0.25:
		return "Output has significant issues. Manual review required."
	default:
		return "Output is unreliable. Do not use without thorough validation."
	}
}

// StatisticalConfidence decays with the share of analyzed fields that
// tested as outliers.
func StatisticalConfidence(outlierCount int, totalFields int) float64 {
	if totalFields == 0 || outlierCount == 0 {
		return 1.0
	}
	ratio := float64(outlierCount) / float64(totalFields)
	return math.Exp(-ratio * 2)
}

// PatternConfidence decays with each suspicious pattern found by the
// no-history heuristics.
func PatternConfidence(patternsDetected int) float64 {
	if patternsDetected == 0 {
		return 1.0
	}
	return math.Exp(-float64(patternsDetected) * 0.3)
}

// violationCountScore decays exponentially with the number of violations:
// none scores 1.0, three score about 0.37, six about 0.14.
func violationCountScore(violations []Violation) float64 {
	if len(violations) == 0 {
		return 1.0
	}
	return math.Exp(-float64(len(violations)) / 3.0)
}

func severityScore(violations []Violation) float64 {
	if len(violations) == 0 {
		return 1.0
	}
	total := 0.0
	for _, violation := range violations {
		total += violation.Severity.Weight()
	}
	normalized := total / float64(len(violations))
	return 1.0 - math.Min(normalized, 1.0)
}

func autoCorrectionPenalty(autoCorrected bool, corrections []string) float64 {
	if !autoCorrected || len(corrections) == 0 {
		return 0.0
	}
	return math.Min(float64(len(corrections))*0.1, 0.5)
}
