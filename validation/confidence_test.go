// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package validation_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/verityhq/truthgate/pkg/testutils"
	"github.com/verityhq/truthgate/rules"
	"github.com/verityhq/truthgate/validation"
)

func TestCalculateConfidenceCleanRun(t *testing.T) {
	factors := validation.CalculateConfidence(nil, false, nil, nil, false)
	assert.Equal(t, 1.0, factors.ViolationCount)
	assert.Equal(t, 1.0, factors.SeverityScore)
	assert.Equal(t, 0.0, factors.AutoCorrectionPenalty)
	assert.Equal(t, 1.0, factors.StatisticalConfidence)
	assert.Equal(t, 1.0, factors.ReferenceConfidence)
	assert.Equal(t, 1.0, factors.OverallConfidence)
	assert.Equal(t, "very_high", validation.ConfidenceLevel(factors.OverallConfidence))
}

func TestCalculateConfidenceDropsWithViolations(t *testing.T) {
	clean := validation.CalculateConfidence(nil, false, nil, nil, false)
	one := validation.CalculateConfidence([]validation.Violation{
		{Severity: rules.SeverityError},
	}, false, nil, nil, false)
	three := validation.CalculateConfidence([]validation.Violation{
		{Severity: rules.SeverityError},
		{Severity: rules.SeverityError},
		{Severity: rules.SeverityError},
	}, false, nil, nil, false)

	assert.Less(t, one.OverallConfidence, clean.OverallConfidence)
	assert.Less(t, three.OverallConfidence, one.OverallConfidence)
	assert.InDelta(t, math.Exp(-1.0/3.0), one.ViolationCount, 0.0001)
	assert.Equal(t, 0.0, one.SeverityScore)
}

func TestCalculateConfidenceSeverityWeighting(t *testing.T) {
	errorRun := validation.CalculateConfidence([]validation.Violation{
		{Severity: rules.SeverityError},
	}, false, nil, nil, false)
	infoRun := validation.CalculateConfidence([]validation.Violation{
		{Severity: rules.SeverityInfo},
	}, false, nil, nil, false)

	assert.Greater(t, infoRun.OverallConfidence, errorRun.OverallConfidence)
	assert.InDelta(t, 0.9, infoRun.SeverityScore, 0.0001)
}

func TestCalculateConfidenceCorrectionPenalty(t *testing.T) {
	violations := []validation.Violation{{Severity: rules.SeverityError}}

	uncorrected := validation.CalculateConfidence(violations, false, nil, nil, false)
	corrected := validation.CalculateConfidence(violations, true, []string{"Clamped hours from 30 to 24 (range: 0-24)"}, nil, false)
	heavilyCorrected := validation.CalculateConfidence(violations, true, make([]string, 8), nil, false)

	assert.InDelta(t, 0.1, corrected.AutoCorrectionPenalty, 0.0001)
	assert.InDelta(t, 0.5, heavilyCorrected.AutoCorrectionPenalty, 0.0001)
	assert.Less(t, corrected.OverallConfidence, uncorrected.OverallConfidence)
}

func TestCalculateConfidenceStatisticalAndReference(t *testing.T) {
	withStatistical := validation.CalculateConfidence(nil, false, nil, testutils.Ptr(0.5), false)
	assert.Equal(t, 0.5, withStatistical.StatisticalConfidence)
	assert.InDelta(t, 0.9, withStatistical.OverallConfidence, 0.0001)

	withReference := validation.CalculateConfidence([]validation.Violation{
		{Type: validation.TypeReference, Severity: rules.SeverityError},
	}, false, nil, nil, true)
	assert.Equal(t, 0.0, withReference.ReferenceConfidence)
}

func TestConfidenceLevel(t *testing.T) {
	tests := []struct {
		confidence float64
		want       string
	}{
		{confidence: 0.95, want: "very_high"},
		{confidence: 0.9, want: "very_high"},
		{confidence: 0.8, want: "high"},
		{confidence: 0.75, want: "high"},
		{confidence: 0.6, want: "medium"},
		{confidence: 0.5, want: "medium"},
		{confidence: 0.3, want: "low"},
		{confidence: 0.25, want: "low"},
		{confidence: 0.1, want: "very_low"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, validation.ConfidenceLevel(tt.confidence), "confidence %v", tt.confidence)
	}
}

func TestRecommendation(t *testing.T) {
	assert.Equal(t, "Output appears highly reliable. Safe to use.", validation.Recommendation(0.95))
	assert.Equal(t, "Output is likely valid. Minor review recommended.", validation.Recommendation(0.8))
	assert.Equal(t, "Output has some concerns. Review recommended before use.", validation.Recommendation(0.6))
	assert.Equal(t, "Output has significant issues. Manual review required.", validation.Recommendation(0.3))
	assert.Equal(t, "Output is unreliable. Do not use without thorough validation.", validation.Recommendation(0.1))
}

func TestStatisticalConfidence(t *testing.T) {
	assert.Equal(t, 1.0, validation.StatisticalConfidence(0, 5))
	assert.Equal(t, 1.0, validation.StatisticalConfidence(0, 0))
	assert.InDelta(t, math.Exp(-2.0), validation.StatisticalConfidence(3, 3), 0.0001)
	assert.InDelta(t, math.Exp(-1.0), validation.StatisticalConfidence(1, 2), 0.0001)
}

func TestPatternConfidence(t *testing.T) {
	assert.Equal(t, 1.0, validation.PatternConfidence(0))
	assert.InDelta(t, math.Exp(-0.3), validation.PatternConfidence(1), 0.0001)
	assert.InDelta(t, math.Exp(-0.9), validation.PatternConfidence(3), 0.0001)
}
