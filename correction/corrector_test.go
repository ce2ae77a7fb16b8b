// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package correction_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verityhq/truthgate/correction"
	"github.com/verityhq/truthgate/pkg/testutils"
	"github.com/verityhq/truthgate/rules"
	"github.com/verityhq/truthgate/validation"
)

func TestFixRepairsErrorViolations(t *testing.T) {
	corrector := correction.NewCorrector(testutils.NewTestLogger(t))
	doc := parseDocument(t, `{"hours": 30, "madhab": "Hanafy"}`)
	violations := []validation.Violation{
		{
			RuleName: "hours_range",
			Field:    "hours",
			Message:  "hours must be between 0 and 24",
			Severity: rules.SeverityError,
			Hint:     rules.RangeHint{Min: testutils.Ptr(0.0), Max: testutils.Ptr(24.0)},
		},
		{
			RuleName: "madhab_enum",
			Field:    "madhab",
			Message:  "madhab must be one of [Hanafi Maliki Shafii Hanbali]",
			Severity: rules.SeverityError,
			Hint:     rules.OptionsHint{Valid: []string{"Hanafi", "Maliki", "Shafii", "Hanbali"}},
		},
	}

	corrected, descriptions, fixed := corrector.Fix(context.Background(), doc, violations)
	require.True(t, fixed)
	assert.Equal(t, []string{
		"Clamped hours from 30 to 24 (range: 0-24)",
		"Fuzzy-matched madhab from 'Hanafy' to 'Hanafi' (similarity: 0.83)",
	}, descriptions)

	value, ok := corrected.Get("hours").Float()
	require.True(t, ok)
	assert.Equal(t, 24.0, value)
	text, ok := corrected.Get("madhab").String()
	require.True(t, ok)
	assert.Equal(t, "Hanafi", text)

	// The original document is untouched.
	original, ok := doc.Get("hours").Float()
	require.True(t, ok)
	assert.Equal(t, 30.0, original)
}

func TestFixSkipsWarnings(t *testing.T) {
	corrector := correction.NewCorrector(testutils.NewTestLogger(t))
	doc := parseDocument(t, `{"hours": 30}`)
	violations := []validation.Violation{
		{
			Field:    "hours",
			Message:  "hours must be between 0 and 24",
			Severity: rules.SeverityWarning,
			Hint:     rules.RangeHint{Min: testutils.Ptr(0.0), Max: testutils.Ptr(24.0)},
		},
	}

	_, descriptions, fixed := corrector.Fix(context.Background(), doc, violations)
	assert.False(t, fixed)
	assert.Empty(t, descriptions)
}

func TestFixAppliesAtMostOneStrategyPerViolation(t *testing.T) {
	corrector := correction.NewCorrector(testutils.NewTestLogger(t))
	doc := parseDocument(t, `{"hours": 30}`)
	violations := []validation.Violation{
		{
			Field:    "hours",
			Message:  "hours must be between 0 and 24",
			Severity: rules.SeverityError,
			Hint:     rules.RangeHint{Min: testutils.Ptr(0.0), Max: testutils.Ptr(24.0)},
		},
	}

	_, descriptions, fixed := corrector.Fix(context.Background(), doc, violations)
	require.True(t, fixed)
	assert.Len(t, descriptions, 1)
}

func TestFixWithoutApplicableStrategy(t *testing.T) {
	corrector := correction.NewCorrector(testutils.NewTestLogger(t))
	doc := parseDocument(t, `{"city": "Cairo"}`)
	violations := []validation.Violation{
		{
			Field:    "city",
			Message:  "city failed a check no strategy understands",
			Severity: rules.SeverityError,
		},
	}

	corrected, descriptions, fixed := corrector.Fix(context.Background(), doc, violations)
	assert.False(t, fixed)
	assert.Nil(t, descriptions)
	assert.Equal(t, doc.JSON(), corrected.JSON())
}
