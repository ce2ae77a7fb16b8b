// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verityhq/truthgate/rules"
	"github.com/verityhq/truthgate/stats"
)

func findingNames(findings []stats.PatternFinding) []string {
	names := make([]string, len(findings))
	for i, f := range findings {
		names[i] = f.RuleName
	}
	return names
}

func TestDetectPatterns(t *testing.T) {
	heuristics := stats.DefaultHeuristics()

	tests := []struct {
		name      string
		field     string
		value     float64
		wantRules []string
	}{
		{
			name:      "unremarkable value",
			field:     "hours",
			value:     7.5,
			wantRules: []string{},
		},
		{
			name:      "round number from the fixed set",
			field:     "revenue",
			value:     10000,
			wantRules: []string{"auto_pattern_round_number"},
		},
		{
			name:      "power of ten not in the fixed set",
			field:     "revenue",
			value:     10000000,
			wantRules: []string{"auto_pattern_round_number"},
		},
		{
			name:      "placeholder value",
			field:     "count",
			value:     999,
			wantRules: []string{"auto_pattern_placeholder"},
		},
		{
			name:      "placeholder and round overlap on 1",
			field:     "count",
			value:     1,
			wantRules: []string{"auto_pattern_round_number", "auto_pattern_placeholder"},
		},
		{
			name:      "invalid percentage",
			field:     "success_rate",
			value:     150,
			wantRules: []string{"auto_pattern_invalid_percentage"},
		},
		{
			name:      "negative rate",
			field:     "error_rate",
			value:     -5,
			wantRules: []string{"auto_pattern_invalid_percentage"},
		},
		{
			name:      "valid percentage",
			field:     "success_rate",
			value:     95.5,
			wantRules: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := heuristics.DetectPatterns(
				map[string]float64{tt.field: tt.value},
				[]string{tt.field},
			)
			assert.ElementsMatch(t, tt.wantRules, findingNames(findings))
		})
	}
}

func TestDetectPatternsPercentageHint(t *testing.T) {
	heuristics := stats.DefaultHeuristics()
	findings := heuristics.DetectPatterns(map[string]float64{"uptime_percent": 120}, []string{"uptime_percent"})
	require.Len(t, findings, 1)

	finding := findings[0]
	assert.Equal(t, rules.SeverityError, finding.Severity)
	hint, ok := finding.Hint.(rules.RangeHint)
	require.True(t, ok)
	require.NotNil(t, hint.Min)
	require.NotNil(t, hint.Max)
	assert.InDelta(t, 0.0, *hint.Min, 0.0001)
	assert.InDelta(t, 100.0, *hint.Max, 0.0001)
}

func TestDetectPatternsFollowsFieldOrder(t *testing.T) {
	heuristics := stats.DefaultHeuristics()
	fields := map[string]float64{"a": 999, "b": 9999, "c": 0}
	findings := heuristics.DetectPatterns(fields, []string{"c", "a", "b"})
	require.Len(t, findings, 3)
	assert.Equal(t, "c", findings[0].Field)
	assert.Equal(t, "a", findings[1].Field)
	assert.Equal(t, "b", findings[2].Field)
}
