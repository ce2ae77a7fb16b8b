// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package formatters

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/verityhq/truthgate/pkg/utils"
	"github.com/verityhq/truthgate/rules"
	"github.com/verityhq/truthgate/runners"
	"github.com/verityhq/truthgate/validation"
	"golang.org/x/exp/constraints"
)

// Display names of the result kinds.
const (
	Passed  = "Passed"
	Warned  = "Warning"
	Failed  = "Failed"
	Errored = "Error"
)

const noValuePlaceholder = "-"

// ToStatus converts a result kind to its display name.
func ToStatus(kind runners.ResultKind) string {
	switch kind {
	case runners.Passed:
		return Passed
	case runners.Warned:
		return Warned
	case runners.Failed:
		return Failed
	case runners.Errored:
		return Errored
	default:
		return fmt.Sprintf("Unknown (%d)", kind)
	}
}

// CountByKind returns the number of results of the given kind.
func CountByKind(resultsByKind map[runners.ResultKind][]runners.RunResult, kind runners.ResultKind) int {
	return len(resultsByKind[kind])
}

// TotalDuration sums the durations of all results of the given kinds.
func TotalDuration(resultsByKind map[runners.ResultKind][]runners.RunResult, kinds ...runners.ResultKind) (total time.Duration) {
	for _, kind := range kinds {
		for _, result := range resultsByKind[kind] {
			total += result.Duration
		}
	}
	return total
}

// PassRate returns the fraction of results that passed or only warned.
func PassRate(resultsByKind map[runners.ResultKind][]runners.RunResult) float64 {
	total := totalCount(resultsByKind)
	if total == 0 {
		return 0
	}
	return float64(CountByKind(resultsByKind, runners.Passed)+CountByKind(resultsByKind, runners.Warned)) / float64(total)
}

// ErrorRate returns the fraction of results that could not be validated.
func ErrorRate(resultsByKind map[runners.ResultKind][]runners.RunResult) float64 {
	total := totalCount(resultsByKind)
	if total == 0 {
		return 0
	}
	return float64(CountByKind(resultsByKind, runners.Errored)) / float64(total)
}

func totalCount(resultsByKind map[runners.ResultKind][]runners.RunResult) (total int) {
	for _, results := range resultsByKind {
		total += len(results)
	}
	return total
}

// Percent converts a fraction to a percentage value.
func Percent(value float64) float64 {
	return value * 100
}

// AvgConfidence averages the confidence scores of the results that carry one.
// The second return value is false when no result has a confidence score.
func AvgConfidence(results runners.Results) (float64, bool) {
	sum := 0.0
	count := 0
	for _, result := range results {
		if result.Outcome.ConfidenceScore != nil {
			sum += *result.Outcome.ConfidenceScore
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// AvgConfidenceText renders the average confidence for display.
func AvgConfidenceText(results runners.Results) string {
	if avg, ok := AvgConfidence(results); ok {
		return fmt.Sprintf("%.2f", avg)
	}
	return noValuePlaceholder
}

// FormatConfidence renders the confidence score and level of one result.
func FormatConfidence(result runners.RunResult) string {
	if result.Outcome.ConfidenceScore == nil {
		return noValuePlaceholder
	}
	return fmt.Sprintf("%.2f (%s)", *result.Outcome.ConfidenceScore, result.Outcome.ConfidenceLevel)
}

// FormatViolations returns one line per violation for text-based outputs.
func FormatViolations(result runners.RunResult) string {
	lines := make([]string, 0, len(result.Outcome.Violations))
	for _, violation := range result.Outcome.Violations {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", violation.Severity, violation.Field, violation.Message))
	}
	return strings.Join(lines, "\n")
}

// CountViolations tallies the result's violations of the given severity.
func CountViolations(result runners.RunResult, severity rules.Severity) int {
	return validation.CountBySeverity(result.Outcome.Violations, severity)
}

// FormatOutput returns the validated document for display. Errored requests
// render their failure details instead, and auto-corrected documents render
// as a diff between the original and the corrected JSON.
func FormatOutput(result runners.RunResult, useHTML bool) []string {
	if result.Kind == runners.Errored {
		if useHTML {
			return []string{TextToHTML(result.Details)}
		}
		return []string{result.Details}
	}
	if result.Outcome.AutoCorrected && result.Outcome.CorrectedOutput != nil {
		corrected := marshalOutput(result.Outcome.CorrectedOutput)
		if useHTML {
			return []string{DiffHTML(result.Document, corrected)}
		}
		return []string{DiffText(result.Document, corrected)}
	}
	if useHTML {
		return []string{TextToHTML(result.Document)}
	}
	return []string{result.Document}
}

func marshalOutput(output map[string]interface{}) string {
	encoded, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(encoded)
}

// DiffHTML renders the differences between the expected and the actual text
// as inline HTML markup.
func DiffHTML(expected string, actual string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(expected, actual, false))
	return dmp.DiffPrettyHtml(diffs)
}

// DiffText renders the differences between the expected and the actual text
// in the unidiff-like patch format.
func DiffText(expected string, actual string) string {
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(expected, actual)
	if len(patches) == 0 {
		return actual
	}
	return dmp.PatchToText(patches)
}

// SortedResults returns the results ordered by request name for stable output.
func SortedResults(results runners.Results) runners.Results {
	ordered := make(runners.Results, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Request < ordered[j].Request
	})
	return ordered
}

// ForEachOrdered visits the map entries in ascending key order and stops on
// the first error.
func ForEachOrdered[K constraints.Ordered, V any](m map[K]V, fn func(key K, value V) error) error {
	for _, key := range utils.SortedKeys(m) {
		if err := fn(key, m[key]); err != nil {
			return err
		}
	}
	return nil
}

// SortedKeys returns the map keys in ascending order.
func SortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	return utils.SortedKeys(m)
}

// RoundToMS rounds a duration to the nearest millisecond for display.
func RoundToMS(value time.Duration) time.Duration {
	return value.Round(time.Millisecond)
}

var timestamp = func(ref time.Time) string {
	return ref.Format(time.RFC1123Z)
}

// Timestamp returns the current time formatted for report headers.
func Timestamp() string {
	return timestamp(time.Now())
}

// GroupParagraphs splits lines into paragraphs on blank lines.
func GroupParagraphs(lines []string) [][]string {
	paragraphs := make([][]string, 0, len(lines))
	var current []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				paragraphs = append(paragraphs, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, current)
	}
	return paragraphs
}

// TextToHTML converts plain text to escaped HTML with paragraph markup.
func TextToHTML(text string) string {
	paragraphs := GroupParagraphs(utils.SplitLines(text))
	rendered := make([]string, 0, len(paragraphs))
	for _, paragraph := range paragraphs {
		escaped := make([]string, 0, len(paragraph))
		for _, line := range paragraph {
			escaped = append(escaped, html.EscapeString(line))
		}
		rendered = append(rendered, "<p>"+strings.Join(escaped, "<br>")+"</p>")
	}
	return strings.Join(rendered, "\n")
}
