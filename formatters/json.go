// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package formatters

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/verityhq/truthgate/runners"
	"github.com/verityhq/truthgate/validation"
)

// NewJSONFormatter creates a new formatter that outputs results as a JSON
// document suitable for machine consumption.
func NewJSONFormatter() Formatter {
	return &jsonFormatter{}
}

type jsonFormatter struct{}

// jsonReport is the top-level structure of the JSON output.
type jsonReport struct {
	Requests int         `json:"requests"`
	Passed   int         `json:"passed"`
	Warned   int         `json:"warned"`
	Failed   int         `json:"failed"`
	Errored  int         `json:"errored"`
	Results  []jsonEntry `json:"results"`
}

type jsonEntry struct {
	Request    string                      `json:"request"`
	Status     string                      `json:"status"`
	Document   json.RawMessage             `json:"document,omitempty"`
	Details    string                      `json:"details,omitempty"`
	DurationMS int64                       `json:"duration_ms"`
	Outcome    *validation.ValidationResult `json:"outcome,omitempty"`
}

func (f jsonFormatter) FileExt() string {
	return "json"
}

func (f jsonFormatter) Write(results runners.Results, out io.Writer) error {
	byKind := results.ByKind()
	report := jsonReport{
		Requests: len(results),
		Passed:   CountByKind(byKind, runners.Passed),
		Warned:   CountByKind(byKind, runners.Warned),
		Failed:   CountByKind(byKind, runners.Failed),
		Errored:  CountByKind(byKind, runners.Errored),
		Results:  make([]jsonEntry, 0, len(results)),
	}

	for _, result := range SortedResults(results) {
		entry := jsonEntry{
			Request:    result.Request,
			Status:     ToStatus(result.Kind),
			Details:    detailsText(result),
			DurationMS: RoundToMS(result.Duration).Milliseconds(),
		}
		if result.Document != "" {
			entry.Document = json.RawMessage(result.Document)
		}
		if result.Kind != runners.Errored {
			outcome := result.Outcome
			entry.Outcome = &outcome
		}
		report.Results = append(report.Results, entry)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("%w: %v", ErrPrintResults, err)
	}
	return nil
}
