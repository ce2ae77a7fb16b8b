// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package formatters

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/verityhq/truthgate/runners"
)

// NewLogFormatter creates a new formatter that outputs detailed results as an ASCII table.
func NewLogFormatter() Formatter {
	return &logFormatter{}
}

type logFormatter struct{}

func (f logFormatter) FileExt() string {
	return "log"
}

func (f logFormatter) Write(results runners.Results, out io.Writer) error {
	tab := tabwriter.NewWriter(out, 0, 0, 1, ' ', tabwriter.Debug)
	defer tab.Flush()
	if _, err := fmt.Fprintln(tab, "TraceID\tRequest\tStatus\tViolations\tConfidence\tDuration\tOutput\t"); err != nil {
		return fmt.Errorf("%w: %v", ErrPrintResults, err)
	}

	return ForEachOrdered(results.ByRequest(), func(_ string, requestResults []runners.RunResult) error {
		for _, result := range requestResults {
			if _, err := fmt.Fprintf(tab, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t\n", traceID(result), result.Request, ToStatus(result.Kind), len(result.Outcome.Violations), FormatConfidence(result), RoundToMS(result.Duration), formatOutputText(result)); err != nil {
				return fmt.Errorf("%w: %v", ErrPrintResults, err)
			}
		}
		return nil
	})
}

// traceID returns the validation identifier of the result, falling back to
// the sanitized request identifier for requests that never reached validation.
func traceID(result runners.RunResult) string {
	if result.Outcome.ValidationID != "" {
		return result.Outcome.ValidationID
	}
	return result.GetID()
}
