// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package formatters

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/verityhq/truthgate/rules"
	"github.com/verityhq/truthgate/runners"
)

// NewCSVFormatter creates a new formatter that outputs results in CSV format.
func NewCSVFormatter() Formatter {
	return &csvFormatter{}
}

type csvFormatter struct{}

func (f csvFormatter) FileExt() string {
	return "csv"
}

func (f csvFormatter) Write(results runners.Results, out io.Writer) error {
	writer := csv.NewWriter(out)
	defer writer.Flush()

	headers := []string{"Request", "Status", "Valid", "Errors", "Warnings", "Confidence", "Corrections", "Duration", "Output", "Details"}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("%w: %v", ErrPrintResults, err)
	}

	return ForEachOrdered(results.ByRequest(), func(_ string, requestResults []runners.RunResult) error {
		for _, result := range requestResults {
			row := []string{
				result.Request,
				ToStatus(result.Kind),
				strconv.FormatBool(result.Outcome.IsValid),
				strconv.Itoa(CountViolations(result, rules.SeverityError)),
				strconv.Itoa(CountViolations(result, rules.SeverityWarning)),
				FormatConfidence(result),
				strconv.Itoa(len(result.Outcome.CorrectionsApplied)),
				RoundToMS(result.Duration).String(),
				formatOutputText(result),
				detailsText(result),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("%w: %v", ErrPrintResults, err)
			}
		}
		return nil
	})
}
