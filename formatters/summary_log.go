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

// NewSummaryLogFormatter creates a new formatter that outputs results as an ASCII table summary.
func NewSummaryLogFormatter() Formatter {
	return &summaryLogFormatter{}
}

type summaryLogFormatter struct{}

func (f summaryLogFormatter) FileExt() string {
	return "summary.log"
}

func (f summaryLogFormatter) Write(results runners.Results, out io.Writer) error {
	tab := tabwriter.NewWriter(out, 0, 0, 1, ' ', tabwriter.Debug)
	defer tab.Flush()
	if _, err := fmt.Fprintf(tab, "Requests\t%s\t%s\t%s\t%s\tPass Rate (%%)\tError Rate (%%)\tAvg Confidence\tTotal Duration\t\n", Passed, Warned, Failed, Errored); err != nil {
		return fmt.Errorf("%w: %v", ErrPrintResults, err)
	}
	resultsByKind := results.ByKind()
	if _, err := fmt.Fprintf(tab, "%d\t%d\t%d\t%d\t%d\t%.2f\t%.2f\t%s\t%s\t\n",
		len(results),
		CountByKind(resultsByKind, runners.Passed),
		CountByKind(resultsByKind, runners.Warned),
		CountByKind(resultsByKind, runners.Failed),
		CountByKind(resultsByKind, runners.Errored),
		Percent(PassRate(resultsByKind)),
		Percent(ErrorRate(resultsByKind)),
		AvgConfidenceText(results),
		RoundToMS(TotalDuration(resultsByKind, runners.Passed, runners.Warned, runners.Failed, runners.Errored))); err != nil {
		return fmt.Errorf("%w: %v", ErrPrintResults, err)
	}
	return nil
}
