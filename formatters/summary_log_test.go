// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package formatters

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verityhq/truthgate/pkg/testutils"
	"github.com/verityhq/truthgate/runners"
)

func TestSummaryLogFormatterWrite(t *testing.T) {
	formatter := NewSummaryLogFormatter()
	var out bytes.Buffer
	require.NoError(t, formatter.Write(mockResults, &out))

	testutils.AssertContainsAll(t, out.String(), []string{
		"Requests",
		"Pass Rate (%)",
		"Error Rate (%)",
		"Avg Confidence",
		"Total Duration",
		"40.00", // 2 of 5 requests passed or warned
		"20.00", // 1 of 5 requests errored
		"0.64",  // mean of the four reported confidence scores
	})
}

func TestSummaryLogFormatterWriteEmptyResults(t *testing.T) {
	formatter := NewSummaryLogFormatter()
	var out bytes.Buffer
	require.NoError(t, formatter.Write(runners.Results{}, &out))

	testutils.AssertContainsAll(t, out.String(), []string{"Requests", "0.00", "-"})
}

func TestSummaryLogFormatterFileExt(t *testing.T) {
	formatter := NewSummaryLogFormatter()
	assert.Equal(t, "summary.log", formatter.FileExt())
}
