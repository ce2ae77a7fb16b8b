// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package stats computes descriptive statistics over numeric field histories
// and runs the classical outlier and drift tests used by anomaly rules.
package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/verityhq/truthgate/rules"
)

// ErrNoValues indicates that statistics were requested over an empty sample.
var ErrNoValues = errors.New("no values provided")

const (
	// DefaultZScoreThreshold is the standard three-sigma outlier threshold.
	DefaultZScoreThreshold = 3.0
	// DefaultIQRMultiplier is the standard 1.5x fence multiplier.
	DefaultIQRMultiplier = 1.5
	// DefaultDriftThreshold flags a metric whose relative change exceeds 20%.
	DefaultDriftThreshold = 0.2
	// MinSampleSize is the smallest history worth counting outliers over.
	MinSampleSize = 10
)

// SampleProvider supplies historical numeric values of a field for an
// organization. Implementations live outside the core; tests inject fakes.
type SampleProvider interface {
	// FieldHistory returns the numeric values recorded for the field over the
	// trailing number of days, oldest first.
	FieldHistory(ctx context.Context, orgID string, field string, days int) ([]float64, error)
}

// Metrics holds the descriptive statistics of one numeric field.
type Metrics struct {
	Field        string  `json:"field"`
	Count        int     `json:"count"`
	Mean         float64 `json:"mean"`
	Median       float64 `json:"median"`
	StdDev       float64 `json:"std_dev"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Q1           float64 `json:"q1"`
	Q3           float64 `json:"q3"`
	IQR          float64 `json:"iqr"`
	OutlierCount int     `json:"outlier_count"`
}

// Outlier is the result of a single outlier test.
type Outlier struct {
	IsOutlier bool
	Method    string
	Score     float64
	Threshold float64
	Severity  rules.Severity
}

// AnalyzeField computes descriptive statistics for the given values.
// A single-value sample degenerates to zero spread. Returns ErrNoValues
// for an empty sample.
func AnalyzeField(field string, values []float64) (Metrics, error) {
	if len(values) == 0 {
		return Metrics{}, fmt.Errorf("%w for field %q", ErrNoValues, field)
	}
	if len(values) < 2 {
		return Metrics{
			Field:  field,
			Count:  1,
			Mean:   values[0],
			Median: values[0],
			Min:    values[0],
			Max:    values[0],
			Q1:     values[0],
			Q3:     values[0],
		}, nil
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	count := len(values)
	mean := meanOf(values)
	q1 := quartile(sorted, 0.25)
	q3 := quartile(sorted, 0.75)
	iqr := q3 - q1

	metrics := Metrics{
		Field:  field,
		Count:  count,
		Mean:   mean,
		Median: quartile(sorted, 0.5),
		StdDev: sampleStdDev(values, mean),
		Min:    sorted[0],
		Max:    sorted[count-1],
		Q1:     q1,
		Q3:     q3,
		IQR:    iqr,
	}
	if count >= MinSampleSize {
		metrics.OutlierCount = countOutliersIQR(values, q1, q3, iqr)
	}
	return metrics, nil
}

// DetectOutlierZScore tests a value against a historical mean and standard
// deviation. With zero spread, an exact match scores zero and anything else
// is infinitely far out. Severity escalates to error past 1.5x the threshold.
func DetectOutlierZScore(value float64, mean float64, stdDev float64, threshold float64) Outlier {
	if threshold <= 0 {
		threshold = DefaultZScoreThreshold
	}

	var z float64
	if stdDev == 0 {
		if value != mean {
			z = math.Inf(1)
		}
	} else {
		z = math.Abs((value - mean) / stdDev)
	}

	severity := rules.SeverityInfo
	switch {
	case z > threshold*1.5:
		severity = rules.SeverityError
	case z > threshold:
		severity = rules.SeverityWarning
	}

	return Outlier{
		IsOutlier: z > threshold,
		Method:    "zscore",
		Score:     z,
		Threshold: threshold,
		Severity:  severity,
	}
}

// DetectOutlierIQR tests a value against the interquartile fences
// [q1 - m*iqr, q3 + m*iqr]. The score is the distance past the violated
// fence; severity scales with that distance normalized by the IQR.
func DetectOutlierIQR(value float64, q1 float64, q3 float64, iqr float64, multiplier float64) Outlier {
	if multiplier <= 0 {
		multiplier = DefaultIQRMultiplier
	}

	lower := q1 - multiplier*iqr
	upper := q3 + multiplier*iqr

	var score float64
	switch {
	case value < lower:
		score = math.Abs(value - lower)
	case value > upper:
		score = math.Abs(value - upper)
	}

	normalized := 0.0
	if iqr > 0 {
		normalized = score / iqr
	} else if score > 0 {
		normalized = math.Inf(1)
	}

	severity := rules.SeverityInfo
	switch {
	case normalized > 2.0:
		severity = rules.SeverityError
	case normalized > 1.0:
		severity = rules.SeverityWarning
	}

	return Outlier{
		IsOutlier: value < lower || value > upper,
		Method:    "iqr",
		Score:     score,
		Threshold: multiplier * iqr,
		Severity:  severity,
	}
}

// MetricDrift describes one drifted metric between two snapshots.
type MetricDrift struct {
	Metric          string         `json:"metric"`
	Current         float64        `json:"current"`
	Historical      float64        `json:"historical"`
	DriftPercentage float64        `json:"drift_percentage"`
	Severity        rules.Severity `json:"severity"`
}

// DetectDrift compares a current metrics snapshot against a historical one
// and reports metrics whose relative change exceeds the threshold.
// Mean drift past double the threshold is an error; spread drift is always a warning.
func DetectDrift(current Metrics, historical Metrics, threshold float64) []MetricDrift {
	if threshold <= 0 {
		threshold = DefaultDriftThreshold
	}
	drifts := make([]MetricDrift, 0, 2)

	if meanDrift := relativeChange(current.Mean, historical.Mean); meanDrift > threshold {
		severity := rules.SeverityWarning
		if meanDrift > threshold*2 {
			severity = rules.SeverityError
		}
		drifts = append(drifts, MetricDrift{
			Metric:          "mean",
			Current:         current.Mean,
			Historical:      historical.Mean,
			DriftPercentage: meanDrift * 100,
			Severity:        severity,
		})
	}

	if stdDrift := relativeChange(current.StdDev, historical.StdDev); stdDrift > threshold {
		drifts = append(drifts, MetricDrift{
			Metric:          "std_dev",
			Current:         current.StdDev,
			Historical:      historical.StdDev,
			DriftPercentage: stdDrift * 100,
			Severity:        rules.SeverityWarning,
		})
	}

	return drifts
}

func relativeChange(current float64, historical float64) float64 {
	if historical == 0 {
		return 0
	}
	return math.Abs(current-historical) / math.Abs(historical)
}

// quartile computes a percentile over sorted values using linear-interpolated rank.
func quartile(sorted []float64, percentile float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	index := percentile * float64(n-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	fraction := index - float64(lower)
	return sorted[lower] + fraction*(sorted[upper]-sorted[lower])
}

func meanOf(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func sampleStdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sumSquares := 0.0
	for _, v := range values {
		sumSquares += (v - mean) * (v - mean)
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}

func countOutliersIQR(values []float64, q1 float64, q3 float64, iqr float64) int {
	lower := q1 - DefaultIQRMultiplier*iqr
	upper := q3 + DefaultIQRMultiplier*iqr
	count := 0
	for _, v := range values {
		if v < lower || v > upper {
			count++
		}
	}
	return count
}
