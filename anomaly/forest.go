// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package anomaly trains and scores per-organization isolation-forest models
// over the numeric fields of historical documents.
package anomaly

import (
	"math"
	"math/rand"
	"sort"
)

const (
	// DefaultTreeCount is the ensemble size.
	DefaultTreeCount = 100
	// DefaultContamination is the assumed fraction of anomalous training rows.
	DefaultContamination = 0.05
	// DefaultSeed makes training deterministic for identical input.
	DefaultSeed = 42

	maxSubsampleSize = 256
)

// Forest is an unsupervised isolation-ensemble outlier model.
// Rows isolated in unusually few random splits score as anomalous.
// All fields are exported for gob serialization.
type Forest struct {
	Trees         []*forestNode
	SubsampleSize int
	// Offset is the decision boundary calibrated so that roughly the
	// contamination fraction of the training rows scores negative.
	Offset float64
}

type forestNode struct {
	// Leaf fields.
	Size int
	// Split fields; Left/Right nil marks a leaf.
	Feature   int
	Threshold float64
	Left      *forestNode
	Right     *forestNode
}

// TrainForest fits an isolation forest on the given feature matrix.
// Rows must be rectangular and free of NaN (impute before training).
func TrainForest(matrix [][]float64, treeCount int, contamination float64, seed int64) *Forest {
	if treeCount <= 0 {
		treeCount = DefaultTreeCount
	}
	if contamination <= 0 || contamination >= 1 {
		contamination = DefaultContamination
	}

	rng := rand.New(rand.NewSource(seed))
	subsampleSize := len(matrix)
	if subsampleSize > maxSubsampleSize {
		subsampleSize = maxSubsampleSize
	}
	maxDepth := int(math.Ceil(math.Log2(float64(subsampleSize))))
	if maxDepth < 1 {
		maxDepth = 1
	}

	forest := &Forest{
		Trees:         make([]*forestNode, treeCount),
		SubsampleSize: subsampleSize,
	}
	for i := 0; i < treeCount; i++ {
		sample := subsample(matrix, subsampleSize, rng)
		forest.Trees[i] = buildTree(sample, 0, maxDepth, rng)
	}

	// Calibrate the decision boundary on the training rows: the most
	// anomalous contamination-fraction of them falls below zero.
	scores := make([]float64, len(matrix))
	for i, row := range matrix {
		scores[i] = forest.scoreSample(row)
	}
	sort.Float64s(scores)
	index := int(contamination * float64(len(scores)))
	if index >= len(scores) {
		index = len(scores) - 1
	}
	forest.Offset = scores[index]

	return forest
}

// Decision returns the calibrated anomaly decision value for a row.
// Negative values mark anomalies.
func (f *Forest) Decision(row []float64) float64 {
	return f.scoreSample(row) - f.Offset
}

// scoreSample returns the negated anomaly score in [-1, 0]; lower is more anomalous.
func (f *Forest) scoreSample(row []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	total := 0.0
	for _, tree := range f.Trees {
		total += pathLength(tree, row, 0)
	}
	average := total / float64(len(f.Trees))
	return -math.Pow(2, -average/averagePathLength(f.SubsampleSize))
}

func subsample(matrix [][]float64, size int, rng *rand.Rand) [][]float64 {
	if size >= len(matrix) {
		return matrix
	}
	picked := make([][]float64, size)
	for i, j := range rng.Perm(len(matrix))[:size] {
		picked[i] = matrix[j]
	}
	return picked
}

func buildTree(rows [][]float64, depth int, maxDepth int, rng *rand.Rand) *forestNode {
	if len(rows) <= 1 || depth >= maxDepth {
		return &forestNode{Size: len(rows)}
	}

	featureCount := len(rows[0])
	feature := rng.Intn(featureCount)

	lower, upper := rows[0][feature], rows[0][feature]
	for _, row := range rows[1:] {
		if row[feature] < lower {
			lower = row[feature]
		}
		if row[feature] > upper {
			upper = row[feature]
		}
	}
	if lower == upper {
		return &forestNode{Size: len(rows)}
	}

	threshold := lower + rng.Float64()*(upper-lower)
	left := make([][]float64, 0, len(rows))
	right := make([][]float64, 0, len(rows))
	for _, row := range rows {
		if row[feature] < threshold {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &forestNode{
		Size:      len(rows),
		Feature:   feature,
		Threshold: threshold,
		Left:      buildTree(left, depth+1, maxDepth, rng),
		Right:     buildTree(right, depth+1, maxDepth, rng),
	}
}

func pathLength(node *forestNode, row []float64, depth int) float64 {
	if node.Left == nil || node.Right == nil {
		return float64(depth) + averagePathLength(node.Size)
	}
	if row[node.Feature] < node.Threshold {
		return pathLength(node.Left, row, depth+1)
	}
	return pathLength(node.Right, row, depth+1)
}

// averagePathLength is the expected unsuccessful-search depth of a binary
// search tree over n rows, the standard isolation-forest normalizer.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	harmonic := math.Log(float64(n-1)) + 0.5772156649
	return 2*harmonic - 2*float64(n-1)/float64(n)
}
