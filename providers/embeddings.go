// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package providers

import (
	"context"
	"fmt"
	"math"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/verityhq/truthgate/config"
)

// DefaultEmbeddingModel is used when no embedding model is configured.
const DefaultEmbeddingModel = openai.EmbeddingModelTextEmbedding3Small

// Alignment is the outcome of one semantic alignment check between an
// output text and its reference context.
type Alignment struct {
	// Score is the cosine similarity rounded to four decimals, in [0, 1].
	Score float64
	// Contradiction is true when the score falls below the threshold.
	Contradiction bool
	// Label is a human-readable alignment category.
	Label string
	// Explanation describes the outcome for caller display.
	Explanation string
	// Threshold is the minimum alignment the check required.
	Threshold float64
}

// AlignmentOf classifies a similarity score against the minimum alignment
// threshold. Scores at or above 0.7 are strongly aligned regardless of the
// threshold; scores below 0.3 oppose the context.
func AlignmentOf(score float64, minAlignment float64) Alignment {
	score = math.Round(Clamp01(score)*10000) / 10000

	var label string
	switch {
	case score >= 0.7:
		label = "strongly aligned"
	case score >= minAlignment:
		label = "sufficiently aligned"
	case score >= 0.3:
		label = "weakly aligned; possible semantic mismatch"
	default:
		label = "contradicted; output opposes the context"
	}

	return Alignment{
		Score:         score,
		Contradiction: score < minAlignment,
		Label:         label,
		Explanation:   fmt.Sprintf("Semantic alignment score: %.4f (%s). Minimum required: %v.", score, label, minAlignment),
		Threshold:     minAlignment,
	}
}

// Clamp01 clamps cosine similarity to [0, 1]; it can be slightly negative
// for texts with opposite meanings.
func Clamp01(value float64) float64 {
	return math.Max(0, math.Min(1, value))
}

// CosineSimilarity computes the cosine of the angle between two equal-length
// vectors. Zero vectors or mismatched lengths yield 0.
func CosineSimilarity(a []float64, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// NewOpenAIEmbedder creates an Embedder backed by the OpenAI embeddings API.
func NewOpenAIEmbedder(clientCfg config.OpenAIClientConfig, cfg *config.EmbeddingsConfig) *OpenAIEmbedder {
	model := openai.EmbeddingModel(DefaultEmbeddingModel)
	if cfg != nil && config.IsNotBlank(cfg.Model) {
		model = openai.EmbeddingModel(cfg.Model)
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(
			option.WithAPIKey(clientCfg.APIKey),
			option.WithMaxRetries(0), // disable SDK retries since TruthGate has its own retry policy
		),
		model: model,
	}
}

// OpenAIEmbedder implements the Embedder interface using OpenAI embeddings.
type OpenAIEmbedder struct {
	client openai.Client
	model  openai.EmbeddingModel
}

// Similarity embeds both texts in a single request and returns their cosine
// similarity clamped to [0, 1].
func (e *OpenAIEmbedder) Similarity(ctx context.Context, outputText string, contextText string) (float64, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: e.model,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{outputText, contextText},
		},
	})
	if err != nil {
		return 0, WrapErrGenerateResponse(err)
	}
	if resp == nil || len(resp.Data) < 2 {
		return 0, fmt.Errorf("%w: embeddings", ErrEmptyResponse)
	}
	return Clamp01(CosineSimilarity(resp.Data[0].Embedding, resp.Data[1].Embedding)), nil
}
