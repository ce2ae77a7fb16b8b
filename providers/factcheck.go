// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/verityhq/truthgate/config"
	"github.com/verityhq/truthgate/pkg/utils"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Fact-check verdicts.
const (
	VerdictSupported    = "SUPPORTED"
	VerdictContradicted = "CONTRADICTED"
	VerdictUncertain    = "UNCERTAIN"
)

const (
	// DefaultFactCheckModel is used when no fact-check model is configured.
	DefaultFactCheckModel = "gemini-2.5-flash"
	// DefaultSupportedThreshold is the confidence at or above which a claim counts as supported.
	DefaultSupportedThreshold = 0.65
	// DefaultContradictedThreshold is the confidence at or below which a claim counts as contradicted.
	DefaultContradictedThreshold = 0.30

	maxSnippetRunes = 400
	topSourceCount  = 3
)

// WebSource is a single search result used as evidence for a claim.
type WebSource struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Verification is the complete result of a web-grounded fact-check.
type Verification struct {
	// Claim is the text that was checked.
	Claim string `json:"claim"`
	// Confidence is the computed support score in [0, 1].
	Confidence float64 `json:"web_confidence"`
	// Verdict is SUPPORTED, UNCERTAIN or CONTRADICTED.
	Verdict string `json:"verdict"`
	// Reasoning is the verifier's explanation when available.
	Reasoning string `json:"reasoning,omitempty"`
	// Sources are the supporting search results, best first.
	Sources []WebSource `json:"sources,omitempty"`
	// Error is set when the verification infrastructure failed.
	Error string `json:"error,omitempty"`
}

// VerifyOptions tunes one fact-check call.
type VerifyOptions struct {
	// SearchDepth is "basic" (fast) or "advanced" (thorough).
	SearchDepth string
	// MaxResults caps how many evidence sources are returned.
	MaxResults int
}

// FactChecker verifies factual claims against live external evidence.
type FactChecker interface {
	// Verify checks one claim. Infrastructure failures are reported through
	// the result's Error field with an UNCERTAIN verdict, not as an error.
	Verify(ctx context.Context, claim string, opts VerifyOptions) (Verification, error)
}

// NewGoogleFactChecker creates a FactChecker backed by a Google generative
// model with the search grounding tool enabled.
func NewGoogleFactChecker(ctx context.Context, clientCfg config.GoogleAIClientConfig, cfg *config.FactCheckConfig) (*GoogleFactChecker, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  clientCfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateClient, err)
	}

	checker := &GoogleFactChecker{
		client: client,
		model:  DefaultFactCheckModel,
	}
	if cfg != nil {
		if config.IsNotBlank(cfg.Model) {
			checker.model = cfg.Model
		}
		if cfg.MaxRequestsPerMinute > 0 {
			// Allow a burst up to the per-minute limit.
			checker.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MaxRequestsPerMinute)), cfg.MaxRequestsPerMinute)
		}
		checker.retryPolicy = cfg.RetryPolicy
	}
	return checker, nil
}

// GoogleFactChecker implements FactChecker using search-grounded generation.
type GoogleFactChecker struct {
	client      *genai.Client
	model       string
	limiter     *rate.Limiter
	retryPolicy *config.RetryPolicy
}

// modelVerdict is the JSON verdict requested from the model.
type modelVerdict struct {
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (f *GoogleFactChecker) Verify(ctx context.Context, claim string, opts VerifyOptions) (Verification, error) {
	if err := ctx.Err(); err != nil {
		return Verification{}, err
	}

	resp, err := f.generateGrounded(ctx, claim, opts)
	if err != nil {
		return Verification{
			Claim:      claim,
			Confidence: 0,
			Verdict:    VerdictUncertain,
			Error:      fmt.Sprintf("Grounded search failed: %v", err),
		}, nil
	}

	verdict, sources := f.parseResponse(resp, opts)
	if len(sources) == 0 && verdict == nil {
		return Verification{
			Claim:      claim,
			Confidence: 0,
			Verdict:    VerdictUncertain,
			Error:      "No search results returned.",
		}, nil
	}

	// Confidence is the mean of the top-3 source scores; without scored
	// sources the model's own confidence is used.
	confidence := topSourceMean(sources)
	reasoning := ""
	if verdict != nil {
		reasoning = verdict.Reasoning
		if len(sources) == 0 {
			confidence = Clamp01(verdict.Confidence)
		}
	}
	confidence = math.Round(confidence*10000) / 10000

	result := Verification{
		Claim:      claim,
		Confidence: confidence,
		Verdict:    verdictOf(confidence),
		Reasoning:  reasoning,
		Sources:    sources,
	}
	return result, nil
}

func verdictOf(confidence float64) string {
	switch {
	case confidence >= DefaultSupportedThreshold:
		return VerdictSupported
	case confidence <= DefaultContradictedThreshold:
		return VerdictContradicted
	default:
		return VerdictUncertain
	}
}

func topSourceMean(sources []WebSource) float64 {
	if len(sources) == 0 {
		return 0
	}
	count := len(sources)
	if count > topSourceCount {
		count = topSourceCount
	}
	total := 0.0
	for _, source := range sources[:count] {
		total += source.Score
	}
	return total / float64(count)
}

func (f *GoogleFactChecker) generateGrounded(ctx context.Context, claim string, opts VerifyOptions) (*genai.GenerateContentResponse, error) {
	generateConfig := &genai.GenerateContentConfig{
		CandidateCount: 1,
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		},
	}

	prompt := factCheckPrompt(claim, opts)
	contents := []*genai.Content{{Parts: []*genai.Part{genai.NewPartFromText(prompt)}}}

	call := func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		resp, err := f.client.Models.GenerateContent(ctx, f.model, contents, generateConfig)
		if err != nil {
			return nil, WrapErrRetryable(err)
		}
		return resp, nil
	}

	if f.retryPolicy != nil && f.retryPolicy.MaxRetryAttempts > 0 {
		backoff := retry.NewExponential(time.Duration(f.retryPolicy.InitialDelaySeconds) * time.Second)
		backoff = retry.WithMaxRetries(uint64(f.retryPolicy.MaxRetryAttempts), backoff)

		return retry.DoValue(ctx, backoff, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
			resp, err := call(ctx)
			if errors.Is(err, ErrRetryable) {
				return resp, retry.RetryableError(err)
			}
			return resp, err
		})
	}
	return call(ctx)
}

// parseResponse extracts the model's JSON verdict and the grounded sources
// from the response. Either may be absent.
func (f *GoogleFactChecker) parseResponse(resp *genai.GenerateContentResponse, opts VerifyOptions) (*modelVerdict, []WebSource) {
	if resp == nil {
		return nil, nil
	}

	var verdict *modelVerdict
	var sources []WebSource

	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part.Text == "" {
					continue
				}
				repaired, err := utils.RepairTextJSON(part.Text)
				if err != nil {
					continue
				}
				parsed := &modelVerdict{}
				if err := json.Unmarshal([]byte(repaired), parsed); err == nil {
					verdict = parsed
				}
			}
		}
		if candidate.GroundingMetadata != nil {
			sources = append(sources, groundedSources(candidate.GroundingMetadata)...)
		}
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Score > sources[j].Score
	})
	if opts.MaxResults > 0 && len(sources) > opts.MaxResults {
		sources = sources[:opts.MaxResults]
	}
	return verdict, sources
}

// groundedSources converts grounding metadata into scored evidence sources.
// Each chunk's score is the best confidence any support segment assigns to it;
// the snippet is taken from that segment's text.
func groundedSources(metadata *genai.GroundingMetadata) []WebSource {
	type evidence struct {
		score   float64
		snippet string
	}
	best := make(map[int]evidence)

	for _, support := range metadata.GroundingSupports {
		if support == nil || support.Segment == nil {
			continue
		}
		for i, chunkIndex := range support.GroundingChunkIndices {
			score := 0.0
			if i < len(support.ConfidenceScores) {
				score = float64(support.ConfidenceScores[i])
			}
			current, ok := best[int(chunkIndex)]
			if !ok || score > current.score {
				best[int(chunkIndex)] = evidence{
					score:   score,
					snippet: truncateRunes(support.Segment.Text, maxSnippetRunes),
				}
			}
		}
	}

	sources := make([]WebSource, 0, len(metadata.GroundingChunks))
	for i, chunk := range metadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		found := best[i]
		sources = append(sources, WebSource{
			URL:     chunk.Web.URI,
			Title:   chunk.Web.Title,
			Snippet: found.snippet,
			Score:   Clamp01(found.score),
		})
	}
	return sources
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func factCheckPrompt(claim string, opts VerifyOptions) string {
	depth := "Use a quick search pass."
	if strings.EqualFold(opts.SearchDepth, "advanced") {
		depth = "Search thoroughly and cross-check multiple independent sources."
	}
	return fmt.Sprintf(`You are a fact checker. Verify the following claim against current web sources. %s

Claim:
%s

Respond with a single JSON object and nothing else:
{"verdict": "SUPPORTED" | "UNCERTAIN" | "CONTRADICTED", "confidence": <0.0-1.0>, "reasoning": "<one short paragraph>"}`, depth, claim)
}

func (f *GoogleFactChecker) Close(ctx context.Context) error {
	return nil
}
