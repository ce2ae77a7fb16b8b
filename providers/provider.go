// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package providers implements the AI model service connectors used by
// TruthGate: document generators for the proxy, the embedding-based
// semantic comparator, and the search-grounded fact checker.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/verityhq/truthgate/pkg/logging"
	"golang.org/x/exp/constraints"
)

var (
	// ErrUnknownProviderName is returned when provider name is not recognized.
	ErrUnknownProviderName = errors.New("unknown provider name")
	// ErrMissingClientConfig is returned when the selected provider has no client configuration.
	ErrMissingClientConfig = errors.New("missing client configuration for provider")
	// ErrCreateClient is returned when provider client initialization fails.
	ErrCreateClient = errors.New("failed to create client")
	// ErrCompileSchema is returned when response schema compilation fails.
	ErrCompileSchema = errors.New("failed to compile response schema")
	// ErrGenerateResponse is returned when response generation fails.
	ErrGenerateResponse = errors.New("failed to generate response")
	// ErrEmptyResponse is returned when the model produced no usable content.
	ErrEmptyResponse = errors.New("model returned no content")
	// ErrRetryable is returned when an operation can be retried.
	ErrRetryable = errors.New("retryable error")
)

// Generator produces one document from a prompt using an AI model service.
type Generator interface {
	// Name returns the provider's unique identifier.
	Name() string
	// Generate executes a completion request and returns the raw model output.
	Generate(ctx context.Context, logger logging.Logger, request GenerationRequest) (GenerationResult, error)
	// Close releases resources when the generator is no longer needed.
	Close(ctx context.Context) error
}

// Embedder measures semantic similarity between two texts.
type Embedder interface {
	// Similarity returns the cosine similarity of the two texts clamped to [0, 1].
	Similarity(ctx context.Context, outputText string, contextText string) (float64, error)
}

// GenerationRequest describes one completion request to a Generator.
type GenerationRequest struct {
	// Model is the model identifier to use.
	Model string
	// SystemPrompt is an optional system instruction.
	SystemPrompt string
	// Prompt is the user prompt.
	Prompt string
	// Temperature controls randomness if supported by the provider.
	Temperature *float64
	// MaxTokens limits the response length if supported by the provider.
	MaxTokens *int64
}

// Usage represents the token usage statistics for a response.
type Usage struct {
	InputTokens  *int64 `json:"-"` // Tokens used by the input if available.
	OutputTokens *int64 `json:"-"` // Tokens used by the output if available.
}

// GenerationResult represents the raw response received from an AI model.
type GenerationResult struct {
	// Content is the raw response text before any parsing or correction.
	Content  string
	duration time.Duration // Time to generate the response.
	prompts  []string      // Prompts used to generate the response.
	usage    Usage         // Token usage statistics.
}

// GetDuration returns the time duration it took to generate this result.
func (r GenerationResult) GetDuration() time.Duration {
	return r.duration
}

// GetPrompts returns the prompts used to generate this result.
func (r GenerationResult) GetPrompts() []string {
	return r.prompts
}

// GetUsage returns the token usage statistics for this result.
func (r GenerationResult) GetUsage() Usage {
	return r.usage
}

func (r *GenerationResult) recordPrompt(prompt string) string {
	r.prompts = append(r.prompts, prompt)
	return prompt
}

// WrapErrRetryable wraps an error as retryable, preserving the original error chain.
func WrapErrRetryable(err error) error {
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}

// WrapErrGenerateResponse wraps an error as a generate response error, preserving the original error chain.
func WrapErrGenerateResponse(err error) error {
	return fmt.Errorf("%w: %w", ErrGenerateResponse, err)
}

func timed[T any](f func() (T, error), out *time.Duration) (response T, err error) {
	start := time.Now()
	response, err = f()
	*out = time.Since(start)
	return
}

func recordUsage[T constraints.Signed](inputTokens *T, outputTokens *T, out *Usage) {
	addIfNotNil(&out.InputTokens, inputTokens)
	addIfNotNil(&out.OutputTokens, outputTokens)
}

func addIfNotNil[D ~int64, S constraints.Signed](dst **D, src *S) {
	if src != nil {
		if *dst == nil {
			*dst = new(D)
		}
		**dst += D(*src)
	}
}

// DefaultDocumentInstruction is the system instruction asking a model to
// respond with a single JSON object, so the proxy can parse and validate it.
const DefaultDocumentInstruction = "Respond with a single JSON object and nothing else. Do not wrap the JSON in markdown fences or add commentary."
