// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package proxy wraps a document generator with the validation pipeline:
// one call prompts the model, parses its output into a document, validates
// it and, when corrections were applied, returns the repaired output in
// place of the raw model response.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/verityhq/truthgate/config"
	"github.com/verityhq/truthgate/document"
	"github.com/verityhq/truthgate/pkg/logging"
	"github.com/verityhq/truthgate/providers"
	"github.com/verityhq/truthgate/validation"
)

// DefaultOutputField is the key non-JSON model output is wrapped under.
const DefaultOutputField = "content"

// Request describes one generate-and-validate call.
type Request struct {
	// Prompt is the user prompt sent to the model.
	Prompt string
	// SystemPrompt overrides the default JSON-only instruction.
	SystemPrompt string
	// OutputField is the key to wrap non-JSON output under; empty selects
	// DefaultOutputField.
	OutputField string
	// Rules are the rule specifications to validate the output against.
	Rules []map[string]interface{}
	// Context carries the validation options and rule-kind inputs.
	Context map[string]interface{}
}

// Usage is the token accounting of one proxied call.
type Usage struct {
	PromptTokens     *int64 `json:"prompt_tokens,omitempty"`
	CompletionTokens *int64 `json:"completion_tokens,omitempty"`
}

// Result is the outcome of one proxied call. Content reflects corrections
// when auto-correction changed the output; RawContent never does.
type Result struct {
	Content    string                       `json:"content"`
	RawContent string                       `json:"raw_content"`
	Output     map[string]interface{}       `json:"output,omitempty"`
	Validation *validation.ValidationResult `json:"validation,omitempty"`
	Provider   string                       `json:"provider"`
	Model      string                       `json:"model"`
	Usage      Usage                        `json:"usage"`
	LatencyMS  int64                        `json:"latency_ms"`
	Error      string                       `json:"error,omitempty"`
}

// Proxy is a validating front for one document generator.
type Proxy struct {
	generator    providers.Generator
	cfg          config.GenerationConfig
	orchestrator *validation.Orchestrator
	logger       logging.Logger
}

// New creates a proxy over the given generator. A nil orchestrator disables
// validation; the proxy then only parses the model output.
func New(generator providers.Generator, cfg config.GenerationConfig, orchestrator *validation.Orchestrator, logger logging.Logger) *Proxy {
	if logger == nil {
		logger = logging.NoopLogger()
	}
	return &Proxy{
		generator:    generator,
		cfg:          cfg,
		orchestrator: orchestrator,
		logger:       logger.WithContext("proxy: "),
	}
}

// GenerateValidated prompts the model and validates the parsed output.
// Generation failures are reported through the result's Error field.
func (p *Proxy) GenerateValidated(ctx context.Context, request Request) Result {
	start := time.Now()
	result := Result{
		Provider: p.generator.Name(),
		Model:    p.cfg.Model,
	}

	systemPrompt := request.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = providers.DefaultDocumentInstruction
	}

	generated, err := p.generator.Generate(ctx, p.logger, providers.GenerationRequest{
		Model:        p.cfg.Model,
		SystemPrompt: systemPrompt,
		Prompt:       request.Prompt,
		Temperature:  p.cfg.Temperature,
		MaxTokens:    p.cfg.MaxTokens,
	})
	result.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = fmt.Sprintf("LLM call failed: %v", err)
		p.logger.Error(ctx, logging.LevelError, err, "generation failed provider=%s model=%s", result.Provider, result.Model)
		return result
	}

	usage := generated.GetUsage()
	result.Usage = Usage{PromptTokens: usage.InputTokens, CompletionTokens: usage.OutputTokens}
	result.RawContent = generated.Content
	result.Content = generated.Content

	outputField := request.OutputField
	if outputField == "" {
		outputField = DefaultOutputField
	}
	doc := parseOutput(generated.Content, outputField)
	result.Output = doc.Value()

	if p.orchestrator != nil {
		verdict := p.orchestrator.Validate(ctx, doc, request.Rules, request.Context)
		result.Validation = &verdict

		if verdict.AutoCorrected && verdict.CorrectedOutput != nil {
			result.Output = verdict.CorrectedOutput
			result.Content = renderOutput(verdict.CorrectedOutput, outputField)
		}
	}

	result.LatencyMS = time.Since(start).Milliseconds()
	return result
}

// parseOutput turns model output into a document. Content that cannot be
// recovered as a JSON object is wrapped under the output field, so free-text
// responses still flow through validation.
func parseOutput(content string, outputField string) document.Document {
	doc, err := document.Parse(content)
	if err == nil {
		return doc
	}
	wrapped, err := document.FromValue(map[string]interface{}{outputField: strings.TrimSpace(content)})
	if err != nil {
		return document.New()
	}
	return wrapped
}

// renderOutput serializes a corrected output back into response content.
// A single wrapped field renders as its bare value.
func renderOutput(output map[string]interface{}, outputField string) string {
	if len(output) == 1 {
		if value, ok := output[outputField]; ok {
			return fmt.Sprintf("%v", value)
		}
	}
	encoded, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(encoded)
}
