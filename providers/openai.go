// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
	"github.com/verityhq/truthgate/config"
	"github.com/verityhq/truthgate/pkg/logging"
)

// NewOpenAIGenerator creates a document generator backed by the OpenAI API.
func NewOpenAIGenerator(cfg config.OpenAIClientConfig) *OpenAIGenerator {
	return &OpenAIGenerator{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithMaxRetries(0), // disable SDK retries since TruthGate has its own retry policy
		),
	}
}

// OpenAIGenerator implements the Generator interface for OpenAI models.
type OpenAIGenerator struct {
	client openai.Client
}

func (o OpenAIGenerator) Name() string {
	return config.OPENAI
}

func (o *OpenAIGenerator) Generate(ctx context.Context, _ logging.Logger, req GenerationRequest) (result GenerationResult, err error) {
	request := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{},
		N:        param.NewOpt(int64(1)), // generate only one candidate response
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	if config.IsNotBlank(req.SystemPrompt) {
		request.Messages = append(request.Messages, openai.SystemMessage(result.recordPrompt(req.SystemPrompt)))
	}
	request.Messages = append(request.Messages,
		openai.SystemMessage(result.recordPrompt(DefaultDocumentInstruction)),
		openai.UserMessage(result.recordPrompt(req.Prompt)),
	)

	if req.Temperature != nil {
		request.Temperature = param.NewOpt(*req.Temperature)
	}
	if req.MaxTokens != nil {
		request.MaxCompletionTokens = param.NewOpt(*req.MaxTokens)
	}

	resp, err := timed(func() (*openai.ChatCompletion, error) {
		response, err := o.client.Chat.Completions.New(ctx, request)
		if err != nil && o.isTransientResponse(err) {
			return response, WrapErrRetryable(err)
		}
		return response, err
	}, &result.duration)
	if err != nil {
		return result, WrapErrGenerateResponse(err)
	}

	recordUsage(&resp.Usage.PromptTokens, &resp.Usage.CompletionTokens, &result.usage)
	for _, candidate := range resp.Choices {
		if candidate.Message.Content != "" {
			result.Content = candidate.Message.Content
			return result, nil
		}
	}
	return result, fmt.Errorf("%w: %s", ErrEmptyResponse, req.Model)
}

func (o *OpenAIGenerator) isTransientResponse(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return slices.Contains([]int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusServiceUnavailable,
		}, apiErr.StatusCode)
	}
	return false
}

func (o *OpenAIGenerator) Close(ctx context.Context) error {
	return nil
}
