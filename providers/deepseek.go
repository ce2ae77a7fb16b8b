// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package providers

import (
	"context"
	"fmt"

	deepseek "github.com/cohesion-org/deepseek-go"
	"github.com/verityhq/truthgate/config"
	"github.com/verityhq/truthgate/pkg/logging"
)

// NewDeepseekGenerator creates a document generator backed by the DeepSeek API.
func NewDeepseekGenerator(cfg config.DeepseekClientConfig) (*DeepseekGenerator, error) {
	opts := make([]deepseek.Option, 0)
	if cfg.RequestTimeout != nil {
		opts = append(opts, deepseek.WithTimeout(*cfg.RequestTimeout))
	}
	client, err := deepseek.NewClientWithOptions(cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateClient, err)
	}
	return &DeepseekGenerator{
		client: client,
	}, nil
}

// DeepseekGenerator implements the Generator interface for DeepSeek models.
type DeepseekGenerator struct {
	client *deepseek.Client
}

func (o DeepseekGenerator) Name() string {
	return config.DEEPSEEK
}

func (o *DeepseekGenerator) Generate(ctx context.Context, _ logging.Logger, req GenerationRequest) (result GenerationResult, err error) {
	messages := make([]deepseek.ChatCompletionMessage, 0, 3)
	if config.IsNotBlank(req.SystemPrompt) {
		messages = append(messages, deepseek.ChatCompletionMessage{
			Role:    deepseek.ChatMessageRoleSystem,
			Content: result.recordPrompt(req.SystemPrompt),
		})
	}
	messages = append(messages,
		deepseek.ChatCompletionMessage{
			Role:    deepseek.ChatMessageRoleSystem,
			Content: result.recordPrompt(DefaultDocumentInstruction), // NOTE: required with JSONMode
		},
		deepseek.ChatCompletionMessage{
			Role:    deepseek.ChatMessageRoleUser,
			Content: result.recordPrompt(req.Prompt),
		},
	)

	request := &deepseek.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		JSONMode: true,
	}
	if req.Temperature != nil {
		request.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		request.MaxTokens = int(*req.MaxTokens)
	}

	resp, err := timed(func() (*deepseek.ChatCompletionResponse, error) {
		return o.client.CreateChatCompletion(ctx, request)
	}, &result.duration)
	if err != nil {
		return result, WrapErrGenerateResponse(err)
	}

	if resp != nil {
		recordUsage(&resp.Usage.PromptTokens, &resp.Usage.CompletionTokens, &result.usage)
		if len(resp.Choices) > 0 {
			result.Content = resp.Choices[0].Message.Content
		}
	}
	if result.Content == "" {
		return result, fmt.Errorf("%w: %s", ErrEmptyResponse, req.Model)
	}
	return result, nil
}

func (o *DeepseekGenerator) Close(ctx context.Context) error {
	return nil
}
