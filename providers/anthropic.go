// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/invopop/jsonschema"
	"github.com/verityhq/truthgate/config"
	"github.com/verityhq/truthgate/pkg/logging"
)

const documentToolName = "record_document"
const defaultMaxTokens = 2048

// documentPayload is the input shape of the forced response tool.
type documentPayload struct {
	// Document is the generated output as a single JSON object.
	Document map[string]interface{} `json:"document" jsonschema_description:"The generated document as a single JSON object."`
}

// documentToolSchema is a lazily initialized JSON schema for the response tool input.
var documentToolSchema = sync.OnceValue(func() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	return reflector.Reflect(documentPayload{})
})

// NewAnthropicGenerator creates a document generator backed by the Anthropic API.
func NewAnthropicGenerator(cfg config.AnthropicClientConfig) *AnthropicGenerator {
	opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(cfg.APIKey)}
	if cfg.RequestTimeout != nil {
		opts = append(opts, anthropicoption.WithRequestTimeout(*cfg.RequestTimeout))
	}
	return &AnthropicGenerator{
		client: anthropic.NewClient(opts...),
	}
}

// AnthropicGenerator implements the Generator interface for Anthropic models.
type AnthropicGenerator struct {
	client anthropic.Client
}

func (o AnthropicGenerator) Name() string {
	return config.ANTHROPIC
}

func (o *AnthropicGenerator) Generate(ctx context.Context, _ logging.Logger, req GenerationRequest) (result GenerationResult, err error) {
	schema := documentToolSchema()

	request := anthropic.MessageNewParams{
		MaxTokens: defaultMaxTokens,
		Model:     anthropic.Model(req.Model),
		Tools: []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        documentToolName,
					Description: anthropic.String("Record the generated document using well-structured JSON."),
					InputSchema: anthropic.ToolInputSchemaParam{
						Properties: schema.Properties,
						Required:   schema.Required,
					},
				},
			},
		},
		ToolChoice: anthropic.ToolChoiceParamOfTool(documentToolName),
	}

	if config.IsNotBlank(req.SystemPrompt) {
		request.System = []anthropic.TextBlockParam{
			{Text: result.recordPrompt(req.SystemPrompt)},
		}
	}
	if req.MaxTokens != nil {
		request.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		request.Temperature = anthropic.Float(*req.Temperature)
	}

	request.Messages = []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(result.recordPrompt(req.Prompt))),
	}

	resp, err := timed(func() (*anthropic.Message, error) {
		return o.client.Messages.New(ctx, request)
	}, &result.duration)
	if err != nil {
		return result, WrapErrGenerateResponse(err)
	} else if resp == nil {
		return result, fmt.Errorf("%w: %s", ErrEmptyResponse, req.Model)
	}

	recordUsage(&resp.Usage.InputTokens, &resp.Usage.OutputTokens, &result.usage)

	for _, block := range resp.Content {
		switch block := block.AsAny().(type) { //nolint:gocritic
		case anthropic.ToolUseBlock:
			if block.Name != documentToolName {
				continue
			}
			payload := documentPayload{}
			if err := json.Unmarshal(block.Input, &payload); err != nil {
				return result, WrapErrGenerateResponse(err)
			}
			content, err := json.Marshal(payload.Document)
			if err != nil {
				return result, WrapErrGenerateResponse(err)
			}
			result.Content = string(content)
			return result, nil
		case anthropic.TextBlock:
			// Fallback when the model answered in plain text despite the forced tool.
			result.Content += block.Text
		}
	}

	if result.Content == "" {
		return result, fmt.Errorf("%w: %s", ErrEmptyResponse, req.Model)
	}
	return result, nil
}

func (o *AnthropicGenerator) Close(ctx context.Context) error {
	return nil
}
