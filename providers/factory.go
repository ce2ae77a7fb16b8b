// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package providers

import (
	"context"
	"fmt"

	"github.com/verityhq/truthgate/config"
)

// NewGenerator creates a document generator based on the given provider
// selection. It returns an error if the provider name is unknown, the
// matching client configuration is absent, or initialization fails.
func NewGenerator(ctx context.Context, cfg config.ProvidersConfig, generation config.GenerationConfig) (Generator, error) {
	switch generation.Provider {
	case config.OPENAI:
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingClientConfig, config.OPENAI)
		}
		return NewOpenAIGenerator(*cfg.OpenAI), nil
	case config.ANTHROPIC:
		if cfg.Anthropic == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingClientConfig, config.ANTHROPIC)
		}
		return NewAnthropicGenerator(*cfg.Anthropic), nil
	case config.DEEPSEEK:
		if cfg.Deepseek == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingClientConfig, config.DEEPSEEK)
		}
		return NewDeepseekGenerator(*cfg.Deepseek)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProviderName, generation.Provider)
}
