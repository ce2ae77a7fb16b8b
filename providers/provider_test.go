// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verityhq/truthgate/config"
)

func TestTimed(t *testing.T) {
	var duration time.Duration
	value, err := timed(func() (string, error) {
		time.Sleep(10 * time.Millisecond)
		return "done", nil
	}, &duration)
	require.NoError(t, err)
	assert.Equal(t, "done", value)
	assert.GreaterOrEqual(t, duration, 10*time.Millisecond)
}

func TestRecordUsage(t *testing.T) {
	usage := Usage{}

	input := int64(10)
	output := int64(5)
	recordUsage(&input, &output, &usage)
	require.NotNil(t, usage.InputTokens)
	require.NotNil(t, usage.OutputTokens)
	assert.Equal(t, int64(10), *usage.InputTokens)
	assert.Equal(t, int64(5), *usage.OutputTokens)

	// Accumulates across calls and tolerates missing counts.
	recordUsage[int64](&input, nil, &usage)
	assert.Equal(t, int64(20), *usage.InputTokens)
	assert.Equal(t, int64(5), *usage.OutputTokens)
}

func TestGenerationResultRecordsPrompts(t *testing.T) {
	result := GenerationResult{}
	assert.Equal(t, "first", result.recordPrompt("first"))
	result.recordPrompt("second")
	assert.Equal(t, []string{"first", "second"}, result.GetPrompts())
}

func TestNewGeneratorUnknownProvider(t *testing.T) {
	_, err := NewGenerator(context.Background(), config.ProvidersConfig{}, config.GenerationConfig{Provider: "nonesuch"})
	assert.ErrorIs(t, err, ErrUnknownProviderName)
}

func TestNewGeneratorMissingClientConfig(t *testing.T) {
	for _, provider := range []string{config.OPENAI, config.ANTHROPIC, config.DEEPSEEK} {
		t.Run(provider, func(t *testing.T) {
			_, err := NewGenerator(context.Background(), config.ProvidersConfig{}, config.GenerationConfig{Provider: provider})
			assert.ErrorIs(t, err, ErrMissingClientConfig)
		})
	}
}

func TestNewGeneratorSelectsConfiguredProvider(t *testing.T) {
	cfg := config.ProvidersConfig{
		OpenAI:    &config.OpenAIClientConfig{APIKey: "sk-test"},
		Anthropic: &config.AnthropicClientConfig{APIKey: "ak-test"},
	}

	generator, err := NewGenerator(context.Background(), cfg, config.GenerationConfig{Provider: config.OPENAI, Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, config.OPENAI, generator.Name())

	generator, err = NewGenerator(context.Background(), cfg, config.GenerationConfig{Provider: config.ANTHROPIC, Model: "claude"})
	require.NoError(t, err)
	assert.Equal(t, config.ANTHROPIC, generator.Name())
}
