// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package config contains the data models representing the structure of
// configuration and validation request files for the TruthGate application.
// It handles loading and validation of application settings, provider
// credentials and batch request definitions from YAML files.
package config

import (
	"errors"
	"time"

	"github.com/verityhq/truthgate/stats"
)

const (
	// OPENAI identifies the OpenAI provider.
	OPENAI string = "openai"
	// GOOGLE identifies the Google AI provider.
	GOOGLE string = "google"
	// ANTHROPIC identifies the Anthropic provider.
	ANTHROPIC string = "anthropic"
	// DEEPSEEK identifies the DeepSeek provider.
	DEEPSEEK string = "deepseek"
)

// ErrInvalidConfigProperty indicates invalid configuration.
var ErrInvalidConfigProperty = errors.New("invalid configuration property")

// Config represents the top-level configuration structure.
type Config struct {
	// Config contains application-wide settings.
	Config AppConfig `yaml:"config" validate:"required"`
}

// AppConfig represents application-wide settings.
type AppConfig struct {
	// LogFile is an optional path to a log output file.
	LogFile string `yaml:"log-file" validate:"omitempty,filepath"`

	// OutputDir is the directory where validation reports will be written.
	OutputDir string `yaml:"output-dir" validate:"required"`

	// OutputBaseName is an optional base name pattern for report files.
	OutputBaseName string `yaml:"output-basename" validate:"omitempty,filepath"`

	// RequestSource is the path to the batch validation request file.
	RequestSource string `yaml:"request-source" validate:"required,filepath"`

	// ModelStoreDir is the directory for persisted anomaly models.
	// Empty disables persistence.
	ModelStoreDir string `yaml:"model-store-dir" validate:"omitempty"`

	// Validation tunes the evaluator thresholds; zero values use defaults.
	Validation ValidationConfig `yaml:"validation" validate:"omitempty"`

	// Providers configures external AI service credentials and models.
	Providers ProvidersConfig `yaml:"providers" validate:"omitempty"`
}

// ValidationConfig tunes the statistical and anomaly evaluators.
type ValidationConfig struct {
	// ZScoreThreshold overrides the z-score outlier threshold (default 3.0).
	ZScoreThreshold *float64 `yaml:"z-score-threshold" validate:"omitempty,gt=0"`

	// IQRMultiplier overrides the IQR fence multiplier (default 1.5).
	IQRMultiplier *float64 `yaml:"iqr-multiplier" validate:"omitempty,gt=0"`

	// DriftThreshold overrides the metric drift threshold (default 0.2).
	DriftThreshold *float64 `yaml:"drift-threshold" validate:"omitempty,gt=0"`

	// Contamination overrides the assumed anomalous training fraction (default 0.05).
	Contamination *float64 `yaml:"contamination" validate:"omitempty,gt=0,lt=1"`

	// Heuristics overrides the built-in suspicious-pattern heuristics.
	Heuristics *stats.Heuristics `yaml:"heuristics" validate:"omitempty"`
}

// ProvidersConfig configures the external AI service clients.
type ProvidersConfig struct {
	// OpenAI holds OpenAI client settings, also used for embeddings.
	OpenAI *OpenAIClientConfig `yaml:"openai" validate:"omitempty"`

	// GoogleAI holds Google AI client settings, used for web fact-checking.
	GoogleAI *GoogleAIClientConfig `yaml:"google" validate:"omitempty"`

	// Anthropic holds Anthropic client settings.
	Anthropic *AnthropicClientConfig `yaml:"anthropic" validate:"omitempty"`

	// Deepseek holds DeepSeek client settings.
	Deepseek *DeepseekClientConfig `yaml:"deepseek" validate:"omitempty"`

	// Embeddings configures the semantic-similarity embedder.
	Embeddings *EmbeddingsConfig `yaml:"embeddings" validate:"omitempty"`

	// FactCheck configures the search-grounded claim verifier.
	FactCheck *FactCheckConfig `yaml:"fact-check" validate:"omitempty"`

	// Generation configures the generate-and-validate proxy.
	Generation *GenerationConfig `yaml:"generation" validate:"omitempty"`
}

// OpenAIClientConfig represents OpenAI client settings.
type OpenAIClientConfig struct {
	// APIKey is the API key for the OpenAI provider.
	APIKey string `yaml:"api-key" validate:"required"`
}

// GoogleAIClientConfig represents Google AI client settings.
type GoogleAIClientConfig struct {
	// APIKey is the API key for the Google AI generative models provider.
	APIKey string `yaml:"api-key" validate:"required"`
}

// AnthropicClientConfig represents Anthropic client settings.
type AnthropicClientConfig struct {
	// APIKey is the API key for the Anthropic generative models provider.
	APIKey string `yaml:"api-key" validate:"required"`
	// RequestTimeout specifies the timeout for API requests.
	RequestTimeout *time.Duration `yaml:"request-timeout" validate:"omitempty"`
}

// DeepseekClientConfig represents DeepSeek client settings.
type DeepseekClientConfig struct {
	// APIKey is the API key for the DeepSeek generative models provider.
	APIKey string `yaml:"api-key" validate:"required"`
	// RequestTimeout specifies the timeout for API requests.
	RequestTimeout *time.Duration `yaml:"request-timeout" validate:"omitempty"`
}

// EmbeddingsConfig configures the embedding model for semantic rules.
type EmbeddingsConfig struct {
	// Model is the embedding model identifier.
	Model string `yaml:"model" validate:"omitempty"`
}

// FactCheckConfig configures the search-grounded fact checker.
type FactCheckConfig struct {
	// Model is the generative model used for grounded verification.
	Model string `yaml:"model" validate:"omitempty"`

	// MaxRequestsPerMinute limits the number of verification requests per minute.
	// Value of 0 means no rate limit will be applied.
	MaxRequestsPerMinute int `yaml:"max-requests-per-minute" validate:"omitempty,numeric,min=0"`

	// RetryPolicy defines retry behavior for transient verification failures.
	RetryPolicy *RetryPolicy `yaml:"retry-policy" validate:"omitempty"`
}

// GenerationConfig configures the generate-and-validate proxy.
type GenerationConfig struct {
	// Provider selects which configured client generates documents.
	Provider string `yaml:"provider" validate:"required,oneof=openai anthropic deepseek"`

	// Model is the generative model identifier.
	Model string `yaml:"model" validate:"required"`

	// Temperature controls randomness in generation if supported.
	Temperature *float64 `yaml:"temperature" validate:"omitempty,min=0,max=2"`

	// MaxTokens limits the length of the generated response.
	MaxTokens *int64 `yaml:"max-tokens" validate:"omitempty,gt=0"`
}

// RetryPolicy defines the retry behavior for transient API call failures.
type RetryPolicy struct {
	// MaxRetryAttempts specifies the maximum number of retry attempts.
	// Value of 0 means no retry attempts will be made.
	MaxRetryAttempts uint `yaml:"max-retry-attempts" validate:"omitempty,min=0"`

	// InitialDelaySeconds specifies the initial delay in seconds before the first retry attempt.
	InitialDelaySeconds int `yaml:"initial-delay-seconds" validate:"omitempty,gt=0"`
}
