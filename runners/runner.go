// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package runners provides interfaces and implementations for executing batches
// of validation requests and collecting their results.
package runners

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/verityhq/truthgate/config"
	"github.com/verityhq/truthgate/validation"
)

// Passed indicates that the document satisfied every rule.
// Warned indicates that the document produced warnings but no errors.
// Failed indicates that the document violated at least one error-severity rule.
// Errored indicates that the request could not be validated at all.
const (
	Passed ResultKind = iota
	Warned
	Failed
	Errored
)

const runResultIDPrefix = "run"

var validIDCharMatcher = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// ResultKind represents the request execution result status.
type ResultKind int

// KindOf maps an overall validation verdict to its result kind.
func KindOf(status validation.Status) ResultKind {
	switch status {
	case validation.StatusPassed:
		return Passed
	case validation.StatusWarning:
		return Warned
	default:
		return Failed
	}
}

// Runner executes validation requests against the configured pipeline.
type Runner interface {
	// Run executes all given requests and returns when done.
	Run(ctx context.Context, requests []config.ValidationRequest) error
	// GetResults returns the results from the last Run call.
	GetResults() Results
	// Close releases resources when the runner is no longer needed.
	Close(ctx context.Context)
}

// Results stores the outcome of every executed request.
type Results []RunResult

// ByKind organizes results by result kind.
func (r Results) ByKind() map[ResultKind][]RunResult {
	resultsByKind := make(map[ResultKind][]RunResult)
	for _, result := range r {
		resultsByKind[result.Kind] = append(resultsByKind[result.Kind], result)
	}
	return resultsByKind
}

// ByRequest organizes results by request name.
func (r Results) ByRequest() map[string][]RunResult {
	resultsByRequest := make(map[string][]RunResult)
	for _, result := range r {
		resultsByRequest[result.Request] = append(resultsByRequest[result.Request], result)
	}
	return resultsByRequest
}

// HasFailures reports whether any request failed validation or errored.
func (r Results) HasFailures() bool {
	for _, result := range r {
		if result.Kind == Failed || result.Kind == Errored {
			return true
		}
	}
	return false
}

// RunResult represents the outcome of executing a single validation request.
type RunResult struct {
	// Kind indicates the result status.
	Kind ResultKind
	// Request is the name of the executed request.
	Request string
	// Document is the canonical JSON of the document under validation.
	Document string
	// Outcome is the full validation verdict for the request.
	Outcome validation.ValidationResult
	// Details contains the failure description when the request errored.
	Details string
	// Duration represents the time taken to validate the request.
	Duration time.Duration
}

// GetID generates a unique, sanitized identifier for the RunResult.
// The ID must be non-empty, must not contain whitespace, must begin with a letter,
// and must only include letters, digits, dashes (-), and underscores (_).
func (r RunResult) GetID() (sanitizedRequestID string) {
	uniqueRequestID := fmt.Sprintf("%s-%s", runResultIDPrefix, r.Request)
	sanitizedRequestID = strings.ReplaceAll(uniqueRequestID, " ", "-")
	sanitizedRequestID = validIDCharMatcher.ReplaceAllString(sanitizedRequestID, "_")
	return sanitizedRequestID
}
