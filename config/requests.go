// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package config

// Requests represents the top-level structure of a batch request file.
type Requests struct {
	// RequestConfig contains the validation request definitions.
	RequestConfig RequestConfig `yaml:"request-config" validate:"required"`
}

// RequestConfig holds the list of validation requests to execute.
type RequestConfig struct {
	// Requests are the validation requests to run.
	Requests []ValidationRequest `yaml:"requests" validate:"required,dive"`
}

// ValidationRequest describes one document to validate together with the
// rules to apply and the request-scoped context.
type ValidationRequest struct {
	// Name identifies the request in reports and logs.
	Name string `yaml:"name" validate:"required"`

	// Document is the AI-generated output under test.
	Document map[string]interface{} `yaml:"document" validate:"required"`

	// Rules are the rule specifications to evaluate, one map per rule.
	Rules []map[string]interface{} `yaml:"rules" validate:"required"`

	// Context carries request-scoped settings such as auto_correct,
	// detect_anomalies, organization_id and rule-kind-specific inputs.
	Context map[string]interface{} `yaml:"context" validate:"omitempty"`

	// Disabled excludes the request from the batch run when true.
	Disabled *bool `yaml:"disabled" validate:"omitempty"`
}

// IsEnabled reports whether the request should be executed.
func (r ValidationRequest) IsEnabled() bool {
	return r.Disabled == nil || !*r.Disabled
}

// GetEnabledRequests returns only the requests that are not disabled.
func (c RequestConfig) GetEnabledRequests() []ValidationRequest {
	enabled := make([]ValidationRequest, 0, len(c.Requests))
	for _, request := range c.Requests {
		if request.IsEnabled() {
			enabled = append(enabled, request)
		}
	}
	return enabled
}
