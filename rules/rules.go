// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package rules defines the closed set of validation rule kinds, parses
// caller-supplied rule specifications into typed variants, and provides the
// restricted expression evaluator used by constraint rules.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMalformedRule indicates a rule specification that does not parse into its typed variant.
	ErrMalformedRule = errors.New("malformed rule")
	// ErrUnknownRuleKind indicates a rule kind this engine does not recognize.
	ErrUnknownRuleKind = errors.New("unknown rule kind")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Severity classifies how serious a rule violation is.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Weight returns the severity's contribution to the confidence severity score.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityError:
		return 1.0
	case SeverityWarning:
		return 0.5
	case SeverityInfo:
		return 0.1
	default:
		return 1.0
	}
}

// Kind identifies a rule variant.
type Kind string

const (
	KindSchema      Kind = "schema"
	KindRange       Kind = "range"
	KindPattern     Kind = "pattern"
	KindConstraint  Kind = "constraint"
	KindEnum        Kind = "enum"
	KindRequired    Kind = "required"
	KindReference   Kind = "reference"
	KindExternalRef Kind = "external_ref"
	KindSemantic    Kind = "semantic"
	KindWebVerify   Kind = "web_verify"
	KindAnomalyML   Kind = "anomaly_ml"
)

// Rule is one typed validation rule. The concrete type is one of the
// *Rule structs in this package; evaluators dispatch by type switch.
type Rule interface {
	// Name returns the rule's display name used in violations.
	Name() string
	// Kind returns the rule variant.
	Kind() Kind
	// Severity returns the severity a genuine rule failure is reported with.
	Severity() Severity
}

// Meta carries the fields shared by every rule kind.
type Meta struct {
	RuleName     string   `json:"name"`
	RuleSeverity Severity `json:"severity" validate:"omitempty,oneof=error warning info"`
	kind         Kind
}

func (m Meta) Name() string       { return m.RuleName }
func (m Meta) Kind() Kind         { return m.kind }
func (m Meta) Severity() Severity { return m.RuleSeverity }

// SchemaRule validates the whole document against a JSON schema.
type SchemaRule struct {
	Meta
	Schema map[string]interface{} `json:"schema" validate:"required"`
}

// RangeRule checks that a numeric field lies within [Min, Max].
// Either bound may be omitted for a one-sided check.
type RangeRule struct {
	Meta
	Field string   `json:"field" validate:"required"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
}

// PatternRule checks a string field against a regular expression.
type PatternRule struct {
	Meta
	Field   string `json:"field" validate:"required"`
	Pattern string `json:"pattern" validate:"required"`
	Message string `json:"message"`
}

// ConstraintRule evaluates a restricted boolean expression over the field value.
type ConstraintRule struct {
	Meta
	Field      string `json:"field" validate:"required"`
	Expression string `json:"expression" validate:"required"`
	Message    string `json:"message"`
}

// EnumRule checks string membership in a fixed option list.
type EnumRule struct {
	Meta
	Field        string   `json:"field" validate:"required"`
	ValidOptions []string `json:"valid_options" validate:"required,min=1"`
}

// RequiredRule checks that a field is present and not null.
type RequiredRule struct {
	Meta
	Field        string      `json:"field" validate:"required"`
	DefaultValue interface{} `json:"default_value"`
}

// ReferenceRule checks that the field value exists in a database table column.
type ReferenceRule struct {
	Meta
	Field   string `json:"field" validate:"required"`
	Table   string `json:"table" validate:"required"`
	Column  string `json:"column" validate:"required"`
	Message string `json:"message"`
}

// ExternalRefRule checks the field value through a named registered connector.
type ExternalRefRule struct {
	Meta
	Field     string                 `json:"field" validate:"required"`
	Connector string                 `json:"connector" validate:"required"`
	Params    map[string]interface{} `json:"params"`
	// TimeoutSeconds bounds the connector call; zero means the registry default.
	TimeoutSeconds float64 `json:"timeout" validate:"gte=0"`
}

// SemanticRule checks embedding alignment between an output field and a context field.
type SemanticRule struct {
	Meta
	OutputField  string  `json:"output_field" validate:"required"`
	ContextField string  `json:"context_field" validate:"required"`
	MinAlignment float64 `json:"min_alignment" validate:"gte=0,lte=1"`
}

// WebVerifyRule fact-checks the field's text against live web sources.
type WebVerifyRule struct {
	Meta
	Field               string  `json:"field" validate:"required"`
	ConfidenceThreshold float64 `json:"confidence_threshold" validate:"gte=0,lte=1"`
	SearchDepth         string  `json:"search_depth" validate:"omitempty,oneof=basic advanced"`
	MaxResults          int     `json:"max_results" validate:"gte=0,lte=20"`
}

// AnomalyMLRule scores the document's numeric fields with the per-organization model.
type AnomalyMLRule struct {
	Meta
	Fields     []string `json:"fields" validate:"required,min=1"`
	OrgID      string   `json:"org_id"`
	MinSamples int      `json:"min_samples" validate:"gte=0"`
}

// Parse converts a raw rule specification into its typed variant.
// Returns ErrUnknownRuleKind for kinds this engine does not recognize and
// ErrMalformedRule when the specification does not satisfy the variant's contract.
func Parse(spec map[string]interface{}) (Rule, error) {
	encoded, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRule, err)
	}

	kindName, _ := spec["type"].(string)
	kind := Kind(kindName)

	var rule Rule
	switch kind {
	case KindSchema:
		rule = &SchemaRule{}
	case KindRange:
		rule = &RangeRule{}
	case KindPattern:
		rule = &PatternRule{}
	case KindConstraint:
		rule = &ConstraintRule{}
	case KindEnum:
		rule = &EnumRule{}
	case KindRequired:
		rule = &RequiredRule{}
	case KindReference:
		rule = &ReferenceRule{}
	case KindExternalRef:
		rule = &ExternalRefRule{}
	case KindSemantic:
		rule = &SemanticRule{}
	case KindWebVerify:
		rule = &WebVerifyRule{}
	case KindAnomalyML:
		rule = &AnomalyMLRule{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleKind, kindName)
	}

	if err := json.Unmarshal(encoded, rule); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRule, err)
	}

	applyDefaults(rule, kind)

	if err := validate.Struct(rule); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRule, err)
	}
	return rule, nil
}

func applyDefaults(rule Rule, kind Kind) {
	meta := metaOf(rule)
	meta.kind = kind
	if meta.RuleSeverity == "" {
		meta.RuleSeverity = SeverityError
	}
	if meta.RuleName == "" {
		meta.RuleName = string(kind)
	}

	switch typed := rule.(type) {
	case *SemanticRule:
		if typed.MinAlignment == 0 {
			typed.MinAlignment = 0.5
		}
	case *WebVerifyRule:
		if typed.ConfidenceThreshold == 0 {
			typed.ConfidenceThreshold = 0.7
		}
		if typed.SearchDepth == "" {
			typed.SearchDepth = "basic"
		}
		if typed.MaxResults == 0 {
			typed.MaxResults = 5
		}
	}
}

func metaOf(rule Rule) *Meta {
	switch typed := rule.(type) {
	case *SchemaRule:
		return &typed.Meta
	case *RangeRule:
		return &typed.Meta
	case *PatternRule:
		return &typed.Meta
	case *ConstraintRule:
		return &typed.Meta
	case *EnumRule:
		return &typed.Meta
	case *RequiredRule:
		return &typed.Meta
	case *ReferenceRule:
		return &typed.Meta
	case *ExternalRefRule:
		return &typed.Meta
	case *SemanticRule:
		return &typed.Meta
	case *WebVerifyRule:
		return &typed.Meta
	case *AnomalyMLRule:
		return &typed.Meta
	default:
		panic(fmt.Sprintf("unhandled rule type %T", rule))
	}
}
