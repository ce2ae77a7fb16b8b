// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package validation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/verityhq/truthgate/document"
	"github.com/verityhq/truthgate/pkg/logging"
	"github.com/verityhq/truthgate/pkg/utils"
	"github.com/verityhq/truthgate/providers"
	"github.com/verityhq/truthgate/rules"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// maxFoundValueRunes bounds the found_value of text-heavy violations.
const maxFoundValueRunes = 200

var englishPrinter = message.NewPrinter(language.English)

func (e *Engine) evalSchema(doc document.Document, rule *rules.SchemaRule) []Violation {
	compiled, err := utils.CompileSchema(rule.Schema)
	if err != nil {
		return []Violation{{
			RuleName:   rule.Name(),
			Type:       TypeSchema,
			Field:      "unknown",
			Message:    fmt.Sprintf("Schema validation error: %v", err),
			Severity:   rules.SeverityError,
			FoundValue: doc.Value(),
		}}
	}

	instance, err := utils.NormalizeJSONValue(doc.Value())
	if err != nil {
		return []Violation{{
			RuleName:   rule.Name(),
			Type:       TypeSchema,
			Field:      "unknown",
			Message:    fmt.Sprintf("Schema validation error: %v", err),
			Severity:   rules.SeverityError,
			FoundValue: doc.Value(),
		}}
	}

	err = compiled.Validate(instance)
	if err == nil {
		return nil
	}

	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return []Violation{{
			RuleName:   rule.Name(),
			Type:       TypeSchema,
			Field:      "unknown",
			Message:    fmt.Sprintf("Schema validation error: %v", err),
			Severity:   rules.SeverityError,
			FoundValue: doc.Value(),
		}}
	}

	leaf := leafCause(validationErr)
	field := strings.Join(leaf.InstanceLocation, ".")
	if field == "" {
		field = "root"
	}
	found := interface{}(doc.Value())
	if field != "root" {
		found = doc.Get(field).Interface()
	}

	return []Violation{{
		RuleName:   rule.Name(),
		Type:       TypeSchema,
		Field:      field,
		Message:    leaf.ErrorKind.LocalizedString(englishPrinter),
		Severity:   rule.Severity(),
		FoundValue: found,
	}}
}

// leafCause follows the first cause chain down to the most specific error.
func leafCause(err *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(err.Causes) > 0 {
		err = err.Causes[0]
	}
	return err
}

func (e *Engine) evalRange(doc document.Document, rule *rules.RangeRule) []Violation {
	value := doc.Get(rule.Field)
	if !value.Exists() || value.IsNull() {
		return nil
	}

	number, ok := value.Float()
	if !ok {
		return []Violation{{
			RuleName:   rule.Name(),
			Type:       TypeConstraint,
			Field:      rule.Field,
			Message:    fmt.Sprintf("%s must be a number", rule.Field),
			Severity:   rules.SeverityError,
			FoundValue: value.Interface(),
			Expected:   "numeric value",
		}}
	}

	belowMin := rule.Min != nil && number < *rule.Min
	aboveMax := rule.Max != nil && number > *rule.Max
	if !belowMin && !aboveMax {
		return nil
	}

	var msg string
	switch {
	case rule.Min != nil && rule.Max != nil:
		msg = fmt.Sprintf("%s must be between %s and %s", rule.Field, formatNumber(*rule.Min), formatNumber(*rule.Max))
	case rule.Min != nil:
		msg = fmt.Sprintf("%s must be >= %s", rule.Field, formatNumber(*rule.Min))
	default:
		msg = fmt.Sprintf("%s must be <= %s", rule.Field, formatNumber(*rule.Max))
	}

	return []Violation{{
		RuleName:   rule.Name(),
		Type:       TypeConstraint,
		Field:      rule.Field,
		Message:    msg,
		Severity:   rule.Severity(),
		FoundValue: value.Interface(),
		Hint:       rules.RangeHint{Min: rule.Min, Max: rule.Max},
	}}
}

func (e *Engine) evalPattern(doc document.Document, rule *rules.PatternRule) []Violation {
	value := doc.Get(rule.Field)
	if !value.Exists() || value.IsNull() {
		return nil
	}

	text, ok := value.String()
	if !ok {
		return []Violation{{
			RuleName:   rule.Name(),
			Type:       TypeConstraint,
			Field:      rule.Field,
			Message:    fmt.Sprintf("%s must be a string for pattern matching", rule.Field),
			Severity:   rules.SeverityError,
			FoundValue: value.Interface(),
			Expected:   "string",
		}}
	}

	// Anchored at the start of the value, like the usual prefix-match convention.
	compiled, err := regexp.Compile(`\A(?:` + rule.Pattern + `)`)
	if err != nil {
		return []Violation{{
			RuleName:   rule.Name(),
			Type:       TypeConstraint,
			Field:      rule.Field,
			Message:    fmt.Sprintf("Invalid regex pattern: %v", err),
			Severity:   rules.SeverityWarning,
			FoundValue: text,
		}}
	}

	if compiled.MatchString(text) {
		return nil
	}

	msg := rule.Message
	if msg == "" {
		msg = fmt.Sprintf("Value must match pattern: %s", rule.Pattern)
	}
	return []Violation{{
		RuleName:   rule.Name(),
		Type:       TypeConstraint,
		Field:      rule.Field,
		Message:    msg,
		Severity:   rule.Severity(),
		FoundValue: text,
		Expected:   fmt.Sprintf("Pattern: %s", rule.Pattern),
	}}
}

func (e *Engine) evalConstraint(doc document.Document, rule *rules.ConstraintRule) []Violation {
	value := doc.Get(rule.Field)
	if !value.Exists() || value.IsNull() {
		return nil
	}

	satisfied, err := rules.EvalPredicate(rule.Expression, value.Interface())
	if err != nil {
		return []Violation{{
			RuleName:   rule.Name(),
			Type:       TypeConstraint,
			Field:      rule.Field,
			Message:    fmt.Sprintf("Constraint evaluation error: %v", err),
			Severity:   rules.SeverityWarning,
			FoundValue: value.Interface(),
		}}
	}
	if satisfied {
		return nil
	}

	msg := rule.Message
	if msg == "" {
		msg = fmt.Sprintf("Constraint failed: %s", rule.Expression)
	}
	return []Violation{{
		RuleName:   rule.Name(),
		Type:       TypeConstraint,
		Field:      rule.Field,
		Message:    msg,
		Severity:   rule.Severity(),
		FoundValue: value.Interface(),
		Expected:   rule.Expression,
	}}
}

func (e *Engine) evalEnum(doc document.Document, rule *rules.EnumRule) []Violation {
	value := doc.Get(rule.Field)
	if !value.Exists() || value.IsNull() {
		return nil
	}

	text := value.Text()
	for _, option := range rule.ValidOptions {
		if text == option {
			return nil
		}
	}

	return []Violation{{
		RuleName:   rule.Name(),
		Type:       TypeConstraint,
		Field:      rule.Field,
		Message:    fmt.Sprintf("%s must be one of %v", rule.Field, rule.ValidOptions),
		Severity:   rule.Severity(),
		FoundValue: value.Interface(),
		Hint:       rules.OptionsHint{Valid: rule.ValidOptions},
	}}
}

func (e *Engine) evalRequired(doc document.Document, rule *rules.RequiredRule) []Violation {
	value := doc.Get(rule.Field)
	if value.Exists() && !value.IsNull() {
		return nil
	}

	violation := Violation{
		RuleName: rule.Name(),
		Type:     TypeConstraint,
		Field:    rule.Field,
		Message:  fmt.Sprintf("Required field '%s' is missing or null", rule.Field),
		Severity: rule.Severity(),
	}
	if rule.DefaultValue != nil {
		violation.Hint = rules.DefaultHint{Value: rule.DefaultValue}
	}
	return []Violation{violation}
}

func (e *Engine) evalReference(ctx context.Context, doc document.Document, rule *rules.ReferenceRule, evalCtx Context) []Violation {
	value := doc.Get(rule.Field)
	if !value.Exists() || value.IsNull() {
		msg := rule.Message
		if msg == "" {
			msg = fmt.Sprintf("Field '%s' not found in output", rule.Field)
		}
		return []Violation{{
			RuleName: rule.Name(),
			Type:     TypeReference,
			Field:    rule.Field,
			Message:  msg,
			Severity: rule.Severity(),
		}}
	}

	// Tenant scoping never applies to the organizations table itself.
	orgID := evalCtx.OrganizationID
	if rule.Table == "organizations" {
		orgID = ""
	}

	exists, err := e.reference.Exists(ctx, rule.Table, rule.Column, value.Interface(), orgID)
	if err != nil {
		// A failed lookup counts as "does not exist"; the violation is still produced.
		e.logger.Error(ctx, logging.LevelWarn, err, "reference check failed for %s.%s", rule.Table, rule.Column)
		exists = false
	}
	if exists {
		return nil
	}

	msg := rule.Message
	if msg == "" {
		msg = fmt.Sprintf("%s=%v does not exist in %s.%s", rule.Field, value.Interface(), rule.Table, rule.Column)
	}
	return []Violation{{
		RuleName:   rule.Name(),
		Type:       TypeReference,
		Field:      rule.Field,
		Message:    msg,
		Severity:   rule.Severity(),
		FoundValue: value.Interface(),
		Suggestion: fmt.Sprintf("Verify that the %s exists in your database", rule.Field),
	}}
}

func (e *Engine) evalExternalRef(ctx context.Context, doc document.Document, rule *rules.ExternalRefRule) []Violation {
	value := doc.Get(rule.Field)
	if !value.Exists() || value.IsNull() {
		return []Violation{{
			RuleName: rule.Name(),
			Type:     TypeReference,
			Field:    rule.Field,
			Message:  fmt.Sprintf("Field '%s' not found in output", rule.Field),
			Severity: rules.SeverityWarning,
		}}
	}

	if e.connectors == nil {
		return []Violation{{
			RuleName:   rule.Name(),
			Type:       TypeReference,
			Field:      rule.Field,
			Message:    "No connector registry configured; cannot run external reference check",
			Severity:   rules.SeverityWarning,
			FoundValue: value.Interface(),
		}}
	}

	timeout := time.Duration(rule.TimeoutSeconds * float64(time.Second))
	result, err := e.connectors.Check(ctx, rule.Connector, value.Interface(), rule.Params, timeout)
	if err != nil {
		return []Violation{{
			RuleName:   rule.Name(),
			Type:       TypeReference,
			Field:      rule.Field,
			Message:    fmt.Sprintf("External reference check failed: %v", err),
			Severity:   rules.SeverityWarning,
			FoundValue: value.Interface(),
		}}
	}
	if result.Exists {
		return nil
	}

	// Infrastructure failures degrade to a warning; a genuine negative
	// result carries the rule's configured severity.
	severity := rule.Severity()
	if result.Failed {
		severity = rules.SeverityWarning
	}
	return []Violation{{
		RuleName:   rule.Name(),
		Type:       TypeReference,
		Field:      rule.Field,
		Message:    result.Detail,
		Severity:   severity,
		FoundValue: value.Interface(),
	}}
}

func (e *Engine) evalSemantic(ctx context.Context, doc document.Document, rule *rules.SemanticRule, evalCtx Context) []Violation {
	output := doc.Get(rule.OutputField)
	if !output.Exists() || output.IsNull() {
		return []Violation{{
			RuleName: rule.Name(),
			Type:     TypeSemantic,
			Field:    rule.OutputField,
			Message:  fmt.Sprintf("Field '%s' not found in output", rule.OutputField),
			Severity: rules.SeverityWarning,
		}}
	}

	contextValue := evalCtx.Value(rule.ContextField)
	if !contextValue.Exists() || contextValue.IsNull() {
		return []Violation{{
			RuleName:   rule.Name(),
			Type:       TypeSemantic,
			Field:      rule.OutputField,
			Message:    fmt.Sprintf("Context field '%s' not provided; cannot run semantic check", rule.ContextField),
			Severity:   rules.SeverityWarning,
			FoundValue: output.Text(),
		}}
	}

	if e.embedder == nil {
		return []Violation{{
			RuleName:   rule.Name(),
			Type:       TypeSemantic,
			Field:      rule.OutputField,
			Message:    "Semantic validation error: embeddings provider is not configured",
			Severity:   rules.SeverityWarning,
			FoundValue: output.Text(),
		}}
	}

	score, err := e.embedder.Similarity(ctx, output.Text(), contextValue.Text())
	if err != nil {
		return []Violation{{
			RuleName:   rule.Name(),
			Type:       TypeSemantic,
			Field:      rule.OutputField,
			Message:    fmt.Sprintf("Semantic validation error: %v", err),
			Severity:   rules.SeverityWarning,
			FoundValue: output.Text(),
		}}
	}

	alignment := providers.AlignmentOf(score, rule.MinAlignment)
	if !alignment.Contradiction {
		return nil
	}

	return []Violation{{
		RuleName: rule.Name(),
		Type:     TypeSemantic,
		Field:    rule.OutputField,
		Message: fmt.Sprintf("Semantic contradiction detected: %s Output may contradict or ignore the provided '%s'.",
			alignment.Explanation, rule.ContextField),
		Severity:   rule.Severity(),
		FoundValue: truncateText(output.Text(), maxFoundValueRunes),
		Expected:   fmt.Sprintf("Alignment >= %s (got %.4f)", formatNumber(rule.MinAlignment), alignment.Score),
		Suggestion: "Review the output; it may contradict the context.",
	}}
}

func (e *Engine) evalWebVerify(ctx context.Context, doc document.Document, rule *rules.WebVerifyRule) []Violation {
	value := doc.Get(rule.Field)
	if !value.Exists() || value.IsNull() {
		return []Violation{{
			RuleName: rule.Name(),
			Type:     TypeSemantic,
			Field:    rule.Field,
			Message:  fmt.Sprintf("Field '%s' not found in output", rule.Field),
			Severity: rules.SeverityWarning,
		}}
	}

	claim := value.Text()
	if e.factChecker == nil {
		return []Violation{{
			RuleName:   rule.Name(),
			Type:       TypeSemantic,
			Field:      rule.Field,
			Message:    "Web verification is not configured; cannot verify claim",
			Severity:   rules.SeverityWarning,
			FoundValue: truncateText(claim, maxFoundValueRunes),
		}}
	}

	verification, err := e.factChecker.Verify(ctx, claim, providers.VerifyOptions{
		SearchDepth: rule.SearchDepth,
		MaxResults:  rule.MaxResults,
	})
	if err != nil {
		return []Violation{{
			RuleName:   rule.Name(),
			Type:       TypeSemantic,
			Field:      rule.Field,
			Message:    fmt.Sprintf("Web verification error: %v", err),
			Severity:   rules.SeverityWarning,
			FoundValue: truncateText(claim, maxFoundValueRunes),
		}}
	}
	if verification.Error != "" {
		return []Violation{{
			RuleName:   rule.Name(),
			Type:       TypeSemantic,
			Field:      rule.Field,
			Message:    fmt.Sprintf("Web verification failed: %s", verification.Error),
			Severity:   rules.SeverityWarning,
			FoundValue: truncateText(claim, maxFoundValueRunes),
		}}
	}
	if verification.Confidence >= rule.ConfidenceThreshold {
		return nil
	}

	return []Violation{{
		RuleName: rule.Name(),
		Type:     TypeSemantic,
		Field:    rule.Field,
		Message: fmt.Sprintf("Web verification confidence %.4f is below threshold %s (verdict: %s)",
			verification.Confidence, formatNumber(rule.ConfidenceThreshold), verification.Verdict),
		Severity:   rule.Severity(),
		FoundValue: truncateText(claim, maxFoundValueRunes),
		Expected:   fmt.Sprintf("Web confidence >= %s", formatNumber(rule.ConfidenceThreshold)),
		Suggestion: "Cross-check this claim against the cited sources.",
		Sources:    verification.Sources,
	}}
}

func (e *Engine) evalAnomalyML(ctx context.Context, doc document.Document, rule *rules.AnomalyMLRule, evalCtx Context) []Violation {
	orgID := rule.OrgID
	if orgID == "" {
		orgID = evalCtx.OrganizationID
	}
	if orgID == "" {
		return []Violation{{
			RuleName: rule.Name(),
			Type:     TypeStatistical,
			Field:    strings.Join(rule.Fields, ", "),
			Message:  "anomaly_ml rule requires an organization id (rule org_id or context organization_id)",
			Severity: rules.SeverityWarning,
		}}
	}
	if e.anomalies == nil {
		return []Violation{{
			RuleName: rule.Name(),
			Type:     TypeStatistical,
			Field:    strings.Join(rule.Fields, ", "),
			Message:  "Anomaly model registry is not configured",
			Severity: rules.SeverityWarning,
		}}
	}

	score := e.anomalies.ScoreSample(ctx, orgID, doc.Value())

	// An untrained organization never scores anomalous; surface why instead.
	if !score.IsAnomaly {
		if !e.anomalies.IsTrained(orgID) {
			return []Violation{{
				RuleName: rule.Name(),
				Type:     TypeStatistical,
				Field:    strings.Join(rule.Fields, ", "),
				Message:  score.Reason,
				Severity: rules.SeverityWarning,
			}}
		}
		return nil
	}

	return []Violation{{
		RuleName:   rule.Name(),
		Type:       TypeStatistical,
		Field:      strings.Join(rule.Fields, ", "),
		Message:    score.Reason,
		Severity:   rule.Severity(),
		FoundValue: watchedFieldValues(doc, rule.Fields),
		Suggestion: "Compare this document against the organization's recent history",
	}}
}

func watchedFieldValues(doc document.Document, fields []string) map[string]interface{} {
	values := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		values[field] = doc.Get(field).Interface()
	}
	return values
}

func sortedFieldPaths(numericFields map[string]float64) []string {
	return utils.SortedKeys(numericFields)
}

// formatNumber renders a float without trailing zeros, so bounds read the
// way callers wrote them (24, not 24.000000).
func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func truncateText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
