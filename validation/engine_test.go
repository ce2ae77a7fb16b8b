// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package validation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verityhq/truthgate/anomaly"
	"github.com/verityhq/truthgate/connectors"
	"github.com/verityhq/truthgate/document"
	"github.com/verityhq/truthgate/pkg/testutils"
	"github.com/verityhq/truthgate/providers"
	"github.com/verityhq/truthgate/rules"
	"github.com/verityhq/truthgate/validation"
)

type fakeReference struct {
	exists   bool
	err      error
	gotTable string
	gotOrgID string
}

func (f *fakeReference) Exists(ctx context.Context, table string, column string, value interface{}, orgID string) (bool, error) {
	f.gotTable = table
	f.gotOrgID = orgID
	return f.exists, f.err
}

type fakeEmbedder struct {
	score float64
	err   error
}

func (f *fakeEmbedder) Similarity(ctx context.Context, outputText string, contextText string) (float64, error) {
	return f.score, f.err
}

type fakeFactChecker struct {
	verification providers.Verification
	err          error
}

func (f *fakeFactChecker) Verify(ctx context.Context, claim string, opts providers.VerifyOptions) (providers.Verification, error) {
	return f.verification, f.err
}

type fakeSamples struct {
	history []float64
	err     error
}

func (f *fakeSamples) FieldHistory(ctx context.Context, orgID string, field string, days int) ([]float64, error) {
	return f.history, f.err
}

func newEngine(t *testing.T, cfg validation.EngineConfig) *validation.Engine {
	t.Helper()
	return validation.NewEngine(cfg, testutils.NewTestLogger(t))
}

func parseTestDocument(t *testing.T, content string) document.Document {
	t.Helper()
	doc, err := document.Parse(content)
	require.NoError(t, err)
	return doc
}

func evaluate(t *testing.T, engine *validation.Engine, doc document.Document, specs []map[string]interface{}, rawContext map[string]interface{}) []validation.Violation {
	t.Helper()
	ctx := context.Background()
	parsed := engine.ParseRules(ctx, specs)
	evalCtx := validation.NewContext(rawContext)
	violations := engine.EvaluateSchema(doc, parsed)
	violations = append(violations, engine.EvaluateRules(ctx, doc, parsed, evalCtx)...)
	violations = append(violations, engine.EvaluateReferences(ctx, doc, parsed, evalCtx)...)
	return violations
}

func TestParseRulesDropsUnknownKinds(t *testing.T) {
	engine := newEngine(t, validation.EngineConfig{})
	parsed := engine.ParseRules(context.Background(), []map[string]interface{}{
		{"type": "telepathy", "field": "city"},
		{"type": "required", "field": "city"},
	})
	require.Len(t, parsed, 1)
	assert.NoError(t, parsed[0].Err)
	assert.Equal(t, rules.KindRequired, parsed[0].Rule.Kind())
}

func TestEvaluateRulesReportsMalformedRule(t *testing.T) {
	engine := newEngine(t, validation.EngineConfig{})
	doc := parseTestDocument(t, `{"hours": 5}`)

	violations := evaluate(t, engine, doc, []map[string]interface{}{
		{"type": "range", "name": "broken_range"},
	}, nil)

	require.Len(t, violations, 1)
	assert.Equal(t, "broken_range", violations[0].RuleName)
	assert.Equal(t, rules.SeverityWarning, violations[0].Severity)
	assert.Contains(t, violations[0].Message, "Rule parsing error:")
}

func TestEvaluateRangeRule(t *testing.T) {
	engine := newEngine(t, validation.EngineConfig{})
	spec := map[string]interface{}{"type": "range", "field": "hours", "min": 0, "max": 24}

	t.Run("within range", func(t *testing.T) {
		violations := evaluate(t, engine, parseTestDocument(t, `{"hours": 12}`), []map[string]interface{}{spec}, nil)
		assert.Empty(t, violations)
	})

	t.Run("above maximum", func(t *testing.T) {
		violations := evaluate(t, engine, parseTestDocument(t, `{"hours": 30}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "hours must be between 0 and 24", violations[0].Message)
		assert.Equal(t, validation.TypeConstraint, violations[0].Type)
		assert.Equal(t, rules.SeverityError, violations[0].Severity)
		assert.Equal(t, map[string]interface{}{"min": 0.0, "max": 24.0}, violations[0].ExpectedValue())
	})

	t.Run("one-sided minimum", func(t *testing.T) {
		violations := evaluate(t, engine, parseTestDocument(t, `{"hours": -1}`),
			[]map[string]interface{}{{"type": "range", "field": "hours", "min": 0}}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "hours must be >= 0", violations[0].Message)
	})

	t.Run("non-numeric value", func(t *testing.T) {
		violations := evaluate(t, engine, parseTestDocument(t, `{"hours": "noon"}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "hours must be a number", violations[0].Message)
		assert.Equal(t, "numeric value", violations[0].ExpectedValue())
	})

	t.Run("numeric string coerces", func(t *testing.T) {
		violations := evaluate(t, engine, parseTestDocument(t, `{"hours": "30"}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "hours must be between 0 and 24", violations[0].Message)
	})

	t.Run("missing field is skipped", func(t *testing.T) {
		violations := evaluate(t, engine, parseTestDocument(t, `{"city": "Cairo"}`), []map[string]interface{}{spec}, nil)
		assert.Empty(t, violations)
	})

	t.Run("null field is skipped", func(t *testing.T) {
		violations := evaluate(t, engine, parseTestDocument(t, `{"hours": null}`), []map[string]interface{}{spec}, nil)
		assert.Empty(t, violations)
	})
}

func TestEvaluatePatternRule(t *testing.T) {
	engine := newEngine(t, validation.EngineConfig{})
	spec := map[string]interface{}{"type": "pattern", "field": "time", "pattern": `\d{2}:\d{2}`}

	t.Run("match at start", func(t *testing.T) {
		violations := evaluate(t, engine, parseTestDocument(t, `{"time": "05:10"}`), []map[string]interface{}{spec}, nil)
		assert.Empty(t, violations)
	})

	t.Run("anchored at start of value", func(t *testing.T) {
		violations := evaluate(t, engine, parseTestDocument(t, `{"time": "at 05:10"}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, `Value must match pattern: \d{2}:\d{2}`, violations[0].Message)
		assert.Equal(t, `Pattern: \d{2}:\d{2}`, violations[0].ExpectedValue())
	})

	t.Run("custom message", func(t *testing.T) {
		withMessage := map[string]interface{}{
			"type": "pattern", "field": "time", "pattern": `\d{2}:\d{2}`, "message": "time must look like HH:MM",
		}
		violations := evaluate(t, engine, parseTestDocument(t, `{"time": "soon"}`), []map[string]interface{}{withMessage}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "time must look like HH:MM", violations[0].Message)
	})

	t.Run("non-string value", func(t *testing.T) {
		violations := evaluate(t, engine, parseTestDocument(t, `{"time": 510}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "time must be a string for pattern matching", violations[0].Message)
		assert.Equal(t, rules.SeverityError, violations[0].Severity)
	})

	t.Run("invalid regex degrades to warning", func(t *testing.T) {
		broken := map[string]interface{}{"type": "pattern", "field": "time", "pattern": `([`}
		violations := evaluate(t, engine, parseTestDocument(t, `{"time": "05:10"}`), []map[string]interface{}{broken}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, rules.SeverityWarning, violations[0].Severity)
		assert.Contains(t, violations[0].Message, "Invalid regex pattern:")
	})
}

func TestEvaluateConstraintRule(t *testing.T) {
	engine := newEngine(t, validation.EngineConfig{})

	t.Run("satisfied constraint", func(t *testing.T) {
		spec := map[string]interface{}{"type": "constraint", "field": "hours", "expression": "value >= 0 and value <= 24"}
		violations := evaluate(t, engine, parseTestDocument(t, `{"hours": 12}`), []map[string]interface{}{spec}, nil)
		assert.Empty(t, violations)
	})

	t.Run("failed constraint with default message", func(t *testing.T) {
		spec := map[string]interface{}{"type": "constraint", "field": "hours", "expression": "value <= 24"}
		violations := evaluate(t, engine, parseTestDocument(t, `{"hours": 30}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "Constraint failed: value <= 24", violations[0].Message)
		assert.Equal(t, "value <= 24", violations[0].ExpectedValue())
		assert.Equal(t, rules.SeverityError, violations[0].Severity)
	})

	t.Run("failed constraint with custom message", func(t *testing.T) {
		spec := map[string]interface{}{
			"type": "constraint", "field": "hours", "expression": "value <= 24",
			"message": "a day has at most 24 hours", "severity": "warning",
		}
		violations := evaluate(t, engine, parseTestDocument(t, `{"hours": 30}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "a day has at most 24 hours", violations[0].Message)
		assert.Equal(t, rules.SeverityWarning, violations[0].Severity)
	})

	t.Run("evaluation error degrades to warning", func(t *testing.T) {
		spec := map[string]interface{}{"type": "constraint", "field": "name", "expression": "value / 2 > 1"}
		violations := evaluate(t, engine, parseTestDocument(t, `{"name": "Fajr"}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, rules.SeverityWarning, violations[0].Severity)
		assert.Contains(t, violations[0].Message, "Constraint evaluation error:")
	})

	t.Run("missing field is skipped", func(t *testing.T) {
		spec := map[string]interface{}{"type": "constraint", "field": "hours", "expression": "value <= 24"}
		violations := evaluate(t, engine, parseTestDocument(t, `{"city": "Cairo"}`), []map[string]interface{}{spec}, nil)
		assert.Empty(t, violations)
	})
}

func TestEvaluateEnumRule(t *testing.T) {
	engine := newEngine(t, validation.EngineConfig{})
	spec := map[string]interface{}{
		"type": "enum", "field": "madhab",
		"valid_options": []string{"Hanafi", "Maliki", "Shafii", "Hanbali"},
	}

	t.Run("valid option", func(t *testing.T) {
		violations := evaluate(t, engine, parseTestDocument(t, `{"madhab": "Hanafi"}`), []map[string]interface{}{spec}, nil)
		assert.Empty(t, violations)
	})

	t.Run("invalid option", func(t *testing.T) {
		violations := evaluate(t, engine, parseTestDocument(t, `{"madhab": "Hanafy"}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "madhab must be one of [Hanafi Maliki Shafii Hanbali]", violations[0].Message)
		assert.Equal(t, map[string]interface{}{
			"valid_options": []string{"Hanafi", "Maliki", "Shafii", "Hanbali"},
		}, violations[0].ExpectedValue())
	})
}

func TestEvaluateRequiredRule(t *testing.T) {
	engine := newEngine(t, validation.EngineConfig{})
	spec := map[string]interface{}{"type": "required", "field": "timezone", "default_value": "UTC"}

	t.Run("present field passes", func(t *testing.T) {
		violations := evaluate(t, engine, parseTestDocument(t, `{"timezone": "Africa/Cairo"}`), []map[string]interface{}{spec}, nil)
		assert.Empty(t, violations)
	})

	t.Run("missing field violates with default hint", func(t *testing.T) {
		violations := evaluate(t, engine, parseTestDocument(t, `{"city": "Cairo"}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "Required field 'timezone' is missing or null", violations[0].Message)
		assert.Equal(t, map[string]interface{}{"default_value": "UTC"}, violations[0].ExpectedValue())
	})

	t.Run("explicit null violates", func(t *testing.T) {
		violations := evaluate(t, engine, parseTestDocument(t, `{"timezone": null}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "Required field 'timezone' is missing or null", violations[0].Message)
	})

	t.Run("no default means no hint", func(t *testing.T) {
		bare := map[string]interface{}{"type": "required", "field": "timezone"}
		violations := evaluate(t, engine, parseTestDocument(t, `{}`), []map[string]interface{}{bare}, nil)
		require.Len(t, violations, 1)
		assert.Nil(t, violations[0].ExpectedValue())
	})
}

func TestEvaluateSchemaRule(t *testing.T) {
	engine := newEngine(t, validation.EngineConfig{})

	t.Run("conforming document passes", func(t *testing.T) {
		spec := map[string]interface{}{
			"type": "schema",
			"schema": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"hours": map[string]interface{}{"type": "number"}},
			},
		}
		violations := evaluate(t, engine, parseTestDocument(t, `{"hours": 12}`), []map[string]interface{}{spec}, nil)
		assert.Empty(t, violations)
	})

	t.Run("type mismatch reports the field path", func(t *testing.T) {
		spec := map[string]interface{}{
			"type": "schema",
			"schema": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"hours": map[string]interface{}{"type": "number"}},
			},
		}
		violations := evaluate(t, engine, parseTestDocument(t, `{"hours": "thirty"}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, validation.TypeSchema, violations[0].Type)
		assert.Equal(t, "hours", violations[0].Field)
		assert.Contains(t, violations[0].Message, "want number")
		assert.Equal(t, "thirty", violations[0].FoundValue)
	})

	t.Run("missing required property reports root", func(t *testing.T) {
		spec := map[string]interface{}{
			"type": "schema",
			"schema": map[string]interface{}{
				"type":     "object",
				"required": []string{"city"},
			},
		}
		violations := evaluate(t, engine, parseTestDocument(t, `{"hours": 12}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "root", violations[0].Field)
		assert.Contains(t, violations[0].Message, "city")
	})

	t.Run("uncompilable schema reports schema validation error", func(t *testing.T) {
		spec := map[string]interface{}{
			"type":   "schema",
			"schema": map[string]interface{}{"type": "nonsense"},
		}
		violations := evaluate(t, engine, parseTestDocument(t, `{"hours": 12}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "unknown", violations[0].Field)
		assert.Contains(t, violations[0].Message, "Schema validation error:")
		assert.Equal(t, rules.SeverityError, violations[0].Severity)
	})
}

func TestEvaluateReferenceRule(t *testing.T) {
	spec := map[string]interface{}{"type": "reference", "field": "city_id", "table": "cities", "column": "id"}

	t.Run("existing value passes", func(t *testing.T) {
		lookup := &fakeReference{exists: true}
		engine := newEngine(t, validation.EngineConfig{Reference: lookup})
		violations := evaluate(t, engine, parseTestDocument(t, `{"city_id": 42}`), []map[string]interface{}{spec},
			map[string]interface{}{"organization_id": "org1"})
		assert.Empty(t, violations)
		assert.Equal(t, "org1", lookup.gotOrgID)
	})

	t.Run("missing value violates", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{Reference: &fakeReference{exists: false}})
		violations := evaluate(t, engine, parseTestDocument(t, `{"city_id": 42}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, validation.TypeReference, violations[0].Type)
		assert.Equal(t, "city_id=42 does not exist in cities.id", violations[0].Message)
		assert.Equal(t, "Verify that the city_id exists in your database", violations[0].Suggestion)
	})

	t.Run("lookup failure still violates", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{Reference: &fakeReference{err: errors.New("connection refused")}})
		violations := evaluate(t, engine, parseTestDocument(t, `{"city_id": 42}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "city_id=42 does not exist in cities.id", violations[0].Message)
	})

	t.Run("missing field violates", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{Reference: &fakeReference{exists: true}})
		violations := evaluate(t, engine, parseTestDocument(t, `{"city": "Cairo"}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "Field 'city_id' not found in output", violations[0].Message)
	})

	t.Run("organizations table is never tenant scoped", func(t *testing.T) {
		lookup := &fakeReference{exists: true}
		engine := newEngine(t, validation.EngineConfig{Reference: lookup})
		orgSpec := map[string]interface{}{"type": "reference", "field": "org_id", "table": "organizations", "column": "id"}
		evaluate(t, engine, parseTestDocument(t, `{"org_id": "org1"}`), []map[string]interface{}{orgSpec},
			map[string]interface{}{"organization_id": "org1"})
		assert.Equal(t, "organizations", lookup.gotTable)
		assert.Equal(t, "", lookup.gotOrgID)
	})

	t.Run("without a lookup the rules are skipped", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{})
		violations := evaluate(t, engine, parseTestDocument(t, `{"city_id": 42}`), []map[string]interface{}{spec}, nil)
		assert.Empty(t, violations)
	})
}

func TestEvaluateExternalRefRule(t *testing.T) {
	spec := map[string]interface{}{"type": "external_ref", "field": "url", "connector": "probe"}

	newRegistry := func(t *testing.T, fn connectors.Func) *connectors.Registry {
		registry := connectors.NewRegistry(testutils.NewTestLogger(t))
		require.NoError(t, registry.Register("probe", fn))
		return registry
	}

	t.Run("existing value passes", func(t *testing.T) {
		registry := newRegistry(t, func(ctx context.Context, value interface{}, params connectors.Params) (connectors.Result, error) {
			return connectors.Result{Exists: true, Detail: "HTTP 200"}, nil
		})
		engine := newEngine(t, validation.EngineConfig{Connectors: registry})
		violations := evaluate(t, engine, parseTestDocument(t, `{"url": "https://example.org"}`), []map[string]interface{}{spec}, nil)
		assert.Empty(t, violations)
	})

	t.Run("negative result uses the rule severity", func(t *testing.T) {
		registry := newRegistry(t, func(ctx context.Context, value interface{}, params connectors.Params) (connectors.Result, error) {
			return connectors.Result{Exists: false, Detail: "HTTP 404"}, nil
		})
		engine := newEngine(t, validation.EngineConfig{Connectors: registry})
		violations := evaluate(t, engine, parseTestDocument(t, `{"url": "https://example.org"}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "HTTP 404", violations[0].Message)
		assert.Equal(t, rules.SeverityError, violations[0].Severity)
	})

	t.Run("connector failure degrades to warning", func(t *testing.T) {
		registry := newRegistry(t, func(ctx context.Context, value interface{}, params connectors.Params) (connectors.Result, error) {
			return connectors.Result{}, errors.New("upstream unavailable")
		})
		engine := newEngine(t, validation.EngineConfig{Connectors: registry})
		violations := evaluate(t, engine, parseTestDocument(t, `{"url": "https://example.org"}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, rules.SeverityWarning, violations[0].Severity)
		assert.Contains(t, violations[0].Message, "upstream unavailable")
	})

	t.Run("unknown connector degrades to warning", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{Connectors: connectors.NewRegistry(testutils.NewTestLogger(t))})
		violations := evaluate(t, engine, parseTestDocument(t, `{"url": "https://example.org"}`), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, rules.SeverityWarning, violations[0].Severity)
		assert.Contains(t, violations[0].Message, "External reference check failed:")
	})
}

func TestEvaluateSemanticRule(t *testing.T) {
	spec := map[string]interface{}{"type": "semantic", "output_field": "summary", "context_field": "source_text"}
	rawContext := map[string]interface{}{"source_text": "Fajr is at dawn."}

	t.Run("aligned output passes", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{Embedder: &fakeEmbedder{score: 0.9}})
		violations := evaluate(t, engine, parseTestDocument(t, `{"summary": "Fajr begins at dawn."}`),
			[]map[string]interface{}{spec}, rawContext)
		assert.Empty(t, violations)
	})

	t.Run("contradiction violates", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{Embedder: &fakeEmbedder{score: 0.1}})
		violations := evaluate(t, engine, parseTestDocument(t, `{"summary": "Fajr is at midnight."}`),
			[]map[string]interface{}{spec}, rawContext)
		require.Len(t, violations, 1)
		assert.Equal(t, validation.TypeSemantic, violations[0].Type)
		assert.Contains(t, violations[0].Message, "Semantic contradiction detected:")
		assert.Contains(t, violations[0].Message, "may contradict or ignore the provided 'source_text'.")
		assert.Equal(t, "Alignment >= 0.5 (got 0.1000)", violations[0].ExpectedValue())
		assert.Equal(t, "Review the output; it may contradict the context.", violations[0].Suggestion)
	})

	t.Run("missing context degrades to warning", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{Embedder: &fakeEmbedder{score: 0.9}})
		violations := evaluate(t, engine, parseTestDocument(t, `{"summary": "Fajr begins at dawn."}`),
			[]map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, rules.SeverityWarning, violations[0].Severity)
		assert.Equal(t, "Context field 'source_text' not provided; cannot run semantic check", violations[0].Message)
	})

	t.Run("missing output field degrades to warning", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{Embedder: &fakeEmbedder{score: 0.9}})
		violations := evaluate(t, engine, parseTestDocument(t, `{"city": "Cairo"}`),
			[]map[string]interface{}{spec}, rawContext)
		require.Len(t, violations, 1)
		assert.Equal(t, "Field 'summary' not found in output", violations[0].Message)
	})

	t.Run("embedding failure degrades to warning", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{Embedder: &fakeEmbedder{err: errors.New("quota exceeded")}})
		violations := evaluate(t, engine, parseTestDocument(t, `{"summary": "Fajr begins at dawn."}`),
			[]map[string]interface{}{spec}, rawContext)
		require.Len(t, violations, 1)
		assert.Equal(t, rules.SeverityWarning, violations[0].Severity)
		assert.Contains(t, violations[0].Message, "Semantic validation error:")
	})
}

func TestEvaluateWebVerifyRule(t *testing.T) {
	spec := map[string]interface{}{"type": "web_verify", "field": "claim"}
	doc := `{"claim": "Ramadan lasts either 29 or 30 days."}`

	t.Run("confident verification passes", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{FactChecker: &fakeFactChecker{
			verification: providers.Verification{Confidence: 0.92, Verdict: "SUPPORTED"},
		}})
		violations := evaluate(t, engine, parseTestDocument(t, doc), []map[string]interface{}{spec}, nil)
		assert.Empty(t, violations)
	})

	t.Run("low confidence violates with sources", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{FactChecker: &fakeFactChecker{
			verification: providers.Verification{
				Confidence: 0.4,
				Verdict:    "UNCERTAIN",
				Sources:    []providers.WebSource{{Title: "Example", URL: "https://example.org"}},
			},
		}})
		violations := evaluate(t, engine, parseTestDocument(t, doc), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "Web verification confidence 0.4000 is below threshold 0.7 (verdict: UNCERTAIN)", violations[0].Message)
		assert.Equal(t, "Web confidence >= 0.7", violations[0].ExpectedValue())
		require.Len(t, violations[0].Sources, 1)
		assert.Equal(t, "https://example.org", violations[0].Sources[0].URL)
	})

	t.Run("verifier error degrades to warning", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{FactChecker: &fakeFactChecker{
			verification: providers.Verification{Verdict: "UNCERTAIN", Error: "search unavailable"},
		}})
		violations := evaluate(t, engine, parseTestDocument(t, doc), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, rules.SeverityWarning, violations[0].Severity)
		assert.Equal(t, "Web verification failed: search unavailable", violations[0].Message)
	})

	t.Run("unconfigured checker degrades to warning", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{})
		violations := evaluate(t, engine, parseTestDocument(t, doc), []map[string]interface{}{spec}, nil)
		require.Len(t, violations, 1)
		assert.Equal(t, "Web verification is not configured; cannot verify claim", violations[0].Message)
	})
}

func TestEvaluateAnomaliesStatistical(t *testing.T) {
	history := []float64{10, 11, 9, 10, 12, 8, 10, 11, 9, 10, 11, 10}
	rawContext := map[string]interface{}{"organization_id": "org1", "detect_anomalies": true}

	t.Run("outlier value violates", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{Samples: &fakeSamples{history: history}})
		doc := parseTestDocument(t, `{"amount": 50}`)
		parsed := engine.ParseRules(context.Background(), nil)
		violations, score := engine.EvaluateAnomalies(context.Background(), doc, parsed, validation.NewContext(rawContext))
		require.Len(t, violations, 1)
		assert.Equal(t, "amount_statistical_check", violations[0].RuleName)
		assert.Equal(t, validation.TypeStatistical, violations[0].Type)
		assert.Contains(t, violations[0].Message, "standard deviations from the mean")
		assert.Equal(t, rules.SeverityError, violations[0].Severity)
		require.NotNil(t, score)
		assert.Less(t, *score, 1.0)
	})

	t.Run("typical value passes with full confidence", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{Samples: &fakeSamples{history: history}})
		doc := parseTestDocument(t, `{"amount": 10.5}`)
		parsed := engine.ParseRules(context.Background(), nil)
		violations, score := engine.EvaluateAnomalies(context.Background(), doc, parsed, validation.NewContext(rawContext))
		assert.Empty(t, violations)
		require.NotNil(t, score)
		assert.Equal(t, 1.0, *score)
	})

	t.Run("short history is skipped", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{Samples: &fakeSamples{history: []float64{10, 11}}})
		doc := parseTestDocument(t, `{"amount": 50}`)
		parsed := engine.ParseRules(context.Background(), nil)
		violations, score := engine.EvaluateAnomalies(context.Background(), doc, parsed, validation.NewContext(rawContext))
		assert.Empty(t, violations)
		assert.Nil(t, score)
	})

	t.Run("no organization id skips the baseline tests", func(t *testing.T) {
		engine := newEngine(t, validation.EngineConfig{Samples: &fakeSamples{history: history}})
		doc := parseTestDocument(t, `{"amount": 50}`)
		parsed := engine.ParseRules(context.Background(), nil)
		violations, score := engine.EvaluateAnomalies(context.Background(), doc, parsed,
			validation.NewContext(map[string]interface{}{"detect_anomalies": true}))
		assert.Empty(t, violations)
		assert.Nil(t, score)
	})
}

func TestEvaluateAnomaliesAutoDetect(t *testing.T) {
	engine := newEngine(t, validation.EngineConfig{})
	doc := parseTestDocument(t, `{"growth_rate": 150}`)
	parsed := engine.ParseRules(context.Background(), nil)
	evalCtx := validation.NewContext(map[string]interface{}{
		"detect_anomalies": true, "auto_detect_anomalies": true,
	})

	violations, score := engine.EvaluateAnomalies(context.Background(), doc, parsed, evalCtx)
	require.Len(t, violations, 1)
	assert.Equal(t, "auto_pattern_invalid_percentage", violations[0].RuleName)
	assert.Equal(t, validation.TypeStatistical, violations[0].Type)
	assert.Equal(t, rules.SeverityError, violations[0].Severity)
	require.NotNil(t, score)
	assert.Less(t, *score, 1.0)
}

func TestEvaluateAnomalyMLRule(t *testing.T) {
	spec := map[string]interface{}{"type": "anomaly_ml", "fields": []string{"amount"}, "org_id": "org1"}

	t.Run("untrained model degrades to warning", func(t *testing.T) {
		registry := anomaly.NewRegistry(anomaly.NewMemoryStore(), testutils.NewTestLogger(t))
		engine := newEngine(t, validation.EngineConfig{Anomalies: registry})
		doc := parseTestDocument(t, `{"amount": 50}`)
		parsed := engine.ParseRules(context.Background(), []map[string]interface{}{spec})
		violations, _ := engine.EvaluateAnomalies(context.Background(), doc, parsed, validation.NewContext(nil))
		require.Len(t, violations, 1)
		assert.Equal(t, rules.SeverityWarning, violations[0].Severity)
		assert.Contains(t, violations[0].Message, "not trained yet")
	})

	t.Run("missing org id degrades to warning", func(t *testing.T) {
		registry := anomaly.NewRegistry(anomaly.NewMemoryStore(), testutils.NewTestLogger(t))
		engine := newEngine(t, validation.EngineConfig{Anomalies: registry})
		bare := map[string]interface{}{"type": "anomaly_ml", "fields": []string{"amount"}}
		doc := parseTestDocument(t, `{"amount": 50}`)
		parsed := engine.ParseRules(context.Background(), []map[string]interface{}{bare})
		violations, _ := engine.EvaluateAnomalies(context.Background(), doc, parsed, validation.NewContext(nil))
		require.Len(t, violations, 1)
		assert.Equal(t, rules.SeverityWarning, violations[0].Severity)
		assert.Contains(t, violations[0].Message, "organization id")
	})
}
