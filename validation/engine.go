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
	"time"

	"github.com/verityhq/truthgate/anomaly"
	"github.com/verityhq/truthgate/connectors"
	"github.com/verityhq/truthgate/document"
	"github.com/verityhq/truthgate/pkg/logging"
	"github.com/verityhq/truthgate/providers"
	"github.com/verityhq/truthgate/rules"
	"github.com/verityhq/truthgate/stats"
)

// DefaultHistoryDays is the trailing window used for historical baselines.
const DefaultHistoryDays = 30

// ReferenceLookup answers whether a value exists in a table column,
// optionally scoped to one organization. Query failures must be reported
// as an error so the caller can degrade them; the underlying transaction
// must be rolled back by the implementation before returning.
type ReferenceLookup interface {
	Exists(ctx context.Context, table string, column string, value interface{}, orgID string) (bool, error)
}

// Context carries the caller-supplied validation options plus the free-form
// values rule kinds read from (e.g. the context_field of a semantic rule).
type Context struct {
	AutoCorrect         bool
	CalculateConfidence bool
	DetectAnomalies     bool
	AutoDetectAnomalies bool
	OrganizationID      string

	values document.Document
}

// NewContext builds a validation context from the raw request context map.
// Confidence calculation defaults to on.
func NewContext(raw map[string]interface{}) Context {
	evalCtx := Context{CalculateConfidence: true}
	if raw == nil {
		evalCtx.values = document.New()
		return evalCtx
	}

	evalCtx.AutoCorrect = boolValue(raw, "auto_correct")
	evalCtx.DetectAnomalies = boolValue(raw, "detect_anomalies")
	evalCtx.AutoDetectAnomalies = boolValue(raw, "auto_detect_anomalies")
	if value, ok := raw["calculate_confidence"].(bool); ok {
		evalCtx.CalculateConfidence = value
	}
	if value, ok := raw["organization_id"].(string); ok {
		evalCtx.OrganizationID = value
	}

	values, err := document.FromValue(raw)
	if err != nil {
		values = document.New()
	}
	evalCtx.values = values
	return evalCtx
}

// Value returns the context value at the given dot-separated path.
func (c Context) Value(path string) document.Value {
	return c.values.Get(path)
}

func boolValue(raw map[string]interface{}, key string) bool {
	value, _ := raw[key].(bool)
	return value
}

// EngineConfig carries the pluggable collaborators the evaluators call.
// Every field is optional; an evaluator whose collaborator is absent
// degrades to a warning violation instead of failing.
type EngineConfig struct {
	Connectors  *connectors.Registry
	Reference   ReferenceLookup
	Embedder    providers.Embedder
	FactChecker providers.FactChecker
	Anomalies   *anomaly.Registry
	Samples     stats.SampleProvider

	// Heuristics overrides the suspicious-value sets for auto-detection.
	Heuristics *stats.Heuristics
	// ZScoreThreshold and IQRMultiplier tune the classical outlier tests;
	// zero selects the standard defaults.
	ZScoreThreshold float64
	IQRMultiplier   float64
	// HistoryDays bounds the historical sample window; zero selects the default.
	HistoryDays int
}

// Engine dispatches parsed rules to their evaluators. It is stateless with
// respect to the document and safe for concurrent use.
type Engine struct {
	logger      logging.Logger
	connectors  *connectors.Registry
	reference   ReferenceLookup
	embedder    providers.Embedder
	factChecker providers.FactChecker
	anomalies   *anomaly.Registry
	samples     stats.SampleProvider

	heuristics      stats.Heuristics
	zScoreThreshold float64
	iqrMultiplier   float64
	historyDays     int
}

// NewEngine creates a rule engine over the given collaborators.
func NewEngine(cfg EngineConfig, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NoopLogger()
	}
	heuristics := stats.DefaultHeuristics()
	if cfg.Heuristics != nil {
		heuristics = *cfg.Heuristics
	}
	historyDays := cfg.HistoryDays
	if historyDays <= 0 {
		historyDays = DefaultHistoryDays
	}
	return &Engine{
		logger:          logger.WithContext("rule engine: "),
		connectors:      cfg.Connectors,
		reference:       cfg.Reference,
		embedder:        cfg.Embedder,
		factChecker:     cfg.FactChecker,
		anomalies:       cfg.Anomalies,
		samples:         cfg.Samples,
		heuristics:      heuristics,
		zScoreThreshold: cfg.ZScoreThreshold,
		iqrMultiplier:   cfg.IQRMultiplier,
		historyDays:     historyDays,
	}
}

// ParsedRule pairs one raw rule specification with its typed variant, or
// with the parse failure that will surface as a warning violation.
type ParsedRule struct {
	Spec map[string]interface{}
	Rule rules.Rule
	Err  error
}

// ParseRules converts raw rule specifications into typed rules, preserving
// order. Unknown kinds are dropped with a log line; malformed rules are kept
// so the evaluation stage can report them.
func (e *Engine) ParseRules(ctx context.Context, specs []map[string]interface{}) []ParsedRule {
	parsed := make([]ParsedRule, 0, len(specs))
	for _, spec := range specs {
		rule, err := rules.Parse(spec)
		if err != nil {
			if isUnknownKind(err) {
				e.logger.Message(ctx, logging.LevelWarn, "skipping rule of unknown kind: %v", err)
				continue
			}
			parsed = append(parsed, ParsedRule{Spec: spec, Err: err})
			continue
		}
		parsed = append(parsed, ParsedRule{Spec: spec, Rule: rule})
	}
	return parsed
}

func isUnknownKind(err error) bool {
	return errors.Is(err, rules.ErrUnknownRuleKind)
}

// EvaluateSchema runs every schema rule against the whole document.
func (e *Engine) EvaluateSchema(doc document.Document, parsed []ParsedRule) []Violation {
	violations := make([]Violation, 0)
	for _, item := range parsed {
		rule, ok := item.Rule.(*rules.SchemaRule)
		if !ok {
			continue
		}
		violations = append(violations, e.evalSchema(doc, rule)...)
	}
	return violations
}

// EvaluateRules runs the business rules (range, pattern, constraint, enum,
// required, external_ref, semantic, web_verify) in specification order.
// Malformed rules surface here as one warning violation each.
func (e *Engine) EvaluateRules(ctx context.Context, doc document.Document, parsed []ParsedRule, evalCtx Context) []Violation {
	violations := make([]Violation, 0)
	for _, item := range parsed {
		if item.Err != nil {
			violations = append(violations, malformedRuleViolation(item))
			continue
		}

		switch rule := item.Rule.(type) {
		case *rules.RangeRule:
			violations = append(violations, e.evalRange(doc, rule)...)
		case *rules.PatternRule:
			violations = append(violations, e.evalPattern(doc, rule)...)
		case *rules.ConstraintRule:
			violations = append(violations, e.evalConstraint(doc, rule)...)
		case *rules.EnumRule:
			violations = append(violations, e.evalEnum(doc, rule)...)
		case *rules.RequiredRule:
			violations = append(violations, e.evalRequired(doc, rule)...)
		case *rules.ExternalRefRule:
			violations = append(violations, e.evalExternalRef(ctx, doc, rule)...)
		case *rules.SemanticRule:
			violations = append(violations, e.evalSemantic(ctx, doc, rule, evalCtx)...)
		case *rules.WebVerifyRule:
			violations = append(violations, e.evalWebVerify(ctx, doc, rule)...)
		}
	}
	return violations
}

// EvaluateReferences runs every reference rule through the reference
// lookup collaborator. Without a configured lookup the rules are skipped.
func (e *Engine) EvaluateReferences(ctx context.Context, doc document.Document, parsed []ParsedRule, evalCtx Context) []Violation {
	violations := make([]Violation, 0)
	if e.reference == nil {
		return violations
	}
	for _, item := range parsed {
		rule, ok := item.Rule.(*rules.ReferenceRule)
		if !ok {
			continue
		}
		violations = append(violations, e.evalReference(ctx, doc, rule, evalCtx)...)
	}
	return violations
}

// EvaluateAnomalies runs the anomaly stage: anomaly_ml rules against the
// per-organization model, classical outlier tests against the historical
// baselines of the document's numeric fields, and, when auto-detection is
// requested, the no-history pattern heuristics. The returned score is the
// statistical confidence derived from the stage, nil when no numeric field
// could be analyzed.
func (e *Engine) EvaluateAnomalies(ctx context.Context, doc document.Document, parsed []ParsedRule, evalCtx Context) ([]Violation, *float64) {
	violations := make([]Violation, 0)

	for _, item := range parsed {
		rule, ok := item.Rule.(*rules.AnomalyMLRule)
		if !ok {
			continue
		}
		violations = append(violations, e.evalAnomalyML(ctx, doc, rule, evalCtx)...)
	}

	statistical, outcome := e.evalStatistical(ctx, doc, evalCtx)
	violations = append(violations, statistical...)

	if evalCtx.AutoDetectAnomalies {
		patterns := e.evalPatternHeuristics(doc)
		violations = append(violations, patterns...)
		if outcome != nil {
			combined := *outcome * PatternConfidence(len(patterns))
			outcome = &combined
		} else if len(patterns) > 0 {
			confidence := PatternConfidence(len(patterns))
			outcome = &confidence
		}
	}

	return violations, outcome
}

func malformedRuleViolation(item ParsedRule) Violation {
	name, _ := item.Spec["name"].(string)
	if name == "" {
		name = "unknown"
	}
	field, _ := item.Spec["field"].(string)
	if field == "" {
		field = "unknown"
	}
	return Violation{
		RuleName: name,
		Type:     TypeConstraint,
		Field:    field,
		Message:  fmt.Sprintf("Rule parsing error: %v", item.Err),
		Severity: rules.SeverityWarning,
	}
}

// evalStatistical tests every numeric document field against its historical
// baseline from the sample provider. Fields without enough history are
// skipped. Returns the violations plus the statistical confidence over the
// analyzed fields.
func (e *Engine) evalStatistical(ctx context.Context, doc document.Document, evalCtx Context) ([]Violation, *float64) {
	if e.samples == nil || evalCtx.OrganizationID == "" {
		return nil, nil
	}

	numericFields := doc.NumericFields()
	if len(numericFields) == 0 {
		return nil, nil
	}

	violations := make([]Violation, 0)
	analyzed := 0
	outlierFields := 0

	for _, field := range sortedFieldPaths(numericFields) {
		value := numericFields[field]
		history, err := e.samples.FieldHistory(ctx, evalCtx.OrganizationID, field, e.historyDays)
		if err != nil {
			e.logger.Error(ctx, logging.LevelWarn, err, "failed to load history for field=%s", field)
			continue
		}
		if len(history) < stats.MinSampleSize {
			continue
		}

		metrics, err := stats.AnalyzeField(field, history)
		if err != nil {
			continue
		}
		analyzed++

		zscore := stats.DetectOutlierZScore(value, metrics.Mean, metrics.StdDev, e.zScoreThreshold)
		if zscore.IsOutlier {
			outlierFields++
			violations = append(violations, outlierViolation(field, value, zscore, metrics))
			continue
		}

		iqr := stats.DetectOutlierIQR(value, metrics.Q1, metrics.Q3, metrics.IQR, e.iqrMultiplier)
		if iqr.IsOutlier {
			outlierFields++
			violations = append(violations, outlierViolation(field, value, iqr, metrics))
		}
	}

	if analyzed == 0 {
		return violations, nil
	}
	confidence := StatisticalConfidence(outlierFields, analyzed)
	return violations, &confidence
}

func outlierViolation(field string, value float64, outlier stats.Outlier, metrics stats.Metrics) Violation {
	var message string
	if outlier.Method == "zscore" {
		message = fmt.Sprintf("%s value (%v) is %.2f standard deviations from the mean (%.2f)", field, value, outlier.Score, metrics.Mean)
	} else {
		message = fmt.Sprintf("%s value (%v) is an outlier (outside IQR range: %.2f - %.2f)", field, value, metrics.Q1, metrics.Q3)
	}
	return Violation{
		RuleName:   field + "_statistical_check",
		Type:       TypeStatistical,
		Field:      field,
		Message:    message,
		Severity:   outlier.Severity,
		FoundValue: value,
		Expected:   fmt.Sprintf("mean=%.2f, std_dev=%.2f, q1=%.2f, q3=%.2f", metrics.Mean, metrics.StdDev, metrics.Q1, metrics.Q3),
		Suggestion: fmt.Sprintf("Expected range: %.2f to %.2f (IQR method)", metrics.Q1, metrics.Q3),
	}
}

func (e *Engine) evalPatternHeuristics(doc document.Document) []Violation {
	numericFields := doc.NumericFields()
	findings := e.heuristics.DetectPatterns(numericFields, sortedFieldPaths(numericFields))

	violations := make([]Violation, 0, len(findings))
	for _, finding := range findings {
		violations = append(violations, Violation{
			RuleName:   finding.RuleName,
			Type:       TypeStatistical,
			Field:      finding.Field,
			Message:    finding.Message,
			Severity:   finding.Severity,
			FoundValue: finding.Value,
			Hint:       finding.Hint,
			Suggestion: finding.Suggestion,
		})
	}
	return violations
}

// Timing helper shared by the orchestrator.
func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
