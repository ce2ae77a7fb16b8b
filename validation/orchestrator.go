// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package validation

import (
	"context"
	"time"

	"github.com/verityhq/truthgate/document"
	"github.com/verityhq/truthgate/pkg/logging"
	"github.com/verityhq/truthgate/rules"
)

// Corrector repairs a document based on its violations. Implementations
// must not mutate the given document; they return a corrected clone, the
// human-readable descriptions of the applied fixes, and whether anything
// was fixed at all.
type Corrector interface {
	Fix(ctx context.Context, doc document.Document, violations []Violation) (document.Document, []string, bool)
}

// Orchestrator runs the full validation pipeline over one document:
// schema checks, business rules, reference checks, anomaly detection,
// optional auto-correction and confidence scoring.
type Orchestrator struct {
	engine    *Engine
	corrector Corrector
	logger    logging.Logger
}

// NewOrchestrator creates a pipeline over the given engine. A nil corrector
// disables auto-correction regardless of the request context.
func NewOrchestrator(engine *Engine, corrector Corrector, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NoopLogger()
	}
	return &Orchestrator{
		engine:    engine,
		corrector: corrector,
		logger:    logger.WithContext("validation: "),
	}
}

// Validate runs every pipeline stage in order and assembles the result.
// The document itself is never mutated; corrections apply to a clone.
func (o *Orchestrator) Validate(ctx context.Context, doc document.Document, specs []map[string]interface{}, rawContext map[string]interface{}) ValidationResult {
	start := time.Now()
	validationID := NewValidationID()
	evalCtx := NewContext(rawContext)

	parsed := o.engine.ParseRules(ctx, specs)

	violations := o.engine.EvaluateSchema(doc, parsed)
	violations = append(violations, o.engine.EvaluateRules(ctx, doc, parsed, evalCtx)...)
	violations = append(violations, o.engine.EvaluateReferences(ctx, doc, parsed, evalCtx)...)

	anomaliesDetected := 0
	var statisticalScore *float64
	if evalCtx.DetectAnomalies {
		anomalies, score := o.engine.EvaluateAnomalies(ctx, doc, parsed, evalCtx)
		anomaliesDetected = len(anomalies)
		statisticalScore = score
		violations = append(violations, anomalies...)
	}

	autoCorrected := false
	var correctedOutput map[string]interface{}
	var correctionsApplied []string
	if len(violations) > 0 && evalCtx.AutoCorrect && o.corrector != nil {
		corrected, corrections, fixed := o.corrector.Fix(ctx, doc, violations)
		if fixed {
			autoCorrected = true
			correctedOutput = corrected.Value()
			correctionsApplied = corrections
		}
	}

	result := ValidationResult{
		Status:             StatusOf(violations),
		IsValid:            CountBySeverity(violations, rules.SeverityError) == 0,
		Violations:         violations,
		AutoCorrected:      autoCorrected,
		CorrectedOutput:    correctedOutput,
		CorrectionsApplied: correctionsApplied,
		AnomaliesDetected:  anomaliesDetected,
		ValidationID:       validationID,
		LatencyMS:          elapsedMS(start),
		Timestamp:          time.Now().UTC(),
	}

	if evalCtx.CalculateConfidence {
		factors := CalculateConfidence(violations, autoCorrected, correctionsApplied, statisticalScore, hasReferenceViolations(violations))
		confidence := factors.OverallConfidence
		result.ConfidenceScore = &confidence
		result.ConfidenceLevel = ConfidenceLevel(confidence)
		o.logger.Message(ctx, logging.LevelDebug, "id=%s confidence=%.4f level=%s: %s",
			validationID, confidence, result.ConfidenceLevel, Recommendation(confidence))
	}

	o.logger.Message(ctx, logging.LevelInfo, "id=%s status=%s violations=%d corrected=%t latency=%dms",
		validationID, result.Status, len(violations), autoCorrected, result.LatencyMS)
	return result
}

func hasReferenceViolations(violations []Violation) bool {
	for _, violation := range violations {
		if violation.Type == TypeReference {
			return true
		}
	}
	return false
}
