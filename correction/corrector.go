// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package correction repairs validated documents. Each strategy knows how
// to fix one family of violations deterministically; the corrector walks
// the error-severity violations and applies at most one fix per violation,
// always on a clone of the original document.
package correction

import (
	"context"
	"errors"

	"github.com/verityhq/truthgate/document"
	"github.com/verityhq/truthgate/pkg/logging"
	"github.com/verityhq/truthgate/pkg/utils"
	"github.com/verityhq/truthgate/rules"
	"github.com/verityhq/truthgate/validation"
)

// ErrNotApplicable indicates that a strategy matched the violation but
// could not produce a fix for the concrete value.
var ErrNotApplicable = errors.New("correction not applicable")

// Strategy is one deterministic repair. CanFix is a cheap match on the
// violation shape; Apply mutates the document and describes the fix.
type Strategy interface {
	// Name returns the strategy's identifier used in logs.
	Name() string
	// CanFix reports whether this strategy understands the violation.
	CanFix(violation validation.Violation) bool
	// Apply fixes the violation in place and returns a human-readable
	// description of what changed. Returns ErrNotApplicable when the
	// concrete value cannot be fixed after all.
	Apply(doc *document.Document, violation validation.Violation) (string, error)
}

// Corrector implements the validation pipeline's auto-correction stage.
type Corrector struct {
	strategies []Strategy
	logger     logging.Logger
}

// NewCorrector creates a corrector with the default strategy chain:
// range clamping, type coercion, whitespace trimming, fuzzy option
// matching and default-value filling, tried in that order.
func NewCorrector(logger logging.Logger) *Corrector {
	return NewCorrectorWithStrategies(logger,
		RangeClamp{},
		TypeCoerce{},
		StringTrim{},
		FuzzyMatch{MinSimilarity: DefaultMinSimilarity},
		DefaultValue{},
	)
}

// NewCorrectorWithStrategies creates a corrector with a custom strategy chain.
func NewCorrectorWithStrategies(logger logging.Logger, strategies ...Strategy) *Corrector {
	if logger == nil {
		logger = logging.NoopLogger()
	}
	return &Corrector{
		strategies: strategies,
		logger:     logger.WithContext("auto-correct: "),
	}
}

// Fix attempts to repair every error-severity violation on a clone of the
// document. Warning and info violations are never corrected. The original
// document is returned unchanged when no strategy produced a fix.
func (c *Corrector) Fix(ctx context.Context, doc document.Document, violations []validation.Violation) (document.Document, []string, bool) {
	corrected := doc.Clone()
	descriptions := make([]string, 0)

	for _, violation := range violations {
		if violation.Severity != rules.SeverityError {
			continue
		}
		for _, strategy := range c.strategies {
			if !strategy.CanFix(violation) {
				continue
			}

			var description string
			err := utils.NoPanic(func() error {
				var applyErr error
				description, applyErr = strategy.Apply(&corrected, violation)
				return applyErr
			})
			if err != nil {
				if !errors.Is(err, ErrNotApplicable) {
					c.logger.Error(ctx, logging.LevelWarn, err, "strategy=%s field=%s", strategy.Name(), violation.Field)
				}
				continue
			}

			c.logger.Message(ctx, logging.LevelDebug, "strategy=%s field=%s: %s", strategy.Name(), violation.Field, description)
			descriptions = append(descriptions, description)
			break
		}
	}

	if len(descriptions) == 0 {
		return doc, nil, false
	}
	return corrected, descriptions, true
}
