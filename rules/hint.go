// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package rules

// CorrectionHint is the typed channel from an evaluator to the auto-corrector.
// Exactly one concrete variant is attached to a violation when a deterministic
// repair is possible; correction strategies match on the variant.
type CorrectionHint interface {
	correctionHint()
}

// RangeHint tells the corrector to clamp the value into [Min, Max].
// Either bound may be nil for a one-sided range.
type RangeHint struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// OptionsHint tells the corrector the closed set of acceptable values
// for fuzzy matching.
type OptionsHint struct {
	Valid []string `json:"valid_options"`
}

// DefaultHint tells the corrector the value to fill a missing or null field with.
type DefaultHint struct {
	Value interface{} `json:"default_value"`
}

func (RangeHint) correctionHint()   {}
func (OptionsHint) correctionHint() {}
func (DefaultHint) correctionHint() {}
