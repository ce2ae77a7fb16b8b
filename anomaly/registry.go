// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package anomaly

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/verityhq/truthgate/pkg/logging"
)

// Model is a trained per-organization outlier model together with the
// feature layout it was trained on.
type Model struct {
	Forest      *Forest
	Fields      []string
	ColumnMeans []float64
	SampleCount int
	// RunID identifies the training run that produced this model.
	RunID string
	// TrainedAt records when training completed.
	TrainedAt time.Time
}

// TrainingResult reports the outcome of one training run. Training never
// fails with an error; insufficient data is a structured unsuccessful result.
type TrainingResult struct {
	OrgID   string   `json:"org_id"`
	Success bool     `json:"success"`
	Samples int      `json:"n_samples"`
	Fields  []string `json:"fields"`
	Message string   `json:"message"`
	RunID   string   `json:"run_id,omitempty"`
}

// Score is the anomaly verdict for one document.
type Score struct {
	OrgID     string  `json:"org_id"`
	IsAnomaly bool    `json:"is_anomaly"`
	RawScore  float64 `json:"raw_score"`
	Reason    string  `json:"reason"`
}

// Registry owns the per-organization model cache. Training replaces a model
// atomically under the organization's lock; scoring lazily loads persisted
// models through the injected store. Store failures are logged and the
// in-memory state stays authoritative.
type Registry struct {
	store  ModelStore
	logger logging.Logger
	seed   int64

	mu     sync.Mutex // guards the model map itself
	models map[string]*modelSlot
}

type modelSlot struct {
	mu    sync.Mutex // per-organization lock
	model *Model
}

// NewRegistry creates a model registry backed by the given store.
// A nil store disables persistence.
func NewRegistry(store ModelStore, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NoopLogger()
	}
	return &Registry{
		store:  store,
		logger: logger.WithContext("anomaly registry: "),
		seed:   DefaultSeed,
		models: make(map[string]*modelSlot),
	}
}

func (r *Registry) slot(orgID string) *modelSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.models[orgID]
	if !ok {
		slot = &modelSlot{}
		r.models[orgID] = slot
	}
	return slot
}

// IsTrained reports whether an in-memory model exists for the organization.
func (r *Registry) IsTrained(orgID string) bool {
	slot := r.slot(orgID)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.model != nil
}

// Train fits a new model for the organization over the given historical
// samples and watched fields, replacing any previous model. Concurrent
// trainers for the same organization serialize; last writer wins.
func (r *Registry) Train(ctx context.Context, orgID string, samples []map[string]interface{}, fields []string, contamination float64) TrainingResult {
	matrix := vectorize(samples, fields, nil)
	if len(matrix) < 2 {
		return TrainingResult{
			OrgID:   orgID,
			Success: false,
			Samples: len(samples),
			Fields:  fields,
			Message: fmt.Sprintf("Not enough numeric samples to train (%d rows). Need >= 2.", len(samples)),
		}
	}

	means := columnMeans(matrix)
	imputeInPlace(matrix, means)

	model := &Model{
		Forest:      TrainForest(matrix, DefaultTreeCount, contamination, r.seed),
		Fields:      append([]string(nil), fields...),
		ColumnMeans: means,
		SampleCount: len(matrix),
		RunID:       ulid.MustNew(ulid.Timestamp(time.Now()), rand.New(rand.NewSource(r.seed))).String(),
		TrainedAt:   time.Now().UTC(),
	}

	slot := r.slot(orgID)
	slot.mu.Lock()
	slot.model = model
	slot.mu.Unlock()

	r.persist(ctx, orgID, model)
	r.logger.Message(ctx, logging.LevelInfo, "trained org=%s n=%d fields=%v", orgID, len(matrix), fields)

	return TrainingResult{
		OrgID:   orgID,
		Success: true,
		Samples: len(matrix),
		Fields:  fields,
		Message: fmt.Sprintf("IsolationForest trained on %d samples, %d features.", len(matrix), len(fields)),
		RunID:   model.RunID,
	}
}

// ScoreSample scores one document's numeric fields against the organization's
// model. If no model is cached, a lazy load from the store is attempted first.
// An organization with no trained model never scores anomalous.
func (r *Registry) ScoreSample(ctx context.Context, orgID string, sample map[string]interface{}) Score {
	slot := r.slot(orgID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.model == nil {
		slot.model = r.restore(ctx, orgID)
	}
	if slot.model == nil {
		return Score{
			OrgID:     orgID,
			IsAnomaly: false,
			RawScore:  0,
			Reason:    "Model not trained yet; need more historical data.",
		}
	}

	model := slot.model
	rows := vectorize([]map[string]interface{}{sample}, model.Fields, model.ColumnMeans)
	if len(rows) == 0 {
		return Score{
			OrgID:     orgID,
			IsAnomaly: false,
			RawScore:  0,
			Reason:    "Could not extract numeric features from sample.",
		}
	}

	raw := model.Forest.Decision(rows[0])
	isAnomaly := raw < 0
	verdict := "normal (score >= 0)"
	if isAnomaly {
		verdict = "ANOMALY detected (score < 0)"
	}

	return Score{
		OrgID:     orgID,
		IsAnomaly: isAnomaly,
		RawScore:  math.Round(raw*10000) / 10000,
		Reason:    fmt.Sprintf("IsolationForest score: %.4f (%s). Fields: %v.", raw, verdict, model.Fields),
	}
}

func (r *Registry) persist(ctx context.Context, orgID string, model *Model) {
	if r.store == nil {
		return
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(model); err != nil {
		r.logger.Error(ctx, logging.LevelWarn, err, "failed to serialize model for org=%s", orgID)
		return
	}
	if err := r.store.Save(ctx, orgID, buf.Bytes()); err != nil {
		r.logger.Error(ctx, logging.LevelWarn, err, "failed to persist model for org=%s", orgID)
	}
}

func (r *Registry) restore(ctx context.Context, orgID string) *Model {
	if r.store == nil {
		return nil
	}
	blob, err := r.store.Load(ctx, orgID)
	if err != nil {
		if !errors.Is(err, ErrModelNotFound) {
			r.logger.Error(ctx, logging.LevelWarn, err, "failed to load model for org=%s", orgID)
		}
		return nil
	}
	model := &Model{}
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(model); err != nil {
		r.logger.Error(ctx, logging.LevelWarn, err, "failed to decode persisted model for org=%s", orgID)
		return nil
	}
	return model
}

// vectorize builds a rectangular feature matrix by dot-path extraction.
// When fillMeans is nil the matrix may contain NaN for later imputation;
// otherwise missing cells take the given per-column fill values.
func vectorize(samples []map[string]interface{}, fields []string, fillMeans []float64) [][]float64 {
	rows := make([][]float64, 0, len(samples))
	for _, sample := range samples {
		row := make([]float64, len(fields))
		for i, field := range fields {
			value, ok := nestedNumber(sample, field)
			switch {
			case ok:
				row[i] = value
			case fillMeans != nil && i < len(fillMeans):
				row[i] = fillMeans[i]
			default:
				row[i] = math.NaN()
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func nestedNumber(sample map[string]interface{}, path string) (float64, bool) {
	var current interface{} = sample
	for _, key := range splitPath(path) {
		object, ok := current.(map[string]interface{})
		if !ok {
			return 0, false
		}
		current, ok = object[key]
		if !ok {
			return 0, false
		}
	}
	switch typed := current.(type) {
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	default:
		return 0, false
	}
}

func splitPath(path string) []string {
	parts := make([]string, 0, 2)
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	return append(parts, path[start:])
}

// columnMeans averages each column over its non-NaN cells; an all-NaN column means zero.
func columnMeans(matrix [][]float64) []float64 {
	if len(matrix) == 0 {
		return nil
	}
	means := make([]float64, len(matrix[0]))
	for col := range means {
		total, count := 0.0, 0
		for _, row := range matrix {
			if !math.IsNaN(row[col]) {
				total += row[col]
				count++
			}
		}
		if count > 0 {
			means[col] = total / float64(count)
		}
	}
	return means
}

func imputeInPlace(matrix [][]float64, means []float64) {
	for _, row := range matrix {
		for col, value := range row {
			if math.IsNaN(value) {
				row[col] = means[col]
			}
		}
	}
}
