// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package runners

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/verityhq/truthgate/config"
	"github.com/verityhq/truthgate/document"
	"github.com/verityhq/truthgate/validation"
)

const defaultMaxConcurrent = 4

// NewDefaultRunner creates a new Runner that validates requests through the
// given orchestrator with at most maxConcurrent requests in flight at once.
// A non-positive maxConcurrent selects the default concurrency.
func NewDefaultRunner(orchestrator *validation.Orchestrator, maxConcurrent int, logger zerolog.Logger) Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &defaultRunner{
		orchestrator:  orchestrator,
		maxConcurrent: maxConcurrent,
		logger:        logger,
		emitter:       noopEmitter{},
	}
}

type defaultRunner struct {
	orchestrator  *validation.Orchestrator
	maxConcurrent int
	resultsLock   sync.RWMutex
	results       Results
	logger        zerolog.Logger
	emitter       eventEmitter
}

func (r *defaultRunner) Run(ctx context.Context, requests []config.ValidationRequest) error {
	r.logger.Info().Msgf("starting %d request%s with up to %d worker%s...", pluralize(countable(len(requests)), countable(r.maxConcurrent))...)
	start := time.Now()
	r.resultsLock.Lock()
	r.results = make(Results, 0, len(requests))
	r.resultsLock.Unlock()

	semaphore := make(chan struct{}, r.maxConcurrent)
	var wg sync.WaitGroup
	for _, request := range requests {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(req config.ValidationRequest) {
			defer wg.Done()
			defer func() { <-semaphore }()
			r.runRequest(ctx, req)
		}(request)
	}
	wg.Wait()
	r.logger.Info().Msgf("all requests have finished in %s.", time.Since(start))
	return nil
}

func (r *defaultRunner) runRequest(ctx context.Context, request config.ValidationRequest) {
	runResult := RunResult{Request: request.Name}
	r.logger.Info().Msgf("%s: starting request...", request.Name)
	runStart := time.Now()
	defer func() {
		if p := recover(); p != nil {
			runResult.Kind = Errored
			runResult.Details = fmt.Sprintf("%v", p)
			runResult.Duration = time.Since(runStart)
			r.appendResult(runResult)
		}
		r.emitter.emitProgressEvent()
	}()
	r.validateRequest(ctx, request, &runResult)
	runResult.Duration = time.Since(runStart)
	r.logger.Info().Msgf("%s: request has finished in %s.", request.Name, runResult.Duration)
	r.appendResult(runResult)
}

func (r *defaultRunner) validateRequest(ctx context.Context, request config.ValidationRequest, runResult *RunResult) {
	doc, err := document.FromValue(request.Document)
	if err != nil {
		runResult.Kind = Errored
		runResult.Details = fmt.Sprintf("invalid document: %v", err)
		return
	}
	runResult.Document = doc.JSON()
	outcome := r.orchestrator.Validate(ctx, doc, request.Rules, request.Context)
	runResult.Outcome = outcome
	runResult.Kind = KindOf(outcome.Status)
	r.logger.Debug().Msgf("%s: %s: status=%s violations=%d", request.Name, outcome.ValidationID, outcome.Status, len(outcome.Violations))
}

func (r *defaultRunner) appendResult(result RunResult) {
	r.resultsLock.Lock()
	defer r.resultsLock.Unlock()
	r.results = append(r.results, result)
}

func (r *defaultRunner) GetResults() Results {
	r.resultsLock.RLock()
	defer r.resultsLock.RUnlock()
	return r.results
}

func (r *defaultRunner) Close(ctx context.Context) {
	r.logger.Debug().Msg("runner closed.")
}

type countable int

func pluralize(tokens ...any) []interface{} {
	pluralized := make([]interface{}, 0, 2*len(tokens))
	for _, token := range tokens {
		pluralized = append(pluralized, token)
		if v, ok := any(token).(countable); ok {
			switch v {
			case 1:
				pluralized = append(pluralized, "")
			default:
				pluralized = append(pluralized, "s")
			}
		}
	}

	return pluralized
}
