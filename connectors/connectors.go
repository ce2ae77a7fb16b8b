// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package connectors provides a registry of named checks against external
// sources of truth, used by external-reference rules. A connector receives
// the output-field value plus rule parameters and reports whether the value
// exists (or holds) according to the external source.
package connectors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/verityhq/truthgate/pkg/logging"
	"github.com/verityhq/truthgate/pkg/utils"
)

var (
	// ErrUnknownConnector indicates that no connector is registered under the requested name.
	ErrUnknownConnector = errors.New("connector is not registered")
	// ErrNilConnector indicates an attempt to register a nil connector function.
	ErrNilConnector = errors.New("connector must not be nil")
)

// DefaultCheckTimeout bounds a connector call when the rule supplies no timeout.
const DefaultCheckTimeout = 10 * time.Second

// Result is the outcome of one connector call.
type Result struct {
	// Exists is true when the external check passes (value is valid or found).
	Exists bool `json:"exists"`
	// Failed is true when the connector itself failed (error, panic or
	// timeout), so Exists=false reflects infrastructure, not the value.
	Failed bool `json:"failed,omitempty"`
	// Detail is a human-readable explanation of the outcome.
	Detail string `json:"detail"`
	// LatencyMS is the round-trip time in milliseconds, set by the registry.
	LatencyMS int64 `json:"latency_ms"`
	// Raw optionally carries the raw response from the external source.
	Raw interface{} `json:"raw,omitempty"`
}

// Params carries the rule-supplied parameters of a connector call.
type Params map[string]interface{}

// String returns the named parameter as a trimmed string, or fallback when absent.
func (p Params) String(key string, fallback string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return fallback
	}
	return strings.TrimSpace(fmt.Sprintf("%v", value))
}

// Float returns the named parameter coerced to float64, or fallback when
// absent or not numeric.
func (p Params) Float(key string, fallback float64) float64 {
	switch value := p[key].(type) {
	case float64:
		return value
	case float32:
		return float64(value)
	case int:
		return float64(value)
	case int64:
		return float64(value)
	default:
		return fallback
	}
}

// Int returns the named parameter coerced to int, or fallback when absent
// or not numeric.
func (p Params) Int(key string, fallback int) int {
	return int(p.Float(key, float64(fallback)))
}

// Func is a single connector. Implementations should honor ctx cancellation;
// the registry additionally enforces the call timeout and converts errors and
// panics into failed Results.
type Func func(ctx context.Context, value interface{}, params Params) (Result, error)

// Registry maps connector names to connector functions. Register connectors
// at process start and reuse the registry throughout; Check is safe for
// concurrent use.
type Registry struct {
	logger logging.Logger

	mu         sync.RWMutex
	connectors map[string]Func
}

// NewRegistry creates an empty connector registry.
func NewRegistry(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NoopLogger()
	}
	return &Registry{
		logger:     logger.WithContext("connector registry: "),
		connectors: make(map[string]Func),
	}
}

// Register adds a connector under the given name, replacing any previous one.
func (r *Registry) Register(name string, connector Func) error {
	if connector == nil {
		return fmt.Errorf("%w: %q", ErrNilConnector, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[name] = connector
	return nil
}

// Names returns the sorted names of all registered connectors.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check calls the named connector with the value and parameters, bounded by
// the given timeout (DefaultCheckTimeout when non-positive). Latency is
// measured around every call including failures. A registered connector's
// errors, panics and timeouts are converted into a failed Result rather than
// returned; the only error Check itself returns is ErrUnknownConnector.
func (r *Registry) Check(ctx context.Context, name string, value interface{}, params Params, timeout time.Duration) (Result, error) {
	r.mu.RLock()
	connector, ok := r.connectors[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %q (available: %v)", ErrUnknownConnector, name, r.Names())
	}
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	if params == nil {
		params = Params{}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result := r.call(callCtx, name, connector, value, params, timeout)
	result.LatencyMS = time.Since(start).Milliseconds()

	r.logger.Message(ctx, logging.LevelDebug, "checked connector=%s exists=%t latency=%dms", name, result.Exists, result.LatencyMS)
	return result, nil
}

// call runs the connector in its own goroutine so that even an implementation
// ignoring ctx cannot stall the caller past the timeout.
func (r *Registry) call(ctx context.Context, name string, connector Func, value interface{}, params Params, timeout time.Duration) Result {
	type outcome struct {
		result Result
		err    error
	}
	results := make(chan outcome, 1)

	go func() {
		var out outcome
		if err := utils.NoPanic(func() error {
			result, err := connector(ctx, value, params)
			out = outcome{result: result, err: err}
			return err
		}); err != nil {
			out.err = err
		}
		results <- out
	}()

	select {
	case <-ctx.Done():
		return Result{
			Exists: false,
			Failed: true,
			Detail: fmt.Sprintf("Connector '%s' timed out after %s", name, timeout),
		}
	case out := <-results:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				return Result{
					Exists: false,
					Failed: true,
					Detail: fmt.Sprintf("Connector '%s' timed out after %s", name, timeout),
				}
			}
			return Result{
				Exists: false,
				Failed: true,
				Detail: fmt.Sprintf("Connector '%s' error: %v", name, out.err),
			}
		}
		return out.result
	}
}
