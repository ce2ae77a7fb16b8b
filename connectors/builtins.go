// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package connectors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// defaultHTTPTimeout applies when a built-in connector gets no "timeout" param.
const defaultHTTPTimeout = 8 * time.Second

// RegisterBuiltins adds the pre-built connectors to the registry:
//   - "http_get_200": GETs the field value as a URL; passes on HTTP 200.
//   - "http_json_field": GETs a URL, extracts a dot-path JSON field and
//     optionally compares it to an expected value.
//   - "time_within_tolerance": fetches a canonical HH:MM time from a JSON
//     endpoint and checks the claimed time is within a tolerance in minutes.
//
// A nil client falls back to http.DefaultClient.
func RegisterBuiltins(registry *Registry, client *http.Client) error {
	if client == nil {
		client = http.DefaultClient
	}
	builtins := map[string]Func{
		"http_get_200":          httpGet200Connector(client),
		"http_json_field":       httpJSONFieldConnector(client),
		"time_within_tolerance": timeWithinToleranceConnector(client),
	}
	for name, connector := range builtins {
		if err := registry.Register(name, connector); err != nil {
			return err
		}
	}
	return nil
}

func httpGet200Connector(client *http.Client) Func {
	return func(ctx context.Context, value interface{}, params Params) (Result, error) {
		url := strings.TrimSpace(fmt.Sprintf("%v", value))
		status, _, err := httpGet(ctx, client, url, httpParamTimeout(params))
		if err != nil {
			return Result{}, err
		}
		return Result{
			Exists: status == http.StatusOK,
			Detail: fmt.Sprintf("GET %s → HTTP %d", url, status),
			Raw:    map[string]interface{}{"status_code": status},
		}, nil
	}
}

func httpJSONFieldConnector(client *http.Client) Func {
	return func(ctx context.Context, value interface{}, params Params) (Result, error) {
		url := params.String("url", "")
		jsonPath := params.String("json_path", "")
		if url == "" || jsonPath == "" {
			return Result{
				Exists: false,
				Detail: "http_json_field requires 'url' and 'json_path' params",
			}, nil
		}

		status, body, err := httpGet(ctx, client, url, httpParamTimeout(params))
		if err != nil {
			return Result{}, err
		}
		if status != http.StatusOK {
			return Result{
				Exists: false,
				Detail: fmt.Sprintf("GET %s → HTTP %d (expected 200)", url, status),
				Raw:    map[string]interface{}{"status_code": status},
			}, nil
		}

		node := gjson.GetBytes(body, jsonPath)
		if !node.Exists() || node.Type == gjson.Null {
			return Result{
				Exists: false,
				Detail: fmt.Sprintf("Field '%s' not found in JSON response from %s", jsonPath, url),
				Raw:    string(body),
			}, nil
		}

		found := strings.TrimSpace(node.String())
		expected, hasExpected := params["expected"]
		if hasExpected && expected != nil {
			expectedStr := strings.TrimSpace(fmt.Sprintf("%v", expected))
			match := found == expectedStr
			detail := fmt.Sprintf("Field '%s' = '%s' matches", jsonPath, found)
			if !match {
				detail = fmt.Sprintf("Field '%s' = '%s' ≠ expected '%s'", jsonPath, found, expectedStr)
			}
			return Result{
				Exists: match,
				Detail: detail,
				Raw:    map[string]interface{}{"field": jsonPath, "found": found, "expected": expectedStr},
			}, nil
		}

		return Result{
			Exists: true,
			Detail: fmt.Sprintf("Field '%s' = '%s'", jsonPath, found),
			Raw:    map[string]interface{}{"field": jsonPath, "found": found},
		}, nil
	}
}

func timeWithinToleranceConnector(client *http.Client) Func {
	return func(ctx context.Context, value interface{}, params Params) (Result, error) {
		url := params.String("url", "")
		jsonPath := params.String("json_path", "")
		if url == "" || jsonPath == "" {
			return Result{
				Exists: false,
				Detail: "time_within_tolerance requires 'url' and 'json_path' params",
			}, nil
		}
		tolerance := params.Int("tolerance_minutes", 15)

		status, body, err := httpGet(ctx, client, url, httpParamTimeout(params))
		if err != nil {
			return Result{}, err
		}
		if status != http.StatusOK {
			return Result{
				Exists: false,
				Detail: fmt.Sprintf("GET %s → HTTP %d (expected 200)", url, status),
				Raw:    map[string]interface{}{"status_code": status},
			}, nil
		}

		node := gjson.GetBytes(body, jsonPath)
		if !node.Exists() {
			return Result{
				Exists: false,
				Detail: fmt.Sprintf("Reference response missing '%s'", jsonPath),
				Raw:    string(body),
			}, nil
		}

		referenceRaw := node.String()
		referenceMins, ok := parseClockMinutes(stripParenthetical(referenceRaw))
		if !ok {
			return Result{
				Exists: false,
				Detail: fmt.Sprintf("Could not parse reference time: '%s'", referenceRaw),
			}, nil
		}
		claimedMins, ok := parseClockMinutes(fmt.Sprintf("%v", value))
		if !ok {
			return Result{
				Exists: false,
				Detail: fmt.Sprintf("Could not parse claimed time: '%v'", value),
			}, nil
		}

		diff := claimedMins - referenceMins
		if diff < 0 {
			diff = -diff
		}
		within := diff <= tolerance
		verdict := "✓ within"
		if !within {
			verdict = "✗ exceeds"
		}

		return Result{
			Exists: within,
			Detail: fmt.Sprintf("Claimed time %s vs reference %s, diff %d min %s tolerance %d min",
				formatClockMinutes(claimedMins), formatClockMinutes(referenceMins), diff, verdict, tolerance),
			Raw: map[string]interface{}{
				"reference":         referenceRaw,
				"claimed":           fmt.Sprintf("%v", value),
				"diff_minutes":      diff,
				"tolerance_minutes": tolerance,
			},
		}, nil
	}
}

func httpParamTimeout(params Params) time.Duration {
	seconds := params.Float("timeout", defaultHTTPTimeout.Seconds())
	return time.Duration(seconds * float64(time.Second))
}

func httpGet(ctx context.Context, client *http.Client, url string, timeout time.Duration) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	response, err := client.Do(request)
	if err != nil {
		return 0, nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	return response.StatusCode, body, nil
}

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})`)

// parseClockMinutes converts "HH:MM"-prefixed strings to minutes since midnight.
func parseClockMinutes(text string) (int, bool) {
	match := clockPattern.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return 0, false
	}
	hours, _ := strconv.Atoi(match[1])
	minutes, _ := strconv.Atoi(match[2])
	return hours*60 + minutes, true
}

var parentheticalPattern = regexp.MustCompile(`\s*\(.*?\)`)

// stripParenthetical removes timezone suffixes like " (+06)".
func stripParenthetical(text string) string {
	return strings.TrimSpace(parentheticalPattern.ReplaceAllString(text, ""))
}

func formatClockMinutes(mins int) string {
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}
