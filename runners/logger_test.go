// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package runners

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/verityhq/truthgate/pkg/logging"
)

type mockEmitter struct {
	mock.Mock
}

func (m *mockEmitter) emitProgressEvent() {
	m.Called()
}

func (m *mockEmitter) emitMessageEvent(message string) {
	m.Called(message)
}

func TestEmittingLoggerMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		args    []any
		want    string
	}{
		{
			name: "plain message",
			msg:  "test message",
			want: "test message",
		},
		{
			name: "message with args",
			msg:  "validated %d document%s",
			args: []any{3, "s"},
			want: "validated 3 documents",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := zerolog.New(zerolog.NewTestWriter(t))
			emitter := &mockEmitter{}
			emittingLogger := NewEmittingLogger(logger, emitter)

			emitter.On("emitMessageEvent", tt.want).Once()

			emittingLogger.Message(context.Background(), logging.LevelInfo, tt.msg, tt.args...)

			emitter.AssertExpectations(t)
		})
	}
}

func TestEmittingLoggerError(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	emitter := &mockEmitter{}
	emittingLogger := NewEmittingLogger(logger, emitter)

	emitter.On("emitMessageEvent", "validation aborted with code: 500").Once()

	emittingLogger.Error(context.Background(), logging.LevelError, errors.ErrUnsupported, "validation aborted with code: %d", 500)

	emitter.AssertExpectations(t)
}

func TestEmittingLoggerErrorWithNilError(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	emitter := &mockEmitter{}
	emittingLogger := NewEmittingLogger(logger, emitter)

	emitter.On("emitMessageEvent", "no error").Once()

	emittingLogger.Error(context.Background(), logging.LevelWarn, nil, "no error")

	emitter.AssertExpectations(t)
}

func TestEmittingLoggerWithContext(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	emitter := &mockEmitter{}
	emittingLogger := NewEmittingLogger(logger, emitter)

	contextLogger := emittingLogger.WithContext("batch: ")
	assert.NotSame(t, emittingLogger, contextLogger, "WithContext should return a new logger instance")

	emitter.On("emitMessageEvent", "batch: request finished").Once()
	contextLogger.Message(context.Background(), logging.LevelInfo, "request finished")

	emitter.AssertExpectations(t)
}

func TestEmittingLoggerContextChaining(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	emitter := &mockEmitter{}
	emittingLogger := NewEmittingLogger(logger, emitter)

	chained := emittingLogger.WithContext("runner: ").WithContext("invoices: ")

	emitter.On("emitMessageEvent", "runner: invoices: validation failed").Once()
	chained.Error(context.Background(), logging.LevelError, errors.ErrUnsupported, "validation failed")

	emitter.AssertExpectations(t)
}
