// logging_test.go: logging interface tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTestLogger_CapturesLevels(t *testing.T) {
	logger := NewTestLogger()
	logger.Debug("debug message")
	logger.Info("info message", "bundle", "plugin.a")
	logger.Warn("warn message")
	logger.Error("error message", "error", "boom")

	require.Len(t, logger.Messages, 4)
	assert.Equal(t, "DEBUG", logger.Messages[0].Level)
	assert.Equal(t, []any{"bundle", "plugin.a"}, logger.Messages[1].Args)
	assert.True(t, logger.HasMessage("WARN", "warn message"))
	assert.True(t, logger.HasMessageWith("ERROR", "error message", "error", "boom"))
	assert.False(t, logger.HasMessageWith("ERROR", "error message", "error", "other"))
	assert.Equal(t, 1, logger.CountLevel("INFO"))

	logger.Clear()
	assert.Empty(t, logger.Snapshot())
}

func TestTestLogger_WithSharesBuffer(t *testing.T) {
	parent := NewTestLogger()
	child := parent.With("bundle", "plugin.a").With("path", "/plugins/a")

	child.Warn("Failed to start bundle", "error", "boom")

	msgs := parent.Snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, []any{"bundle", "plugin.a", "path", "/plugins/a", "error", "boom"}, msgs[0].Args)
	assert.True(t, parent.HasMessageWith("WARN", "Failed to start bundle", "path", "/plugins/a"))
}

func TestTestLogger_ConcurrentWrites(t *testing.T) {
	logger := NewTestLogger()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			child := logger.With("worker", true)
			for j := 0; j < 50; j++ {
				child.Info("tick")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, logger.CountLevel("INFO"))
}

func TestNewLogger(t *testing.T) {
	assert.IsType(t, &NoOpLogger{}, NewLogger(nil))

	test := NewTestLogger()
	assert.Same(t, test, NewLogger(test))

	assert.IsType(t, &ZapAdapter{}, NewLogger(zap.NewNop()))
	assert.Panics(t, func() { NewLogger("not a logger") })

	noop := NewNoOpLogger()
	assert.Same(t, noop, noop.With("k", "v"))
}

func TestZapAdapter_StructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewLogger(zap.New(core)).With("session", "s-1")

	logger.Warn("Bundle could not be resolved", "bundle", "plugin.c", "path", "/plugins/c")
	logger.Debug("Service registered", "service_id", "x")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "plugin.c", fields["bundle"])
	assert.Equal(t, "/plugins/c", fields["path"])
	assert.Equal(t, "s-1", fields["session"])

	assert.NoError(t, NewZapAdapter(nil).Sync())
}

func TestLoggerContext(t *testing.T) {
	assert.IsType(t, &NoOpLogger{}, LoggerFromContext(context.Background()))

	logger := NewTestLogger()
	ctx := ContextWithLogger(context.Background(), logger)
	assert.Same(t, logger, LoggerFromContext(ctx))
}
