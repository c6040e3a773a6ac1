// panic_recovery_test.go: Panic containment tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"errors"
	"testing"

	goerrors "github.com/agilira/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithStackRecover_LogsPanic(t *testing.T) {
	logger := NewTestLogger()

	assert.NotPanics(t, func() {
		defer withStackRecover(logger)()
		panic("listener failure")
	})

	msgs := logger.Snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ERROR", msgs[0].Level)
	assert.True(t, logger.HasMessageWith("ERROR", "Panic recovered", "panic", "listener failure"))
}

func TestWithStackRecover_NoPanicNoLog(t *testing.T) {
	logger := NewTestLogger()
	func() {
		defer withStackRecover(logger)()
	}()
	assert.Empty(t, logger.Snapshot())
}

func TestCallActivatorHook(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		assert.NoError(t, callActivatorHook("plugin.a", "start", func() error { return nil }))
	})

	t.Run("plain error is wrapped", func(t *testing.T) {
		cause := errors.New("disk full")
		err := callActivatorHook("plugin.a", "start", func() error { return cause })
		require.Error(t, err)
		assert.True(t, HasErrorCode(err, ErrCodeActivator))

		var coded *goerrors.Error
		require.ErrorAs(t, err, &coded)
		assert.Equal(t, cause, coded.Cause)
	})

	t.Run("activator error passes through", func(t *testing.T) {
		original := NewActivatorError("plugin.a", "already coded", nil)
		err := callActivatorHook("plugin.a", "stop", func() error { return original })
		assert.Same(t, original, err)
	})

	t.Run("panic becomes error with stack", func(t *testing.T) {
		err := callActivatorHook("plugin.a", "start", func() error { panic("nil map") })
		require.Error(t, err)
		assert.True(t, HasErrorCode(err, ErrCodeActivator))

		var coded *goerrors.Error
		require.ErrorAs(t, err, &coded)
		assert.Equal(t, "start", coded.Context["hook"])
		assert.NotEmpty(t, coded.Context["stack"])
	})
}
