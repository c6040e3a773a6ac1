// bundle_test.go: Bundle state machine tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSingleBundle(t *testing.T, extra ...string) (*BundleLoader, *Bundle) {
	t.Helper()
	loader, _, _ := newTestLoader(t)
	location := writeMFBundle(t, t.TempDir(), "plugin.single", extra...)
	b, err := loader.LoadBundle(location)
	require.NoError(t, err)
	return loader, b
}

func TestBundle_InvalidTransitionsHaveNoSideEffects(t *testing.T) {
	_, b := loadSingleBundle(t)
	require.Equal(t, StateInstalled, b.State())

	err := b.Start()
	assert.True(t, HasErrorCode(err, ErrCodeBundleState))
	assert.Equal(t, StateInstalled, b.State())

	err = b.Stop()
	assert.True(t, HasErrorCode(err, ErrCodeBundleState))
	assert.Equal(t, StateInstalled, b.State())

	require.NoError(t, b.Resolve())
	require.NoError(t, b.Start())
	assert.True(t, HasErrorCode(b.Start(), ErrCodeBundleState), "already active")
	assert.Equal(t, StateActive, b.State())
	assert.True(t, HasErrorCode(b.Uninstall(), ErrCodeBundleState), "active bundles cannot be uninstalled")
	assert.Equal(t, StateActive, b.State())

	require.NoError(t, b.Stop())
	assert.Equal(t, StateResolved, b.State())
	assert.True(t, HasErrorCode(b.Stop(), ErrCodeBundleState))
	assert.Equal(t, StateResolved, b.State())
}

func TestBundle_StatePredicates(t *testing.T) {
	_, b := loadSingleBundle(t)
	assert.False(t, b.IsResolved())
	assert.False(t, b.IsStarted())

	before := b.LastModified()
	require.NoError(t, b.Resolve())
	assert.True(t, b.IsResolved())
	assert.False(t, b.IsActive())
	assert.False(t, b.LastModified().Before(before))

	require.NoError(t, b.Start())
	assert.True(t, b.IsResolved())
	assert.True(t, b.IsStarted())
	assert.True(t, b.IsActive())
	assert.False(t, b.IsSystemBundle())
	assert.Equal(t, "plugin.single", b.SymbolicName())
	assert.Equal(t, "0.0.0", b.Version())
	assert.Equal(t, ActivationEager, b.ActivationPolicy())
}

func TestBundle_ActivatorPanicBecomesError(t *testing.T) {
	registerTestActivator(t, "test.Panicking", func() Activator {
		return ActivatorFuncs{OnStart: func(*BundleContext) error { panic("activator bug") }}
	})
	loader, b := loadSingleBundle(t, "Bundle-Activator: test.Panicking")

	var failed []BundleEvent
	loader.AddBundleListener(func(e BundleEvent) {
		if e.Type == EventStartFailed {
			failed = append(failed, e)
		}
	})

	require.NoError(t, b.Resolve())
	err := b.Start()
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeActivator))
	assert.Equal(t, StateResolved, b.State())
	require.Len(t, failed, 1)
	assert.Equal(t, err, failed[0].Error)
}

func TestBundle_StopFailureStillStops(t *testing.T) {
	registerTestActivator(t, "test.StopFails", func() Activator {
		return ActivatorFuncs{OnStop: func(*BundleContext) error { return errors.New("cannot flush") }}
	})
	_, b := loadSingleBundle(t, "Bundle-Activator: test.StopFails")
	require.NoError(t, b.Resolve())
	require.NoError(t, b.Start())

	err := b.Stop()
	assert.True(t, HasErrorCode(err, ErrCodeActivator))
	assert.Equal(t, StateResolved, b.State())
}

func TestBundleContext(t *testing.T) {
	var captured *BundleContext
	registerTestActivator(t, "test.Context", func() Activator {
		return ActivatorFuncs{OnStart: func(ctx *BundleContext) error {
			captured = ctx
			ctx.Services().RegisterService("test.Service", "value")
			return nil
		}}
	})
	loader, b := loadSingleBundle(t, "Bundle-Activator: test.Context")
	require.NoError(t, loader.StartBundle("plugin.single"))

	require.NotNil(t, captured)
	assert.Same(t, b, captured.Bundle())
	assert.Equal(t, "plugin.single", captured.SymbolicName())
	assert.Same(t, b, captured.FindBundle("plugin.single"))
	assert.Nil(t, captured.FindBundle("plugin.other"))
	assert.Same(t, loader.Extensions(), captured.ExtensionPointService())

	svc, ok := loader.Services().GetService("test.Service")
	require.True(t, ok)
	assert.Equal(t, "value", svc)

	_, ok = captured.StatePath(true)
	assert.False(t, ok, "loaders without a state root have no state paths")
}
