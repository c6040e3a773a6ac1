// platform_test.go: Platform lifecycle and end-to-end tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type platformFixture struct {
	platform *InternalPlatform
	logger   *TestLogger
	rec      *startRecorder
	plugins  string
	options  PlatformOptions
}

// newPlatformFixture lays out system.bundle, plugin.a and plugin.b (which
// requires plugin.a) under a fresh plugin directory.
func newPlatformFixture(t *testing.T) *platformFixture {
	t.Helper()
	root := t.TempDir()
	f := &platformFixture{
		logger:  NewTestLogger(),
		rec:     &startRecorder{},
		plugins: filepath.Join(root, "plugins"),
		options: PlatformOptions{
			CacheDir:    filepath.Join(root, "cache"),
			InstanceDir: filepath.Join(root, "instance"),
			UserDir:     filepath.Join(root, "user"),
		},
	}
	registerRecordingActivator(t, "test.Recording", f.rec)

	writeMFBundle(t, f.plugins, SystemBundleName, "Bundle-Version: 1.0.0")
	writeMFBundle(t, f.plugins, "plugin.b", "Bundle-Activator: test.Recording", "Require-Bundle: plugin.a")
	writeMFBundle(t, f.plugins, "plugin.a", "Bundle-Activator: test.Recording")

	f.platform = NewInternalPlatform(PlatformConfig{Logger: f.logger})
	t.Cleanup(f.platform.Shutdown)
	return f
}

func TestPlatform_EndToEnd(t *testing.T) {
	f := newPlatformFixture(t)
	p := f.platform

	require.NoError(t, p.Initialize([]string{f.plugins}, f.options))
	require.NoError(t, p.Launch())

	bundles := p.GetBundles()
	assert.ElementsMatch(t, []string{SystemBundleName, "plugin.a", "plugin.b"}, bundleNames(bundles))
	for _, b := range bundles {
		assert.True(t, b.IsActive(), b.SymbolicName())
	}
	assert.Equal(t, []string{"start:plugin.a", "start:plugin.b"}, f.rec.Events())
	assert.Equal(t, int64(0), p.GetBundle(SystemBundleName).ID())
	assert.True(t, p.GetBundle(SystemBundleName).IsSystemBundle())

	eps, err := GetServiceByID[ExtensionPointService](p.GetServiceRegistry(), ExtensionPointServiceID)
	require.NoError(t, err)
	assert.NotNil(t, eps)

	status, err := p.Health().Check(context.Background(), PlatformHealthService)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)
	status, err = p.Health().Check(context.Background(), "plugin.b")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)

	assert.True(t, f.logger.HasMessageWith("INFO", "Bundle state", "bundle", "plugin.a"))
}

func TestPlatform_MissingDependencyStaysInstalled(t *testing.T) {
	f := newPlatformFixture(t)
	writeMFBundle(t, f.plugins, "plugin.c", "Bundle-Activator: test.Recording", "Require-Bundle: plugin.missing")
	p := f.platform

	require.NoError(t, p.Initialize([]string{f.plugins}, f.options))

	c := p.GetBundle("plugin.c")
	require.NotNil(t, c)
	assert.Equal(t, StateInstalled, c.State())
	for _, name := range []string{SystemBundleName, "plugin.a", "plugin.b"} {
		assert.Equal(t, StateResolved, p.GetBundle(name).State(), name)
	}
	assert.True(t, f.logger.HasMessageWith("WARN", "Bundle could not be resolved", "bundle", "plugin.c"))
	assert.True(t, f.logger.HasMessageWith("INFO", "Bundle state", "state", "INSTALLED"))

	require.NoError(t, p.Launch())
	assert.Equal(t, StateInstalled, c.State())
	assert.True(t, p.GetBundle("plugin.b").IsActive())
	assert.Equal(t, -1, f.rec.indexOf("start:plugin.c"))
}

func TestPlatform_LifecycleGuards(t *testing.T) {
	f := newPlatformFixture(t)
	p := f.platform

	assert.False(t, p.IsInitialized())
	assert.False(t, p.IsRunning())
	assert.Panics(t, p.AssertInitialized)
	assert.Panics(t, func() { p.GetBundle("plugin.a") })
	assert.Panics(t, func() { _ = p.Launch() })
	p.Shutdown()

	require.NoError(t, p.Initialize([]string{f.plugins}, f.options))
	assert.NotPanics(t, p.AssertInitialized)
	assert.NotEmpty(t, p.SessionID())

	err := p.Initialize([]string{f.plugins}, f.options)
	assert.True(t, HasErrorCode(err, ErrCodePlatform))

	require.NoError(t, p.Launch())
	require.NoError(t, p.Launch(), "launch is idempotent")
	assert.Equal(t, []string{"start:plugin.a", "start:plugin.b"}, f.rec.Events())

	p.Shutdown()
	assert.False(t, p.IsInitialized())
	assert.False(t, p.IsRunning())
	assert.Equal(t, []string{"start:plugin.a", "start:plugin.b", "stop:plugin.b", "stop:plugin.a"}, f.rec.Events())

	require.NoError(t, p.Initialize([]string{f.plugins}, f.options), "a shut down platform can be initialized again")
}

func TestPlatform_Paths(t *testing.T) {
	f := newPlatformFixture(t)
	p := f.platform
	require.NoError(t, p.Initialize([]string{f.plugins}, f.options))

	assert.Equal(t, f.options.InstanceDir, p.GetInstancePath())
	assert.Equal(t, f.options.UserDir, p.GetUserPath())
	assert.Equal(t, f.options.CacheDir, p.GetCachePath())
	assert.NotEmpty(t, p.GetConfigurationPath())
	assert.NotEmpty(t, p.GetInstallPath())

	a := p.GetBundle("plugin.a")
	_, ok := p.GetStatePath(a, false)
	assert.False(t, ok, "not created yet")

	dir, ok := p.GetStatePath(a, true)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(f.options.InstanceDir, ".metadata", ".plugins", "plugin.a"), dir)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, ok = p.GetStatePath(nil, true)
	assert.False(t, ok)
}

func TestPlatform_CleanCache(t *testing.T) {
	f := newPlatformFixture(t)
	stale := filepath.Join(f.options.CacheDir, "old_1.0.0", "lib.lua")
	writeTestFile(t, stale, "stale")

	f.options.CleanCache = true
	require.NoError(t, f.platform.Initialize([]string{f.plugins}, f.options))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	assert.True(t, f.logger.HasMessage("INFO", "Code cache cleared"))
}

func TestPlatform_EnvironmentExpansion(t *testing.T) {
	f := newPlatformFixture(t)
	t.Setenv("GO_BUNDLES_TEST_PLUGINS", f.plugins)

	f.options.PluginDirs = []string{"${TEST_PLUGINS}"}
	require.NoError(t, f.platform.Initialize(nil, f.options))
	assert.NotNil(t, f.platform.GetBundle("plugin.a"))
}

func TestPlatform_InstallSearchPathsWhileRunning(t *testing.T) {
	f := newPlatformFixture(t)
	p := f.platform
	require.NoError(t, p.Initialize([]string{f.plugins}, f.options))
	require.NoError(t, p.Launch())

	extra := filepath.Join(t.TempDir(), "extra")
	writeMFBundle(t, extra, "plugin.late", "Bundle-Activator: test.Recording", "Require-Bundle: plugin.a")

	installed, err := p.InstallSearchPaths([]string{extra})
	require.NoError(t, err)
	assert.Equal(t, []string{"plugin.late"}, bundleNames(installed))
	assert.True(t, p.GetBundle("plugin.late").IsActive())
	assert.Equal(t, "start:plugin.late", f.rec.Events()[2])
	assert.Contains(t, p.Options().PluginDirs, extra)
}

func TestPlatform_BuiltinSystemBundle(t *testing.T) {
	root := t.TempDir()
	p := NewInternalPlatform(PlatformConfig{})
	t.Cleanup(p.Shutdown)

	require.NoError(t, p.Initialize(nil, PlatformOptions{
		CacheDir:    filepath.Join(root, "cache"),
		InstanceDir: filepath.Join(root, "instance"),
	}))
	require.NoError(t, p.Launch())

	sys := p.GetBundle(SystemBundleName)
	require.NotNil(t, sys)
	assert.Equal(t, RuntimeVersion, sys.Version())
	assert.True(t, sys.IsActive())

	_, ok := p.GetServiceRegistry().GetService(ExtensionPointServiceID)
	assert.True(t, ok)
	assert.NotNil(t, p.GetExtensionPointService())
}

func TestPlatform_Singleton(t *testing.T) {
	assert.Same(t, Platform(), Platform())
}
