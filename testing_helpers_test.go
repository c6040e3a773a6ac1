// testing_helpers_test.go: Bundle fixtures shared by the test suite
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// manifestMF renders a MANIFEST.MF for symbolicName plus extra header lines.
func manifestMF(symbolicName string, extra ...string) string {
	var b strings.Builder
	b.WriteString("Manifest-Version: 1.0\n")
	b.WriteString("Bundle-SymbolicName: " + symbolicName + "\n")
	for _, line := range extra {
		b.WriteString(line + "\n")
	}
	return b.String()
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

// writeBundleDir creates <root>/<dir> with the given files, keyed by
// slash-separated resource name.
func writeBundleDir(t *testing.T, root, dir string, files map[string]string) string {
	t.Helper()
	location := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(location, 0750))
	for name, content := range files {
		writeTestFile(t, filepath.Join(location, filepath.FromSlash(name)), content)
	}
	return location
}

// writeMFBundle creates a directory bundle named after its symbolic name.
func writeMFBundle(t *testing.T, root, symbolicName string, extra ...string) string {
	t.Helper()
	return writeBundleDir(t, root, symbolicName, map[string]string{
		ManifestMFPath: manifestMF(symbolicName, extra...),
	})
}

// writeZipBundle creates an archive bundle at path.
func writeZipBundle(t *testing.T, path string, files map[string]string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

// newTestLoader returns a loader with a capturing logger, a private code
// cache and an in-memory metrics collector.
func newTestLoader(t *testing.T) (*BundleLoader, *TestLogger, *DefaultMetricsCollector) {
	t.Helper()
	logger := NewTestLogger()
	metrics := NewDefaultMetricsCollector()
	loader := NewBundleLoader(LoaderConfig{
		Logger:    logger,
		CodeCache: NewCodeCache(filepath.Join(t.TempDir(), "cache")),
		Metrics:   metrics,
		Health:    NewHealthReporter(),
	})
	t.Cleanup(loader.UninstallAll)
	return loader, logger, metrics
}

// startRecorder records the order in which activator hooks run.
type startRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *startRecorder) add(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *startRecorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *startRecorder) indexOf(event string) int {
	for i, e := range r.Events() {
		if e == event {
			return i
		}
	}
	return -1
}

// registerRecordingActivator registers className for the duration of the
// test. Its hooks record "start:<bundle>" and "stop:<bundle>".
func registerRecordingActivator(t *testing.T, className string, rec *startRecorder) {
	t.Helper()
	registerTestActivator(t, className, func() Activator {
		return ActivatorFuncs{
			OnStart: func(ctx *BundleContext) error {
				rec.add("start:" + ctx.SymbolicName())
				return nil
			},
			OnStop: func(ctx *BundleContext) error {
				rec.add("stop:" + ctx.SymbolicName())
				return nil
			},
		}
	})
}

func registerTestActivator(t *testing.T, className string, factory ActivatorFactory) {
	t.Helper()
	require.NoError(t, RegisterActivator(className, factory))
	t.Cleanup(func() { UnregisterActivator(className) })
}

func bundleNames(bundles []*Bundle) []string {
	names := make([]string, 0, len(bundles))
	for _, b := range bundles {
		names = append(names, b.SymbolicName())
	}
	return names
}

func indexOfName(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
