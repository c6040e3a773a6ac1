// metrics_test.go: Metrics collector tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMetricsCollector(t *testing.T) {
	m := NewDefaultMetricsCollector()
	labels := map[string]string{"bundle": "plugin.a", "reason": "x"}

	m.IncrementCounter(MetricBundleStartFailures, labels, 1)
	m.IncrementCounter(MetricBundleStartFailures, labels, 2)
	m.SetGauge(MetricBundlesByState, map[string]string{"state": "ACTIVE"}, 3)
	m.RecordHistogram(MetricBundleStartSeconds, nil, 0.5)
	m.RecordHistogram(MetricBundleStartSeconds, nil, 1.5)

	assert.Equal(t, int64(3), m.Counter(MetricBundleStartFailures, labels))
	gauge, ok := m.Gauge(MetricBundlesByState, map[string]string{"state": "ACTIVE"})
	require.True(t, ok)
	assert.Equal(t, float64(3), gauge)
	_, ok = m.Gauge(MetricBundlesByState, map[string]string{"state": "RESOLVED"})
	assert.False(t, ok)

	all := m.GetMetrics()
	assert.Equal(t, int64(3), all["bundle_start_failures_total_bundle_plugin.a_reason_x"])
	assert.Equal(t, int64(2), all["bundle_start_seconds_count"])
	assert.Equal(t, 2.0, all["bundle_start_seconds_sum"])
}

func TestPrometheusMetricsCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetricsCollector(reg, "test")

	m.IncrementCounter(MetricBundlesLoaded, nil, 2)
	m.IncrementCounter(MetricBundleLoadFailures, map[string]string{"reason": "manifest"}, 1)
	m.IncrementCounter(MetricBundleLoadFailures, map[string]string{"other": "label"}, 1)
	m.SetGauge(MetricBundlesByState, map[string]string{"state": "ACTIVE"}, 4)
	m.RecordHistogram(MetricBundleStartSeconds, map[string]string{"bundle": "plugin.a"}, 0.01)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	series := 0
	for _, mf := range families {
		names[mf.GetName()] = true
		series += len(mf.GetMetric())
	}
	assert.Equal(t, 4, series, "the call with a different label schema is dropped")
	assert.True(t, names["test_bundles_loaded_total"])
	assert.True(t, names["test_bundle_load_failures_total"])
	assert.True(t, names["test_bundles_by_state"])
	assert.True(t, names["test_bundle_start_seconds"])

	assert.Equal(t, int64(2), m.GetMetrics()[MetricBundlesLoaded])
}

func TestPrometheusMetricsCollector_DrivesLoader(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPrometheusMetricsCollector(reg, "gobundles")
	root := t.TempDir()
	writeMFBundle(t, root, "plugin.a")

	loader := NewBundleLoader(LoaderConfig{Metrics: metrics, CodeCache: NewCodeCache(t.TempDir())})
	t.Cleanup(loader.UninstallAll)
	_, err := loader.LoadBundles(root)
	require.NoError(t, err)
	require.NoError(t, loader.StartBundle("plugin.a"))

	families, err := reg.Gather()
	require.NoError(t, err)
	var active float64
	for _, mf := range families {
		if mf.GetName() != "gobundles_bundles_by_state" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "state" && label.GetValue() == "ACTIVE" {
					active = metric.GetGauge().GetValue()
				}
			}
		}
	}
	assert.Equal(t, float64(1), active)
}
