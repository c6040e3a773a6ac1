// metrics.go: Runtime metrics for the bundle loader
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names emitted by the loader.
const (
	MetricBundlesLoaded         = "bundles_loaded_total"
	MetricBundleLoadFailures    = "bundle_load_failures_total"
	MetricBundleResolveFailures = "bundle_resolve_failures_total"
	MetricBundleStartFailures   = "bundle_start_failures_total"
	MetricBundlesByState        = "bundles_by_state"
	MetricBundleStartSeconds    = "bundle_start_seconds"
)

// MetricsCollector receives loader metrics. Labels may be nil.
type MetricsCollector interface {
	IncrementCounter(name string, labels map[string]string, value int64)
	SetGauge(name string, labels map[string]string, value float64)
	RecordHistogram(name string, labels map[string]string, value float64)
	GetMetrics() map[string]interface{}
}

// DefaultMetricsCollector keeps metrics in memory. Keys are the metric name
// followed by "_<label>_<value>" pairs in label order.
type DefaultMetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewDefaultMetricsCollector creates an empty in-memory collector.
func NewDefaultMetricsCollector() *DefaultMetricsCollector {
	return &DefaultMetricsCollector{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// IncrementCounter implements MetricsCollector
func (dmc *DefaultMetricsCollector) IncrementCounter(name string, labels map[string]string, value int64) {
	dmc.mu.Lock()
	defer dmc.mu.Unlock()
	dmc.counters[metricKey(name, labels)] += value
}

// SetGauge implements MetricsCollector
func (dmc *DefaultMetricsCollector) SetGauge(name string, labels map[string]string, value float64) {
	dmc.mu.Lock()
	defer dmc.mu.Unlock()
	dmc.gauges[metricKey(name, labels)] = value
}

// RecordHistogram implements MetricsCollector
func (dmc *DefaultMetricsCollector) RecordHistogram(name string, labels map[string]string, value float64) {
	dmc.mu.Lock()
	defer dmc.mu.Unlock()

	key := metricKey(name, labels)
	dmc.histograms[key] = append(dmc.histograms[key], value)
	if len(dmc.histograms[key]) > 1000 {
		dmc.histograms[key] = dmc.histograms[key][len(dmc.histograms[key])-1000:]
	}
}

// GetMetrics implements MetricsCollector. Histograms are reported as
// <key>_count and <key>_sum.
func (dmc *DefaultMetricsCollector) GetMetrics() map[string]interface{} {
	dmc.mu.RLock()
	defer dmc.mu.RUnlock()

	metrics := make(map[string]interface{}, len(dmc.counters)+len(dmc.gauges)+2*len(dmc.histograms))
	for k, v := range dmc.counters {
		metrics[k] = v
	}
	for k, v := range dmc.gauges {
		metrics[k] = v
	}
	for k, values := range dmc.histograms {
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		metrics[k+"_count"] = int64(len(values))
		metrics[k+"_sum"] = sum
	}
	return metrics
}

// Counter returns a counter value, 0 when unset.
func (dmc *DefaultMetricsCollector) Counter(name string, labels map[string]string) int64 {
	dmc.mu.RLock()
	defer dmc.mu.RUnlock()
	return dmc.counters[metricKey(name, labels)]
}

// Gauge returns a gauge value and whether it was set.
func (dmc *DefaultMetricsCollector) Gauge(name string, labels map[string]string) (float64, bool) {
	dmc.mu.RLock()
	defer dmc.mu.RUnlock()
	v, ok := dmc.gauges[metricKey(name, labels)]
	return v, ok
}

func metricKey(name string, labels map[string]string) string {
	var b strings.Builder
	b.WriteString(name)
	for _, k := range sortedLabelNames(labels) {
		fmt.Fprintf(&b, "_%s_%s", k, labels[k])
	}
	return b.String()
}

func sortedLabelNames(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PrometheusMetricsCollector forwards metrics to a Prometheus registerer.
// Vectors are created on first use; the label names of that first call fix
// the vector's schema and later calls with other label names are dropped.
type PrometheusMetricsCollector struct {
	namespace string
	factory   promauto.Factory
	fallback  *DefaultMetricsCollector

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetricsCollector registers metrics on reg under namespace.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetricsCollector(reg prometheus.Registerer, namespace string) *PrometheusMetricsCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusMetricsCollector{
		namespace:  namespace,
		factory:    promauto.With(reg),
		fallback:   NewDefaultMetricsCollector(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// IncrementCounter implements MetricsCollector
func (p *PrometheusMetricsCollector) IncrementCounter(name string, labels map[string]string, value int64) {
	p.fallback.IncrementCounter(name, labels, value)

	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = p.factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      metricHelp(name),
		}, sortedLabelNames(labels))
		p.counters[name] = vec
	}
	p.mu.Unlock()

	if c, err := vec.GetMetricWith(prometheus.Labels(labels)); err == nil {
		c.Add(float64(value))
	}
}

// SetGauge implements MetricsCollector
func (p *PrometheusMetricsCollector) SetGauge(name string, labels map[string]string, value float64) {
	p.fallback.SetGauge(name, labels, value)

	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = p.factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      metricHelp(name),
		}, sortedLabelNames(labels))
		p.gauges[name] = vec
	}
	p.mu.Unlock()

	if g, err := vec.GetMetricWith(prometheus.Labels(labels)); err == nil {
		g.Set(value)
	}
}

// RecordHistogram implements MetricsCollector
func (p *PrometheusMetricsCollector) RecordHistogram(name string, labels map[string]string, value float64) {
	p.fallback.RecordHistogram(name, labels, value)

	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = p.factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      metricHelp(name),
			Buckets:   prometheus.DefBuckets,
		}, sortedLabelNames(labels))
		p.histograms[name] = vec
	}
	p.mu.Unlock()

	if h, err := vec.GetMetricWith(prometheus.Labels(labels)); err == nil {
		h.Observe(value)
	}
}

// GetMetrics implements MetricsCollector from the in-memory mirror.
func (p *PrometheusMetricsCollector) GetMetrics() map[string]interface{} {
	return p.fallback.GetMetrics()
}

func metricHelp(name string) string {
	switch name {
	case MetricBundlesLoaded:
		return "Bundles installed by the loader"
	case MetricBundleLoadFailures:
		return "Bundle directories that could not be installed"
	case MetricBundleResolveFailures:
		return "Bundles left INSTALLED by dependency resolution"
	case MetricBundleStartFailures:
		return "Bundle activator start failures"
	case MetricBundlesByState:
		return "Installed bundles per lifecycle state"
	case MetricBundleStartSeconds:
		return "Time spent in bundle activator start hooks"
	default:
		return strings.ReplaceAll(name, "_", " ")
	}
}
