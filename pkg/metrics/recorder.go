// Package metrics adapts Prometheus collectors to a lazily-registering
// Recorder, following the teacher's pkg/metrics/recorder.go shape, then adds
// the fixed counters/gauges/histogram C11 names for this module.
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "threatmodel"
	subsystem = "pipeline"
)

// Recorder lazily registers one Prometheus vector per unique metric name.
type Recorder struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewRecorder builds a Recorder backed by reg. A nil registry is replaced by
// a fresh private registry from prometheus.NewRegistry.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Recorder{
		registry:   reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry exposes the underlying registry for wiring into an HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Counter increments the named counter by delta.
func (r *Recorder) Counter(name string, labels map[string]string, delta float64) {
	if r == nil || delta <= 0 {
		return
	}
	names, values := normalizeLabels(labels)
	vec := r.counterVec(name, names)
	if vec == nil {
		return
	}
	vec.WithLabelValues(values...).Add(delta)
}

// Gauge sets the named gauge to value.
func (r *Recorder) Gauge(name string, labels map[string]string, value float64) {
	if r == nil {
		return
	}
	names, values := normalizeLabels(labels)
	vec := r.gaugeVec(name, names)
	if vec == nil {
		return
	}
	vec.WithLabelValues(values...).Set(value)
}

// Observe records a duration sample (seconds) in the named histogram.
func (r *Recorder) Observe(name string, labels map[string]string, seconds float64) {
	if r == nil {
		return
	}
	names, values := normalizeLabels(labels)
	vec := r.histogramVec(name, names)
	if vec == nil {
		return
	}
	vec.WithLabelValues(values...).Observe(seconds)
}

func (r *Recorder) counterVec(name string, labelNames []string) *prometheus.CounterVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[name]; ok {
		return existing
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      "counter: " + name,
	}, labelNames)
	if err := r.registry.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if c, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				r.counters[name] = c
				return c
			}
		}
		return nil
	}
	r.counters[name] = vec
	return vec
}

func (r *Recorder) gaugeVec(name string, labelNames []string) *prometheus.GaugeVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.gauges[name]; ok {
		return existing
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      "gauge: " + name,
	}, labelNames)
	if err := r.registry.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if g, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				r.gauges[name] = g
				return g
			}
		}
		return nil
	}
	r.gauges[name] = vec
	return vec
}

func (r *Recorder) histogramVec(name string, labelNames []string) *prometheus.HistogramVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[name]; ok {
		return existing
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      "histogram: " + name,
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, labelNames)
	if err := r.registry.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if h, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				r.histograms[name] = h
				return h
			}
		}
		return nil
	}
	r.histograms[name] = vec
	return vec
}

func normalizeLabels(labels map[string]string) ([]string, []string) {
	if len(labels) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	values := make([]string, len(names))
	for i, k := range names {
		values[i] = labels[k]
	}
	return names, values
}

// Metric names for the module's domain series, kept in one place. Only the
// tests record them; no component code does, so at runtime /metrics carries
// just the series recorded by InstrumentHandler.
const (
	MetricProviderInvocations = "provider_invocations_total"
	MetricProviderFailures    = "provider_failures_total"
	MetricCacheHits           = "cache_hits_total"
	MetricCacheMisses         = "cache_misses_total"
	MetricJobsByState         = "jobs_by_state"
	MetricPipelineDuration    = "pipeline_duration_seconds"
)
