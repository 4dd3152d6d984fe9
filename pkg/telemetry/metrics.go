package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for searchbench runs.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   prometheus.Histogram

	// Engine metrics
	enginesProvisioned *prometheus.CounterVec
	provisionDuration  *prometheus.HistogramVec

	// Recipe step metrics
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// Config patch metrics
	patchNoOps *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of provisioning runs started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of provisioning runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of a full provisioning run in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		enginesProvisioned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engines_total",
				Help:      "Per-engine outcomes by status",
			},
			[]string{"engine", "status"},
		),
		provisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provision_duration_seconds",
				Help:      "Duration of one engine's provisioning recipe in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"engine"},
		),
		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recipe_steps_total",
				Help:      "Recipe steps executed by engine and result",
			},
			[]string{"engine", "step", "result"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "recipe_step_duration_seconds",
				Help:      "Duration of individual recipe steps in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"engine", "step"},
		),
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Errors by classification kind",
			},
			[]string{"kind"},
		),
		patchNoOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_patch_noops_total",
				Help:      "Config patches whose expected default line was absent",
			},
			[]string{"engine"},
		),
	}

	collectors := []prometheus.Collector{
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.enginesProvisioned,
		m.provisionDuration,
		m.stepsExecuted,
		m.stepDuration,
		m.errorsByKind,
		m.patchNoOps,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// RecordRunStarted increments the started-runs counter.
func (m *Metrics) RecordRunStarted() {
	if m.registry == nil {
		return
	}
	m.runsStarted.Inc()
}

// RecordRunCompleted records a finished run with its overall status.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// RecordEngineOutcome records one engine's outcome.
func (m *Metrics) RecordEngineOutcome(engine, status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.enginesProvisioned.WithLabelValues(engine, status).Inc()
	if status == "provisioned" {
		m.provisionDuration.WithLabelValues(engine).Observe(duration.Seconds())
	}
}

// RecordStep records one recipe step execution.
func (m *Metrics) RecordStep(engine, step, result string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(engine, step, result).Inc()
	m.stepDuration.WithLabelValues(engine, step).Observe(duration.Seconds())
}

// RecordError records an error by classification kind.
func (m *Metrics) RecordError(kind string) {
	if m.registry == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// RecordPatchNoOp records a config patch that matched no line.
func (m *Metrics) RecordPatchNoOp(engine string) {
	if m.registry == nil {
		return
	}
	m.patchNoOps.WithLabelValues(engine).Inc()
}

// Handler returns an HTTP handler serving the metrics registry, or nil when
// metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on the configured listen address until the server
// fails. Intended to be run in a goroutine for the duration of a run.
func (m *Metrics) Serve() error {
	if m.registry == nil || m.config.Listen == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(m.config.Listen, mux)
}
