package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for fleetwright.
type Metrics struct {
	config MetricsConfig

	// Actor run metrics
	actorRuns        *prometheus.CounterVec
	actorRunDuration *prometheus.HistogramVec

	// Remote platform call metrics
	remoteCalls     *prometheus.CounterVec
	remoteCallErrs  *prometheus.CounterVec
	pollIterations  *prometheus.CounterVec
	tasksAwaited    *prometheus.CounterVec
	arraysSimulated prometheus.Counter

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// System metrics
	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
// When metrics are disabled a no-op instance is returned.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		actorRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actor_runs_total",
				Help:      "Total number of actor runs by actor type and status",
			},
			[]string{"actor", "status", "dry_run"},
		),
		actorRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "actor_run_duration_seconds",
				Help:      "Duration of actor runs in seconds",
				Buckets:   buckets,
			},
			[]string{"actor", "status"},
		),
		remoteCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_calls_total",
				Help:      "Total number of fleet platform API calls",
			},
			[]string{"method"},
		),
		remoteCallErrs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_call_errors_total",
				Help:      "Total number of failed fleet platform API calls",
			},
			[]string{"method"},
		),
		pollIterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_iterations_total",
				Help:      "Total number of convergence poll iterations",
			},
			[]string{"predicate"},
		),
		tasksAwaited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_awaited_total",
				Help:      "Total number of remote tasks awaited to a terminal status",
			},
			[]string{"status"},
		),
		arraysSimulated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "arrays_simulated_total",
				Help:      "Total number of simulated array handles fabricated",
			},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of actor errors by class",
			},
			[]string{"class"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active workflow runs",
			},
		),
	}

	registry.MustRegister(
		m.actorRuns,
		m.actorRunDuration,
		m.remoteCalls,
		m.remoteCallErrs,
		m.pollIterations,
		m.tasksAwaited,
		m.arraysSimulated,
		m.errorsByClass,
		m.activeRuns,
	)

	return m, nil
}

// RecordActorRun records a finished actor run.
func (m *Metrics) RecordActorRun(actor, status string, dry bool, duration time.Duration) {
	if m.actorRuns == nil {
		return
	}
	m.actorRuns.WithLabelValues(actor, status, fmt.Sprintf("%t", dry)).Inc()
	m.actorRunDuration.WithLabelValues(actor, status).Observe(duration.Seconds())
}

// RecordRemoteCall records one fleet platform API call.
func (m *Metrics) RecordRemoteCall(method string, err error) {
	if m.remoteCalls == nil {
		return
	}
	m.remoteCalls.WithLabelValues(method).Inc()
	if err != nil {
		m.remoteCallErrs.WithLabelValues(method).Inc()
	}
}

// RecordPollIteration records one convergence poll sample.
func (m *Metrics) RecordPollIteration(predicate string) {
	if m.pollIterations == nil {
		return
	}
	m.pollIterations.WithLabelValues(predicate).Inc()
}

// RecordTaskAwaited records a remote task reaching a terminal status.
func (m *Metrics) RecordTaskAwaited(success bool) {
	if m.tasksAwaited == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.tasksAwaited.WithLabelValues(status).Inc()
}

// RecordArraySimulated records the fabrication of a simulated handle.
func (m *Metrics) RecordArraySimulated() {
	if m.arraysSimulated == nil {
		return
	}
	m.arraysSimulated.Inc()
}

// RecordError records an actor error by class.
func (m *Metrics) RecordError(class string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// RunStarted increments the active run gauge.
func (m *Metrics) RunStarted() {
	if m.activeRuns == nil {
		return
	}
	m.activeRuns.Inc()
}

// RunCompleted decrements the active run gauge.
func (m *Metrics) RunCompleted() {
	if m.activeRuns == nil {
		return
	}
	m.activeRuns.Dec()
}

// StartMetricsServer starts the metrics HTTP endpoint if enabled.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled || m.registry == nil {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	go func() {
		// Serve until process exit; errors here must not take down runs.
		_ = http.ListenAndServe(m.config.ListenAddress, mux)
	}()

	return nil
}
