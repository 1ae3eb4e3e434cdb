package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for descriptions views. A Metrics
// built from a disabled config is a no-op.
type Metrics struct {
	config MetricsConfig

	// Fetch metrics
	fetchesStarted   *prometheus.CounterVec
	fetchesCompleted *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	staleDiscarded   *prometheus.CounterVec

	// Render metrics
	renderDuration *prometheus.HistogramVec
	fieldsRendered *prometheus.CounterVec
	configErrors   *prometheus.CounterVec

	// Edit metrics
	editTransitions    *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	activeEdits        *prometheus.GaugeVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// Server metrics
	activeSessions prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with its own registry.
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

		fetchesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_started_total",
				Help:      "Total number of data source requests issued",
			},
			[]string{"view"},
		),
		fetchesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_completed_total",
				Help:      "Total number of data source requests settled",
			},
			[]string{"view", "status"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of data source requests in seconds",
				Buckets:   buckets,
			},
			[]string{"view", "status"},
		),
		staleDiscarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_responses_discarded_total",
				Help:      "Responses dropped because a newer request was issued",
			},
			[]string{"view"},
		),

		renderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "render_duration_seconds",
				Help:      "Duration of one render pass in seconds",
				Buckets:   buckets,
			},
			[]string{"view"},
		),
		fieldsRendered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fields_rendered_total",
				Help:      "Total number of field contracts rendered",
			},
			[]string{"value_type", "mode"},
		),
		configErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "configuration_errors_total",
				Help:      "Fields degraded because of schema configuration errors",
			},
			[]string{"value_type"},
		),

		editTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "edit_transitions_total",
				Help:      "Inline edit transitions by action and result",
			},
			[]string{"action", "result"},
		),
		validationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Edits rejected by validation rules",
			},
			[]string{"rule"},
		),
		activeEdits: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_edits",
				Help:      "Fields currently in edit mode",
			},
			[]string{"view"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),

		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Current number of live view sessions",
			},
		),
	}

	registry.MustRegister(
		m.fetchesStarted,
		m.fetchesCompleted,
		m.fetchDuration,
		m.staleDiscarded,
		m.renderDuration,
		m.fieldsRendered,
		m.configErrors,
		m.editTransitions,
		m.validationFailures,
		m.activeEdits,
		m.errorsByClass,
		m.activeSessions,
	)

	return m, nil
}

// Fetch Metrics

// RecordFetchStarted counts an issued request.
func (m *Metrics) RecordFetchStarted(view string) {
	if m.fetchesStarted == nil {
		return
	}
	m.fetchesStarted.WithLabelValues(view).Inc()
}

// RecordFetchCompleted records a settled request with its status.
func (m *Metrics) RecordFetchCompleted(view, status string, duration time.Duration) {
	if m.fetchesCompleted == nil {
		return
	}
	m.fetchesCompleted.WithLabelValues(view, status).Inc()
	m.fetchDuration.WithLabelValues(view, status).Observe(duration.Seconds())
}

// RecordStaleDiscarded counts a superseded response.
func (m *Metrics) RecordStaleDiscarded(view string) {
	if m.staleDiscarded == nil {
		return
	}
	m.staleDiscarded.WithLabelValues(view).Inc()
}

// Render Metrics

// RecordRender records the duration of a render pass.
func (m *Metrics) RecordRender(view string, duration time.Duration) {
	if m.renderDuration == nil {
		return
	}
	m.renderDuration.WithLabelValues(view).Observe(duration.Seconds())
}

// RecordFieldRendered counts one rendered contract.
func (m *Metrics) RecordFieldRendered(valueType, mode string) {
	if m.fieldsRendered == nil {
		return
	}
	m.fieldsRendered.WithLabelValues(valueType, mode).Inc()
}

// RecordConfigError counts a degraded field.
func (m *Metrics) RecordConfigError(valueType string) {
	if m.configErrors == nil {
		return
	}
	m.configErrors.WithLabelValues(valueType).Inc()
	m.errorsByClass.WithLabelValues("configuration").Inc()
}

// Edit Metrics

// RecordEditTransition counts an edit transition. result is "ok",
// "rejected" or "failed".
func (m *Metrics) RecordEditTransition(action, result string) {
	if m.editTransitions == nil {
		return
	}
	m.editTransitions.WithLabelValues(action, result).Inc()
}

// RecordValidationFailure counts an edit rejected by rule.
func (m *Metrics) RecordValidationFailure(rule string) {
	if m.validationFailures == nil {
		return
	}
	m.validationFailures.WithLabelValues(rule).Inc()
	m.errorsByClass.WithLabelValues("validation").Inc()
}

// SetActiveEdits sets the number of fields in edit mode for a view.
func (m *Metrics) SetActiveEdits(view string, count int) {
	if m.activeEdits == nil {
		return
	}
	m.activeEdits.WithLabelValues(view).Set(float64(count))
}

// Error Metrics

// RecordError counts an error by class.
func (m *Metrics) RecordError(class string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// Server Metrics

// SetActiveSessions sets the number of live sessions.
func (m *Metrics) SetActiveSessions(count int) {
	if m.activeSessions == nil {
		return
	}
	m.activeSessions.Set(float64(count))
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer serves metrics on the configured listen address in
// the background.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", m.config.ListenAddress).Msg("Metrics server stopped")
		}
	}()

	return nil
}
