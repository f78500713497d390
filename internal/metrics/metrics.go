package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	UploadsAccepted   *prometheus.CounterVec
	UploadsRejected   *prometheus.CounterVec
	DetectionsTotal   *prometheus.CounterVec
	DetectionErrors   *prometheus.CounterVec
	ObjectsDetected   *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec
	FilesSwept        prometheus.Counter
	SweepErrors       prometheus.Counter

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		UploadsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detect_uploads_accepted_total",
			Help: "Uploads stored for detection",
		}, []string{"model"}),
		UploadsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detect_uploads_rejected_total",
			Help: "Uploads rejected by validation",
		}, []string{"reason"}),
		DetectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detect_runs_total",
			Help: "Successful detection runs",
		}, []string{"model"}),
		DetectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detect_run_errors_total",
			Help: "Failed detection runs",
		}, []string{"model"}),
		ObjectsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detect_objects_total",
			Help: "Objects found across all runs",
		}, []string{"model"}),
		InferenceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "detect_inference_seconds",
			Help:    "Time spent detecting and annotating one upload",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"model"}),
		FilesSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detect_uploads_swept_total",
			Help: "Expired uploads deleted by the retention sweeper",
		}),
		SweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detect_sweep_errors_total",
			Help: "Errors swallowed by the retention sweeper",
		}),
	}

	m.registry.MustRegister(
		m.UploadsAccepted,
		m.UploadsRejected,
		m.DetectionsTotal,
		m.DetectionErrors,
		m.ObjectsDetected,
		m.InferenceDuration,
		m.FilesSwept,
		m.SweepErrors,
		collectors.NewGoCollector(),
	)

	return m
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveUpload counts an accepted upload.
func (m *Metrics) ObserveUpload(model string) {
	if m == nil {
		return
	}
	m.UploadsAccepted.WithLabelValues(model).Inc()
}

// ObserveRejection counts an upload rejected for reason.
func (m *Metrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.UploadsRejected.WithLabelValues(reason).Inc()
}

// ObserveDetection records a successful run.
func (m *Metrics) ObserveDetection(model string, objects int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DetectionsTotal.WithLabelValues(model).Inc()
	m.ObjectsDetected.WithLabelValues(model).Add(float64(objects))
	m.InferenceDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}

// ObserveDetectionError records a failed run.
func (m *Metrics) ObserveDetectionError(model string) {
	if m == nil {
		return
	}
	m.DetectionErrors.WithLabelValues(model).Inc()
}

// ObserveSweep records the outcome of one retention sweep.
func (m *Metrics) ObserveSweep(deleted, failed int) {
	if m == nil {
		return
	}
	m.FilesSwept.Add(float64(deleted))
	m.SweepErrors.Add(float64(failed))
}
