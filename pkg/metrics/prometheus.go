// Package metrics provides Prometheus metrics for the presence attendance service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// latencyBuckets covers detection calls from a few ms up to multi-second CNN runs.
var latencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000} //nolint:gochecknoglobals // constant bucket layout

// Manager manages all Prometheus metrics for the presence service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Pipeline
	framesProcessed prometheus.Counter
	frameErrors     *prometheus.CounterVec
	facesDetected   prometheus.Counter
	matches         *prometheus.CounterVec
	detectLatency   prometheus.Histogram
	frameLatency    prometheus.Histogram
	outputDropped   prometheus.Counter
	outputQueueSize prometheus.Gauge
	capturing       prometheus.Gauge

	// Attendance
	attendanceTriggered  prometheus.Counter
	attendanceSuppressed prometheus.Counter
	ledgerWrites         *prometheus.CounterVec
	ledgerErrors         prometheus.Counter
	ledgerLatency        prometheus.Histogram

	// State
	gallerySize     prometheus.Gauge
	cooldownEntries prometheus.Gauge
	enrollments     *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "presence",
		subsystem:        "pipeline",
		histogramBuckets: latencyBuckets,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// RefreshInterval reports how often gauges sampled from outside should be refreshed.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)

	m.framesProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_processed_total",
		Help:      "Total number of frames that completed the detect/match/dedup cycle",
	})

	m.frameErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frame_errors_total",
		Help:      "Frame cycles that failed, by reason",
	}, []string{"reason"})

	m.facesDetected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "faces_detected_total",
		Help:      "Total number of faces returned by the detector",
	})

	m.matches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "matches_total",
		Help:      "Match decisions, by result (known/unknown)",
	}, []string{"result"})

	m.detectLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "detect_latency_milliseconds",
		Help:      "Time spent in face detection and embedding extraction per frame",
		Buckets:   m.histogramBuckets,
	})

	m.frameLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frame_latency_milliseconds",
		Help:      "End-to-end processing time per frame",
		Buckets:   m.histogramBuckets,
	})

	m.outputDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "output_dropped_total",
		Help:      "Messages dropped because the UI queue was full",
	})

	m.outputQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "output_queue_size",
		Help:      "Messages waiting for the UI consumer",
	})

	m.capturing = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "capturing",
		Help:      "1 while the capture loop is running",
	})

	m.attendanceTriggered = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "attendance",
		Name:      "triggered_total",
		Help:      "Recognitions that passed the cooldown and issued a ledger write",
	})

	m.attendanceSuppressed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "attendance",
		Name:      "suppressed_total",
		Help:      "Recognitions suppressed by the cooldown window",
	})

	m.ledgerWrites = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "ledger",
		Name:      "writes_total",
		Help:      "Ledger write attempts, by outcome (recorded/already_recorded)",
	}, []string{"outcome"})

	m.ledgerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "ledger",
		Name:      "errors_total",
		Help:      "Ledger write attempts that failed",
	})

	m.ledgerLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "ledger",
		Name:      "write_latency_milliseconds",
		Help:      "Ledger write latency",
		Buckets:   m.histogramBuckets,
	})

	m.gallerySize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "gallery",
		Name:      "entries",
		Help:      "Enrolled gallery entries",
	})

	m.cooldownEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "cooldown",
		Name:      "entries",
		Help:      "Identities tracked by the cooldown tracker",
	})

	m.enrollments = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "gallery",
		Name:      "enrollments_total",
		Help:      "Enrollment attempts, by result",
	}, []string{"result"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.httpErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "errors_total",
		Help:      "HTTP responses with status >= 400 by endpoint, method and error type",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "memory_bytes",
		Help:      "Heap bytes allocated",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "goroutines",
		Help:      "Number of goroutines",
	})
}

// RecordFrameProcessed counts a completed frame cycle.
func RecordFrameProcessed() { globalManager.framesProcessed.Inc() }

// RecordFrameError counts a failed frame cycle.
func RecordFrameError(reason string) { globalManager.frameErrors.WithLabelValues(reason).Inc() }

// RecordFacesDetected adds n detected faces.
func RecordFacesDetected(n int) { globalManager.facesDetected.Add(float64(n)) }

// RecordMatch counts one match decision.
func RecordMatch(known bool) {
	result := "unknown"
	if known {
		result = "known"
	}
	globalManager.matches.WithLabelValues(result).Inc()
}

// RecordDetectLatency observes detector latency in milliseconds.
func RecordDetectLatency(ms float64) { globalManager.detectLatency.Observe(ms) }

// RecordFrameLatency observes per-frame latency in milliseconds.
func RecordFrameLatency(ms float64) { globalManager.frameLatency.Observe(ms) }

// RecordOutputDropped counts a message dropped at the UI boundary.
func RecordOutputDropped() { globalManager.outputDropped.Inc() }

// UpdateOutputQueueSize sets the UI queue depth.
func UpdateOutputQueueSize(n int) { globalManager.outputQueueSize.Set(float64(n)) }

// UpdateCapturing flips the capturing gauge.
func UpdateCapturing(on bool) {
	if on {
		globalManager.capturing.Set(1)
		return
	}
	globalManager.capturing.Set(0)
}

// RecordAttendanceTriggered counts a cooldown trigger.
func RecordAttendanceTriggered() { globalManager.attendanceTriggered.Inc() }

// RecordAttendanceSuppressed counts a cooldown suppression.
func RecordAttendanceSuppressed() { globalManager.attendanceSuppressed.Inc() }

// RecordLedgerWrite counts a ledger write by outcome.
func RecordLedgerWrite(outcome string) { globalManager.ledgerWrites.WithLabelValues(outcome).Inc() }

// RecordLedgerError counts a failed ledger write.
func RecordLedgerError() { globalManager.ledgerErrors.Inc() }

// RecordLedgerLatency observes ledger write latency in milliseconds.
func RecordLedgerLatency(ms float64) { globalManager.ledgerLatency.Observe(ms) }

// UpdateGallerySize sets the number of gallery entries.
func UpdateGallerySize(n int) { globalManager.gallerySize.Set(float64(n)) }

// UpdateCooldownEntries sets the number of tracked identities.
func UpdateCooldownEntries(n int) { globalManager.cooldownEntries.Set(float64(n)) }

// RecordEnrollment counts an enrollment attempt.
func RecordEnrollment(result string) { globalManager.enrollments.WithLabelValues(result).Inc() }

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordHTTPError counts an HTTP error response.
func RecordHTTPError(endpoint, method, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap size gauge.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the registry all package-level metrics are registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
