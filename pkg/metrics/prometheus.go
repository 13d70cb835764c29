// Package metrics provides Prometheus metrics for the facesense attendance service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultRefreshInterval = 10 * time.Second

// Match outcome labels.
const (
	OutcomeAccepted       = "accepted"
	OutcomeBelowThreshold = "below_threshold"
	OutcomeUnknown        = "unknown"
	OutcomeCooldown       = "cooldown"
	OutcomeNotEnrolled    = "not_enrolled"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Recognition
	framesProcessed   prometheus.Counter
	framesSkipped     prometheus.Counter
	facesDetected     prometheus.Counter
	matchOutcomes     *prometheus.CounterVec
	matchLatency      prometheus.Histogram
	malformedVariants prometheus.Counter
	embedderErrors    *prometheus.CounterVec
	embedderLatency   prometheus.Histogram

	// Cooldown
	cooldownEntries prometheus.Gauge
	cooldownSwept   prometheus.Counter

	// Ledger
	ledgerWrites  *prometheus.CounterVec
	ledgerErrors  prometheus.Counter
	ledgerLatency prometheus.Histogram
	ledgerRecords prometheus.Gauge

	// Gallery
	galleryProfiles       prometheus.Gauge
	galleryVariants       prometheus.Gauge
	galleryAverageQuality prometheus.Gauge

	// Queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	workerCount        prometheus.Gauge
	workerErrors       prometheus.Counter
	workerLatency      prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Camera
	cameraConnected prometheus.Gauge

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "facesense",
		subsystem:        "",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	m.framesProcessed = m.counter("frames_processed_total", "Frames that went through detection")
	m.framesSkipped = m.counter("frames_skipped_total", "Frame loop iterations without a usable frame")
	m.facesDetected = m.counter("faces_detected_total", "Faces returned by the detector")
	m.matchOutcomes = m.counterVec("match_outcomes_total", "Recognition decisions by outcome", "outcome")
	m.matchLatency = m.histogram("match_latency_milliseconds", "Time spent scanning the gallery for one probe")
	m.malformedVariants = m.counter("matcher_malformed_variants_total", "Gallery variants skipped during matching")
	m.embedderErrors = m.counterVec("embedder_errors_total", "Face embedder call failures", "operation")
	m.embedderLatency = m.histogram("embedder_latency_milliseconds", "Face embedder round trip time")

	m.cooldownEntries = m.gauge("cooldown_entries", "Identities currently tracked by the cooldown")
	m.cooldownSwept = m.counter("cooldown_swept_total", "Cooldown entries removed by sweeps")

	m.ledgerWrites = m.counterVec("ledger_writes_total", "Attendance ledger writes by operation", "op")
	m.ledgerErrors = m.counter("ledger_errors_total", "Attendance ledger writes that failed and were rolled back")
	m.ledgerLatency = m.histogram("ledger_latency_milliseconds", "Attendance ledger write latency")
	m.ledgerRecords = m.gauge("ledger_records_today", "Attendance records for the current day")

	m.galleryProfiles = m.gauge("gallery_profiles", "Employee profiles loaded in the gallery")
	m.galleryVariants = m.gauge("gallery_variants", "Embedding variants loaded in the gallery")
	m.galleryAverageQuality = m.gauge("gallery_average_quality", "Average enrollment quality of the gallery")

	m.queueSize = m.gauge("queue_size", "Probes waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Probe queue capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Probes enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Probes dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Probes dropped because the queue was full or closed")
	m.workerCount = m.gauge("worker_count", "Recognition workers running")
	m.workerErrors = m.counter("worker_errors_total", "Probe processing failures")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Time to process one probe end to end")

	m.httpRequests = promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "http_requests_total",
		Help: "HTTP requests by endpoint, method and status", ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "http_request_duration_milliseconds",
		Help: "HTTP request duration", Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.cameraConnected = m.gauge("camera_connected", "1 when the frame source is delivering frames")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Running goroutines")
}

// RefreshInterval reports how often gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// Enabled reports whether recording is on.
func (m *Manager) Enabled() bool { return m.enabled }

func on() bool { return globalManager != nil && globalManager.enabled }

// RecordFrameProcessed increments the processed frames counter.
func RecordFrameProcessed() {
	if on() {
		globalManager.framesProcessed.Inc()
	}
}

// RecordFrameSkipped increments the skipped frames counter.
func RecordFrameSkipped() {
	if on() {
		globalManager.framesSkipped.Inc()
	}
}

// RecordFacesDetected adds n detected faces.
func RecordFacesDetected(n int) {
	if on() && n > 0 {
		globalManager.facesDetected.Add(float64(n))
	}
}

// RecordMatchOutcome counts a recognition decision.
func RecordMatchOutcome(outcome string) {
	if on() {
		globalManager.matchOutcomes.WithLabelValues(outcome).Inc()
	}
}

// RecordMatchLatency records gallery scan time in milliseconds.
func RecordMatchLatency(ms float64) {
	if on() {
		globalManager.matchLatency.Observe(ms)
	}
}

// RecordMalformedVariant counts a skipped gallery variant.
func RecordMalformedVariant() {
	if on() {
		globalManager.malformedVariants.Inc()
	}
}

// RecordEmbedderError counts a failed embedder call.
func RecordEmbedderError(operation string) {
	if on() {
		globalManager.embedderErrors.WithLabelValues(operation).Inc()
	}
}

// RecordEmbedderLatency records an embedder round trip in milliseconds.
func RecordEmbedderLatency(ms float64) {
	if on() {
		globalManager.embedderLatency.Observe(ms)
	}
}

// UpdateCooldownEntries sets the tracked identity count.
func UpdateCooldownEntries(n int) {
	if on() {
		globalManager.cooldownEntries.Set(float64(n))
	}
}

// RecordCooldownSwept adds swept entries.
func RecordCooldownSwept(n int) {
	if on() && n > 0 {
		globalManager.cooldownSwept.Add(float64(n))
	}
}

// RecordLedgerWrite counts a ledger write by op (insert, update, noop).
func RecordLedgerWrite(op string) {
	if on() {
		globalManager.ledgerWrites.WithLabelValues(op).Inc()
	}
}

// RecordLedgerError counts a failed ledger write.
func RecordLedgerError() {
	if on() {
		globalManager.ledgerErrors.Inc()
	}
}

// RecordLedgerLatency records ledger write latency in milliseconds.
func RecordLedgerLatency(ms float64) {
	if on() {
		globalManager.ledgerLatency.Observe(ms)
	}
}

// UpdateLedgerRecordsToday sets today's record count.
func UpdateLedgerRecordsToday(n int) {
	if on() {
		globalManager.ledgerRecords.Set(float64(n))
	}
}

// UpdateGallery sets the gallery gauges.
func UpdateGallery(profiles, variants int, averageQuality float64) {
	if on() {
		globalManager.galleryProfiles.Set(float64(profiles))
		globalManager.galleryVariants.Set(float64(variants))
		globalManager.galleryAverageQuality.Set(averageQuality)
	}
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if on() {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if on() {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if on() {
		globalManager.queueEnqueued.Inc()
	}
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if on() {
		globalManager.queueDequeued.Inc()
	}
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if on() {
		globalManager.queueEnqueueErrors.Inc()
	}
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	if on() {
		globalManager.workerCount.Set(float64(count))
	}
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if on() {
		globalManager.workerErrors.Inc()
	}
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(ms float64) {
	if on() {
		globalManager.workerLatency.Observe(ms)
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if on() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	if on() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
	}
}

// UpdateCameraConnected sets the camera connection gauge.
func UpdateCameraConnected(connected bool) {
	if on() {
		v := 0.0
		if connected {
			v = 1
		}
		globalManager.cameraConnected.Set(v)
	}
}

// UpdateSystemMemoryUsage sets the heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	if on() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if on() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// SetEnabled toggles recording on the global manager.
func SetEnabled(enabled bool) {
	if globalManager != nil {
		globalManager.enabled = enabled
	}
}

// GaugeRefreshInterval is how often the global manager's gauges should be resampled.
func GaugeRefreshInterval() time.Duration {
	if globalManager == nil {
		return defaultRefreshInterval
	}
	return globalManager.refreshInterval
}
