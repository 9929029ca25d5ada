package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns the Prometheus collectors of one process.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Input
	rowsRead        *prometheus.CounterVec
	rowsDropped     *prometheus.CounterVec
	eventsDuplicate prometheus.Counter

	// Analysis
	applicationsSummarized *prometheus.CounterVec
	jobDuration            *prometheus.HistogramVec
	jobFailures            *prometheus.CounterVec

	// Output
	filesWritten  *prometheus.CounterVec
	sinkWrites    *prometheus.CounterVec
	notifications *prometheus.CounterVec

	// Run
	runDuration     prometheus.Histogram
	lastSuccessUnix prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "regflow",
		subsystem:        "batch",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.rowsRead = auto.NewCounterVec(m.counterOpts("rows_read_total",
		"Rows read from input tables"), []string{"input"})
	m.rowsDropped = auto.NewCounterVec(m.counterOpts("rows_dropped_total",
		"Input rows that did not become events, by reason"), []string{"reason"})
	m.eventsDuplicate = auto.NewCounter(m.counterOpts("events_duplicate_total",
		"Exact duplicate workflow events collapsed before aggregation"))

	m.applicationsSummarized = auto.NewCounterVec(m.counterOpts("applications_summarized_total",
		"Applications summarized, by process and cohort"), []string{"process", "cohort"})
	m.jobDuration = auto.NewHistogramVec(m.histogramOpts("job_duration_seconds",
		"Duration of one analysis job"), []string{"kind"})
	m.jobFailures = auto.NewCounterVec(m.counterOpts("job_failures_total",
		"Analysis jobs that returned an error"), []string{"kind"})

	m.filesWritten = auto.NewCounterVec(m.counterOpts("files_written_total",
		"Output files written, by kind"), []string{"kind"})
	m.sinkWrites = auto.NewCounterVec(m.counterOpts("sink_writes_total",
		"Result sink transactions, by result"), []string{"result"})
	m.notifications = auto.NewCounterVec(m.counterOpts("notifications_total",
		"Run notifications, by result"), []string{"result"})

	m.runDuration = auto.NewHistogram(m.histogramOpts("run_duration_seconds",
		"Duration of a whole run"))
	m.lastSuccessUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "last_success_timestamp_seconds",
		Help:        "Unix time of the last run that finished without job failures",
		ConstLabels: m.constLabels,
	})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint, method and status code"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_seconds",
		"HTTP request duration"), []string{"endpoint", "method", "status_code"})
}

// RecordRowsRead adds n rows read from input.
func RecordRowsRead(input string, n int) {
	globalManager.rowsRead.WithLabelValues(input).Add(float64(n))
}

// RecordRowsDropped adds n rows dropped for reason.
func RecordRowsDropped(reason string, n int) {
	if n <= 0 {
		return
	}
	globalManager.rowsDropped.WithLabelValues(reason).Add(float64(n))
}

// RecordEventDuplicates adds n collapsed duplicate events.
func RecordEventDuplicates(n int) {
	if n <= 0 {
		return
	}
	globalManager.eventsDuplicate.Add(float64(n))
}

// RecordApplicationsSummarized adds n applications for a process and cohort.
func RecordApplicationsSummarized(process, cohort string, n int) {
	globalManager.applicationsSummarized.WithLabelValues(process, cohort).Add(float64(n))
}

// RecordJob observes one job; failed jobs also count as failures.
func RecordJob(kind string, took time.Duration, failed bool) {
	globalManager.jobDuration.WithLabelValues(kind).Observe(took.Seconds())
	if failed {
		globalManager.jobFailures.WithLabelValues(kind).Inc()
	}
}

// RecordFileWritten counts one output file of kind (png, csv, yaml).
func RecordFileWritten(kind string) {
	globalManager.filesWritten.WithLabelValues(kind).Inc()
}

// RecordSinkWrite counts one sink transaction.
func RecordSinkWrite(err error) {
	globalManager.sinkWrites.WithLabelValues(result(err)).Inc()
}

// RecordNotification counts one notification attempt.
func RecordNotification(err error) {
	globalManager.notifications.WithLabelValues(result(err)).Inc()
}

// RecordRun observes a finished run and stamps the success gauge when ok.
func RecordRun(took time.Duration, ok bool, at time.Time) {
	globalManager.runDuration.Observe(took.Seconds())
	if ok {
		globalManager.lastSuccessUnix.Set(float64(at.Unix()))
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, took time.Duration) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(took.Seconds())
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// WriteTextfile writes the registry in the node exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, customRegistry); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteTextfile, path, err)
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
