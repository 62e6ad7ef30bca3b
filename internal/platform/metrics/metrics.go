package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trace pipeline. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Validation rejections by reason
	ValidationRejections *prometheus.CounterVec

	// Dispatch attempts by region and outcome (ok, retry, exhausted)
	DispatchAttempts *prometheus.CounterVec
	DispatchLatency  *prometheus.HistogramVec

	// Per-record migration outcomes by target version and status
	MigrationOutcomes *prometheus.CounterVec
	MigrationRenames  prometheus.Counter

	// Audit findings by kind and scan latency by scan
	Findings     *prometheus.CounterVec
	ScanDuration *prometheus.HistogramVec

	// Attribute lookups by the location that answered (current, legacy, none)
	Lookups *prometheus.CounterVec

	// Last region status check result, 1 up and 0 down
	RegionUp *prometheus.GaugeVec

	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// New creates the pipeline metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ValidationRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracekeeper_validation_rejections_total",
			Help: "Candidate records rejected by the validator, by reason",
		}, []string{"reason"}),

		DispatchAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracekeeper_dispatch_attempts_total",
			Help: "Store insert attempts made by the dispatcher, by region and outcome",
		}, []string{"region", "outcome"}),

		DispatchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracekeeper_dispatch_duration_seconds",
			Help:    "Duration of a dispatch call including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"region"}),

		MigrationOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracekeeper_migration_records_total",
			Help: "Per-record migration outcomes by target version and status",
		}, []string{"target", "status"}),

		MigrationRenames: f.NewCounter(prometheus.CounterOpts{
			Name: "tracekeeper_migration_renamed_paths_total",
			Help: "Attribute paths written under their new name by migrations",
		}),

		Findings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracekeeper_audit_findings_total",
			Help: "Quality audit findings by kind",
		}, []string{"kind"}),

		ScanDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracekeeper_audit_scan_duration_seconds",
			Help:    "Duration of each quality scan",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"scan"}),

		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracekeeper_attribute_lookups_total",
			Help: "Attribute lookups by the attribute location that returned records",
		}, []string{"location"}),

		RegionUp: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tracekeeper_region_up",
			Help: "Result of the last region status check (1 up, 0 down)",
		}, []string{"region"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracekeeper_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "status"}),

		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracekeeper_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes reg for scraping.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// IncrementRejection counts one validation rejection.
func (m *Metrics) IncrementRejection(reason string) {
	if m != nil {
		m.ValidationRejections.WithLabelValues(reason).Inc()
	}
}

// IncrementDispatchAttempt counts one insert attempt.
func (m *Metrics) IncrementDispatchAttempt(region, outcome string) {
	if m != nil {
		m.DispatchAttempts.WithLabelValues(region, outcome).Inc()
	}
}

// ObserveDispatch records the duration of a dispatch call.
func (m *Metrics) ObserveDispatch(region string, d time.Duration) {
	if m != nil {
		m.DispatchLatency.WithLabelValues(region).Observe(d.Seconds())
	}
}

// IncrementMigration counts one per-record migration outcome.
func (m *Metrics) IncrementMigration(target, status string, renamed int) {
	if m != nil {
		m.MigrationOutcomes.WithLabelValues(target, status).Inc()
		m.MigrationRenames.Add(float64(renamed))
	}
}

// AddFindings counts n findings of kind.
func (m *Metrics) AddFindings(kind string, n int) {
	if m != nil && n > 0 {
		m.Findings.WithLabelValues(kind).Add(float64(n))
	}
}

// ObserveScan records the duration of a quality scan.
func (m *Metrics) ObserveScan(scan string, d time.Duration) {
	if m != nil {
		m.ScanDuration.WithLabelValues(scan).Observe(d.Seconds())
	}
}

// IncrementLookup counts one attribute lookup answered from location.
func (m *Metrics) IncrementLookup(location string) {
	if m != nil {
		m.Lookups.WithLabelValues(location).Inc()
	}
}

// SetRegionUp records the last status check of region.
func (m *Metrics) SetRegionUp(region string, up bool) {
	if m != nil {
		v := 0.0
		if up {
			v = 1
		}
		m.RegionUp.WithLabelValues(region).Set(v)
	}
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.HTTPLatency.WithLabelValues(route).Observe(d.Seconds())
	}
}
