package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	"github.com/kursadbilgin/onboarding-engine/internal/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API, CLI and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	outwardAttemptsTotal  *prometheus.CounterVec
	outwardCallDuration   *prometheus.HistogramVec
	stepResultsTotal      *prometheus.CounterVec
	contactOutcomesTotal  *prometheus.CounterVec
	runsTotal             *prometheus.CounterVec
	runDuration           prometheus.Histogram
	runsInflight          prometheus.Gauge
	failureRateAlerts     prometheus.Counter
	persistenceErrorTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onboarding_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "onboarding_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		outwardAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onboarding_engine",
				Name:      "outward_call_attempts_total",
				Help:      "Total number of outward call attempts by service, operation and result.",
			},
			[]string{"service", "operation", "result"},
		),
		outwardCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "onboarding_engine",
				Name:      "outward_call_duration_seconds",
				Help:      "Outward call attempt duration in seconds grouped by service.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"service"},
		),
		stepResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onboarding_engine",
				Name:      "step_results_total",
				Help:      "Total number of per-contact pipeline steps by step and status.",
			},
			[]string{"step", "status"},
		),
		contactOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onboarding_engine",
				Name:      "contact_outcomes_total",
				Help:      "Total number of processed contacts by outcome status.",
			},
			[]string{"status"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onboarding_engine",
				Name:      "runs_total",
				Help:      "Total number of finished onboarding runs by status.",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "onboarding_engine",
				Name:      "run_duration_seconds",
				Help:      "Onboarding run duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
			},
		),
		runsInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "onboarding_engine",
				Name:      "runs_inflight",
				Help:      "Current number of onboarding runs in progress.",
			},
		),
		failureRateAlerts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "onboarding_engine",
				Name:      "failure_rate_alerts_total",
				Help:      "Total number of batches after which the failure rate exceeded the threshold.",
			},
		),
		persistenceErrorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onboarding_engine",
				Name:      "persistence_errors_total",
				Help:      "Total number of run store failures by operation.",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.outwardAttemptsTotal,
		m.outwardCallDuration,
		m.stepResultsTotal,
		m.contactOutcomesTotal,
		m.runsTotal,
		m.runDuration,
		m.runsInflight,
		m.failureRateAlerts,
		m.persistenceErrorTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

// ObserveAttempt records one outward call attempt reported by the retry adapter.
func (m *Metrics) ObserveAttempt(attempt retry.Attempt) {
	if m == nil {
		return
	}

	result := "success"
	switch {
	case attempt.Err == nil:
	case attempt.Transient:
		result = "transient_error"
	default:
		result = "permanent_error"
	}

	service := normalizeLabel(attempt.Service)
	m.outwardAttemptsTotal.WithLabelValues(service, normalizeLabel(attempt.Operation), result).Inc()
	seconds := attempt.Duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.outwardCallDuration.WithLabelValues(service).Observe(seconds)
}

// ObserveOutcome counts a contact outcome and each of its steps.
func (m *Metrics) ObserveOutcome(outcome domain.BatchOutcome) {
	if m == nil {
		return
	}
	m.contactOutcomesTotal.WithLabelValues(normalizeLabel(outcome.Status.String())).Inc()
	for _, step := range outcome.Steps {
		m.stepResultsTotal.WithLabelValues(normalizeLabel(step.Step.String()), normalizeLabel(step.Status.String())).Inc()
	}
}

func (m *Metrics) IncRunInFlight() {
	if m == nil {
		return
	}
	m.runsInflight.Inc()
}

func (m *Metrics) DecRunInFlight() {
	if m == nil {
		return
	}
	m.runsInflight.Dec()
}

func (m *Metrics) ObserveRunFinished(status domain.RunStatus, duration time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(normalizeLabel(status.String())).Inc()
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.runDuration.Observe(seconds)
}

func (m *Metrics) IncFailureRateAlert() {
	if m == nil {
		return
	}
	m.failureRateAlerts.Inc()
}

func (m *Metrics) IncPersistenceError(operation string) {
	if m == nil {
		return
	}
	m.persistenceErrorTotal.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
