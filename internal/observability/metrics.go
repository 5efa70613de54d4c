package observability

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the SLA engine on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests          *prometheus.CounterVec
	errors            *prometheus.CounterVec
	sweeps            *prometheus.CounterVec
	sweepDuration     prometheus.Histogram
	ticketsEvaluated  prometheus.Counter
	breachEvents      *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	clockTransitions  *prometheus.CounterVec
	invariantFailures prometheus.Counter
}

// NewMetrics registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "path", "status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP error responses by route and error code",
		}, []string{"method", "path", "code"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_sweeps_total",
			Help: "Breach monitor sweeps by result",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sla_sweep_duration_seconds",
			Help:    "Breach monitor sweep latency",
			Buckets: prometheus.DefBuckets,
		}),
		ticketsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sla_tickets_evaluated_total",
			Help: "Ticket SLA states evaluated by sweeps",
		}),
		breachEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_breach_events_total",
			Help: "Breach events recorded by kind",
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_notifications_total",
			Help: "Escalation deliveries by result",
		}, []string{"result"}),
		clockTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_clock_transitions_total",
			Help: "SLA clock lifecycle transitions",
		}, []string{"transition"}),
		invariantFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sla_invariant_violations_total",
			Help: "Due date computations that degraded a ticket to no SLA",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.errors, m.sweeps, m.sweepDuration, m.ticketsEvaluated,
		m.breachEvents, m.notifications, m.clockTransitions, m.invariantFailures,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest counts an HTTP request.
func (m *Metrics) RecordRequest(path, method string, status int, _ time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// RecordError counts an error response.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, path, code).Inc()
}

// RecordSweep records one sweep outcome: ok, error or skipped.
func (m *Metrics) RecordSweep(result string, evaluated int, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(result).Inc()
	if result != "skipped" {
		m.sweepDuration.Observe(duration.Seconds())
		m.ticketsEvaluated.Add(float64(evaluated))
	}
}

// RecordBreach counts a newly recorded breach event.
func (m *Metrics) RecordBreach(kind string) {
	if m == nil {
		return
	}
	m.breachEvents.WithLabelValues(kind).Inc()
}

// RecordNotification counts a delivery attempt: delivered, failed or suppressed.
func (m *Metrics) RecordNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// RecordTransition counts an SLA clock transition.
func (m *Metrics) RecordTransition(name string) {
	if m == nil {
		return
	}
	m.clockTransitions.WithLabelValues(name).Inc()
}

// RecordInvariantViolation counts a ticket degraded to no SLA.
func (m *Metrics) RecordInvariantViolation() {
	if m == nil {
		return
	}
	m.invariantFailures.Inc()
}
