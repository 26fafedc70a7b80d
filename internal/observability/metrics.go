package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpDurationBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	sweepDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
)

// Metrics holds the Prometheus instruments for the onboarding service. All
// recording helpers are safe to call on a nil receiver.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrorsTotal     *prometheus.CounterVec

	// Workflow
	CasesStartedTotal        *prometheus.CounterVec
	CasesDecidedTotal        *prometheus.CounterVec
	ActivityTransitionsTotal *prometheus.CounterVec
	ActivitiesUnlockedTotal  prometheus.Counter
	AutoExecutionsTotal      *prometheus.CounterVec
	AssignmentsTotal         *prometheus.CounterVec

	// SLA
	SweepRunsTotal         *prometheus.CounterVec
	SweepDuration          prometheus.Histogram
	SweepSkippedTotal      prometheus.Counter
	BreachesTotal          prometheus.Counter
	WarningsTotal          prometheus.Counter
	EscalationsTotal       prometheus.Counter
	UnownedEscalationTotal prometheus.Counter
	OpenCases              prometheus.Gauge
	BreachedCases          prometheus.Gauge
	AtRiskCases            prometheus.Gauge
	BreachRate             prometheus.Gauge

	// Events
	EventsPublishedTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all metric instruments on reg.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "route"}),
		HTTPErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_http_errors_total",
			Help: "Total number of HTTP requests that ended in a domain error.",
		}, []string{"method", "route", "code"}),

		CasesStartedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_cases_started_total",
			Help: "Total number of cases started, by case type.",
		}, []string{"case_type"}),
		CasesDecidedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_cases_decided_total",
			Help: "Total number of case decisions, by outcome.",
		}, []string{"decision"}),
		ActivityTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_activity_transitions_total",
			Help: "Total number of activity status transitions.",
		}, []string{"kind", "status"}),
		ActivitiesUnlockedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_activities_unlocked_total",
			Help: "Total number of activities moved from blocked to todo.",
		}),
		AutoExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_auto_executions_total",
			Help: "Total number of automated system actions, by action type and result.",
		}, []string{"action_type", "result"}),
		AssignmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_assignments_total",
			Help: "Total number of auto-assignment attempts, by outcome.",
		}, []string{"outcome"}),

		SweepRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_sla_sweep_runs_total",
			Help: "Total number of SLA sweep runs, by result.",
		}, []string{"result"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "onboarding_sla_sweep_duration_seconds",
			Help:    "SLA sweep duration in seconds.",
			Buckets: sweepDurationBuckets,
		}),
		SweepSkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_sla_sweep_skipped_total",
			Help: "Total number of sweep ticks skipped because a sweep was still running.",
		}),
		BreachesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_sla_breaches_total",
			Help: "Total number of cases newly marked as SLA breached.",
		}),
		WarningsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_sla_warnings_total",
			Help: "Total number of SLA warnings emitted.",
		}),
		EscalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_escalations_total",
			Help: "Total number of cases escalated.",
		}),
		UnownedEscalationTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_escalations_unowned_total",
			Help: "Total number of escalated cases whose team has no manager.",
		}),
		OpenCases: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "onboarding_sla_open_cases",
			Help: "Number of open cases at the last sweep.",
		}),
		BreachedCases: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "onboarding_sla_breached_cases",
			Help: "Number of open breached cases at the last sweep.",
		}),
		AtRiskCases: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "onboarding_sla_at_risk_cases",
			Help: "Number of open cases inside the warning window at the last sweep.",
		}),
		BreachRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "onboarding_sla_breach_rate",
			Help: "Breached open cases divided by open cases at the last sweep.",
		}),

		EventsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_events_published_total",
			Help: "Total number of domain events published, by type.",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPErrorsTotal,
		m.CasesStartedTotal,
		m.CasesDecidedTotal,
		m.ActivityTransitionsTotal,
		m.ActivitiesUnlockedTotal,
		m.AutoExecutionsTotal,
		m.AssignmentsTotal,
		m.SweepRunsTotal,
		m.SweepDuration,
		m.SweepSkippedTotal,
		m.BreachesTotal,
		m.WarningsTotal,
		m.EscalationsTotal,
		m.UnownedEscalationTotal,
		m.OpenCases,
		m.BreachedCases,
		m.AtRiskCases,
		m.BreachRate,
		m.EventsPublishedTotal,
	)

	return m
}

// RecordRequest records HTTP request metrics.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordError counts a request that failed with the given error code.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.HTTPErrorsTotal.WithLabelValues(method, route, code).Inc()
}

func (m *Metrics) RecordCaseStarted(caseType string) {
	if m == nil {
		return
	}
	m.CasesStartedTotal.WithLabelValues(caseType).Inc()
}

func (m *Metrics) RecordCaseDecided(decision string) {
	if m == nil {
		return
	}
	m.CasesDecidedTotal.WithLabelValues(decision).Inc()
}

// RecordActivityTransition counts an activity entering status, plus any
// dependents the transition unlocked.
func (m *Metrics) RecordActivityTransition(kind, status string, unlocked int) {
	if m == nil {
		return
	}
	m.ActivityTransitionsTotal.WithLabelValues(kind, status).Inc()
	if unlocked > 0 {
		m.ActivitiesUnlockedTotal.Add(float64(unlocked))
	}
}

func (m *Metrics) RecordAutoExecution(actionType, result string) {
	if m == nil {
		return
	}
	m.AutoExecutionsTotal.WithLabelValues(actionType, result).Inc()
}

func (m *Metrics) RecordAssignment(outcome string) {
	if m == nil {
		return
	}
	m.AssignmentsTotal.WithLabelValues(outcome).Inc()
}

// RecordSweep records one completed or failed sweep tick.
func (m *Metrics) RecordSweep(result string, duration time.Duration, breached, warnings int) {
	if m == nil {
		return
	}
	m.SweepRunsTotal.WithLabelValues(result).Inc()
	m.SweepDuration.Observe(duration.Seconds())
	m.BreachesTotal.Add(float64(breached))
	m.WarningsTotal.Add(float64(warnings))
}

func (m *Metrics) RecordSweepSkipped() {
	if m == nil {
		return
	}
	m.SweepSkippedTotal.Inc()
}

func (m *Metrics) RecordEscalations(escalated, unowned int) {
	if m == nil {
		return
	}
	m.EscalationsTotal.Add(float64(escalated))
	m.UnownedEscalationTotal.Add(float64(unowned))
}

// SetSLAGauges publishes the most recent SLA snapshot.
func (m *Metrics) SetSLAGauges(open, breached, atRisk int, breachRate float64) {
	if m == nil {
		return
	}
	m.OpenCases.Set(float64(open))
	m.BreachedCases.Set(float64(breached))
	m.AtRiskCases.Set(float64(atRisk))
	m.BreachRate.Set(breachRate)
}

func (m *Metrics) RecordEventPublished(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// Handler returns an HTTP handler serving metrics from gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
