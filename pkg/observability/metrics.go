// Package observability provides Prometheus metrics and logger construction for
// the billing engine.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Quota enforcement metrics
	QuotaChecksTotal   *prometheus.CounterVec
	QuotaCheckDuration prometheus.Histogram

	// Daily advance metrics
	AdvanceRunsTotal      prometheus.Counter
	AdvanceItemsTotal     *prometheus.CounterVec
	AdvanceConflictsTotal prometheus.Counter
	AdvanceDuration       prometheus.Histogram

	// Billing metrics
	InvoicesGeneratedTotal *prometheus.CounterVec
	RequestsRecordedTotal  prometheus.Counter
}

// Quota check outcomes for QuotaChecksTotal.
const (
	OutcomeAllowed       = "allowed"
	OutcomePayPerRequest = "pay_per_request"
	OutcomeDenied        = "denied"
	OutcomeDisabled      = "disabled"
	OutcomeFailOpen      = "fail_open"
)

// Advance item results for AdvanceItemsTotal.
const (
	ItemAdvanced  = "advanced"
	ItemUnchanged = "unchanged"
	ItemError     = "error"
)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		QuotaChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_quota_checks_total",
				Help: "Total number of quota checks by outcome",
			},
			[]string{"outcome"},
		),
		QuotaCheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tollgate_quota_check_duration_seconds",
				Help:    "Quota check duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		AdvanceRunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tollgate_advance_runs_total",
				Help: "Total number of daily advance passes",
			},
		),
		AdvanceItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_advance_items_total",
				Help: "Organizations processed by the daily advance pass, by result",
			},
			[]string{"result"},
		),
		AdvanceConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tollgate_advance_conflicts_total",
				Help: "Optimistic-concurrency conflicts hit while saving advanced organizations",
			},
		),
		AdvanceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tollgate_advance_duration_seconds",
				Help:    "Daily advance pass duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
		InvoicesGeneratedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_invoices_generated_total",
				Help: "Total number of invoices generated by kind",
			},
			[]string{"kind"},
		),
		RequestsRecordedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tollgate_requests_recorded_total",
				Help: "Total number of billable requests recorded",
			},
		),
	}

	registry.MustRegister(
		m.QuotaChecksTotal,
		m.QuotaCheckDuration,
		m.AdvanceRunsTotal,
		m.AdvanceItemsTotal,
		m.AdvanceConflictsTotal,
		m.AdvanceDuration,
		m.InvoicesGeneratedTotal,
		m.RequestsRecordedTotal,
	)
	return m
}

// Handler returns an HTTP handler serving the registry in Prometheus format
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
