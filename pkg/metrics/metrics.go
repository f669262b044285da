// Package metrics provides Prometheus metrics for the L402 client and paywall.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Payment outcomes.
const (
	PaymentSettled = "settled"
	PaymentFailed  = "failed"
	PaymentRefused = "refused"
)

// Credential cache outcomes.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheRejected = "rejected"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can take one optionally.
type Metrics struct {
	PaymentsTotal      *prometheus.CounterVec
	SatsSpentTotal     prometheus.Counter
	CredentialsTotal   *prometheus.CounterVec
	ChallengesTotal    prometheus.Counter
	VerificationsTotal *prometheus.CounterVec
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		PaymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "l402_payments_total",
				Help: "L402 payment attempts by result.",
			},
			[]string{"result"},
		),
		SatsSpentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "l402_sats_spent_total",
				Help: "Satoshis paid for L402 credentials.",
			},
		),
		CredentialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "l402_credential_cache_total",
				Help: "Credential cache lookups by result.",
			},
			[]string{"result"},
		),
		ChallengesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "l402_challenges_issued_total",
				Help: "Payment challenges issued by the paywall.",
			},
		),
		VerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "l402_verifications_total",
				Help: "Presented credentials by verification result.",
			},
			[]string{"result"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "l402_http_requests_total",
				Help: "HTTP requests served by method and status.",
			},
			[]string{"method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "l402_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.PaymentsTotal,
		m.SatsSpentTotal,
		m.CredentialsTotal,
		m.ChallengesTotal,
		m.VerificationsTotal,
		m.RequestsTotal,
		m.RequestDuration,
	)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterBudgetGauges exposes the live budget through callbacks.
func (m *Metrics) RegisterBudgetGauges(spent, remaining func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "l402_budget_spent_sats",
			Help: "Satoshis spent in the current budget period.",
		}, spent),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "l402_budget_remaining_sats",
			Help: "Satoshis left in the current budget period.",
		}, remaining),
	)
}

// RecordPayment counts a payment attempt; settled payments add to spend.
func (m *Metrics) RecordPayment(result string, sats int64) {
	if m == nil {
		return
	}
	m.PaymentsTotal.WithLabelValues(result).Inc()
	if result == PaymentSettled && sats > 0 {
		m.SatsSpentTotal.Add(float64(sats))
	}
}

// RecordCredential counts a credential cache outcome.
func (m *Metrics) RecordCredential(result string) {
	if m == nil {
		return
	}
	m.CredentialsTotal.WithLabelValues(result).Inc()
}

// RecordChallenge counts an issued challenge.
func (m *Metrics) RecordChallenge() {
	if m == nil {
		return
	}
	m.ChallengesTotal.Inc()
}

// RecordVerification counts a verification result.
func (m *Metrics) RecordVerification(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.VerificationsTotal.WithLabelValues(result).Inc()
}

// ObserveRequest records a served HTTP request.
func (m *Metrics) ObserveRequest(method string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(seconds)
}
