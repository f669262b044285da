package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestRecordPayment(t *testing.T) {
	m := New()
	m.RecordPayment(PaymentSettled, 10)
	m.RecordPayment(PaymentSettled, 5)
	m.RecordPayment(PaymentFailed, 99)

	body := scrape(t, m)
	assert.Contains(t, body, `l402_payments_total{result="settled"} 2`)
	assert.Contains(t, body, `l402_payments_total{result="failed"} 1`)
	assert.Contains(t, body, "l402_sats_spent_total 15")
}

func TestRecordVerification(t *testing.T) {
	m := New()
	m.RecordVerification(true)
	m.RecordVerification(false)
	m.RecordVerification(false)

	body := scrape(t, m)
	assert.Contains(t, body, `l402_verifications_total{result="valid"} 1`)
	assert.Contains(t, body, `l402_verifications_total{result="invalid"} 2`)
}

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, http.StatusPaymentRequired, 0.01)

	body := scrape(t, m)
	assert.Contains(t, body, `l402_http_requests_total{method="GET",status="402"} 1`)
	assert.Contains(t, body, `l402_http_request_duration_seconds_count{method="GET"} 1`)
}

func TestBudgetGauges(t *testing.T) {
	m := New()
	m.RecordChallenge()
	m.RegisterBudgetGauges(func() float64 { return 30 }, func() float64 { return 70 })

	body := scrape(t, m)
	assert.Contains(t, body, "l402_challenges_issued_total 1")
	assert.Contains(t, body, "l402_budget_spent_sats 30")
	assert.Contains(t, body, "l402_budget_remaining_sats 70")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPayment(PaymentSettled, 1)
		m.RecordCredential(CacheHit)
		m.RecordChallenge()
		m.RecordVerification(true)
		m.ObserveRequest(http.MethodGet, 200, 0.1)
		m.RegisterBudgetGauges(func() float64 { return 0 }, func() float64 { return 0 })
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
