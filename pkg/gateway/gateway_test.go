package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/l402/pkg/metrics"
	"github.com/pario-ai/l402/pkg/models"
	"github.com/pario-ai/l402/pkg/paywall"
)

type fakeProcessor struct{}

func (fakeProcessor) VerifyCredential(_ context.Context, auth string) (models.Verification, error) {
	if auth == "L402 mac:pre" {
		return models.Verification{Valid: true, PaymentHash: "hash123"}, nil
	}
	return models.Verification{Valid: false}, nil
}

func (fakeProcessor) IssueChallenge(_ context.Context, req models.ChallengeRequest) (models.Challenge, error) {
	return models.Challenge{Macaroon: "mac", Invoice: "lnbc1"}, nil
}

// forwarded is what the upstream received.
type forwarded struct {
	path, auth, hash, requestID string
}

type seen struct {
	mu   sync.Mutex
	last forwarded
}

func (s *seen) get() forwarded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func setup(t *testing.T) (*Server, *seen) {
	t.Helper()
	got := &seen{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.mu.Lock()
		got.last = forwarded{
			path:      r.URL.Path,
			auth:      r.Header.Get("Authorization"),
			hash:      r.Header.Get(PaymentHashHeader),
			requestID: r.Header.Get(RequestIDHeader),
		}
		got.mu.Unlock()
		_, _ = w.Write([]byte("premium"))
	}))
	t.Cleanup(upstream.Close)

	m := metrics.New()
	pw := paywall.New(fakeProcessor{}, fakeProcessor{}, paywall.Options{
		Price:      10,
		PathPrefix: "/api",
		Metrics:    m,
		Logger:     zerolog.Nop(),
	})
	s, err := New(pw, Options{
		Listen:      ":0",
		Upstream:    upstream.URL,
		MetricsPath: "/metrics",
		Metrics:     m,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return s, got
}

func TestUnpaidRequestChallenged(t *testing.T) {
	s, upstream := setup(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/data", nil))
	got := upstream.get()

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, `L402 macaroon="mac", invoice="lnbc1"`, rec.Header().Get("WWW-Authenticate"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Empty(t, got.path, "upstream must not be called")
}

func TestPaidRequestForwarded(t *testing.T) {
	s, upstream := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.Header.Set("Authorization", "L402 mac:pre")
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	got := upstream.get()

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "premium", rec.Body.String())
	assert.Equal(t, "/api/data", got.path)
	assert.Empty(t, got.auth)
	assert.Equal(t, "hash123", got.hash)
	assert.Equal(t, "req-1", got.requestID)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
}

func TestFreePathForwarded(t *testing.T) {
	s, upstream := setup(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public", nil))
	got := upstream.get()

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/public", got.path)
	assert.Empty(t, got.hash)
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := setup(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/data", nil))

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "l402_challenges_issued_total 1")
	assert.Contains(t, rec.Body.String(), `l402_http_requests_total{method="GET",status="402"} 1`)
}

func TestInvalidUpstream(t *testing.T) {
	pw := paywall.New(fakeProcessor{}, fakeProcessor{}, paywall.Options{})
	_, err := New(pw, Options{Upstream: "/relative"})
	assert.Error(t, err)
}
