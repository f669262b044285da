package paywall_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/l402/pkg/budget"
	"github.com/pario-ai/l402/pkg/client"
	"github.com/pario-ai/l402/pkg/headers"
	"github.com/pario-ai/l402/pkg/models"
	"github.com/pario-ai/l402/pkg/paywall"
)

// ledgerNode plays both ends of the processor: it mints challenges, settles
// payments by handing out the matching preimage, and verifies credentials.
type ledgerNode struct {
	mu   sync.Mutex
	paid map[string]bool
}

func (n *ledgerNode) IssueChallenge(_ context.Context, req models.ChallengeRequest) (models.Challenge, error) {
	return models.Challenge{Macaroon: "mac-1", Invoice: "lnbc21n1"}, nil
}

func (n *ledgerNode) PayInvoice(_ context.Context, wwwAuthenticate string) (models.Payment, error) {
	mac, _, ok := headers.ParseChallenge(wwwAuthenticate)
	if !ok {
		return models.Payment{Status: models.PaymentFailed}, nil
	}
	auth := headers.FormatAuthorization(mac, "preimage-1")
	n.mu.Lock()
	n.paid[auth] = true
	n.mu.Unlock()
	return models.Payment{Status: models.PaymentSettled, Authorization: auth}, nil
}

func (n *ledgerNode) VerifyCredential(_ context.Context, authorization string) (models.Verification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return models.Verification{Valid: n.paid[authorization]}, nil
}

func TestClientPaysThroughPaywall(t *testing.T) {
	node := &ledgerNode{paid: map[string]bool{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/premium", func(w http.ResponseWriter, r *http.Request) {
		v, ok := paywall.FromContext(r.Context())
		assert.True(t, ok)
		assert.True(t, v.Valid)
		_ = json.NewEncoder(w).Encode(map[string]string{"data": "premium content"})
	})
	pw := paywall.New(node, node, paywall.Options{Price: 21, PathPrefix: "/api", Logger: zerolog.Nop()})
	srv := httptest.NewServer(paywall.Middleware(mux, pw))
	defer srv.Close()

	guard := budget.New(100, models.BudgetDay)
	c, err := client.NewHTTPClient(node, client.Options{Guard: guard, Logger: zerolog.Nop()})
	require.NoError(t, err)

	for range 2 {
		resp, err := c.Get(srv.URL + "/api/premium")
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, strings.Contains(string(body), "premium content"))
	}

	// The second request reuses the cached credential.
	assert.Equal(t, int64(21), guard.Status().Spent)
	node.mu.Lock()
	assert.Len(t, node.paid, 1)
	node.mu.Unlock()
}
