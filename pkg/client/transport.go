// Package client implements the paying side of L402: an http.RoundTripper
// that answers 402 challenges by paying the invoice, caching the resulting
// credential and replaying the request.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/pario-ai/l402/pkg/budget"
	"github.com/pario-ai/l402/pkg/headers"
	"github.com/pario-ai/l402/pkg/metrics"
	"github.com/pario-ai/l402/pkg/models"
	"github.com/pario-ai/l402/pkg/processor"
	"github.com/pario-ai/l402/pkg/tokenstore"
)

// DefaultMaxPrice is the per-request price ceiling when none is configured.
const DefaultMaxPrice int64 = 1000

// maxExpirySeconds keeps a credential lifetime within time.Duration.
const maxExpirySeconds = int64(math.MaxInt64 / int64(time.Second))

// maxChallengeBody bounds how much of a 402 body is read for price info.
const maxChallengeBody = 64 << 10

// Recorder receives every settled payment.
type Recorder interface {
	Record(ctx context.Context, rec models.PaymentRecord) error
}

// Options configures a Transport. The zero value is usable.
type Options struct {
	// Base performs the actual requests. Defaults to http.DefaultTransport.
	Base http.RoundTripper
	// MaxPrice refuses any single challenge priced above it. Zero or less
	// uses DefaultMaxPrice.
	MaxPrice int64
	// Guard enforces the rolling budget. Nil means unlimited.
	Guard *budget.Guard
	// Store caches credentials. Nil uses a new MemoryStore.
	Store tokenstore.Store
	// CoalescePayments makes concurrent requests for the same resource share
	// one payment instead of each paying.
	CoalescePayments bool

	Recorder Recorder
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	// Now overrides the clock used for credential timestamps.
	Now func() time.Time
}

// Transport is an http.RoundTripper that pays L402 challenges.
// It is safe for concurrent use.
type Transport struct {
	base     http.RoundTripper
	payer    processor.Payer
	store    tokenstore.Store
	guard    *budget.Guard
	maxPrice int64
	coalesce bool
	recorder Recorder
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
	flight   singleflight.Group
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport wires a Transport around payer.
func NewTransport(payer processor.Payer, opts Options) (*Transport, error) {
	if payer == nil {
		return nil, fmt.Errorf("l402 transport: payer is required")
	}

	t := &Transport{
		base:     opts.Base,
		payer:    payer,
		store:    opts.Store,
		guard:    opts.Guard,
		maxPrice: opts.MaxPrice,
		coalesce: opts.CoalescePayments,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With().Str("component", "l402-client").Logger(),
		now:      opts.Now,
	}
	if t.base == nil {
		t.base = http.DefaultTransport
	}
	if t.maxPrice <= 0 {
		t.maxPrice = DefaultMaxPrice
	}
	if t.guard == nil {
		t.guard = budget.New(budget.Unlimited, models.BudgetDay)
	}
	if t.store == nil {
		store, err := tokenstore.NewMemoryStore(tokenstore.DefaultMemorySize)
		if err != nil {
			return nil, err
		}
		t.store = store
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t, nil
}

// NewHTTPClient returns an http.Client whose transport pays L402 challenges.
func NewHTTPClient(payer processor.Payer, opts Options) (*http.Client, error) {
	t, err := NewTransport(payer, opts)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: t}, nil
}

// Guard returns the spending guard in use.
func (t *Transport) Guard() *budget.Guard { return t.guard }

// Store returns the credential store in use.
func (t *Transport) Store() tokenstore.Store { return t.store }

// RoundTrip sends req, paying for access when the server demands it.
//
// A cached credential is tried first. If it is missing, expired or rejected,
// the request is sent bare; a 402 answer is then paid for (subject to the
// price ceiling and the budget) and the request replayed once with the new
// credential. Any non-402 response along the way is returned as is.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	resource := req.URL.String()

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	cred, err := t.store.Get(ctx, resource)
	if err != nil {
		t.logger.Warn().Err(err).Str("resource", resource).Msg("credential lookup failed")
		cred = nil
	}
	if cred != nil && !cred.Expired(t.now()) {
		resp, err := t.send(req, body, cred.Authorization)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusPaymentRequired {
			t.metrics.RecordCredential(metrics.CacheHit)
			return resp, nil
		}
		discard(resp)
		t.metrics.RecordCredential(metrics.CacheRejected)
		t.logger.Debug().Str("resource", resource).Msg("cached credential rejected")
		if err := t.store.Delete(ctx, resource); err != nil {
			t.logger.Warn().Err(err).Str("resource", resource).Msg("credential delete failed")
		}
	} else {
		t.metrics.RecordCredential(metrics.CacheMiss)
	}

	resp, err := t.send(req, body, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	ch, err := readChallenge(resp)
	if err != nil {
		return nil, err
	}

	authorization, err := t.obtain(ctx, resource, ch)
	if err != nil {
		return nil, err
	}

	resp, err = t.send(req, body, authorization)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusPaymentRequired {
		discard(resp)
		return nil, &PaymentFailedError{
			Resource: resource,
			Reason:   "still unauthorized after payment (402 after successful payment)",
		}
	}
	return resp, nil
}

// challenge is what the client needs from a 402 response.
type challenge struct {
	wwwAuthenticate string
	price           int64
	expiry          *int64
}

// readChallenge extracts the L402 challenge from a 402 response and closes
// its body. An empty body or a missing price means free; a body that is not
// a JSON object or a price that is not an integer is a protocol violation.
// An unreadable expiry only means the credential gets no expiry.
func readChallenge(resp *http.Response) (challenge, error) {
	defer discard(resp)

	var ch challenge
	for _, v := range resp.Header.Values("WWW-Authenticate") {
		if _, _, ok := headers.ParseChallenge(v); ok {
			ch.wwwAuthenticate = v
			break
		}
	}
	if ch.wwwAuthenticate == "" {
		return ch, fmt.Errorf("%w: 402 response missing L402 WWW-Authenticate header", ErrProtocolViolation)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxChallengeBody))
	if err != nil {
		return ch, fmt.Errorf("read 402 body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return ch, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return ch, fmt.Errorf("%w: 402 body is not a JSON object", ErrProtocolViolation)
	}
	if raw, ok := fields["price"]; ok && !isNull(raw) {
		var price int64
		if err := json.Unmarshal(raw, &price); err != nil {
			return ch, fmt.Errorf("%w: 402 price %s is not an integer", ErrProtocolViolation, raw)
		}
		ch.price = max(price, 0)
	}
	if raw, ok := fields["expiry"]; ok && !isNull(raw) {
		var expiry int64
		if err := json.Unmarshal(raw, &expiry); err == nil {
			ch.expiry = &expiry
		}
	}
	return ch, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// obtain pays for resource, sharing one payment between concurrent callers
// when coalescing is on.
func (t *Transport) obtain(ctx context.Context, resource string, ch challenge) (string, error) {
	if !t.coalesce {
		return t.pay(ctx, resource, ch)
	}

	// The shared payment outlives whichever caller started it; each caller
	// stops waiting on its own ctx below.
	shared := context.WithoutCancel(ctx)
	key := tokenstore.NormalizeURL(resource)
	res := t.flight.DoChan(key, func() (any, error) {
		return t.pay(shared, resource, ch)
	})
	select {
	case r := <-res:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// pay runs the price checks, pays the invoice and stores the credential.
func (t *Transport) pay(ctx context.Context, resource string, ch challenge) (string, error) {
	log := t.logger.With().Str("resource", resource).Int64("price", ch.price).Logger()

	if ch.price > t.maxPrice {
		t.metrics.RecordPayment(metrics.PaymentRefused, ch.price)
		log.Warn().Int64("max_price", t.maxPrice).Msg("price above ceiling")
		return "", &budget.ExceededError{Amount: ch.price, Limit: t.maxPrice, MaxPrice: true}
	}
	if err := t.guard.Check(ch.price); err != nil {
		t.metrics.RecordPayment(metrics.PaymentRefused, ch.price)
		log.Warn().Err(err).Msg("budget refused payment")
		return "", err
	}

	payment, err := t.payer.PayInvoice(ctx, ch.wwwAuthenticate)
	if err != nil {
		t.metrics.RecordPayment(metrics.PaymentFailed, ch.price)
		return "", &PaymentFailedError{Resource: resource, Reason: "pay invoice", Err: err}
	}
	if payment.Status == models.PaymentFailed {
		t.metrics.RecordPayment(metrics.PaymentFailed, ch.price)
		return "", &PaymentFailedError{Resource: resource, Reason: "processor reported payment failed"}
	}
	if payment.Authorization == "" {
		t.metrics.RecordPayment(metrics.PaymentFailed, ch.price)
		return "", &PaymentFailedError{Resource: resource, Reason: "payment did not return authorization token"}
	}

	// The payment has settled; cancelling the request must not lose it.
	ctx = context.WithoutCancel(ctx)

	now := t.now()
	cred := models.Credential{Authorization: payment.Authorization, PaidAt: now}
	if ch.expiry != nil && *ch.expiry > 0 {
		exp := now.Add(time.Duration(min(*ch.expiry, maxExpirySeconds)) * time.Second)
		cred.ExpiresAt = &exp
	}
	if err := t.store.Set(ctx, resource, cred); err != nil {
		log.Warn().Err(err).Msg("credential store failed")
	}
	t.guard.Record(ch.price)
	t.metrics.RecordPayment(metrics.PaymentSettled, ch.price)

	if t.recorder != nil {
		rec := models.PaymentRecord{
			Resource:  tokenstore.NormalizeURL(resource),
			Price:     ch.price,
			TokenHash: headers.Fingerprint(payment.Authorization),
			PaidAt:    now,
		}
		if err := t.recorder.Record(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("payment ledger write failed")
		}
	}

	log.Info().Str("payment_hash", payment.PaymentHash).Msg("payment settled")
	return payment.Authorization, nil
}

// send clones req with a fresh body and the given Authorization, if any.
func (t *Transport) send(req *http.Request, body []byte, authorization string) (*http.Response, error) {
	r := req.Clone(req.Context())
	if body != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		r.ContentLength = int64(len(body))
	}
	r.Header.Del("Authorization")
	if authorization != "" {
		r.Header.Set("Authorization", authorization)
	}
	return t.base.RoundTrip(r)
}

// bufferBody reads and closes req.Body so the request can be replayed.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	return data, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxChallengeBody))
	_ = resp.Body.Close()
}
