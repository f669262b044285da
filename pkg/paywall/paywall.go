// Package paywall is the selling side of L402: HTTP middleware that lets
// requests with a valid credential through and answers everything else with
// a priced 402 challenge.
package paywall

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pario-ai/l402/pkg/headers"
	"github.com/pario-ai/l402/pkg/metrics"
	"github.com/pario-ai/l402/pkg/models"
	"github.com/pario-ai/l402/pkg/processor"
)

// Options configures a paywall.
type Options struct {
	// Price is the static price in sats per request.
	Price int64
	// PriceFunc computes the price per request and takes precedence over Price.
	PriceFunc func(r *http.Request) (int64, error)
	// Description is the invoice memo.
	Description   string
	ExpirySeconds *int64
	Caveats       []string
	// PathPrefix limits Middleware to requests under this path. Empty
	// protects everything.
	PathPrefix string

	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Handler runs the verify-or-challenge step shared by Middleware and Protect.
type Handler struct {
	verifier processor.Verifier
	minter   processor.Minter
	opts     Options
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New creates a Handler.
func New(verifier processor.Verifier, minter processor.Minter, opts Options) *Handler {
	return &Handler{
		verifier: verifier,
		minter:   minter,
		opts:     opts,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With().Str("component", "paywall").Logger(),
	}
}

type ctxKey struct{}

// FromContext returns the verification attached to a request that passed the
// paywall.
func FromContext(ctx context.Context) (models.Verification, bool) {
	v, ok := ctx.Value(ctxKey{}).(models.Verification)
	return v, ok
}

// Handle lets r through when it carries a valid L402 credential, returning
// the request with the verification attached and true. Otherwise it writes a
// response (normally a 402 challenge) and returns false; the caller must not
// write anything else.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	if v, ok := h.verify(r); ok {
		return r.WithContext(context.WithValue(r.Context(), ctxKey{}, v)), true
	}

	price := h.opts.Price
	if h.opts.PriceFunc != nil {
		p, err := h.opts.PriceFunc(r)
		if err == nil && p < 0 {
			err = fmt.Errorf("negative price %d", p)
		}
		if err != nil {
			h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("price lookup failed")
			writeJSONError(w, http.StatusInternalServerError, "price lookup failed")
			return r, false
		}
		price = p
	}

	ch, err := h.minter.IssueChallenge(r.Context(), models.ChallengeRequest{
		Amount:        price,
		Description:   h.opts.Description,
		ExpirySeconds: h.opts.ExpirySeconds,
		Caveats:       h.opts.Caveats,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("issue challenge failed")
		writeJSONError(w, http.StatusBadGateway, "failed to issue payment challenge")
		return r, false
	}

	h.metrics.RecordChallenge()
	h.logger.Debug().Str("path", r.URL.Path).Int64("price", price).Msg("challenge issued")
	writeChallenge(w, ch, price, h.opts.Description)
	return r, false
}

// verify checks the request's credential. Processor errors count as an
// unverified request.
func (h *Handler) verify(r *http.Request) (models.Verification, bool) {
	auth := r.Header.Get("Authorization")
	if !headers.IsL402(auth) {
		return models.Verification{}, false
	}

	v, err := h.verifier.VerifyCredential(r.Context(), auth)
	if err != nil {
		h.logger.Debug().Err(err).Msg("credential verification failed")
		h.metrics.RecordVerification(false)
		return models.Verification{}, false
	}
	h.metrics.RecordVerification(v.Valid)
	if !v.Valid {
		h.logger.Debug().Str("reason", v.Error).Msg("credential rejected")
		return models.Verification{}, false
	}
	return v, true
}

// Protect wraps a single handler with the paywall.
func (h *Handler) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r, ok := h.Handle(w, r); ok {
			next.ServeHTTP(w, r)
		}
	})
}

// Middleware protects every request under h's PathPrefix and passes the rest
// straight to next.
func Middleware(next http.Handler, h *Handler) http.Handler {
	protected := h.Protect(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !underPrefix(r.URL.Path, h.opts.PathPrefix) {
			next.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
}

// underPrefix matches whole path segments: "/api" covers "/api" and
// "/api/x" but not "/apix".
func underPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

type challengeBody struct {
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Detail      string  `json:"detail"`
	Invoice     string  `json:"invoice"`
	Macaroon    string  `json:"macaroon"`
	Price       int64   `json:"price"`
	Unit        string  `json:"unit"`
	Description *string `json:"description"`
}

func writeChallenge(w http.ResponseWriter, ch models.Challenge, price int64, description string) {
	body := challengeBody{
		Type:     "payment_required",
		Title:    "Payment Required",
		Detail:   "Pay the included Lightning invoice to access this resource.",
		Invoice:  ch.Invoice,
		Macaroon: ch.Macaroon,
		Price:    price,
		Unit:     "satoshis",
	}
	if description != "" {
		body.Description = &description
	}

	w.Header().Set("WWW-Authenticate", headers.FormatChallenge(ch.Macaroon, ch.Invoice))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"l402_error","code":%d}}`, message, code)
}
