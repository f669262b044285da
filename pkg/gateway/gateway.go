// Package gateway sells access to an upstream HTTP service: requests pass
// the L402 paywall and are then reverse-proxied to the upstream.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pario-ai/l402/pkg/metrics"
	"github.com/pario-ai/l402/pkg/paywall"
)

const (
	// RequestIDHeader carries the request ID to the upstream and back.
	RequestIDHeader = "X-Request-ID"
	// PaymentHashHeader tells the upstream which payment unlocked a request.
	PaymentHashHeader = "X-L402-Payment-Hash"
)

// Options configures a gateway Server.
type Options struct {
	Listen   string
	Upstream string
	// MetricsPath exposes Prometheus metrics when non-empty and Metrics is set.
	MetricsPath string
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

// Server is the paywalled reverse proxy.
type Server struct {
	listen  string
	target  *url.URL
	metrics *metrics.Metrics
	logger  zerolog.Logger
	mux     *http.ServeMux
}

// New creates a gateway Server that protects upstream with pw.
func New(pw *paywall.Handler, opts Options) (*Server, error) {
	target, err := url.Parse(opts.Upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", opts.Upstream)
	}

	s := &Server{
		listen:  opts.Listen,
		target:  target,
		metrics: opts.Metrics,
		logger:  opts.Logger.With().Str("component", "gateway").Logger(),
		mux:     http.NewServeMux(),
	}

	rp := httputil.NewSingleHostReverseProxy(target)
	direct := rp.Director
	rp.Director = func(req *http.Request) {
		direct(req)
		req.Host = target.Host
		// The credential is for this gateway, not the upstream.
		req.Header.Del("Authorization")
		req.Header.Del(PaymentHashHeader)
		if v, ok := paywall.FromContext(req.Context()); ok && v.PaymentHash != "" {
			req.Header.Set(PaymentHashHeader, v.PaymentHash)
		}
	}
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("upstream request failed")
		writeJSONError(w, http.StatusBadGateway, "upstream request failed")
	}

	s.mux.HandleFunc("/healthz", handleHealth)
	if opts.MetricsPath != "" && opts.Metrics != nil {
		s.mux.Handle(opts.MetricsPath, opts.Metrics.Handler())
	}
	s.mux.Handle("/", paywall.Middleware(rp, pw))
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
		r.Header.Set(RequestIDHeader, id)
	}
	w.Header().Set(RequestIDHeader, id)

	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(sw, r)

	elapsed := time.Since(start)
	s.metrics.ObserveRequest(r.Method, sw.status, elapsed.Seconds())
	s.logger.Debug().
		Str("request_id", id).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", sw.status).
		Dur("elapsed", elapsed).
		Msg("request")
}

// ListenAndServe starts the gateway with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.listen).Str("upstream", s.target.String()).Msg("l402 gateway listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"l402_error","code":%d}}`, message, code)
}
