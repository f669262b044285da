// Package proxy runs a local HTTP proxy that forwards every request to one
// upstream through the paying L402 transport, so plain HTTP clients can use
// paid APIs without speaking L402 themselves.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/l402/pkg/budget"
	"github.com/pario-ai/l402/pkg/client"
	"github.com/pario-ai/l402/pkg/metrics"
)

// StatusPath serves the proxy's own budget status instead of forwarding.
const StatusPath = "/_l402/budget"

// Server is the auto-paying forward proxy.
type Server struct {
	listen    string
	target    *url.URL
	transport *client.Transport
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	mux       *http.ServeMux
}

// New creates a proxy Server forwarding to upstream through t.
func New(listen, upstream string, t *client.Transport, m *metrics.Metrics, logger zerolog.Logger) (*Server, error) {
	target, err := url.Parse(upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", upstream)
	}

	s := &Server{
		listen:    listen,
		target:    target,
		transport: t,
		metrics:   m,
		logger:    logger.With().Str("component", "proxy").Logger(),
		mux:       http.NewServeMux(),
	}

	rp := httputil.NewSingleHostReverseProxy(target)
	direct := rp.Director
	rp.Director = func(req *http.Request) {
		direct(req)
		req.Host = target.Host
	}
	rp.Transport = t
	rp.ErrorHandler = s.handleError

	s.mux.HandleFunc(StatusPath, s.handleStatus)
	s.mux.Handle("/_l402/metrics", m.Handler())
	s.mux.Handle("/", rp)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(sw, r)
	s.metrics.ObserveRequest(r.Method, sw.status, time.Since(start).Seconds())
}

// ListenAndServe starts the proxy server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.listen).Str("upstream", s.target.String()).Msg("l402 proxy listening")
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

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "l402_error", "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.transport.Guard().Status())
}

// handleError maps transport failures onto JSON error responses.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.logger.With().Str("path", r.URL.Path).Err(err).Logger()

	switch {
	case errors.Is(err, budget.ErrBudgetExceeded):
		log.Warn().Msg("payment refused")
		writeJSONError(w, http.StatusPaymentRequired, "budget_exceeded", err.Error())
	case errors.Is(err, client.ErrPaymentFailed):
		log.Error().Msg("payment failed")
		writeJSONError(w, http.StatusBadGateway, "payment_failed", err.Error())
	case errors.Is(err, client.ErrProtocolViolation):
		log.Error().Msg("upstream sent an invalid challenge")
		writeJSONError(w, http.StatusBadGateway, "protocol_violation", err.Error())
	case errors.Is(err, context.Canceled):
		log.Debug().Msg("client went away")
	default:
		log.Error().Msg("upstream request failed")
		writeJSONError(w, http.StatusBadGateway, "l402_error", "upstream request failed")
	}
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

func writeJSONError(w http.ResponseWriter, code int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":%q,"code":%d}}`, message, errType, code)
}
