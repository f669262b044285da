package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pario-ai/l402/pkg/headers"
	"github.com/pario-ai/l402/pkg/models"
)

// DefaultTimeout bounds each processor API call.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the processor API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("processor api: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to a hosted L402 processor over its REST API
// (/v1/l402/pay, /v1/l402/verify, /v1/l402/challenges).
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var (
	_ Payer    = (*Client)(nil)
	_ Verifier = (*Client)(nil)
	_ Minter   = (*Client)(nil)
)

// NewClient creates a processor client. A zero timeout uses DefaultTimeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// PayInvoice implements Payer.
func (c *Client) PayInvoice(ctx context.Context, wwwAuthenticate string) (models.Payment, error) {
	var p models.Payment
	err := c.post(ctx, "/v1/l402/pay", map[string]string{"wwwAuthenticate": wwwAuthenticate}, &p)
	if err != nil {
		return models.Payment{}, fmt.Errorf("pay invoice: %w", err)
	}
	return p, nil
}

// VerifyCredential implements Verifier.
func (c *Client) VerifyCredential(ctx context.Context, authorization string) (models.Verification, error) {
	var v models.Verification
	err := c.post(ctx, "/v1/l402/verify", map[string]string{"authorization": authorization}, &v)
	if err != nil {
		return models.Verification{}, fmt.Errorf("verify credential: %w", err)
	}
	return v, nil
}

// IssueChallenge implements Minter.
func (c *Client) IssueChallenge(ctx context.Context, req models.ChallengeRequest) (models.Challenge, error) {
	var ch models.Challenge
	if err := c.post(ctx, "/v1/l402/challenges", req, &ch); err != nil {
		return models.Challenge{}, fmt.Errorf("issue challenge: %w", err)
	}
	if ch.Macaroon == "" || ch.Invoice == "" {
		return models.Challenge{}, fmt.Errorf("issue challenge: response missing macaroon or invoice")
	}
	if ch.WWWAuthenticate == "" {
		ch.WWWAuthenticate = headers.FormatChallenge(ch.Macaroon, ch.Invoice)
	}
	ch.Price = req.Amount
	ch.ExpirySeconds = req.ExpirySeconds
	return ch, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: apiErrorMessage(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiErrorMessage pulls a message out of an error body, falling back to the
// raw text.
func apiErrorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if s, ok := e.Error.(string); ok && s != "" {
			return s
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return msg
}
