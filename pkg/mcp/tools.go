package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pario-ai/l402/pkg/budget"
	"github.com/pario-ai/l402/pkg/client"
)

// maxFetchBody caps how much of a fetched response is returned to the model.
const maxFetchBody = 64 << 10

// Tool argument structs.

type fetchArgs struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

type paymentsArgs struct {
	Resource string `json:"resource"`
	Since    string `json:"since"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"l402_fetch":    handleFetch,
	"l402_budget":   handleBudget,
	"l402_tokens":   handleTokens,
	"l402_payments": handlePayments,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "l402_fetch",
		Description: "Fetch a URL, paying its L402 Lightning paywall if it demands one (subject to the price ceiling and budget).",
		InputSchema: InputSchema{
			Type:     "object",
			Required: []string{"url"},
			Properties: map[string]Property{
				"url":     {Type: "string", Description: "Absolute URL to fetch"},
				"method":  {Type: "string", Description: "HTTP method (optional, defaults to GET)"},
				"body":    {Type: "string", Description: "Request body (optional)"},
				"headers": {Type: "object", Description: "Extra request headers as name/value strings (optional)"},
			},
		},
	},
	{
		Name:        "l402_budget",
		Description: "Show the spending budget: limit, sats spent this period, remaining and reset time.",
		InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
	},
	{
		Name:        "l402_tokens",
		Description: "Show credential cache statistics (entries, hits, misses, hit rate).",
		InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
	},
	{
		Name:        "l402_payments",
		Description: "Show settled L402 payments grouped by resource, with the total paid.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"resource": {Type: "string", Description: "Filter by resource URL (optional)"},
				"since":    {Type: "string", Description: "Start date in YYYY-MM-DD format for the total (optional, defaults to start of month)"},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleFetch(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.http == nil {
		return textResult("Paying HTTP client is not configured.")
	}
	var args fetchArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.URL == "" {
		return errorResult("url is required")
	}
	method := strings.ToUpper(args.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if args.Body != "" {
		body = strings.NewReader(args.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, args.URL, body)
	if err != nil {
		return errorResult("Invalid request: " + err.Error())
	}
	for k, v := range args.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return errorResult(describeFetchError(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody+1))
	if err != nil {
		return errorResult("Error reading response: " + err.Error())
	}
	return textResult(formatFetch(resp, data, maxFetchBody))
}

func describeFetchError(err error) string {
	var exceeded *budget.ExceededError
	switch {
	case errors.As(err, &exceeded):
		return "Payment refused: " + exceeded.Error()
	case errors.Is(err, client.ErrPaymentFailed):
		return "Payment failed: " + err.Error()
	case errors.Is(err, client.ErrProtocolViolation):
		return "Server sent an invalid L402 challenge: " + err.Error()
	default:
		return "Request failed: " + err.Error()
	}
}

func handleBudget(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.guard == nil {
		return textResult("Budget is not configured.")
	}
	return textResult(formatBudgetStatus(s.guard.Status()))
}

func handleTokens(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.tokens == nil {
		return textResult("Credential store is not configured.")
	}
	stats, err := s.tokens.Stats()
	if err != nil {
		return errorResult("Error fetching token stats: " + err.Error())
	}
	return textResult(formatTokenStats(stats))
}

func handlePayments(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.ledger == nil {
		return textResult("Payment ledger is not configured.")
	}
	var args paymentsArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	since := beginningOfMonth()
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		since = t
	}

	rows, err := s.ledger.Summary(ctx, args.Resource)
	if err != nil {
		return errorResult("Error fetching payments: " + err.Error())
	}
	total, err := s.ledger.TotalSince(ctx, since)
	if err != nil {
		return errorResult("Error fetching payment total: " + err.Error())
	}
	return textResult(formatPayments(rows) + fmt.Sprintf("\nTotal paid since %s: %d sats\n", since.Format("2006-01-02"), total))
}

func beginningOfMonth() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
