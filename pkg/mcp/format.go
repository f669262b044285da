package mcp

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pario-ai/l402/pkg/models"
)

// formatFetch renders a fetched response, truncating the body at limit.
func formatFetch(resp *http.Response, body []byte, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP %d\n", resp.StatusCode)
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		fmt.Fprintf(&b, "Content-Type: %s\n", ct)
	}
	b.WriteString("\n")
	if len(body) > limit {
		b.Write(body[:limit])
		fmt.Fprintf(&b, "\n... (truncated at %d bytes)", limit)
	} else {
		b.Write(body)
	}
	return b.String()
}

// formatBudgetStatus formats the budget status as text.
func formatBudgetStatus(s models.BudgetStatus) string {
	if s.Unlimited {
		return fmt.Sprintf("Budget: unlimited\n"+
			"  Spent this %s: %d sats\n", s.Period, s.Spent)
	}
	pct := float64(0)
	if s.Limit > 0 {
		pct = float64(s.Spent) / float64(s.Limit) * 100
	}
	return fmt.Sprintf("Budget (%s)\n"+
		"  Limit:     %d sats\n"+
		"  Spent:     %d sats (%.1f%%)\n"+
		"  Remaining: %d sats\n"+
		"  Resets at: %s\n",
		s.Period, s.Limit, s.Spent, pct, s.Remaining,
		s.ResetsAt.UTC().Format("2006-01-02 15:04:05"))
}

// formatTokenStats formats credential store stats as text.
func formatTokenStats(stats models.TokenStats) string {
	return fmt.Sprintf("Credential Cache\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, stats.HitRate())
}

// formatPayments formats per-resource payment summaries as a text table.
func formatPayments(rows []models.PaymentSummary) string {
	if len(rows) == 0 {
		return "No payments found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-50s %8s %12s %-20s\n", "Resource", "Payments", "Sats", "Last Paid")
	b.WriteString(strings.Repeat("-", 93) + "\n")
	for _, r := range rows {
		res := r.Resource
		if len(res) > 50 {
			res = res[:23] + "..." + res[len(res)-24:]
		}
		fmt.Fprintf(&b, "%-50s %8d %12d %-20s\n",
			res, r.PaymentCount, r.TotalPaid, r.LastPaidAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
