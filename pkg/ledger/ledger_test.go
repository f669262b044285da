package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/l402/pkg/models"
)

func newTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	l, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordAndList(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := models.PaymentRecord{
		Resource:  "https://api.example.com/data",
		Price:     10,
		TokenHash: "abc123",
		PaidAt:    now,
	}
	if err := l.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}

	records, err := l.List(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ID == "" {
		t.Error("expected generated ID")
	}
	if records[0].Price != 10 {
		t.Errorf("expected price 10, got %d", records[0].Price)
	}
	if records[0].TokenHash != "abc123" {
		t.Errorf("expected token hash abc123, got %s", records[0].TokenHash)
	}
}

func TestRecordKeepsExplicitID(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if err := l.Record(ctx, models.PaymentRecord{ID: "pay-1", Resource: "r", Price: 1}); err != nil {
		t.Fatal(err)
	}
	if err := l.Record(ctx, models.PaymentRecord{ID: "pay-1", Resource: "r", Price: 1}); err == nil {
		t.Error("expected duplicate ID to fail")
	}

	records, err := l.List(ctx, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "pay-1" {
		t.Fatalf("expected single pay-1 record, got %+v", records)
	}
}

func TestTotalSince(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := range 3 {
		_ = l.Record(ctx, models.PaymentRecord{
			Resource: "https://api.example.com/data", Price: 25,
			PaidAt: now.Add(time.Duration(i) * time.Second),
		})
	}
	_ = l.Record(ctx, models.PaymentRecord{
		Resource: "https://api.example.com/old", Price: 1000,
		PaidAt: now.Add(-48 * time.Hour),
	})

	total, err := l.TotalSince(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if total != 75 {
		t.Errorf("expected 75, got %d", total)
	}

	total, err = l.TotalSince(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("expected 0 for future window, got %d", total)
	}
}

func TestSummary(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = l.Record(ctx, models.PaymentRecord{Resource: "https://a.example/x", Price: 10, PaidAt: now})
	_ = l.Record(ctx, models.PaymentRecord{Resource: "https://a.example/x", Price: 5, PaidAt: now.Add(time.Second)})
	_ = l.Record(ctx, models.PaymentRecord{Resource: "https://b.example/y", Price: 7, PaidAt: now})

	summaries, err := l.Summary(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].PaymentCount != 2 || summaries[0].TotalPaid != 15 {
		t.Errorf("unexpected summary for a.example: %+v", summaries[0])
	}
	if summaries[0].LastPaidAt.IsZero() {
		t.Error("expected last paid time")
	}

	// Filter by resource
	summaries, err = l.Summary(ctx, "https://b.example/y")
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
}

func TestPrune(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, age := range []time.Duration{72 * time.Hour, 48 * time.Hour, time.Hour} {
		if err := l.Record(ctx, models.PaymentRecord{Resource: "https://a", Price: 1, PaidAt: now.Add(-age)}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := l.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}

	records, err := l.List(ctx, now.Add(-100*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records after prune, want 1", len(records))
	}
}
