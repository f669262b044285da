package models

import "time"

// PaymentRecord is a settled L402 payment kept in the ledger.
type PaymentRecord struct {
	ID        string    `json:"id"`
	Resource  string    `json:"resource"`
	Price     int64     `json:"price"`
	TokenHash string    `json:"token_hash"`
	PaidAt    time.Time `json:"paid_at"`
}

// PaymentSummary aggregates payments per resource.
type PaymentSummary struct {
	Resource     string    `json:"resource"`
	PaymentCount int       `json:"payment_count"`
	TotalPaid    int64     `json:"total_paid"`
	LastPaidAt   time.Time `json:"last_paid_at"`
}
