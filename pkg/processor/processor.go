// Package processor defines the payment processor operations the L402 client
// and paywall depend on, and an HTTP client for a hosted processor API.
package processor

import (
	"context"

	"github.com/pario-ai/l402/pkg/models"
)

// Payer pays the invoice carried by an L402 WWW-Authenticate challenge.
type Payer interface {
	PayInvoice(ctx context.Context, wwwAuthenticate string) (models.Payment, error)
}

// Verifier checks a presented L402 Authorization header.
type Verifier interface {
	VerifyCredential(ctx context.Context, authorization string) (models.Verification, error)
}

// Minter issues fresh priced challenges.
type Minter interface {
	IssueChallenge(ctx context.Context, req models.ChallengeRequest) (models.Challenge, error)
}

// PayerFunc adapts a function to Payer.
type PayerFunc func(ctx context.Context, wwwAuthenticate string) (models.Payment, error)

// PayInvoice calls f.
func (f PayerFunc) PayInvoice(ctx context.Context, wwwAuthenticate string) (models.Payment, error) {
	return f(ctx, wwwAuthenticate)
}
