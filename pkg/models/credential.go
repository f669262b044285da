package models

import "time"

// Credential is a cached proof of payment for a resource.
type Credential struct {
	// Authorization is the full header value, e.g. "L402 mac:preimage".
	Authorization string     `json:"authorization"`
	PaidAt        time.Time  `json:"paid_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the credential is past its expiry at now.
// A credential without an expiry never expires.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Challenge is a payment demand issued by the payment processor.
type Challenge struct {
	Macaroon        string `json:"macaroon"`
	Invoice         string `json:"invoice"`
	PaymentHash     string `json:"paymentHash,omitempty"`
	WWWAuthenticate string `json:"wwwAuthenticate,omitempty"`
	Price           int64  `json:"-"`
	ExpirySeconds   *int64 `json:"-"`
}

// ChallengeRequest asks the processor to mint a new challenge.
type ChallengeRequest struct {
	Amount        int64    `json:"amount"`
	Description   string   `json:"description,omitempty"`
	ExpirySeconds *int64   `json:"expirySeconds,omitempty"`
	Caveats       []string `json:"caveats,omitempty"`
}

// Verification is the processor's verdict on a presented credential.
type Verification struct {
	Valid       bool     `json:"valid"`
	PaymentHash string   `json:"paymentHash,omitempty"`
	Caveats     []string `json:"caveats,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Payment status values reported by the processor.
const (
	PaymentSettled = "settled"
	PaymentFailed  = "failed"
)

// Payment is the processor's result of paying an L402 challenge.
type Payment struct {
	Status        string `json:"status"`
	Authorization string `json:"authorization,omitempty"`
	PaymentHash   string `json:"paymentHash,omitempty"`
	Preimage      string `json:"preimage,omitempty"`
	Amount        int64  `json:"amount"`
	Fee           *int64 `json:"fee,omitempty"`
}
