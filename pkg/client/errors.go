package client

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolViolation is returned when a 402 response carries no usable
	// L402 challenge.
	ErrProtocolViolation = errors.New("l402 protocol violation")
	// ErrPaymentFailed is returned when a challenge could not be turned into a
	// working credential.
	ErrPaymentFailed = errors.New("l402 payment failed")
)

// PaymentFailedError carries the reason a payment did not yield access.
// It matches ErrPaymentFailed with errors.Is and unwraps to the underlying
// processor error, if any.
type PaymentFailedError struct {
	Resource string
	Reason   string
	Err      error
}

func (e *PaymentFailedError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrPaymentFailed, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PaymentFailedError) Unwrap() error { return e.Err }

// Is reports ErrPaymentFailed as a match.
func (e *PaymentFailedError) Is(target error) bool { return target == ErrPaymentFailed }
