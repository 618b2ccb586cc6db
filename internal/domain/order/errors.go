package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for the order pipeline.
var (
	ErrEmptyItems        = errors.New("items required")
	ErrNotFound          = errors.New("order not found")
	ErrForbidden         = errors.New("forbidden")
	ErrPickupCodeTaken   = errors.New("pickup code already in use")
	ErrStaleStatus       = errors.New("order changed concurrently")
	ErrAlreadyResolved   = errors.New("payment transaction already resolved")
	ErrPaymentInProgress = errors.New("payment prompt still in progress")
	ErrDuplicateRequest  = errors.New("request with this idempotency key is still in progress")
)

// ValidationError rejects a malformed request before any state changes.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason == "" && e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransitionError indicates the current state disallows the requested change.
type TransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s: %s", e.From, e.To, e.Reason)
}

// GatewayError reports a rejected payment prompt. The order it was sent for
// already exists and stays PENDING, so the client can retry the payment step.
type GatewayError struct {
	OrderID    string
	PickupCode string
	Err        error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment prompt for order %s failed: %s", e.OrderID, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
