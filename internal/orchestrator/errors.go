package orchestrator

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalTransition    = errors.New("illegal transition of checkout state")
	ErrVerificationInFlight = errors.New("payment verification already in flight")
	ErrIndeterminatePayment = errors.New("payment outcome indeterminate, awaiting reconciliation")
)

// ValidationError reports the specific staged-record field that failed,
// before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// OrderCreationError is a backend rejection of order creation (stock,
// pricing, auth). The staged record is retained for retry.
type OrderCreationError struct {
	Message string
}

func (e *OrderCreationError) Error() string {
	return fmt.Sprintf("order creation failed: %s", e.Message)
}

// GatewayInitError means the backend could not mint a payment session for an
// already-created order; the local order stays pending server-side.
type GatewayInitError struct {
	Message string
}

func (e *GatewayInitError) Error() string {
	return fmt.Sprintf("gateway session failed: %s", e.Message)
}

// VerificationError is a signature or payment mismatch. The local order
// remains pending server-side for manual reconciliation.
type VerificationError struct {
	Message string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("payment verification failed: %s", e.Message)
}

// NetworkError is a transport failure on one of the sequential calls. State
// reverts to the pre-call state and the staged record is retained.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
