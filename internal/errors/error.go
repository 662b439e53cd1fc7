package errors

import (
	"errors"
)

var (
	ErrEmptyAuth    = errors.New("missing authorization")
	ErrEmptySubject = errors.New("missing subject")
	ErrTokenInvalid = errors.New("invalid token")
)

// Engine error taxonomy. Every failure an engine operation surfaces wraps
// exactly one of these sentinels so controllers can map it to behavior:
// validation and integrity errors disable submit until resolved, transient
// errors carry an explicit retry affordance, rejections are surfaced verbatim
// and gateway-ambiguous outcomes are resolved only against authoritative
// order status.
var (
	ErrValidation       = errors.New("validation failed")
	ErrTransient        = errors.New("transient network failure")
	ErrIntegrity        = errors.New("charge integrity check failed")
	ErrServerRejection  = errors.New("request rejected by server")
	ErrGatewayAmbiguous = errors.New("payment gateway outcome unknown")

	ErrStockConflict      = errors.New("unresolved stock conflict")
	ErrSubmissionInFlight = errors.New("submission already in flight")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrUnknownCurrency    = errors.New("unknown currency code")
	ErrItemNotFound       = errors.New("cart item not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotCancelable = errors.New("order can no longer be cancelled")
)
