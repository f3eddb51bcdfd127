package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency.

var (
	// Case errors
	ErrCaseNotFound   = errors.New("case not found")
	ErrInvalidAmount  = errors.New("payment amount must be non-negative")
	ErrPaymentBlocked = errors.New("case status does not accept payments")

	// Event errors
	ErrInvalidEvent = errors.New("invalid payment event")

	// Infrastructure errors
	ErrStoreUnavailable = errors.New("case store is unavailable")
	ErrPublishFailed    = errors.New("event publish failed")
)
