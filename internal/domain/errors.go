package domain

import "errors"

// Validation errors: caller mistakes rejected before any state change.
var (
	ErrInvalidAmount   = errors.New("amount must be > 0")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidOutcome  = errors.New("invalid outcome")
	ErrInvalidSchedule = errors.New("end time must be in future")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrNotFound        = errors.New("not found")
)

// State errors: the call is well-formed but the market lifecycle forbids it.
var (
	ErrInvalidState       = errors.New("invalid market state")
	ErrTooEarly           = errors.New("market not ended yet")
	ErrInsufficientShares = errors.New("insufficient shares")
)

// Authorization and replay errors.
var (
	ErrUnauthorized   = errors.New("not authorized")
	ErrOutOfBounds    = errors.New("price out of bounds")
	ErrAlreadyClaimed = errors.New("rewards already claimed")
	ErrNoPosition     = errors.New("no winning position")
)

// ErrResourceExhausted signals that the commit layer cannot accept further
// state changes (for example, insufficient funds to submit). Drivers treat
// it as fatal and halt instead of retrying.
var ErrResourceExhausted = errors.New("resource exhausted")
