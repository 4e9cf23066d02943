package domain

import "errors"

// Sentinel errors for the settlement core. All of these are local,
// recoverable-by-caller failures; none indicate corrupted internal state.
var (
	// Order validation.
	ErrExpired      = errors.New("order expired")
	ErrStale        = errors.New("order salt below watermark")
	ErrBadSignature = errors.New("bad order signature")

	// Ledger.
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOverflow            = errors.New("balance overflow")

	// Condition registry.
	ErrAlreadyPrepared   = errors.New("condition already prepared")
	ErrAlreadyRegistered = errors.New("position pair already registered")
	ErrAlreadyResolved   = errors.New("condition already resolved")
	ErrNotOracle         = errors.New("caller is not the condition oracle")
	ErrInvalidVector     = errors.New("invalid payout vector")
	ErrNotResolved       = errors.New("condition not resolved")
	ErrUnknownCondition  = errors.New("unknown condition")

	// Matching.
	ErrInvalidMatch    = errors.New("orders do not form a valid match")
	ErrPriceNotCrossed = errors.New("limit prices do not cross")
	ErrInvalidFill     = errors.New("invalid fill quantity")

	// Split/merge.
	ErrInvalidPartition = errors.New("index sets do not partition the outcome space")

	// General.
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrLockHeld     = errors.New("lock already held")
)
