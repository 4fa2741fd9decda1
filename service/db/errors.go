package db

import "errors"

var (
	// ErrAlreadyReserved is returned by Reserve when another settlement
	// attempt holds a live reservation for the same off-ramp address.
	// Recoverable: the caller should re-match with the address excluded.
	ErrAlreadyReserved = errors.New("off-ramp address already reserved")

	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a transaction record status
	// update would violate monotonicity (terminal statuses never change).
	ErrInvalidTransition = errors.New("invalid transaction status transition")

	// ErrDuplicateCallback is returned by BeginPaymentCapture when the
	// capture for a correlation id is already in progress or done.
	// Not a failure: the duplicate delivery must be ignored, not retried.
	ErrDuplicateCallback = errors.New("payment callback already delivered")

	// ErrAlreadyRegistered is returned when a registration submission for a
	// (wallet, email) pair has already been recorded.
	ErrAlreadyRegistered = errors.New("registration already submitted")
)
