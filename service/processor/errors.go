package processor

import "errors"

// ErrCaptureUnverified indicates the processor could not attest that the
// payment was captured. Settlement must not proceed on this error.
var ErrCaptureUnverified = errors.New("payment capture could not be verified")
