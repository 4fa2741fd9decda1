package ledger

import (
	"errors"
	"fmt"
)

// ErrNoOpenIntents is returned when the off-ramp intent queue, minus
// exclusions, is empty. Recoverable: the caller retries later.
var ErrNoOpenIntents = errors.New("no open off-ramp intents")

// RevertError is a contract-level failure extracted from the gateway's
// nested error payload. The revert reason is surfaced verbatim so callers
// can distinguish contract rejections from transport failures.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("ledger call reverted: %s", e.Reason)
}

// AsRevertError unwraps err looking for a RevertError.
func AsRevertError(err error) (*RevertError, bool) {
	var revert *RevertError
	if errors.As(err, &revert) {
		return revert, true
	}
	return nil, false
}
