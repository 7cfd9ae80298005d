package chain

import (
	"errors"
	"fmt"
)

var (
	// ErrNonceTooLow indicates the nonce was already used by the sender.
	ErrNonceTooLow = errors.New("nonce too low")
	// ErrNonceTooHigh indicates a gap between the expected and the supplied nonce.
	ErrNonceTooHigh = errors.New("nonce too high")
	// ErrKnownTransaction indicates the transaction hash was already executed.
	ErrKnownTransaction = errors.New("known transaction")
)

// RevertError is a contract-level rejection. A reverted call leaves no state
// change and emits no events.
type RevertError struct {
	Code string
	Err  error
}

// Revert wraps err as a contract revert carrying code.
func Revert(code string, err error) *RevertError {
	return &RevertError{Code: code, Err: err}
}

func (e *RevertError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("execution reverted: %s", e.Code)
	}
	return fmt.Sprintf("execution reverted: %s", e.Err.Error())
}

func (e *RevertError) Unwrap() error {
	return e.Err
}

// IsRevert reports whether err carries a contract revert and returns it.
func IsRevert(err error) (*RevertError, bool) {
	var revert *RevertError
	if errors.As(err, &revert) {
		return revert, true
	}
	return nil, false
}
