package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/internal/service"
	"github.com/noah-isme/kramik-ledger-api/pkg/wallet"
)

var (
	// ErrWalletNotConnected indicates Connect has not succeeded yet.
	ErrWalletNotConnected = errors.New("adapter: wallet not connected")
	// ErrConnectionChanged indicates the wallet switched account or chain while an operation was running.
	ErrConnectionChanged = errors.New("adapter: wallet account or chain changed")
	// ErrWrongChain indicates the wallet and the ledger are on different chains.
	ErrWrongChain = errors.New("adapter: wallet is on a different chain")
	// ErrNonceConflict indicates another session used the account nonce first.
	ErrNonceConflict = errors.New("adapter: nonce already used")
	// ErrRejected indicates the ledger refused the transaction before execution.
	ErrRejected = errors.New("adapter: transaction rejected")
	// ErrUnavailable indicates the ledger endpoint could not be reached.
	ErrUnavailable = errors.New("adapter: ledger unavailable")
	// ErrSubmitUnconfirmed indicates the transaction was sent but no answer
	// arrived in time. It may still land.
	ErrSubmitUnconfirmed = errors.New("adapter: transaction sent, outcome unknown")
)

// RevertError is an on-chain rejection. The receipt is final.
type RevertError struct {
	Code    string
	Reason  string
	Receipt dto.ReceiptResponse
}

func (e *RevertError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("execution reverted: %s", e.Reason)
	}
	return fmt.Sprintf("execution reverted: %s", e.Code)
}

// Unwrap exposes the ledger sentinel for the revert code.
func (e *RevertError) Unwrap() error {
	return service.ErrorForRevertCode(e.Code)
}

// Error is returned by every adapter operation. It records which operation
// failed, for which wallet, and whether a transaction had been broadcast.
type Error struct {
	Op        string
	Wallet    string
	Account   common.Address
	TxHash    common.Hash
	Broadcast bool
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s via %s", e.Op, e.Wallet)
	if e.Account != (common.Address{}) {
		msg += fmt.Sprintf(" (%s)", e.Account.Hex())
	}
	if e.Broadcast {
		msg += fmt.Sprintf(" after broadcasting %s", e.TxHash.Hex())
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the operation may succeed after user action or a
// later attempt. On-chain reverts never are.
func (e *Error) Retryable() bool {
	if _, ok := e.Revert(); ok {
		return false
	}
	switch {
	case errors.Is(e.Err, wallet.ErrUserRejected),
		errors.Is(e.Err, wallet.ErrRequestPending),
		errors.Is(e.Err, wallet.ErrLocked),
		errors.Is(e.Err, ErrConnectionChanged),
		errors.Is(e.Err, ErrWalletNotConnected),
		errors.Is(e.Err, ErrNonceConflict),
		errors.Is(e.Err, ErrUnavailable),
		errors.Is(e.Err, ErrSubmitUnconfirmed),
		errors.Is(e.Err, context.DeadlineExceeded):
		return true
	}
	return false
}

// Revert returns the on-chain rejection, if that is what failed.
func (e *Error) Revert() (*RevertError, bool) {
	var revertErr *RevertError
	if errors.As(e.Err, &revertErr) {
		return revertErr, true
	}
	return nil, false
}
