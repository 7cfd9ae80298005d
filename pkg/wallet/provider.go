// Package wallet abstracts wallet providers behind a single capability
// interface. Concrete wallets are interchangeable and chosen by probing.
package wallet

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUserRejected indicates the user declined the prompt.
	ErrUserRejected = errors.New("wallet: user rejected the request")
	// ErrRequestPending indicates another prompt is already open in the wallet.
	ErrRequestPending = errors.New("wallet: a request is already pending")
	// ErrLocked indicates the wallet must be unlocked first.
	ErrLocked = errors.New("wallet: locked")
	// ErrUnknownAccount indicates the wallet does not control the account.
	ErrUnknownAccount = errors.New("wallet: unknown account")
	// ErrNoProvider indicates no usable wallet was detected.
	ErrNoProvider = errors.New("wallet: no provider available")
	// ErrInvalidSignature indicates a malformed or unrecoverable signature.
	ErrInvalidSignature = errors.New("wallet: invalid signature")
)

// NotificationKind enumerates provider change notifications.
type NotificationKind string

const (
	// AccountsChanged fires when the active account switches.
	AccountsChanged NotificationKind = "accountsChanged"
	// ChainChanged fires when the wallet moves to another chain.
	ChainChanged NotificationKind = "chainChanged"
	// Disconnected fires when the provider goes away.
	Disconnected NotificationKind = "disconnect"
)

// Notification is pushed by a provider when its state changes.
type Notification struct {
	Kind     NotificationKind
	Accounts []common.Address
	ChainID  uint64
}

// Provider is the capability set the ledger adapter needs from a wallet.
type Provider interface {
	// Name identifies the wallet for logs and errors.
	Name() string
	// Available reports whether the wallet can serve requests right now.
	Available() bool
	// RequestAccounts asks the user for account access.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// PersonalSign signs message with the EIP-191 personal message prefix.
	PersonalSign(ctx context.Context, account common.Address, message []byte) ([]byte, error)
	// Subscribe streams account and chain change notifications.
	Subscribe() (<-chan Notification, func())
}

// Detect returns the first available provider.
func Detect(providers ...Provider) (Provider, error) {
	for _, provider := range providers {
		if provider != nil && provider.Available() {
			return provider, nil
		}
	}
	return nil, ErrNoProvider
}
