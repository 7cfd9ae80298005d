package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RequestKind identifies the prompt a wallet is about to show.
type RequestKind string

const (
	// RequestAccountAccess is shown for RequestAccounts.
	RequestAccountAccess RequestKind = "eth_requestAccounts"
	// RequestPersonalSign is shown for PersonalSign.
	RequestPersonalSign RequestKind = "personal_sign"
)

// Prompt describes a pending user confirmation.
type Prompt struct {
	Kind    RequestKind
	Account common.Address
	Message []byte
}

// Approver decides a prompt. Returning an error rejects it.
type Approver func(ctx context.Context, prompt Prompt) error

// KeyProvider is a wallet backed by in-memory secp256k1 keys. It is used by
// operator tooling and tests, and behaves like a browser wallet: one prompt at
// a time, lockable, with account and chain switching notifications.
type KeyProvider struct {
	mu          sync.Mutex
	name        string
	keys        []*ecdsa.PrivateKey
	active      int
	chainID     uint64
	locked      bool
	prompting   bool
	approve     Approver
	subscribers map[chan Notification]struct{}
}

// NewKeyProvider builds a provider for the given keys; the first key is active.
func NewKeyProvider(name string, chainID uint64, keys ...*ecdsa.PrivateKey) *KeyProvider {
	return &KeyProvider{
		name:        name,
		keys:        keys,
		chainID:     chainID,
		approve:     func(context.Context, Prompt) error { return nil },
		subscribers: make(map[chan Notification]struct{}),
	}
}

// KeyProviderFromHex parses a hex private key (with or without 0x prefix).
func KeyProviderFromHex(name string, chainID uint64, hexKey string) (*KeyProvider, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKeyProvider(name, chainID, key), nil
}

// Name implements Provider.
func (p *KeyProvider) Name() string {
	return p.name
}

// Available implements Provider.
func (p *KeyProvider) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys) > 0
}

// SetApprover replaces the prompt decision hook.
func (p *KeyProvider) SetApprover(approve Approver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if approve == nil {
		approve = func(context.Context, Prompt) error { return nil }
	}
	p.approve = approve
}

// Lock makes every request fail with ErrLocked until Unlock.
func (p *KeyProvider) Lock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked = true
}

// Unlock reverses Lock.
func (p *KeyProvider) Unlock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked = false
}

// RequestAccounts implements Provider.
func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	release, err := p.beginPrompt(ctx, Prompt{Kind: RequestAccountAccess})
	if err != nil {
		return nil, err
	}
	defer release()

	p.mu.Lock()
	defer p.mu.Unlock()
	return []common.Address{crypto.PubkeyToAddress(p.keys[p.active].PublicKey)}, nil
}

// PersonalSign implements Provider.
func (p *KeyProvider) PersonalSign(ctx context.Context, account common.Address, message []byte) ([]byte, error) {
	key, err := p.keyFor(account)
	if err != nil {
		return nil, err
	}

	release, err := p.beginPrompt(ctx, Prompt{Kind: RequestPersonalSign, Account: account, Message: message})
	if err != nil {
		return nil, err
	}
	defer release()

	return SignPersonal(key, message)
}

// Subscribe implements Provider.
func (p *KeyProvider) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, 4)

	p.mu.Lock()
	p.subscribers[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, ch)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// SwitchAccount activates the key at index and notifies subscribers.
func (p *KeyProvider) SwitchAccount(index int) error {
	p.mu.Lock()
	if index < 0 || index >= len(p.keys) {
		p.mu.Unlock()
		return fmt.Errorf("account index %d out of range", index)
	}
	p.active = index
	address := crypto.PubkeyToAddress(p.keys[index].PublicKey)
	p.mu.Unlock()

	p.notify(Notification{Kind: AccountsChanged, Accounts: []common.Address{address}})
	return nil
}

// SwitchChain changes the wallet chain and notifies subscribers.
func (p *KeyProvider) SwitchChain(chainID uint64) {
	p.mu.Lock()
	p.chainID = chainID
	p.mu.Unlock()

	p.notify(Notification{Kind: ChainChanged, ChainID: chainID})
}

// ChainID returns the chain the wallet is on.
func (p *KeyProvider) ChainID() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID
}

func (p *KeyProvider) keyFor(account common.Address) (*ecdsa.PrivateKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return nil, ErrNoProvider
	}
	key := p.keys[p.active]
	if crypto.PubkeyToAddress(key.PublicKey) != account {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
	}
	return key, nil
}

// beginPrompt enforces the single open prompt rule and asks the approver.
func (p *KeyProvider) beginPrompt(ctx context.Context, prompt Prompt) (func(), error) {
	p.mu.Lock()
	if len(p.keys) == 0 {
		p.mu.Unlock()
		return nil, ErrNoProvider
	}
	if p.locked {
		p.mu.Unlock()
		return nil, ErrLocked
	}
	if p.prompting {
		p.mu.Unlock()
		return nil, ErrRequestPending
	}
	p.prompting = true
	approve := p.approve
	p.mu.Unlock()

	release := func() {
		p.mu.Lock()
		p.prompting = false
		p.mu.Unlock()
	}

	if err := approve(ctx, prompt); err != nil {
		release()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

func (p *KeyProvider) notify(notification Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.subscribers {
		select {
		case ch <- notification:
		default:
		}
	}
}
