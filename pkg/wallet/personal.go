package wallet

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignPersonal produces a personal_sign signature (r || s || v, v in {27, 28}).
func SignPersonal(key *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	signature, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return nil, err
	}
	signature[crypto.RecoveryIDOffset] += 27
	return signature, nil
}

// RecoverPersonal returns the address that produced a personal_sign signature.
// Both the legacy (27/28) and raw (0/1) recovery ids are accepted.
func RecoverPersonal(message, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(signature))
	}

	normalized := make([]byte, len(signature))
	copy(normalized, signature)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: bad recovery id", ErrInvalidSignature)
	}

	publicKey, err := crypto.SigToPub(accounts.TextHash(message), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return crypto.PubkeyToAddress(*publicKey), nil
}
