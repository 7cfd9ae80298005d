package ledgerabi

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/noah-isme/kramik-ledger-api/pkg/contenthash"
	"github.com/noah-isme/kramik-ledger-api/pkg/wallet"
)

// ErrSignerMismatch indicates the signature was not produced by the declared sender.
var ErrSignerMismatch = errors.New("signature does not match sender")

const digestDomain = "kramik-tx"

// Transaction is the signed envelope submitted for every contract write.
type Transaction struct {
	ChainID   uint64          `json:"chainId"`
	From      common.Address  `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	Signature hexutil.Bytes   `json:"signature,omitempty"`
}

// NewTransaction encodes params and builds an unsigned transaction.
func NewTransaction(chainID uint64, from common.Address, nonce uint64, method string, params any) (Transaction, error) {
	if params == nil {
		params = EmptyParams{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return Transaction{}, err
	}

	return Transaction{
		ChainID: chainID,
		From:    from,
		Nonce:   nonce,
		Method:  method,
		Params:  raw,
	}, nil
}

// Digest is the transaction hash. It covers every field except the signature
// and is what the sender signs with personal_sign.
func (t Transaction) Digest() common.Hash {
	var params bytes.Buffer
	if err := json.Compact(&params, t.Params); err != nil {
		params.Reset()
		params.Write(t.Params)
	}

	var preimage strings.Builder
	preimage.WriteString(digestDomain)
	preimage.WriteByte('|')
	preimage.WriteString(strconv.FormatUint(t.ChainID, 10))
	preimage.WriteByte('|')
	preimage.WriteString(strings.ToLower(t.From.Hex()))
	preimage.WriteByte('|')
	preimage.WriteString(strconv.FormatUint(t.Nonce, 10))
	preimage.WriteByte('|')
	preimage.WriteString(t.Method)
	preimage.WriteByte('|')
	preimage.Write(params.Bytes())

	return contenthash.Sum([]byte(preimage.String()))
}

// Sender recovers the signer and checks it against From.
func (t Transaction) Sender() (common.Address, error) {
	digest := t.Digest()
	signer, err := wallet.RecoverPersonal(digest[:], t.Signature)
	if err != nil {
		return common.Address{}, err
	}
	if signer != t.From {
		return signer, ErrSignerMismatch
	}
	return signer, nil
}
