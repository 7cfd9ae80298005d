package dto

import (
	"time"

	"github.com/noah-isme/kramik-ledger-api/internal/models"
)

// ReceiptResponse serializes the outcome of an executed transaction.
type ReceiptResponse struct {
	TxHash       string    `json:"tx_hash"`
	From         string    `json:"from"`
	Nonce        *uint64   `json:"nonce,omitempty"`
	Method       string    `json:"method"`
	BlockNumber  uint64    `json:"block_number"`
	Status       string    `json:"status"`
	RevertCode   string    `json:"revert_code,omitempty"`
	RevertReason string    `json:"revert_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewReceiptResponse maps a stored receipt.
func NewReceiptResponse(receipt models.Receipt) ReceiptResponse {
	return ReceiptResponse{
		TxHash:       receipt.TxHash,
		From:         receipt.From,
		Nonce:        receipt.Nonce,
		Method:       receipt.Method,
		BlockNumber:  receipt.BlockNumber,
		Status:       receipt.Status,
		RevertCode:   receipt.RevertCode,
		RevertReason: receipt.RevertReason,
		CreatedAt:    receipt.CreatedAt,
	}
}

// NonceResponse reports the next nonce a sender must use.
type NonceResponse struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}
