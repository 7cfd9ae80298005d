package adapter

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/pkg/ledgerabi"
)

// Transport carries adapter calls to the ledger. Submit reports on-chain
// rejections as *RevertError together with the reverted receipt.
type Transport interface {
	ChainID(ctx context.Context) (uint64, error)
	Nonce(ctx context.Context, account common.Address) (uint64, error)
	Submit(ctx context.Context, tx ledgerabi.Transaction) (dto.ReceiptResponse, error)
	VerifyQuiz(ctx context.Context, student common.Address, quizHash common.Hash) (bool, error)
	VerifySchedule(ctx context.Context, student common.Address, scheduleHash common.Hash) (bool, error)
	Credits(ctx context.Context, student common.Address) (dto.CreditsResponse, error)
}

func revertFromReceipt(receipt dto.ReceiptResponse) *RevertError {
	return &RevertError{Code: receipt.RevertCode, Reason: receipt.RevertReason, Receipt: receipt}
}
