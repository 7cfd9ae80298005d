package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/noah-isme/kramik-ledger-api/internal/chain"
	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/internal/service"
	"github.com/noah-isme/kramik-ledger-api/pkg/ledgerabi"
)

// LocalTransport calls the ledger services in-process.
type LocalTransport struct {
	transactions service.TransactionService
	ledger       service.LedgerService
}

// NewLocalTransport builds a transport over in-process services.
func NewLocalTransport(transactions service.TransactionService, ledger service.LedgerService) *LocalTransport {
	return &LocalTransport{transactions: transactions, ledger: ledger}
}

func (t *LocalTransport) ChainID(context.Context) (uint64, error) {
	return t.transactions.ChainID(), nil
}

func (t *LocalTransport) Nonce(ctx context.Context, account common.Address) (uint64, error) {
	return t.transactions.GetNonce(ctx, account)
}

func (t *LocalTransport) Submit(ctx context.Context, tx ledgerabi.Transaction) (dto.ReceiptResponse, error) {
	receipt, err := t.transactions.Submit(ctx, tx)
	if err == nil {
		return receipt, nil
	}

	if _, ok := chain.IsRevert(err); ok {
		return receipt, revertFromReceipt(receipt)
	}
	switch {
	case errors.Is(err, chain.ErrKnownTransaction):
		if receipt.Status == ledgerabi.StatusReverted {
			return receipt, revertFromReceipt(receipt)
		}
		return receipt, nil
	case errors.Is(err, chain.ErrNonceTooLow), errors.Is(err, chain.ErrNonceTooHigh):
		return receipt, fmt.Errorf("%w: %v", ErrNonceConflict, err)
	case errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, service.ErrWrongChain),
		errors.Is(err, service.ErrUnknownMethod),
		errors.Is(err, service.ErrInvalidInput):
		return receipt, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return receipt, err
}

func (t *LocalTransport) VerifyQuiz(ctx context.Context, student common.Address, quizHash common.Hash) (bool, error) {
	return t.ledger.VerifyQuizSubmission(ctx, student, quizHash)
}

func (t *LocalTransport) VerifySchedule(ctx context.Context, student common.Address, scheduleHash common.Hash) (bool, error) {
	return t.ledger.VerifyScheduleCompletion(ctx, student, scheduleHash)
}

func (t *LocalTransport) Credits(ctx context.Context, student common.Address) (dto.CreditsResponse, error) {
	return t.ledger.GetStudentCredits(ctx, student)
}
