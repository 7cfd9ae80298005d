// Package chain is the sequencer that stands in for the host blockchain. It
// totally orders contract calls, executes each atomically and keeps the
// chain bookkeeping: block height, sender nonces, receipts and the event log.
package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/kramik-ledger-api/internal/models"
	"github.com/noah-isme/kramik-ledger-api/internal/observability"
	"github.com/noah-isme/kramik-ledger-api/internal/repository"
	"github.com/noah-isme/kramik-ledger-api/pkg/ledgerabi"
)

const maxRevertReason = 255

// Call identifies a contract call. Nonce is set for signed transactions only;
// unsigned calls are internal (deployment, seeding) and get a derived hash.
type Call struct {
	From   common.Address
	Method string
	Nonce  *uint64
	Hash   common.Hash
}

// Signed reports whether the call carries a sender nonce.
func (c Call) Signed() bool {
	return c.Nonce != nil
}

// Func is the body of a contract call.
type Func func(tx *Tx) error

// Result describes an executed call.
type Result struct {
	Receipt models.Receipt
	Events  []models.LedgerEvent
}

// Dispatcher receives the events of a committed block.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []models.LedgerEvent)
}

// Executor runs contract calls one at a time.
type Executor struct {
	db         *gorm.DB
	chain      repository.ChainRepository
	events     repository.EventRepository
	dispatcher Dispatcher
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
	mu         sync.Mutex
}

// NewExecutor builds an executor; dispatcher may be nil.
func NewExecutor(db *gorm.DB, chainRepo repository.ChainRepository, eventRepo repository.EventRepository, dispatcher Dispatcher, logger zerolog.Logger) *Executor {
	return &Executor{
		db:         db,
		chain:      chainRepo,
		events:     eventRepo,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "chain_executor").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/kramik-ledger-api/internal/chain"),
		now:        time.Now,
	}
}

// Head returns the latest block number.
func (e *Executor) Head(ctx context.Context) (uint64, error) {
	return e.chain.Head(ctx)
}

// Execute runs fn as the next block. A *RevertError from fn discards its
// writes; signed calls still consume their nonce and record a reverted
// receipt, which is returned together with the revert.
func (e *Executor) Execute(ctx context.Context, call Call, fn Func) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "chain.execute", trace.WithAttributes(
		attribute.String("chain.method", call.Method),
		attribute.String("chain.from", call.From.Hex()),
		attribute.Bool("chain.signed", call.Signed()),
	))
	defer span.End()

	started := time.Now()
	defer func() {
		observability.ExecutionLatency().WithLabelValues(call.Method).Observe(time.Since(started).Seconds())
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		result  Result
		revert  *RevertError
		pending []models.LedgerEvent
		hooks   []func(context.Context)
	)

	err := e.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		chainRepo := e.chain.WithTx(dbtx)

		head, err := chainRepo.LockHead(ctx)
		if err != nil {
			return fmt.Errorf("failed to lock chain head: %w", err)
		}

		block := head.BlockNumber + 1
		timestamp := e.now().UTC()
		hash := call.Hash

		var account models.Account
		if call.Signed() {
			if err := checkUnknown(ctx, chainRepo, hash); err != nil {
				return err
			}
			account, err = chainRepo.GetAccount(ctx, call.From.Hex())
			if err != nil {
				return fmt.Errorf("failed to load account: %w", err)
			}
			if err := checkNonce(account.Nonce, *call.Nonce); err != nil {
				return err
			}
		} else {
			hash = internalHash(call, block, timestamp)
		}

		tx := &Tx{
			ctx:       ctx,
			Caller:    call.From,
			Method:    call.Method,
			Block:     block,
			Timestamp: timestamp,
			Hash:      hash,
		}

		receipt := models.Receipt{
			TxHash:      hash.Hex(),
			From:        call.From.Hex(),
			Nonce:       call.Nonce,
			Method:      call.Method,
			BlockNumber: block,
			Status:      ledgerabi.StatusSuccess,
			CreatedAt:   timestamp,
		}

		callErr := dbtx.Transaction(func(savepoint *gorm.DB) error {
			tx.db = savepoint
			return fn(tx)
		})
		if callErr != nil {
			var ok bool
			revert, ok = IsRevert(callErr)
			if !ok || !call.Signed() {
				return callErr
			}
			tx.events = nil
			tx.onCommit = nil
			receipt.Status = ledgerabi.StatusReverted
			receipt.RevertCode = revert.Code
			receipt.RevertReason = truncate(revert.Error(), maxRevertReason)
		}

		if call.Signed() {
			account.Nonce++
			account.UpdatedAt = timestamp
			if err := chainRepo.SaveAccount(ctx, &account); err != nil {
				return fmt.Errorf("failed to save account: %w", err)
			}
		}

		if err := chainRepo.CreateReceipt(ctx, &receipt); err != nil {
			return fmt.Errorf("failed to store receipt: %w", err)
		}

		if err := e.events.WithTx(dbtx).Append(ctx, tx.events); err != nil {
			return fmt.Errorf("failed to append events: %w", err)
		}

		head.BlockNumber = block
		head.UpdatedAt = timestamp
		if err := chainRepo.SaveHead(ctx, &head); err != nil {
			return fmt.Errorf("failed to advance chain head: %w", err)
		}

		pending = tx.events
		hooks = tx.onCommit
		result = Result{Receipt: receipt, Events: tx.events}
		return nil
	})
	if err != nil {
		status := "error"
		if rev, ok := IsRevert(err); ok {
			status = ledgerabi.StatusReverted
			span.SetAttributes(attribute.String("chain.revert", rev.Code))
		} else if errors.Is(err, ErrNonceTooLow) || errors.Is(err, ErrNonceTooHigh) || errors.Is(err, ErrKnownTransaction) {
			status = "rejected"
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "execution_failed")
			e.logger.Error().Err(err).Str("method", call.Method).Msg("contract call failed")
		}
		observability.Transactions().WithLabelValues(call.Method, status).Inc()
		return Result{}, err
	}

	observability.Transactions().WithLabelValues(call.Method, result.Receipt.Status).Inc()
	span.SetAttributes(
		attribute.Int64("chain.block", int64(result.Receipt.BlockNumber)),
		attribute.String("chain.tx_hash", result.Receipt.TxHash),
	)

	committed := context.WithoutCancel(ctx)
	for _, hook := range hooks {
		hook(committed)
	}
	if e.dispatcher != nil && len(pending) > 0 {
		e.dispatcher.Dispatch(committed, pending)
	}

	if revert != nil {
		span.SetAttributes(attribute.String("chain.revert", revert.Code))
		return result, revert
	}
	return result, nil
}

// Receipt loads the receipt of an executed transaction.
func (e *Executor) Receipt(ctx context.Context, hash common.Hash) (models.Receipt, error) {
	return e.chain.GetReceipt(ctx, hash.Hex())
}

// Nonce returns the next nonce expected from address.
func (e *Executor) Nonce(ctx context.Context, address common.Address) (uint64, error) {
	account, err := e.chain.GetAccount(ctx, address.Hex())
	if err != nil {
		return 0, err
	}
	return account.Nonce, nil
}

func checkUnknown(ctx context.Context, chainRepo repository.ChainRepository, hash common.Hash) error {
	_, err := chainRepo.GetReceipt(ctx, hash.Hex())
	if err == nil {
		return fmt.Errorf("%w: %s", ErrKnownTransaction, hash.Hex())
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return fmt.Errorf("failed to look up receipt: %w", err)
}

func checkNonce(expected, got uint64) error {
	switch {
	case got < expected:
		return fmt.Errorf("%w: expected %d, got %d", ErrNonceTooLow, expected, got)
	case got > expected:
		return fmt.Errorf("%w: expected %d, got %d", ErrNonceTooHigh, expected, got)
	default:
		return nil
	}
}

func internalHash(call Call, block uint64, timestamp time.Time) common.Hash {
	var scratch [16]byte
	binary.BigEndian.PutUint64(scratch[:8], block)
	binary.BigEndian.PutUint64(scratch[8:], uint64(timestamp.UnixNano()))
	return crypto.Keccak256Hash(call.From.Bytes(), []byte(call.Method), scratch[:])
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
