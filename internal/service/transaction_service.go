package service

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/kramik-ledger-api/internal/chain"
	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/internal/models"
	"github.com/noah-isme/kramik-ledger-api/pkg/ledgerabi"
)

//go:embed schemas/*.json
var paramSchemas embed.FS

var (
	// ErrInvalidSignature indicates the signature does not recover to the sender.
	ErrInvalidSignature = errors.New("invalid transaction signature")
	// ErrWrongChain indicates the transaction was signed for another chain.
	ErrWrongChain = errors.New("transaction chain id mismatch")
	// ErrUnknownMethod indicates the method is not exposed by any contract.
	ErrUnknownMethod = errors.New("unknown contract method")
	// ErrTransactionNotFound indicates no receipt exists for the hash.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// ChainReader exposes the chain bookkeeping reads.
type ChainReader interface {
	ContractExecutor
	Receipt(ctx context.Context, hash common.Hash) (models.Receipt, error)
	Nonce(ctx context.Context, address common.Address) (uint64, error)
}

// TransactionService verifies signed envelopes and executes them against the contracts.
type TransactionService interface {
	ChainID() uint64
	Submit(ctx context.Context, tx ledgerabi.Transaction) (dto.ReceiptResponse, error)
	GetReceipt(ctx context.Context, hash common.Hash) (dto.ReceiptResponse, error)
	GetNonce(ctx context.Context, address common.Address) (uint64, error)
}

type transactionService struct {
	chainID  uint64
	executor ChainReader
	handlers map[string]chain.Handler
	schemas  map[string]*jsonschema.Schema
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewTransactionService compiles the parameter schemas of every handler method.
func NewTransactionService(chainID uint64, executor ChainReader, contracts []map[string]chain.Handler, logger zerolog.Logger) (TransactionService, error) {
	handlers := make(map[string]chain.Handler)
	for _, contract := range contracts {
		for method, handler := range contract {
			if _, exists := handlers[method]; exists {
				return nil, fmt.Errorf("method %s registered twice", method)
			}
			handlers[method] = handler
		}
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	schemas := make(map[string]*jsonschema.Schema, len(handlers))
	for method := range handlers {
		name := "schemas/" + method + ".json"
		data, err := paramSchemas.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("missing params schema for %s: %w", method, err)
		}
		if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("invalid params schema for %s: %w", method, err)
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to compile params schema for %s: %w", method, err)
		}
		schemas[method] = schema
	}

	return &transactionService{
		chainID:  chainID,
		executor: executor,
		handlers: handlers,
		schemas:  schemas,
		logger:   logger.With().Str("component", "transaction_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/kramik-ledger-api/internal/service/transaction"),
	}, nil
}

func (s *transactionService) ChainID() uint64 {
	return s.chainID
}

// Submit executes a signed transaction. Reverted and already-known
// transactions return their receipt together with the error.
func (s *transactionService) Submit(ctx context.Context, tx ledgerabi.Transaction) (dto.ReceiptResponse, error) {
	ctx, span := s.tracer.Start(ctx, "transactions.submit", trace.WithAttributes(
		attribute.String("tx.method", tx.Method),
		attribute.String("tx.from", tx.From.Hex()),
		attribute.Int64("tx.nonce", int64(tx.Nonce)),
	))
	defer span.End()

	if tx.ChainID != s.chainID {
		return dto.ReceiptResponse{}, fmt.Errorf("%w: expected %d, got %d", ErrWrongChain, s.chainID, tx.ChainID)
	}

	handler, ok := s.handlers[tx.Method]
	if !ok {
		return dto.ReceiptResponse{}, fmt.Errorf("%w: %s", ErrUnknownMethod, tx.Method)
	}

	if err := s.validateParams(tx); err != nil {
		return dto.ReceiptResponse{}, err
	}

	if _, err := tx.Sender(); err != nil {
		return dto.ReceiptResponse{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	nonce := tx.Nonce
	hash := tx.Digest()
	span.SetAttributes(attribute.String("tx.hash", hash.Hex()))

	result, err := s.executor.Execute(ctx, chain.Call{
		From:   tx.From,
		Method: tx.Method,
		Nonce:  &nonce,
		Hash:   hash,
	}, func(execTx *chain.Tx) error {
		return handler(execTx, tx.Params)
	})
	if err != nil {
		if _, reverted := chain.IsRevert(err); reverted {
			s.logger.Info().Str("method", tx.Method).Str("tx_hash", hash.Hex()).Str("reason", err.Error()).Msg("transaction reverted")
			return dto.NewReceiptResponse(result.Receipt), err
		}
		if errors.Is(err, chain.ErrKnownTransaction) {
			receipt, lookupErr := s.executor.Receipt(ctx, hash)
			if lookupErr != nil {
				return dto.ReceiptResponse{}, err
			}
			return dto.NewReceiptResponse(receipt), err
		}
		if !errors.Is(err, chain.ErrNonceTooLow) && !errors.Is(err, chain.ErrNonceTooHigh) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "execution_failed")
		}
		return dto.ReceiptResponse{}, err
	}

	s.logger.Info().
		Str("method", tx.Method).
		Str("tx_hash", hash.Hex()).
		Uint64("block", result.Receipt.BlockNumber).
		Msg("transaction executed")

	return dto.NewReceiptResponse(result.Receipt), nil
}

func (s *transactionService) GetReceipt(ctx context.Context, hash common.Hash) (dto.ReceiptResponse, error) {
	receipt, err := s.executor.Receipt(ctx, hash)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.ReceiptResponse{}, ErrTransactionNotFound
	}
	if err != nil {
		return dto.ReceiptResponse{}, err
	}
	return dto.NewReceiptResponse(receipt), nil
}

func (s *transactionService) GetNonce(ctx context.Context, address common.Address) (uint64, error) {
	if address == (common.Address{}) {
		return 0, ErrInvalidAddress
	}
	return s.executor.Nonce(ctx, address)
}

func (s *transactionService) validateParams(tx ledgerabi.Transaction) error {
	params := tx.Params
	if len(params) == 0 {
		params = []byte("{}")
	}

	decoder := json.NewDecoder(bytes.NewReader(params))
	decoder.UseNumber()
	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return fmt.Errorf("%w: params are not valid JSON: %v", ErrInvalidInput, err)
	}
	if decoder.More() {
		return fmt.Errorf("%w: params carry trailing data", ErrInvalidInput)
	}
	if err := s.schemas[tx.Method].Validate(document); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
