package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kramik-ledger-api/internal/chain"
	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/internal/service"
	"github.com/noah-isme/kramik-ledger-api/internal/utils"
	"github.com/noah-isme/kramik-ledger-api/pkg/ledgerabi"
)

// TransactionHandler accepts signed contract calls and serves receipts.
type TransactionHandler struct {
	service service.TransactionService
	logger  zerolog.Logger
}

// NewTransactionHandler constructs a transaction handler.
func NewTransactionHandler(service service.TransactionService, logger zerolog.Logger) *TransactionHandler {
	return &TransactionHandler{
		service: service,
		logger:  logger.With().Str("component", "transaction_handler").Logger(),
	}
}

// Register wires transaction routes. submitGuard runs before submission, e.g. a rate limiter.
func (h *TransactionHandler) Register(router fiber.Router, submitGuard ...fiber.Handler) {
	submit := append(append([]fiber.Handler{}, submitGuard...), h.submit)
	router.Post("/transactions", submit...)
	router.Get("/transactions/:hash", h.receipt)
	router.Get("/accounts/:address/nonce", h.nonce)
}

func (h *TransactionHandler) submit(c *fiber.Ctx) error {
	var tx ledgerabi.Transaction
	if err := c.BodyParser(&tx); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid transaction payload")
	}

	receipt, err := h.service.Submit(c.UserContext(), tx)
	if err != nil {
		var revertErr *chain.RevertError
		switch {
		case errors.As(err, &revertErr), errors.Is(err, chain.ErrKnownTransaction):
			if receipt.TxHash != "" {
				return respondErrorWithDetails(c, h.logger, err, "failed to execute transaction", receipt)
			}
		}
		return respondError(c, h.logger, err, "failed to execute transaction")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "transaction executed", receipt)
}

func (h *TransactionHandler) receipt(c *fiber.Ctx) error {
	hash, err := parseHashParam(c, "hash")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid transaction hash")
	}

	receipt, err := h.service.GetReceipt(c.UserContext(), hash)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load receipt")
	}

	return utils.SendSuccess(c, "transaction receipt", receipt)
}

func (h *TransactionHandler) nonce(c *fiber.Ctx) error {
	address, err := parseAddressParam(c, "address")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid address")
	}

	nonce, err := h.service.GetNonce(c.UserContext(), address)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load nonce")
	}

	return utils.SendSuccess(c, "account nonce", dto.NonceResponse{Address: address.Hex(), Nonce: nonce})
}
