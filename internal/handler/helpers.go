package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kramik-ledger-api/internal/chain"
	"github.com/noah-isme/kramik-ledger-api/internal/middleware"
	"github.com/noah-isme/kramik-ledger-api/internal/service"
	"github.com/noah-isme/kramik-ledger-api/internal/utils"
)

var (
	errBadAddress = errors.New("invalid address")
	errBadHash    = errors.New("invalid hash")
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseAddressParam(c *fiber.Ctx, key string) (common.Address, error) {
	value := strings.TrimSpace(c.Params(key))
	if !common.IsHexAddress(value) {
		return common.Address{}, errBadAddress
	}
	address := common.HexToAddress(value)
	if address == (common.Address{}) {
		return common.Address{}, errBadAddress
	}
	return address, nil
}

func parseHashParam(c *fiber.Ctx, key string) (common.Hash, error) {
	value := strings.TrimPrefix(strings.TrimSpace(c.Params(key)), "0x")
	if len(value) != 2*common.HashLength {
		return common.Hash{}, errBadHash
	}
	for _, r := range value {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return common.Hash{}, errBadHash
		}
	}
	return common.HexToHash(value), nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// statusForError maps domain and chain errors onto HTTP statuses. Zero means unmapped.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, service.ErrAlreadyRegistered),
		errors.Is(err, service.ErrDuplicateSubmission),
		errors.Is(err, service.ErrDuplicateCompletion),
		errors.Is(err, chain.ErrNonceTooLow),
		errors.Is(err, chain.ErrNonceTooHigh),
		errors.Is(err, chain.ErrKnownTransaction):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrTransactionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrContractInactive):
		return fiber.StatusLocked
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidAddress),
		errors.Is(err, service.ErrStudentNotRegistered),
		errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, service.ErrWrongChain),
		errors.Is(err, service.ErrUnknownMethod),
		errors.Is(err, errBadAddress),
		errors.Is(err, errBadHash),
		isValidationError(err):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrChallengeExpired):
		return fiber.StatusUnauthorized
	case errors.Is(err, service.ErrNotDeployed),
		errors.Is(err, service.ErrAuthUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return 0
}

// respondError writes the mapped status for err, logging and hiding anything unmapped.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, fallback string) error {
	return respondErrorWithDetails(c, logger, err, fallback, nil)
}

func respondErrorWithDetails(c *fiber.Ctx, logger zerolog.Logger, err error, fallback string, details interface{}) error {
	if status := statusForError(err); status != 0 {
		return utils.Fail(c, status, err.Error(), details)
	}
	requestLogger(logger, c).Error().Err(err).Msg(fallback)
	return utils.SendError(c, fiber.StatusInternalServerError, fallback)
}
