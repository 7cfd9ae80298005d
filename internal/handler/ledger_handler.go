package handler

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/internal/service"
	"github.com/noah-isme/kramik-ledger-api/internal/utils"
)

// LedgerHandler serves academic ledger reads.
type LedgerHandler struct {
	service service.LedgerService
	logger  zerolog.Logger
}

// NewLedgerHandler constructs a ledger handler.
func NewLedgerHandler(service service.LedgerService, logger zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{
		service: service,
		logger:  logger.With().Str("component", "ledger_handler").Logger(),
	}
}

// Register wires ledger routes.
func (h *LedgerHandler) Register(router fiber.Router) {
	router.Get("/stats", h.stats)
	router.Get("/admins/:address/authorized", h.authorized)

	students := router.Group("/students/:address")
	students.Get("/quizzes", h.quizzes)
	students.Get("/quizzes/count", h.quizCount)
	students.Get("/quizzes/:hash/verify", h.verifyQuiz)
	students.Get("/schedules", h.schedules)
	students.Get("/schedules/count", h.scheduleCount)
	students.Get("/schedules/:hash/verify", h.verifySchedule)
	students.Get("/credits", h.credits)
}

func (h *LedgerHandler) stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, err, "failed to load ledger stats")
	}
	return utils.SendSuccess(c, "ledger stats", stats)
}

func (h *LedgerHandler) authorized(c *fiber.Ctx) error {
	address, err := parseAddressParam(c, "address")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid address")
	}

	authorized, err := h.service.IsAuthorizedAdmin(c.UserContext(), address)
	if err != nil {
		return respondError(c, h.logger, err, "failed to check admin authorization")
	}
	return utils.SendSuccess(c, "admin authorization", dto.VerificationResponse{Address: address.Hex(), Verified: authorized})
}

func (h *LedgerHandler) quizzes(c *fiber.Ctx) error {
	address, err := parseAddressParam(c, "address")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid address")
	}

	records, err := h.service.GetStudentQuizRecords(c.UserContext(), address)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load quiz records")
	}
	return utils.OK(c, records, "quiz records", fiber.Map{"count": len(records)})
}

func (h *LedgerHandler) schedules(c *fiber.Ctx) error {
	address, err := parseAddressParam(c, "address")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid address")
	}

	records, err := h.service.GetStudentScheduleCompletions(c.UserContext(), address)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load schedule completions")
	}
	return utils.OK(c, records, "schedule completions", fiber.Map{"count": len(records)})
}

func (h *LedgerHandler) quizCount(c *fiber.Ctx) error {
	return h.count(c, h.service.GetQuizCount)
}

func (h *LedgerHandler) scheduleCount(c *fiber.Ctx) error {
	return h.count(c, h.service.GetScheduleCompletionCount)
}

func (h *LedgerHandler) count(c *fiber.Ctx, load func(ctx context.Context, student common.Address) (uint64, error)) error {
	address, err := parseAddressParam(c, "address")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid address")
	}

	count, err := load(c.UserContext(), address)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load count")
	}
	return utils.SendSuccess(c, "record count", dto.CountResponse{Address: address.Hex(), Count: count})
}

func (h *LedgerHandler) verifyQuiz(c *fiber.Ctx) error {
	return h.verify(c, h.service.VerifyQuizSubmission)
}

func (h *LedgerHandler) verifySchedule(c *fiber.Ctx) error {
	return h.verify(c, h.service.VerifyScheduleCompletion)
}

func (h *LedgerHandler) verify(c *fiber.Ctx, check func(ctx context.Context, student common.Address, hash common.Hash) (bool, error)) error {
	address, err := parseAddressParam(c, "address")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid address")
	}
	hash, err := parseHashParam(c, "hash")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid hash")
	}

	verified, err := check(c.UserContext(), address, hash)
	if err != nil {
		return respondError(c, h.logger, err, "failed to verify record")
	}
	return utils.SendSuccess(c, "verification result", dto.VerificationResponse{
		Address:  address.Hex(),
		Hash:     hash.Hex(),
		Verified: verified,
	})
}

func (h *LedgerHandler) credits(c *fiber.Ctx) error {
	address, err := parseAddressParam(c, "address")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid address")
	}

	credits, err := h.service.GetStudentCredits(c.UserContext(), address)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load credits")
	}
	return utils.SendSuccess(c, "student credits", credits)
}
