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

// RegistryHandler serves identity registry reads. Writes go through signed transactions.
type RegistryHandler struct {
	service service.RegistryService
	logger  zerolog.Logger
}

// NewRegistryHandler constructs a registry handler.
func NewRegistryHandler(service service.RegistryService, logger zerolog.Logger) *RegistryHandler {
	return &RegistryHandler{
		service: service,
		logger:  logger.With().Str("component", "registry_handler").Logger(),
	}
}

// Register wires registry routes.
func (h *RegistryHandler) Register(router fiber.Router) {
	router.Get("/stats", h.stats)
	router.Get("/students/:address", h.student)
	router.Get("/students/:address/verify", h.verifyStudent)
	router.Get("/admins/:address", h.admin)
	router.Get("/admins/:address/verify", h.verifyAdmin)
}

func (h *RegistryHandler) stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, err, "failed to load registry stats")
	}
	return utils.SendSuccess(c, "registry stats", stats)
}

func (h *RegistryHandler) student(c *fiber.Ctx) error {
	address, err := parseAddressParam(c, "address")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid address")
	}

	record, err := h.service.GetStudentRecord(c.UserContext(), address)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load student record")
	}
	return utils.SendSuccess(c, "student record", record)
}

func (h *RegistryHandler) admin(c *fiber.Ctx) error {
	address, err := parseAddressParam(c, "address")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid address")
	}

	record, err := h.service.GetAdminRecord(c.UserContext(), address)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load admin record")
	}
	return utils.SendSuccess(c, "admin record", record)
}

func (h *RegistryHandler) verifyStudent(c *fiber.Ctx) error {
	return h.verify(c, h.service.VerifyStudent)
}

func (h *RegistryHandler) verifyAdmin(c *fiber.Ctx) error {
	return h.verify(c, h.service.VerifyAdmin)
}

func (h *RegistryHandler) verify(c *fiber.Ctx, check func(ctx context.Context, address common.Address) (bool, error)) error {
	address, err := parseAddressParam(c, "address")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid address")
	}

	verified, err := check(c.UserContext(), address)
	if err != nil {
		return respondError(c, h.logger, err, "failed to verify address")
	}
	return utils.SendSuccess(c, "verification result", dto.VerificationResponse{Address: address.Hex(), Verified: verified})
}
