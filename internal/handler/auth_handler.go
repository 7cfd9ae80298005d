package handler

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/internal/middleware"
	"github.com/noah-isme/kramik-ledger-api/internal/service"
	"github.com/noah-isme/kramik-ledger-api/internal/utils"
)

// AuthHandler implements wallet sign-in.
type AuthHandler struct {
	service   service.AuthService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAuthHandler constructs an auth handler.
func NewAuthHandler(service service.AuthService, validate *validator.Validate, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register wires auth routes. protected guards the session introspection route.
func (h *AuthHandler) Register(router fiber.Router, protected fiber.Handler) {
	router.Post("/challenge", h.challenge)
	router.Post("/verify", h.verify)
	if protected != nil {
		router.Get("/me", protected, h.me)
	}
}

func (h *AuthHandler) challenge(c *fiber.Ctx) error {
	var payload dto.ChallengeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", err.Error())
	}

	challenge, err := h.service.Challenge(c.UserContext(), common.HexToAddress(payload.Address))
	if err != nil {
		return respondError(c, h.logger, err, "failed to issue challenge")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "challenge issued", challenge)
}

func (h *AuthHandler) verify(c *fiber.Ctx) error {
	var payload dto.VerifyRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", err.Error())
	}

	session, err := h.service.Verify(c.UserContext(), common.HexToAddress(payload.Address), common.FromHex(payload.Signature))
	if err != nil {
		if status := statusForError(err); status == fiber.StatusBadRequest {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}
		return respondError(c, h.logger, err, "failed to verify signature")
	}

	requestLogger(h.logger, c).Info().Str("address", session.Address).Str("role", session.Role).Msg("session issued")
	return utils.SendSuccess(c, "signed in", session)
}

func (h *AuthHandler) me(c *fiber.Ctx) error {
	address := middleware.WalletAddress(c)
	role, err := h.service.Role(c.UserContext(), common.HexToAddress(address))
	if err != nil {
		return respondError(c, h.logger, err, "failed to resolve role")
	}
	return utils.SendSuccess(c, "current session", fiber.Map{"address": address, "role": role})
}
