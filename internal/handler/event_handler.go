package handler

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/internal/middleware"
	"github.com/noah-isme/kramik-ledger-api/internal/service"
	"github.com/noah-isme/kramik-ledger-api/internal/utils"
)

const streamPingInterval = 30 * time.Second

// OutboxFlusher republishes events the bus has not acknowledged yet.
type OutboxFlusher interface {
	RunOnce(ctx context.Context) (int, error)
}

// EventHandler serves the audit log and the live event stream.
type EventHandler struct {
	service service.EventService
	relay   OutboxFlusher
	logger  zerolog.Logger
}

// NewEventHandler constructs an event handler. relay may be nil.
func NewEventHandler(service service.EventService, relay OutboxFlusher, logger zerolog.Logger) *EventHandler {
	return &EventHandler{
		service: service,
		relay:   relay,
		logger:  logger.With().Str("component", "event_handler").Logger(),
	}
}

// Register binds event routes. protected authenticates the stream and operator routes.
func (h *EventHandler) Register(router fiber.Router, protected fiber.Handler) {
	router.Get("", h.list)

	router.Use("/ws", protected, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("stream_address", streamAddress(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.stream))

	if h.relay != nil {
		router.Post("/relay", protected, middleware.WithAuth(h.flush, middleware.AuthOptions{Role: middleware.AuthRoleAdmin}))
	}
}

func (h *EventHandler) list(c *fiber.Ctx) error {
	after, err := parseQueryInt(c, "after")
	if err != nil || after < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid after cursor")
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	page, err := h.service.List(c.UserContext(), dto.EventListRequest{
		Address: strings.TrimSpace(c.Query("address")),
		Name:    strings.TrimSpace(c.Query("name")),
		After:   uint(after),
		Limit:   limit,
	})
	if err != nil {
		if isValidationError(err) {
			return utils.Fail(c, fiber.StatusBadRequest, "invalid filter", err.Error())
		}
		return respondError(c, h.logger, err, "failed to list events")
	}

	return utils.OK(c, page.Items, "ledger events", fiber.Map{"next_id": page.NextID})
}

func (h *EventHandler) flush(c *fiber.Ctx) error {
	delivered, err := h.relay.RunOnce(c.UserContext())
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Int("delivered", delivered).Msg("outbox flush incomplete")
		return utils.Fail(c, fiber.StatusBadGateway, "event bus unavailable", fiber.Map{"delivered": delivered})
	}
	return utils.SendSuccess(c, "outbox flushed", fiber.Map{"delivered": delivered})
}

// streamAddress limits students to their own events; owners and admins may follow any address or all of them.
func streamAddress(c *fiber.Ctx) string {
	requested := strings.TrimSpace(c.Query("address"))
	switch middleware.UserRole(c) {
	case service.RoleOwner, service.RoleAdmin:
		if common.IsHexAddress(requested) {
			return common.HexToAddress(requested).Hex()
		}
		return ""
	default:
		return middleware.WalletAddress(c)
	}
}

func (h *EventHandler) stream(conn *websocket.Conn) {
	address, _ := conn.Locals("stream_address").(string)
	wallet, _ := conn.Locals("wallet_address").(string)

	messages, cancel := h.service.Subscribe(address)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger := h.logger.With().Str("wallet", wallet).Str("filter", address).Logger()
	logger.Info().Msg("event stream connected")
	defer logger.Info().Msg("event stream disconnected")

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			if err := conn.WriteJSON(message); err != nil {
				logger.Debug().Err(err).Msg("event stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				return
			}
		}
	}
}
