package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/internal/events"
	"github.com/noah-isme/kramik-ledger-api/internal/handler"
)

type mockEventService struct {
	lastRequest dto.EventListRequest
	page        dto.EventListResponse
}

func (m *mockEventService) List(_ context.Context, request dto.EventListRequest) (dto.EventListResponse, error) {
	m.lastRequest = request
	return m.page, nil
}

func (m *mockEventService) Subscribe(string) (<-chan events.Message, func()) {
	ch := make(chan events.Message)
	return ch, func() { close(ch) }
}

type mockFlusher struct {
	delivered int
	err       error
	calls     int
}

func (m *mockFlusher) RunOnce(context.Context) (int, error) {
	m.calls++
	return m.delivered, m.err
}

func identity(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("wallet_address", walletA)
		c.Locals("user_role", role)
		return c.Next()
	}
}

func newEventApp(svc *mockEventService, relay handler.OutboxFlusher, role string) *fiber.App {
	app := fiber.New()
	handler.NewEventHandler(svc, relay, zerolog.New(io.Discard)).Register(app.Group("/api/v1/events"), identity(role))
	return app
}

func TestEventHandler_ListPassesFilters(t *testing.T) {
	svc := &mockEventService{page: dto.EventListResponse{
		Items:  []dto.EventResponse{{ID: 4, Name: "QuizRecorded"}},
		NextID: 4,
	}}
	app := newEventApp(svc, nil, "guest")

	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/events?address="+walletA+"&name=QuizRecorded&after=3&limit=10", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, uint(3), svc.lastRequest.After)
	require.Equal(t, 10, svc.lastRequest.Limit)
	require.Equal(t, "QuizRecorded", svc.lastRequest.Name)
	require.JSONEq(t, `{"next_id":4}`, string(body.Meta))

	var items []dto.EventResponse
	require.NoError(t, json.Unmarshal(body.Data, &items))
	require.Len(t, items, 1)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/events?after=abc", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEventHandler_StreamRequiresUpgrade(t *testing.T) {
	app := newEventApp(&mockEventService{}, nil, "student")

	req, err := http.NewRequest(http.MethodGet, "/api/v1/events/ws", nil)
	require.NoError(t, err)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestEventHandler_RelayRequiresOperatorRole(t *testing.T) {
	flusher := &mockFlusher{delivered: 2}

	resp, _ := doJSON(t, newEventApp(&mockEventService{}, flusher, "student"), http.MethodPost, "/api/v1/events/relay", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Zero(t, flusher.calls)

	resp, body := doJSON(t, newEventApp(&mockEventService{}, flusher, "admin"), http.MethodPost, "/api/v1/events/relay", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"delivered":2}`, string(body.Data))

	flusher.err = errors.New("nats: no servers")
	resp, _ = doJSON(t, newEventApp(&mockEventService{}, flusher, "owner"), http.MethodPost, "/api/v1/events/relay", nil)
	require.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}
