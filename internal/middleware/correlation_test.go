package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func correlationApp() *fiber.App {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(GetCorrelationID(c))
	})
	return app
}

func TestCorrelationIDReusesIncomingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "quiz-sync-42")

	resp, err := correlationApp().Test(req)
	require.NoError(t, err)
	require.Equal(t, "quiz-sync-42", resp.Header.Get(CorrelationHeader))
}

func TestCorrelationIDFallsBackToRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-7")

	resp, err := correlationApp().Test(req)
	require.NoError(t, err)
	require.Equal(t, "req-7", resp.Header.Get(CorrelationHeader))
}

func TestCorrelationIDReplacesMalformedValues(t *testing.T) {
	for _, incoming := range []string{"", "has space", strings.Repeat("x", maxCorrelationIDLength+1)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if incoming != "" {
			req.Header.Set(CorrelationHeader, incoming)
		}

		resp, err := correlationApp().Test(req)
		require.NoError(t, err)
		got := resp.Header.Get(CorrelationHeader)
		require.NotEmpty(t, got)
		require.NotEqual(t, incoming, got)
		require.Len(t, got, 36)
	}
}
