package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kramik-ledger-api/internal/observability"
)

// Observability records request metrics and one structured log line per API
// request. Websocket upgrades are logged but kept out of the latency histogram.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		if !strings.HasPrefix(c.Path(), "/api/") {
			return c.Next()
		}

		upgrade := websocket.IsWebSocketUpgrade(c)
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()
		if err != nil {
			// The error handler has not written the response yet.
			status = fiber.StatusInternalServerError
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			}
		}
		statusLabel := strconv.Itoa(status)

		observability.APIRequests().WithLabelValues(method, route, statusLabel).Inc()
		if !upgrade {
			observability.APILatency().WithLabelValues(method, route).Observe(duration.Seconds())
		}
		if status >= fiber.StatusBadRequest {
			observability.APIErrors().WithLabelValues(method, route, statusLabel).Inc()
		}

		event := logger.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = logger.Error().Err(err)
		case status >= fiber.StatusBadRequest:
			event = logger.Warn()
		}
		event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("route", route).
			Str("method", method).
			Int("status", status).
			Dur("latency", duration).
			Str("wallet", WalletAddress(c)).
			Str("role", UserRole(c)).
			Bool("websocket", upgrade).
			Msg("request completed")

		return err
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if c.Route() != nil && c.Route().Path != "" {
		return c.Route().Path
	}
	return c.Path()
}
