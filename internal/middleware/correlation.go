package middleware

import (
	"context"
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// CorrelationHeader carries the request correlation identifier in both directions.
const CorrelationHeader = "X-Correlation-ID"

const maxCorrelationIDLength = 128

type correlationIDKey struct{}

// CorrelationID reuses a well-formed incoming X-Correlation-ID (or
// X-Request-ID) and otherwise generates one.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(CorrelationHeader))
		if id == "" {
			id = strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
		}
		if !validCorrelationID(id) {
			id = uuid.NewString()
		}

		c.Locals("correlation_id", id)
		c.Set(CorrelationHeader, id)
		c.SetUserContext(context.WithValue(c.UserContext(), correlationIDKey{}, id))

		return c.Next()
	}
}

// GetCorrelationID returns the correlation identifier bound to the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals("correlation_id").(string); ok {
		return id
	}
	if id, ok := c.UserContext().Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLength {
		return false
	}
	for _, r := range id {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
