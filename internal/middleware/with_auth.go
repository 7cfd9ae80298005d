package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/kramik-ledger-api/internal/utils"
)

// Auth role constants used by WithAuth helper.
const (
	AuthRoleAny     = "any"
	AuthRoleOwner   = "owner"
	AuthRoleAdmin   = "admin"
	AuthRoleStudent = "student"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role        string
	RequireUser bool
}

// WithAuth wraps a handler with wallet authentication/authorization guards.
// The owner satisfies the admin role.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}

	requireUser := opts.RequireUser
	if !requireUser && role != AuthRoleAny {
		requireUser = true
	}

	return func(c *fiber.Ctx) error {
		wallet := WalletAddress(c)
		if requireUser && wallet == "" {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		if role == AuthRoleAny {
			return handler(c)
		}

		if current := UserRole(c); !roleSatisfies(current, role) {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", fiber.Map{
				"role":     current,
				"required": role,
			})
		}

		return handler(c)
	}
}
