package middleware

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/kramik-ledger-api/internal/utils"
)

const (
	walletAddressKey = "wallet_address"
	userRoleKey      = "user_role"
)

// JWTProtected validates wallet session tokens. Browsers cannot set headers on
// websocket upgrades, so the token may also arrive as the access_token query parameter.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		address, ok := addressFromClaims(claims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token subject")
		}
		c.Locals(walletAddressKey, address.Hex())
		if role := extractUserRoleFromClaims(claims); role != "" {
			c.Locals(userRoleKey, role)
		}

		return c.Next()
	}
}

// WalletAddress returns the authenticated wallet, or "" for anonymous requests.
func WalletAddress(c *fiber.Ctx) string {
	if value, ok := c.Locals(walletAddressKey).(string); ok {
		return value
	}
	return ""
}

// UserRole returns the role claim of the authenticated wallet.
func UserRole(c *fiber.Ctx) string {
	return normalizeRoleValue(c.Locals(userRoleKey))
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	authorization := c.Get("Authorization")
	if authorization == "" {
		if query := strings.TrimSpace(c.Query("access_token")); query != "" {
			return query, true
		}
		return "", false
	}

	const bearer = "Bearer "
	if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
		return "", true
	}
	return strings.TrimSpace(authorization[len(bearer):]), true
}

func addressFromClaims(claims jwt.MapClaims) (common.Address, bool) {
	subject, ok := claims["sub"].(string)
	if !ok || !common.IsHexAddress(subject) {
		return common.Address{}, false
	}
	address := common.HexToAddress(subject)
	if address == (common.Address{}) {
		return common.Address{}, false
	}
	return address, true
}

func extractUserRoleFromClaims(claims jwt.MapClaims) string {
	candidates := []string{"role", "roles"}
	for _, key := range candidates {
		if value, ok := claims[key]; ok {
			if role := normalizeRoleValue(value); role != "" {
				return role
			}
		}
	}
	return ""
}
