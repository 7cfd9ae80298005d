package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kramik-ledger-api/internal/middleware"
)

const jwtSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newJWTApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", middleware.JWTProtected(jwtSecret), func(c *fiber.Ctx) error {
		return c.SendString(middleware.WalletAddress(c) + "|" + middleware.UserRole(c))
	})
	return app
}

func TestJWTProtectedSetsWalletAndRole(t *testing.T) {
	token := signToken(t, jwtSecret, jwt.MapClaims{
		"sub":  "0x00000000000000000000000000000000000000aa",
		"role": "Admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := newJWTApp().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(testWallet).Hex()+"|admin", string(body))
}

func TestJWTProtectedAcceptsQueryToken(t *testing.T) {
	token := signToken(t, jwtSecret, jwt.MapClaims{
		"sub":  testWallet,
		"role": "student",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me?access_token="+token, nil)
	resp, err := newJWTApp().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTProtectedRejectsInvalidTokens(t *testing.T) {
	cases := map[string]string{
		"wrong secret": signToken(t, "other", jwt.MapClaims{"sub": testWallet, "exp": time.Now().Add(time.Hour).Unix()}),
		"expired":      signToken(t, jwtSecret, jwt.MapClaims{"sub": testWallet, "exp": time.Now().Add(-time.Hour).Unix()}),
		"bad subject":  signToken(t, jwtSecret, jwt.MapClaims{"sub": "42", "exp": time.Now().Add(time.Hour).Unix()}),
		"zero subject": signToken(t, jwtSecret, jwt.MapClaims{"sub": "0x0000000000000000000000000000000000000000", "exp": time.Now().Add(time.Hour).Unix()}),
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := newJWTApp().Test(req, -1)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	resp, err := newJWTApp().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
