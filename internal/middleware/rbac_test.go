package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func roleApp(role interface{}, required string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(walletAddressKey, "0x00000000000000000000000000000000000000Aa")
		if role != nil {
			c.Locals(userRoleKey, role)
		}
		return c.Next()
	})
	app.Post("/relay", WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	}, AuthOptions{Role: required}))
	return app
}

func TestRoleRanking(t *testing.T) {
	cases := []struct {
		name     string
		role     interface{}
		required string
		status   int
	}{
		{name: "admin meets admin", role: "admin", required: "admin", status: fiber.StatusAccepted},
		{name: "owner outranks admin", role: "owner", required: "admin", status: fiber.StatusAccepted},
		{name: "role is case insensitive", role: " Owner ", required: "owner", status: fiber.StatusAccepted},
		{name: "highest claim of a list wins", role: []interface{}{"student", "admin"}, required: "admin", status: fiber.StatusAccepted},
		{name: "student below admin", role: "student", required: "admin", status: fiber.StatusForbidden},
		{name: "admin below owner", role: "admin", required: "owner", status: fiber.StatusForbidden},
		{name: "admin is not a student", role: "admin", required: "student", status: fiber.StatusForbidden},
		{name: "guest cannot act as student", role: "guest", required: "student", status: fiber.StatusForbidden},
		{name: "missing role", role: nil, required: "admin", status: fiber.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := roleApp(tc.role, tc.required).Test(httptest.NewRequest(http.MethodPost, "/relay", nil))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestWithAuthReportsRequiredRole(t *testing.T) {
	resp, err := roleApp("student", "admin").Test(httptest.NewRequest(http.MethodPost, "/relay", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Success bool `json:"success"`
		Details struct {
			Role     string `json:"role"`
			Required string `json:"required"`
		} `json:"details"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.False(t, body.Success)
	require.Equal(t, "student", body.Details.Role)
	require.Equal(t, "admin", body.Details.Required)
}
