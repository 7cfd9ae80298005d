package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kramik-ledger-api/internal/utils"
)

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Meta    map[string]interface{} `json:"meta"`
	Details map[string]interface{} `json:"details"`
}

func serve(t *testing.T, handler fiber.Handler) (int, envelope) {
	t.Helper()
	app := fiber.New()
	app.Get("/", handler)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestSendSuccessWithStatusCreated(t *testing.T) {
	status, body := serve(t, func(c *fiber.Ctx) error {
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "transaction executed", map[string]string{"status": "success"})
	})

	require.Equal(t, fiber.StatusCreated, status)
	require.True(t, body.Success)
	require.Equal(t, "transaction executed", body.Message)
	require.JSONEq(t, `{"status":"success"}`, string(body.Data))
	require.Nil(t, body.Details)
}

func TestOKCarriesListMeta(t *testing.T) {
	status, body := serve(t, func(c *fiber.Ctx) error {
		return utils.OK(c, []string{"QuizRecorded"}, "", fiber.Map{"next_id": 12})
	})

	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "success", body.Message)
	require.JSONEq(t, `["QuizRecorded"]`, string(body.Data))
	require.Equal(t, float64(12), body.Meta["next_id"])
}

func TestFailCarriesRevertedReceipt(t *testing.T) {
	status, body := serve(t, func(c *fiber.Ctx) error {
		return utils.Fail(c, fiber.StatusConflict, "quiz submission already recorded", fiber.Map{
			"status":      "reverted",
			"revert_code": "DuplicateSubmission",
		})
	})

	require.Equal(t, fiber.StatusConflict, status)
	require.False(t, body.Success)
	require.Equal(t, "reverted", body.Details["status"])
	require.Equal(t, "DuplicateSubmission", body.Details["revert_code"])
	require.Empty(t, body.Data)
}

func TestSendErrorDefaultsMessage(t *testing.T) {
	status, body := serve(t, func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusTooManyRequests, "")
	})

	require.Equal(t, fiber.StatusTooManyRequests, status)
	require.False(t, body.Success)
	require.Equal(t, "error", body.Message)
	require.Nil(t, body.Details)
}
