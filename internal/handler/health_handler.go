package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/kramik-ledger-api/internal/config"
	"github.com/noah-isme/kramik-ledger-api/internal/utils"
)

// ChainHead reports the latest sealed block.
type ChainHead interface {
	Head(ctx context.Context) (uint64, error)
}

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	ChainID     uint64    `json:"chain_id"`
	BlockNumber uint64    `json:"block_number"`
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(cfg config.Config, head ChainHead) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			ChainID:     cfg.ChainID,
		}

		if head != nil {
			block, err := head.Head(c.UserContext())
			if err != nil {
				payload.Status = "degraded"
				return utils.Fail(c, fiber.StatusServiceUnavailable, "chain state unavailable", payload)
			}
			payload.BlockNumber = block
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
