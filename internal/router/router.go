package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/kramik-ledger-api/internal/config"
	"github.com/noah-isme/kramik-ledger-api/internal/handler"
	"github.com/noah-isme/kramik-ledger-api/internal/middleware"
	"github.com/noah-isme/kramik-ledger-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	Chain              handler.ChainHead
	TransactionHandler *handler.TransactionHandler
	RegistryHandler    *handler.RegistryHandler
	LedgerHandler      *handler.LedgerHandler
	AuthHandler        *handler.AuthHandler
	EventHandler       *handler.EventHandler
	JWTMiddleware      fiber.Handler
	WriteLimiter       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Chain))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	if deps.TransactionHandler != nil {
		var guards []fiber.Handler
		if deps.WriteLimiter != nil {
			guards = append(guards, deps.WriteLimiter)
		}
		deps.TransactionHandler.Register(api, guards...)
	}

	if deps.RegistryHandler != nil {
		deps.RegistryHandler.Register(api.Group("/registry"))
	}

	if deps.LedgerHandler != nil {
		deps.LedgerHandler.Register(api.Group("/ledger"))
	}

	if deps.AuthHandler != nil {
		auth := api.Group("/auth")
		if deps.WriteLimiter != nil {
			auth.Use(deps.WriteLimiter)
		}
		deps.AuthHandler.Register(auth, jwtMiddleware)
	}

	if deps.EventHandler != nil {
		deps.EventHandler.Register(api.Group("/events"), jwtMiddleware)
	}
}
