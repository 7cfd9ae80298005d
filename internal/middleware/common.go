package middleware

import (
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Config customises the middleware registration pipeline.
type Config struct {
	Logger *zerolog.Logger
	// AllowOrigins is a comma separated CORS origin list; empty allows all.
	AllowOrigins string
	// AccessLog enables fiber's plain-text access log next to the structured request log.
	AccessLog bool
}

// Register attaches the common middlewares used across the API.
func Register(app *fiber.App, cfg Config) {
	requestLogger := zerolog.New(io.Discard)
	if cfg.Logger != nil {
		requestLogger = *cfg.Logger
	}

	origins := strings.TrimSpace(cfg.AllowOrigins)
	if origins == "" {
		origins = "*"
	}

	app.Use(recover.New(recover.Config{EnableStackTrace: cfg.Logger != nil}))
	app.Use(CorrelationID())
	app.Use(Observability(requestLogger))
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${locals:correlation_id} ${status} ${method} ${path} ${latency}\n",
			Next: func(c *fiber.Ctx) bool {
				return c.Path() == "/metrics"
			},
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, " + CorrelationHeader,
		AllowMethods:  "GET,POST,OPTIONS",
		ExposeHeaders: CorrelationHeader,
	}))
}
