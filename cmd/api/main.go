package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kramik-ledger-api/internal/chain"
	"github.com/noah-isme/kramik-ledger-api/internal/config"
	"github.com/noah-isme/kramik-ledger-api/internal/database"
	"github.com/noah-isme/kramik-ledger-api/internal/events"
	"github.com/noah-isme/kramik-ledger-api/internal/handler"
	"github.com/noah-isme/kramik-ledger-api/internal/middleware"
	"github.com/noah-isme/kramik-ledger-api/internal/repository"
	"github.com/noah-isme/kramik-ledger-api/internal/router"
	"github.com/noah-isme/kramik-ledger-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("node", cfg.NodeID).Logger()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL, cfg.NodeID)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	sinks := []events.Publisher{events.NewRedisPublisher(redisClient, cfg.EventChannel)}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
		sinks = append(sinks, events.NewNATSPublisher(natsConn, cfg.NATSSubject))
	}

	if cfg.AMQPURL != "" {
		amqpConn, err := database.ConnectAMQP(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("failed to connect to amqp: %v", err)
		}
		defer amqpConn.Close()
		amqpPublisher, err := events.NewAMQPPublisher(amqpConn, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("failed to open amqp channel: %v", err)
		}
		defer amqpPublisher.Close()
		sinks = append(sinks, amqpPublisher)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	chainRepo := repository.NewChainRepository(db)
	eventRepo := repository.NewEventRepository(db)
	registryRepo := repository.NewRegistryRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	hub := events.NewHub()
	relay := events.NewRelay(eventRepo, hub, events.NewMultiPublisher(sinks...), cfg.NodeID, logger)
	executor := chain.NewExecutor(db, chainRepo, eventRepo, relay, logger)

	registryService := service.NewRegistryService(executor, registryRepo, chainRepo, validate, logger)
	ledgerService := service.NewLedgerService(executor, ledgerRepo, registryRepo, chainRepo, redisClient, service.LedgerOptions{
		RequireRegisteredStudent: cfg.RequireRegisteredStudent,
		CreditsCacheTTL:          cfg.CreditsCacheTTL,
	}, validate, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := registryService.Deploy(ctx, cfg.OwnerAddress); err != nil {
		log.Fatalf("failed to deploy registry: %v", err)
	}
	if err := ledgerService.Deploy(ctx, cfg.OwnerAddress); err != nil {
		log.Fatalf("failed to deploy ledger: %v", err)
	}

	transactionService, err := service.NewTransactionService(cfg.ChainID, executor, []map[string]chain.Handler{
		registryService.Handlers(),
		ledgerService.Handlers(),
	}, logger)
	if err != nil {
		log.Fatalf("failed to build transaction service: %v", err)
	}
	authService := service.NewAuthService(redisClient, registryService, ledgerService, service.AuthOptions{
		AppName:      cfg.AppName,
		JWTSecret:    cfg.JWTSecret,
		TokenTTL:     cfg.JWTTTL,
		ChallengeTTL: cfg.ChallengeTTL,
	}, logger)
	eventService := service.NewEventService(eventRepo, hub, validate)

	if err := relay.Start(ctx, cfg.RelaySchedule); err != nil {
		log.Fatalf("failed to start event relay: %v", err)
	}
	defer relay.Stop()
	events.NewBridge(hub, cfg.NodeID, redisClient, cfg.EventChannel, natsConn, cfg.NATSSubject, logger).Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		Chain:              executor,
		TransactionHandler: handler.NewTransactionHandler(transactionService, logger),
		RegistryHandler:    handler.NewRegistryHandler(registryService, logger),
		LedgerHandler:      handler.NewLedgerHandler(ledgerService, logger),
		AuthHandler:        handler.NewAuthHandler(authService, validate, logger),
		EventHandler:       handler.NewEventHandler(eventService, relay, logger),
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
		WriteLimiter:       middleware.RateLimit("ledger_writes", cfg.RateLimitMax, cfg.RateLimitWindow, redisClient),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("address", cfg.HTTPAddress()).Uint64("chain_id", cfg.ChainID).Msg("ledger api started")
	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
