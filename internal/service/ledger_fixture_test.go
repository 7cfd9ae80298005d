package service

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/kramik-ledger-api/internal/chain"
	"github.com/noah-isme/kramik-ledger-api/internal/models"
	"github.com/noah-isme/kramik-ledger-api/internal/repository"
)

type ledgerFixture struct {
	db       *gorm.DB
	executor *chain.Executor
	registry RegistryService
	ledger   LedgerService
	events   repository.EventRepository
	cache    *redis.Client
	mini     *miniredis.Miniredis
	owner    common.Address
}

func newLedgerFixture(t *testing.T, owner common.Address, options LedgerOptions) ledgerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)
	cache := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	chainRepo := repository.NewChainRepository(db)
	eventRepo := repository.NewEventRepository(db)
	registryRepo := repository.NewRegistryRepository(db)
	executor := chain.NewExecutor(db, chainRepo, eventRepo, nil, zerolog.Nop())
	validate := validator.New()

	registry := NewRegistryService(executor, registryRepo, chainRepo, validate, zerolog.Nop())
	ledger := NewLedgerService(executor, repository.NewLedgerRepository(db), registryRepo, chainRepo, cache, options, validate, zerolog.Nop())

	ctx := context.Background()
	require.NoError(t, registry.Deploy(ctx, owner))
	require.NoError(t, ledger.Deploy(ctx, owner))

	return ledgerFixture{
		db:       db,
		executor: executor,
		registry: registry,
		ledger:   ledger,
		events:   eventRepo,
		cache:    cache,
		mini:     mini,
		owner:    owner,
	}
}

func (f ledgerFixture) countEvents(t *testing.T, name string) int {
	t.Helper()
	stored, err := f.events.List(context.Background(), repository.EventFilter{Name: &name, Limit: 500})
	require.NoError(t, err)
	return len(stored)
}

func hashOf(label string) common.Hash {
	return common.BytesToHash([]byte(label))
}
