package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/kramik-ledger-api/internal/models"
	"github.com/noah-isme/kramik-ledger-api/internal/repository"
	"github.com/noah-isme/kramik-ledger-api/pkg/ledgerabi"
)

var errBoom = errors.New("boom")

type capturingDispatcher struct {
	mu     sync.Mutex
	events []models.LedgerEvent
}

func (d *capturingDispatcher) Dispatch(_ context.Context, events []models.LedgerEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, events...)
}

type executorFixture struct {
	db         *gorm.DB
	executor   *Executor
	events     repository.EventRepository
	dispatcher *capturingDispatcher
}

func setupExecutor(t *testing.T) executorFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	events := repository.NewEventRepository(db)
	dispatcher := &capturingDispatcher{}
	executor := NewExecutor(db, repository.NewChainRepository(db), events, dispatcher, zerolog.Nop())
	return executorFixture{db: db, executor: executor, events: events, dispatcher: dispatcher}
}

func nonce(n uint64) *uint64 {
	return &n
}

func createContract(name string) Func {
	return func(tx *Tx) error {
		if err := tx.DB().Create(&models.ContractState{Name: name, OwnerAddress: tx.Caller.Hex(), Active: true}).Error; err != nil {
			return err
		}
		return tx.Emit(ledgerabi.ContractRegistry, ledgerabi.EventContractStateToggled, tx.Caller, ledgerabi.ContractStateToggled{Contract: name, Active: true})
	}
}

func writeThenRevert(name string) Func {
	return func(tx *Tx) error {
		if err := createContract(name)(tx); err != nil {
			return err
		}
		return Revert(ledgerabi.RevertUnauthorized, errBoom)
	}
}

func TestExecuteAdvancesBlocksAndStoresEvents(t *testing.T) {
	fx := setupExecutor(t)
	ctx := context.Background()
	from := common.HexToAddress("0x1")

	first, err := fx.executor.Execute(ctx, Call{From: from, Method: "deploy"}, createContract("a"))
	require.NoError(t, err)
	second, err := fx.executor.Execute(ctx, Call{From: from, Method: "deploy"}, createContract("b"))
	require.NoError(t, err)

	require.Equal(t, uint64(1), first.Receipt.BlockNumber)
	require.Equal(t, uint64(2), second.Receipt.BlockNumber)
	require.NotEqual(t, first.Receipt.TxHash, second.Receipt.TxHash)
	require.Nil(t, first.Receipt.Nonce)

	head, err := fx.executor.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), head)

	stored, err := fx.events.List(ctx, repository.EventFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, first.Receipt.TxHash, stored[0].TxHash)
	require.Equal(t, from.Hex(), stored[0].Address)
	require.Len(t, fx.dispatcher.events, 2)
}

func TestUnsignedRevertPersistsNothing(t *testing.T) {
	fx := setupExecutor(t)
	ctx := context.Background()

	_, err := fx.executor.Execute(ctx, Call{From: common.HexToAddress("0x1"), Method: "deploy"}, writeThenRevert("a"))
	require.ErrorIs(t, err, errBoom)
	revert, ok := IsRevert(err)
	require.True(t, ok)
	require.Equal(t, ledgerabi.RevertUnauthorized, revert.Code)

	var contracts, receipts, events int64
	require.NoError(t, fx.db.Model(&models.ContractState{}).Count(&contracts).Error)
	require.NoError(t, fx.db.Model(&models.Receipt{}).Count(&receipts).Error)
	require.NoError(t, fx.db.Model(&models.LedgerEvent{}).Count(&events).Error)
	require.Zero(t, contracts)
	require.Zero(t, receipts)
	require.Zero(t, events)
	require.Empty(t, fx.dispatcher.events)
}

func TestSignedRevertConsumesNonceAndKeepsReceipt(t *testing.T) {
	fx := setupExecutor(t)
	ctx := context.Background()
	from := common.HexToAddress("0xBBB")
	hash := crypto.Keccak256Hash([]byte("tx-0"))

	result, err := fx.executor.Execute(ctx, Call{From: from, Method: "registerStudent", Nonce: nonce(0), Hash: hash}, writeThenRevert("a"))
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, ledgerabi.StatusReverted, result.Receipt.Status)
	require.Equal(t, ledgerabi.RevertUnauthorized, result.Receipt.RevertCode)
	require.Empty(t, result.Events)

	next, err := fx.executor.Nonce(ctx, from)
	require.NoError(t, err)
	require.Equal(t, uint64(1), next)

	receipt, err := fx.executor.Receipt(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, ledgerabi.StatusReverted, receipt.Status)

	var contracts, events int64
	require.NoError(t, fx.db.Model(&models.ContractState{}).Count(&contracts).Error)
	require.NoError(t, fx.db.Model(&models.LedgerEvent{}).Count(&events).Error)
	require.Zero(t, contracts)
	require.Zero(t, events)
}

func TestSignedCallsEnforceNonceAndHash(t *testing.T) {
	fx := setupExecutor(t)
	ctx := context.Background()
	from := common.HexToAddress("0xAAA")
	hash := crypto.Keccak256Hash([]byte("tx-0"))

	_, err := fx.executor.Execute(ctx, Call{From: from, Method: "m", Nonce: nonce(1), Hash: hash}, createContract("a"))
	require.ErrorIs(t, err, ErrNonceTooHigh)

	_, err = fx.executor.Execute(ctx, Call{From: from, Method: "m", Nonce: nonce(0), Hash: hash}, createContract("a"))
	require.NoError(t, err)

	_, err = fx.executor.Execute(ctx, Call{From: from, Method: "m", Nonce: nonce(1), Hash: hash}, createContract("b"))
	require.ErrorIs(t, err, ErrKnownTransaction)

	_, err = fx.executor.Execute(ctx, Call{From: from, Method: "m", Nonce: nonce(0), Hash: crypto.Keccak256Hash([]byte("tx-1"))}, createContract("b"))
	require.ErrorIs(t, err, ErrNonceTooLow)

	head, err := fx.executor.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), head)
}

func TestInfrastructureErrorsRollBack(t *testing.T) {
	fx := setupExecutor(t)
	ctx := context.Background()
	from := common.HexToAddress("0xAAA")

	_, err := fx.executor.Execute(ctx, Call{From: from, Method: "m", Nonce: nonce(0), Hash: common.HexToHash("0x01")}, func(tx *Tx) error {
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	_, isRevert := IsRevert(err)
	require.False(t, isRevert)

	next, err := fx.executor.Nonce(ctx, from)
	require.NoError(t, err)
	require.Zero(t, next)
}

func TestConcurrentCallsGetDistinctBlocks(t *testing.T) {
	fx := setupExecutor(t)
	ctx := context.Background()

	const workers = 12
	blocks := make(chan uint64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := fx.executor.Execute(ctx, Call{From: common.HexToAddress("0x1"), Method: "deploy"}, createContract(fmt.Sprintf("c%d", i)))
			require.NoError(t, err)
			blocks <- result.Receipt.BlockNumber
		}(i)
	}
	wg.Wait()
	close(blocks)

	seen := make(map[uint64]bool)
	for block := range blocks {
		require.False(t, seen[block])
		seen[block] = true
	}
	require.Len(t, seen, workers)
	for block := uint64(1); block <= workers; block++ {
		require.True(t, seen[block])
	}
}

func TestCommitHooksSkipReverts(t *testing.T) {
	fx := setupExecutor(t)
	ctx := context.Background()
	from := common.HexToAddress("0xAAA")

	var ran []string
	_, err := fx.executor.Execute(ctx, Call{From: from, Method: "m", Nonce: nonce(0), Hash: common.HexToHash("0x01")}, func(tx *Tx) error {
		tx.OnCommit(func(context.Context) { ran = append(ran, "reverted") })
		return Revert(ledgerabi.RevertNotFound, errBoom)
	})
	require.ErrorIs(t, err, errBoom)

	_, err = fx.executor.Execute(ctx, Call{From: from, Method: "m", Nonce: nonce(1), Hash: common.HexToHash("0x02")}, func(tx *Tx) error {
		tx.OnCommit(func(context.Context) { ran = append(ran, "committed") })
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"committed"}, ran)
}
