package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/kramik-ledger-api/internal/models"
)

// Tx is the execution context of one contract call. Contract code must only
// touch the database through DB so a revert discards every write.
type Tx struct {
	ctx       context.Context
	db        *gorm.DB
	Caller    common.Address
	Method    string
	Block     uint64
	Timestamp time.Time
	Hash      common.Hash
	events    []models.LedgerEvent
	onCommit  []func(context.Context)
}

// Handler executes a contract method from its JSON encoded parameters.
type Handler func(tx *Tx, params json.RawMessage) error

// Context returns the request context.
func (t *Tx) Context() context.Context {
	return t.ctx
}

// DB returns the savepoint-scoped handle.
func (t *Tx) DB() *gorm.DB {
	return t.db
}

// Emit queues an event; it is persisted only if the call succeeds.
func (t *Tx) Emit(contract, name string, address common.Address, payload interface{}) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", name, err)
	}

	var indexed string
	if address != (common.Address{}) {
		indexed = address.Hex()
	}

	t.events = append(t.events, models.LedgerEvent{
		EventID:     uuid.NewString(),
		BlockNumber: t.Block,
		TxHash:      t.Hash.Hex(),
		LogIndex:    len(t.events),
		Contract:    contract,
		Name:        name,
		Address:     indexed,
		Payload:     datatypes.JSON(encoded),
		EmittedAt:   t.Timestamp,
	})
	return nil
}

// Events returns the events queued so far.
func (t *Tx) Events() []models.LedgerEvent {
	return t.events
}

// OnCommit registers fn to run after the block commits. Hooks of reverted
// calls never run.
func (t *Tx) OnCommit(fn func(ctx context.Context)) {
	t.onCommit = append(t.onCommit, fn)
}
