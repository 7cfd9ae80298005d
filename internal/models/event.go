package models

import (
	"time"

	"gorm.io/datatypes"
)

// LedgerEvent is an append-only audit log entry emitted by a contract write.
type LedgerEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	EventID     string         `gorm:"size:36;uniqueIndex;not null" json:"event_id"`
	BlockNumber uint64         `gorm:"not null;index" json:"block_number"`
	TxHash      string         `gorm:"size:66;not null;index" json:"tx_hash"`
	LogIndex    int            `gorm:"not null" json:"log_index"`
	Contract    string         `gorm:"size:32;not null" json:"contract"`
	Name        string         `gorm:"size:64;not null;index" json:"name"`
	Address     string         `gorm:"size:42;index" json:"address"`
	Payload     datatypes.JSON `json:"payload"`
	EmittedAt   time.Time      `gorm:"not null" json:"emitted_at"`
	PublishedAt *time.Time     `gorm:"index" json:"published_at"`
}

// All lists every model for auto-migration.
func All() []interface{} {
	return []interface{}{
		&StudentRecord{},
		&AdminRecord{},
		&QuizRecord{},
		&ScheduleCompletion{},
		&CreditAccount{},
		&AuthorizedAdmin{},
		&ContractState{},
		&ChainState{},
		&Account{},
		&Receipt{},
		&LedgerEvent{},
	}
}
