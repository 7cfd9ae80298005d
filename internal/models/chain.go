package models

import "time"

// ContractState holds the owner and the active flag of a deployed contract.
type ContractState struct {
	Name         string    `gorm:"primaryKey;size:32" json:"name"`
	OwnerAddress string    `gorm:"size:42;not null" json:"owner_address"`
	Active       bool      `gorm:"not null" json:"active"`
	DeployedAt   time.Time `json:"deployed_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ChainState is the singleton head of the sequencer.
type ChainState struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	BlockNumber uint64    `gorm:"not null" json:"block_number"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChainStateID is the primary key of the ChainState row.
const ChainStateID = 1

// Account tracks the next expected nonce of a transaction sender.
type Account struct {
	Address   string    `gorm:"primaryKey;size:42" json:"address"`
	Nonce     uint64    `gorm:"not null" json:"nonce"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Receipt is the outcome of an executed transaction.
type Receipt struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	TxHash       string    `gorm:"size:66;uniqueIndex;not null" json:"tx_hash"`
	From         string    `gorm:"column:from_address;size:42;not null;index" json:"from"`
	Nonce        *uint64   `json:"nonce"`
	Method       string    `gorm:"size:64;not null" json:"method"`
	BlockNumber  uint64    `gorm:"not null;index" json:"block_number"`
	Status       string    `gorm:"size:16;not null" json:"status"`
	RevertCode   string    `gorm:"size:64" json:"revert_code"`
	RevertReason string    `gorm:"size:255" json:"revert_reason"`
	CreatedAt    time.Time `json:"created_at"`
}
