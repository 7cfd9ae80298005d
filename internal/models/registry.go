package models

import "time"

// StudentRecord is the identity registry entry of a student wallet.
// Records are created once and never deleted; only IsActive changes.
type StudentRecord struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	WalletAddress     string    `gorm:"size:42;uniqueIndex;not null" json:"wallet_address"`
	StudentHash       string    `gorm:"size:66;not null" json:"student_hash"`
	IsActive          bool      `gorm:"not null" json:"is_active"`
	RegisteredAtBlock uint64    `gorm:"not null" json:"registered_at_block"`
	RegisteredAt      time.Time `gorm:"not null" json:"registered_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AdminRecord is the identity registry entry of an administrator wallet.
type AdminRecord struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	WalletAddress     string    `gorm:"size:42;uniqueIndex;not null" json:"wallet_address"`
	Role              string    `gorm:"size:64;not null" json:"role"`
	IsActive          bool      `gorm:"not null" json:"is_active"`
	RegisteredAtBlock uint64    `gorm:"not null" json:"registered_at_block"`
	RegisteredAt      time.Time `gorm:"not null" json:"registered_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
