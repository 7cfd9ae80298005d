package dto

import (
	"time"

	"github.com/noah-isme/kramik-ledger-api/internal/models"
)

// StudentRecordResponse serializes a registry student record. Exists is false
// for addresses that were never registered.
type StudentRecordResponse struct {
	Exists            bool       `json:"exists"`
	WalletAddress     string     `json:"wallet_address"`
	StudentHash       string     `json:"student_hash,omitempty"`
	IsActive          bool       `json:"is_active"`
	RegisteredAtBlock uint64     `json:"registered_at_block"`
	RegisteredAt      *time.Time `json:"registered_at,omitempty"`
}

// NewStudentRecordResponse maps a stored record.
func NewStudentRecordResponse(record models.StudentRecord) StudentRecordResponse {
	registeredAt := record.RegisteredAt
	return StudentRecordResponse{
		Exists:            true,
		WalletAddress:     record.WalletAddress,
		StudentHash:       record.StudentHash,
		IsActive:          record.IsActive,
		RegisteredAtBlock: record.RegisteredAtBlock,
		RegisteredAt:      &registeredAt,
	}
}

// AdminRecordResponse serializes a registry admin record.
type AdminRecordResponse struct {
	Exists            bool       `json:"exists"`
	WalletAddress     string     `json:"wallet_address"`
	Role              string     `json:"role,omitempty"`
	IsActive          bool       `json:"is_active"`
	RegisteredAtBlock uint64     `json:"registered_at_block"`
	RegisteredAt      *time.Time `json:"registered_at,omitempty"`
}

// NewAdminRecordResponse maps a stored record.
func NewAdminRecordResponse(record models.AdminRecord) AdminRecordResponse {
	registeredAt := record.RegisteredAt
	return AdminRecordResponse{
		Exists:            true,
		WalletAddress:     record.WalletAddress,
		Role:              record.Role,
		IsActive:          record.IsActive,
		RegisteredAtBlock: record.RegisteredAtBlock,
		RegisteredAt:      &registeredAt,
	}
}

// VerificationResponse is the answer of every verify endpoint.
type VerificationResponse struct {
	Address  string `json:"address"`
	Hash     string `json:"hash,omitempty"`
	Verified bool   `json:"verified"`
}

// RegistryStatsResponse summarises the identity registry.
type RegistryStatsResponse struct {
	Owner          string `json:"owner"`
	ContractActive bool   `json:"contract_active"`
	StudentCount   int64  `json:"student_count"`
	AdminCount     int64  `json:"admin_count"`
}
