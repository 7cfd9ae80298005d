package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/kramik-ledger-api/internal/models"
)

// RegistryRepository persists identity registry records.
type RegistryRepository interface {
	WithTx(tx *gorm.DB) RegistryRepository
	GetStudent(ctx context.Context, address string) (models.StudentRecord, error)
	CreateStudent(ctx context.Context, record *models.StudentRecord) error
	SetStudentActive(ctx context.Context, address string, active bool) error
	CountStudents(ctx context.Context) (int64, error)
	GetAdmin(ctx context.Context, address string) (models.AdminRecord, error)
	CreateAdmin(ctx context.Context, record *models.AdminRecord) error
	SetAdminActive(ctx context.Context, address string, active bool) error
	CountAdmins(ctx context.Context) (int64, error)
}

type registryRepository struct {
	db *gorm.DB
}

// NewRegistryRepository instantiates the repository.
func NewRegistryRepository(db *gorm.DB) RegistryRepository {
	return &registryRepository{db: db}
}

func (r *registryRepository) WithTx(tx *gorm.DB) RegistryRepository {
	return &registryRepository{db: tx}
}

func (r *registryRepository) GetStudent(ctx context.Context, address string) (models.StudentRecord, error) {
	var record models.StudentRecord
	if err := r.db.WithContext(ctx).Where("wallet_address = ?", address).First(&record).Error; err != nil {
		return models.StudentRecord{}, err
	}
	return record, nil
}

func (r *registryRepository) CreateStudent(ctx context.Context, record *models.StudentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *registryRepository) SetStudentActive(ctx context.Context, address string, active bool) error {
	return r.db.WithContext(ctx).Model(&models.StudentRecord{}).
		Where("wallet_address = ?", address).
		Update("is_active", active).Error
}

func (r *registryRepository) CountStudents(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.StudentRecord{}).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *registryRepository) GetAdmin(ctx context.Context, address string) (models.AdminRecord, error) {
	var record models.AdminRecord
	if err := r.db.WithContext(ctx).Where("wallet_address = ?", address).First(&record).Error; err != nil {
		return models.AdminRecord{}, err
	}
	return record, nil
}

func (r *registryRepository) CreateAdmin(ctx context.Context, record *models.AdminRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *registryRepository) SetAdminActive(ctx context.Context, address string, active bool) error {
	return r.db.WithContext(ctx).Model(&models.AdminRecord{}).
		Where("wallet_address = ?", address).
		Update("is_active", active).Error
}

func (r *registryRepository) CountAdmins(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.AdminRecord{}).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
