package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/kramik-ledger-api/internal/models"
)

// LedgerRepository persists academic records and credit accounts. Records
// have no update or delete path.
type LedgerRepository interface {
	WithTx(tx *gorm.DB) LedgerRepository
	QuizExists(ctx context.Context, student, quizHash string) (bool, error)
	CreateQuiz(ctx context.Context, record *models.QuizRecord) error
	ListQuizzes(ctx context.Context, student string) ([]models.QuizRecord, error)
	ScheduleExists(ctx context.Context, student, scheduleHash string) (bool, error)
	CreateSchedule(ctx context.Context, record *models.ScheduleCompletion) error
	ListSchedules(ctx context.Context, student string) ([]models.ScheduleCompletion, error)
	GetCredits(ctx context.Context, student string) (models.CreditAccount, error)
	SaveCredits(ctx context.Context, account *models.CreditAccount) error
	IsAuthorizedAdmin(ctx context.Context, address string) (bool, error)
	AddAuthorizedAdmin(ctx context.Context, admin *models.AuthorizedAdmin) error
	RemoveAuthorizedAdmin(ctx context.Context, address string) error
	CountAuthorizedAdmins(ctx context.Context) (int64, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository instantiates the repository.
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) WithTx(tx *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: tx}
}

func (r *ledgerRepository) QuizExists(ctx context.Context, student, quizHash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.QuizRecord{}).
		Where("student_address = ? AND quiz_hash = ?", student, quizHash).
		Count(&count).Error
	return count > 0, err
}

func (r *ledgerRepository) CreateQuiz(ctx context.Context, record *models.QuizRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *ledgerRepository) ListQuizzes(ctx context.Context, student string) ([]models.QuizRecord, error) {
	var records []models.QuizRecord
	if err := r.db.WithContext(ctx).
		Where("student_address = ?", student).
		Order("block_number ASC, id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *ledgerRepository) ScheduleExists(ctx context.Context, student, scheduleHash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ScheduleCompletion{}).
		Where("student_address = ? AND schedule_hash = ?", student, scheduleHash).
		Count(&count).Error
	return count > 0, err
}

func (r *ledgerRepository) CreateSchedule(ctx context.Context, record *models.ScheduleCompletion) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *ledgerRepository) ListSchedules(ctx context.Context, student string) ([]models.ScheduleCompletion, error) {
	var records []models.ScheduleCompletion
	if err := r.db.WithContext(ctx).
		Where("student_address = ?", student).
		Order("block_number ASC, id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// GetCredits returns a zero-valued account for students without records.
func (r *ledgerRepository) GetCredits(ctx context.Context, student string) (models.CreditAccount, error) {
	var account models.CreditAccount
	err := r.db.WithContext(ctx).Where("student_address = ?", student).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CreditAccount{StudentAddress: student}, nil
	}
	if err != nil {
		return models.CreditAccount{}, err
	}
	return account, nil
}

func (r *ledgerRepository) SaveCredits(ctx context.Context, account *models.CreditAccount) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(account).Error
}

func (r *ledgerRepository) IsAuthorizedAdmin(ctx context.Context, address string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.AuthorizedAdmin{}).
		Where("admin_address = ?", address).
		Count(&count).Error
	return count > 0, err
}

func (r *ledgerRepository) AddAuthorizedAdmin(ctx context.Context, admin *models.AuthorizedAdmin) error {
	return r.db.WithContext(ctx).Create(admin).Error
}

func (r *ledgerRepository) RemoveAuthorizedAdmin(ctx context.Context, address string) error {
	return r.db.WithContext(ctx).Where("admin_address = ?", address).Delete(&models.AuthorizedAdmin{}).Error
}

func (r *ledgerRepository) CountAuthorizedAdmins(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.AuthorizedAdmin{}).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
