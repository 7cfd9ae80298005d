package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/kramik-ledger-api/internal/models"
)

// ChainRepository persists sequencer state: head, accounts, receipts and contract flags.
type ChainRepository interface {
	WithTx(tx *gorm.DB) ChainRepository
	LockHead(ctx context.Context) (models.ChainState, error)
	SaveHead(ctx context.Context, head *models.ChainState) error
	Head(ctx context.Context) (uint64, error)
	GetAccount(ctx context.Context, address string) (models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error
	GetReceipt(ctx context.Context, txHash string) (models.Receipt, error)
	CreateReceipt(ctx context.Context, receipt *models.Receipt) error
	GetContract(ctx context.Context, name string) (models.ContractState, error)
	CreateContract(ctx context.Context, contract *models.ContractState) error
	SetContractActive(ctx context.Context, name string, active bool) error
}

type chainRepository struct {
	db *gorm.DB
}

// NewChainRepository instantiates the repository.
func NewChainRepository(db *gorm.DB) ChainRepository {
	return &chainRepository{db: db}
}

func (r *chainRepository) WithTx(tx *gorm.DB) ChainRepository {
	return &chainRepository{db: tx}
}

// LockHead loads the head row with a row lock, creating it at block zero on first use.
func (r *chainRepository) LockHead(ctx context.Context) (models.ChainState, error) {
	head := models.ChainState{ID: models.ChainStateID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&head).Error; err != nil {
		return models.ChainState{}, err
	}

	var locked models.ChainState
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&locked, models.ChainStateID).Error; err != nil {
		return models.ChainState{}, err
	}
	return locked, nil
}

func (r *chainRepository) SaveHead(ctx context.Context, head *models.ChainState) error {
	return r.db.WithContext(ctx).Save(head).Error
}

func (r *chainRepository) Head(ctx context.Context) (uint64, error) {
	var head models.ChainState
	err := r.db.WithContext(ctx).First(&head, models.ChainStateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return head.BlockNumber, nil
}

// GetAccount returns a fresh account with nonce zero for unknown senders.
func (r *chainRepository) GetAccount(ctx context.Context, address string) (models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("address = ?", address).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Account{Address: address}, nil
	}
	if err != nil {
		return models.Account{}, err
	}
	return account, nil
}

func (r *chainRepository) SaveAccount(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(account).Error
}

func (r *chainRepository) GetReceipt(ctx context.Context, txHash string) (models.Receipt, error) {
	var receipt models.Receipt
	if err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&receipt).Error; err != nil {
		return models.Receipt{}, err
	}
	return receipt, nil
}

func (r *chainRepository) CreateReceipt(ctx context.Context, receipt *models.Receipt) error {
	return r.db.WithContext(ctx).Create(receipt).Error
}

func (r *chainRepository) GetContract(ctx context.Context, name string) (models.ContractState, error) {
	var contract models.ContractState
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&contract).Error; err != nil {
		return models.ContractState{}, err
	}
	return contract, nil
}

func (r *chainRepository) CreateContract(ctx context.Context, contract *models.ContractState) error {
	return r.db.WithContext(ctx).Create(contract).Error
}

func (r *chainRepository) SetContractActive(ctx context.Context, name string, active bool) error {
	return r.db.WithContext(ctx).Model(&models.ContractState{}).
		Where("name = ?", name).
		Update("active", active).Error
}
