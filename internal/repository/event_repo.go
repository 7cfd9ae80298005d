package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/kramik-ledger-api/internal/models"
)

// EventFilter narrows event log queries.
type EventFilter struct {
	Address *string
	Name    *string
	AfterID uint
	Limit   int
}

// EventRepository persists the append-only ledger event log.
type EventRepository interface {
	WithTx(tx *gorm.DB) EventRepository
	Append(ctx context.Context, events []models.LedgerEvent) error
	List(ctx context.Context, filter EventFilter) ([]models.LedgerEvent, error)
	ListUnpublished(ctx context.Context, limit int) ([]models.LedgerEvent, error)
	MarkPublished(ctx context.Context, ids []uint, at time.Time) error
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository instantiates the repository.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) WithTx(tx *gorm.DB) EventRepository {
	return &eventRepository{db: tx}
}

func (r *eventRepository) Append(ctx context.Context, events []models.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&events).Error
}

func (r *eventRepository) List(ctx context.Context, filter EventFilter) ([]models.LedgerEvent, error) {
	query := r.db.WithContext(ctx).Model(&models.LedgerEvent{})

	if filter.Address != nil {
		query = query.Where("address = ?", *filter.Address)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
	}
	if filter.AfterID > 0 {
		query = query.Where("id > ?", filter.AfterID)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var events []models.LedgerEvent
	if err := query.Order("id ASC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) ListUnpublished(ctx context.Context, limit int) ([]models.LedgerEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	var events []models.LedgerEvent
	if err := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) MarkPublished(ctx context.Context, ids []uint, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.LedgerEvent{}).
		Where("id IN ?", ids).
		Update("published_at", at).Error
}
