package repository

import (
	"context"
	"time"

	"storefront-checkout/internal/model"

	"gorm.io/gorm"
)

type ProviderEventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, tx *gorm.DB, eventID, orderID string, outcome model.ProviderOutcome) error
}

type providerEventRepoImpl struct {
	db *gorm.DB
}

func NewProviderEventRepository(db *gorm.DB) ProviderEventRepository {
	return &providerEventRepoImpl{db: db}
}

func (r *providerEventRepoImpl) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ProviderEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error

	return count > 0, err
}

// MarkProcessed fails with a duplicate key error when the event was already recorded.
func (r *providerEventRepoImpl) MarkProcessed(ctx context.Context, tx *gorm.DB, eventID, orderID string, outcome model.ProviderOutcome) error {
	return tx.WithContext(ctx).Create(&model.ProviderEvent{
		EventID:     eventID,
		OrderID:     orderID,
		Outcome:     outcome,
		ProcessedAt: time.Now(),
	}).Error
}
