package repository

import (
	"context"
	"time"

	"storefront-checkout/internal/model"

	"gorm.io/gorm"
)

type CartRepository interface {
	Get(ctx context.Context, owner string) ([]*model.CartItem, error)
	Replace(ctx context.Context, tx *gorm.DB, owner string, items []*model.CartItem) error
	Clear(ctx context.Context, tx *gorm.DB, owner string) error
}

type cartRepoImpl struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepoImpl{
		db: db,
	}
}

func (r *cartRepoImpl) Get(ctx context.Context, owner string) ([]*model.CartItem, error) {
	var items []*model.CartItem

	err := r.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("position ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	return items, nil
}

// Replace swaps the whole line set of a cart; positions follow slice order.
func (r *cartRepoImpl) Replace(ctx context.Context, tx *gorm.DB, owner string, items []*model.CartItem) error {
	tx = tx.WithContext(ctx)
	if err := tx.Where("owner = ?", owner).Delete(&model.CartItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	now := time.Now()
	for i, item := range items {
		item.Owner = owner
		item.Position = i
		item.UpdatedAt = now
	}
	return tx.Create(&items).Error
}

func (r *cartRepoImpl) Clear(ctx context.Context, tx *gorm.DB, owner string) error {
	return tx.WithContext(ctx).
		Where("owner = ?", owner).
		Delete(&model.CartItem{}).Error
}
