package repository

import (
	"context"
	"time"

	"storefront-checkout/internal/model"

	"gorm.io/gorm"
)

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	CreateOrderItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error
	FindByID(ctx context.Context, orderID string) (*model.Order, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*model.Order, error)
	GetOrderItems(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.OrderItem, error)
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]*model.Order, int64, error)
	ListByOwner(ctx context.Context, owner string, page, pageSize int) ([]*model.Order, int64, error)
	UpdatePayment(ctx context.Context, orderID, providerRef, redirectURL, returnURL string) error
	MarkPendingAcceptance(ctx context.Context, tx *gorm.DB, orderID string) (bool, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Create(order).Error
}

func (r *orderRepoImpl) CreateOrderItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error {
	return tx.WithContext(ctx).Create(&items).Error
}

func (r *orderRepoImpl) FindByID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", orderID).
		First(&order).Error

	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) FindByIdempotencyKey(ctx context.Context, key string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&order).Error

	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) GetOrderItems(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.OrderItem, error) {
	var items []*model.OrderItem
	err := tx.WithContext(ctx).Where("order_id = ?", orderID).
		Find(&items).Error

	if err != nil {
		return nil, err
	}

	return items, nil
}

func (r *orderRepoImpl) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]*model.Order, int64, error) {
	return r.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}, page, pageSize)
}

func (r *orderRepoImpl) ListByOwner(ctx context.Context, owner string, page, pageSize int) ([]*model.Order, int64, error) {
	return r.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("owner = ?", owner)
	}, page, pageSize)
}

// list returns one page of orders, newest first, and the total count.
func (r *orderRepoImpl) list(ctx context.Context, scope func(*gorm.DB) *gorm.DB, page, pageSize int) ([]*model.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Order{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Scopes(scope).
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *orderRepoImpl) UpdatePayment(ctx context.Context, orderID, providerRef, redirectURL, returnURL string) error {
	return r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"provider_ref": providerRef,
			"redirect_url": redirectURL,
			"return_url":   returnURL,
			"updated_at":   time.Now(),
		}).Error
}

// MarkPendingAcceptance moves a paid order forward. It reports false when the order was no
// longer awaiting payment.
func (r *orderRepoImpl) MarkPendingAcceptance(ctx context.Context, tx *gorm.DB, orderID string) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.OrderPendingPayment).
		Updates(map[string]interface{}{
			"status":     model.OrderPendingAcceptance,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
