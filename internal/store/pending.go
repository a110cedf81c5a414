package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-checkout/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNoPendingPayment = errors.New("no pending payment")

// PendingPaymentStore keeps at most one handle per redirect provider.
type PendingPaymentStore interface {
	Save(ctx context.Context, handle *model.PendingPaymentHandle) error
	Get(ctx context.Context, provider model.PaymentMethod) (*model.PendingPaymentHandle, error)
	List(ctx context.Context) ([]*model.PendingPaymentHandle, error)
	Delete(ctx context.Context, provider model.PaymentMethod) error
}

type pendingPaymentStoreImpl struct {
	db *gorm.DB
}

func NewPendingPaymentStore(db *gorm.DB) PendingPaymentStore {
	return &pendingPaymentStoreImpl{
		db: db,
	}
}

func (s *pendingPaymentStoreImpl) Save(ctx context.Context, handle *model.PendingPaymentHandle) error {
	if !handle.Provider.IsRedirect() {
		return fmt.Errorf("pending payment for non-redirect method %q", handle.Provider)
	}
	if handle.CreatedAt.IsZero() {
		handle.CreatedAt = time.Now()
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"order_id":     handle.OrderID,
			"redirect_url": handle.RedirectURL,
			"created_at":   handle.CreatedAt,
		}),
	}).Create(handle).Error
}

func (s *pendingPaymentStoreImpl) Get(ctx context.Context, provider model.PaymentMethod) (*model.PendingPaymentHandle, error) {
	var handle model.PendingPaymentHandle
	err := s.db.WithContext(ctx).
		Where("provider = ?", provider).
		First(&handle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoPendingPayment
	}
	if err != nil {
		return nil, fmt.Errorf("read pending payment: %w", err)
	}
	return &handle, nil
}

func (s *pendingPaymentStoreImpl) List(ctx context.Context) ([]*model.PendingPaymentHandle, error) {
	var handles []*model.PendingPaymentHandle
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&handles).Error
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	return handles, nil
}

func (s *pendingPaymentStoreImpl) Delete(ctx context.Context, provider model.PaymentMethod) error {
	return s.db.WithContext(ctx).
		Where("provider = ?", provider).
		Delete(&model.PendingPaymentHandle{}).Error
}
