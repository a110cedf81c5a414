package repository

import (
	"context"
	"errors"

	"storefront-checkout/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInsufficientStock = errors.New("insufficient stock")

type ProductRepository interface {
	Seed(ctx context.Context) error
	FindByID(ctx context.Context, productID string) (*model.Product, error)
	FindMany(ctx context.Context, productIDs []string) ([]*model.Product, error)
	DecrementStock(ctx context.Context, tx *gorm.DB, productID string, quantity int) error
}

type productRepoImpl struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepoImpl{
		db: db,
	}
}

func (r *productRepoImpl) Seed(ctx context.Context) error {
	products := []model.Product{
		{ID: "mug-classic", Name: "Classic Mug", Price: decimal.RequireFromString("12.50"), Currency: "USD", Stock: 25},
		{ID: "tee-logo", Name: "Logo T-Shirt", Price: decimal.RequireFromString("19.90"), Currency: "USD", Stock: 10},
		{ID: "poster-limited", Name: "Limited Poster", Price: decimal.RequireFromString("35.00"), Currency: "USD", Stock: 1},
		{ID: "print-on-demand", Name: "Print on Demand", Price: decimal.RequireFromString("8.00"), Currency: "USD", Stock: 0, AllowBackorder: true},
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&products).Error
}

func (r *productRepoImpl) FindByID(ctx context.Context, productID string) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).
		Where("id = ?", productID).
		First(&product).Error

	if err != nil {
		return nil, err
	}

	return &product, nil
}

func (r *productRepoImpl) FindMany(ctx context.Context, productIDs []string) ([]*model.Product, error) {
	var products []*model.Product
	if len(productIDs) == 0 {
		return products, nil
	}

	err := r.db.WithContext(ctx).
		Where("id IN ?", productIDs).
		Find(&products).
		Error

	if err != nil {
		return nil, err
	}

	return products, nil
}

// DecrementStock takes quantity units out of stock. Backorder products are not tracked;
// for the rest the update only applies while enough stock is left.
func (r *productRepoImpl) DecrementStock(ctx context.Context, tx *gorm.DB, productID string, quantity int) error {
	result := tx.WithContext(ctx).Model(&model.Product{}).
		Where("id = ? AND allow_backorder = ? AND stock >= ?", productID, false, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var product model.Product
	if err := tx.WithContext(ctx).Where("id = ?", productID).First(&product).Error; err != nil {
		return err
	}
	if product.AllowBackorder {
		return nil
	}
	return ErrInsufficientStock
}
