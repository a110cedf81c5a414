package repository

import (
	"context"

	"storefront-checkout/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PageRepository interface {
	Seed(ctx context.Context) error
	FindBySlug(ctx context.Context, slug string) (*model.Page, error)
}

type pageRepoImpl struct {
	db *gorm.DB
}

func NewPageRepository(db *gorm.DB) PageRepository {
	return &pageRepoImpl{
		db: db,
	}
}

func (r *pageRepoImpl) Seed(ctx context.Context) error {
	pages := []model.Page{
		{
			Slug:  "terms-and-conditions",
			Title: "Terms and Conditions",
			Body:  "Orders are binding once accepted by the store. Prices include VAT where applicable. Goods can be returned within 14 days of delivery.",
		},
		{
			Slug:  "privacy-policy",
			Title: "Privacy Policy",
			Body:  "We store your shipping details to deliver your order and share them only with the carrier and the payment provider you choose.",
		},
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&pages).Error
}

func (r *pageRepoImpl) FindBySlug(ctx context.Context, slug string) (*model.Page, error) {
	var page model.Page
	err := r.db.WithContext(ctx).
		Where("slug = ?", slug).
		First(&page).Error

	if err != nil {
		return nil, err
	}

	return &page, nil
}
