package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID             string          `gorm:"primaryKey;size:64;not null"` // product sku
	Name           string          `gorm:"not null"`
	Price          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency       string          `gorm:"size:8;not null"`
	Stock          int             `gorm:"not null"`
	AllowBackorder bool            `gorm:"not null;default:false"`
	ImageURL       string
}

// CartItem is one stored line of a server-side cart. Owner is "user:<id>" or "session:<sid>".
type CartItem struct {
	Owner     string `gorm:"primaryKey;size:128"`
	ProductID string `gorm:"primaryKey;size:64"`
	VariantID string `gorm:"primaryKey;size:64"`
	Position  int    `gorm:"not null"`
	Quantity  int    `gorm:"not null"`
	UpdatedAt time.Time
}

// Page is a legal document served to the consent viewer.
type Page struct {
	Slug      string `gorm:"primaryKey;size:64"`
	Title     string `gorm:"not null"`
	Body      string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// ProviderEvent records an applied provider outcome so a replayed callback is a no-op.
type ProviderEvent struct {
	EventID     string          `gorm:"primaryKey;size:128;not null"`
	OrderID     string          `gorm:"size:64;index"`
	Outcome     ProviderOutcome `gorm:"size:32"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}
