package model

import "time"

// Client-side durable records. These live in the checkout client's own database, never in
// the storefront backend.

// CartCacheEntry holds the last known line set of one cart, JSON encoded.
type CartCacheEntry struct {
	CacheKey  string `gorm:"primaryKey;size:160"`
	Lines     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// ClientSession stores the generated anonymous cart session id.
type ClientSession struct {
	Name      string `gorm:"primaryKey;size:32"`
	SessionID string `gorm:"size:64;not null"`
	CreatedAt time.Time
}

// PendingPaymentHandle links a submitted order to an in-progress redirect provider
// interaction, so a reload during the redirect can resume reconciliation.
type PendingPaymentHandle struct {
	Provider    PaymentMethod `gorm:"primaryKey;size:32"`
	OrderID     string        `gorm:"size:64;not null"`
	RedirectURL string
	CreatedAt   time.Time
}
