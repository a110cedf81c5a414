package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPendingPayment    OrderStatus = "pending_payment"
	OrderPendingAcceptance OrderStatus = "pending_acceptance"
	OrderAccepted          OrderStatus = "accepted"
	OrderCancelled         OrderStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentPayPal         PaymentMethod = "paypal"
	PaymentBraintree      PaymentMethod = "braintree"
)

// IsRedirect reports whether paying with m hands control to an external provider page.
func (m PaymentMethod) IsRedirect() bool {
	return m == PaymentPayPal || m == PaymentBraintree
}

func (m PaymentMethod) Valid() bool {
	return m == PaymentCashOnDelivery || m.IsRedirect()
}

// ProviderOutcome is what a redirect provider reports back for a payment attempt.
type ProviderOutcome string

const (
	OutcomeSuccess   ProviderOutcome = "success"
	OutcomeDeclined  ProviderOutcome = "declined"
	OutcomeCancelled ProviderOutcome = "cancelled"
)

func (o ProviderOutcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeDeclined || o == OutcomeCancelled
}

// Order is server owned. The checkout client only ever reads ID and Status back.
type Order struct {
	ID             string          `gorm:"primaryKey;size:64;not null"`
	Owner          string          `gorm:"size:128;index;not null"` // cart owner key at checkout time
	UserID         string          `gorm:"size:64;index"`
	Status         OrderStatus     `gorm:"size:32;index;not null"`
	PaymentMethod  PaymentMethod   `gorm:"size:32;not null"`
	Amount         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency       string          `gorm:"size:8;not null"`
	IdempotencyKey string          `gorm:"size:64;uniqueIndex"`
	ProviderRef    string          `gorm:"size:128;index"` // e.g. paypal order id
	RedirectURL    string
	ReturnURL      string
	ShipName       string
	ShipEmail      string
	ShipAddress    string
	ShipCity       string
	ShipRegion     string
	ShipPostalCode string
	ShipCountry    string `gorm:"size:2"`
	ShipPhone      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type OrderItem struct {
	ID        uint            `gorm:"primaryKey"`
	OrderID   string          `gorm:"size:64;index;not null"`
	ProductID string          `gorm:"size:64;index;not null"`
	VariantID string          `gorm:"size:64"`
	Name      string          `gorm:"not null"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency  string          `gorm:"size:8;not null"`

	CreatedAt time.Time
}
