package dto

import (
	"time"

	"storefront-checkout/internal/model"

	"github.com/shopspring/decimal"
)

// ---- cart ----

type CartItem struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"product_id"`
	VariantID      string          `json:"variant_id,omitempty"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Currency       string          `json:"currency"`
	Quantity       int             `json:"quantity"`
	MaxQuantity    int             `json:"max_quantity"`
	AllowBackorder bool            `json:"allow_backorder"`
	ImageURL       string          `json:"image_url,omitempty"`
}

type CartTotals struct {
	Currency  string          `json:"currency"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	ItemCount int             `json:"item_count"`
}

type CartResponse struct {
	Items  []CartItem `json:"items"`
	Totals CartTotals `json:"totals"`
}

type SyncItem struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type CartSyncRequest struct {
	Items []SyncItem `json:"items" validate:"dive"`
}

// ---- checkout ----

type Consents struct {
	Terms   bool `json:"terms"`
	Privacy bool `json:"privacy"`
}

type CheckoutRequest struct {
	Shipping       model.ShippingAddress `json:"shipping"`
	PaymentMethod  model.PaymentMethod   `json:"payment_method" validate:"required"`
	Consents       Consents              `json:"consents"`
	IdempotencyKey string                `json:"idempotency_key,omitempty"`
	ReturnURL      string                `json:"return_url,omitempty"`
}

type CheckoutResponse struct {
	OrderID       string              `json:"order_id"`
	Status        model.OrderStatus   `json:"status"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	RedirectURL   string              `json:"redirect_url,omitempty"`
}

type RetryPaymentRequest struct {
	ReturnURL string `json:"return_url,omitempty"`
}

type PaymentMethodsResponse struct {
	Methods []model.PaymentMethod `json:"methods"`
}

// ---- orders ----

type OrderResponse struct {
	ID            string              `json:"id"`
	Status        model.OrderStatus   `json:"status"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	Total         decimal.Decimal     `json:"total"`
	Currency      string              `json:"currency"`
	CreatedAt     time.Time           `json:"created_at"`
}

type OrderListResponse struct {
	Items    []OrderResponse `json:"items"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Total    int64           `json:"total"`
}

// ---- content ----

type PageResponse struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ---- mock provider ----

type ProviderOutcomeRequest struct {
	Nonce string `json:"nonce,omitempty"`
}

type ProviderOutcomeResponse struct {
	OrderID     string                `json:"order_id"`
	Outcome     model.ProviderOutcome `json:"outcome"`
	Status      model.OrderStatus     `json:"status"`
	RedirectURL string                `json:"redirect_url"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}
