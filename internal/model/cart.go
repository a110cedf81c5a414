package model

import (
	"github.com/shopspring/decimal"
)

// CartLine is one product (optionally one variant of it) in a cart.
type CartLine struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"product_id"`
	VariantID      string          `json:"variant_id,omitempty"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Currency       string          `json:"currency"`
	Quantity       int             `json:"quantity"`
	Stock          int             `json:"stock"`
	AllowBackorder bool            `json:"allow_backorder"`
	ImageURL       string          `json:"image_url,omitempty"`
}

// LineID derives the stable line id used by both the client cache and the backend.
func LineID(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + ":" + variantID
}

// ValidateQuantity checks q against the line's bounds: at least one, and at most the stock
// ceiling unless the product allows backorder.
func (l CartLine) ValidateQuantity(q int) error {
	if q < 1 {
		return &ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	if !l.AllowBackorder && q > l.Stock {
		return &ValidationError{Field: "quantity", Reason: "exceeds available stock"}
	}
	return nil
}

func (l CartLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartSnapshot is a point-in-time copy of a cart. Subtotal and ItemCount are derived from
// Lines by NewSnapshot and never stored.
type CartSnapshot struct {
	Lines     []CartLine      `json:"lines"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	ItemCount int             `json:"item_count"`
	Currency  string          `json:"currency"`
}

func NewSnapshot(lines []CartLine) CartSnapshot {
	s := CartSnapshot{
		Lines:    make([]CartLine, len(lines)),
		Subtotal: decimal.Zero,
	}
	copy(s.Lines, lines)
	for _, l := range lines {
		s.Subtotal = s.Subtotal.Add(l.Total())
		s.ItemCount += l.Quantity
		if s.Currency == "" {
			s.Currency = l.Currency
		}
	}
	return s
}

func (s CartSnapshot) Clone() CartSnapshot {
	return NewSnapshot(s.Lines)
}

func (s CartSnapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

func (s CartSnapshot) Line(id string) (CartLine, bool) {
	for _, l := range s.Lines {
		if l.ID == id {
			return l, true
		}
	}
	return CartLine{}, false
}
