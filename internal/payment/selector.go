// Package payment chooses the payment method for an order among what the storefront
// currently advertises.
package payment

import (
	"errors"
	"fmt"
	"sync"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/model"
)

var (
	ErrMethodUnavailable = errors.New("payment method unavailable")
	ErrNoMethodSelected  = errors.New("no payment method selected")
)

// Selector never creates an order; it only records a choice and stamps it on a payload.
type Selector struct {
	mu         sync.RWMutex
	advertised map[model.PaymentMethod]bool
	selected   model.PaymentMethod
}

func NewSelector(advertised []model.PaymentMethod) *Selector {
	s := &Selector{}
	s.Refresh(advertised)
	return s
}

// Refresh replaces the advertised set. Cash on delivery is always available. The current
// selection is kept even if it disappeared, so Prepare can fail closed on it.
func (s *Selector) Refresh(advertised []model.PaymentMethod) {
	set := map[model.PaymentMethod]bool{
		model.PaymentCashOnDelivery: true,
	}
	for _, m := range advertised {
		if m.Valid() {
			set[m] = true
		}
	}

	s.mu.Lock()
	s.advertised = set
	s.mu.Unlock()
}

// Available lists usable methods in a stable order.
func (s *Selector) Available() []model.PaymentMethod {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PaymentMethod, 0, len(s.advertised))
	for _, m := range []model.PaymentMethod{model.PaymentCashOnDelivery, model.PaymentPayPal, model.PaymentBraintree} {
		if s.advertised[m] {
			out = append(out, m)
		}
	}
	return out
}

func (s *Selector) IsAvailable(m model.PaymentMethod) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.advertised[m]
}

func (s *Selector) Select(m model.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.advertised[m] {
		return fmt.Errorf("%s: %w", m, ErrMethodUnavailable)
	}
	s.selected = m
	return nil
}

func (s *Selector) Selected() model.PaymentMethod {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Prepare stamps the selected method on req. It fails closed when the selection is no longer
// advertised; there is no fallback to another method.
func (s *Selector) Prepare(req dto.CheckoutRequest) (dto.CheckoutRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selected == "" {
		return req, ErrNoMethodSelected
	}
	if !s.advertised[s.selected] {
		return req, fmt.Errorf("%s: %w", s.selected, ErrMethodUnavailable)
	}

	req.PaymentMethod = s.selected
	return req, nil
}
