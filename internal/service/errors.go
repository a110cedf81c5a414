package service

import (
	"fmt"
	"net/http"
)

// Error is a request the service refuses on business grounds. Detail is user facing.
type Error struct {
	Status int
	Code   string
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func newError(status int, code, detail string) *Error {
	return &Error{Status: status, Code: code, Detail: detail}
}

var (
	ErrConsentRequired          = newError(http.StatusBadRequest, "consent_required", "Terms and conditions and privacy policy must be accepted")
	ErrPaymentMethodUnavailable = newError(http.StatusBadRequest, "payment_method_unavailable", "Payment method is not available")
	ErrEmptyCart                = newError(http.StatusBadRequest, "empty_cart", "Cart is empty")
	ErrInsufficientStock        = newError(http.StatusBadRequest, "insufficient_stock", "Insufficient stock")
	ErrOrderNotFound            = newError(http.StatusNotFound, "order_not_found", "Order not found")
	ErrOrderNotPayable          = newError(http.StatusConflict, "order_not_payable", "Order is not awaiting payment")
	ErrIdempotencyConflict      = newError(http.StatusConflict, "idempotency_conflict", "Idempotency key was used for another checkout")
	ErrProviderMismatch         = newError(http.StatusBadRequest, "provider_mismatch", "Order is not paid with this provider")
	ErrInvalidOutcome           = newError(http.StatusBadRequest, "invalid_outcome", "Unknown provider outcome")
	ErrPageNotFound             = newError(http.StatusNotFound, "page_not_found", "Page not found")
	ErrProviderUnavailable      = newError(http.StatusBadGateway, "provider_unavailable", "Payment provider is not reachable")
)

var ErrMissingIdentity = newError(http.StatusBadRequest, "missing_session", "X-Cart-Session header or bearer token required")
