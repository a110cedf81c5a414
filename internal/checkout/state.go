package checkout

import (
	"storefront-checkout/internal/model"
)

// State is the orchestrator's current step. The concrete types below are the only
// implementations.
type State interface {
	Name() string
	isState()
}

// ShippingForm collects the address. Errors holds the last validation failure, if any.
type ShippingForm struct {
	Errors model.ValidationErrors
}

// ConsentRequired means address and payment method are set but not both documents are
// accepted.
type ConsentRequired struct{}

type ReadyToSubmit struct{}

// Submitting means an order request is in flight.
type Submitting struct {
	Method model.PaymentMethod
}

// AwaitingProvider waits for the buyer to come back from the provider page.
type AwaitingProvider struct {
	Handle model.PendingPaymentHandle
}

// Resolved is a settled provider interaction. For declined and cancelled outcomes the order
// stays pending_payment and payment can be retried.
type Resolved struct {
	Outcome model.ProviderOutcome
	OrderID string
	Status  model.OrderStatus
	Method  model.PaymentMethod
}

// Failed is a rejected or undeliverable submission. Detail is shown to the user as is.
type Failed struct {
	Detail    string
	Code      string
	Retryable bool
}

// Unconfirmed means the provider reported success but the order status did not change
// before the poll gave up. The pending payment handle is kept so Resume can finish.
type Unconfirmed struct {
	OrderID  string
	Provider model.PaymentMethod
}

// Closed means the order left pending_payment without being accepted, for example because
// the store cancelled it. It can no longer be paid; the cart is kept.
type Closed struct {
	OrderID string
	Status  model.OrderStatus
	Method  model.PaymentMethod
}

func (ShippingForm) Name() string     { return "shipping_form" }
func (ConsentRequired) Name() string  { return "consent_required" }
func (ReadyToSubmit) Name() string    { return "ready_to_submit" }
func (Submitting) Name() string       { return "submitting" }
func (AwaitingProvider) Name() string { return "awaiting_provider" }
func (r Resolved) Name() string       { return "resolved_" + string(r.Outcome) }
func (Failed) Name() string           { return "failed" }
func (Unconfirmed) Name() string      { return "unconfirmed" }
func (Closed) Name() string           { return "closed" }

func (ShippingForm) isState()     {}
func (ConsentRequired) isState()  {}
func (ReadyToSubmit) isState()    {}
func (Submitting) isState()       {}
func (AwaitingProvider) isState() {}
func (Resolved) isState()         {}
func (Failed) isState()           {}
func (Unconfirmed) isState()      {}
func (Closed) isState()           {}

// retryable reports whether r lets the buyer pay again for the same order.
func (r Resolved) retryable() bool {
	return r.Outcome == model.OutcomeDeclined || r.Outcome == model.OutcomeCancelled
}
