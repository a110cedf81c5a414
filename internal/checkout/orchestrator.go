// Package checkout drives one checkout session from shipping address to a resolved order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/consent"
	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/orderstatus"
	"storefront-checkout/internal/payment"
	"storefront-checkout/internal/store"
	"storefront-checkout/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	genericFailureDetail = "We could not place your order right now. Please try again."
	methodGoneDetail     = "The selected payment method is no longer available. Please choose another one."
)

var (
	ErrSubmissionInFlight = errors.New("an order submission is already in progress")
	ErrNotReady           = errors.New("checkout is not ready to submit")
	ErrCheckoutComplete   = errors.New("checkout already completed")
	ErrNoPendingProvider  = errors.New("no provider interaction is pending")
	ErrProviderMismatch   = errors.New("provider return does not match the pending payment")
	ErrInvalidOutcome     = errors.New("invalid provider outcome")

	errNoOrderID = errors.New("checkout response named no order")
)

type Backend interface {
	PaymentMethods(ctx context.Context) ([]model.PaymentMethod, error)
	Checkout(ctx context.Context, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error)
	RetryPayment(ctx context.Context, orderID string, req *dto.RetryPaymentRequest) (*dto.CheckoutResponse, error)
}

type Cart interface {
	Snapshot() model.CartSnapshot
	Clear(ctx context.Context) (model.CartSnapshot, error)
}

type StatusResolver interface {
	Get(ctx context.Context, orderID string) (*dto.OrderResponse, error)
	Await(ctx context.Context, orderID string, done func(model.OrderStatus) bool) (*dto.OrderResponse, error)
	Known(ctx context.Context) (map[string]bool, error)
	Discover(ctx context.Context, known map[string]bool) (*dto.OrderResponse, error)
}

type Deps struct {
	Backend   Backend
	Cart      Cart
	Gate      *consent.Gate
	Selector  *payment.Selector
	Resolver  StatusResolver
	Pending   store.PendingPaymentStore
	Validator *validator.Validate
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	ReturnURL string
}

// ProviderReturn is what the buyer brings back from the provider page.
type ProviderReturn struct {
	Provider model.PaymentMethod
	OrderID  string
	Outcome  model.ProviderOutcome
}

// Orchestrator is safe for concurrent use. At most one submission is in flight; the state
// check happens under the lock, network calls outside it.
type Orchestrator struct {
	backend   Backend
	cart      Cart
	gate      *consent.Gate
	selector  *payment.Selector
	resolver  StatusResolver
	pending   store.PendingPaymentStore
	validate  *validator.Validate
	log       *zap.Logger
	metrics   *metrics.Metrics
	returnURL string

	mu sync.Mutex
	// nil while still collecting input; the pre-submission state is derived
	state        State
	shipping     *model.ShippingAddress
	shippingErrs model.ValidationErrors
	// the key is reused only while the submission it was made for is unchanged
	idempotencyKey string
	keyFingerprint string
	retryOrder     *Resolved
	resolving      bool
	// bumped by Abandon; results of calls started before that are not stored
	gen uint64
}

func NewOrchestrator(d Deps) *Orchestrator {
	return &Orchestrator{
		backend:   d.Backend,
		cart:      d.Cart,
		gate:      d.Gate,
		selector:  d.Selector,
		resolver:  d.Resolver,
		pending:   d.Pending,
		validate:  d.Validator,
		log:       d.Log,
		metrics:   d.Metrics,
		returnURL: d.ReturnURL,
	}
}

func (o *Orchestrator) Consent() *consent.Gate {
	return o.gate
}

func (o *Orchestrator) Payment() *payment.Selector {
	return o.selector
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current()
}

func (o *Orchestrator) current() State {
	if o.state != nil {
		return o.state
	}
	switch {
	case o.shipping == nil:
		return ShippingForm{Errors: o.shippingErrs}
	case o.selector.Selected() == "":
		return ShippingForm{}
	case !o.gate.AllAccepted():
		return ConsentRequired{}
	default:
		return ReadyToSubmit{}
	}
}

func (o *Orchestrator) prerequisitesMet() bool {
	return o.shipping != nil && o.selector.Selected() != "" && o.gate.AllAccepted()
}

// editable must be called with mu held.
func (o *Orchestrator) editable() error {
	switch s := o.current().(type) {
	case Submitting, AwaitingProvider, Unconfirmed:
		return ErrSubmissionInFlight
	case Closed:
		return ErrCheckoutComplete
	case Resolved:
		if !s.retryable() {
			return ErrCheckoutComplete
		}
	}
	return nil
}

// SetShipping validates and stores the address. Validation failures come back as
// model.ValidationErrors and keep the checkout on the shipping form.
func (o *Orchestrator) SetShipping(addr model.ShippingAddress) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.editable(); err != nil {
		return err
	}

	if err := o.validate.Struct(addr); err != nil {
		errs := validation.Errors(err)
		if errs == nil {
			return fmt.Errorf("validate shipping: %w", err)
		}
		o.shipping = nil
		o.shippingErrs = errs
		o.clearFailed()
		return errs
	}

	o.shipping = &addr
	o.shippingErrs = nil
	o.clearFailed()
	return nil
}

func (o *Orchestrator) SelectPayment(m model.PaymentMethod) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.editable(); err != nil {
		return err
	}
	if err := o.selector.Select(m); err != nil {
		return err
	}
	o.clearFailed()
	return nil
}

// RefreshMethods reloads the advertised payment methods.
func (o *Orchestrator) RefreshMethods(ctx context.Context) ([]model.PaymentMethod, error) {
	methods, err := o.backend.PaymentMethods(ctx)
	if err != nil {
		return o.selector.Available(), fmt.Errorf("load payment methods: %w", err)
	}
	o.selector.Refresh(methods)
	return o.selector.Available(), nil
}

// clearFailed returns a failed first submission to input collection.
func (o *Orchestrator) clearFailed() {
	if _, ok := o.state.(Failed); ok && o.retryOrder == nil {
		o.state = nil
	}
}

// CanSubmit backs the enabled state of the submit control.
func (o *Orchestrator) CanSubmit() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch s := o.current().(type) {
	case ReadyToSubmit:
		return true
	case Failed:
		return o.retryOrder != nil || o.prerequisitesMet()
	case Resolved:
		return s.retryable()
	default:
		return false
	}
}

// Submit places the order, or after a declined or cancelled payment, restarts payment for
// the same order. Business rejections come back as a Failed state together with the
// *client.APIError.
func (o *Orchestrator) Submit(ctx context.Context) (State, error) {
	o.mu.Lock()

	var retry *Resolved
	switch s := o.current().(type) {
	case Submitting, AwaitingProvider, Unconfirmed:
		o.mu.Unlock()
		return s, ErrSubmissionInFlight
	case Closed:
		o.mu.Unlock()
		return s, ErrCheckoutComplete
	case Resolved:
		if !s.retryable() {
			o.mu.Unlock()
			return s, ErrCheckoutComplete
		}
		retry = &s
	case Failed:
		if o.retryOrder != nil {
			r := *o.retryOrder
			retry = &r
		} else if !o.prerequisitesMet() {
			o.mu.Unlock()
			return s, ErrNotReady
		}
	case ReadyToSubmit:
	default:
		o.mu.Unlock()
		return s, ErrNotReady
	}

	gen := o.gen
	if retry != nil {
		o.state = Submitting{Method: retry.Method}
		o.mu.Unlock()
		return o.retryPayment(ctx, gen, *retry)
	}

	method := o.selector.Selected()
	fingerprint := submissionFingerprint(method, *o.shipping, o.cart.Snapshot())
	if o.idempotencyKey == "" || fingerprint != o.keyFingerprint {
		o.idempotencyKey = uuid.NewString()
		o.keyFingerprint = fingerprint
	}
	req := dto.CheckoutRequest{
		Shipping:       *o.shipping,
		Consents:       o.gate.Flags(),
		IdempotencyKey: o.idempotencyKey,
		ReturnURL:      o.returnURL,
	}
	o.state = Submitting{Method: method}
	o.mu.Unlock()

	return o.placeOrder(ctx, gen, method, req)
}

// submissionFingerprint identifies what a checkout submission asks for. A different method,
// address or cart is a different order and must not replay an earlier one.
func submissionFingerprint(method model.PaymentMethod, addr model.ShippingAddress, cart model.CartSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%+v", method, addr)
	for _, l := range cart.Lines {
		fmt.Fprintf(&b, "|%s*%d", l.ID, l.Quantity)
	}
	return b.String()
}

func (o *Orchestrator) placeOrder(ctx context.Context, gen uint64, method model.PaymentMethod, req dto.CheckoutRequest) (State, error) {
	if _, err := o.RefreshMethods(ctx); err != nil {
		o.log.Warn("payment methods refresh failed, using last known set", zap.Error(err))
	}

	req, err := o.selector.Prepare(req)
	if err != nil {
		o.metrics.CheckoutOutcome(string(method), "method_unavailable")
		return o.commit(gen, Failed{Detail: methodGoneDetail, Code: "payment_method_unavailable"}, nil), err
	}

	// baseline for finding the order should the response not name it
	known, err := o.resolver.Known(ctx)
	if err != nil {
		o.log.Warn("recent orders unavailable", zap.Error(err))
	}

	resp, err := o.backend.Checkout(ctx, &req)
	if err != nil {
		return o.submissionFailed(gen, req.PaymentMethod, err)
	}
	if resp.OrderID == "" {
		resp, err = o.discoverOrder(ctx, known, &req)
		if err != nil {
			return o.submissionFailed(gen, req.PaymentMethod, err)
		}
	}
	return o.settle(ctx, gen, req.PaymentMethod, resp), nil
}

// discoverOrder finds the order a submission created when the response did not carry its
// id, by watching the recent orders for one missing from known.
func (o *Orchestrator) discoverOrder(ctx context.Context, known map[string]bool, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	if known == nil {
		return nil, errNoOrderID
	}
	order, err := o.resolver.Discover(ctx, known)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errNoOrderID, err)
	}
	o.log.Info("order found in recent orders", zap.String("order_id", order.ID))

	resp := &dto.CheckoutResponse{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
	}
	if order.PaymentMethod.IsRedirect() && order.Status == model.OrderPendingPayment {
		// the listing has no redirect URL; replaying the same key returns it
		replayed, err := o.backend.Checkout(ctx, req)
		switch {
		case err != nil:
			o.log.Warn("redirect url unavailable", zap.String("order_id", order.ID), zap.Error(err))
		case replayed.OrderID == "" || replayed.OrderID == order.ID:
			resp.RedirectURL = replayed.RedirectURL
		}
	}
	return resp, nil
}

// settle moves on from a created order. The order the server returned decides the branch,
// not the request: a replayed submission answers with whatever it created the first time.
func (o *Orchestrator) settle(ctx context.Context, gen uint64, requested model.PaymentMethod, resp *dto.CheckoutResponse) State {
	method := resp.PaymentMethod
	if method == "" {
		method = requested
	}
	if method != requested {
		o.log.Warn("order placed with another payment method than selected",
			zap.String("order_id", resp.OrderID),
			zap.String("selected", string(requested)),
			zap.String("payment_method", string(method)))
	}

	o.log.Info("order created",
		zap.String("order_id", resp.OrderID),
		zap.String("payment_method", string(method)),
		zap.String("status", string(resp.Status)))

	switch {
	case orderstatus.Accepted(resp.Status):
		return o.resolveSuccess(ctx, gen, resp.OrderID, resp.Status, method)
	case resp.Status == model.OrderPendingPayment && method.IsRedirect():
		return o.awaitProvider(ctx, gen, method, resp)
	default:
		return o.closeOrder(ctx, gen, method, resp.OrderID, resp.Status)
	}
}

func (o *Orchestrator) retryPayment(ctx context.Context, gen uint64, r Resolved) (State, error) {
	resp, err := o.backend.RetryPayment(ctx, r.OrderID, &dto.RetryPaymentRequest{ReturnURL: o.returnURL})
	if err != nil {
		return o.submissionFailed(gen, r.Method, err)
	}

	o.log.Info("payment retry started",
		zap.String("order_id", r.OrderID),
		zap.String("payment_method", string(r.Method)))
	return o.awaitProvider(ctx, gen, r.Method, resp), nil
}

func (o *Orchestrator) submissionFailed(gen uint64, method model.PaymentMethod, err error) (State, error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.BusinessRule() {
		o.log.Info("order rejected",
			zap.String("code", apiErr.Code),
			zap.String("detail", apiErr.Detail))
		o.metrics.CheckoutOutcome(string(method), "rejected")
		return o.commit(gen, Failed{Detail: apiErr.Detail, Code: apiErr.Code}, nil), err
	}

	o.log.Warn("order submission failed", zap.Error(err))
	o.metrics.CheckoutOutcome(string(method), "error")
	return o.commit(gen, Failed{Detail: genericFailureDetail, Retryable: true}, nil), fmt.Errorf("submit order: %w", err)
}

func (o *Orchestrator) awaitProvider(ctx context.Context, gen uint64, method model.PaymentMethod, resp *dto.CheckoutResponse) State {
	handle := model.PendingPaymentHandle{
		Provider:    method,
		OrderID:     resp.OrderID,
		RedirectURL: resp.RedirectURL,
		CreatedAt:   time.Now(),
	}
	if err := o.pending.Save(ctx, &handle); err != nil {
		// the in-memory handle still works; only a reload would lose it
		o.log.Error("persist pending payment failed",
			zap.String("order_id", resp.OrderID),
			zap.Error(err))
	}

	return o.commit(gen, AwaitingProvider{Handle: handle}, func() {
		o.retryOrder = nil
	})
}

func (o *Orchestrator) resolveSuccess(ctx context.Context, gen uint64, orderID string, status model.OrderStatus, method model.PaymentMethod) State {
	if method.IsRedirect() {
		if err := o.pending.Delete(ctx, method); err != nil {
			o.log.Error("delete pending payment failed", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	if _, err := o.cart.Clear(ctx); err != nil {
		o.log.Warn("clear cart after order failed", zap.String("order_id", orderID), zap.Error(err))
	}
	o.metrics.CheckoutOutcome(string(method), string(model.OutcomeSuccess))

	return o.commit(gen, Resolved{
		Outcome: model.OutcomeSuccess,
		OrderID: orderID,
		Status:  status,
		Method:  method,
	}, o.forgetAttempt)
}

// closeOrder ends the checkout on an order that can neither be paid nor counts as placed.
// The cart is kept.
func (o *Orchestrator) closeOrder(ctx context.Context, gen uint64, method model.PaymentMethod, orderID string, status model.OrderStatus) State {
	o.log.Warn("order closed without payment",
		zap.String("order_id", orderID),
		zap.String("status", string(status)))
	if method.IsRedirect() {
		if err := o.pending.Delete(ctx, method); err != nil {
			o.log.Error("delete pending payment failed", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	o.metrics.CheckoutOutcome(string(method), "closed")

	return o.commit(gen, Closed{OrderID: orderID, Status: status, Method: method}, o.forgetAttempt)
}

// forgetAttempt must be called with mu held.
func (o *Orchestrator) forgetAttempt() {
	o.idempotencyKey = ""
	o.keyFingerprint = ""
	o.retryOrder = nil
}

// commit stores s, running apply first under the same lock, unless the checkout was
// abandoned after gen was read. It returns the state that is current afterwards.
func (o *Orchestrator) commit(gen uint64, s State, apply func()) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		return o.current()
	}
	if apply != nil {
		apply()
	}
	o.state = s
	return s
}

// HandleProviderReturn applies the outcome the buyer came back with. Success is confirmed
// against the order status; if that does not happen in time the checkout becomes
// Unconfirmed and the pending handle is kept.
func (o *Orchestrator) HandleProviderReturn(ctx context.Context, ret ProviderReturn) (State, error) {
	o.mu.Lock()
	awaiting, ok := o.state.(AwaitingProvider)
	switch {
	case !ok || o.resolving:
		s := o.current()
		o.mu.Unlock()
		return s, ErrNoPendingProvider
	case ret.OrderID != "" && ret.OrderID != awaiting.Handle.OrderID,
		ret.Provider != "" && ret.Provider != awaiting.Handle.Provider:
		o.mu.Unlock()
		return awaiting, ErrProviderMismatch
	case !ret.Outcome.Valid():
		o.mu.Unlock()
		return awaiting, fmt.Errorf("%w: %q", ErrInvalidOutcome, ret.Outcome)
	}
	o.resolving = true
	gen := o.gen
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.resolving = false
		o.mu.Unlock()
	}()

	h := awaiting.Handle
	if ret.Outcome == model.OutcomeSuccess {
		order, err := o.resolver.Await(ctx, h.OrderID, orderstatus.LeftPendingPayment)
		if err != nil {
			o.log.Warn("order status not confirmed",
				zap.String("order_id", h.OrderID),
				zap.Error(err))
			o.metrics.CheckoutOutcome(string(h.Provider), "unconfirmed")
			return o.commit(gen, Unconfirmed{OrderID: h.OrderID, Provider: h.Provider}, nil), err
		}
		if !orderstatus.Accepted(order.Status) {
			return o.closeOrder(ctx, gen, h.Provider, h.OrderID, order.Status), nil
		}
		return o.resolveSuccess(ctx, gen, h.OrderID, order.Status, h.Provider), nil
	}

	if err := o.pending.Delete(ctx, h.Provider); err != nil {
		o.log.Error("delete pending payment failed", zap.String("order_id", h.OrderID), zap.Error(err))
	}
	o.metrics.CheckoutOutcome(string(h.Provider), string(ret.Outcome))

	resolved := Resolved{
		Outcome: ret.Outcome,
		OrderID: h.OrderID,
		Status:  model.OrderPendingPayment,
		Method:  h.Provider,
	}
	return o.commit(gen, resolved, func() {
		o.retryOrder = &resolved
	}), nil
}

// Resume restores a provider interaction persisted before a reload. An order that was paid
// in the meantime resolves to success straight away; one that can no longer be paid closes
// the checkout.
func (o *Orchestrator) Resume(ctx context.Context) (State, error) {
	o.mu.Lock()
	if _, ok := o.state.(Submitting); ok || o.resolving {
		s := o.current()
		o.mu.Unlock()
		return s, ErrSubmissionInFlight
	}
	gen := o.gen
	o.mu.Unlock()

	handles, err := o.pending.List(ctx)
	if err != nil {
		return o.State(), fmt.Errorf("load pending payments: %w", err)
	}
	if len(handles) == 0 {
		return o.State(), store.ErrNoPendingPayment
	}
	h := *handles[0]
	awaiting := o.commit(gen, AwaitingProvider{Handle: h}, func() {
		o.retryOrder = nil
	})

	order, err := o.resolver.Get(ctx, h.OrderID)
	if err != nil {
		o.log.Warn("resume: order status unavailable", zap.String("order_id", h.OrderID), zap.Error(err))
		return awaiting, nil
	}
	switch {
	case order.Status == model.OrderPendingPayment:
		return awaiting, nil
	case orderstatus.Accepted(order.Status):
		return o.resolveSuccess(ctx, gen, h.OrderID, order.Status, h.Provider), nil
	default:
		return o.closeOrder(ctx, gen, h.Provider, h.OrderID, order.Status), nil
	}
}

// Abandon drops the in-memory checkout. An order that was already created is left alone on
// the server, as is its pending payment handle. A submission still in flight finishes on the
// server but no longer changes this checkout.
func (o *Orchestrator) Abandon() {
	o.mu.Lock()
	o.gen++
	o.state = nil
	o.shipping = nil
	o.shippingErrs = nil
	o.idempotencyKey = ""
	o.keyFingerprint = ""
	o.retryOrder = nil
	o.mu.Unlock()

	o.gate.Reset()
}
