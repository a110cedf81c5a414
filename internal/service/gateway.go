package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentGateway is the backend's side of one redirect payment provider.
type PaymentGateway interface {
	// Begin starts a provider interaction for order and returns the page the shopper is
	// sent to plus the provider's reference for the attempt.
	Begin(ctx context.Context, order *model.Order) (redirectURL, providerRef string, err error)

	// Complete confirms a reported outcome with the provider. A success the provider
	// refuses to settle comes back as declined.
	Complete(ctx context.Context, order *model.Order, outcome model.ProviderOutcome, nonce string) (model.ProviderOutcome, error)
}

// Gateways maps each enabled redirect method to its gateway.
type Gateways map[model.PaymentMethod]PaymentGateway

func mockPayURL(baseURL string, provider model.PaymentMethod, orderID string) string {
	return fmt.Sprintf("%s/api/mock-pay/%s/%s", baseURL, provider, url.PathEscape(orderID))
}

type mockGatewayImpl struct {
	baseURL  string
	provider model.PaymentMethod
}

// NewMockGateway sends shoppers to the built-in provider page, which reports whatever
// outcome is chosen there.
func NewMockGateway(baseURL string, provider model.PaymentMethod) PaymentGateway {
	return &mockGatewayImpl{baseURL: baseURL, provider: provider}
}

func (g *mockGatewayImpl) Begin(_ context.Context, order *model.Order) (string, string, error) {
	return mockPayURL(g.baseURL, g.provider, order.ID), uuid.NewString(), nil
}

func (g *mockGatewayImpl) Complete(_ context.Context, _ *model.Order, outcome model.ProviderOutcome, _ string) (model.ProviderOutcome, error) {
	return outcome, nil
}

type paypalGatewayImpl struct {
	baseURL      string
	paypalClient client.PaypalClient
	log          *zap.Logger
}

func NewPaypalGateway(baseURL string, paypalClient client.PaypalClient, log *zap.Logger) PaymentGateway {
	return &paypalGatewayImpl{
		baseURL:      baseURL,
		paypalClient: paypalClient,
		log:          log,
	}
}

func (g *paypalGatewayImpl) Begin(ctx context.Context, order *model.Order) (string, string, error) {
	returnURL := fmt.Sprintf("%s/api/payments/paypal/return?order_id=%s", g.baseURL, url.QueryEscape(order.ID))

	resp, err := g.paypalClient.CreateOrder(ctx, &client.PaypalOrderRequest{
		ReferenceID: order.ID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		ReturnURL:   returnURL,
		CancelURL:   returnURL + "&cancelled=1",
	})
	if err != nil {
		return "", "", fmt.Errorf("paypal api create order: %w", err)
	}

	return resp.ApproveURL, resp.OrderID, nil
}

func (g *paypalGatewayImpl) Complete(ctx context.Context, order *model.Order, outcome model.ProviderOutcome, _ string) (model.ProviderOutcome, error) {
	if outcome != model.OutcomeSuccess {
		return outcome, nil
	}

	result, err := g.paypalClient.CaptureOrder(ctx, order.ProviderRef)
	if errors.Is(err, client.ErrPaypalDeclined) {
		return model.OutcomeDeclined, nil
	}
	if err != nil {
		return "", fmt.Errorf("paypal api capture order: %w", err)
	}

	g.log.Info("paypal order captured",
		zap.String("order_id", order.ID),
		zap.String("paypal_order_id", result.ID),
		zap.String("capture_status", result.CaptureStatus()))
	return model.OutcomeSuccess, nil
}

type braintreeGatewayImpl struct {
	baseURL         string
	braintreeClient client.BraintreeClient
	log             *zap.Logger
}

// NewBraintreeGateway collects the card on the built-in hosted page and settles the
// resulting nonce with Braintree.
func NewBraintreeGateway(baseURL string, braintreeClient client.BraintreeClient, log *zap.Logger) PaymentGateway {
	return &braintreeGatewayImpl{
		baseURL:         baseURL,
		braintreeClient: braintreeClient,
		log:             log,
	}
}

func (g *braintreeGatewayImpl) Begin(_ context.Context, order *model.Order) (string, string, error) {
	return mockPayURL(g.baseURL, model.PaymentBraintree, order.ID), uuid.NewString(), nil
}

func (g *braintreeGatewayImpl) Complete(ctx context.Context, order *model.Order, outcome model.ProviderOutcome, nonce string) (model.ProviderOutcome, error) {
	if outcome != model.OutcomeSuccess {
		return outcome, nil
	}
	if nonce == "" {
		nonce = "fake-valid-nonce"
	}

	txID, err := g.braintreeClient.Charge(ctx, nonce, order.Amount, order.ID)
	if errors.Is(err, client.ErrBraintreeDeclined) {
		return model.OutcomeDeclined, nil
	}
	if err != nil {
		return "", fmt.Errorf("braintree charge: %w", err)
	}

	g.log.Info("braintree sale settled",
		zap.String("order_id", order.ID),
		zap.String("transaction_id", txID))
	return model.OutcomeSuccess, nil
}
