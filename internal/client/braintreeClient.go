package client

import (
	"context"
	"errors"
	"fmt"

	"storefront-checkout/internal/config"

	"github.com/braintree-go/braintree-go"
	"github.com/shopspring/decimal"
)

var ErrBraintreeDeclined = errors.New("braintree transaction declined")

type BraintreeClient interface {
	// Charge settles a one-time sale for the nonce produced by the hosted payment page.
	Charge(ctx context.Context, nonce string, amount decimal.Decimal, orderID string) (string, error)
}

type braintreeClientImpl struct {
	gateway *braintree.Braintree
}

// NewBraintreeClient initializes the Braintree SDK gateway
func NewBraintreeClient(cfg *config.Braintree) BraintreeClient {
	env := braintree.Sandbox
	if cfg.Environment == "production" {
		env = braintree.Production
	}

	gateway := braintree.New(
		env,
		cfg.MerchantID,
		cfg.PublicKey,
		cfg.PrivateKey,
	)

	return &braintreeClientImpl{
		gateway: gateway,
	}
}

// toBraintreeAmount converts to braintree's fixed point: "50.00" -> NewDecimal(5000, 2).
func toBraintreeAmount(amount decimal.Decimal) *braintree.Decimal {
	cents := amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return braintree.NewDecimal(cents, 2)
}

func (c *braintreeClientImpl) Charge(ctx context.Context, nonce string, amount decimal.Decimal, orderID string) (string, error) {
	if nonce == "" {
		return "", fmt.Errorf("missing payment method nonce")
	}

	req := &braintree.TransactionRequest{
		Type:               "sale",
		Amount:             toBraintreeAmount(amount),
		PaymentMethodNonce: nonce,
		OrderId:            orderID,
		Options: &braintree.TransactionOptions{
			SubmitForSettlement: true,
		},
	}

	tx, err := c.gateway.Transaction().Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("transaction creation failed: %w", err)
	}

	switch tx.Status {
	case braintree.TransactionStatusProcessorDeclined, braintree.TransactionStatusGatewayRejected, braintree.TransactionStatusFailed:
		return "", fmt.Errorf("%w: %s", ErrBraintreeDeclined, tx.ProcessorResponseText)
	}

	return tx.Id, nil
}
