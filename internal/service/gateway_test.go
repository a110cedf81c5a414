package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePaypalClient struct {
	created    *client.PaypalOrderRequest
	captureErr error
	captured   string
}

func (c *fakePaypalClient) CreateOrder(_ context.Context, req *client.PaypalOrderRequest) (*client.CreateOrderResponse, error) {
	c.created = req
	return &client.CreateOrderResponse{OrderID: "PP-9", ApproveURL: "https://paypal.test/approve/PP-9"}, nil
}

func (c *fakePaypalClient) CaptureOrder(_ context.Context, id string) (*model.PaypalResult, error) {
	c.captured = id
	if c.captureErr != nil {
		return nil, c.captureErr
	}
	return &model.PaypalResult{ID: id, Status: "COMPLETED"}, nil
}

type fakeBraintreeClient struct {
	nonce string
	err   error
}

func (c *fakeBraintreeClient) Charge(_ context.Context, nonce string, _ decimal.Decimal, _ string) (string, error) {
	c.nonce = nonce
	if c.err != nil {
		return "", c.err
	}
	return "bt-tx-1", nil
}

func testOrder(method model.PaymentMethod) *model.Order {
	return &model.Order{
		ID:            "order-1",
		PaymentMethod: method,
		Amount:        decimal.RequireFromString("42.50"),
		Currency:      "USD",
		ProviderRef:   "PP-9",
	}
}

func TestPaypalGateway_Begin(t *testing.T) {
	pp := &fakePaypalClient{}
	gw := NewPaypalGateway(testBaseURL, pp, zap.NewNop())

	redirect, ref, err := gw.Begin(context.Background(), testOrder(model.PaymentPayPal))
	require.NoError(t, err)
	assert.Equal(t, "https://paypal.test/approve/PP-9", redirect)
	assert.Equal(t, "PP-9", ref)

	assert.Equal(t, "order-1", pp.created.ReferenceID)
	assert.Equal(t, testBaseURL+"/api/payments/paypal/return?order_id=order-1", pp.created.ReturnURL)
	assert.Equal(t, pp.created.ReturnURL+"&cancelled=1", pp.created.CancelURL)
}

func TestPaypalGateway_Complete(t *testing.T) {
	tests := []struct {
		name       string
		reported   model.ProviderOutcome
		captureErr error
		want       model.ProviderOutcome
		wantErr    bool
		captures   bool
	}{
		{name: "captured", reported: model.OutcomeSuccess, want: model.OutcomeSuccess, captures: true},
		{name: "declined at capture", reported: model.OutcomeSuccess, captureErr: fmt.Errorf("%w: 422", client.ErrPaypalDeclined), want: model.OutcomeDeclined, captures: true},
		{name: "capture unavailable", reported: model.OutcomeSuccess, captureErr: errors.New("timeout"), wantErr: true, captures: true},
		{name: "cancelled needs no capture", reported: model.OutcomeCancelled, want: model.OutcomeCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pp := &fakePaypalClient{captureErr: tt.captureErr}
			gw := NewPaypalGateway(testBaseURL, pp, zap.NewNop())

			got, err := gw.Complete(context.Background(), testOrder(model.PaymentPayPal), tt.reported, "")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.Equal(t, tt.captures, pp.captured == "PP-9")
		})
	}
}

func TestBraintreeGateway(t *testing.T) {
	bt := &fakeBraintreeClient{}
	gw := NewBraintreeGateway(testBaseURL, bt, zap.NewNop())
	order := testOrder(model.PaymentBraintree)

	redirect, ref, err := gw.Begin(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, testBaseURL+"/api/mock-pay/braintree/order-1", redirect)
	assert.NotEmpty(t, ref)

	got, err := gw.Complete(context.Background(), order, model.OutcomeSuccess, "")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, got)
	assert.Equal(t, "fake-valid-nonce", bt.nonce)

	bt.err = fmt.Errorf("%w: Do Not Honor", client.ErrBraintreeDeclined)
	got, err = gw.Complete(context.Background(), order, model.OutcomeSuccess, "nonce-2")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDeclined, got)
	assert.Equal(t, "nonce-2", bt.nonce)
}
