package service

import (
	"context"
	"testing"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartService_SyncRepricesAndClamps(t *testing.T) {
	f := setup(t, nil)
	caller := anonymous()

	cart := f.fillCart(t, caller,
		dto.SyncItem{ProductID: "mug-classic", Quantity: 2},
		dto.SyncItem{ProductID: "does-not-exist", Quantity: 1},
		dto.SyncItem{ProductID: "poster-limited", Quantity: 3},
		dto.SyncItem{ProductID: "mug-classic", Quantity: 1},
		dto.SyncItem{ProductID: "print-on-demand", Quantity: 40},
	)

	require.Len(t, cart.Items, 3)

	assert.Equal(t, "mug-classic", cart.Items[0].ID)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("12.50").Equal(cart.Items[0].UnitPrice))
	assert.Equal(t, 25, cart.Items[0].MaxQuantity)

	assert.Equal(t, "poster-limited", cart.Items[1].ID)
	assert.Equal(t, 1, cart.Items[1].Quantity)

	assert.Equal(t, "print-on-demand", cart.Items[2].ID)
	assert.Equal(t, 40, cart.Items[2].Quantity)
	assert.True(t, cart.Items[2].AllowBackorder)

	assert.Equal(t, "USD", cart.Totals.Currency)
	assert.Equal(t, 44, cart.Totals.ItemCount)
	// 3*12.50 + 35 + 40*8
	assert.True(t, decimal.RequireFromString("392.50").Equal(cart.Totals.Subtotal), cart.Totals.Subtotal.String())

	got, err := f.carts.Get(context.Background(), caller)
	require.NoError(t, err)
	assert.Equal(t, cart, got)
}

func TestCartService_GetClampsToCurrentStock(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	caller := anonymous()
	f.fillCart(t, caller,
		dto.SyncItem{ProductID: "tee-logo", Quantity: 5},
		dto.SyncItem{ProductID: "poster-limited", Quantity: 1},
	)

	buyer := anonymous()
	f.fillCart(t, buyer,
		dto.SyncItem{ProductID: "tee-logo", Quantity: 8},
		dto.SyncItem{ProductID: "poster-limited", Quantity: 1},
	)
	_, err := f.orders.Checkout(ctx, buyer, validCheckout(model.PaymentCashOnDelivery))
	require.NoError(t, err)
	require.Equal(t, 2, f.stock(t, "tee-logo"))
	require.Equal(t, 0, f.stock(t, "poster-limited"))

	cart, err := f.carts.Get(ctx, caller)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "tee-logo", cart.Items[0].ID)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Equal(t, 2, cart.Items[0].MaxQuantity)
	assert.Equal(t, 2, cart.Totals.ItemCount)

	stored, err := f.cartRepo.Get(ctx, caller.Owner())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 2, stored[0].Quantity)
}

func TestCartService_VariantsAreSeparateLines(t *testing.T) {
	f := setup(t, nil)

	cart := f.fillCart(t, anonymous(),
		dto.SyncItem{ProductID: "tee-logo", VariantID: "m", Quantity: 1},
		dto.SyncItem{ProductID: "tee-logo", VariantID: "l", Quantity: 2},
	)

	require.Len(t, cart.Items, 2)
	assert.Equal(t, "tee-logo:m", cart.Items[0].ID)
	assert.Equal(t, "tee-logo:l", cart.Items[1].ID)
}

func TestCartService_EmptySyncClears(t *testing.T) {
	f := setup(t, nil)
	caller := anonymous()
	f.fillCart(t, caller, dto.SyncItem{ProductID: "mug-classic", Quantity: 1})

	cart := f.fillCart(t, caller)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.Totals.Subtotal.IsZero())
}

func TestCartService_MissingIdentity(t *testing.T) {
	f := setup(t, nil)

	_, err := f.carts.Get(context.Background(), Caller{})
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestCartService_SessionsAreIsolated(t *testing.T) {
	f := setup(t, nil)
	a, b := anonymous(), anonymous()
	f.fillCart(t, a, dto.SyncItem{ProductID: "mug-classic", Quantity: 1})

	cart, err := f.carts.Get(context.Background(), b)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCartService_UserAdoptsSessionCart(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	anon := anonymous()
	f.fillCart(t, anon, dto.SyncItem{ProductID: "mug-classic", Quantity: 2})

	user := Caller{UserID: "u-1", SessionID: anon.SessionID}
	cart, err := f.carts.Get(ctx, user)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	left, err := f.cartRepo.Get(ctx, anon.SessionOwner())
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestCartService_UserCartWinsOverSession(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	f.fillCart(t, Caller{UserID: "u-1"}, dto.SyncItem{ProductID: "tee-logo", Quantity: 1})

	anon := anonymous()
	f.fillCart(t, anon, dto.SyncItem{ProductID: "mug-classic", Quantity: 2})

	cart, err := f.carts.Get(ctx, Caller{UserID: "u-1", SessionID: anon.SessionID})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "tee-logo", cart.Items[0].ProductID)

	left, err := f.cartRepo.Get(ctx, anon.SessionOwner())
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestContentService_GetPage(t *testing.T) {
	f := setup(t, nil)

	page, err := f.content.GetPage(context.Background(), "privacy-policy")
	require.NoError(t, err)
	assert.Equal(t, "privacy-policy", page.Slug)
	assert.NotEmpty(t, page.Body)

	_, err = f.content.GetPage(context.Background(), "cookie-policy")
	assert.ErrorIs(t, err, ErrPageNotFound)
}
