package service

import (
	"context"
	"fmt"
	"testing"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testBaseURL = "http://shop.test"

type fixture struct {
	db          *gorm.DB
	carts       CartService
	orders      OrderService
	content     ContentService
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
}

func setup(t *testing.T, gateways Gateways) *fixture {
	t.Helper()

	db, err := client.InitDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	productRepo := repository.NewProductRepository(db)
	pageRepo := repository.NewPageRepository(db)
	cartRepo := repository.NewCartRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	eventRepo := repository.NewProviderEventRepository(db)

	ctx := context.Background()
	require.NoError(t, productRepo.Seed(ctx))
	require.NoError(t, pageRepo.Seed(ctx))

	if gateways == nil {
		gateways = Gateways{
			model.PaymentPayPal:    NewMockGateway(testBaseURL, model.PaymentPayPal),
			model.PaymentBraintree: NewMockGateway(testBaseURL, model.PaymentBraintree),
		}
	}

	log := zap.NewNop()
	carts := NewCartService(db, cartRepo, productRepo, log)
	return &fixture{
		db:    db,
		carts: carts,
		orders: NewOrderService(db, testBaseURL, gateways, carts, cartRepo, productRepo, orderRepo, eventRepo,
			log, metrics.NewMetrics(prometheus.NewRegistry())),
		content:     NewContentService(pageRepo),
		productRepo: productRepo,
		orderRepo:   orderRepo,
		cartRepo:    cartRepo,
	}
}

func (f *fixture) fillCart(t *testing.T, caller Caller, items ...dto.SyncItem) *dto.CartResponse {
	t.Helper()
	cart, err := f.carts.Sync(context.Background(), caller, &dto.CartSyncRequest{Items: items})
	require.NoError(t, err)
	return cart
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.productRepo.FindByID(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func anonymous() Caller {
	return Caller{SessionID: uuid.NewString()}
}

func validCheckout(method model.PaymentMethod) *dto.CheckoutRequest {
	return &dto.CheckoutRequest{
		Shipping: model.ShippingAddress{
			Name:        "Ayu Lestari",
			Email:       "ayu@example.com",
			AddressLine: "Jl. Merdeka 1",
			City:        "Bandung",
			Region:      "Jawa Barat",
			PostalCode:  "40111",
			Country:     "ID",
			Phone:       "081234567890",
		},
		PaymentMethod:  method,
		Consents:       dto.Consents{Terms: true, Privacy: true},
		IdempotencyKey: uuid.NewString(),
	}
}
