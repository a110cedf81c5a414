// Package servertest runs a seeded storefront backend for tests, in the manner of
// net/http/httptest.
package servertest

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/middleware"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"
	"storefront-checkout/internal/server"
	"storefront-checkout/internal/service"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const Secret = "servertest-secret"

type Backend struct {
	// URL is the server root; API is the base URL storefront clients are configured with.
	URL      string
	API      string
	DB       *gorm.DB
	Registry *prometheus.Registry
	Products repository.ProductRepository
}

type options struct {
	gateways func(baseURL string) service.Gateways
}

type Option func(*options)

// WithGateways replaces the default gateways, which are the built-in payment pages for
// both redirect providers.
func WithGateways(build func(baseURL string) service.Gateways) Option {
	return func(o *options) { o.gateways = build }
}

func New(t testing.TB, opts ...Option) *Backend {
	t.Helper()

	o := options{
		gateways: func(baseURL string) service.Gateways {
			return service.Gateways{
				model.PaymentPayPal:    service.NewMockGateway(baseURL, model.PaymentPayPal),
				model.PaymentBraintree: service.NewMockGateway(baseURL, model.PaymentBraintree),
			}
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := client.InitDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)

	productRepo := repository.NewProductRepository(db)
	pageRepo := repository.NewPageRepository(db)
	cartRepo := repository.NewCartRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	eventRepo := repository.NewProviderEventRepository(db)

	ctx := context.Background()
	require.NoError(t, productRepo.Seed(ctx))
	require.NoError(t, pageRepo.Seed(ctx))

	ts := httptest.NewUnstartedServer(nil)
	baseURL := "http://" + ts.Listener.Addr().String()

	log := zap.NewNop()
	reg := prometheus.NewRegistry()
	cartService := service.NewCartService(db, cartRepo, productRepo, log)
	orderService := service.NewOrderService(
		db, baseURL, o.gateways(baseURL),
		cartService, cartRepo, productRepo, orderRepo, eventRepo,
		log, metrics.NewMetrics(reg),
	)

	srv := server.NewServer(server.Options{
		JWTSecret:       Secret,
		DomesticCountry: "ID",
		Gatherer:        reg,
		Log:             log,
	}, cartService, orderService, service.NewContentService(pageRepo))

	ts.Config.Handler = srv.Handler()
	ts.Start()

	t.Cleanup(func() {
		ts.Close()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return &Backend{
		URL:      baseURL,
		API:      baseURL + "/api",
		DB:       db,
		Registry: reg,
		Products: productRepo,
	}
}

// Token issues a bearer token for userID.
func (b *Backend) Token(t testing.TB, userID string) string {
	t.Helper()
	token, err := middleware.IssueToken(Secret, userID, time.Hour)
	require.NoError(t, err)
	return token
}
