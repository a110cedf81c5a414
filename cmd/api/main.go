package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/logger"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"
	"storefront-checkout/internal/server"
	"storefront-checkout/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	db, err := client.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("init database", zap.Error(err))
	}

	productRepo := repository.NewProductRepository(db)
	pageRepo := repository.NewPageRepository(db)
	cartRepo := repository.NewCartRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	eventRepo := repository.NewProviderEventRepository(db)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := productRepo.Seed(seedCtx); err != nil {
		log.Fatal("seed products", zap.Error(err))
	}
	if err := pageRepo.Seed(seedCtx); err != nil {
		log.Fatal("seed pages", zap.Error(err))
	}
	seedCancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	gateways := buildGateways(cfg, log)

	cartService := service.NewCartService(db, cartRepo, productRepo, log)
	orderService := service.NewOrderService(
		db, cfg.BaseURL, gateways,
		cartService,
		cartRepo,
		productRepo,
		orderRepo,
		eventRepo,
		log,
		m,
	)
	contentService := service.NewContentService(pageRepo)

	srv := server.NewServer(server.Options{
		JWTSecret:       cfg.JWTSecret,
		DomesticCountry: cfg.Checkout.DomesticCountry,
		Gatherer:        reg,
		Log:             log,
	}, cartService, orderService, contentService)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	log.Info("starting HTTP server", zap.String("addr", serverAddr), zap.String("env", cfg.Environment.Name))
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Info("signal received, starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
}

// buildGateways wires each enabled redirect provider. Without credentials a provider runs
// against the built-in payment page.
func buildGateways(cfg *config.Config, log *zap.Logger) service.Gateways {
	gateways := service.Gateways{}

	if cfg.Payments.PayPalEnabled {
		if cfg.Paypal.Configured() {
			gateways[model.PaymentPayPal] = service.NewPaypalGateway(cfg.BaseURL, client.NewPaypalClient(&cfg.Paypal), log)
		} else {
			gateways[model.PaymentPayPal] = service.NewMockGateway(cfg.BaseURL, model.PaymentPayPal)
		}
	}

	if cfg.Payments.BraintreeEnabled {
		if cfg.BrainTree.Configured() {
			gateways[model.PaymentBraintree] = service.NewBraintreeGateway(cfg.BaseURL, client.NewBraintreeClient(&cfg.BrainTree), log)
		} else {
			gateways[model.PaymentBraintree] = service.NewMockGateway(cfg.BaseURL, model.PaymentBraintree)
		}
	}

	for method := range gateways {
		log.Info("payment provider enabled", zap.String("provider", string(method)))
	}
	return gateways
}
