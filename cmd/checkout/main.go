// Command checkout drives one scripted checkout against a running storefront backend: fill
// the cart, enter a shipping address, accept the legal documents, pay and reconcile.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-checkout/internal/cart"
	"storefront-checkout/internal/checkout"
	"storefront-checkout/internal/client"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/consent"
	"storefront-checkout/internal/logger"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/middleware"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/orderstatus"
	"storefront-checkout/internal/payment"
	"storefront-checkout/internal/store"
	"storefront-checkout/internal/validation"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	method := flag.String("method", string(model.PaymentCashOnDelivery), "payment method: cash_on_delivery, paypal or braintree")
	product := flag.String("product", "mug-classic", "product id to buy")
	variant := flag.String("variant", "", "product variant id")
	qty := flag.Int("qty", 1, "quantity")
	outcome := flag.String("outcome", string(model.OutcomeSuccess), "provider outcome for redirect methods")
	user := flag.String("user", "", "log in as this user id before checking out")
	resume := flag.Bool("resume", false, "only resume a pending provider payment")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, options{
		method:  model.PaymentMethod(*method),
		product: *product,
		variant: *variant,
		qty:     *qty,
		outcome: model.ProviderOutcome(*outcome),
		user:    *user,
		resume:  *resume,
	}); err != nil {
		log.Error("checkout failed", zap.Error(err))
		os.Exit(1)
	}
}

type options struct {
	method  model.PaymentMethod
	product string
	variant string
	qty     int
	outcome model.ProviderOutcome
	user    string
	resume  bool
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, opts options) error {
	db, err := store.Open(cfg.Storefront.StoragePath)
	if err != nil {
		return err
	}

	var cache store.CartCache = store.NewSQLCartCache(db)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		cache = store.NewRedisCartCache(rdb)
	}

	sessionID, err := store.NewSessionStore(db).SessionID(ctx)
	if err != nil {
		return err
	}

	identity := cart.Identity{SessionID: sessionID}
	if opts.user != "" {
		token, err := middleware.IssueToken(cfg.JWTSecret, opts.user, time.Hour)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		identity.UserID = opts.user
		identity.Token = token
	}

	m := metrics.NewMetrics(prometheus.NewRegistry())
	api := client.NewStorefrontClient(cfg.Storefront, log)

	carts := cart.NewSynchronizer(api, cache, log, m)
	carts.SetIdentity(identity)
	if _, err := carts.Load(ctx); err != nil {
		return fmt.Errorf("load cart: %w", err)
	}

	advertised, err := api.PaymentMethods(ctx)
	if err != nil {
		log.Warn("payment methods unavailable, offering cash on delivery only", zap.Error(err))
	}

	orch := checkout.NewOrchestrator(checkout.Deps{
		Backend:   api,
		Cart:      carts,
		Gate:      consent.NewGate(api),
		Selector:  payment.NewSelector(advertised),
		Resolver:  orderstatus.NewResolver(api, cfg.Checkout, log, m),
		Pending:   store.NewPendingPaymentStore(db),
		Validator: validation.New(cfg.Checkout.DomesticCountry),
		Log:       log,
		Metrics:   m,
		ReturnURL: cfg.Storefront.ReturnURL,
	})

	state, err := orch.Resume(ctx)
	switch {
	case errors.Is(err, store.ErrNoPendingPayment):
		if opts.resume {
			log.Info("nothing to resume")
			return nil
		}
		state, err = placeOrder(ctx, orch, carts, opts)
	case err != nil:
		return err
	}
	if err != nil {
		report(log, state)
		return err
	}

	if awaiting, ok := state.(checkout.AwaitingProvider); ok {
		state, err = payAtProvider(ctx, api, orch, awaiting, opts.outcome, log)
	}
	report(log, state)
	return err
}

func placeOrder(ctx context.Context, orch *checkout.Orchestrator, carts *cart.Synchronizer, opts options) (checkout.State, error) {
	snap, err := carts.Add(ctx, opts.product, opts.variant, opts.qty)
	if err != nil {
		return orch.State(), fmt.Errorf("add to cart: %w", err)
	}
	if snap.IsEmpty() {
		return orch.State(), fmt.Errorf("product %s is not available", opts.product)
	}

	if err := orch.SetShipping(fakeAddress()); err != nil {
		return orch.State(), fmt.Errorf("shipping address: %w", err)
	}
	if err := orch.SelectPayment(opts.method); err != nil {
		return orch.State(), fmt.Errorf("select payment: %w", err)
	}

	gate := orch.Consent()
	for _, doc := range consent.Documents {
		page, err := gate.Open(ctx, doc)
		if err != nil {
			return orch.State(), err
		}
		// the whole document "fits" the viewer, which counts as reading to the end
		size := float64(len(page.Body))
		if _, err := gate.ReportScroll(doc, consent.ScrollPosition{Viewport: size, Content: size}); err != nil {
			return orch.State(), err
		}
		if err := gate.Accept(doc); err != nil {
			return orch.State(), err
		}
	}

	return orch.Submit(ctx)
}

// payAtProvider plays the shopper on the provider page and then returns to the storefront.
func payAtProvider(
	ctx context.Context,
	api client.StorefrontClient,
	orch *checkout.Orchestrator,
	awaiting checkout.AwaitingProvider,
	outcome model.ProviderOutcome,
	log *zap.Logger,
) (checkout.State, error) {
	h := awaiting.Handle
	log.Info("redirecting to provider",
		zap.String("provider", string(h.Provider)),
		zap.String("url", h.RedirectURL))

	res, err := api.SubmitProviderOutcome(ctx, h.Provider, h.OrderID, outcome, nil)
	if err != nil {
		return awaiting, fmt.Errorf("provider page: %w", err)
	}

	return orch.HandleProviderReturn(ctx, checkout.ProviderReturn{
		Provider: h.Provider,
		OrderID:  res.OrderID,
		Outcome:  res.Outcome,
	})
}

func fakeAddress() model.ShippingAddress {
	return model.ShippingAddress{
		Name:        gofakeit.Name(),
		Email:       gofakeit.Email(),
		AddressLine: gofakeit.Street(),
		City:        gofakeit.City(),
		Region:      gofakeit.RandomString(validation.Regions["ID"]),
		PostalCode:  gofakeit.Numerify("#####"),
		Country:     "ID",
		Phone:       "08" + gofakeit.Numerify("##########"),
	}
}

func report(log *zap.Logger, state checkout.State) {
	fields := []zap.Field{zap.String("state", state.Name())}
	switch s := state.(type) {
	case checkout.Resolved:
		fields = append(fields,
			zap.String("order_id", s.OrderID),
			zap.String("status", string(s.Status)),
			zap.String("payment_method", string(s.Method)))
	case checkout.Failed:
		fields = append(fields,
			zap.String("detail", s.Detail),
			zap.String("code", s.Code),
			zap.Bool("retryable", s.Retryable))
	case checkout.AwaitingProvider:
		fields = append(fields,
			zap.String("order_id", s.Handle.OrderID),
			zap.String("redirect_url", s.Handle.RedirectURL))
	case checkout.Unconfirmed:
		fields = append(fields, zap.String("order_id", s.OrderID))
	case checkout.Closed:
		fields = append(fields,
			zap.String("order_id", s.OrderID),
			zap.String("status", string(s.Status)))
	case checkout.ShippingForm:
		if len(s.Errors) > 0 {
			fields = append(fields, zap.Error(s.Errors))
		}
	}
	log.Info("checkout finished", fields...)
}
