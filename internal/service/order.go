package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var errEventProcessed = errors.New("provider event already processed")

type OrderService interface {
	PaymentMethods(ctx context.Context) *dto.PaymentMethodsResponse
	Checkout(ctx context.Context, caller Caller, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error)
	RetryPayment(ctx context.Context, caller Caller, orderID string, req *dto.RetryPaymentRequest) (*dto.CheckoutResponse, error)
	GetOrder(ctx context.Context, caller Caller, orderID string) (*dto.OrderResponse, error)
	ListMine(ctx context.Context, caller Caller, page, pageSize int) (*dto.OrderListResponse, error)

	// ApplyProviderOutcome records what a redirect provider reported for an order. Replays of
	// an already applied outcome change nothing.
	ApplyProviderOutcome(
		ctx context.Context,
		provider model.PaymentMethod,
		orderID string,
		outcome model.ProviderOutcome,
		nonce string,
	) (*dto.ProviderOutcomeResponse, error)
}

type orderServiceImpl struct {
	db          *gorm.DB
	baseURL     string
	gateways    Gateways
	cartService CartService
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	eventRepo   repository.ProviderEventRepository
	log         *zap.Logger
	metrics     *metrics.Metrics
}

func NewOrderService(
	db *gorm.DB,
	baseURL string,
	gateways Gateways,
	cartService CartService,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	eventRepo repository.ProviderEventRepository,
	log *zap.Logger,
	m *metrics.Metrics,
) OrderService {
	return &orderServiceImpl{
		db:          db,
		baseURL:     baseURL,
		gateways:    gateways,
		cartService: cartService,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		eventRepo:   eventRepo,
		log:         log,
		metrics:     m,
	}
}

func (s *orderServiceImpl) PaymentMethods(_ context.Context) *dto.PaymentMethodsResponse {
	methods := []model.PaymentMethod{model.PaymentCashOnDelivery}
	for _, m := range []model.PaymentMethod{model.PaymentPayPal, model.PaymentBraintree} {
		if _, ok := s.gateways[m]; ok {
			methods = append(methods, m)
		}
	}
	return &dto.PaymentMethodsResponse{Methods: methods}
}

func (s *orderServiceImpl) methodEnabled(method model.PaymentMethod) bool {
	if method == model.PaymentCashOnDelivery {
		return true
	}
	_, ok := s.gateways[method]
	return ok
}

func (s *orderServiceImpl) Checkout(ctx context.Context, caller Caller, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	owner, err := s.cartService.ResolveOwner(ctx, caller)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.orderRepo.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		switch {
		case err == nil:
			if existing.Owner != owner || existing.PaymentMethod != req.PaymentMethod {
				return nil, ErrIdempotencyConflict
			}
			return s.replay(ctx, existing)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, fmt.Errorf("find order by idempotency key: %w", err)
		}
	}

	if !req.Consents.Terms || !req.Consents.Privacy {
		return nil, ErrConsentRequired
	}
	if !s.methodEnabled(req.PaymentMethod) {
		return nil, ErrPaymentMethodUnavailable
	}

	cartItems, err := s.cartRepo.Get(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	ids := make([]string, len(cartItems))
	for i, item := range cartItems {
		ids[i] = item.ProductID
	}
	found, err := s.productRepo.FindMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	products := indexProducts(found)

	orderID := uuid.NewString()
	total := decimal.Zero
	currency := ""
	var orderItems []*model.OrderItem
	for _, item := range cartItems {
		p, ok := products[item.ProductID]
		if !ok {
			continue
		}
		if !p.AllowBackorder && item.Quantity > p.Stock {
			return nil, ErrInsufficientStock
		}
		if currency == "" {
			currency = p.Currency
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		orderItems = append(orderItems, &model.OrderItem{
			OrderID:   orderID,
			ProductID: p.ID,
			VariantID: item.VariantID,
			Name:      p.Name,
			Quantity:  item.Quantity,
			UnitPrice: p.Price,
			Currency:  p.Currency,
		})
	}
	if len(orderItems) == 0 {
		return nil, ErrEmptyCart
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = s.baseURL + "/checkout/return"
	}

	status := model.OrderPendingPayment
	if req.PaymentMethod == model.PaymentCashOnDelivery {
		status = model.OrderPendingAcceptance
	}

	order := &model.Order{
		ID:             orderID,
		Owner:          owner,
		UserID:         caller.UserID,
		Status:         status,
		PaymentMethod:  req.PaymentMethod,
		Amount:         total,
		Currency:       currency,
		IdempotencyKey: key,
		ReturnURL:      returnURL,
		ShipName:       req.Shipping.Name,
		ShipEmail:      req.Shipping.Email,
		ShipAddress:    req.Shipping.AddressLine,
		ShipCity:       req.Shipping.City,
		ShipRegion:     req.Shipping.Region,
		ShipPostalCode: req.Shipping.PostalCode,
		ShipCountry:    req.Shipping.Country,
		ShipPhone:      req.Shipping.Phone,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("store order in db: %w", err)
		}
		if err := s.orderRepo.CreateOrderItems(ctx, tx, orderItems); err != nil {
			return fmt.Errorf("store order items in db: %w", err)
		}

		// redirect orders reserve nothing until the provider confirms
		if order.PaymentMethod.IsRedirect() {
			return nil
		}

		for _, item := range orderItems {
			err := s.productRepo.DecrementStock(ctx, tx, item.ProductID, item.Quantity)
			if errors.Is(err, repository.ErrInsufficientStock) {
				return ErrInsufficientStock
			}
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
		}
		return s.cartRepo.Clear(ctx, tx, owner)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderCreated(string(order.PaymentMethod))
	s.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("payment_method", string(order.PaymentMethod)),
		zap.String("amount", order.Amount.StringFixed(2)))

	if order.PaymentMethod.IsRedirect() {
		if err := s.beginPayment(ctx, order); err != nil {
			return nil, err
		}
	}

	return checkoutResponse(order), nil
}

// replay answers a repeated submission with the order it already created. A redirect order
// whose provider hand-off failed gets another attempt.
func (s *orderServiceImpl) replay(ctx context.Context, order *model.Order) (*dto.CheckoutResponse, error) {
	if order.PaymentMethod.IsRedirect() && order.Status == model.OrderPendingPayment && order.RedirectURL == "" {
		if err := s.beginPayment(ctx, order); err != nil {
			return nil, err
		}
	}
	return checkoutResponse(order), nil
}

func (s *orderServiceImpl) beginPayment(ctx context.Context, order *model.Order) error {
	gateway, ok := s.gateways[order.PaymentMethod]
	if !ok {
		return ErrPaymentMethodUnavailable
	}

	redirectURL, providerRef, err := gateway.Begin(ctx, order)
	if err != nil {
		s.log.Error("begin provider payment failed",
			zap.String("order_id", order.ID),
			zap.String("provider", string(order.PaymentMethod)),
			zap.Error(err))
		return ErrProviderUnavailable
	}

	if err := s.orderRepo.UpdatePayment(ctx, order.ID, providerRef, redirectURL, order.ReturnURL); err != nil {
		return fmt.Errorf("update order payment: %w", err)
	}
	order.ProviderRef = providerRef
	order.RedirectURL = redirectURL
	return nil
}

func checkoutResponse(order *model.Order) *dto.CheckoutResponse {
	return &dto.CheckoutResponse{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		RedirectURL:   order.RedirectURL,
	}
}

func (s *orderServiceImpl) RetryPayment(ctx context.Context, caller Caller, orderID string, req *dto.RetryPaymentRequest) (*dto.CheckoutResponse, error) {
	order, err := s.ownedOrder(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderPendingPayment || !order.PaymentMethod.IsRedirect() {
		return nil, ErrOrderNotPayable
	}
	if !s.methodEnabled(order.PaymentMethod) {
		return nil, ErrPaymentMethodUnavailable
	}
	if req != nil && req.ReturnURL != "" {
		order.ReturnURL = req.ReturnURL
	}

	if err := s.beginPayment(ctx, order); err != nil {
		return nil, err
	}

	s.log.Info("payment retried",
		zap.String("order_id", order.ID),
		zap.String("provider_ref", order.ProviderRef))
	return checkoutResponse(order), nil
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, caller Caller, orderID string) (*dto.OrderResponse, error) {
	order, err := s.ownedOrder(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}
	resp := orderResponse(order)
	return &resp, nil
}

// ownedOrder loads an order the caller may see. Someone else's order reads as not found.
func (s *orderServiceImpl) ownedOrder(ctx context.Context, caller Caller, orderID string) (*model.Order, error) {
	if caller.Owner() == "" {
		return nil, ErrMissingIdentity
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}

	switch {
	case caller.UserID != "" && (order.UserID == caller.UserID || order.Owner == caller.Owner()):
		return order, nil
	case caller.SessionID != "" && order.Owner == caller.SessionOwner():
		return order, nil
	}
	return nil, ErrOrderNotFound
}

func (s *orderServiceImpl) ListMine(ctx context.Context, caller Caller, page, pageSize int) (*dto.OrderListResponse, error) {
	if caller.Owner() == "" {
		return nil, ErrMissingIdentity
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	var (
		orders []*model.Order
		total  int64
		err    error
	)
	if caller.UserID != "" {
		orders, total, err = s.orderRepo.ListByUser(ctx, caller.UserID, page, pageSize)
	} else {
		orders, total, err = s.orderRepo.ListByOwner(ctx, caller.SessionOwner(), page, pageSize)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	resp := &dto.OrderListResponse{
		Items:    make([]dto.OrderResponse, len(orders)),
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}
	for i, o := range orders {
		resp.Items[i] = orderResponse(o)
	}
	return resp, nil
}

func orderResponse(order *model.Order) dto.OrderResponse {
	return dto.OrderResponse{
		ID:            order.ID,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		Total:         order.Amount,
		Currency:      order.Currency,
		CreatedAt:     order.CreatedAt,
	}
}

func (s *orderServiceImpl) ApplyProviderOutcome(
	ctx context.Context,
	provider model.PaymentMethod,
	orderID string,
	outcome model.ProviderOutcome,
	nonce string,
) (*dto.ProviderOutcomeResponse, error) {
	if !outcome.Valid() {
		return nil, ErrInvalidOutcome
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if order.PaymentMethod != provider {
		return nil, ErrProviderMismatch
	}
	if order.Status != model.OrderPendingPayment {
		return s.outcomeResponse(order, outcome), nil
	}

	eventID := order.ProviderRef + ":" + string(outcome)
	processed, err := s.eventRepo.Exists(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("check provider event: %w", err)
	}
	if processed {
		return s.outcomeResponse(order, outcome), nil
	}

	gateway, ok := s.gateways[provider]
	if !ok {
		return nil, ErrPaymentMethodUnavailable
	}
	applied, err := gateway.Complete(ctx, order, outcome, nonce)
	if err != nil {
		s.log.Error("complete provider payment failed",
			zap.String("order_id", order.ID),
			zap.String("provider", string(provider)),
			zap.Error(err))
		return nil, ErrProviderUnavailable
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := s.eventRepo.MarkProcessed(ctx, tx, eventID, order.ID, applied)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errEventProcessed
		}
		if err != nil {
			return fmt.Errorf("mark provider event processed: %w", err)
		}
		if applied != model.OutcomeSuccess {
			return nil
		}

		moved, err := s.orderRepo.MarkPendingAcceptance(ctx, tx, order.ID)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		if !moved {
			return nil
		}
		order.Status = model.OrderPendingAcceptance

		items, err := s.orderRepo.GetOrderItems(ctx, tx, order.ID)
		if err != nil {
			return fmt.Errorf("get order items: %w", err)
		}
		for _, item := range items {
			err := s.productRepo.DecrementStock(ctx, tx, item.ProductID, item.Quantity)
			if errors.Is(err, repository.ErrInsufficientStock) {
				// payment already settled; fulfilment sorts out the shortfall
				s.log.Warn("paid order oversells product",
					zap.String("order_id", order.ID),
					zap.String("product_id", item.ProductID),
					zap.Int("quantity", item.Quantity))
				continue
			}
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
		}
		return s.cartRepo.Clear(ctx, tx, order.Owner)
	})
	if errors.Is(err, errEventProcessed) {
		return s.outcomeResponse(order, outcome), nil
	}
	if err != nil {
		return nil, err
	}

	s.metrics.ProviderOutcome(string(provider), string(applied))
	s.log.Info("provider outcome applied",
		zap.String("order_id", order.ID),
		zap.String("provider", string(provider)),
		zap.String("reported", string(outcome)),
		zap.String("applied", string(applied)),
		zap.String("status", string(order.Status)))

	return s.outcomeResponse(order, applied), nil
}

// outcomeResponse points the shopper back at the storefront page the order was placed from.
func (s *orderServiceImpl) outcomeResponse(order *model.Order, outcome model.ProviderOutcome) *dto.ProviderOutcomeResponse {
	redirect := order.ReturnURL
	if redirect == "" {
		redirect = s.baseURL + "/checkout/return"
	}
	if u, err := url.Parse(redirect); err == nil {
		q := u.Query()
		q.Set("order_id", order.ID)
		q.Set("provider", string(order.PaymentMethod))
		q.Set("outcome", string(outcome))
		u.RawQuery = q.Encode()
		redirect = u.String()
	}

	return &dto.ProviderOutcomeResponse{
		OrderID:     order.ID,
		Outcome:     outcome,
		Status:      order.Status,
		RedirectURL: redirect,
	}
}
