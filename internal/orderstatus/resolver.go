// Package orderstatus confirms an order's status after checkout, by direct read or by
// watching the user's recent orders.
package orderstatus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/model"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const recentPageSize = 20

var ErrTimeout = errors.New("timed out waiting for order status")

type Backend interface {
	GetOrder(ctx context.Context, orderID string) (*dto.OrderResponse, error)
	ListMyOrders(ctx context.Context, page, pageSize int) (*dto.OrderListResponse, error)
}

type Resolver struct {
	backend  Backend
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewResolver(backend Backend, cfg config.Checkout, log *zap.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{
		backend:  backend,
		interval: cfg.PollInterval,
		timeout:  cfg.PollTimeout,
		log:      log,
		metrics:  m,
	}
}

// Get reads the order once.
func (r *Resolver) Get(ctx context.Context, orderID string) (*dto.OrderResponse, error) {
	order, err := r.backend.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return order, nil
}

// LeftPendingPayment is the usual Await condition after a successful provider interaction.
func LeftPendingPayment(s model.OrderStatus) bool {
	return s != model.OrderPendingPayment
}

// Accepted reports whether s means the store took the order: paid, or cash on delivery.
func Accepted(s model.OrderStatus) bool {
	return s == model.OrderPendingAcceptance || s == model.OrderAccepted
}

// Await polls the order at a fixed interval until done accepts its status. It gives up with
// ErrTimeout once the configured timeout elapses.
func (r *Resolver) Await(ctx context.Context, orderID string, done func(model.OrderStatus) bool) (*dto.OrderResponse, error) {
	var found *dto.OrderResponse
	err := r.poll(ctx, func(ctx context.Context) (bool, error) {
		order, err := r.backend.GetOrder(ctx, orderID)
		if err != nil {
			return false, err
		}
		if done(order.Status) {
			found = order
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("await order %s: %w", orderID, err)
	}
	return found, nil
}

// Known returns the ids currently visible in the user's recent orders, as the baseline
// for Discover.
func (r *Resolver) Known(ctx context.Context) (map[string]bool, error) {
	list, err := r.backend.ListMyOrders(ctx, 1, recentPageSize)
	if err != nil {
		return nil, fmt.Errorf("list recent orders: %w", err)
	}
	known := make(map[string]bool, len(list.Items))
	for _, o := range list.Items {
		known[o.ID] = true
	}
	return known, nil
}

// Discover polls the recent orders listing until an order not in known appears.
func (r *Resolver) Discover(ctx context.Context, known map[string]bool) (*dto.OrderResponse, error) {
	var found *dto.OrderResponse
	err := r.poll(ctx, func(ctx context.Context) (bool, error) {
		list, err := r.backend.ListMyOrders(ctx, 1, recentPageSize)
		if err != nil {
			return false, err
		}
		for i := range list.Items {
			if !known[list.Items[i].ID] {
				found = &list.Items[i]
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover new order: %w", err)
	}
	return found, nil
}

// poll runs check at the configured interval. Transport failures and 5xx answers are
// retried; a 4xx ends the poll since asking again will not change it.
func (r *Resolver) poll(ctx context.Context, check func(context.Context) (bool, error)) error {
	pollCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(r.interval), 1)
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(limiter.Reserve().Delay())
		select {
		case <-pollCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.metrics.StatusPollTimeout()
			return ErrTimeout
		case <-timer.C:
		}

		ok, err := check(pollCtx)
		if ok {
			return nil
		}
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.Status < 500 {
				return err
			}
			r.log.Debug("order status poll failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
	}
}
