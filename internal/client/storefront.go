package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront-checkout/internal/config"
	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/model"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	SessionHeader = "X-Cart-Session"

	breakerFailures = 5
	breakerCooldown = 30 * time.Second
)

// APIError is a non-2xx answer from the storefront backend.
type APIError struct {
	Status int
	Detail string
	Code   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("storefront %d %s: %s", e.Status, e.Code, e.Detail)
	}
	return fmt.Sprintf("storefront %d: %s", e.Status, e.Detail)
}

// BusinessRule reports whether the backend rejected the request on its merits (a 4xx with a
// detail), as opposed to failing to process it.
func (e *APIError) BusinessRule() bool {
	return e.Status >= 400 && e.Status < 500 && e.Detail != ""
}

// Credentials identify the cart and, once logged in, the user on every request.
type Credentials struct {
	SessionID string
	Token     string
}

type StorefrontClient interface {
	SetCredentials(creds Credentials)

	GetCart(ctx context.Context) (*dto.CartResponse, error)
	SyncCart(ctx context.Context, req *dto.CartSyncRequest) (*dto.CartResponse, error)
	PaymentMethods(ctx context.Context) ([]model.PaymentMethod, error)
	Checkout(ctx context.Context, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error)
	RetryPayment(ctx context.Context, orderID string, req *dto.RetryPaymentRequest) (*dto.CheckoutResponse, error)
	GetOrder(ctx context.Context, orderID string) (*dto.OrderResponse, error)
	ListMyOrders(ctx context.Context, page, pageSize int) (*dto.OrderListResponse, error)
	GetPage(ctx context.Context, slug string) (*dto.PageResponse, error)

	// SubmitProviderOutcome plays the buyer on the mock provider page.
	SubmitProviderOutcome(ctx context.Context, provider model.PaymentMethod, orderID string, outcome model.ProviderOutcome, req *dto.ProviderOutcomeRequest) (*dto.ProviderOutcomeResponse, error)
}

type storefrontClientImpl struct {
	httpClient *http.Client
	baseURL    string
	log        *zap.Logger
	breaker    *gobreaker.CircuitBreaker[any]

	mu    sync.RWMutex
	creds Credentials
}

func NewStorefrontClient(cfg config.Storefront, log *zap.Logger) StorefrontClient {
	c := &storefrontClientImpl{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		baseURL: strings.TrimRight(cfg.BackendURL, "/"),
		log:     log,
	}

	c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "storefront",
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		// a business rejection means the backend is healthy
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return c
}

func (c *storefrontClientImpl) SetCredentials(creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
}

func (c *storefrontClientImpl) credentials() Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

func (c *storefrontClientImpl) GetCart(ctx context.Context) (*dto.CartResponse, error) {
	var out dto.CartResponse
	if err := c.guarded(ctx, http.MethodGet, "/cart", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *storefrontClientImpl) SyncCart(ctx context.Context, req *dto.CartSyncRequest) (*dto.CartResponse, error) {
	if req.Items == nil {
		req.Items = []dto.SyncItem{}
	}
	var out dto.CartResponse
	if err := c.guarded(ctx, http.MethodPost, "/cart/sync", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *storefrontClientImpl) PaymentMethods(ctx context.Context) ([]model.PaymentMethod, error) {
	var out dto.PaymentMethodsResponse
	if err := c.guarded(ctx, http.MethodGet, "/payments/methods", nil, &out); err != nil {
		return nil, err
	}
	return out.Methods, nil
}

// Checkout is never routed through the breaker: an open breaker must not be mistaken for a
// rejected order, and the idempotency key already makes a retry safe.
func (c *storefrontClientImpl) Checkout(ctx context.Context, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	var out dto.CheckoutResponse
	if err := c.do(ctx, http.MethodPost, "/orders/checkout", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *storefrontClientImpl) RetryPayment(ctx context.Context, orderID string, req *dto.RetryPaymentRequest) (*dto.CheckoutResponse, error) {
	var out dto.CheckoutResponse
	path := "/orders/" + url.PathEscape(orderID) + "/retry-payment"
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *storefrontClientImpl) GetOrder(ctx context.Context, orderID string) (*dto.OrderResponse, error) {
	var out dto.OrderResponse
	if err := c.guarded(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *storefrontClientImpl) ListMyOrders(ctx context.Context, page, pageSize int) (*dto.OrderListResponse, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var out dto.OrderListResponse
	if err := c.guarded(ctx, http.MethodGet, "/orders/me?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *storefrontClientImpl) GetPage(ctx context.Context, slug string) (*dto.PageResponse, error) {
	var out dto.PageResponse
	if err := c.guarded(ctx, http.MethodGet, "/content/pages/"+url.PathEscape(slug), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *storefrontClientImpl) SubmitProviderOutcome(
	ctx context.Context,
	provider model.PaymentMethod,
	orderID string,
	outcome model.ProviderOutcome,
	req *dto.ProviderOutcomeRequest,
) (*dto.ProviderOutcomeResponse, error) {
	if req == nil {
		req = &dto.ProviderOutcomeRequest{}
	}
	path := fmt.Sprintf("/mock-pay/%s/%s/%s", provider, url.PathEscape(orderID), outcome)

	var out dto.ProviderOutcomeResponse
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// guarded runs a read or cart sync through the circuit breaker.
func (c *storefrontClientImpl) guarded(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("storefront %s %s: %w", method, path, err)
	}
	return err
}

func (c *storefrontClientImpl) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal req payload: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	creds := c.credentials()
	if creds.SessionID != "" {
		req.Header.Set(SessionHeader, creds.SessionID)
	}
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storefront %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errResp dto.ErrorResponse
		// an unreadable error body still yields an APIError, just without detail
		if b, readErr := io.ReadAll(resp.Body); readErr == nil && json.Unmarshal(b, &errResp) == nil {
			apiErr.Detail = errResp.Detail
			apiErr.Code = errResp.Code
		}
		c.log.Debug("storefront request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code))
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
