package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/handler"
	"storefront-checkout/internal/middleware"
	"storefront-checkout/internal/service"
	"storefront-checkout/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Options struct {
	JWTSecret       string
	DomesticCountry string
	Gatherer        prometheus.Gatherer
	Log             *zap.Logger
}

type Server struct {
	echo            *echo.Echo
	log             *zap.Logger
	gatherer        prometheus.Gatherer
	jwtSecret       string
	cartHandler     *handler.CartHandler
	orderHandler    *handler.OrderHandler
	providerHandler *handler.ProviderHandler
	contentHandler  *handler.ContentHandler
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func NewServer(
	opts Options,
	cartService service.CartService,
	orderService service.OrderService,
	contentService service.ContentService,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validation.New(opts.DomesticCountry)}

	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		echo:            e,
		log:             log,
		gatherer:        opts.Gatherer,
		jwtSecret:       opts.JWTSecret,
		cartHandler:     handler.NewCartHandler(cartService),
		orderHandler:    handler.NewOrderHandler(orderService),
		providerHandler: handler.NewProviderHandler(orderService),
		contentHandler:  handler.NewContentHandler(contentService),
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			log.Info("request", fields...)
			return nil
		},
	}))
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	if s.gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// -------- provider pages / callbacks --------
	// reached by the shopper's browser, so no caller identity
	api.GET("/mock-pay/:provider/:orderID", s.providerHandler.PaymentPage)
	api.POST("/mock-pay/:provider/:orderID/:outcome", s.providerHandler.SubmitOutcome)
	api.GET("/payments/paypal/return", s.providerHandler.PaypalReturn)

	shop := api.Group("", middleware.Identify(s.jwtSecret))

	shop.GET("/cart", s.cartHandler.GetCart)
	shop.POST("/cart/sync", s.cartHandler.SyncCart)

	shop.GET("/payments/methods", s.orderHandler.PaymentMethods)

	shop.POST("/orders/checkout", s.orderHandler.Checkout)
	shop.GET("/orders/me", s.orderHandler.ListMine)
	shop.GET("/orders/:orderID", s.orderHandler.GetOrder)
	shop.POST("/orders/:orderID/retry-payment", s.orderHandler.RetryPayment)

	shop.GET("/content/pages/:slug", s.contentHandler.GetPage)
}

// handleError renders every failure as an ErrorResponse. Business errors carry their own
// status and user facing detail; anything unexpected is logged and hidden.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := dto.ErrorResponse{Detail: "Internal server error", Code: "internal_error"}

	var (
		svcErr   *service.Error
		fieldErr validator.ValidationErrors
		httpErr  *echo.HTTPError
	)
	switch {
	case errors.As(err, &svcErr):
		status = svcErr.Status
		body = dto.ErrorResponse{Detail: svcErr.Detail, Code: svcErr.Code}
	case errors.As(err, &fieldErr):
		status = http.StatusBadRequest
		body = dto.ErrorResponse{Detail: validation.Errors(err).Error(), Code: "validation_error"}
	case errors.As(err, &httpErr):
		status = httpErr.Code
		body = dto.ErrorResponse{Detail: fmt.Sprint(httpErr.Message)}
	default:
		s.log.Error("unhandled request error",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.log.Error("write error response", zap.Error(err))
	}
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
