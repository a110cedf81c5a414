package handler

import (
	"net/http"
	"strconv"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/middleware"
	"storefront-checkout/internal/service"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) PaymentMethods(c echo.Context) error {
	return c.JSON(http.StatusOK, h.orderService.PaymentMethods(c.Request().Context()))
}

func (h *OrderHandler) Checkout(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	result, err := h.orderService.Checkout(ctx, middleware.CallerFrom(c), &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}

func (h *OrderHandler) RetryPayment(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.RetryPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	result, err := h.orderService.RetryPayment(ctx, middleware.CallerFrom(c), c.Param("orderID"), &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()

	order, err := h.orderService.GetOrder(ctx, middleware.CallerFrom(c), c.Param("orderID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ListMine(c echo.Context) error {
	ctx := c.Request().Context()

	// bad numbers fall back to the defaults
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	orders, err := h.orderService.ListMine(ctx, middleware.CallerFrom(c), page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, orders)
}
