package handler

import (
	"net/http"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/middleware"
	"storefront-checkout/internal/service"

	"github.com/labstack/echo/v4"
)

type CartHandler struct {
	cartService service.CartService
}

func NewCartHandler(cartService service.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

func (h *CartHandler) GetCart(c echo.Context) error {
	ctx := c.Request().Context()

	cart, err := h.cartService.Get(ctx, middleware.CallerFrom(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) SyncCart(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CartSyncRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	cart, err := h.cartService.Sync(ctx, middleware.CallerFrom(c), &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, cart)
}
