package handler

import (
	"net/http"

	"storefront-checkout/internal/service"

	"github.com/labstack/echo/v4"
)

type ContentHandler struct {
	contentService service.ContentService
}

func NewContentHandler(contentService service.ContentService) *ContentHandler {
	return &ContentHandler{contentService: contentService}
}

func (h *ContentHandler) GetPage(c echo.Context) error {
	page, err := h.contentService.GetPage(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, page)
}
