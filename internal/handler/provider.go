package handler

import (
	"html/template"
	"net/http"
	"strings"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/service"

	"github.com/labstack/echo/v4"
)

var mockPayPage = template.Must(template.New("mock-pay").Parse(`
	<!DOCTYPE html>
	<html>
	<head>
		<meta charset="utf-8">
		<title>{{.Provider}} payment</title>
		<style>
			body {
				font-family: Arial, sans-serif;
				text-align: center;
				margin-top: 80px;
			}
			form {
				display: inline-block;
				margin: 0 8px;
			}
		</style>
	</head>
	<body>
		<h2>Pay for order {{.OrderID}}</h2>
		<p>Choose how this {{.Provider}} payment ends.</p>
		{{range .Outcomes}}
		<form method="post" action="{{$.Action}}/{{.}}">
			<input type="hidden" name="nonce" value="{{$.Nonce}}">
			<button type="submit">{{.}}</button>
		</form>
		{{end}}
	</body>
	</html>
`))

type mockPayView struct {
	Provider model.PaymentMethod
	OrderID  string
	Action   string
	Nonce    string
	Outcomes []model.ProviderOutcome
}

// ProviderHandler serves the provider side of redirect payments: the hosted payment page,
// outcome reports and the PayPal return leg.
type ProviderHandler struct {
	orderService service.OrderService
}

func NewProviderHandler(orderService service.OrderService) *ProviderHandler {
	return &ProviderHandler{orderService: orderService}
}

func providerParam(c echo.Context) (model.PaymentMethod, error) {
	provider := model.PaymentMethod(c.Param("provider"))
	if !provider.IsRedirect() {
		return "", echo.NewHTTPError(http.StatusNotFound, "unknown payment provider")
	}
	return provider, nil
}

func (h *ProviderHandler) PaymentPage(c echo.Context) error {
	provider, err := providerParam(c)
	if err != nil {
		return err
	}

	view := mockPayView{
		Provider: provider,
		OrderID:  c.Param("orderID"),
		Action:   c.Request().URL.Path,
		Outcomes: []model.ProviderOutcome{model.OutcomeSuccess, model.OutcomeDeclined, model.OutcomeCancelled},
	}
	if provider == model.PaymentBraintree {
		view.Nonce = "fake-valid-nonce"
	}

	var sb strings.Builder
	if err := mockPayPage.Execute(&sb, view); err != nil {
		return err
	}
	return c.HTML(http.StatusOK, sb.String())
}

// SubmitOutcome applies a provider outcome. A form post from the payment page is sent on to
// the storefront return page; API callers get the result as JSON.
func (h *ProviderHandler) SubmitOutcome(c echo.Context) error {
	ctx := c.Request().Context()

	provider, err := providerParam(c)
	if err != nil {
		return err
	}

	var req dto.ProviderOutcomeRequest
	form := strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationForm)
	if form {
		req.Nonce = c.FormValue("nonce")
	} else if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	result, err := h.orderService.ApplyProviderOutcome(
		ctx,
		provider,
		c.Param("orderID"),
		model.ProviderOutcome(c.Param("outcome")),
		req.Nonce,
	)
	if err != nil {
		return err
	}

	if form {
		return c.Redirect(http.StatusSeeOther, result.RedirectURL)
	}
	return c.JSON(http.StatusOK, result)
}

// PaypalReturn is where PayPal sends the buyer after approving or cancelling.
func (h *ProviderHandler) PaypalReturn(c echo.Context) error {
	ctx := c.Request().Context()

	orderID := c.QueryParam("order_id")
	if orderID == "" {
		return c.String(http.StatusBadRequest, "missing order id")
	}

	outcome := model.OutcomeSuccess
	if c.QueryParam("cancelled") != "" {
		outcome = model.OutcomeCancelled
	}

	result, err := h.orderService.ApplyProviderOutcome(ctx, model.PaymentPayPal, orderID, outcome, "")
	if err != nil {
		return err
	}

	return c.Redirect(http.StatusFound, result.RedirectURL)
}
