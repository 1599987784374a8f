package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/ipaforge/ipaforge/internal/ids"
	"github.com/ipaforge/ipaforge/internal/payments"
)

// CheckoutHandler forwards checkout requests to the payment provider. It is
// stateless and shares nothing with the bot conversation.
type CheckoutHandler struct {
	logger   *slog.Logger
	payments *payments.Client
	validate *validator.Validate
	ids      ids.Generator
}

func NewCheckoutHandler(log *slog.Logger, client *payments.Client, gen ids.Generator) *CheckoutHandler {
	return &CheckoutHandler{
		logger:   log.With(slog.String("handler", "checkout")),
		payments: client,
		validate: validator.New(),
		ids:      gen,
	}
}

func (h *CheckoutHandler) Register(e *echo.Echo) {
	e.POST("/create-checkout", h.Create)
}

func (h *CheckoutHandler) Create(c echo.Context) error {
	var req payments.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "amount and currency are required")
	}
	if req.OrderID == "" {
		req.OrderID = h.ids.UUID()
	}

	sess, err := h.payments.CreateCheckout(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("checkout creation failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "checkout creation failed")
	}
	return c.JSON(http.StatusOK, sess)
}
