package httpserver

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/logging"
	middleware "github.com/Skotchmaster/storefront/internal/middleware/auth"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/transport"
	"github.com/Skotchmaster/storefront/internal/validate"
)

// PaymentHTTP serves provider redirects and the card intent endpoints.
// Redirect handlers always answer with a 302 to the storefront.
type PaymentHTTP struct {
	Svc         *service.OrderService
	Validator   *validate.Validator
	FrontendURL string
}

func (h *PaymentHTTP) successURL(orderID string) string {
	return strings.TrimRight(h.FrontendURL, "/") + "/payment-success?" + url.Values{"orderId": {orderID}}.Encode()
}

func (h *PaymentHTTP) failureURL(orderID, reason string) string {
	q := url.Values{"reason": {reason}}
	if orderID != "" {
		q.Set("orderId", orderID)
	}
	return strings.TrimRight(h.FrontendURL, "/") + "/payment-failure?" + q.Encode()
}

// optionalUser parses the userId a provider echoes back; absent means unchecked.
func optionalUser(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}

func (h *PaymentHTTP) finish(c echo.Context, o *models.Order, err error, event string) error {
	l := logging.FromContext(c.Request().Context()).With("handler", event)
	orderID := c.QueryParam("orderId")
	if err != nil {
		_ = toHTTP(l, event+"_error", err)
		return c.Redirect(http.StatusFound, h.failureURL(orderID, "verification_failed"))
	}
	if o.PaymentStatus != models.PaymentStatusPaid {
		l.Warn(event+"_unpaid", "order_id", o.ID.String(), "status", string(o.Status))
		return c.Redirect(http.StatusFound, h.failureURL(o.ID.String(), "payment_failed"))
	}
	l.Info(event+"_paid", "order_id", o.ID.String())
	return c.Redirect(http.StatusFound, h.successURL(o.ID.String()))
}

func (h *PaymentHTTP) PayPalSuccess(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.paypal_success")

	orderID, err := uuid.Parse(c.QueryParam("orderId"))
	if err != nil {
		l.Warn("paypal_success_error", "status", 302, "reason", "bad orderId", "error", err)
		return c.Redirect(http.StatusFound, h.failureURL("", "invalid_order"))
	}
	userID, err := optionalUser(c.QueryParam("userId"))
	if err != nil {
		l.Warn("paypal_success_error", "status", 302, "reason", "bad userId", "error", err)
		return c.Redirect(http.StatusFound, h.failureURL(orderID.String(), "invalid_user"))
	}

	o, err := h.Svc.ConfirmPayPal(ctx, orderID, c.QueryParam("paymentId"), c.QueryParam("PayerID"), userID)
	return h.finish(c, o, err, "paypal_confirm")
}

func (h *PaymentHTTP) PayPalCancel(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.paypal_cancel")

	orderID, err := uuid.Parse(c.QueryParam("orderId"))
	if err != nil {
		l.Warn("paypal_cancel_error", "status", 302, "reason", "bad orderId", "error", err)
		return c.Redirect(http.StatusFound, h.failureURL("", "cancelled"))
	}
	userID, err := uuid.Parse(c.QueryParam("userId"))
	if err != nil {
		l.Warn("paypal_cancel_error", "status", 302, "reason", "bad userId", "error", err)
		return c.Redirect(http.StatusFound, h.failureURL(orderID.String(), "cancelled"))
	}
	if _, err := h.Svc.AbandonPayment(ctx, orderID, userID, c.QueryParam("token")); err != nil {
		_ = toHTTP(l, "paypal_cancel_error", err)
	}
	return c.Redirect(http.StatusFound, h.failureURL(orderID.String(), "cancelled"))
}

func (h *PaymentHTTP) KhaltiComplete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.khalti_complete")

	orderID, err := uuid.Parse(c.QueryParam("orderId"))
	if err != nil {
		l.Warn("khalti_complete_error", "status", 302, "reason", "bad orderId", "error", err)
		return c.Redirect(http.StatusFound, h.failureURL("", "invalid_order"))
	}
	userID, err := optionalUser(c.QueryParam("userId"))
	if err != nil {
		l.Warn("khalti_complete_error", "status", 302, "reason", "bad userId", "error", err)
		return c.Redirect(http.StatusFound, h.failureURL(orderID.String(), "invalid_user"))
	}

	o, err := h.Svc.ConfirmKhalti(ctx, orderID, c.QueryParam("pidx"), userID)
	return h.finish(c, o, err, "khalti_confirm")
}

func (h *PaymentHTTP) CreateIntent(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.create_intent")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	key, err := idempotencyKey(c)
	if err != nil {
		return err
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}

	var req transport.CreateIntentRequest
	if err := h.Validator.Decode(validate.IntentCreate, body, &req); err != nil {
		return toHTTP(l, "create_intent_error", err)
	}
	req.IdempotencyKey = key

	res, err := h.Svc.CreateIntent(ctx, userID, req)
	if err != nil {
		return toHTTP(l, "create_intent_error", err)
	}

	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	return c.JSON(code, transport.IntentResponse{
		IntentID:     res.Order.PaymentID,
		ClientSecret: res.ClientSecret,
		OrderID:      res.Order.ID,
	})
}

func (h *PaymentHTTP) ConfirmIntent(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.confirm_intent")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}

	var req transport.ConfirmIntentRequest
	if err := h.Validator.Decode(validate.IntentConfirm, body, &req); err != nil {
		return toHTTP(l, "confirm_intent_error", err)
	}

	o, err := h.Svc.ConfirmIntent(ctx, userID, req.IntentID)
	if err != nil {
		return toHTTP(l, "confirm_intent_error", err)
	}
	if o.PaymentStatus != models.PaymentStatusPaid {
		l.Warn("confirm_intent_unpaid", "status", 400, "order_id", o.ID.String())
		return echo.NewHTTPError(http.StatusBadRequest, "payment was not completed")
	}
	return c.JSON(http.StatusOK, transport.OrderResponse{Message: "Payment confirmed", Order: o})
}
