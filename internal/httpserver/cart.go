package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/logging"
	middleware "github.com/Skotchmaster/storefront/internal/middleware/auth"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/transport"
	"github.com/Skotchmaster/storefront/internal/validate"
)

type CartHTTP struct {
	Svc       *service.CartService
	Orders    *service.OrderService
	Validator *validate.Validator
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.get_cart")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	cart, err := h.Svc.GetCart(ctx, userID)
	if err != nil {
		return toHTTP(l, "get_cart_error", err)
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *CartHTTP) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.add")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}

	var req transport.AddToCartRequest
	if err := h.Validator.Decode(validate.CartAdd, body, &req); err != nil {
		return toHTTP(l, "add_to_cart_error", err)
	}

	cart, err := h.Svc.AddItem(ctx, userID, req)
	if err != nil {
		return toHTTP(l, "add_to_cart_error", err)
	}

	l.Info("cart_item_added", "product_id", req.ProductID.String())
	return c.JSON(http.StatusOK, cart)
}

func (h *CartHTTP) UpdateCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.update")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}

	var req transport.UpdateCartRequest
	if err := h.Validator.Decode(validate.CartUpdate, body, &req); err != nil {
		return toHTTP(l, "update_cart_error", err)
	}

	cart, err := h.Svc.UpdateItemQuantity(ctx, userID, req)
	if err != nil {
		return toHTTP(l, "update_cart_error", err)
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *CartHTTP) RemoveFromCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.remove")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	itemID, err := uuid.Parse(c.Param("cartItemId"))
	if err != nil {
		l.Warn("remove_from_cart_error", "status", 400, "reason", "bad cartItemId", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid cartItemId")
	}

	cart, err := h.Svc.RemoveItem(ctx, userID, itemID)
	if err != nil {
		return toHTTP(l, "remove_from_cart_error", err)
	}
	return c.JSON(http.StatusOK, cart)
}

// PlaceOrder checks out the selected cart lines.
func (h *CartHTTP) PlaceOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.place_order")

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

	var req transport.PlaceOrderRequest
	if err := h.Validator.Decode(validate.CartPlaceOrder, body, &req); err != nil {
		return toHTTP(l, "place_order_error", err)
	}
	req.IdempotencyKey = key

	res, err := h.Orders.PlaceOrderFromCart(ctx, userID, req)
	if err != nil {
		return toHTTP(l, "place_order_error", err)
	}
	return placed(c, res)
}

func placed(c echo.Context, res *service.PlaceResult) error {
	out := transport.PlaceOrderResponse{
		Message:      "Order placed successfully",
		Order:        res.Order,
		ClientSecret: res.ClientSecret,
	}
	switch res.Order.PaymentMethod {
	case models.PaymentPayPal:
		out.ApprovalURL = res.RedirectURL
	default:
		out.PaymentURL = res.RedirectURL
	}

	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	return c.JSON(code, out)
}
