package httpserver

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/logging"
	middleware "github.com/Skotchmaster/storefront/internal/middleware/auth"
	"github.com/Skotchmaster/storefront/internal/search"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/transport"
	"github.com/Skotchmaster/storefront/internal/util"
	"github.com/Skotchmaster/storefront/internal/validate"
)

type OrderSearcher interface {
	SearchOrders(ctx context.Context, q search.Query) (int64, []search.OrderDoc, error)
}

type OrderHTTP struct {
	Svc       *service.OrderService
	Validator *validate.Validator
	Search    OrderSearcher
}

func orderIDParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("orderId"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid orderId")
	}
	return id, nil
}

// PlaceOrder buys one variant without going through the cart.
func (h *OrderHTTP) PlaceOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.place")

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

	var req transport.CreateOrderRequest
	if err := h.Validator.Decode(validate.OrderPlace, body, &req); err != nil {
		return toHTTP(l, "create_order_error", err)
	}
	req.IdempotencyKey = key

	res, err := h.Svc.CreateOrder(ctx, userID, req)
	if err != nil {
		return toHTTP(l, "create_order_error", err)
	}
	return placed(c, res)
}

func (h *OrderHTTP) CancelOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.cancel")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	orderID, err := orderIDParam(c)
	if err != nil {
		return toHTTP(l, "cancel_order_error", err)
	}

	o, err := h.Svc.CancelOrder(ctx, userID, orderID)
	if err != nil {
		return toHTTP(l, "cancel_order_error", err)
	}
	return c.JSON(http.StatusOK, transport.OrderResponse{Message: "Order cancelled successfully", Order: o})
}

func (h *OrderHTTP) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.get")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	orderID, err := orderIDParam(c)
	if err != nil {
		return toHTTP(l, "get_order_error", err)
	}

	o, err := h.Svc.GetOrder(ctx, userID, orderID)
	if err != nil {
		return toHTTP(l, "get_order_error", err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *OrderHTTP) MyOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.my")

	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	page, err := h.Svc.ListOrders(ctx, userID, util.ParsePaging(c.QueryParam("page"), c.QueryParam("size")))
	if err != nil {
		return toHTTP(l, "list_orders_error", err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *OrderHTTP) ChangeStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.change_status")

	orderID, err := orderIDParam(c)
	if err != nil {
		return toHTTP(l, "change_status_error", err)
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}

	var req transport.ChangeStatusRequest
	if err := h.Validator.Decode(validate.ChangeStatus, body, &req); err != nil {
		return toHTTP(l, "change_status_error", err)
	}

	o, err := h.Svc.ChangeStatus(ctx, orderID, req.Status)
	if err != nil {
		return toHTTP(l, "change_status_error", err)
	}

	l.Info("order_status_changed", "order_id", o.ID.String(), "status", string(o.Status))
	return c.JSON(http.StatusOK, transport.OrderResponse{Message: "Order status updated", Order: o})
}

// SearchOrders backs the admin dashboard's order search.
func (h *OrderHTTP) SearchOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.search")

	if h.Search == nil {
		l.Warn("search_orders_error", "status", 503, "reason", "search not configured")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search is not available")
	}

	p := util.ParsePaging(c.QueryParam("page"), c.QueryParam("size"))
	total, docs, err := h.Search.SearchOrders(ctx, search.Query{
		Text:          c.QueryParam("q"),
		Status:        c.QueryParam("status"),
		PaymentStatus: c.QueryParam("paymentStatus"),
		From:          p.Offset,
		Size:          p.Size,
	})
	if err != nil {
		l.Error("search_orders_error", "status", 502, "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "search failed")
	}
	if docs == nil {
		docs = []search.OrderDoc{}
	}
	return c.JSON(http.StatusOK, transport.OrderSearchResponse{Items: docs, Total: total, Page: p.Page, Size: p.Size})
}
