package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/logging"
	middleware "github.com/Skotchmaster/storefront/internal/middleware/auth"
)

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

type Deps struct {
	CartHandler    *CartHTTP
	OrderHandler   *OrderHTTP
	PaymentHandler *PaymentHTTP
	JWTSecret      []byte
	AuthClient     middleware.Refresher
	Ready          map[string]ReadyCheck
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", ready(d.Ready))

	authMW := middleware.NewAutoRefreshMiddleware(d.JWTSecret, d.AuthClient)

	cart := e.Group("/cart", authMW.RequireAuth)
	cart.POST("/add", d.CartHandler.AddToCart)
	cart.PUT("/updatecart", d.CartHandler.UpdateCart)
	cart.DELETE("/remove/:cartItemId", d.CartHandler.RemoveFromCart)
	cart.GET("/getcart", d.CartHandler.GetCart)
	cart.POST("/placeorder", d.CartHandler.PlaceOrder)

	// Provider redirects arrive without our cookies.
	e.GET("/order/paypal/success", d.PaymentHandler.PayPalSuccess)
	e.GET("/order/paypal/cancel", d.PaymentHandler.PayPalCancel)
	e.GET("/payments/complete-khalti-payment", d.PaymentHandler.KhaltiComplete)

	order := e.Group("/order", authMW.RequireAuth)
	order.POST("/place", d.OrderHandler.PlaceOrder)
	order.DELETE("/cancel/:orderId", d.OrderHandler.CancelOrder)
	order.GET("/my", d.OrderHandler.MyOrders)
	order.GET("/:orderId", d.OrderHandler.GetOrder)

	payments := e.Group("/payments", authMW.RequireAuth)
	payments.POST("/intent", d.PaymentHandler.CreateIntent)
	payments.POST("/intent/confirm", d.PaymentHandler.ConfirmIntent)

	e.PUT("/change-status/:orderId", d.OrderHandler.ChangeStatus, authMW.RequireAdmin)

	admin := e.Group("/admin", authMW.RequireAdmin)
	admin.GET("/orders/search", d.OrderHandler.SearchOrders)
}

func ready(checks map[string]ReadyCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		l := logging.FromContext(ctx).With("handler", "health.ready")
		for name, check := range checks {
			if err := check(ctx); err != nil {
				l.Warn("not_ready", "status", 503, "dependency", name, "error", err)
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "dependency": name})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
