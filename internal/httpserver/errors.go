package httpserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/apperr"
)

const maxBodyBytes = 1 << 20

func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return body, nil
}

func idempotencyKey(c echo.Context) (string, error) {
	key := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key"))
	if len(key) > 255 {
		return "", echo.NewHTTPError(http.StatusBadRequest, "Idempotency-Key too long")
	}
	return key, nil
}

func message(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}

// toHTTP logs err under event and converts it to the response the client sees.
// Provider and internal failures never leak their details.
func toHTTP(l *slog.Logger, event string, err error) error {
	var (
		se *apperr.StockError
		he *echo.HTTPError
	)
	switch {
	case errors.As(err, &he):
		l.Warn(event, "status", he.Code, "error", err)
		return he
	case errors.As(err, &se):
		l.Warn(event, "status", 400, "reason", "insufficient stock", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, se.Error())
	case errors.Is(err, apperr.ErrValidation):
		l.Warn(event, "status", 400, "reason", "validation", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, message(err, apperr.ErrValidation))
	case errors.Is(err, apperr.ErrConflict):
		l.Warn(event, "status", 400, "reason", "conflict", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, message(err, apperr.ErrConflict))
	case errors.Is(err, apperr.ErrInsufficientStock):
		l.Warn(event, "status", 400, "reason", "insufficient stock", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		l.Warn(event, "status", 404, "error", err)
		msg := "not found"
		if what := message(err, apperr.ErrNotFound); what != err.Error() {
			msg = what + " not found"
		}
		return echo.NewHTTPError(http.StatusNotFound, msg)
	case errors.Is(err, apperr.ErrUnauthorized):
		l.Warn(event, "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, apperr.ErrPaymentProvider):
		l.Error(event, "status", 500, "reason", "payment provider", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "payment provider error, please try again later")
	default:
		l.Error(event, "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
