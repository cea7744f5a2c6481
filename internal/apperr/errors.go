package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation")         // 400
	ErrNotFound          = errors.New("not found")          // 404
	ErrInsufficientStock = errors.New("insufficient stock") // 400
	ErrUnauthorized      = errors.New("unauthorized")       // 401
	ErrConflict          = errors.New("conflict")           // 400
	ErrPaymentProvider   = errors.New("payment provider")   // 500

	ErrPaymentInitialization = fmt.Errorf("%w: payment initialization failed", ErrPaymentProvider)
	ErrPaymentVerification   = fmt.Errorf("%w: payment verification failed", ErrPaymentProvider)
)

// StockError carries the numbers the storefront shows when a variant runs short.
type StockError struct {
	ProductName string
	Color       string
	Size        string
	Available   int64
	Requested   int64
}

func (e *StockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = "product"
	}
	return fmt.Sprintf("insufficient stock for %s (%s/%s): only %d available, %d requested",
		name, e.Color, e.Size, e.Available, e.Requested)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }
