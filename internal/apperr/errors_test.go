package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStockError(t *testing.T) {
	var err error = &StockError{ProductName: "Tee", Color: "Red", Size: "M", Available: 2, Requested: 3}
	wrapped := fmt.Errorf("reserve: %w", err)

	assert.ErrorIs(t, wrapped, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "only 2 available")
	assert.Contains(t, err.Error(), "Tee")

	var se *StockError
	assert.True(t, errors.As(wrapped, &se))
	assert.EqualValues(t, 2, se.Available)
}

func TestPaymentErrorsWrapProvider(t *testing.T) {
	assert.ErrorIs(t, ErrPaymentInitialization, ErrPaymentProvider)
	assert.ErrorIs(t, ErrPaymentVerification, ErrPaymentProvider)
	assert.NotErrorIs(t, ErrPaymentVerification, ErrPaymentInitialization)
}
