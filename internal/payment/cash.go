package payment

import (
	"context"

	"github.com/Skotchmaster/storefront/internal/models"
)

// Cash is collected on delivery; there is nothing to initiate or verify.
type Cash struct{}

func (Cash) Method() models.PaymentMethod { return models.PaymentCash }

func (Cash) Initiate(context.Context, *models.Order) (*Initiation, error) {
	return &Initiation{}, nil
}

func (Cash) Verify(context.Context, Callback) (*Verification, error) {
	return &Verification{Success: false}, nil
}
