package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/Skotchmaster/storefront/internal/apperr"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/repo"
)

// InventoryService exposes single-variant stock operations. Multi-line
// checkout goes through repo.ReserveLines directly inside the order transaction.
type InventoryService struct {
	Repo *repo.GormRepo
}

func (s *InventoryService) CheckAvailability(ctx context.Context, productID uuid.UUID, color, size string, qty int64) (*models.Variant, error) {
	product, err := s.Repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	v, err := s.Repo.FindVariant(ctx, productID, color, size)
	if err != nil {
		return nil, err
	}
	if v.Quantity < qty {
		return nil, &apperr.StockError{
			ProductName: product.Name,
			Color:       v.Color,
			Size:        v.Size,
			Available:   v.Quantity,
			Requested:   qty,
		}
	}
	return v, nil
}

func (s *InventoryService) Decrement(ctx context.Context, productID uuid.UUID, color, size string, qty int64) error {
	_, err := s.Repo.ReserveLines(ctx, []repo.Line{{ProductID: productID, Color: color, Size: size, Quantity: qty}})
	return err
}

func (s *InventoryService) Increment(ctx context.Context, productID uuid.UUID, color, size string, qty int64) error {
	return s.Repo.ReleaseLines(ctx, []repo.Line{{ProductID: productID, Color: color, Size: size, Quantity: qty}})
}
