package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/storefront/internal/apperr"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/transport"
)

type CartService struct {
	Repo      *repo.GormRepo
	Inventory *InventoryService
}

func (s *CartService) inventory() *InventoryService {
	if s.Inventory != nil {
		return s.Inventory
	}
	return &InventoryService{Repo: s.Repo}
}

func (s *CartService) AddItem(ctx context.Context, userID uuid.UUID, req transport.AddToCartRequest) (*transport.CartView, error) {
	if req.ProductID == uuid.Nil {
		return nil, fmt.Errorf("%w: productId required", apperr.ErrValidation)
	}
	if strings.TrimSpace(req.Color) == "" || strings.TrimSpace(req.Size) == "" {
		return nil, fmt.Errorf("%w: color and size required", apperr.ErrValidation)
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", apperr.ErrValidation)
	}

	if _, err := s.Repo.GetProduct(ctx, req.ProductID); err != nil {
		return nil, err
	}
	if _, err := s.Repo.FindVariant(ctx, req.ProductID, req.Color, req.Size); err != nil {
		return nil, err
	}

	cart, err := s.Repo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	item := &models.CartItem{
		CartID:    cart.ID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Color:     strings.TrimSpace(req.Color),
		Size:      strings.TrimSpace(req.Size),
	}
	if err := s.Repo.UpsertItem(ctx, item); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// UpdateItemQuantity sets an absolute quantity, checked against live stock.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID uuid.UUID, req transport.UpdateCartRequest) (*transport.CartView, error) {
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", apperr.ErrValidation)
	}

	cart, err := s.Repo.FindCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	item, err := s.Repo.FindItem(ctx, cart.ID, req.CartItemID)
	if err != nil {
		return nil, err
	}

	if _, err := s.inventory().CheckAvailability(ctx, item.ProductID, item.Color, item.Size, req.Quantity); err != nil {
		return nil, err
	}

	if err := s.Repo.SetItemQuantity(ctx, item.ID, req.Quantity); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*transport.CartView, error) {
	cart, err := s.Repo.FindCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.DeleteItem(ctx, cart.ID, itemID); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// GetCart never fails for a user without a cart; it returns an empty one.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*transport.CartView, error) {
	cart, err := s.Repo.FindCart(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return &transport.CartView{UserID: userID, Items: []transport.CartItemView{}, Subtotal: decimal.Zero}, nil
	}
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, it := range cart.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.Repo.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	view := &transport.CartView{
		ID:       cart.ID,
		UserID:   cart.UserID,
		Items:    make([]transport.CartItemView, 0, len(cart.Items)),
		Subtotal: decimal.Zero,
	}
	for _, it := range cart.Items {
		iv := transport.CartItemView{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Color:     it.Color,
			Size:      it.Size,
		}
		if p, ok := products[it.ProductID]; ok {
			iv.Product = snapshot(p, it.ColorKey, it.SizeKey)
			view.Subtotal = view.Subtotal.Add(p.Price.Mul(decimal.NewFromInt(it.Quantity)))
		}
		view.Items = append(view.Items, iv)
	}
	return view, nil
}

func snapshot(p models.Product, colorKey, sizeKey string) *transport.ProductSnapshot {
	s := &transport.ProductSnapshot{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price,
		Images:        p.Images,
		TotalQuantity: p.TotalQuantity,
	}
	for _, v := range p.Variants {
		if v.ColorKey == colorKey && v.SizeKey == sizeKey {
			s.Available = v.Quantity
			break
		}
	}
	return s
}
