package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/apperr"
	"github.com/Skotchmaster/storefront/internal/transport"
)

func TestCartService_AddItem(t *testing.T) {
	r := newTestRepo(t)
	s := &CartService{Repo: r}
	ctx := context.Background()
	user := uuid.New()
	p := seedProduct(t, r, "Tee", "500", "Red", "M", 2)

	cart, err := s.AddItem(ctx, user, transport.AddToCartRequest{ProductID: p.ID, Color: "Red", Size: "M"})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.EqualValues(t, 1, cart.Items[0].Quantity)

	cart, err = s.AddItem(ctx, user, transport.AddToCartRequest{ProductID: p.ID, Color: " red", Size: "m", Quantity: 4})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.EqualValues(t, 5, cart.Items[0].Quantity, "adding is not limited by stock")
	require.NotNil(t, cart.Items[0].Product)
	assert.Equal(t, "Tee", cart.Items[0].Product.Name)
	assert.EqualValues(t, 2, cart.Items[0].Product.Available)
	assert.True(t, decimal.RequireFromString("2500").Equal(cart.Subtotal))

	_, err = s.AddItem(ctx, user, transport.AddToCartRequest{ProductID: uuid.New(), Color: "Red", Size: "M"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.AddItem(ctx, user, transport.AddToCartRequest{ProductID: p.ID, Color: "Blue", Size: "M"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.AddItem(ctx, user, transport.AddToCartRequest{ProductID: p.ID, Color: "Red", Size: "M", Quantity: -1})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCartService_UpdateItemQuantity(t *testing.T) {
	r := newTestRepo(t)
	s := &CartService{Repo: r}
	ctx := context.Background()
	user := uuid.New()
	p := seedProduct(t, r, "Cap", "300", "Black", "One", 3)

	cart, err := s.AddItem(ctx, user, transport.AddToCartRequest{ProductID: p.ID, Color: "Black", Size: "One"})
	require.NoError(t, err)
	itemID := cart.Items[0].ID

	cart, err = s.UpdateItemQuantity(ctx, user, transport.UpdateCartRequest{CartItemID: itemID, Quantity: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 3, cart.Items[0].Quantity)

	_, err = s.UpdateItemQuantity(ctx, user, transport.UpdateCartRequest{CartItemID: itemID, Quantity: 4})
	var se *apperr.StockError
	require.ErrorAs(t, err, &se)
	assert.EqualValues(t, 3, se.Available)
	assert.Equal(t, "Cap", se.ProductName)

	_, err = s.UpdateItemQuantity(ctx, user, transport.UpdateCartRequest{CartItemID: itemID, Quantity: 0})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.UpdateItemQuantity(ctx, uuid.New(), transport.UpdateCartRequest{CartItemID: itemID, Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.UpdateItemQuantity(ctx, user, transport.UpdateCartRequest{CartItemID: uuid.New(), Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCartService_UpdateUsesInventory(t *testing.T) {
	r := newTestRepo(t)
	inv := &InventoryService{Repo: r}
	s := &CartService{Repo: r, Inventory: inv}
	ctx := context.Background()
	user := uuid.New()
	p := seedProduct(t, r, "Cap", "300", "Black", "One", 3)

	cart, err := s.AddItem(ctx, user, transport.AddToCartRequest{ProductID: p.ID, Color: "black ", Size: "one"})
	require.NoError(t, err)
	require.NoError(t, inv.Decrement(ctx, p.ID, "Black", "One", 2))

	_, err = s.UpdateItemQuantity(ctx, user, transport.UpdateCartRequest{CartItemID: cart.Items[0].ID, Quantity: 2})
	var se *apperr.StockError
	require.ErrorAs(t, err, &se)
	assert.EqualValues(t, 1, se.Available)
	assert.EqualValues(t, 2, se.Requested)

	require.NoError(t, inv.Increment(ctx, p.ID, "Black", "One", 2))
	cart, err = s.UpdateItemQuantity(ctx, user, transport.UpdateCartRequest{CartItemID: cart.Items[0].ID, Quantity: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 2, cart.Items[0].Quantity)
}

func TestCartService_RemoveAndGet(t *testing.T) {
	r := newTestRepo(t)
	s := &CartService{Repo: r}
	ctx := context.Background()
	user := uuid.New()

	empty, err := s.GetCart(ctx, user)
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
	assert.True(t, empty.Subtotal.IsZero())

	p := seedProduct(t, r, "Mug", "150", "White", "One", 5)
	cart, err := s.AddItem(ctx, user, transport.AddToCartRequest{ProductID: p.ID, Color: "White", Size: "One", Quantity: 2})
	require.NoError(t, err)

	_, err = s.RemoveItem(ctx, user, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	cart, err = s.RemoveItem(ctx, user, cart.Items[0].ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestInventoryService(t *testing.T) {
	r := newTestRepo(t)
	s := &InventoryService{Repo: r}
	ctx := context.Background()
	p := seedProduct(t, r, "Sock", "80", "Black", "S", 2)

	v, err := s.CheckAvailability(ctx, p.ID, "BLACK", "s", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v.Quantity)

	_, err = s.CheckAvailability(ctx, p.ID, "Black", "S", 3)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	_, err = s.CheckAvailability(ctx, uuid.New(), "Black", "S", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, s.Decrement(ctx, p.ID, "Black", "S", 2))
	assert.ErrorIs(t, s.Decrement(ctx, p.ID, "Black", "S", 1), apperr.ErrInsufficientStock)

	require.NoError(t, s.Increment(ctx, p.ID, "black", "s", 1))
	after := stockOf(t, r, p.ID)
	assert.EqualValues(t, 1, after.Variants[0].Quantity)
	assert.EqualValues(t, 1, after.TotalQuantity)
	assert.EqualValues(t, 1, after.TotalSold)
}
