package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/apperr"
	"github.com/Skotchmaster/storefront/internal/models"
)

func TestCartUpsertMergesNormalizedVariant(t *testing.T) {
	t.Parallel()
	r := newTestRepo(t)
	ctx := context.Background()
	p := seedProduct(t, r, "Tee", "500", variantSeed{"Red", "M", 5})
	user := uuid.New()

	cart, err := r.GetOrCreateCart(ctx, user)
	require.NoError(t, err)
	again, err := r.GetOrCreateCart(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)

	first := &models.CartItem{CartID: cart.ID, ProductID: p.ID, Color: "Red", Size: "M", Quantity: 1}
	require.NoError(t, r.UpsertItem(ctx, first))
	second := &models.CartItem{CartID: cart.ID, ProductID: p.ID, Color: " RED ", Size: "m", Quantity: 2}
	require.NoError(t, r.UpsertItem(ctx, second))

	got, err := r.FindCart(ctx, user)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.EqualValues(t, 3, got.Items[0].Quantity)
	assert.Equal(t, first.ID, second.ID)
}

func TestCartRemoveVariants(t *testing.T) {
	t.Parallel()
	r := newTestRepo(t)
	ctx := context.Background()
	p := seedProduct(t, r, "Tee", "500", variantSeed{"Red", "M", 5}, variantSeed{"Blue", "M", 5})
	user := uuid.New()

	cart, err := r.GetOrCreateCart(ctx, user)
	require.NoError(t, err)
	require.NoError(t, r.UpsertItem(ctx, &models.CartItem{CartID: cart.ID, ProductID: p.ID, Color: "Red", Size: "M", Quantity: 1}))
	require.NoError(t, r.UpsertItem(ctx, &models.CartItem{CartID: cart.ID, ProductID: p.ID, Color: "Blue", Size: "M", Quantity: 1}))

	n, err := r.RemoveVariants(ctx, user, []Line{{ProductID: p.ID, Color: "red", Size: "m", Quantity: 1}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := r.FindCart(ctx, user)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Blue", got.Items[0].Color)

	n, err = r.RemoveVariants(ctx, uuid.New(), []Line{{ProductID: p.ID, Color: "Blue", Size: "M"}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCartDeleteItemScopedToCart(t *testing.T) {
	t.Parallel()
	r := newTestRepo(t)
	ctx := context.Background()
	p := seedProduct(t, r, "Tee", "500", variantSeed{"Red", "M", 5})

	mine, err := r.GetOrCreateCart(ctx, uuid.New())
	require.NoError(t, err)
	other, err := r.GetOrCreateCart(ctx, uuid.New())
	require.NoError(t, err)

	item := &models.CartItem{CartID: mine.ID, ProductID: p.ID, Color: "Red", Size: "M", Quantity: 1}
	require.NoError(t, r.UpsertItem(ctx, item))

	assert.ErrorIs(t, r.DeleteItem(ctx, other.ID, item.ID), apperr.ErrNotFound)
	assert.NoError(t, r.DeleteItem(ctx, mine.ID, item.ID))
}
