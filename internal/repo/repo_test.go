package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/models"
)

func newTestRepo(t *testing.T) *GormRepo {
	t.Helper()
	ctx := context.Background()
	gdb, err := db.OpenSQLite(ctx, "file::memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx, gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })
	return New(gdb)
}

type variantSeed struct {
	color, size string
	qty         int64
}

func seedProduct(t *testing.T, r *GormRepo, name string, price string, variants ...variantSeed) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, Price: decimal.RequireFromString(price), Images: []string{name + ".png"}}
	for _, v := range variants {
		p.Variants = append(p.Variants, models.Variant{Color: v.color, Size: v.size, Quantity: v.qty})
		p.TotalQuantity += v.qty
	}
	require.NoError(t, r.DB.Create(p).Error)
	return p
}

func reload(t *testing.T, r *GormRepo, id uuid.UUID) *models.Product {
	t.Helper()
	p, err := r.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p
}

func variantQty(p *models.Product, color, size string) int64 {
	for _, v := range p.Variants {
		if v.ColorKey == models.NormalizeKey(color) && v.SizeKey == models.NormalizeKey(size) {
			return v.Quantity
		}
	}
	return -1
}

func sumVariants(p *models.Product) int64 {
	var n int64
	for _, v := range p.Variants {
		n += v.Quantity
	}
	return n
}
