package repo

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/storefront/internal/apperr"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
)

// Line is a request against one product variant.
type Line struct {
	ProductID uuid.UUID
	Color     string
	Size      string
	Quantity  int64
}

type lineKey struct {
	productID uuid.UUID
	color     string
	size      string
}

func (l Line) key() lineKey {
	return lineKey{productID: l.ProductID, color: models.NormalizeKey(l.Color), size: models.NormalizeKey(l.Size)}
}

// PricedLine is a reserved line together with the product data read under lock.
type PricedLine struct {
	Line
	ProductName string
	UnitPrice   decimal.Decimal
}

// AggregateLines merges lines naming the same variant and returns them in lock order.
func AggregateLines(lines []Line) []Line {
	idx := make(map[lineKey]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		k := l.key()
		if i, ok := idx[k]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[k] = len(out)
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].ProductID[:], out[j].ProductID[:]); c != 0 {
			return c < 0
		}
		ki, kj := out[i].key(), out[j].key()
		if ki.color != kj.color {
			return ki.color < kj.color
		}
		return ki.size < kj.size
	})
	return out
}

func productIDs(lines []Line) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

func (r *GormRepo) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	if err := r.DB.WithContext(ctx).Preload("Variants").First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "product")
	}
	return &p, nil
}

func (r *GormRepo) ProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []models.Product
	if err := r.DB.WithContext(ctx).Preload("Variants").Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// FindVariant resolves a variant by its normalized color and size.
func (r *GormRepo) FindVariant(ctx context.Context, productID uuid.UUID, color, size string) (*models.Variant, error) {
	var v models.Variant
	err := r.DB.WithContext(ctx).
		Where("product_id = ? AND color_key = ? AND size_key = ?", productID, models.NormalizeKey(color), models.NormalizeKey(size)).
		First(&v).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("variant %s/%s", color, size))
	}
	return &v, nil
}

// lockProducts takes row locks on every product in ascending id order.
func (r *GormRepo) lockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i][:], sorted[j][:]) < 0 })

	var products []models.Product
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sorted).
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]*models.Product, len(products))
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	for _, id := range sorted {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("%w: product %s", apperr.ErrNotFound, id)
		}
	}
	return out, nil
}

func (r *GormRepo) recomputeTotals(ctx context.Context, productID uuid.UUID, soldExpr clause.Expr) error {
	return r.DB.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumns(map[string]any{
			"total_quantity": gorm.Expr("(SELECT COALESCE(SUM(quantity), 0) FROM product_variants WHERE product_id = ?)", productID),
			"total_sold":     soldExpr,
		}).Error
}

// ReserveLines validates and decrements every line in one transaction. Any
// failing line rolls back the whole batch.
func (r *GormRepo) ReserveLines(ctx context.Context, lines []Line) ([]PricedLine, error) {
	agg := AggregateLines(lines)
	if len(agg) == 0 {
		return nil, fmt.Errorf("%w: no items", apperr.ErrValidation)
	}
	for _, l := range agg {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", apperr.ErrValidation)
		}
	}

	var priced []PricedLine
	err := r.Transaction(ctx, func(tx *GormRepo) error {
		products, err := tx.lockProducts(ctx, productIDs(agg))
		if err != nil {
			return err
		}

		sold := make(map[uuid.UUID]int64, len(products))
		for _, l := range agg {
			p := products[l.ProductID]
			v, err := tx.FindVariant(ctx, l.ProductID, l.Color, l.Size)
			if err != nil {
				return err
			}

			res := tx.DB.WithContext(ctx).Model(&models.Variant{}).
				Where("id = ? AND quantity >= ?", v.ID, l.Quantity).
				UpdateColumn("quantity", gorm.Expr("quantity - ?", l.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return &apperr.StockError{
					ProductName: p.Name,
					Color:       v.Color,
					Size:        v.Size,
					Available:   v.Quantity,
					Requested:   l.Quantity,
				}
			}

			sold[l.ProductID] += l.Quantity
			priced = append(priced, PricedLine{
				Line:        Line{ProductID: l.ProductID, Color: v.Color, Size: v.Size, Quantity: l.Quantity},
				ProductName: p.Name,
				UnitPrice:   p.Price,
			})
		}

		for _, id := range productIDs(agg) {
			if err := tx.recomputeTotals(ctx, id, gorm.Expr("total_sold + ?", sold[id])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return priced, nil
}

// ReleaseLines returns stock for every line. totalSold never drops below zero.
func (r *GormRepo) ReleaseLines(ctx context.Context, lines []Line) error {
	agg := AggregateLines(lines)
	if len(agg) == 0 {
		return nil
	}

	return r.Transaction(ctx, func(tx *GormRepo) error {
		products, err := tx.lockProducts(ctx, productIDs(agg))
		if err != nil {
			return err
		}

		returned := make(map[uuid.UUID]int64, len(products))
		for _, l := range agg {
			if l.Quantity <= 0 {
				return fmt.Errorf("%w: quantity must be positive", apperr.ErrValidation)
			}
			v, err := tx.FindVariant(ctx, l.ProductID, l.Color, l.Size)
			if err != nil {
				return err
			}
			if err := tx.DB.WithContext(ctx).Model(&models.Variant{}).
				Where("id = ?", v.ID).
				UpdateColumn("quantity", gorm.Expr("quantity + ?", l.Quantity)).Error; err != nil {
				return err
			}
			returned[l.ProductID] += l.Quantity
		}

		for _, id := range productIDs(agg) {
			n := returned[id]
			if products[id].TotalSold < n {
				logging.FromContext(ctx).Warn("total_sold_clamped",
					slog.String("product_id", id.String()),
					slog.Int64("total_sold", products[id].TotalSold),
					slog.Int64("released", n))
			}
			soldExpr := gorm.Expr("CASE WHEN total_sold >= ? THEN total_sold - ? ELSE 0 END", n, n)
			if err := tx.recomputeTotals(ctx, id, soldExpr); err != nil {
				return err
			}
		}
		return nil
	})
}
