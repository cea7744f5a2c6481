package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/apperr"
	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/models"
)

func (r *GormRepo) FindCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.DB.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC, id ASC") }).
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return nil, notFound(err, "cart")
	}
	return &cart, nil
}

// GetOrCreateCart lazily creates the single cart a user owns.
func (r *GormRepo) GetOrCreateCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&cart).Error
	if err == nil {
		return &cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cart = models.Cart{UserID: userID}
	if err := r.DB.WithContext(ctx).Create(&cart).Error; err != nil {
		if !db.IsUniqueViolation(err) {
			return nil, err
		}
		cart = models.Cart{}
		if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&cart).Error; err != nil {
			return nil, err
		}
	}
	return &cart, nil
}

// UpsertItem adds item.Quantity to the matching line or creates it.
func (r *GormRepo) UpsertItem(ctx context.Context, item *models.CartItem) error {
	colorKey, sizeKey := models.NormalizeKey(item.Color), models.NormalizeKey(item.Size)
	match := func(tx *gorm.DB) *gorm.DB {
		return tx.Where("cart_id = ? AND product_id = ? AND color_key = ? AND size_key = ?",
			item.CartID, item.ProductID, colorKey, sizeKey)
	}

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bump := func() (bool, error) {
			res := match(tx.Model(&models.CartItem{})).
				UpdateColumn("quantity", gorm.Expr("quantity + ?", item.Quantity))
			if res.Error != nil || res.RowsAffected == 0 {
				return false, res.Error
			}
			return true, match(tx).First(item).Error
		}

		if ok, err := bump(); ok || err != nil {
			return err
		}
		// savepoint so a lost insert race leaves the outer transaction usable
		err := tx.Transaction(func(sp *gorm.DB) error { return sp.Create(item).Error })
		if err == nil || !db.IsUniqueViolation(err) {
			return err
		}
		item.ID = uuid.Nil
		_, err = bump()
		return err
	})
}

func (r *GormRepo) FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	if err := r.DB.WithContext(ctx).Where("id = ? AND cart_id = ?", itemID, cartID).First(&item).Error; err != nil {
		return nil, notFound(err, "cart item")
	}
	return &item, nil
}

func (r *GormRepo) SetItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int64) error {
	return r.DB.WithContext(ctx).Model(&models.CartItem{}).
		Where("id = ?", itemID).
		UpdateColumn("quantity", quantity).Error
}

func (r *GormRepo) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	res := r.DB.WithContext(ctx).Where("id = ? AND cart_id = ?", itemID, cartID).Delete(&models.CartItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: cart item", apperr.ErrNotFound)
	}
	return nil
}

// RemoveVariants drops the user's cart lines for the purchased variants.
func (r *GormRepo) RemoveVariants(ctx context.Context, userID uuid.UUID, lines []Line) (int64, error) {
	var cart models.Cart
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&cart).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}

	var removed int64
	for _, l := range AggregateLines(lines) {
		k := l.key()
		res := r.DB.WithContext(ctx).
			Where("cart_id = ? AND product_id = ? AND color_key = ? AND size_key = ?", cart.ID, k.productID, k.color, k.size).
			Delete(&models.CartItem{})
		if res.Error != nil {
			return removed, res.Error
		}
		removed += res.RowsAffected
	}
	return removed, nil
}
