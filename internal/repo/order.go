package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/storefront/internal/models"
)

func itemsOrdered(tx *gorm.DB) *gorm.DB {
	return tx.Order("product_id ASC, color ASC, size ASC")
}

// CreateOrder inserts the order and its items in one statement batch.
func (r *GormRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.DB.WithContext(ctx).Create(order).Error
}

func (r *GormRepo) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	if err := r.DB.WithContext(ctx).Preload("Items", itemsOrdered).First(&o, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "order")
	}
	return &o, nil
}

// LockOrder reads the order under a row lock; callers must be inside Transaction.
func (r *GormRepo) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&o, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "order")
	}
	if err := r.DB.WithContext(ctx).Scopes(itemsOrdered).Where("order_id = ?", o.ID).Find(&o.Items).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *GormRepo) FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error) {
	var o models.Order
	err := r.DB.WithContext(ctx).Preload("Items", itemsOrdered).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&o).Error
	if err != nil {
		return nil, notFound(err, "order")
	}
	return &o, nil
}

func (r *GormRepo) FindByPaymentID(ctx context.Context, method models.PaymentMethod, paymentID string) (*models.Order, error) {
	var o models.Order
	err := r.DB.WithContext(ctx).
		Where("payment_method = ? AND payment_id = ?", method, paymentID).
		First(&o).Error
	if err != nil {
		return nil, notFound(err, "order")
	}
	return &o, nil
}

// SaveOrder writes every order column; items are immutable after creation.
func (r *GormRepo) SaveOrder(ctx context.Context, order *models.Order) error {
	return r.DB.WithContext(ctx).Omit(clause.Associations).Save(order).Error
}

func (r *GormRepo) ListOrders(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, int64, error) {
	byUser := func(tx *gorm.DB) *gorm.DB { return tx.Where("user_id = ?", userID) }

	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Order{}).Scopes(byUser).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	if err := r.DB.WithContext(ctx).Scopes(byUser).Preload("Items", itemsOrdered).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ExpiredReservations lists orders still holding stock past their deadline.
func (r *GormRepo) ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("reservation_status = ? AND reserved_until IS NOT NULL AND reserved_until < ?", models.ReservationReserved, now).
		Order("reserved_until ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
