package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Skotchmaster/storefront/internal/apperr"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/idempotency"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/payment"
	"github.com/Skotchmaster/storefront/internal/repo"
)

const sweepBatch = 100

// confirmation is one provider callback funnelled into reconcile.
type confirmation struct {
	orderID uuid.UUID
	userID  uuid.UUID
	method  models.PaymentMethod
	ref     string
	cb      payment.Callback
}

// check reports whether the order is already paid, or why it cannot be confirmed.
func (c confirmation) check(o *models.Order) (bool, error) {
	if o.PaymentMethod != c.method {
		return false, fmt.Errorf("%w: order was not placed with %s", apperr.ErrValidation, c.method)
	}
	if c.userID != uuid.Nil && o.UserID != c.userID {
		return false, fmt.Errorf("%w: order does not belong to this user", apperr.ErrValidation)
	}
	if o.PaymentID != "" && c.ref != "" && o.PaymentID != c.ref {
		return false, fmt.Errorf("%w: payment reference does not match the order", apperr.ErrValidation)
	}
	if o.PaymentStatus == models.PaymentStatusPaid {
		return true, nil
	}
	if o.Status == models.OrderStatusCancelled || o.ReservationStatus == models.ReservationReleased {
		return false, fmt.Errorf("%w: order %s can no longer be paid", apperr.ErrConflict, o.ID)
	}
	return false, nil
}

func (s *OrderService) ConfirmPayPal(ctx context.Context, orderID uuid.UUID, paymentID, payerID string, userID uuid.UUID) (*models.Order, error) {
	return s.reconcile(ctx, confirmation{
		orderID: orderID,
		userID:  userID,
		method:  models.PaymentPayPal,
		ref:     paymentID,
		cb:      payment.Callback{OrderID: orderID.String(), PaymentID: paymentID, PayerID: payerID},
	})
}

func (s *OrderService) ConfirmKhalti(ctx context.Context, orderID uuid.UUID, pidx string, userID uuid.UUID) (*models.Order, error) {
	return s.reconcile(ctx, confirmation{
		orderID: orderID,
		userID:  userID,
		method:  models.PaymentKhalti,
		ref:     pidx,
		cb:      payment.Callback{OrderID: orderID.String(), Pidx: pidx},
	})
}

// ConfirmIntent looks the order up by its intent id; other users' intents are not found.
func (s *OrderService) ConfirmIntent(ctx context.Context, userID uuid.UUID, intentID string) (*models.Order, error) {
	if intentID == "" {
		return nil, fmt.Errorf("%w: intentId required", apperr.ErrValidation)
	}
	o, err := s.Repo.FindByPaymentID(ctx, models.PaymentStripe, intentID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("%w: order", apperr.ErrNotFound)
	}
	return s.reconcile(ctx, confirmation{
		orderID: o.ID,
		userID:  userID,
		method:  models.PaymentStripe,
		ref:     intentID,
		cb:      payment.Callback{OrderID: o.ID.String(), IntentID: intentID},
	})
}

// reconcile applies a provider verdict to the order exactly once. A paid order
// is returned unchanged; a verification transport error leaves it untouched.
func (s *OrderService) reconcile(ctx context.Context, c confirmation) (*models.Order, error) {
	ctx, span := tracer.Start(ctx, "order.reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", c.orderID.String()),
		attribute.String("payment.method", string(c.method)),
	)

	l := logging.FromContext(ctx).With("op", "order.reconcile", "order_id", c.orderID.String(), "payment_method", string(c.method))

	order, err := s.Repo.GetOrder(ctx, c.orderID)
	if err != nil {
		return nil, err
	}
	if paid, err := c.check(order); paid || err != nil {
		if err != nil {
			l.Warn("confirm_rejected", "status", 400, "error", err)
		}
		return order, err
	}

	provider, err := s.Payments.Get(c.method)
	if err != nil {
		return nil, err
	}

	lease, ok, err := s.Guard.Acquire(ctx, idempotency.Key("confirm", order.ID.String(), c.ref), s.IdempotencyTTL)
	if err != nil {
		l.Error("idempotency_guard_failed", "error", err)
		return nil, err
	}
	if !ok {
		l.Warn("confirm_in_flight", "reason", "duplicate callback")
		return nil, fmt.Errorf("%w: payment confirmation already in progress", apperr.ErrConflict)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			l.Warn("idempotency_release_failed", "error", err)
		}
	}()

	order, err = s.Repo.GetOrder(ctx, c.orderID)
	if err != nil {
		return nil, err
	}
	if paid, err := c.check(order); paid || err != nil {
		return order, err
	}

	verdict, err := provider.Verify(ctx, c.cb)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, apperr.ErrValidation) || errors.Is(err, apperr.ErrPaymentProvider) {
			return nil, err
		}
		l.Error("payment_verification_failed", "error", err)
		return nil, apperr.ErrPaymentVerification
	}

	var (
		updated *models.Order
		noop    bool
	)
	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		o, err := tx.LockOrder(ctx, c.orderID)
		if err != nil {
			return err
		}
		updated = o
		if o.PaymentStatus == models.PaymentStatusPaid {
			noop = true
			return nil
		}
		if o.Status == models.OrderStatusCancelled {
			return fmt.Errorf("%w: order %s was cancelled", apperr.ErrConflict, o.ID)
		}

		lines := orderLines(o)
		mergeDetails(o, verdict.Details)

		if !verdict.Success {
			if !failable(o.Status) {
				l.Warn("payment_failed_after_fulfilment", "status", string(o.Status), "reservation", string(o.ReservationStatus))
				return fmt.Errorf("%w: order %s is already %s", apperr.ErrConflict, o.ID, o.Status)
			}
			if o.ReservationStatus != models.ReservationReleased {
				if err := tx.ReleaseLines(ctx, lines); err != nil {
					return err
				}
			}
			o.ReservationStatus = models.ReservationReleased
			o.ReservedUntil = nil
			o.Status = models.OrderStatusFailed
			o.PaymentStatus = models.PaymentStatusFailed
			return tx.SaveOrder(ctx, o)
		}

		if o.ReservationStatus == models.ReservationReleased {
			if _, err := tx.ReserveLines(ctx, lines); err != nil {
				l.Error("paid_order_stock_unavailable", "transaction_id", verdict.TransactionID, "error", err)
				return fmt.Errorf("%w: order %s was paid but its stock is gone", apperr.ErrConflict, o.ID)
			}
		}
		o.ReservationStatus = models.ReservationCommitted
		o.ReservedUntil = nil
		if o.Status == models.OrderStatusPending || o.Status == models.OrderStatusFailed {
			o.Status = models.OrderStatusConfirmed
		}
		o.PaymentStatus = models.PaymentStatusPaid
		if verdict.TransactionID != "" {
			mergeDetails(o, map[string]any{"transaction_id": verdict.TransactionID})
		}
		if _, err := tx.RemoveVariants(ctx, o.UserID, lines); err != nil {
			return err
		}
		return tx.SaveOrder(ctx, o)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if noop {
		return updated, nil
	}

	if verdict.Success {
		s.metrics.confirmed.Add(ctx, 1, methodAttr(c.method))
		l.Info("order_confirmed", "transaction_id", verdict.TransactionID)
		s.afterCommit(ctx, updated, events.OrderConfirmed, events.TemplateOrderConfirmed)
		return updated, nil
	}

	s.metrics.failed.Add(ctx, 1, methodAttr(c.method))
	l.Warn("order_payment_failed", "reason", "provider reported unsuccessful payment")
	s.afterCommit(ctx, updated, events.OrderFailed, "")
	return updated, nil
}

// failable reports whether an unpaid order in status s may still be failed.
// Shipped and Delivered orders only move forward.
func failable(s models.OrderStatus) bool {
	switch s {
	case models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusProcessing, models.OrderStatusFailed:
		return true
	}
	return false
}

// CancelOrder is allowed only while the order is Pending. Held or committed
// stock goes back to the ledger.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	ctx, span := tracer.Start(ctx, "order.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID.String()))

	l := logging.FromContext(ctx).With("op", "order.cancel", "order_id", orderID.String())

	var updated *models.Order
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return fmt.Errorf("%w: order", apperr.ErrNotFound)
		}
		if o.Status != models.OrderStatusPending {
			return fmt.Errorf("%w: only pending orders can be cancelled, order is %s", apperr.ErrConflict, o.Status)
		}
		if o.ReservationStatus != models.ReservationReleased {
			if err := tx.ReleaseLines(ctx, orderLines(o)); err != nil {
				return err
			}
		}
		o.ReservationStatus = models.ReservationReleased
		o.ReservedUntil = nil
		o.Status = models.OrderStatusCancelled
		updated = o
		return tx.SaveOrder(ctx, o)
	})
	if err != nil {
		l.Warn("order_cancel_rejected", "error", err)
		return nil, err
	}

	s.metrics.released.Add(ctx, 1, methodAttr(updated.PaymentMethod))
	l.Info("order_cancelled")
	s.afterCommit(ctx, updated, events.OrderCancelled, events.TemplateStatusChanged)
	return updated, nil
}

// ChangeStatus moves an order forward along the fulfilment path.
func (s *OrderService) ChangeStatus(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) (*models.Order, error) {
	ctx, span := tracer.Start(ctx, "order.change_status")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID.String()), attribute.String("order.status", string(status)))

	l := logging.FromContext(ctx).With("op", "order.change_status", "order_id", orderID.String(), "to", string(status))

	if !status.Valid() {
		return nil, fmt.Errorf("%w: invalid status %q", apperr.ErrConflict, status)
	}

	var updated *models.Order
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == models.OrderStatusCancelled || o.Status == models.OrderStatusFailed {
			return fmt.Errorf("%w: order is %s", apperr.ErrConflict, o.Status)
		}
		if !o.Status.CanAdvanceTo(status) {
			return fmt.Errorf("%w: cannot move order from %s to %s", apperr.ErrConflict, o.Status, status)
		}
		if o.ReservationStatus == models.ReservationReserved {
			o.ReservationStatus = models.ReservationCommitted
			o.ReservedUntil = nil
		}
		o.Status = status
		if status == models.OrderStatusDelivered && o.PaymentMethod == models.PaymentCash {
			o.PaymentStatus = models.PaymentStatusPaid
		}
		updated = o
		return tx.SaveOrder(ctx, o)
	})
	if err != nil {
		l.Warn("status_change_rejected", "error", err)
		return nil, err
	}

	l.Info("order_status_changed")
	s.afterCommit(ctx, updated, events.OrderStatusChanged, events.TemplateStatusChanged)
	return updated, nil
}

// ReleaseExpired fails one batch of orders whose reservation outlived its
// deadline and returns their stock. It returns how many were released.
func (s *OrderService) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	l := logging.FromContext(ctx).With("op", "order.release_expired")
	now = now.UTC()

	ids, err := s.Repo.ExpiredReservations(ctx, now, sweepBatch)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, id := range ids {
		var expired *models.Order
		err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
			o, err := tx.LockOrder(ctx, id)
			if err != nil {
				return err
			}
			if o.ReservationStatus != models.ReservationReserved || o.ReservedUntil == nil || !o.ReservedUntil.Before(now) {
				return nil
			}
			if err := tx.ReleaseLines(ctx, orderLines(o)); err != nil {
				return err
			}
			o.ReservationStatus = models.ReservationReleased
			o.ReservedUntil = nil
			o.Status = models.OrderStatusFailed
			o.PaymentStatus = models.PaymentStatusFailed
			expired = o
			return tx.SaveOrder(ctx, o)
		})
		if err != nil {
			l.Error("reservation_release_failed", "order_id", id.String(), "error", err)
			continue
		}
		if expired == nil {
			continue
		}
		released++
		s.metrics.released.Add(ctx, 1, methodAttr(expired.PaymentMethod))
		s.metrics.failed.Add(ctx, 1, methodAttr(expired.PaymentMethod))
		l.Info("reservation_expired", "order_id", id.String())
		s.afterCommit(ctx, expired, events.OrderExpired, "")
	}
	return released, nil
}

// RunSweeper calls ReleaseExpired every interval until ctx is done.
func (s *OrderService) RunSweeper(ctx context.Context, interval time.Duration) {
	l := logging.FromContext(ctx).With("op", "order.sweeper")
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.ReleaseExpired(ctx, s.now())
			if err != nil {
				l.Error("sweep_failed", "error", err)
				continue
			}
			if n > 0 {
				l.Info("sweep_done", "released", n)
			}
		}
	}
}

// AbandonPayment handles a shopper backing out on the PayPal approval page.
// The cancel redirect must name the owning user and, once PayPal issued one,
// the approval token. A reserved, unpaid order is failed and its stock
// released; anything else is left alone.
func (s *OrderService) AbandonPayment(ctx context.Context, orderID, userID uuid.UUID, token string) (*models.Order, error) {
	l := logging.FromContext(ctx).With("op", "order.abandon_payment", "order_id", orderID.String())

	o, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if userID == uuid.Nil || o.UserID != userID {
		l.Warn("abandon_rejected", "reason", "user mismatch")
		return nil, fmt.Errorf("%w: order does not belong to this user", apperr.ErrValidation)
	}
	if o.PaymentMethod != models.PaymentPayPal {
		l.Warn("abandon_rejected", "reason", "not a paypal order", "payment_method", string(o.PaymentMethod))
		return nil, fmt.Errorf("%w: only PayPal payments can be abandoned", apperr.ErrValidation)
	}
	if want, _ := o.TransactionDetails[payment.DetailApprovalToken].(string); want != "" && want != token {
		l.Warn("abandon_rejected", "reason", "approval token mismatch")
		return nil, fmt.Errorf("%w: approval token does not match the order", apperr.ErrValidation)
	}
	if o.PaymentStatus == models.PaymentStatusPaid || o.ReservationStatus != models.ReservationReserved {
		return o, nil
	}

	changed, err := s.abandon(ctx, orderID)
	if err != nil {
		l.Error("reservation_release_failed", "error", err)
		return nil, err
	}
	o, err = s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return o, nil
	}
	s.metrics.released.Add(ctx, 1, methodAttr(o.PaymentMethod))
	l.Info("payment_abandoned")
	s.afterCommit(ctx, o, events.OrderFailed, "")
	return o, nil
}
