package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Skotchmaster/storefront/internal/apperr"
	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/idempotency"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/payment"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/transport"
)

// PlaceResult is what the storefront shows after checkout. Replayed is set
// when an earlier request with the same idempotency key produced the order.
type PlaceResult struct {
	Order        *models.Order
	RedirectURL  string
	ClientSecret string
	Replayed     bool
}

type placeInput struct {
	scope    string
	userID   uuid.UUID
	lines    []repo.Line
	address  string
	location models.Location
	method   models.PaymentMethod
	idemKey  string
}

func (in placeInput) validate() error {
	if in.userID == uuid.Nil {
		return fmt.Errorf("%w: user required", apperr.ErrValidation)
	}
	if len(in.lines) == 0 {
		return fmt.Errorf("%w: no products selected", apperr.ErrValidation)
	}
	for _, l := range in.lines {
		if l.ProductID == uuid.Nil {
			return fmt.Errorf("%w: productId required", apperr.ErrValidation)
		}
		if strings.TrimSpace(l.Color) == "" || strings.TrimSpace(l.Size) == "" {
			return fmt.Errorf("%w: color and size required", apperr.ErrValidation)
		}
		if l.Quantity < 1 {
			return fmt.Errorf("%w: quantity must be at least 1", apperr.ErrValidation)
		}
	}
	if strings.TrimSpace(in.address) == "" {
		return fmt.Errorf("%w: address required", apperr.ErrValidation)
	}
	if !in.method.Valid() {
		return fmt.Errorf("%w: unsupported payment method %q", apperr.ErrValidation, in.method)
	}
	return nil
}

func selectedLines(items []transport.SelectedProduct) []repo.Line {
	lines := make([]repo.Line, 0, len(items))
	for _, sp := range items {
		lines = append(lines, repo.Line{ProductID: sp.ProductID, Color: sp.Color, Size: sp.Size, Quantity: sp.Quantity})
	}
	return lines
}

// CreateOrder buys a single variant directly.
func (s *OrderService) CreateOrder(ctx context.Context, userID uuid.UUID, req transport.CreateOrderRequest) (*PlaceResult, error) {
	return s.place(ctx, placeInput{
		scope:    "order",
		userID:   userID,
		lines:    []repo.Line{{ProductID: req.ProductID, Color: req.Color, Size: req.Size, Quantity: req.Quantity}},
		address:  req.Address,
		location: req.Location,
		method:   req.PaymentMethod,
		idemKey:  req.IdempotencyKey,
	})
}

func (s *OrderService) PlaceOrderFromCart(ctx context.Context, userID uuid.UUID, req transport.PlaceOrderRequest) (*PlaceResult, error) {
	return s.place(ctx, placeInput{
		scope:    "order",
		userID:   userID,
		lines:    selectedLines(req.SelectedProducts),
		address:  req.Address,
		location: req.Location,
		method:   req.PaymentMethod,
		idemKey:  req.IdempotencyKey,
	})
}

// CreateIntent places a card order priced from stored product prices and
// opens a payment intent for it.
func (s *OrderService) CreateIntent(ctx context.Context, userID uuid.UUID, req transport.CreateIntentRequest) (*PlaceResult, error) {
	return s.place(ctx, placeInput{
		scope:    "intent",
		userID:   userID,
		lines:    selectedLines(req.SelectedProducts),
		address:  req.Address,
		location: req.Location,
		method:   models.PaymentStripe,
		idemKey:  req.IdempotencyKey,
	})
}

func initialState(m models.PaymentMethod) (models.OrderStatus, models.PaymentStatus, models.ReservationStatus) {
	switch m {
	case models.PaymentCash:
		return models.OrderStatusPending, models.PaymentStatusPending, models.ReservationCommitted
	case models.PaymentPayPal:
		// PayPal orders stay Failed until the execute callback succeeds.
		return models.OrderStatusFailed, models.PaymentStatusFailed, models.ReservationReserved
	default:
		return models.OrderStatusPending, models.PaymentStatusPending, models.ReservationReserved
	}
}

func buildItems(priced []repo.PricedLine) ([]models.OrderItem, decimal.Decimal) {
	items := make([]models.OrderItem, 0, len(priced))
	total := decimal.Zero
	for _, p := range priced {
		lineTotal := p.UnitPrice.Mul(decimal.NewFromInt(p.Quantity))
		items = append(items, models.OrderItem{
			ProductID:   p.ProductID,
			ProductName: p.ProductName,
			Quantity:    p.Quantity,
			Price:       p.UnitPrice,
			TotalPrice:  lineTotal,
			Color:       p.Color,
			Size:        p.Size,
		})
		total = total.Add(lineTotal)
	}
	return items, total
}

// replay answers a repeated idempotency key with the order it created. A key
// reused for another payment method, or whose order never got a live payment,
// is a conflict rather than a success.
func replay(o *models.Order, in placeInput) (*PlaceResult, error) {
	if o.PaymentMethod != in.method {
		return nil, fmt.Errorf("%w: idempotency key was already used for a %s order", apperr.ErrConflict, o.PaymentMethod)
	}
	if o.PaymentStatus != models.PaymentStatusPaid && o.ReservationStatus == models.ReservationReleased {
		return nil, fmt.Errorf("%w: order %s for this idempotency key is %s, use a new key", apperr.ErrConflict, o.ID, o.Status)
	}
	return replayResult(o), nil
}

func replayResult(o *models.Order) *PlaceResult {
	res := &PlaceResult{Order: o, Replayed: true}
	if v, ok := o.TransactionDetails["redirect_url"].(string); ok {
		res.RedirectURL = v
	}
	if v, ok := o.TransactionDetails["client_secret"].(string); ok {
		res.ClientSecret = v
	}
	return res
}

func (s *OrderService) place(ctx context.Context, in placeInput) (*PlaceResult, error) {
	ctx, span := tracer.Start(ctx, "order.place")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", in.userID.String()),
		attribute.String("payment.method", string(in.method)),
	)

	l := logging.FromContext(ctx).With("op", "order.place", "user_id", in.userID.String(), "payment_method", string(in.method))

	if err := in.validate(); err != nil {
		return nil, err
	}
	provider, err := s.Payments.Get(in.method)
	if err != nil {
		return nil, err
	}

	if in.idemKey != "" {
		existing, err := s.Repo.FindByIdempotencyKey(ctx, in.userID, in.idemKey)
		if err == nil {
			l.Info("order_replayed", "order_id", existing.ID.String())
			return replay(existing, in)
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}

		lease, ok, err := s.Guard.Acquire(ctx, idempotency.Key(in.scope, in.userID.String(), in.idemKey), s.IdempotencyTTL)
		if err != nil {
			l.Error("idempotency_guard_failed", "error", err)
			return nil, err
		}
		if !ok {
			l.Warn("order_in_flight", "reason", "duplicate idempotency key")
			return nil, fmt.Errorf("%w: an order with this idempotency key is already being placed", apperr.ErrConflict)
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				l.Warn("idempotency_release_failed", "error", err)
			}
		}()

		if existing, err := s.Repo.FindByIdempotencyKey(ctx, in.userID, in.idemKey); err == nil {
			return replay(existing, in)
		}
	}

	status, payStatus, reservation := initialState(in.method)
	order := &models.Order{
		UserID:            in.userID,
		Address:           strings.TrimSpace(in.address),
		Location:          in.location,
		Status:            status,
		PaymentMethod:     in.method,
		PaymentStatus:     payStatus,
		Currency:          models.DefaultCurrency,
		ReservationStatus: reservation,
	}
	if reservation == models.ReservationReserved {
		until := s.now().Add(s.ReservationTTL)
		order.ReservedUntil = &until
	}
	if in.idemKey != "" {
		key := in.idemKey
		order.IdempotencyKey = &key
	}

	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		priced, err := tx.ReserveLines(ctx, in.lines)
		if err != nil {
			return err
		}
		order.Items, order.TotalAmount = buildItems(priced)
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if in.method == models.PaymentCash {
			if _, err := tx.RemoveVariants(ctx, in.userID, in.lines); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if in.idemKey != "" && db.IsUniqueViolation(err) {
			if existing, ferr := s.Repo.FindByIdempotencyKey(ctx, in.userID, in.idemKey); ferr == nil {
				return replay(existing, in)
			}
		}
		var se *apperr.StockError
		if errors.As(err, &se) {
			l.Info("order_rejected", "status", 400, "reason", "insufficient stock", "error", err)
		}
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID.String()))
	l = l.With("order_id", order.ID.String())

	res, err := s.initiate(ctx, provider, order)
	if err != nil {
		span.SetStatus(codes.Error, "payment initiation failed")
		return nil, err
	}

	s.metrics.placed.Add(ctx, 1, methodAttr(in.method))
	l.Info("order_placed", "total", order.TotalAmount.StringFixed(2), "items", len(order.Items))

	template := ""
	if in.method == models.PaymentCash {
		template = events.TemplateOrderPlaced
	}
	s.afterCommit(ctx, order, events.OrderCreated, template)
	return res, nil
}

// initiate runs after the order commits so that no provider call holds a
// database transaction open. A failed initiation gives the stock back.
func (s *OrderService) initiate(ctx context.Context, provider payment.Provider, order *models.Order) (*PlaceResult, error) {
	l := logging.FromContext(ctx).With("order_id", order.ID.String(), "payment_method", string(order.PaymentMethod))

	started, err := provider.Initiate(ctx, order)
	if err != nil {
		l.Error("payment_initiation_failed", "error", err)
		if _, aerr := s.abandon(ctx, order.ID); aerr != nil {
			l.Error("reservation_release_failed", "error", aerr)
		} else {
			s.metrics.failed.Add(ctx, 1, methodAttr(order.PaymentMethod))
		}
		if errors.Is(err, apperr.ErrPaymentProvider) {
			return nil, err
		}
		return nil, apperr.ErrPaymentInitialization
	}

	res := &PlaceResult{Order: order, RedirectURL: started.RedirectURL, ClientSecret: started.ClientSecret}
	if started.ProviderRef == "" && len(started.Details) == 0 {
		return res, nil
	}

	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		o, err := tx.LockOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		o.PaymentID = started.ProviderRef
		mergeDetails(o, started.Details)
		if started.RedirectURL != "" {
			mergeDetails(o, map[string]any{"redirect_url": started.RedirectURL})
		}
		if started.ClientSecret != "" {
			mergeDetails(o, map[string]any{"client_secret": started.ClientSecret})
		}
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}
		res.Order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// abandon fails an unpaid order and releases its stock. It reports false
// when the order was paid or shipped in the meantime.
func (s *OrderService) abandon(ctx context.Context, orderID uuid.UUID) (bool, error) {
	changed := false
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.PaymentStatus == models.PaymentStatusPaid || !failable(o.Status) {
			return nil
		}
		if o.ReservationStatus != models.ReservationReleased {
			if err := tx.ReleaseLines(ctx, orderLines(o)); err != nil {
				return err
			}
		}
		o.ReservationStatus = models.ReservationReleased
		o.ReservedUntil = nil
		o.Status = models.OrderStatusFailed
		o.PaymentStatus = models.PaymentStatusFailed
		changed = true
		return tx.SaveOrder(ctx, o)
	})
	return changed, err
}
