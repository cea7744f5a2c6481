package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"

	"github.com/Skotchmaster/storefront/internal/apperr"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/idempotency"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/payment"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/transport"
	"github.com/Skotchmaster/storefront/internal/util"
)

const instrumentation = "github.com/Skotchmaster/storefront/internal/service"

var (
	tracer = otel.Tracer(instrumentation)
	meter  = otel.Meter(instrumentation)
)

// OrderIndexer receives every order after a state change.
type OrderIndexer interface {
	IndexOrder(ctx context.Context, o *models.Order) error
}

type OrderService struct {
	Repo     *repo.GormRepo
	Payments *payment.Registry
	Guard    idempotency.Guard
	Events   events.Publisher
	Notifier *events.Notifier
	Index    OrderIndexer

	ReservationTTL    time.Duration
	IdempotencyTTL    time.Duration
	SideEffectTimeout time.Duration
	Now               func() time.Time

	metrics orderMetrics
}

func NewOrderService(r *repo.GormRepo, payments *payment.Registry, guard idempotency.Guard, pub events.Publisher, index OrderIndexer) *OrderService {
	if guard == nil {
		guard = idempotency.NewMemoryGuard()
	}
	if pub == nil {
		pub = events.Discard{}
	}
	return &OrderService{
		Repo:              r,
		Payments:          payments,
		Guard:             guard,
		Events:            pub,
		Notifier:          &events.Notifier{Publisher: pub},
		Index:             index,
		ReservationTTL:    30 * time.Minute,
		IdempotencyTTL:    24 * time.Hour,
		SideEffectTimeout: 5 * time.Second,
		Now:               time.Now,
		metrics:           newOrderMetrics(),
	}
}

type orderMetrics struct {
	placed    metric.Int64Counter
	confirmed metric.Int64Counter
	failed    metric.Int64Counter
	released  metric.Int64Counter
}

func counter(name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter(instrumentation).Int64Counter(name)
	}
	return c
}

func newOrderMetrics() orderMetrics {
	return orderMetrics{
		placed:    counter("storefront.orders.placed", "Orders created"),
		confirmed: counter("storefront.orders.confirmed", "Orders whose payment was verified"),
		failed:    counter("storefront.orders.failed", "Orders whose payment failed or expired"),
		released:  counter("storefront.reservations.released", "Reservations returned to stock"),
	}
}

func methodAttr(m models.PaymentMethod) metric.AddOption {
	return metric.WithAttributes(attribute.String("payment.method", string(m)))
}

func (s *OrderService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// afterCommit publishes the order event, the optional notification and the
// search document. Failures are logged; the order is already durable.
func (s *OrderService) afterCommit(ctx context.Context, o *models.Order, eventType, template string) {
	l := logging.FromContext(ctx).With("order_id", o.ID.String(), "event", eventType)

	timeout := s.SideEffectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		if err := s.Events.PublishEvent(ctx, events.TopicOrders, o.ID.String(), events.NewOrderEvent(eventType, o)); err != nil {
			l.Warn("order_event_publish_failed", "error", err)
		}
		return nil
	})
	if template != "" && s.Notifier != nil {
		g.Go(func() error {
			if err := s.Notifier.Notify(ctx, template, o); err != nil {
				l.Warn("notification_publish_failed", "template", template, "error", err)
			}
			return nil
		})
	}
	if s.Index != nil {
		g.Go(func() error {
			if err := s.Index.IndexOrder(ctx, o); err != nil {
				l.Warn("order_index_failed", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func orderLines(o *models.Order) []repo.Line {
	lines := make([]repo.Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, repo.Line{ProductID: it.ProductID, Color: it.Color, Size: it.Size, Quantity: it.Quantity})
	}
	return lines
}

func mergeDetails(o *models.Order, details map[string]any) {
	if len(details) == 0 {
		return
	}
	if o.TransactionDetails == nil {
		o.TransactionDetails = make(map[string]any, len(details))
	}
	for k, v := range details {
		o.TransactionDetails[k] = v
	}
}

func (s *OrderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	o, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("%w: order", apperr.ErrNotFound)
	}
	return o, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID, p util.Paging) (*transport.OrdersPage, error) {
	orders, total, err := s.Repo.ListOrders(ctx, userID, p.Size, p.Offset)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return &transport.OrdersPage{Items: orders, Total: total, Page: p.Page, Size: p.Size}, nil
}
