package events

import (
	"context"
	"time"

	"github.com/Skotchmaster/storefront/internal/models"
)

const (
	TopicOrders        = "order_events"
	TopicNotifications = "notification_events"
)

const (
	OrderCreated       = "order.created"
	OrderConfirmed     = "order.confirmed"
	OrderFailed        = "order.failed"
	OrderCancelled     = "order.cancelled"
	OrderStatusChanged = "order.status_changed"
	OrderExpired       = "order.reservation_expired"
)

const (
	TemplateOrderPlaced    = "order_placed"
	TemplateOrderConfirmed = "order_confirmed"
	TemplateStatusChanged  = "order_status_changed"
)

type OrderEvent struct {
	Type              string                   `json:"type"`
	OrderID           string                   `json:"order_id"`
	UserID            string                   `json:"user_id"`
	Status            models.OrderStatus       `json:"status"`
	PaymentStatus     models.PaymentStatus     `json:"payment_status"`
	PaymentMethod     models.PaymentMethod     `json:"payment_method"`
	ReservationStatus models.ReservationStatus `json:"reservation_status"`
	TotalAmount       string                   `json:"total_amount"`
	Currency          string                   `json:"currency"`
	OccurredAt        time.Time                `json:"occurred_at"`
}

func NewOrderEvent(typ string, o *models.Order) OrderEvent {
	return OrderEvent{
		Type:              typ,
		OrderID:           o.ID.String(),
		UserID:            o.UserID.String(),
		Status:            o.Status,
		PaymentStatus:     o.PaymentStatus,
		PaymentMethod:     o.PaymentMethod,
		ReservationStatus: o.ReservationStatus,
		TotalAmount:       o.TotalAmount.StringFixed(2),
		Currency:          o.Currency,
		OccurredAt:        time.Now().UTC(),
	}
}

type NotificationItem struct {
	ProductName string `json:"product_name"`
	Color       string `json:"color"`
	Size        string `json:"size"`
	Quantity    int64  `json:"quantity"`
	Price       string `json:"price"`
}

// Notification is consumed by the mailer, which resolves the user's address.
type Notification struct {
	Template    string             `json:"template"`
	UserID      string             `json:"user_id"`
	OrderID     string             `json:"order_id"`
	Status      models.OrderStatus `json:"status"`
	TotalAmount string             `json:"total_amount"`
	Currency    string             `json:"currency"`
	Items       []NotificationItem `json:"items"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

type Notifier struct {
	Publisher Publisher
}

func (n *Notifier) Notify(ctx context.Context, template string, o *models.Order) error {
	items := make([]NotificationItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, NotificationItem{
			ProductName: it.ProductName,
			Color:       it.Color,
			Size:        it.Size,
			Quantity:    it.Quantity,
			Price:       it.Price.StringFixed(2),
		})
	}
	return n.Publisher.PublishEvent(ctx, TopicNotifications, o.UserID.String(), Notification{
		Template:    template,
		UserID:      o.UserID.String(),
		OrderID:     o.ID.String(),
		Status:      o.Status,
		TotalAmount: o.TotalAmount.StringFixed(2),
		Currency:    o.Currency,
		Items:       items,
		OccurredAt:  time.Now().UTC(),
	})
}
