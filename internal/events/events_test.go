package events

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/models"
)

type captured struct {
	topic, key string
	event      any
}

type capture struct{ got []captured }

func (c *capture) PublishEvent(_ context.Context, topic, key string, event any) error {
	c.got = append(c.got, captured{topic, key, event})
	return nil
}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		Status:        models.OrderStatusConfirmed,
		PaymentStatus: models.PaymentStatusPaid,
		TotalAmount:   decimal.RequireFromString("1500"),
		Currency:      models.DefaultCurrency,
		Items: []models.OrderItem{
			{ProductName: "Tee", Color: "Red", Size: "M", Quantity: 3, Price: decimal.RequireFromString("500")},
		},
	}
}

func TestNotifier(t *testing.T) {
	c := &capture{}
	n := &Notifier{Publisher: c}
	o := sampleOrder()

	require.NoError(t, n.Notify(context.Background(), TemplateOrderConfirmed, o))
	require.Len(t, c.got, 1)
	assert.Equal(t, TopicNotifications, c.got[0].topic)
	assert.Equal(t, o.UserID.String(), c.got[0].key)

	msg := c.got[0].event.(Notification)
	assert.Equal(t, TemplateOrderConfirmed, msg.Template)
	assert.Equal(t, "1500.00", msg.TotalAmount)
	require.Len(t, msg.Items, 1)
	assert.Equal(t, "500.00", msg.Items[0].Price)
}

func TestNewOrderEvent(t *testing.T) {
	o := sampleOrder()
	ev := NewOrderEvent(OrderConfirmed, o)
	assert.Equal(t, o.ID.String(), ev.OrderID)
	assert.Equal(t, models.PaymentStatusPaid, ev.PaymentStatus)
	assert.False(t, ev.OccurredAt.IsZero())
}

func TestProducer_Kafka(t *testing.T) {
	brokers := os.Getenv("TEST_KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("TEST_KAFKA_BROKERS not set")
	}
	p := NewProducer(strings.Split(brokers, ","))
	defer p.Close()
	require.NoError(t, p.PublishEvent(context.Background(), TopicOrders, "k", NewOrderEvent(OrderCreated, sampleOrder())))
}
