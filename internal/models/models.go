package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusConfirmed  OrderStatus = "Confirmed"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
	OrderStatusFailed     OrderStatus = "Failed"
)

// forwardRank orders the statuses an admin may step through.
var forwardRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusConfirmed:  1,
	OrderStatusProcessing: 2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// CanAdvanceTo reports whether next is a strictly forward step from s.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	from, ok := forwardRank[s]
	if !ok {
		return false
	}
	to, ok := forwardRank[next]
	if !ok {
		return false
	}
	return to > from
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "Pending"
	PaymentStatusPaid    PaymentStatus = "Paid"
	PaymentStatusFailed  PaymentStatus = "Failed"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "Cash"
	PaymentPayPal PaymentMethod = "PayPal"
	PaymentKhalti PaymentMethod = "Khalti"
	PaymentStripe PaymentMethod = "Stripe"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentPayPal, PaymentKhalti, PaymentStripe:
		return true
	}
	return false
}

// ReservationStatus tracks the stock held by an order independently of its payment.
type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "Reserved"
	ReservationCommitted ReservationStatus = "Committed"
	ReservationReleased  ReservationStatus = "Released"
)

const DefaultCurrency = "NPR"

// NormalizeKey is the single matching rule for variant colors and sizes.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type Product struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"                json:"id"`
	Name          string          `gorm:"not null"                            json:"name"`
	Price         decimal.Decimal `gorm:"type:numeric(12,2);not null"         json:"price"`
	Images        []string        `gorm:"serializer:json"                     json:"images"`
	TotalQuantity int64           `gorm:"not null;default:0"                  json:"totalQuantity"`
	TotalSold     int64           `gorm:"not null;default:0"                  json:"totalSold"`
	Variants      []Variant       `gorm:"foreignKey:ProductID"                json:"variants,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

type Variant struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"                                  json:"id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_variant_key"        json:"productId"`
	Color     string    `gorm:"not null"                                              json:"color"`
	Size      string    `gorm:"not null"                                              json:"size"`
	ColorKey  string    `gorm:"not null;uniqueIndex:idx_variant_key"                  json:"-"`
	SizeKey   string    `gorm:"not null;uniqueIndex:idx_variant_key"                  json:"-"`
	Quantity  int64     `gorm:"not null;default:0;check:chk_variant_quantity,quantity >= 0" json:"quantity"`
}

func (Variant) TableName() string {
	return "product_variants"
}

func (v *Variant) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

func (v *Variant) BeforeSave(tx *gorm.DB) error {
	v.ColorKey = NormalizeKey(v.Color)
	v.SizeKey = NormalizeKey(v.Size)
	return nil
}

type Cart struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"          json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"userId"`
	Items     []CartItem `gorm:"foreignKey:CartID"             json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (c *Cart) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type CartItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"                                       json:"id"`
	CartID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_line"               json:"cartId"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_line"               json:"productId"`
	Quantity  int64     `gorm:"not null;default:1;check:chk_cart_quantity,quantity > 0"     json:"quantity"`
	Color     string    `gorm:"not null"                                                   json:"color"`
	Size      string    `gorm:"not null"                                                   json:"size"`
	ColorKey  string    `gorm:"not null;uniqueIndex:idx_cart_line"                         json:"-"`
	SizeKey   string    `gorm:"not null;uniqueIndex:idx_cart_line"                         json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

func (c *CartItem) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.ColorKey = NormalizeKey(c.Color)
	c.SizeKey = NormalizeKey(c.Size)
	return nil
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Order struct {
	ID                 uuid.UUID         `gorm:"type:uuid;primaryKey"                              json:"id"`
	UserID             uuid.UUID         `gorm:"type:uuid;not null;index;uniqueIndex:idx_order_idem" json:"userId"`
	Items              []OrderItem       `gorm:"foreignKey:OrderID"                                json:"orderItems"`
	TotalAmount        decimal.Decimal   `gorm:"type:numeric(12,2);not null"                       json:"totalAmount"`
	Address            string            `gorm:"not null"                                          json:"address"`
	Location           Location          `gorm:"embedded;embeddedPrefix:location_"                 json:"location"`
	Status             OrderStatus       `gorm:"not null;index"                                    json:"status"`
	PaymentMethod      PaymentMethod     `gorm:"not null"                                          json:"paymentMethod"`
	PaymentStatus      PaymentStatus     `gorm:"not null"                                          json:"paymentStatus"`
	PaymentID          string            `gorm:"index"                                             json:"paymentId,omitempty"`
	Currency           string            `gorm:"not null;default:NPR"                              json:"currency"`
	TransactionDetails map[string]any    `gorm:"serializer:json"                                   json:"transactionDetails,omitempty"`
	ReservationStatus  ReservationStatus `gorm:"not null;index"                                    json:"reservationStatus"`
	ReservedUntil      *time.Time        `gorm:"index"                                             json:"reservedUntil,omitempty"`
	IdempotencyKey     *string           `gorm:"uniqueIndex:idx_order_idem"                        json:"-"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem is a frozen snapshot of a purchased line; it never follows live product prices.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"        json:"id"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index"    json:"orderId"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null;index"    json:"productId"`
	ProductName string          `gorm:"not null"                    json:"productName"`
	Quantity    int64           `gorm:"not null;check:chk_order_item_quantity,quantity > 0" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	TotalPrice  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"totalPrice"`
	Color       string          `gorm:"not null"                    json:"color"`
	Size        string          `gorm:"not null"                    json:"size"`
}

func (o *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func All() []any {
	return []any{&Product{}, &Variant{}, &Cart{}, &CartItem{}, &Order{}, &OrderItem{}}
}
