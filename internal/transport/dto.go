package transport

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/search"
)

type AddToCartRequest struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int64     `json:"quantity"`
	Color     string    `json:"color"`
	Size      string    `json:"size"`
}

type UpdateCartRequest struct {
	CartItemID uuid.UUID `json:"cartItemId"`
	Quantity   int64     `json:"quantity"`
}

type SelectedProduct struct {
	ProductID uuid.UUID `json:"productId"`
	Color     string    `json:"color"`
	Size      string    `json:"size"`
	Quantity  int64     `json:"quantity"`
}

// CreateOrderRequest is a direct "buy now" of a single variant.
type CreateOrderRequest struct {
	ProductID      uuid.UUID            `json:"productId"`
	Quantity       int64                `json:"quantity"`
	Color          string               `json:"color"`
	Size           string               `json:"size"`
	Address        string               `json:"address"`
	Location       models.Location      `json:"location"`
	PaymentMethod  models.PaymentMethod `json:"paymentMethod"`
	IdempotencyKey string               `json:"-"`
}

type PlaceOrderRequest struct {
	SelectedProducts []SelectedProduct    `json:"selectedProducts"`
	Address          string               `json:"address"`
	Location         models.Location      `json:"location"`
	PaymentMethod    models.PaymentMethod `json:"paymentMethod"`
	IdempotencyKey   string               `json:"-"`
}

type CreateIntentRequest struct {
	SelectedProducts []SelectedProduct `json:"selectedProducts"`
	Address          string            `json:"address"`
	Location         models.Location   `json:"location"`
	IdempotencyKey   string            `json:"-"`
}

type ConfirmIntentRequest struct {
	IntentID string `json:"intentId"`
}

type ChangeStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

type ProductSnapshot struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Images        []string        `json:"images"`
	TotalQuantity int64           `json:"totalQuantity"`
	Available     int64           `json:"available"`
}

type CartItemView struct {
	ID        uuid.UUID        `json:"id"`
	ProductID uuid.UUID        `json:"productId"`
	Quantity  int64            `json:"quantity"`
	Color     string           `json:"color"`
	Size      string           `json:"size"`
	Product   *ProductSnapshot `json:"product"`
}

type CartView struct {
	ID       uuid.UUID       `json:"id"`
	UserID   uuid.UUID       `json:"userId"`
	Items    []CartItemView  `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type PlaceOrderResponse struct {
	Message      string        `json:"message"`
	Order        *models.Order `json:"order"`
	ApprovalURL  string        `json:"approvalUrl,omitempty"`
	PaymentURL   string        `json:"paymentUrl,omitempty"`
	ClientSecret string        `json:"clientSecret,omitempty"`
}

type IntentResponse struct {
	IntentID     string    `json:"intentId"`
	ClientSecret string    `json:"clientSecret"`
	OrderID      uuid.UUID `json:"orderId"`
}

type OrderResponse struct {
	Message string        `json:"message"`
	Order   *models.Order `json:"order"`
}

type OrdersPage struct {
	Items []models.Order `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
}

type OrderSearchResponse struct {
	Items []search.OrderDoc `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Size  int               `json:"size"`
}
