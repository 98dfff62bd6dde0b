package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus описывает этап жизненного цикла заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// Valid сообщает, является ли значение известным статусом.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// OrderItem описывает позицию заказа, зафиксированную при создании.
// После создания не пересчитывается по каталогу.
type OrderItem struct {
	Variant   VariantKey      `json:"variant"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// LineTotal возвращает стоимость позиции.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order описывает заказ пользователя.
type Order struct {
	ID           uuid.UUID       `json:"id"`
	UserID       string          `json:"userId"`
	AddressID    string          `json:"addressId"`
	Status       OrderStatus     `json:"status"`
	PromoCodeID  *int64          `json:"-"`
	PromoCode    *string         `json:"promoCode,omitempty"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	Total        decimal.Decimal `json:"total"`
	Items        []OrderItem     `json:"items"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	ShippedAt    *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt  *time.Time      `json:"deliveredAt,omitempty"`
	CancelledAt  *time.Time      `json:"cancelledAt,omitempty"`
}

// LineItem описывает позицию, которую пользователь отправляет при оформлении заказа.
type LineItem struct {
	VariantKey
	Quantity  int             `json:"quantity" validate:"gte=1,lte=1000"`
	UnitPrice decimal.Decimal `json:"unitPrice" validate:"gte=0,lte=9999999999.99"`
}

// OrderRequest описывает запрос на оформление заказа.
type OrderRequest struct {
	AddressID string     `json:"addressId" validate:"required,max=64"`
	PromoCode *string    `json:"promoCode,omitempty" validate:"omitempty,max=64"`
	Items     []LineItem `json:"items" validate:"min=1,max=100,dive"`
}
