package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PromoType определяет вид скидки промокода.
type PromoType string

const (
	PromoTypePercentage   PromoType = "PERCENTAGE"
	PromoTypeFixed        PromoType = "FIXED"
	PromoTypeFreeShipping PromoType = "FREE_SHIPPING"
)

// PromoCode описывает промокод и счётчик его использований.
// UsedCount растёт только при зафиксированном заказе и не превышает MaxUses.
type PromoCode struct {
	ID         int64
	Code       string
	Type       PromoType
	Value      decimal.Decimal
	MinAmount  *decimal.Decimal
	ValidFrom  time.Time
	ValidUntil time.Time
	MaxUses    *int
	UsedCount  int
	Active     bool
}

// PromoReason задаёт причину отказа в применении промокода.
type PromoReason string

const (
	PromoReasonNotFound     PromoReason = "NOT_FOUND"
	PromoReasonInactive     PromoReason = "INACTIVE"
	PromoReasonNotYetValid  PromoReason = "NOT_YET_VALID"
	PromoReasonExpired      PromoReason = "EXPIRED"
	PromoReasonExhausted    PromoReason = "EXHAUSTED"
	PromoReasonBelowMinimum PromoReason = "BELOW_MINIMUM"
	PromoReasonAlreadyUsed  PromoReason = "ALREADY_USED"
)

// Check проверяет промокод на момент now для подытога subtotal.
// Проверка «уже использован этим пользователем» выполняется отдельно, в транзакции заказа.
// Возвращает пустую причину, если промокод применим.
func (p *PromoCode) Check(now time.Time, subtotal decimal.Decimal) PromoReason {
	switch {
	case !p.Active:
		return PromoReasonInactive
	case now.Before(p.ValidFrom):
		return PromoReasonNotYetValid
	case !now.Before(p.ValidUntil):
		return PromoReasonExpired
	case p.MaxUses != nil && p.UsedCount >= *p.MaxUses:
		return PromoReasonExhausted
	case p.MinAmount != nil && subtotal.LessThan(*p.MinAmount):
		return PromoReasonBelowMinimum
	}
	return ""
}

// Discount вычисляет скидку на товары для подытога subtotal.
// Для FREE_SHIPPING скидка на товары нулевая, снимается стоимость доставки.
func (p *PromoCode) Discount(subtotal decimal.Decimal) decimal.Decimal {
	switch p.Type {
	case PromoTypePercentage:
		pct := decimal.Min(p.Value, decimal.NewFromInt(100))
		return subtotal.Mul(pct).Div(decimal.NewFromInt(100)).Round(2)
	case PromoTypeFixed:
		return decimal.Min(p.Value, subtotal).Round(2)
	default:
		return decimal.Zero
	}
}

// WaivesShipping сообщает, отменяет ли промокод стоимость доставки.
func (p *PromoCode) WaivesShipping() bool {
	return p.Type == PromoTypeFreeShipping
}

// PromoQuote содержит результат предварительной проверки промокода.
type PromoQuote struct {
	Code           string          `json:"code"`
	Type           PromoType       `json:"type"`
	Discount       decimal.Decimal `json:"discount"`
	ShippingWaived bool            `json:"shippingWaived"`
}
