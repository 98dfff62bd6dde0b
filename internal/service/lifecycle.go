package service

import (
	"fmt"
	"time"

	"github.com/mmeshcher/storefront-state/internal/model"
)

// allowedTransitions перечисляет допустимые смены статуса. Переходы назад
// нужны для ручных исправлений; из CANCELLED выхода нет.
var allowedTransitions = map[model.OrderStatus]map[model.OrderStatus]bool{
	model.OrderStatusPending: {
		model.OrderStatusProcessing: true,
		model.OrderStatusShipped:    true,
		model.OrderStatusDelivered:  true,
		model.OrderStatusCancelled:  true,
	},
	model.OrderStatusProcessing: {
		model.OrderStatusPending:   true,
		model.OrderStatusShipped:   true,
		model.OrderStatusDelivered: true,
		model.OrderStatusCancelled: true,
	},
	model.OrderStatusShipped: {
		model.OrderStatusPending:    true,
		model.OrderStatusProcessing: true,
		model.OrderStatusDelivered:  true,
	},
	model.OrderStatusDelivered: {
		model.OrderStatusPending:    true,
		model.OrderStatusProcessing: true,
		model.OrderStatusShipped:    true,
	},
	model.OrderStatusCancelled: {},
}

// applyTransition переводит заказ в статус to и поправляет отметки времени.
// changed=false означает повторную установку текущего статуса, изменений нет.
// release=true означает, что резервы позиций нужно вернуть на склад.
func applyTransition(o *model.Order, to model.OrderStatus, now time.Time) (changed, release bool, err error) {
	if o.Status == to {
		return false, false, nil
	}
	if !allowedTransitions[o.Status][to] {
		return false, false, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, o.Status, to)
	}

	stamp := func() *time.Time {
		t := now
		return &t
	}

	switch to {
	case model.OrderStatusPending, model.OrderStatusProcessing:
		o.ShippedAt = nil
		o.DeliveredAt = nil
	case model.OrderStatusShipped:
		if o.ShippedAt == nil {
			o.ShippedAt = stamp()
		}
		o.DeliveredAt = nil
	case model.OrderStatusDelivered:
		if o.ShippedAt == nil {
			o.ShippedAt = stamp()
		}
		if o.DeliveredAt == nil {
			o.DeliveredAt = stamp()
		}
	case model.OrderStatusCancelled:
		o.CancelledAt = stamp()
		release = true
	}

	o.Status = to
	return true, release, nil
}
