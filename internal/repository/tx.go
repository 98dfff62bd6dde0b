package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/mmeshcher/storefront-state/internal/model"
)

// Tx описывает операции, выполняемые внутри одной транзакции заказа.
// Все изменения либо фиксируются вместе, либо откатываются.
type Tx interface {
	// Reserve уменьшает остаток варианта на qty, только если остаток не меньше qty.
	Reserve(ctx context.Context, key model.VariantKey, qty int) (bool, error)
	// Release безусловно возвращает qty на остаток варианта.
	Release(ctx context.Context, key model.VariantKey, qty int) error
	AvailableQuantity(ctx context.Context, key model.VariantKey) (int, error)

	// LockPromoCode читает промокод и блокирует его строку до конца транзакции.
	LockPromoCode(ctx context.Context, code string) (*model.PromoCode, error)
	UserHasOrderWithPromo(ctx context.Context, userID string, promoID int64) (bool, error)
	// IncrementPromoUsage увеличивает счётчик использований, если лимит не исчерпан.
	IncrementPromoUsage(ctx context.Context, promoID int64) (bool, error)

	InsertOrder(ctx context.Context, order *model.Order) error
	// LockOrder читает заказ с позициями и блокирует его строку до конца транзакции.
	LockOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error)
	SaveOrderStatus(ctx context.Context, order *model.Order) error

	DeleteCartRows(ctx context.Context, userID string, keys []model.VariantKey) error
}

// TransactionManager скрывает от сервиса начало, фиксацию и откат транзакции.
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
