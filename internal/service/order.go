package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-state/internal/model"
	"github.com/mmeshcher/storefront-state/internal/repository"
)

// mergeLines объединяет повторяющиеся варианты, суммируя количество,
// и сортирует позиции по ключу, чтобы блокировки остатков брались в одном порядке.
// Повторы одного варианта с разной ценой отклоняются.
func mergeLines(items []model.LineItem) ([]model.OrderItem, error) {
	index := make(map[model.VariantKey]int, len(items))
	merged := make([]model.OrderItem, 0, len(items))
	for _, it := range items {
		price := it.UnitPrice.Round(2)
		if i, ok := index[it.VariantKey]; ok {
			if !merged[i].UnitPrice.Equal(price) {
				return nil, model.NewInputError("items", "conflicting unit price for "+it.VariantKey.String())
			}
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.VariantKey] = len(merged)
		merged = append(merged, model.OrderItem{
			Variant:   it.VariantKey,
			Quantity:  it.Quantity,
			UnitPrice: price,
		})
	}

	slices.SortFunc(merged, func(a, b model.OrderItem) int {
		return strings.Compare(a.Variant.String(), b.Variant.String())
	})
	return merged, nil
}

func subtotalOf(items []model.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total.Round(2)
}

// price заполняет скидку, доставку и итог заказа.
func (s *Service) price(order *model.Order, promo *model.PromoCode) {
	order.Discount = decimal.Zero
	order.ShippingCost = s.settings.ShippingFee.Round(2)
	if promo != nil {
		order.Discount = promo.Discount(order.Subtotal)
		if promo.WaivesShipping() {
			order.ShippingCost = decimal.Zero
		}
	}
	order.Total = order.Subtotal.Sub(order.Discount).Add(order.ShippingCost).Round(2)
}

// CreateOrder оформляет заказ: проверяет промокод, резервирует остатки всех позиций,
// учитывает использование промокода и сохраняет заказ в одной транзакции.
// При нехватке остатков возвращает *model.StockError со всеми недоступными позициями,
// при отказе промокода возвращает *model.PromoError. Частичных резервов не остаётся.
func (s *Service) CreateOrder(ctx context.Context, userID string, req model.OrderRequest) (*model.Order, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	items, err := mergeLines(req.Items)
	if err != nil {
		return nil, err
	}
	subtotal := subtotalOf(items)
	if subtotal.Add(s.settings.ShippingFee).GreaterThan(model.MaxMoney) {
		return nil, model.NewInputError("items", "order total must be at most "+model.MaxMoney.StringFixed(2))
	}

	ctx, cancel := context.WithTimeout(ctx, s.settings.OrderTimeout)
	defer cancel()

	code := ""
	if req.PromoCode != nil {
		code = model.NormalizePromoCode(*req.PromoCode)
	}

	order := &model.Order{
		ID:        uuid.New(),
		UserID:    userID,
		AddressID: strings.TrimSpace(req.AddressID),
		Status:    model.OrderStatusPending,
		Items:     items,
		Subtotal:  subtotal,
	}
	now := s.clock.Now()

	err = s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		order.PromoCodeID = nil
		order.PromoCode = nil

		var promo *model.PromoCode
		if code != "" {
			p, err := checkPromoInTx(ctx, tx, userID, code, order.Subtotal, now)
			if err != nil {
				return err
			}
			promo = p
		}

		var shortages []model.StockShortage
		for _, it := range items {
			ok, err := tx.Reserve(ctx, it.Variant, it.Quantity)
			if err != nil {
				return err
			}
			if ok {
				continue
			}

			available, err := tx.AvailableQuantity(ctx, it.Variant)
			if errors.Is(err, repository.ErrNotFound) {
				available, err = 0, nil
			}
			if err != nil {
				return err
			}
			shortages = append(shortages, model.StockShortage{
				Variant:      it.Variant,
				RequestedQty: it.Quantity,
				AvailableQty: available,
			})
		}
		if len(shortages) > 0 {
			return &model.StockError{Shortages: shortages}
		}

		if promo != nil {
			ok, err := tx.IncrementPromoUsage(ctx, promo.ID)
			if err != nil {
				return err
			}
			if !ok {
				return &model.PromoError{Code: code, Reason: model.PromoReasonExhausted}
			}
			order.PromoCodeID = &promo.ID
			order.PromoCode = &promo.Code
		}

		s.price(order, promo)

		if err := tx.InsertOrder(ctx, order); err != nil {
			if errors.Is(err, repository.ErrConflict) && promo != nil {
				return &model.PromoError{Code: code, Reason: model.PromoReasonAlreadyUsed}
			}
			return err
		}

		keys := make([]model.VariantKey, 0, len(items))
		for _, it := range items {
			keys = append(keys, it.Variant)
		}
		return tx.DeleteCartRows(ctx, userID, keys)
	})
	if err != nil {
		err = domainError("create order", err)
		if errors.Is(err, model.ErrStoreUnavailable) {
			s.logger.Error("create order failed", zap.String("userID", userID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("orderID", order.ID.String()),
		zap.String("userID", userID),
		zap.String("total", order.Total.StringFixed(2)),
	)
	return order, nil
}

// checkPromoInTx блокирует промокод и проверяет, что пользователь может его применить.
func checkPromoInTx(ctx context.Context, tx repository.Tx, userID, code string, subtotal decimal.Decimal, now time.Time) (*model.PromoCode, error) {
	p, err := tx.LockPromoCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &model.PromoError{Code: code, Reason: model.PromoReasonNotFound}
	}
	if err != nil {
		return nil, err
	}

	if reason := p.Check(now, subtotal); reason != "" {
		return nil, &model.PromoError{Code: code, Reason: reason}
	}

	used, err := tx.UserHasOrderWithPromo(ctx, userID, p.ID)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, &model.PromoError{Code: code, Reason: model.PromoReasonAlreadyUsed}
	}
	return p, nil
}

// GetOrders возвращает заказы пользователя.
func (s *Service) GetOrders(ctx context.Context, userID string) ([]model.Order, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	orders, err := s.repo.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, model.StoreFailure("get orders", err)
	}
	return orders, nil
}

// GetOrder возвращает заказ пользователя. Чужой заказ считается ненайденным.
func (s *Service) GetOrder(ctx context.Context, userID string, orderID uuid.UUID) (*model.Order, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	o, err := s.repo.GetOrder(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, model.StoreFailure("get order", err)
	}
	if o.UserID != userID {
		return nil, model.ErrNotFound
	}
	return o, nil
}

// UpdateOrderStatus переводит заказ в новый статус, выставляя отметки времени.
// Отмена возвращает зарезервированные остатки ровно один раз.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	return s.changeStatus(ctx, orderID, status, "")
}

// CancelOrder отменяет заказ от имени его владельца.
func (s *Service) CancelOrder(ctx context.Context, userID string, orderID uuid.UUID) (*model.Order, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.changeStatus(ctx, orderID, model.OrderStatusCancelled, userID)
}

func (s *Service) changeStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus, owner string) (*model.Order, error) {
	if !status.Valid() {
		return nil, model.NewInputError("status", "must be one of PENDING PROCESSING SHIPPED DELIVERED CANCELLED")
	}

	ctx, cancel := context.WithTimeout(ctx, s.settings.OrderTimeout)
	defer cancel()

	var (
		result  *model.Order
		from    model.OrderStatus
		changed bool
	)
	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}
		if owner != "" && o.UserID != owner {
			return model.ErrNotFound
		}

		from = o.Status
		var release bool
		changed, release, err = applyTransition(o, status, s.clock.Now())
		if err != nil {
			return err
		}
		result = o
		if !changed {
			return nil
		}

		if release {
			for _, it := range o.Items {
				if err := tx.Release(ctx, it.Variant, it.Quantity); err != nil {
					return err
				}
			}
		}

		return tx.SaveOrderStatus(ctx, o)
	})
	if err != nil {
		return nil, domainError("update order status", err)
	}

	if changed {
		s.logger.Info("order status changed",
			zap.String("orderID", orderID.String()),
			zap.String("from", string(from)),
			zap.String("to", string(status)),
		)
	}
	return result, nil
}
