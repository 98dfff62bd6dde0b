// Package reconcile сливает клиентский снимок корзины и избранного
// с сохранённым на сервере состоянием пользователя.
//
// Слияние работает как объединение: строки, известные только серверу, сохраняются,
// строки из снимка создаются или заменяют количество и цену сохранённых.
// Повторный вызов с тем же снимком ничего не меняет.
package reconcile

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-state/internal/model"
	"github.com/mmeshcher/storefront-state/internal/repository"
)

// Store описывает хранилище корзины и избранного, используемое движком.
type Store interface {
	UpsertCartRow(ctx context.Context, row model.CartRow) (model.CartRow, error)
	GetCartRow(ctx context.Context, userID string, key model.VariantKey) (model.CartRow, error)
	ListCartRows(ctx context.Context, userID string) ([]model.CartRow, error)
	AddFavorite(ctx context.Context, userID, productID string) error
	ListFavorites(ctx context.Context, userID string) ([]model.FavoriteRow, error)
	AvailableQuantity(ctx context.Context, key model.VariantKey) (int, error)
}

// Engine выполняет слияние снимков.
type Engine struct {
	store  Store
	logger *zap.Logger
}

// NewEngine создаёт движок слияния.
func NewEngine(store Store, logger *zap.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// ReconcileCart сливает строки корзины из снимка с сохранёнными и возвращает итоговый набор.
// Конфликт по отдельной строке не прерывает слияние; ошибка возвращается только
// при отказе хранилища.
func (e *Engine) ReconcileCart(ctx context.Context, userID string, clientRows []model.ClientCartRow) ([]model.CartRow, error) {
	for _, row := range dedupCart(clientRows) {
		qty, err := e.clampQuantity(ctx, row.VariantKey, row.Quantity)
		if err != nil {
			return nil, model.StoreFailure("reconcile cart", err)
		}

		target := model.CartRow{
			UserID:    userID,
			Variant:   row.VariantKey,
			Quantity:  qty,
			UnitPrice: row.Price.Round(2),
		}

		if err := e.upsertCartRow(ctx, target); err != nil {
			return nil, model.StoreFailure("reconcile cart", err)
		}
	}

	rows, err := e.store.ListCartRows(ctx, userID)
	if err != nil {
		return nil, model.StoreFailure("reconcile cart", err)
	}
	return rows, nil
}

func (e *Engine) upsertCartRow(ctx context.Context, row model.CartRow) error {
	_, err := e.store.UpsertCartRow(ctx, row)
	if !errors.Is(err, repository.ErrConflict) {
		return err
	}

	persisted, err := e.store.GetCartRow(ctx, row.UserID, row.Variant)
	switch {
	case err == nil:
		e.logger.Warn("conflict retried",
			zap.String("userID", row.UserID),
			zap.Stringer("variant", row.Variant),
			zap.Int("quantity", persisted.Quantity),
		)
		return nil
	case errors.Is(err, repository.ErrNotFound):
		_, err = e.store.UpsertCartRow(ctx, row)
		if errors.Is(err, repository.ErrConflict) {
			e.logger.Warn("conflict retried", zap.String("userID", row.UserID), zap.Stringer("variant", row.Variant))
			return nil
		}
		return err
	default:
		return err
	}
}

// clampQuantity ограничивает количество снизу единицей и сверху остатком варианта.
// Если учёта остатка нет, ограничение сверху не применяется; нижняя граница важнее верхней.
func (e *Engine) clampQuantity(ctx context.Context, key model.VariantKey, qty int) (int, error) {
	available, err := e.store.AvailableQuantity(ctx, key)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return max(qty, 1), nil
	case err != nil:
		return 0, err
	}
	return max(min(qty, available), 1), nil
}

// ReconcileFavorites добавляет товары из снимка в избранное и возвращает итоговый набор.
func (e *Engine) ReconcileFavorites(ctx context.Context, userID string, clientRows []model.ClientFavoriteRow) ([]model.FavoriteRow, error) {
	seen := make(map[string]struct{}, len(clientRows))
	for _, row := range clientRows {
		if _, ok := seen[row.ProductID]; ok {
			continue
		}
		seen[row.ProductID] = struct{}{}

		err := e.store.AddFavorite(ctx, userID, row.ProductID)
		if errors.Is(err, repository.ErrConflict) {
			e.logger.Warn("conflict retried", zap.String("userID", userID), zap.String("productID", row.ProductID))
			continue
		}
		if err != nil {
			return nil, model.StoreFailure("reconcile favorites", err)
		}
	}

	favs, err := e.store.ListFavorites(ctx, userID)
	if err != nil {
		return nil, model.StoreFailure("reconcile favorites", err)
	}
	return favs, nil
}

// dedupCart оставляет по одной строке на вариант; при повторах побеждает последняя.
func dedupCart(rows []model.ClientCartRow) []model.ClientCartRow {
	index := make(map[model.VariantKey]int, len(rows))
	result := make([]model.ClientCartRow, 0, len(rows))
	for _, row := range rows {
		if i, ok := index[row.VariantKey]; ok {
			result[i] = row
			continue
		}
		index[row.VariantKey] = len(result)
		result = append(result, row)
	}
	return result
}
