package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-state/internal/model"
	"github.com/mmeshcher/storefront-state/internal/repository"
)

type cartSnapshot struct {
	Items []model.ClientCartRow `json:"items" validate:"max=500,dive"`
}

type favoritesSnapshot struct {
	Items []model.ClientFavoriteRow `json:"items" validate:"max=500,dive"`
}

// SyncCart сливает клиентскую корзину с сохранённой и возвращает итог с данными каталога.
func (s *Service) SyncCart(ctx context.Context, userID string, rows []model.ClientCartRow) ([]model.EnrichedCartRow, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(cartSnapshot{Items: rows}); err != nil {
		return nil, err
	}

	merged, err := s.engine.ReconcileCart(ctx, userID, rows)
	if err != nil {
		s.logger.Error("sync cart failed", zap.String("userID", userID), zap.Error(err))
		return nil, err
	}

	return s.enricher.EnrichCart(ctx, merged), nil
}

// SyncFavorites сливает клиентское избранное с сохранённым.
func (s *Service) SyncFavorites(ctx context.Context, userID string, rows []model.ClientFavoriteRow) ([]model.EnrichedFavorite, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(favoritesSnapshot{Items: rows}); err != nil {
		return nil, err
	}

	merged, err := s.engine.ReconcileFavorites(ctx, userID, rows)
	if err != nil {
		s.logger.Error("sync favorites failed", zap.String("userID", userID), zap.Error(err))
		return nil, err
	}

	return s.enricher.EnrichFavorites(ctx, merged), nil
}

// GetCart возвращает сохранённую корзину без слияния.
func (s *Service) GetCart(ctx context.Context, userID string) ([]model.EnrichedCartRow, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListCartRows(ctx, userID)
	if err != nil {
		return nil, model.StoreFailure("get cart", err)
	}
	return s.enricher.EnrichCart(ctx, rows), nil
}

// GetFavorites возвращает сохранённое избранное без слияния.
func (s *Service) GetFavorites(ctx context.Context, userID string) ([]model.EnrichedFavorite, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListFavorites(ctx, userID)
	if err != nil {
		return nil, model.StoreFailure("get favorites", err)
	}
	return s.enricher.EnrichFavorites(ctx, rows), nil
}

// stockLimit возвращает наибольшее количество варианта в строке корзины:
// доступный остаток, но не больше model.MaxQuantity. Без учёта остатка действует
// только model.MaxQuantity.
func (s *Service) stockLimit(ctx context.Context, key model.VariantKey) (int, error) {
	available, err := s.repo.AvailableQuantity(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return model.MaxQuantity, nil
	}
	if err != nil {
		return 0, err
	}
	return min(available, model.MaxQuantity), nil
}

// AddCartItem добавляет количество к строке корзины, не превышая остаток.
func (s *Service) AddCartItem(ctx context.Context, userID string, item model.ClientCartRow) (model.CartRow, error) {
	if err := requireUser(userID); err != nil {
		return model.CartRow{}, err
	}
	if err := s.validator.Struct(item); err != nil {
		return model.CartRow{}, err
	}
	if item.Quantity < 1 {
		return model.CartRow{}, model.NewInputError("quantity", "must be at least 1")
	}

	limit, err := s.stockLimit(ctx, item.VariantKey)
	if err != nil {
		return model.CartRow{}, model.StoreFailure("add cart item", err)
	}
	if limit < 1 {
		return model.CartRow{}, &model.StockError{Shortages: []model.StockShortage{{
			Variant:      item.VariantKey,
			RequestedQty: item.Quantity,
			AvailableQty: 0,
		}}}
	}

	row, err := s.repo.AddCartRow(ctx, model.CartRow{
		UserID:    userID,
		Variant:   item.VariantKey,
		Quantity:  item.Quantity,
		UnitPrice: item.Price.Round(2),
	}, limit)
	if err != nil {
		return model.CartRow{}, model.StoreFailure("add cart item", err)
	}
	return row, nil
}

// SetCartItemQuantity задаёт количество в существующей строке корзины.
// Нулевое количество удаляет строку.
func (s *Service) SetCartItemQuantity(ctx context.Context, userID string, key model.VariantKey, qty int) (model.CartRow, error) {
	if err := requireUser(userID); err != nil {
		return model.CartRow{}, err
	}
	if err := s.validator.Struct(key); err != nil {
		return model.CartRow{}, err
	}
	if qty < 0 {
		return model.CartRow{}, model.NewInputError("quantity", "must be at least 0")
	}
	if qty > model.MaxQuantity {
		return model.CartRow{}, model.NewInputError("quantity", fmt.Sprintf("must be at most %d", model.MaxQuantity))
	}
	if qty == 0 {
		return model.CartRow{}, s.RemoveCartItem(ctx, userID, key)
	}

	row, err := s.repo.GetCartRow(ctx, userID, key)
	if errors.Is(err, repository.ErrNotFound) {
		return model.CartRow{}, model.ErrNotFound
	}
	if err != nil {
		return model.CartRow{}, model.StoreFailure("set cart quantity", err)
	}

	limit, err := s.stockLimit(ctx, key)
	if err != nil {
		return model.CartRow{}, model.StoreFailure("set cart quantity", err)
	}
	if qty > limit {
		return model.CartRow{}, &model.StockError{Shortages: []model.StockShortage{{
			Variant:      key,
			RequestedQty: qty,
			AvailableQty: limit,
		}}}
	}

	row.Quantity = qty
	updated, err := s.repo.UpsertCartRow(ctx, row)
	if err != nil {
		return model.CartRow{}, model.StoreFailure("set cart quantity", err)
	}
	return updated, nil
}

// RemoveCartItem удаляет строку корзины. Повторное удаление не является ошибкой.
func (s *Service) RemoveCartItem(ctx context.Context, userID string, key model.VariantKey) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := s.validator.Struct(key); err != nil {
		return err
	}
	if err := s.repo.DeleteCartRow(ctx, userID, key); err != nil {
		return model.StoreFailure("remove cart item", err)
	}
	return nil
}

// AddFavorite добавляет товар в избранное.
func (s *Service) AddFavorite(ctx context.Context, userID, productID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := s.validator.Struct(model.ClientFavoriteRow{ProductID: productID}); err != nil {
		return err
	}
	if err := s.repo.AddFavorite(ctx, userID, productID); err != nil && !errors.Is(err, repository.ErrConflict) {
		return model.StoreFailure("add favorite", err)
	}
	return nil
}

// RemoveFavorite удаляет товар из избранного.
func (s *Service) RemoveFavorite(ctx context.Context, userID, productID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := s.repo.DeleteFavorite(ctx, userID, productID); err != nil {
		return model.StoreFailure("remove favorite", err)
	}
	return nil
}
