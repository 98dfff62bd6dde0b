package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/storefront-state/internal/model"
)

// SetStock задаёт доступный остаток варианта.
func (s *Service) SetStock(ctx context.Context, key model.VariantKey, qty int) (model.StockRecord, error) {
	if err := s.validator.Struct(key); err != nil {
		return model.StockRecord{}, err
	}
	if qty < 0 {
		return model.StockRecord{}, model.NewInputError("availableQuantity", "must be at least 0")
	}
	if qty > model.MaxCount {
		return model.StockRecord{}, model.NewInputError("availableQuantity", fmt.Sprintf("must be at most %d", model.MaxCount))
	}

	rec, err := s.repo.SetStock(ctx, key, qty)
	if err != nil {
		return model.StockRecord{}, model.StoreFailure("set stock", err)
	}
	return rec, nil
}
