package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-state/internal/model"
	"github.com/mmeshcher/storefront-state/internal/repository"
)

// ValidatePromo проверяет промокод для подытога без изменения счётчиков.
// Итоговая проверка повторяется в транзакции заказа.
func (s *Service) ValidatePromo(ctx context.Context, userID, code string, subtotal decimal.Decimal) (*model.PromoQuote, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	code = model.NormalizePromoCode(code)
	if code == "" {
		return nil, model.NewInputError("code", "is required")
	}
	if subtotal.IsNegative() {
		return nil, model.NewInputError("subtotal", "must be at least 0")
	}

	p, err := s.repo.GetPromoCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &model.PromoError{Code: code, Reason: model.PromoReasonNotFound}
	}
	if err != nil {
		return nil, model.StoreFailure("validate promo", err)
	}

	if reason := p.Check(s.clock.Now(), subtotal); reason != "" {
		return nil, &model.PromoError{Code: code, Reason: reason}
	}

	used, err := s.repo.HasUserUsedPromo(ctx, userID, p.ID)
	if err != nil {
		return nil, model.StoreFailure("validate promo", err)
	}
	if used {
		return nil, &model.PromoError{Code: code, Reason: model.PromoReasonAlreadyUsed}
	}

	return &model.PromoQuote{
		Code:           p.Code,
		Type:           p.Type,
		Discount:       p.Discount(subtotal),
		ShippingWaived: p.WaivesShipping(),
	}, nil
}

// CreatePromoCode сохраняет новый промокод.
func (s *Service) CreatePromoCode(ctx context.Context, p model.PromoCode) (*model.PromoCode, error) {
	p.Code = model.NormalizePromoCode(p.Code)

	var fields []model.FieldError
	if p.Code == "" {
		fields = append(fields, model.FieldError{Field: "code", Reason: "is required"})
	}
	switch p.Type {
	case model.PromoTypePercentage:
		if p.Value.LessThanOrEqual(decimal.Zero) || p.Value.GreaterThan(decimal.NewFromInt(100)) {
			fields = append(fields, model.FieldError{Field: "value", Reason: "must be between 0 and 100"})
		}
	case model.PromoTypeFixed:
		if p.Value.LessThanOrEqual(decimal.Zero) {
			fields = append(fields, model.FieldError{Field: "value", Reason: "must be positive"})
		}
	case model.PromoTypeFreeShipping:
	default:
		fields = append(fields, model.FieldError{Field: "type", Reason: "must be one of PERCENTAGE FIXED FREE_SHIPPING"})
	}
	if !p.ValidFrom.Before(p.ValidUntil) {
		fields = append(fields, model.FieldError{Field: "validUntil", Reason: "must be after validFrom"})
	}
	if p.Value.GreaterThan(model.MaxMoney) {
		fields = append(fields, model.FieldError{Field: "value", Reason: "must be at most " + model.MaxMoney.StringFixed(2)})
	}
	if p.MaxUses != nil {
		switch {
		case *p.MaxUses < 1:
			fields = append(fields, model.FieldError{Field: "maxUses", Reason: "must be at least 1"})
		case *p.MaxUses > model.MaxCount:
			fields = append(fields, model.FieldError{Field: "maxUses", Reason: fmt.Sprintf("must be at most %d", model.MaxCount)})
		}
	}
	if p.MinAmount != nil {
		switch {
		case p.MinAmount.IsNegative():
			fields = append(fields, model.FieldError{Field: "minAmount", Reason: "must be at least 0"})
		case p.MinAmount.GreaterThan(model.MaxMoney):
			fields = append(fields, model.FieldError{Field: "minAmount", Reason: "must be at most " + model.MaxMoney.StringFixed(2)})
		}
	}
	if len(fields) > 0 {
		return nil, &model.InputError{Fields: fields}
	}

	created, err := s.repo.CreatePromoCode(ctx, p)
	if errors.Is(err, repository.ErrConflict) {
		return nil, model.ErrAlreadyExists
	}
	if err != nil {
		return nil, model.StoreFailure("create promo code", err)
	}

	s.logger.Info("promo code created", zap.String("code", created.Code), zap.String("type", string(created.Type)))
	return created, nil
}
