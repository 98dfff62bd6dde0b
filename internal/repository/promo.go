package repository

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront-state/internal/model"
)

const promoColumns = `id, code, type, value, min_amount, valid_from, valid_until, max_uses, used_count, active`

func scanPromoCode(row pgx.Row) (*model.PromoCode, error) {
	var (
		p         model.PromoCode
		minAmount decimal.NullDecimal
		maxUses   *int32
	)
	err := row.Scan(
		&p.ID,
		&p.Code,
		&p.Type,
		&p.Value,
		&minAmount,
		&p.ValidFrom,
		&p.ValidUntil,
		&maxUses,
		&p.UsedCount,
		&p.Active,
	)
	if err != nil {
		return nil, err
	}
	if minAmount.Valid {
		p.MinAmount = &minAmount.Decimal
	}
	if maxUses != nil {
		v := int(*maxUses)
		p.MaxUses = &v
	}
	return &p, nil
}

func promoByCode(ctx context.Context, q querier, code string, forUpdate bool) (*model.PromoCode, error) {
	query := `SELECT ` + promoColumns + ` FROM promo_codes WHERE upper(code) = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	p, err := scanPromoCode(q.QueryRow(ctx, query, model.NormalizePromoCode(code)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get promo code: %w", err)
	}
	return p, nil
}

func userHasOrderWithPromo(ctx context.Context, q querier, userID string, promoID int64) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM orders WHERE user_id = $1 AND promo_code_id = $2)`,
		userID, promoID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check promo usage: %w", err)
	}
	return exists, nil
}

// CreatePromoCode сохраняет новый промокод. Код уникален без учёта регистра.
func (r *PostgresRepository) CreatePromoCode(ctx context.Context, p model.PromoCode) (*model.PromoCode, error) {
	var maxUses *int32
	if p.MaxUses != nil {
		if *p.MaxUses < 0 || *p.MaxUses > math.MaxInt32 {
			return nil, fmt.Errorf("create promo code: max uses %d out of range", *p.MaxUses)
		}
		v := int32(*p.MaxUses)
		maxUses = &v
	}
	var minAmount decimal.NullDecimal
	if p.MinAmount != nil {
		minAmount = decimal.NewNullDecimal(*p.MinAmount)
	}

	var created *model.PromoCode
	err := r.withRetry(ctx, func(ctx context.Context) error {
		res, err := scanPromoCode(r.pool.QueryRow(ctx, `
			INSERT INTO promo_codes (code, type, value, min_amount, valid_from, valid_until, max_uses, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+promoColumns,
			model.NormalizePromoCode(p.Code), p.Type, p.Value, minAmount,
			p.ValidFrom, p.ValidUntil, maxUses, p.Active,
		))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("create promo code: %w", err)
		}
		created = res
		return nil
	})
	return created, err
}

// GetPromoCode читает промокод без блокировки.
func (r *PostgresRepository) GetPromoCode(ctx context.Context, code string) (*model.PromoCode, error) {
	return promoByCode(ctx, r.pool, code, false)
}

// HasUserUsedPromo сообщает, есть ли у пользователя заказ с этим промокодом.
func (r *PostgresRepository) HasUserUsedPromo(ctx context.Context, userID string, promoID int64) (bool, error) {
	return userHasOrderWithPromo(ctx, r.pool, userID, promoID)
}

func (t *pgTx) LockPromoCode(ctx context.Context, code string) (*model.PromoCode, error) {
	return promoByCode(ctx, t.q, code, true)
}

func (t *pgTx) UserHasOrderWithPromo(ctx context.Context, userID string, promoID int64) (bool, error) {
	return userHasOrderWithPromo(ctx, t.q, userID, promoID)
}

func (t *pgTx) IncrementPromoUsage(ctx context.Context, promoID int64) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE promo_codes
		SET used_count = used_count + 1
		WHERE id = $1 AND (max_uses IS NULL OR used_count < max_uses)`,
		promoID,
	)
	if err != nil {
		return false, fmt.Errorf("increment promo usage: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
