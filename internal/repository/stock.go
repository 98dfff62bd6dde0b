package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/storefront-state/internal/model"
)

func reserveStock(ctx context.Context, q querier, key model.VariantKey, qty int) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE stock_records
		SET available_quantity = available_quantity - $4, updated_at = now()
		WHERE product_id = $1 AND color_name = $2 AND size_name = $3
		  AND available_quantity >= $4`,
		key.ProductID, key.ColorName, key.SizeName, qty,
	)
	if err != nil {
		return false, fmt.Errorf("reserve stock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func releaseStock(ctx context.Context, q querier, key model.VariantKey, qty int) error {
	_, err := q.Exec(ctx, `
		INSERT INTO stock_records (product_id, color_name, size_name, available_quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id, color_name, size_name) DO UPDATE
		SET available_quantity = stock_records.available_quantity + EXCLUDED.available_quantity,
		    updated_at = now()`,
		key.ProductID, key.ColorName, key.SizeName, qty,
	)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	return nil
}

func availableQuantity(ctx context.Context, q querier, key model.VariantKey) (int, error) {
	var qty int
	err := q.QueryRow(ctx, `
		SELECT available_quantity
		FROM stock_records
		WHERE product_id = $1 AND color_name = $2 AND size_name = $3`,
		key.ProductID, key.ColorName, key.SizeName,
	).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("get available quantity: %w", err)
	}
	return qty, nil
}

// Reserve атомарно уменьшает остаток варианта на qty одним условным UPDATE.
// Возвращает false без записи, если остатка не хватает или записи нет.
func (r *PostgresRepository) Reserve(ctx context.Context, key model.VariantKey, qty int) (bool, error) {
	var ok bool
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		ok, err = reserveStock(ctx, r.pool, key, qty)
		return err
	})
	return ok, err
}

// Release возвращает qty на остаток варианта.
func (r *PostgresRepository) Release(ctx context.Context, key model.VariantKey, qty int) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		return releaseStock(ctx, r.pool, key, qty)
	})
}

// AvailableQuantity возвращает текущий остаток варианта или ErrNotFound, если учёта нет.
func (r *PostgresRepository) AvailableQuantity(ctx context.Context, key model.VariantKey) (int, error) {
	return availableQuantity(ctx, r.pool, key)
}

// SetStock задаёт остаток варианта.
func (r *PostgresRepository) SetStock(ctx context.Context, key model.VariantKey, qty int) (model.StockRecord, error) {
	rec := model.StockRecord{Variant: key}
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx, `
			INSERT INTO stock_records (product_id, color_name, size_name, available_quantity)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (product_id, color_name, size_name) DO UPDATE
			SET available_quantity = EXCLUDED.available_quantity, updated_at = now()
			RETURNING available_quantity, updated_at`,
			key.ProductID, key.ColorName, key.SizeName, qty,
		).Scan(&rec.AvailableQuantity, &rec.UpdatedAt)
	})
	if err != nil {
		return model.StockRecord{}, fmt.Errorf("set stock: %w", err)
	}
	return rec, nil
}

func (t *pgTx) Reserve(ctx context.Context, key model.VariantKey, qty int) (bool, error) {
	return reserveStock(ctx, t.q, key, qty)
}

func (t *pgTx) Release(ctx context.Context, key model.VariantKey, qty int) error {
	return releaseStock(ctx, t.q, key, qty)
}

func (t *pgTx) AvailableQuantity(ctx context.Context, key model.VariantKey) (int, error) {
	return availableQuantity(ctx, t.q, key)
}
