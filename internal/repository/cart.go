package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/storefront-state/internal/model"
)

const cartColumns = `user_id, product_id, color_name, size_name, quantity, unit_price, created_at, updated_at`

func scanCartRow(row pgx.Row) (model.CartRow, error) {
	var r model.CartRow
	err := row.Scan(
		&r.UserID,
		&r.Variant.ProductID,
		&r.Variant.ColorName,
		&r.Variant.SizeName,
		&r.Quantity,
		&r.UnitPrice,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

// UpsertCartRow создаёт строку корзины или заменяет количество и цену существующей.
// Выполняется одним INSERT ... ON CONFLICT DO UPDATE.
func (r *PostgresRepository) UpsertCartRow(ctx context.Context, row model.CartRow) (model.CartRow, error) {
	var out model.CartRow
	err := r.withRetry(ctx, func(ctx context.Context) error {
		res, err := scanCartRow(r.pool.QueryRow(ctx, `
			INSERT INTO cart_rows (user_id, product_id, color_name, size_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, product_id, color_name, size_name) DO UPDATE
			SET quantity = EXCLUDED.quantity,
			    unit_price = EXCLUDED.unit_price,
			    updated_at = now()
			RETURNING `+cartColumns,
			row.UserID, row.Variant.ProductID, row.Variant.ColorName, row.Variant.SizeName,
			row.Quantity, row.UnitPrice,
		))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("upsert cart row: %w", err)
		}
		out = res
		return nil
	})
	return out, err
}

// AddCartRow увеличивает количество в строке корзины на row.Quantity, не превышая maxQty.
// Если строки нет, она создаётся с количеством min(row.Quantity, maxQty).
func (r *PostgresRepository) AddCartRow(ctx context.Context, row model.CartRow, maxQty int) (model.CartRow, error) {
	var out model.CartRow
	err := r.withRetry(ctx, func(ctx context.Context) error {
		res, err := scanCartRow(r.pool.QueryRow(ctx, `
			INSERT INTO cart_rows (user_id, product_id, color_name, size_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, LEAST($5::int, $7::int), $6)
			ON CONFLICT (user_id, product_id, color_name, size_name) DO UPDATE
			SET quantity = LEAST(cart_rows.quantity + EXCLUDED.quantity, $7::int),
			    unit_price = EXCLUDED.unit_price,
			    updated_at = now()
			RETURNING `+cartColumns,
			row.UserID, row.Variant.ProductID, row.Variant.ColorName, row.Variant.SizeName,
			row.Quantity, row.UnitPrice, maxQty,
		))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("add cart row: %w", err)
		}
		out = res
		return nil
	})
	return out, err
}

// GetCartRow возвращает строку корзины по естественному ключу.
func (r *PostgresRepository) GetCartRow(ctx context.Context, userID string, key model.VariantKey) (model.CartRow, error) {
	row, err := scanCartRow(r.pool.QueryRow(ctx, `
		SELECT `+cartColumns+`
		FROM cart_rows
		WHERE user_id = $1 AND product_id = $2 AND color_name = $3 AND size_name = $4`,
		userID, key.ProductID, key.ColorName, key.SizeName,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CartRow{}, ErrNotFound
		}
		return model.CartRow{}, fmt.Errorf("get cart row: %w", err)
	}
	return row, nil
}

// ListCartRows возвращает все строки корзины пользователя в порядке добавления.
func (r *PostgresRepository) ListCartRows(ctx context.Context, userID string) ([]model.CartRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+cartColumns+`
		FROM cart_rows
		WHERE user_id = $1
		ORDER BY created_at, product_id, color_name, size_name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cart rows: %w", err)
	}
	defer rows.Close()

	var result []model.CartRow
	for rows.Next() {
		row, err := scanCartRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// DeleteCartRow удаляет строку корзины. Отсутствие строки ошибкой не считается.
func (r *PostgresRepository) DeleteCartRow(ctx context.Context, userID string, key model.VariantKey) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		return deleteCartRows(ctx, r.pool, userID, []model.VariantKey{key})
	})
}

func deleteCartRows(ctx context.Context, q querier, userID string, keys []model.VariantKey) error {
	for _, key := range keys {
		_, err := q.Exec(ctx, `
			DELETE FROM cart_rows
			WHERE user_id = $1 AND product_id = $2 AND color_name = $3 AND size_name = $4`,
			userID, key.ProductID, key.ColorName, key.SizeName,
		)
		if err != nil {
			return fmt.Errorf("delete cart row: %w", err)
		}
	}
	return nil
}

// DeleteCartRows удаляет заказанные строки корзины в той же транзакции, что и заказ.
func (t *pgTx) DeleteCartRows(ctx context.Context, userID string, keys []model.VariantKey) error {
	return deleteCartRows(ctx, t.q, userID, keys)
}

// AddFavorite добавляет товар в избранное. Повторное добавление ничего не меняет.
func (r *PostgresRepository) AddFavorite(ctx context.Context, userID, productID string) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO favorites (user_id, product_id)
			VALUES ($1, $2)
			ON CONFLICT (user_id, product_id) DO NOTHING`,
			userID, productID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("add favorite: %w", err)
		}
		return nil
	})
}

// ListFavorites возвращает избранное пользователя в порядке добавления.
func (r *PostgresRepository) ListFavorites(ctx context.Context, userID string) ([]model.FavoriteRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, product_id, created_at
		FROM favorites
		WHERE user_id = $1
		ORDER BY created_at, product_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var result []model.FavoriteRow
	for rows.Next() {
		var f model.FavoriteRow
		if err := rows.Scan(&f.UserID, &f.ProductID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

// DeleteFavorite удаляет товар из избранного. Отсутствие строки ошибкой не считается.
func (r *PostgresRepository) DeleteFavorite(ctx context.Context, userID, productID string) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `DELETE FROM favorites WHERE user_id = $1 AND product_id = $2`, userID, productID)
		if err != nil {
			return fmt.Errorf("delete favorite: %w", err)
		}
		return nil
	})
}
