package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/storefront-state/internal/model"
)

const orderColumns = `id, user_id, address_id, status, promo_code_id, promo_code,
	subtotal, discount, shipping_cost, total,
	created_at, updated_at, shipped_at, delivered_at, cancelled_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.AddressID,
		&o.Status,
		&o.PromoCodeID,
		&o.PromoCode,
		&o.Subtotal,
		&o.Discount,
		&o.ShippingCost,
		&o.Total,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.ShippedAt,
		&o.DeliveredAt,
		&o.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func loadOrderItems(ctx context.Context, q querier, order *model.Order) error {
	rows, err := q.Query(ctx, `
		SELECT product_id, color_name, size_name, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_no`,
		order.ID,
	)
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	order.Items = nil
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.Variant.ProductID, &it.Variant.ColorName, &it.Variant.SizeName, &it.Quantity, &it.UnitPrice); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		order.Items = append(order.Items, it)
	}
	return rows.Err()
}

func orderByID(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	o, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := loadOrderItems(ctx, q, o); err != nil {
		return nil, err
	}
	return o, nil
}

// GetOrder возвращает заказ с позициями.
func (r *PostgresRepository) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return orderByID(ctx, r.pool, id, false)
}

// ListOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *PostgresRepository) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	for i := range orders {
		if err := loadOrderItems(ctx, r.pool, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, order *model.Order) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, address_id, status, promo_code_id, promo_code,
			subtotal, discount, shipping_cost, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		order.ID, order.UserID, order.AddressID, order.Status, order.PromoCodeID, order.PromoCode,
		order.Subtotal, order.Discount, order.ShippingCost, order.Total,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range order.Items {
		_, err := t.q.Exec(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, color_name, size_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			order.ID, i+1, it.Variant.ProductID, it.Variant.ColorName, it.Variant.SizeName, it.Quantity, it.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	return orderByID(ctx, t.q, orderID, true)
}

func (t *pgTx) SaveOrderStatus(ctx context.Context, order *model.Order) error {
	err := t.q.QueryRow(ctx, `
		UPDATE orders
		SET status = $2, shipped_at = $3, delivered_at = $4, cancelled_at = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		order.ID, order.Status, order.ShippedAt, order.DeliveredAt, order.CancelledAt,
	).Scan(&order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("save order status: %w", err)
	}
	return nil
}
