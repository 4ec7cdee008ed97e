package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type orderRepository struct {
	q  querier
	db *sql.DB
}

func (r *orderRepository) Create(ctx context.Context, customer domain.Customer, lines []domain.OrderLine) (domain.Order, error) {
	if r.db != nil {
		var order domain.Order
		err := runInTx(ctx, r.db, func(tx *sql.Tx) error {
			var err error
			order, err = (&orderRepository{q: tx}).Create(ctx, customer, lines)
			return err
		})
		return order, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC().Round(time.Microsecond)
	order := domain.Order{
		ID:         uuid.NewString(),
		CustomerID: customer.ID,
		Lines:      make([]domain.OrderLine, 0, len(lines)),
		CreatedAt:  now,
	}

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, created_at)
		VALUES (?, ?, ?)`,
		order.ID, order.CustomerID, order.CreatedAt,
	); err != nil {
		if isDuplicateEntry(err) {
			return domain.Order{}, domain.ErrOrderAlreadyExists
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for _, line := range lines {
		line.ID = uuid.NewString()
		if line.CreatedAt.IsZero() {
			line.CreatedAt = now
		}
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_lines (id, order_id, product_id, quantity, price_minor, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			line.ID, order.ID, line.ProductID, line.Quantity, line.PriceMinor, line.CreatedAt,
		); err != nil {
			return domain.Order{}, fmt.Errorf("insert order line: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}

	return order, nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var order domain.Order
	err := r.q.QueryRowContext(ctx, `
		SELECT id, customer_id, created_at FROM orders WHERE id = ?`, id,
	).Scan(&order.ID, &order.CustomerID, &order.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order: %w", err)
	}

	lines, err := r.loadLines(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines
	return order, nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT id, customer_id, created_at
		FROM orders
		WHERE customer_id = ?
		ORDER BY created_at DESC, id DESC`
	args := []any{customerID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.CustomerID, &order.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	rows.Close()

	for i := range orders {
		lines, err := r.loadLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

func (r *orderRepository) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, product_id, quantity, price_minor, created_at
		FROM order_lines
		WHERE order_id = ?
		ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.ProductID, &line.Quantity, &line.PriceMinor, &line.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return lines, nil
}

var _ domain.OrderStore = (*orderRepository)(nil)
