package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productRepository struct {
	q querier
	// db задан вне транзакции: UpdateQuantities тогда открывает собственную.
	db *sql.DB
}

func (r *productRepository) FindAllByID(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, name, price_minor, quantity, created_at, updated_at
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceMinor, &p.Quantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, nil
}

// UpdateQuantities выполняет compare-and-set по каждой позиции.
// Строки обновляются в порядке id, чтобы конкурентные транзакции не взаимоблокировались.
func (r *productRepository) UpdateQuantities(ctx context.Context, updates []domain.QuantityUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if r.db != nil {
		return runInTx(ctx, r.db, func(tx *sql.Tx) error {
			return (&productRepository{q: tx}).UpdateQuantities(ctx, updates)
		})
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ordered := append([]domain.QuantityUpdate(nil), updates...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ProductID < ordered[j].ProductID })

	now := time.Now().UTC()
	for _, u := range ordered {
		if u.Quantity < 0 {
			return domain.ErrStockConflict
		}
		res, err := r.q.ExecContext(ctx, `
			UPDATE products
			SET quantity = $1,
			    updated_at = $2
			WHERE id = $3
			  AND quantity = $4
		`, u.Quantity, now, u.ProductID, u.Expected)
		if err != nil {
			return fmt.Errorf("update product quantity: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return domain.ErrStockConflict
		}
	}

	return nil
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC().Round(time.Microsecond)
	}
	product.UpdatedAt = product.CreatedAt

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (id, name, price_minor, quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, product.ID, product.Name, product.PriceMinor, product.Quantity, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}

	return product, nil
}

var _ domain.ProductStore = (*productRepository)(nil)
