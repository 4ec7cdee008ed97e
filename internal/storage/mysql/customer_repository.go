package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type customerRepository struct {
	q querier
}

func (r *customerRepository) FindByID(ctx context.Context, id string) (domain.Customer, error) {
	return r.findOne(ctx, `SELECT id, name, email, created_at FROM customers WHERE id = ?`, id)
}

// FindByEmail полагается на регистронезависимую collation столбца email.
func (r *customerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	return r.findOne(ctx, `SELECT id, name, email, created_at FROM customers WHERE email = ?`, strings.TrimSpace(email))
}

func (r *customerRepository) findOne(ctx context.Context, query, arg string) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var c domain.Customer
	err := r.q.QueryRowContext(ctx, query, arg).Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	if err != nil {
		return domain.Customer{}, fmt.Errorf("query customer: %w", err)
	}
	return c, nil
}

func (r *customerRepository) Create(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC().Round(time.Microsecond)
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, created_at)
		VALUES (?, ?, ?, ?)`,
		customer.ID, customer.Name, customer.Email, customer.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return domain.Customer{}, domain.ErrEmailAlreadyUsed
		}
		return domain.Customer{}, fmt.Errorf("insert customer: %w", err)
	}
	return customer, nil
}

var _ domain.CustomerStore = (*customerRepository)(nil)
