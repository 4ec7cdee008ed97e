package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type customerRepository struct {
	view
}

func (r *customerRepository) FindByID(ctx context.Context, id string) (domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return domain.Customer{}, err
	}

	var (
		customer domain.Customer
		ok       bool
	)
	r.read(func(st *state) {
		customer, ok = st.customers[id]
	})
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

func (r *customerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return domain.Customer{}, err
	}

	var (
		customer domain.Customer
		ok       bool
	)
	r.read(func(st *state) {
		var id string
		if id, ok = st.emails[normalizeEmail(email)]; ok {
			customer, ok = st.customers[id]
		}
	})
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

// Create сохраняет клиента; email уникален без учёта регистра.
func (r *customerRepository) Create(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return domain.Customer{}, err
	}
	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = r.now()
	}

	err := r.write(func(st *state) error {
		key := normalizeEmail(customer.Email)
		if _, exists := st.emails[key]; exists {
			return domain.ErrEmailAlreadyUsed
		}
		st.customers[customer.ID] = customer
		st.emails[key] = customer.ID
		return nil
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ domain.CustomerStore = (*customerRepository)(nil)
