package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productRepository struct {
	view
}

// FindAllByID возвращает только найденные товары в порядке ids, повторы схлопываются.
func (r *productRepository) FindAllByID(ctx context.Context, ids []string) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make([]domain.Product, 0, len(ids))
	r.read(func(st *state) {
		seen := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if product, ok := st.products[id]; ok {
				result = append(result, product)
			}
		}
	})
	return result, nil
}

// UpdateQuantities проверяет все Expected до записи: либо применяются все обновления, либо ни одно.
func (r *productRepository) UpdateQuantities(ctx context.Context, updates []domain.QuantityUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.write(func(st *state) error {
		for _, u := range updates {
			current, ok := st.products[u.ProductID]
			if !ok {
				return fmt.Errorf("%w: %s", domain.ErrProductNotFound, u.ProductID)
			}
			if current.Quantity != u.Expected || u.Quantity < 0 {
				return domain.ErrStockConflict
			}
		}

		now := r.now()
		for _, u := range updates {
			product := st.products[u.ProductID]
			product.Quantity = u.Quantity
			product.UpdatedAt = now
			st.products[u.ProductID] = product
		}
		return nil
	})
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := r.now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = product.CreatedAt

	err := r.write(func(st *state) error {
		if _, exists := st.products[product.ID]; exists {
			return fmt.Errorf("product %s already exists", product.ID)
		}
		st.products[product.ID] = product
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

var _ domain.ProductStore = (*productRepository)(nil)
