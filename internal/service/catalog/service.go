package catalog

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Service ведёт каталог товаров.
type Service struct {
	store  domain.ProductStore
	logger *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(store domain.ProductStore, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog-service")
	}
	return &Service{store: store, logger: logger}
}

// CreateProduct добавляет товар с начальным остатком.
func (s *Service) CreateProduct(ctx context.Context, name string, priceMinor, quantity int64) (domain.Product, error) {
	product := domain.Product{
		Name:       strings.TrimSpace(name),
		PriceMinor: priceMinor,
		Quantity:   quantity,
	}
	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}

	created, err := s.store.Create(ctx, product)
	if err != nil {
		return domain.Product{}, domain.Unavailable("create product", err)
	}

	s.logger.WithFields(log.Fields{
		"product_id": created.ID,
		"quantity":   created.Quantity,
	}).Info("product created")
	return created, nil
}

// GetProduct возвращает товар или ErrProductNotFound.
func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, domain.ErrProductNotFound
	}
	products, err := s.store.FindAllByID(ctx, []string{id})
	if err != nil {
		return domain.Product{}, domain.Unavailable("find product", err)
	}
	if len(products) == 0 {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return products[0], nil
}
