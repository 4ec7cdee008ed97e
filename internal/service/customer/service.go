package customer

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Service регистрирует клиентов и отдаёт их карточки.
type Service struct {
	store  domain.CustomerStore
	logger *log.Entry
}

// NewService создаёт сервис клиентов.
func NewService(store domain.CustomerStore, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "customer-service")
	}
	return &Service{store: store, logger: logger}
}

// CreateCustomer регистрирует клиента с уникальным email.
func (s *Service) CreateCustomer(ctx context.Context, name, email string) (domain.Customer, error) {
	customer := domain.Customer{
		Name:  strings.TrimSpace(name),
		Email: strings.TrimSpace(email),
	}
	if errs := customer.Validate(); len(errs) > 0 {
		return domain.Customer{}, errors.Join(errs...)
	}

	_, err := s.store.FindByEmail(ctx, customer.Email)
	switch {
	case err == nil:
		return domain.Customer{}, domain.ErrEmailAlreadyUsed
	case !errors.Is(err, domain.ErrCustomerNotFound):
		return domain.Customer{}, domain.Unavailable("find customer by email", err)
	}

	// Параллельная регистрация может проскочить проверку выше; уникальный индекс
	// хранилища вернёт ErrEmailAlreadyUsed.
	created, err := s.store.Create(ctx, customer)
	if err != nil {
		return domain.Customer{}, domain.Unavailable("create customer", err)
	}

	s.logger.WithFields(log.Fields{
		"customer_id": created.ID,
	}).Info("customer registered")
	return created, nil
}

// GetCustomer возвращает клиента по идентификатору.
func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Customer{}, domain.ErrCustomerRequired
	}
	customer, err := s.store.FindByID(ctx, id)
	if err != nil {
		return domain.Customer{}, domain.Unavailable("find customer", err)
	}
	return customer, nil
}
