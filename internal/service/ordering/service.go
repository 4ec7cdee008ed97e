package ordering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultListOrdersLimit = 100

// MetricsRecorder принимает метрики оформления заказов.
type MetricsRecorder interface {
	RecordPlaced(lines int, duration time.Duration)
	RecordRejected(reason string)
	RecordStockConflict()
	RecordFailed(reason string)
}

type noopMetrics struct{}

func (noopMetrics) RecordPlaced(int, time.Duration) {}
func (noopMetrics) RecordRejected(string)           {}
func (noopMetrics) RecordStockConflict()            {}
func (noopMetrics) RecordFailed(string)             {}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics задаёт приёмник метрик.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithRetryConfig задаёт политику повтора при конфликте остатков.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *Service) {
		s.retry = cfg.normalized()
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service оформляет заказы: проверяет клиента, наличие товаров и остатки,
// затем в одной транзакции сохраняет заказ, списывает остатки и кладёт событие в outbox.
type Service struct {
	customers domain.CustomerStore
	products  domain.ProductStore
	orders    domain.OrderStore
	uow       domain.UnitOfWork

	logger  *log.Entry
	metrics MetricsRecorder
	retry   RetryConfig
	now     func() time.Time
}

// NewService конструирует сервис с зависимостями.
func NewService(
	customers domain.CustomerStore,
	products domain.ProductStore,
	orders domain.OrderStore,
	uow domain.UnitOfWork,
	options ...Option,
) *Service {
	s := &Service{
		customers: customers,
		products:  products,
		orders:    orders,
		uow:       uow,
		logger:    log.WithField("component", "order-placement"),
		metrics:   noopMetrics{},
		retry:     DefaultRetryConfig(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// PlaceOrder оформляет заказ клиента customerID на позиции items.
// Любая ошибка проверки отменяет операцию целиком: ничего не записывается.
func (s *Service) PlaceOrder(ctx context.Context, customerID string, items []domain.OrderItemRequest) (domain.Order, error) {
	start := time.Now()
	customerID = strings.TrimSpace(customerID)

	if err := validateRequest(customerID, items); err != nil {
		s.reject(customerID, err)
		return domain.Order{}, err
	}

	delay := s.retry.InitialDelay
	for attempt := 1; ; attempt++ {
		order, err := s.placeOnce(ctx, customerID, items)
		if err == nil {
			s.metrics.RecordPlaced(len(order.Lines), time.Since(start))
			s.logger.WithFields(log.Fields{
				"order_id":    order.ID,
				"customer_id": order.CustomerID,
				"lines":       len(order.Lines),
				"total_minor": order.TotalMinor(),
				"attempt":     attempt,
			}).Info("order placed")
			return order, nil
		}

		if domain.IsValidation(err) {
			s.reject(customerID, err)
			return domain.Order{}, err
		}

		if !errors.Is(err, domain.ErrStockConflict) {
			s.fail(customerID, err)
			return domain.Order{}, err
		}

		s.metrics.RecordStockConflict()
		if attempt >= s.retry.MaxAttempts {
			s.fail(customerID, err)
			return domain.Order{}, err
		}

		s.logger.WithError(err).WithFields(log.Fields{
			"customer_id": customerID,
			"attempt":     attempt,
			"delay":       delay,
		}).Warn("stock changed during placement, revalidating")

		if sleepErr := sleepContext(ctx, delay); sleepErr != nil {
			err = domain.Unavailable("place order", sleepErr)
			s.fail(customerID, err)
			return domain.Order{}, err
		}
		delay = s.retry.nextDelay(delay)
	}
}

// placeOnce выполняет один проход конвейера проверок и фиксацию.
func (s *Service) placeOnce(ctx context.Context, customerID string, items []domain.OrderItemRequest) (domain.Order, error) {
	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, domain.ErrCustomerNotFound) {
			return domain.Order{}, domain.ErrCustomerNotFound
		}
		return domain.Order{}, domain.Unavailable("find customer", err)
	}

	found, err := s.products.FindAllByID(ctx, productIDs(items))
	if err != nil {
		return domain.Order{}, domain.Unavailable("find products", err)
	}
	if len(found) == 0 {
		return domain.Order{}, domain.ErrNoProductsFound
	}

	byID := make(map[string]domain.Product, len(found))
	for _, product := range found {
		byID[product.ID] = product
	}

	if missing := missingProducts(items, byID); len(missing) > 0 {
		return domain.Order{}, &domain.ProductsNotFoundError{IDs: missing}
	}
	if shortages := stockShortages(items, byID); len(shortages) > 0 {
		return domain.Order{}, &domain.InsufficientStockError{Items: shortages}
	}

	now := s.now()
	lines := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, domain.OrderLine{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceMinor: byID[item.ProductID].PriceMinor,
			CreatedAt:  now,
		})
	}

	var placed domain.Order
	err = s.uow.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.Orders().Create(ctx, customer, lines)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		// Новый остаток считается от значения, прочитанного при проверке;
		// compare-and-set на Expected не даёт записать его поверх чужого списания.
		updates := make([]domain.QuantityUpdate, 0, len(order.Lines))
		for _, line := range order.Lines {
			onHand := byID[line.ProductID].Quantity
			updates = append(updates, domain.QuantityUpdate{
				ProductID: line.ProductID,
				Expected:  onHand,
				Quantity:  onHand - line.Quantity,
			})
		}
		if err := tx.Products().UpdateQuantities(ctx, updates); err != nil {
			return fmt.Errorf("update quantities: %w", err)
		}

		msg, err := orderPlacedMessage(order)
		if err != nil {
			return err
		}
		if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue order event: %w", err)
		}

		placed = order
		return nil
	})
	if err != nil {
		return domain.Order{}, domain.Unavailable("commit order", err)
	}

	return placed, nil
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, domain.Unavailable("get order", err)
	}
	return order, nil
}

// ListOrders возвращает заказы клиента, новые первыми.
func (s *Service) ListOrders(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.ErrCustomerRequired
	}
	if limit <= 0 {
		limit = defaultListOrdersLimit
	}
	orders, err := s.orders.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return nil, domain.Unavailable("list orders", err)
	}
	return orders, nil
}

func (s *Service) reject(customerID string, err error) {
	reason := RejectReason(err)
	s.metrics.RecordRejected(reason)
	s.logger.WithError(err).WithFields(log.Fields{
		"customer_id": customerID,
		"reason":      reason,
	}).Info("order rejected")
}

func (s *Service) fail(customerID string, err error) {
	reason := RejectReason(err)
	s.metrics.RecordFailed(reason)
	s.logger.WithError(err).WithFields(log.Fields{
		"customer_id": customerID,
		"reason":      reason,
	}).Error("order placement failed")
}

// RejectReason возвращает короткую метку причины отказа для метрик и логов.
func RejectReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrCustomerRequired),
		errors.Is(err, domain.ErrItemsRequired),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrDuplicateProducts):
		return "invalid_request"
	case errors.Is(err, domain.ErrCustomerNotFound):
		return "customer_not_found"
	case errors.Is(err, domain.ErrNoProductsFound):
		return "no_products_found"
	case errors.Is(err, domain.ErrProductsNotFound):
		return "products_not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrStockConflict):
		return "stock_conflict"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}

// validateRequest проверяет форму запроса до обращения к хранилищам.
func validateRequest(customerID string, items []domain.OrderItemRequest) error {
	if customerID == "" {
		return domain.ErrCustomerRequired
	}
	if len(items) == 0 {
		return domain.ErrItemsRequired
	}

	var invalid []string
	for _, item := range items {
		if item.Quantity <= 0 {
			invalid = append(invalid, item.ProductID)
		}
	}
	if len(invalid) > 0 {
		return &domain.InvalidQuantityError{IDs: invalid}
	}

	seen := make(map[string]int, len(items))
	var duplicates []string
	for _, item := range items {
		seen[item.ProductID]++
		if seen[item.ProductID] == 2 {
			duplicates = append(duplicates, item.ProductID)
		}
	}
	if len(duplicates) > 0 {
		return &domain.DuplicateProductsError{IDs: duplicates}
	}

	return nil
}

func productIDs(items []domain.OrderItemRequest) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func missingProducts(items []domain.OrderItemRequest, found map[string]domain.Product) []string {
	var missing []string
	for _, item := range items {
		if _, ok := found[item.ProductID]; !ok {
			missing = append(missing, item.ProductID)
		}
	}
	return missing
}

func stockShortages(items []domain.OrderItemRequest, found map[string]domain.Product) []domain.StockShortage {
	var shortages []domain.StockShortage
	for _, item := range items {
		product := found[item.ProductID]
		if item.Quantity > product.Quantity {
			shortages = append(shortages, domain.StockShortage{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: product.Quantity,
			})
		}
	}
	return shortages
}

func orderPlacedMessage(order domain.Order) (domain.OutboxMessage, error) {
	payload, err := json.Marshal(domain.NewOrderPlacedEvent(order))
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal order event: %w", err)
	}
	return domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     domain.EventTypeOrderPlaced,
		Payload:       payload,
	}, nil
}
