package domain

import (
	"context"
	"time"
)

// CustomerStore описывает хранилище клиентов.
type CustomerStore interface {
	// FindByID возвращает клиента или ErrCustomerNotFound.
	FindByID(ctx context.Context, id string) (Customer, error)
	// FindByEmail возвращает клиента или ErrCustomerNotFound.
	FindByEmail(ctx context.Context, email string) (Customer, error)
	// Create сохраняет клиента; при занятом email возвращает ErrEmailAlreadyUsed.
	Create(ctx context.Context, customer Customer) (Customer, error)
}

// ProductStore описывает хранилище каталога и остатков.
type ProductStore interface {
	// FindAllByID возвращает только существующие товары, порядок не гарантируется.
	FindAllByID(ctx context.Context, ids []string) ([]Product, error)
	// UpdateQuantities применяет все записи остатков целиком или ни одной.
	// Если хотя бы по одной позиции остаток не равен Expected, возвращает ErrStockConflict.
	UpdateQuantities(ctx context.Context, updates []QuantityUpdate) error
	// Create добавляет товар в каталог.
	Create(ctx context.Context, product Product) (Product, error)
}

// OrderStore описывает хранилище заказов.
type OrderStore interface {
	// Create присваивает заказу и строкам идентификаторы и сохраняет их.
	Create(ctx context.Context, customer Customer, lines []OrderLine) (Order, error)
	// Get возвращает заказ или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByCustomer возвращает заказы клиента, новые первыми; limit <= 0 снимает ограничение.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
}

// Tx — набор хранилищ, привязанных к одной транзакции.
type Tx interface {
	Orders() OrderStore
	Products() ProductStore
	Outbox() OutboxRepository
}

// UnitOfWork выполняет fn атомарно: либо фиксируются все записи, либо ни одной.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, statusCode int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, statusCode int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
	// Delete освобождает ключ; отсутствующий ключ не считается ошибкой.
	Delete(ctx context.Context, key string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
