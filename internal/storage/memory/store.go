package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// state хранит снимок всех таблиц.
type state struct {
	customers map[string]domain.Customer
	emails    map[string]string
	products  map[string]domain.Product
	orders    map[string]domain.Order
}

func newState() *state {
	return &state{
		customers: make(map[string]domain.Customer),
		emails:    make(map[string]string),
		products:  make(map[string]domain.Product),
		orders:    make(map[string]domain.Order),
	}
}

// clone копирует карты; значения внутри не мутируются после записи, поэтому копия поверхностная.
func (st *state) clone() *state {
	cp := &state{
		customers: make(map[string]domain.Customer, len(st.customers)),
		emails:    make(map[string]string, len(st.emails)),
		products:  make(map[string]domain.Product, len(st.products)),
		orders:    make(map[string]domain.Order, len(st.orders)),
	}
	for k, v := range st.customers {
		cp.customers[k] = v
	}
	for k, v := range st.emails {
		cp.emails[k] = v
	}
	for k, v := range st.products {
		cp.products[k] = v
	}
	for k, v := range st.orders {
		cp.orders[k] = v
	}
	return cp
}

// Store — in-memory хранилище клиентов, каталога, заказов и outbox для локальной разработки и тестов.
// Транзакции сериализуются общим мьютексом и работают на копии состояния.
type Store struct {
	mu     sync.RWMutex
	st     *state
	outbox *outboxRepositoryInMemory
	now    func() time.Time
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		st:     newState(),
		outbox: NewOutboxRepository(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Customers возвращает хранилище клиентов вне транзакции.
func (s *Store) Customers() domain.CustomerStore { return &customerRepository{view{store: s}} }

// Products возвращает хранилище каталога вне транзакции.
func (s *Store) Products() domain.ProductStore { return &productRepository{view{store: s}} }

// Orders возвращает хранилище заказов вне транзакции.
func (s *Store) Orders() domain.OrderStore { return &orderRepository{view{store: s}} }

// Outbox возвращает outbox-репозиторий.
func (s *Store) Outbox() domain.OutboxRepository { return s.outbox }

// Ping всегда успешен, пока контекст жив.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Do выполняет fn атомарно. Пока fn работает, остальные записи ждут;
// при ошибке копия состояния отбрасывается вместе с накопленными outbox-сообщениями.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &memoryTx{store: s, st: s.st.clone()}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// После этой точки фиксация не может завершиться ошибкой:
	// состояние и outbox-сообщения применяются вместе.
	s.st = t.st
	for _, msg := range t.pending {
		s.outbox.add(msg)
	}
	return nil
}

type memoryTx struct {
	store   *Store
	st      *state
	pending []domain.OutboxMessage
}

func (t *memoryTx) Orders() domain.OrderStore {
	return &orderRepository{view{store: t.store, tx: t.st}}
}

func (t *memoryTx) Products() domain.ProductStore {
	return &productRepository{view{store: t.store, tx: t.st}}
}

func (t *memoryTx) Outbox() domain.OutboxRepository {
	return &txOutbox{tx: t}
}

// txOutbox откладывает Enqueue до фиксации транзакции.
type txOutbox struct {
	tx *memoryTx
}

func (o *txOutbox) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	msg = ensureOutboxID(msg)
	o.tx.pending = append(o.tx.pending, msg)
	return msg, nil
}

func (o *txOutbox) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	return o.tx.store.outbox.PullPending(ctx, limit)
}

func (o *txOutbox) Stats(ctx context.Context) (domain.OutboxStats, error) {
	return o.tx.store.outbox.Stats(ctx)
}

func (o *txOutbox) MarkSent(ctx context.Context, id string) error {
	return o.tx.store.outbox.MarkSent(ctx, id)
}

func (o *txOutbox) MarkFailed(ctx context.Context, id string) error {
	return o.tx.store.outbox.MarkFailed(ctx, id)
}

// view выбирает, с каким состоянием работает репозиторий:
// внутри транзакции блокировка уже захвачена в Do.
type view struct {
	store *Store
	tx    *state
}

func (v view) read(fn func(st *state)) {
	if v.tx != nil {
		fn(v.tx)
		return
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	fn(v.store.st)
}

func (v view) write(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.st)
}

func (v view) now() time.Time {
	return v.store.now()
}

var (
	_ domain.UnitOfWork = (*Store)(nil)
	_ domain.Tx         = (*memoryTx)(nil)
)
