package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/mysql"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
)

// storeBackend хранит записи: клиенты, каталог, заказы и outbox в одной транзакционной границе.
type storeBackend interface {
	domain.UnitOfWork
	Customers() domain.CustomerStore
	Products() domain.ProductStore
	Orders() domain.OrderStore
	Outbox() domain.OutboxRepository
	Ping(ctx context.Context) error
}

type runtimeDependencies struct {
	store           storeBackend
	idempotencyRepo domain.IdempotencyRepository
	// cleanupExpired: хранилищу ключей нужна периодическая очистка (Redis удаляет по TTL сам).
	cleanupExpired bool
	closers        []func() error
}

func (d *runtimeDependencies) Close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
	d.closers = nil
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{}

	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch driver {
	case "", StorageDriverMemory:
		deps.store = memory.NewStore()
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		deps.cleanupExpired = true
		logger.Warn("using in-memory storage, data is lost on restart")

	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres storage driver requires postgres dsn")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				deps.Close(logger)
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		deps.store = store
		deps.idempotencyRepo = store.Idempotency()
		deps.cleanupExpired = true
		logger.Info("postgres storage initialized")

	case StorageDriverMySQL:
		if strings.TrimSpace(cfg.MySQLDSN) == "" {
			return nil, errors.New("mysql storage driver requires mysql dsn")
		}
		store, err := mysql.Open(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, store.Close)
		if cfg.MySQLAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				deps.Close(logger)
				return nil, fmt.Errorf("apply mysql schema: %w", err)
			}
		}
		deps.store = store
		// MySQL не хранит idempotency-ключи: нужен Redis, иначе ключи живут в памяти процесса.
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		deps.cleanupExpired = true
		logger.Info("mysql storage initialized")

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		client, err := redisstore.Open(ctx, addr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			deps.Close(logger)
			return nil, err
		}
		deps.closers = append(deps.closers, client.Close)
		deps.idempotencyRepo = redisstore.NewIdempotencyRepository(client)
		deps.cleanupExpired = false
		logger.WithField("addr", addr).Info("redis idempotency store initialized")
	} else if driver == StorageDriverMySQL {
		logger.Warn("mysql storage without redis keeps idempotency keys in process memory")
	}

	return deps, nil
}
