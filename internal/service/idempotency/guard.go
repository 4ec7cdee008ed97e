// Package idempotency повторно отдаёт сохранённый ответ на запрос с тем же idempotency-key
// и периодически удаляет просроченные ключи.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultTTL — срок хранения ответа под ключом.
const DefaultTTL = 24 * time.Hour

// ErrRequestInProgress — запрос с тем же ключом ещё выполняется.
var ErrRequestInProgress = errors.New("request with the same idempotency key is already processing")

// Outcome — ответ транспорта, сохраняемый под ключом.
// StatusCode трактуется транспортом: HTTP status или gRPC code.
type Outcome struct {
	StatusCode int
	Body       []byte
	// Failed: запрос завершился ошибкой, повтор с тем же ключом вернёт её же.
	Failed bool
	// Retryable: ошибка временная, ключ освобождается и повтор выполнит запрос заново.
	Retryable bool
	// Replayed: ответ взят из хранилища, handler не вызывался.
	Replayed bool
}

// Guard выполняет обработчик не более одного раза на ключ.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

// NewGuard создаёт Guard. Без repo ключи игнорируются.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RequestHash строит отпечаток запроса: одинаковый ключ с другим телом отвергается.
func RequestHash(method string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Do выполняет handler под ключом key или возвращает сохранённый ранее ответ.
// Ошибки: domain.ErrIdempotencyHashMismatch, ErrRequestInProgress, ошибки хранилища.
func (g *Guard) Do(ctx context.Context, key, requestHash string, handler func(context.Context) Outcome) (Outcome, error) {
	key = strings.TrimSpace(key)
	if g == nil || g.repo == nil || key == "" {
		return handler(ctx), nil
	}

	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	if err != nil {
		if !domain.IsIdempotencyConflict(err) {
			g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to create idempotency record")
			return Outcome{}, fmt.Errorf("create idempotency record: %w", err)
		}
		return g.replay(key, record, err)
	}

	out := handler(ctx)
	entry := g.logger.WithField("idempotency_key", key)

	// Сохранение ответа не должно зависеть от отмены клиентского запроса.
	storeCtx := context.WithoutCancel(ctx)
	switch {
	case out.Retryable:
		if err := g.repo.Delete(storeCtx, key); err != nil {
			entry.WithError(err).Warn("failed to release idempotency key")
		}
	case out.Failed:
		if err := g.repo.MarkFailed(storeCtx, key, out.Body, out.StatusCode); err != nil {
			entry.WithError(err).Warn("failed to store idempotency failure response")
		}
	default:
		if err := g.repo.MarkDone(storeCtx, key, out.Body, out.StatusCode); err != nil {
			entry.WithError(err).Warn("failed to store idempotent success response")
		}
	}
	return out, nil
}

// replay отвечает на повтор ключа: сохранённым ответом, ErrRequestInProgress или ошибкой несовпадения хэша.
func (g *Guard) replay(key string, record domain.IdempotencyRecord, conflictErr error) (Outcome, error) {
	if errors.Is(conflictErr, domain.ErrIdempotencyHashMismatch) {
		return Outcome{}, domain.ErrIdempotencyHashMismatch
	}

	switch record.Status {
	case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
		return Outcome{
			StatusCode: record.StatusCode,
			Body:       append([]byte(nil), record.ResponseBody...),
			Failed:     record.Status == domain.IdempotencyStatusFailed,
			Replayed:   true,
		}, nil
	case domain.IdempotencyStatusProcessing:
		return Outcome{}, ErrRequestInProgress
	default:
		return Outcome{}, fmt.Errorf("unknown idempotency record status %q for key %s", record.Status, key)
	}
}
