// Package problem превращает доменные ошибки в описание для клиента:
// класс ошибки, машинный код, человекочитаемое сообщение и затронутые идентификаторы.
package problem

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

// Kind — класс ошибки, который транспорт переводит в свой код ответа.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindNotFound
	KindAlreadyExists
	KindFailedPrecondition
	KindConflict
	KindUnavailable
	KindCanceled
	KindDeadlineExceeded
)

// Machine-readable коды ошибок.
const (
	CodeInvalidRequest      = "invalid_request"
	CodeCustomerNotFound    = "customer_not_found"
	CodeNoProductsFound     = "no_products_found"
	CodeProductsNotFound    = "products_not_found"
	CodeInsufficientStock   = "insufficient_stock"
	CodeOrderNotFound       = "order_not_found"
	CodeProductNotFound     = "product_not_found"
	CodeEmailAlreadyUsed    = "email_already_used"
	CodeIdempotencyMismatch = "idempotency_key_reused"
	CodeIdempotencyInFlight = "idempotency_key_in_progress"
	CodeStoreUnavailable    = "store_unavailable"
	CodeCanceled            = "canceled"
	CodeDeadlineExceeded    = "deadline_exceeded"
	CodeInternal            = "internal"
)

// Shortage — позиция, по которой не хватает остатка.
type Shortage struct {
	ProductID string `json:"product_id"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
}

// Problem — описание ошибки для клиента.
type Problem struct {
	Kind       Kind
	Code       string
	Message    string
	ProductIDs []string
	Shortages  []Shortage
}

// Retryable сообщает, что клиент может повторить запрос без изменений.
// Отменённый запрос ничего не записал, поэтому тоже повторяем.
func (p Problem) Retryable() bool {
	return p.Kind == KindUnavailable || p.Kind == KindDeadlineExceeded || p.Kind == KindCanceled
}

// Describe строит Problem по ошибке. Сообщения о нескольких товарах перечисляют все id.
func Describe(err error) Problem {
	var (
		notFound     *domain.ProductsNotFoundError
		insufficient *domain.InsufficientStockError
		invalidQty   *domain.InvalidQuantityError
		duplicates   *domain.DuplicateProductsError
	)

	switch {
	case err == nil:
		return Problem{}
	case errors.As(err, &notFound):
		return Problem{
			Kind:       KindNotFound,
			Code:       CodeProductsNotFound,
			Message:    "Could not find the product(s): " + joinIDs(notFound.IDs),
			ProductIDs: append([]string(nil), notFound.IDs...),
		}
	case errors.As(err, &insufficient):
		shortages := make([]Shortage, 0, len(insufficient.Items))
		parts := make([]string, 0, len(insufficient.Items))
		for _, item := range insufficient.Items {
			shortages = append(shortages, Shortage(item))
			parts = append(parts, fmt.Sprintf("%s:%d", item.ProductID, item.Requested))
		}
		return Problem{
			Kind:       KindFailedPrecondition,
			Code:       CodeInsufficientStock,
			Message:    "Insufficient quantities in the inventory per product(s): " + joinIDs(parts),
			ProductIDs: insufficient.ProductIDs(),
			Shortages:  shortages,
		}
	case errors.As(err, &invalidQty):
		return Problem{
			Kind:       KindInvalidArgument,
			Code:       CodeInvalidRequest,
			Message:    "Requested quantity must be greater than zero for product(s): " + joinIDs(invalidQty.IDs),
			ProductIDs: append([]string(nil), invalidQty.IDs...),
		}
	case errors.As(err, &duplicates):
		return Problem{
			Kind:       KindInvalidArgument,
			Code:       CodeInvalidRequest,
			Message:    "Each product may appear only once, duplicated product(s): " + joinIDs(duplicates.IDs),
			ProductIDs: append([]string(nil), duplicates.IDs...),
		}
	case errors.Is(err, domain.ErrCustomerNotFound):
		return simple(KindNotFound, CodeCustomerNotFound, "Could not find a customer with the given id.")
	case errors.Is(err, domain.ErrNoProductsFound):
		return simple(KindNotFound, CodeNoProductsFound, "Could not find any products with the given ids.")
	case errors.Is(err, domain.ErrOrderNotFound):
		return simple(KindNotFound, CodeOrderNotFound, "Could not find an order with the given id.")
	case errors.Is(err, domain.ErrProductNotFound):
		return simple(KindNotFound, CodeProductNotFound, "Could not find a product with the given id.")
	case errors.Is(err, domain.ErrEmailAlreadyUsed):
		return simple(KindAlreadyExists, CodeEmailAlreadyUsed, "This email address has already been used.")
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return simple(KindAlreadyExists, CodeIdempotencyMismatch, "Idempotency key is already used with a different request payload.")
	case errors.Is(err, idempotency.ErrRequestInProgress):
		return simple(KindConflict, CodeIdempotencyInFlight, "Request with the same idempotency key is already processing.")
	case domain.IsValidation(err):
		return simple(KindInvalidArgument, CodeInvalidRequest, validationMessage(err))
	// Истёкший контекст проверяется раньше ErrStoreUnavailable: хранилище оборачивает его в StoreError.
	case errors.Is(err, context.DeadlineExceeded):
		return simple(KindDeadlineExceeded, CodeDeadlineExceeded, "Request deadline exceeded.")
	case errors.Is(err, context.Canceled):
		return simple(KindCanceled, CodeCanceled, "Request canceled.")
	case errors.Is(err, domain.ErrStockConflict), errors.Is(err, domain.ErrStoreUnavailable):
		return simple(KindUnavailable, CodeStoreUnavailable, "The store is temporarily unavailable, please retry.")
	default:
		return simple(KindInternal, CodeInternal, "Internal error.")
	}
}

func simple(kind Kind, code, message string) Problem {
	return Problem{Kind: kind, Code: code, Message: message}
}

// joinIDs форматирует список как "a; b;".
func joinIDs(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return strings.Join(ids, "; ") + ";"
}

func validationMessage(err error) string {
	msg := strings.ReplaceAll(err.Error(), "\n", "; ")
	if msg == "" {
		return "Invalid request."
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}
