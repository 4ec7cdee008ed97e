package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// ErrInvalidQuantity: запрошено неположительное количество товара.
	ErrInvalidQuantity = errors.New("requested quantity must be greater than zero")
	// ErrDuplicateProducts: один и тот же товар указан в запросе несколько раз.
	ErrDuplicateProducts = errors.New("duplicate products in request")
	// ErrCustomerNotFound возвращается, если клиент с указанным ID не найден.
	ErrCustomerNotFound = errors.New("could not find a customer with the given id")
	// ErrNoProductsFound: ни один из запрошенных товаров не существует.
	ErrNoProductsFound = errors.New("could not find any products with the given ids")
	// ErrProductsNotFound: часть запрошенных товаров не существует.
	ErrProductsNotFound = errors.New("could not find the products")
	// ErrInsufficientStock: остатка на складе не хватает хотя бы по одной позиции.
	ErrInsufficientStock = errors.New("insufficient quantities in the inventory")

	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается при чтении отсутствующего товара.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderAlreadyExists сигнализирует о коллизии идентификатора заказа.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrStockConflict: остаток изменился между проверкой и записью (compare-and-set не прошёл).
	ErrStockConflict = errors.New("stock changed concurrently")
	// ErrStoreUnavailable: временная ошибка хранилища (таймаут, обрыв соединения).
	ErrStoreUnavailable = errors.New("store unavailable")

	// Ошибки регистрации клиента.
	ErrCustomerNameRequired  = errors.New("customer name is required")
	ErrCustomerEmailRequired = errors.New("customer email is required")
	ErrEmailAlreadyUsed      = errors.New("this email address has already been used")

	// Ошибки каталога.
	ErrProductNameRequired    = errors.New("product name is required")
	ErrProductPriceInvalid    = errors.New("product price must be non-negative")
	ErrProductQuantityInvalid = errors.New("product quantity must be non-negative")

	// Ошибки idempotency-хранилища.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")

	// ErrOutboxPublish возвращается при сбое публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ProductsNotFoundError перечисляет все отсутствующие в каталоге товары.
type ProductsNotFoundError struct {
	IDs []string
}

func (e *ProductsNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrProductsNotFound.Error(), strings.Join(e.IDs, ", "))
}

func (e *ProductsNotFoundError) Is(target error) bool {
	return target == ErrProductsNotFound
}

// StockShortage описывает одну позицию, которую нельзя выполнить по текущему остатку.
type StockShortage struct {
	ProductID string
	Requested int64
	Available int64
}

// InsufficientStockError перечисляет все позиции с недостаточным остатком.
type InsufficientStockError struct {
	Items []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		parts = append(parts, fmt.Sprintf("%s requested=%d available=%d", item.ProductID, item.Requested, item.Available))
	}
	return fmt.Sprintf("%s: %s", ErrInsufficientStock.Error(), strings.Join(parts, ", "))
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ProductIDs возвращает идентификаторы позиций в порядке запроса.
func (e *InsufficientStockError) ProductIDs() []string {
	ids := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// InvalidQuantityError перечисляет товары с неположительным количеством.
type InvalidQuantityError struct {
	IDs []string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidQuantity.Error(), strings.Join(e.IDs, ", "))
}

func (e *InvalidQuantityError) Is(target error) bool {
	return target == ErrInvalidQuantity
}

// DuplicateProductsError перечисляет товары, встречающиеся в запросе более одного раза.
type DuplicateProductsError struct {
	IDs []string
}

func (e *DuplicateProductsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateProducts.Error(), strings.Join(e.IDs, ", "))
}

func (e *DuplicateProductsError) Is(target error) bool {
	return target == ErrDuplicateProducts
}

// StoreError оборачивает инфраструктурную ошибку хранилища.
// errors.Is(err, ErrStoreUnavailable) всегда true, исходная ошибка тоже доступна.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrStoreUnavailable.Error(), e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// Unavailable оборачивает ошибку хранилища в StoreError.
// Бизнес-ошибки и уже обёрнутые ошибки возвращаются как есть.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) || isLookupMiss(err) ||
		errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrStockConflict) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

var validationErrors = []error{
	ErrCustomerRequired,
	ErrItemsRequired,
	ErrInvalidQuantity,
	ErrDuplicateProducts,
	ErrCustomerNotFound,
	ErrNoProductsFound,
	ErrProductsNotFound,
	ErrInsufficientStock,
	ErrCustomerNameRequired,
	ErrCustomerEmailRequired,
	ErrEmailAlreadyUsed,
	ErrProductNameRequired,
	ErrProductPriceInvalid,
	ErrProductQuantityInvalid,
}

// IsValidation сообщает, что ошибка вызвана входными данными и повторять запрос бессмысленно.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsTransient сообщает, что ошибка временная и запрос можно повторить целиком.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrStockConflict) ||
		errors.Is(err, context.DeadlineExceeded)
}

func isLookupMiss(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrOrderAlreadyExists)
}

// IsIdempotencyConflict проверяет, что ключ идемпотентности уже использован.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
