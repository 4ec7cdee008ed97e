package domain

import (
	"strings"
	"time"
)

// Customer — учётная запись покупателя.
type Customer struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// Validate проверяет обязательные поля клиента.
func (c *Customer) Validate() []error {
	var errs []error

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, ErrCustomerNameRequired)
	}
	if strings.TrimSpace(c.Email) == "" {
		errs = append(errs, ErrCustomerEmailRequired)
	}

	return errs
}

// Product — карточка товара каталога.
// Quantity хранит текущий остаток на складе и никогда не бывает отрицательным.
type Product struct {
	ID         string
	Name       string
	PriceMinor int64
	Quantity   int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate проверяет инварианты товара.
func (p *Product) Validate() []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.PriceMinor < 0 {
		errs = append(errs, ErrProductPriceInvalid)
	}
	if p.Quantity < 0 {
		errs = append(errs, ErrProductQuantityInvalid)
	}

	return errs
}

// QuantityUpdate описывает запись остатка по принципу compare-and-set:
// Quantity применяется, только если текущий остаток всё ещё равен Expected.
type QuantityUpdate struct {
	ProductID string
	Expected  int64
	Quantity  int64
}
