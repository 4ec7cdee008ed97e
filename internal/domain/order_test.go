package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// helper для создания базового заказа с двумя позициями.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:         "order-1",
		CustomerID: "customer-1",
		Lines: []domain.OrderLine{
			{ID: "line-1", ProductID: "p-1", Quantity: 3, PriceMinor: 100, CreatedAt: now},
			{ID: "line-2", ProductID: "p-2", Quantity: 2, PriceMinor: 250, CreatedAt: now},
		},
		CreatedAt: now,
	}
}

func TestOrderTotalMinor(t *testing.T) {
	order := makeOrder()
	if got := order.TotalMinor(); got != 800 {
		t.Fatalf("expected total 800, got %d", got)
	}

	empty := domain.Order{}
	if got := empty.TotalMinor(); got != 0 {
		t.Fatalf("expected zero total for empty order, got %d", got)
	}
}

func TestOrderClone(t *testing.T) {
	order := makeOrder()
	clone := order.Clone()
	clone.Lines[0].Quantity = 99

	if order.Lines[0].Quantity != 3 {
		t.Fatal("clone must not share lines with original")
	}
}

func TestCustomerValidate(t *testing.T) {
	ok := domain.Customer{Name: "Ann", Email: "ann@example.com"}
	if errs := ok.Validate(); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}

	blank := domain.Customer{Name: "  ", Email: ""}
	if errs := blank.Validate(); len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}

func TestProductValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(p *domain.Product)
	}{
		{name: "no name", mut: func(p *domain.Product) { p.Name = "" }},
		{name: "negative price", mut: func(p *domain.Product) { p.PriceMinor = -1 }},
		{name: "negative quantity", mut: func(p *domain.Product) { p.Quantity = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			product := domain.Product{Name: "Mug", PriceMinor: 100, Quantity: 10}
			if errs := product.Validate(); len(errs) != 0 {
				t.Fatalf("base product must be valid, got %v", errs)
			}
			tc.mut(&product)
			if len(product.Validate()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}
