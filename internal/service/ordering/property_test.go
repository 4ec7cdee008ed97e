package ordering_test

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

// TestPlaceOrder_StockAccounting проверяет, что остаток меняется ровно на заказанное
// количество при успехе и не меняется вовсе при любом отказе.
func TestPlaceOrder_StockAccounting(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := memory.NewStore()
		customer, err := store.Customers().Create(ctx, domain.Customer{Name: "Prop", Email: "prop@example.com"})
		if err != nil {
			rt.Fatalf("create customer: %v", err)
		}

		catalogSize := rapid.IntRange(0, 4).Draw(rt, "catalog_size")
		stock := make(map[string]int64, catalogSize)
		for i := 0; i < catalogSize; i++ {
			id := fmt.Sprintf("p-%d", i)
			qty := rapid.Int64Range(0, 20).Draw(rt, "stock_"+id)
			if _, err := store.Products().Create(ctx, domain.Product{ID: id, Name: id, PriceMinor: int64(100 + i), Quantity: qty}); err != nil {
				rt.Fatalf("create product: %v", err)
			}
			stock[id] = qty
		}

		// Индексы за пределами каталога дают несуществующие товары.
		picks := rapid.SliceOfNDistinct(rapid.IntRange(0, 5), 1, 4, rapid.ID[int]).Draw(rt, "picks")
		items := make([]domain.OrderItemRequest, 0, len(picks))
		for _, pick := range picks {
			items = append(items, domain.OrderItemRequest{
				ProductID: fmt.Sprintf("p-%d", pick),
				Quantity:  rapid.Int64Range(1, 25).Draw(rt, "qty"),
			})
		}

		service := ordering.NewService(store.Customers(), store.Products(), store.Orders(), store)
		order, err := service.PlaceOrder(ctx, customer.ID, items)

		feasible := true
		for _, item := range items {
			onHand, ok := stock[item.ProductID]
			if !ok || item.Quantity > onHand {
				feasible = false
			}
		}

		ids := make([]string, 0, len(stock))
		for id := range stock {
			ids = append(ids, id)
		}
		after, findErr := store.Products().FindAllByID(ctx, ids)
		if findErr != nil {
			rt.Fatalf("find products: %v", findErr)
		}
		current := make(map[string]int64, len(after))
		for _, p := range after {
			current[p.ID] = p.Quantity
		}

		if !feasible {
			if err == nil {
				rt.Fatalf("expected rejection for %+v with stock %v", items, stock)
			}
			if !domain.IsValidation(err) {
				rt.Fatalf("expected validation error, got %v", err)
			}
			for id, qty := range stock {
				if current[id] != qty {
					rt.Fatalf("stock of %s changed on failure: %d -> %d", id, qty, current[id])
				}
			}
			return
		}

		if err != nil {
			rt.Fatalf("expected success for %+v with stock %v, got %v", items, stock, err)
		}
		if len(order.Lines) != len(items) {
			rt.Fatalf("expected %d lines, got %d", len(items), len(order.Lines))
		}
		ordered := make(map[string]int64, len(items))
		for _, item := range items {
			ordered[item.ProductID] = item.Quantity
		}
		for id, qty := range stock {
			want := qty - ordered[id]
			if current[id] != want {
				rt.Fatalf("stock of %s: want %d, got %d", id, want, current[id])
			}
			if current[id] < 0 {
				rt.Fatalf("negative stock for %s", id)
			}
		}
	})
}
