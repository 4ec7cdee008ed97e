package domain

import "time"

// OrderItemRequest — запрошенная клиентом позиция: товар и количество.
type OrderItemRequest struct {
	ProductID string
	Quantity  int64
}

// OrderLine фиксирует цену и количество товара на момент оформления.
// После создания заказа строка не пересчитывается.
type OrderLine struct {
	ID        string
	ProductID string
	Quantity  int64
	// PriceMinor: цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	CreatedAt  time.Time
}

// Order агрегирует заказ клиента и его позиции.
type Order struct {
	ID         string
	CustomerID string
	Lines      []OrderLine
	CreatedAt  time.Time
}

// TotalMinor возвращает сумму заказа: sum(qty * price).
func (o *Order) TotalMinor() int64 {
	var total int64
	for _, line := range o.Lines {
		total += line.Quantity * line.PriceMinor
	}
	return total
}

// Clone возвращает копию заказа, не разделяющую слайс строк с оригиналом.
func (o Order) Clone() Order {
	o.Lines = append([]OrderLine(nil), o.Lines...)
	return o
}
