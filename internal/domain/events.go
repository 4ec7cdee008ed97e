package domain

import (
	"encoding/json"
	"time"
)

const (
	// AggregateTypeOrder — тип агрегата для outbox-сообщений заказа.
	AggregateTypeOrder = "order"
	// EventTypeOrderPlaced публикуется после фиксации заказа и списания остатков.
	EventTypeOrderPlaced = "order.placed"
)

// OrderPlacedLine — позиция заказа в событии order.placed.
type OrderPlacedLine struct {
	ProductID  string `json:"product_id"`
	Quantity   int64  `json:"quantity"`
	PriceMinor int64  `json:"price_minor"`
}

// OrderPlacedEvent — полезная нагрузка события order.placed.
type OrderPlacedEvent struct {
	OrderID    string            `json:"order_id"`
	CustomerID string            `json:"customer_id"`
	TotalMinor int64             `json:"total_minor"`
	Lines      []OrderPlacedLine `json:"lines"`
	PlacedAt   time.Time         `json:"placed_at"`
}

// NewOrderPlacedEvent строит событие из сохранённого заказа.
func NewOrderPlacedEvent(order Order) OrderPlacedEvent {
	lines := make([]OrderPlacedLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, OrderPlacedLine{
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			PriceMinor: line.PriceMinor,
		})
	}
	return OrderPlacedEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		TotalMinor: order.TotalMinor(),
		Lines:      lines,
		PlacedAt:   order.CreatedAt,
	}
}

// OutboxDeadLetter — полезная нагрузка сообщения в DLQ после исчерпания попыток публикации.
type OutboxDeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}
