package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	placedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(domain.OrderPlacedEvent{
		OrderID:    "order-123",
		CustomerID: "cust-1",
		TotalMinor: 3000,
		Lines:      []domain.OrderPlacedLine{{ProductID: "p-1", Quantity: 2, PriceMinor: 1500}},
		PlacedAt:   placedAt,
	})
	require.NoError(t, err)

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var envelope Envelope
		require.NoError(t, json.Unmarshal(val, &envelope))
		require.Equal(t, "outbox-1", envelope.ID)
		require.Equal(t, "order-123", envelope.Key())
		require.Equal(t, domain.EventTypeOrderPlaced, envelope.EventType)

		event, err := envelope.OrderPlaced()
		require.NoError(t, err)
		require.Equal(t, int64(3000), event.TotalMinor)
		require.True(t, placedAt.Equal(event.PlacedAt))
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFrom(mockProducer), "")
	require.Equal(t, TopicOrderEvents, publisher.Topic())

	err = publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "order-123",
		EventType:     domain.EventTypeOrderPlaced,
		Payload:       payload,
	})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerFrom(mockProducer), TopicDeadLetterQueue)
	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:          "outbox-2",
		AggregateID: "order-234",
		Payload:     []byte(`{}`),
	})
	require.Error(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	require.Error(t, publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-3"}))
}

func TestEnvelope_KeyFallsBackToID(t *testing.T) {
	t.Parallel()

	envelope := NewEnvelope(domain.OutboxMessage{ID: "outbox-4", Payload: []byte(`{}`)}, time.Now())
	require.Equal(t, "outbox-4", envelope.Key())
}
