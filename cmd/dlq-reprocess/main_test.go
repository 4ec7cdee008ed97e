package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

func TestParseConfig(t *testing.T) {
	env := map[string]string{"KAFKA_BROKERS": "env-1:9092"}
	getenv := func(key string) string { return env[key] }

	cfg, err := parseConfig([]string{"-brokers", " b1:9092, ,b2:9092 ", "-limit", "5", "-execute", "-from-newest"}, getenv, io.Discard)
	require.NoError(t, err)
	require.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.brokers)
	require.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
	require.Equal(t, kafka.TopicOrderEvents, cfg.targetTopic)
	require.Equal(t, 5, cfg.limit)
	require.True(t, cfg.execute)
	require.True(t, cfg.fromNewest)
	require.Equal(t, defaultIdleTimeout, cfg.idleTimeout)

	cfg, err = parseConfig(nil, getenv, io.Discard)
	require.NoError(t, err)
	require.Equal(t, []string{"env-1:9092"}, cfg.brokers)
	require.False(t, cfg.execute)
}

func TestParseConfig_Errors(t *testing.T) {
	noEnv := func(string) string { return "" }
	cases := map[string][]string{
		"brokers required": nil,
		"empty source":     {"-brokers", "b:9092", "-source-topic", " "},
		"empty target":     {"-brokers", "b:9092", "-target-topic", ""},
		"same topics":      {"-brokers", "b:9092", "-target-topic", kafka.TopicDeadLetterQueue},
		"zero limit":       {"-brokers", "b:9092", "-limit", "0"},
		"zero idle":        {"-brokers", "b:9092", "-idle-timeout", "0s"},
		"unknown flag":     {"-nope"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseConfig(args, noEnv, io.Discard)
			require.Error(t, err)
		})
	}
}

func TestDecodeDeadLetter(t *testing.T) {
	event, dead, err := decodeDeadLetter(deadLetterValue(t, "outbox-1", "order-1"))
	require.NoError(t, err)
	require.Equal(t, "outbox-1", event.ID)
	require.Equal(t, domain.AggregateTypeOrder, event.AggregateType)
	require.Equal(t, "order-1", event.AggregateID)
	require.Equal(t, domain.EventTypeOrderPlaced, event.EventType)
	require.JSONEq(t, `{"order_id":"order-1"}`, string(event.Payload))
	require.Equal(t, "broker down", dead.PublishError)
}

func TestDecodeDeadLetter_Skips(t *testing.T) {
	emptyDead, err := json.Marshal(kafka.Envelope{ID: "x", Payload: json.RawMessage(`{"outbox_id":"x"}`)})
	require.NoError(t, err)

	cases := map[string][]byte{
		"not json":        []byte("garbage"),
		"no payload":      []byte(`{"id":"x"}`),
		"bad dead letter": []byte(`{"id":"x","payload":"text"}`),
		"no original":     emptyDead,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := decodeDeadLetter(raw)
			require.ErrorIs(t, err, errSkip)
		})
	}
}

func TestReplayer_DryRun(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{1, 0},
		offsets:    map[int32]offsetRange{0: {0, 2}, 1: {5, 6}},
	}
	consumer := &stubPartitionSource{consumers: map[int32]*stubPartitionConsumer{
		0: partitionWith(
			consumerMessage(0, 0, deadLetterValue(t, "o-1", "order-1")),
			consumerMessage(0, 1, []byte("garbage")),
		),
		1: partitionWith(consumerMessage(1, 5, deadLetterValue(t, "o-2", "order-2"))),
	}}

	stats, err := newTestReplayer(client, consumer, nil, 10).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, replayStats{processed: 3, replayed: 2, skipped: 1}, stats)
	require.Equal(t, []consumeCall{{0, 0}, {1, 5}}, consumer.calls)
	require.True(t, consumer.consumers[0].closed)
}

func TestReplayer_ExecutePublishesOriginalEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != kafka.TopicOrderEvents {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var envelope kafka.Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return err
		}
		if envelope.ID != "o-1" || envelope.Key() != "order-1" {
			return fmt.Errorf("unexpected envelope %+v", envelope)
		}
		event, err := envelope.OrderPlaced()
		if err != nil {
			return err
		}
		if event.OrderID != "order-1" {
			return fmt.Errorf("unexpected order id %q", event.OrderID)
		}
		return nil
	})
	producer := kafka.NewProducerFrom(mockProducer)
	t.Cleanup(func() { require.NoError(t, producer.Close()) })

	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {0, 1}}}
	consumer := &stubPartitionSource{consumers: map[int32]*stubPartitionConsumer{
		0: partitionWith(consumerMessage(0, 0, deadLetterValue(t, "o-1", "order-1"))),
	}}

	publisher := kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents)
	r := newTestReplayer(client, consumer, publisher, 10)
	logger, hook := logtest.NewNullLogger()
	r.logger = log.NewEntry(logger)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, replayStats{processed: 1, replayed: 1}, stats)

	var replayed, finished *log.Entry
	for _, entry := range hook.AllEntries() {
		switch entry.Message {
		case "dlq message replayed":
			replayed = entry
		case "dlq replay finished":
			finished = entry
		}
	}
	require.NotNil(t, replayed)
	require.Equal(t, kafka.TopicOrderEvents, replayed.Data["target_topic"])
	require.NotNil(t, finished)
	require.Equal(t, "execute", finished.Data["mode"])
	require.Equal(t, kafka.TopicOrderEvents, finished.Data["target_topic"])
}

func TestReplayer_PublishErrorStops(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer := kafka.NewProducerFrom(mockProducer)
	t.Cleanup(func() { require.NoError(t, producer.Close()) })

	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {0, 2}}}
	consumer := &stubPartitionSource{consumers: map[int32]*stubPartitionConsumer{
		0: partitionWith(
			consumerMessage(0, 0, deadLetterValue(t, "o-1", "order-1")),
			consumerMessage(0, 1, deadLetterValue(t, "o-2", "order-2")),
		),
	}}

	stats, err := newTestReplayer(client, consumer, kafka.NewOutboxPublisher(producer, ""), 10).Run(context.Background())
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.Equal(t, 1, stats.processed)
	require.Zero(t, stats.replayed)
}

func TestReplayer_LimitAndFromNewest(t *testing.T) {
	client := &stubOffsetClient{partitions: []int32{0, 1}, offsets: map[int32]offsetRange{0: {0, 10}, 1: {0, 10}}}
	consumer := &stubPartitionSource{consumers: map[int32]*stubPartitionConsumer{
		0: partitionWith(
			consumerMessage(0, 8, deadLetterValue(t, "o-8", "order-8")),
			consumerMessage(0, 9, deadLetterValue(t, "o-9", "order-9")),
		),
	}}

	r := newTestReplayer(client, consumer, nil, 2)
	r.cfg.fromNewest = true
	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.processed)
	require.Equal(t, []consumeCall{{0, 8}}, consumer.calls)
}

func TestReplayer_ErrorBranches(t *testing.T) {
	boom := errors.New("boom")

	t.Run("partitions", func(t *testing.T) {
		r := newTestReplayer(&stubOffsetClient{partitionsErr: boom}, &stubPartitionSource{}, nil, 1)
		_, err := r.Run(context.Background())
		require.ErrorIs(t, err, boom)
	})

	t.Run("offset", func(t *testing.T) {
		client := &stubOffsetClient{partitions: []int32{0}, offsetErr: map[int32]error{0: boom}}
		_, err := newTestReplayer(client, &stubPartitionSource{}, nil, 1).Run(context.Background())
		require.ErrorIs(t, err, boom)
	})

	t.Run("consume", func(t *testing.T) {
		client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {0, 1}}}
		_, err := newTestReplayer(client, &stubPartitionSource{consumeErr: boom}, nil, 1).Run(context.Background())
		require.ErrorIs(t, err, boom)
	})

	t.Run("consumer error", func(t *testing.T) {
		pc := &stubPartitionConsumer{
			messages: make(chan *sarama.ConsumerMessage),
			errors:   make(chan *sarama.ConsumerError, 1),
		}
		pc.errors <- &sarama.ConsumerError{Topic: kafka.TopicDeadLetterQueue, Err: boom}
		client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {0, 1}}}
		consumer := &stubPartitionSource{consumers: map[int32]*stubPartitionConsumer{0: pc}}
		_, err := newTestReplayer(client, consumer, nil, 1).Run(context.Background())
		require.ErrorIs(t, err, boom)
	})

	t.Run("empty partition", func(t *testing.T) {
		client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {3, 3}}}
		consumer := &stubPartitionSource{}
		stats, err := newTestReplayer(client, consumer, nil, 1).Run(context.Background())
		require.NoError(t, err)
		require.Zero(t, stats.processed)
		require.Empty(t, consumer.calls)
	})
}

func TestReplayer_IdleTimeoutAndCancel(t *testing.T) {
	idlePartition := func() *stubPartitionConsumer {
		return &stubPartitionConsumer{
			messages: make(chan *sarama.ConsumerMessage),
			errors:   make(chan *sarama.ConsumerError),
		}
	}
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {0, 5}}}

	consumer := &stubPartitionSource{consumers: map[int32]*stubPartitionConsumer{0: idlePartition()}}
	r := newTestReplayer(client, consumer, nil, 5)
	r.cfg.idleTimeout = 20 * time.Millisecond
	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.processed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	consumer = &stubPartitionSource{consumers: map[int32]*stubPartitionConsumer{0: idlePartition()}}
	_, err = newTestReplayer(client, consumer, nil, 5).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func newTestReplayer(client offsetClient, consumer partitionSource, publisher *kafka.OutboxTopicPublisher, limit int) *replayer {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return &replayer{
		cfg: config{
			sourceTopic: kafka.TopicDeadLetterQueue,
			targetTopic: kafka.TopicOrderEvents,
			limit:       limit,
			idleTimeout: time.Second,
		},
		client:    client,
		consumer:  consumer,
		publisher: publisher,
		logger:    log.NewEntry(logger),
	}
}

func deadLetterValue(t *testing.T, outboxID, orderID string) []byte {
	t.Helper()
	dead, err := json.Marshal(domain.OutboxDeadLetter{
		OutboxID:       outboxID,
		AggregateType:  domain.AggregateTypeOrder,
		AggregateID:    orderID,
		EventType:      domain.EventTypeOrderPlaced,
		Payload:        json.RawMessage(fmt.Sprintf(`{"order_id":%q}`, orderID)),
		PublishError:   "broker down",
		DLQPublishedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	raw, err := json.Marshal(kafka.NewEnvelope(domain.OutboxMessage{
		ID:            outboxID,
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   orderID,
		EventType:     domain.EventTypeOrderPlaced,
		Payload:       dead,
	}, time.Now()))
	require.NoError(t, err)
	return raw
}

func consumerMessage(partition int32, offset int64, value []byte) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic:     kafka.TopicDeadLetterQueue,
		Partition: partition,
		Offset:    offset,
		Value:     value,
	}
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	offsetErr     map[int32]error
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}
	r := s.offsets[partition]
	if marker == sarama.OffsetOldest {
		return r.oldest, nil
	}
	return r.newest, nil
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	return append([]int32(nil), s.partitions...), s.partitionsErr
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionSource struct {
	consumers  map[int32]*stubPartitionConsumer
	consumeErr error
	calls      []consumeCall
}

func (s *stubPartitionSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error {
	s.closed = true
	return nil
}

func partitionWith(messages ...*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	return &stubPartitionConsumer{messages: msgCh, errors: make(chan *sarama.ConsumerError)}
}
