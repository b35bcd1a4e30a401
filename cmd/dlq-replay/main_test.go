package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pdv/internal/messaging/kafka"
)

var fixedNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

// dlqValue собирает сообщение в формате DLQPublisher.
func dlqValue(t *testing.T, eventType string, withOriginal bool) []byte {
	t.Helper()

	body := map[string]any{
		"outbox_id":      "outbox-1",
		"aggregate_type": "sale_draft",
		"aggregate_id":   "draft-1",
		"event_type":     eventType,
		"publish_error":  "publish failed after 3 attempts: broker down",
	}
	if withOriginal {
		body["payload"] = map[string]any{"sale_id": "sale-1"}
	}
	raw, err := json.Marshal(map[string]any{
		"id":             "outbox-1",
		"aggregate_type": "sale_draft",
		"aggregate_id":   "draft-1",
		"event_type":     eventType,
		"payload":        body,
	})
	require.NoError(t, err)
	return raw
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, parseBrokers(" broker-1:9092, ,broker-2:9092 "))
	assert.Empty(t, parseBrokers(" , "))
}

func TestReadConfig_FromFlags(t *testing.T) {
	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	cfg, err := readConfig(fs, []string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-limit=10",
		"-execute=true",
		"-from-newest=true",
		"-idle-timeout=3s",
	})
	require.NoError(t, err)

	assert.Len(t, cfg.brokers, 2)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
	assert.Empty(t, cfg.targetTopic)
	assert.Equal(t, 10, cfg.limit)
	assert.True(t, cfg.execute)
	assert.True(t, cfg.fromNewest)
	assert.Equal(t, 3*time.Second, cfg.idleTimeout)
}

func TestReadConfig_BrokersFromEnv(t *testing.T) {
	t.Setenv("PDV_KAFKA_BROKERS", "env-broker:9092")

	cfg, err := readConfig(flag.NewFlagSet("dlq-replay", flag.ContinueOnError), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"env-broker:9092"}, cfg.brokers)
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	t.Setenv("PDV_KAFKA_BROKERS", "")

	tests := []struct {
		args   []string
		errMsg string
	}{
		{[]string{"-brokers="}, "kafka brokers are required"},
		{[]string{"-brokers=b:9092", "-source-topic="}, "source-topic is required"},
		{[]string{"-brokers=b:9092", "-limit=0"}, "limit must be > 0"},
		{[]string{"-brokers=b:9092", "-idle-timeout=0s"}, "idle-timeout must be > 0"},
	}
	for _, tt := range tests {
		_, err := readConfig(flag.NewFlagSet("dlq-replay", flag.ContinueOnError), tt.args)
		if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
			t.Fatalf("args %v: expected error %q, got %v", tt.args, tt.errMsg, err)
		}
	}
}

func TestDecodeDLQMessage_UsesOriginalTopicHeader(t *testing.T) {
	msg := &sarama.ConsumerMessage{
		Value: dlqValue(t, string(kafka.EventTypeSaleCreated), true),
		Headers: []*sarama.RecordHeader{
			{Key: []byte(kafka.HeaderOriginalTopic), Value: []byte("custom.sales")},
		},
	}

	got, err := decodeDLQMessage(msg, "", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "custom.sales", got.topic)
	assert.Equal(t, "draft-1", got.key)

	var replay replayEnvelope
	require.NoError(t, json.Unmarshal(got.value, &replay))
	assert.Equal(t, "outbox-1", replay.ID)
	assert.Equal(t, string(kafka.EventTypeSaleCreated), replay.EventType)
	assert.JSONEq(t, `{"sale_id":"sale-1"}`, string(replay.Payload))
	assert.True(t, replay.PublishedAt.Equal(fixedNow))
}

func TestDecodeDLQMessage_TopicFallbacks(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: dlqValue(t, string(kafka.EventTypeSubmissionFailed), true)}

	got, err := decodeDLQMessage(msg, "", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, kafka.TopicSubmissionEvents, got.topic)

	got, err = decodeDLQMessage(msg, "override.topic", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "override.topic", got.topic)
}

func TestDecodeDLQMessage_Rejects(t *testing.T) {
	_, err := decodeDLQMessage(&sarama.ConsumerMessage{Value: []byte("not json")}, "", fixedNow)
	assert.Error(t, err)

	_, err = decodeDLQMessage(&sarama.ConsumerMessage{Value: []byte(`{"foo":"bar"}`)}, "", fixedNow)
	assert.Error(t, err)

	_, err = decodeDLQMessage(&sarama.ConsumerMessage{Value: dlqValue(t, "sale.created", false)}, "", fixedNow)
	assert.ErrorContains(t, err, "does not contain original event")
}

func TestRun_DryRunDoesNotPublish(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{1, 0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}, 1: {oldest: 5, newest: 6}},
	}
	consumer := &stubConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(
			&sarama.ConsumerMessage{Partition: 0, Offset: 0, Value: dlqValue(t, "sale.created", true)},
			&sarama.ConsumerMessage{Partition: 0, Offset: 1, Value: []byte(`garbage`)},
		),
		1: closedPartitionConsumer(
			&sarama.ConsumerMessage{Partition: 1, Offset: 5, Value: dlqValue(t, "submission.completed", true)},
		),
	}}

	r := newReplayer(testConfig(false), client, consumer, nil)
	stats, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, replayStats{processed: 3, replayed: 2, skipped: 1}, stats)
	// Партиции читаются по возрастанию
	require.Len(t, consumer.calls, 2)
	assert.Equal(t, int32(0), consumer.calls[0].partition)
}

func TestRun_ExecutePublishesToOriginalTopic(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var replay replayEnvelope
		if err := json.Unmarshal(val, &replay); err != nil {
			return err
		}
		if replay.EventType != "sale.traveler_attached" {
			return fmt.Errorf("unexpected event type %s", replay.EventType)
		}
		return nil
	})

	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 1}}}
	consumer := &stubConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(&sarama.ConsumerMessage{
			Topic: kafka.TopicDeadLetterQueue, Partition: 0, Offset: 0,
			Value: dlqValue(t, "sale.traveler_attached", true),
		}),
	}}

	r := newReplayer(testConfig(true), client, consumer, producer)
	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.replayed)

	require.NoError(t, r.Close())
	assert.True(t, client.closed)
	assert.True(t, consumer.closed)
}

func TestRun_ExecuteStopsOnPublishError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(errors.New("broker down"))

	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 3}}}
	consumer := &stubConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(&sarama.ConsumerMessage{Offset: 0, Value: dlqValue(t, "sale.created", true)}),
	}}

	r := newReplayer(testConfig(true), client, consumer, producer)
	_, err := r.Run(context.Background())
	require.ErrorContains(t, err, "publish replay message")
	require.NoError(t, producer.Close())
}

func TestRun_ExecuteRequiresProducer(t *testing.T) {
	r := newReplayer(testConfig(true), &stubOffsetClient{}, &stubConsumerSource{}, nil)
	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "producer is required")
}

func TestRun_FromNewestStartsNearEnd(t *testing.T) {
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 50}}}
	consumer := &stubConsumerSource{consumers: map[int32]partitionConsumer{0: closedPartitionConsumer()}}

	cfg := testConfig(false)
	cfg.fromNewest = true
	cfg.limit = 10
	_, err := newReplayer(cfg, client, consumer, nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, consumer.calls, 1)
	assert.Equal(t, int64(40), consumer.calls[0].offset)
}

func TestRun_ErrorBranches(t *testing.T) {
	r := newReplayer(testConfig(false), &stubOffsetClient{partitionsErr: errors.New("boom")}, &stubConsumerSource{}, nil)
	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "get partitions")

	client := &stubOffsetClient{partitions: []int32{0}, offsetErr: map[int32]error{0: errors.New("offsets")}}
	_, err = newReplayer(testConfig(false), client, &stubConsumerSource{}, nil).Run(context.Background())
	assert.ErrorContains(t, err, "get oldest offset")

	client = &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 1}}}
	_, err = newReplayer(testConfig(false), client, &stubConsumerSource{consumeErr: errors.New("denied")}, nil).Run(context.Background())
	assert.ErrorContains(t, err, "consume partition 0")

	// Пустой топик
	stats, err := newReplayer(testConfig(false), &stubOffsetClient{}, &stubConsumerSource{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
}

func TestRun_IdleTimeoutAndCancel(t *testing.T) {
	open := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 5}}}

	cfg := testConfig(false)
	cfg.idleTimeout = 20 * time.Millisecond
	stats, err := newReplayer(cfg, client, &stubConsumerSource{consumers: map[int32]partitionConsumer{0: open}}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
	assert.True(t, open.closed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg.idleTimeout = time.Second
	_, err = newReplayer(cfg, client, &stubConsumerSource{consumers: map[int32]partitionConsumer{0: open}}, nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func testConfig(execute bool) config {
	return config{
		brokers:     []string{"broker:9092"},
		sourceTopic: kafka.TopicDeadLetterQueue,
		limit:       defaultReplayLimit,
		execute:     execute,
		idleTimeout: time.Second,
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
	closed        bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}
	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	}
	return 0, fmt.Errorf("unsupported marker %d", marker)
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *stubConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
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

func (s *stubConsumerSource) Close() error {
	s.closed = true
	return nil
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

// closedPartitionConsumer отдаёт сообщения и закрывает канал; канал ошибок не закрыт.
func closedPartitionConsumer(messages ...*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	return &stubPartitionConsumer{messages: msgCh, errors: make(chan *sarama.ConsumerError)}
}
