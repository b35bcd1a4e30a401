package kafka

import (
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if len(val) == 0 {
			return errors.New("expected non-empty payload")
		}
		return nil
	})

	event := NewSubmissionEvent(
		EventTypeSubmissionStarted,
		"session-1",
		"draft-1",
		"",
		map[string]interface{}{
			"customer_id": "cus-1",
		},
	)

	if err := producer.PublishEvent(TopicSubmissionEvents, "draft-1", event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, nil)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewSubmissionEvent(EventTypeSubmissionFailed, "session-1", "draft-1", "sale-1", nil)
	if err := producer.PublishEvent(TopicSubmissionEvents, "draft-1", event); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, nil)

	if err := producer.PublishEvent(TopicSubmissionEvents, "k", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTopicFor(t *testing.T) {
	tests := map[EventType]string{
		EventTypeSaleCreated:         TopicSaleEvents,
		EventTypeTravelerAttached:    TopicSaleEvents,
		EventTypeSubmissionCompleted: TopicSubmissionEvents,
		EventType("unknown"):         TopicSubmissionEvents,
	}
	for eventType, want := range tests {
		if got := TopicFor(eventType); got != want {
			t.Errorf("TopicFor(%s) = %s, want %s", eventType, got, want)
		}
	}
}

func TestNewProducerConfig(t *testing.T) {
	cfg := newProducerConfig(WithClientID("pdv-service"), WithDialTimeout(3*time.Second), WithClientID(""))

	if cfg.ClientID != "pdv-service" {
		t.Fatalf("client id = %q, want pdv-service", cfg.ClientID)
	}
	if cfg.Net.DialTimeout != 3*time.Second {
		t.Fatalf("dial timeout = %s, want 3s", cfg.Net.DialTimeout)
	}
	if !cfg.Producer.Idempotent || cfg.Net.MaxOpenRequests != 1 {
		t.Fatal("expected idempotent producer with a single in-flight request")
	}
	if cfg.Producer.RequiredAcks != sarama.WaitForAll {
		t.Fatalf("required acks = %v, want WaitForAll", cfg.Producer.RequiredAcks)
	}
}

func TestBuildMessage_HeadersAreOrdered(t *testing.T) {
	at := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	msg, err := buildMessage(TopicDeadLetterQueue, "draft-1", map[string]string{"a": "b"}, map[string]string{
		HeaderRetryCount:    "3",
		HeaderContentType:   "text/plain",
		HeaderOriginalTopic: TopicSaleEvents,
	}, at)
	if err != nil {
		t.Fatalf("build message: %v", err)
	}

	want := []string{HeaderContentType, HeaderOriginalTopic, HeaderRetryCount}
	if len(msg.Headers) != len(want) {
		t.Fatalf("headers = %d, want %d", len(msg.Headers), len(want))
	}
	for i, name := range want {
		if got := string(msg.Headers[i].Key); got != name {
			t.Fatalf("header[%d] = %s, want %s", i, got, name)
		}
	}
	if got := string(msg.Headers[0].Value); got != "application/json" {
		t.Fatalf("content-type = %s, want application/json", got)
	}
	if !msg.Timestamp.Equal(at) {
		t.Fatalf("timestamp = %s, want %s", msg.Timestamp, at)
	}

	value, _ := msg.Value.Encode()
	if string(value) != `{"a":"b"}` {
		t.Fatalf("payload = %s", value)
	}
}
