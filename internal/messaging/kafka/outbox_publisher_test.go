package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, nil), "")

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "sale_draft",
		AggregateID:   "draft-123",
		EventType:     string(EventTypeSaleCreated),
		Payload:       []byte(`{"sale_id":"sale-1"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, nil), TopicSubmissionEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:          "outbox-2",
		AggregateID: "draft-234",
		EventType:   string(EventTypeSubmissionFailed),
		Payload:     []byte(`{"step":"finalize"}`),
	})
	if err == nil {
		t.Fatal("expected publish error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_NotInitialized(t *testing.T) {
	t.Parallel()

	var publisher *OutboxTopicPublisher
	if err := publisher.Publish(domain.OutboxMessage{ID: "x"}); err == nil {
		t.Fatal("expected error for nil publisher")
	}
}

func TestDLQPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()

	publisher := NewDLQPublisher(NewProducerFromSync(mockProducer, nil), "", 3)
	err := publisher.Publish(domain.OutboxMessage{
		ID:          "outbox-3",
		AggregateID: "draft-1",
		EventType:   string(EventTypeSaleFinalized),
		Payload:     []byte(`{"publish_error":"broker down"}`),
	})
	if err != nil {
		t.Fatalf("dlq publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}
