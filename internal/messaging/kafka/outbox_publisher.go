package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// outboxEnvelope — формат сообщения outbox в Kafka.
type outboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

func envelopeFor(event domain.OutboxMessage) outboxEnvelope {
	return outboxEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}
}

func keyFor(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	return event.ID
}

// OutboxTopicPublisher публикует outbox-сообщения в topic по типу события.
// Если topic задан явно, все сообщения идут в него.
type OutboxTopicPublisher struct {
	producer EventPublisher
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer EventPublisher, topic string) domain.OutboxPublisher {
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Publish отправляет сообщение; ключ — идентификатор черновика, чтобы события попытки шли по порядку.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	topic := p.topic
	if topic == "" {
		topic = TopicFor(EventType(event.EventType))
	}
	return p.producer.PublishEvent(topic, keyFor(event), envelopeFor(event))
}

// DLQPublisher отправляет сообщения, исчерпавшие retry, в Dead Letter Queue с заголовками.
type DLQPublisher struct {
	producer      *Producer
	originalTopic string
	attempts      int
}

// NewDLQPublisher создаёт паблишер DLQ.
func NewDLQPublisher(producer *Producer, originalTopic string, attempts int) domain.OutboxPublisher {
	return &DLQPublisher{producer: producer, originalTopic: originalTopic, attempts: attempts}
}

// Publish отправляет сообщение в TopicDeadLetterQueue.
func (p *DLQPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}

	original := p.originalTopic
	if original == "" {
		original = TopicFor(EventType(event.EventType))
	}
	headers := map[string]string{
		HeaderOriginalTopic: original,
		HeaderRetryCount:    strconv.Itoa(p.attempts),
		HeaderFailedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	var body struct {
		PublishError string `json:"publish_error"`
	}
	if err := json.Unmarshal(event.Payload, &body); err == nil && body.PublishError != "" {
		headers[HeaderErrorMessage] = body.PublishError
	}

	return p.producer.PublishWithHeaders(TopicDeadLetterQueue, keyFor(event), envelopeFor(event), headers)
}

var (
	_ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
	_ domain.OutboxPublisher = (*DLQPublisher)(nil)
)
