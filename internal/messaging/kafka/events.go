package kafka

import "time"

// EventType определяет тип события оформления продажи.
type EventType string

const (
	// События попытки оформления
	EventTypeSubmissionStarted   EventType = "submission.started"
	EventTypeSubmissionResumed   EventType = "submission.resumed"
	EventTypeSubmissionCompleted EventType = "submission.completed"
	EventTypeSubmissionFailed    EventType = "submission.failed"
	EventTypeDraftDiscarded      EventType = "submission.draft_discarded"

	// События внешней продажи
	EventTypeSaleCreated      EventType = "sale.created"
	EventTypeSaleFinalized    EventType = "sale.finalized"
	EventTypeTravelerAttached EventType = "sale.traveler_attached"
)

// Topics для Kafka
const (
	TopicSubmissionEvents = "pdv.submission.events"
	TopicSaleEvents       = "pdv.sale.events"
	TopicDeadLetterQueue  = "pdv.dlq" // Dead Letter Queue для сообщений outbox, не ушедших после retry
)

// Kafka headers для сообщений DLQ
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// SubmissionEvent — событие попытки оформления продажи.
type SubmissionEvent struct {
	EventType EventType              `json:"event_type"`
	SessionID string                 `json:"session_id"`
	DraftID   string                 `json:"draft_id"`
	SaleID    string                 `json:"sale_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewSubmissionEvent создает событие попытки оформления
func NewSubmissionEvent(eventType EventType, sessionID, draftID, saleID string, metadata map[string]interface{}) *SubmissionEvent {
	return &SubmissionEvent{
		EventType: eventType,
		SessionID: sessionID,
		DraftID:   draftID,
		SaleID:    saleID,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// TopicFor возвращает topic для типа события.
func TopicFor(eventType EventType) string {
	switch eventType {
	case EventTypeSaleCreated, EventTypeSaleFinalized, EventTypeTravelerAttached:
		return TopicSaleEvents
	}
	return TopicSubmissionEvents
}
