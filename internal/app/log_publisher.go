package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// logPublisher — publisher outbox для запуска без Kafka: событие пишется в лог и считается отправленным.
type logPublisher struct {
	logger *log.Entry
}

func newLogPublisher(logger *log.Entry) domain.OutboxPublisher {
	return &logPublisher{logger: logger}
}

func (p *logPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"event_id":     event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	}).Debug("outbox event (kafka disabled)")
	return nil
}
