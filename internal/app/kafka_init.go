package app

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pdv/internal/version"
)

const kafkaDialTimeout = 5 * time.Second

// connectKafka подключает producer событий оформления. Без brokers или при ошибке
// подключения возвращает nil: outbox тогда пишет события в лог.
func connectKafka(cfg Config, logger *log.Entry) *kafka.Producer {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		logger.Info("PDV_KAFKA_BROKERS не задан, события outbox пишутся в лог")
		return nil
	}

	producer, err := kafka.NewProducer(brokers,
		kafka.WithClientID(version.Service),
		kafka.WithDialTimeout(kafkaDialTimeout),
	)
	if err != nil {
		logger.WithError(err).WithField("brokers", brokers).Warn("kafka недоступна, продолжаем без неё")
		return nil
	}

	logger.WithFields(log.Fields{"brokers": brokers, "topic": cfg.KafkaTopic}).Info("kafka producer подключён")
	return producer
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
