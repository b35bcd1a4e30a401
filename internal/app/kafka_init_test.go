package app

import (
	"testing"

	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/vladislavdragonenkov/pdv/internal/messaging/kafka"
)

func TestConnectKafka(t *testing.T) {
	logger := log.WithField("test", "kafka")

	tests := []struct {
		name    string
		brokers string
	}{
		{name: "no brokers", brokers: ""},
		{name: "only separators", brokers: " , "},
		{name: "unreachable broker", brokers: "127.0.0.1:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.KafkaBrokers = tt.brokers
			assert.Nil(t, connectKafka(cfg, logger))
		})
	}
}

func TestCloseKafka(t *testing.T) {
	logger := log.WithField("test", "kafka")

	assert.NotPanics(t, func() { closeKafka(nil, logger) })

	sp := mocks.NewSyncProducer(t, nil)
	closeKafka(kafka.NewProducerFromSync(sp, nil), logger)
}
