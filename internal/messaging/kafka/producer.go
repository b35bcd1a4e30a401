package kafka

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// HeaderContentType сопровождает каждое сообщение: payload всегда JSON.
const HeaderContentType = "content-type"

// EventPublisher публикует событие в topic с ключом партиционирования.
type EventPublisher interface {
	PublishEvent(topic string, key string, event interface{}) error
}

// ProducerOption донастраивает sarama.Config до подключения к брокерам.
type ProducerOption func(*sarama.Config)

// WithClientID задаёт client.id, под которым сервис виден брокерам.
func WithClientID(id string) ProducerOption {
	return func(c *sarama.Config) {
		if id != "" {
			c.ClientID = id
		}
	}
}

// WithDialTimeout ограничивает подключение к брокеру.
func WithDialTimeout(d time.Duration) ProducerOption {
	return func(c *sarama.Config) {
		if d > 0 {
			c.Net.DialTimeout = d
		}
	}
}

// newProducerConfig — идемпотентный producer с подтверждением от всех ISR.
func newProducerConfig(opts ...ProducerOption) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	// Идемпотентность sarama требует одного запроса в полёте.
	cfg.Net.MaxOpenRequests = 1
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Producer публикует события оформления в Kafka.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
}

// NewProducer подключается к brokers.
func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	sp, err := sarama.NewSyncProducer(brokers, newProducerConfig(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewProducerFromSync(sp, nil), nil
}

// NewProducerFromSync оборачивает готовый sarama.SyncProducer (например, mocks в тестах).
func NewProducerFromSync(producer sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{
		producer: producer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *Producer) PublishEvent(topic string, key string, event interface{}) error {
	return p.PublishWithHeaders(topic, key, event, nil)
}

// PublishWithHeaders публикует событие с дополнительными заголовками.
func (p *Producer) PublishWithHeaders(topic, key string, event interface{}, headers map[string]string) error {
	msg, err := buildMessage(topic, key, event, headers, p.now())
	if err != nil {
		return err
	}

	fields := log.Fields{"topic": topic, "key": key}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("failed to send message to kafka")
		return fmt.Errorf("failed to send message: %w", err)
	}

	fields["partition"] = partition
	fields["offset"] = offset
	p.logger.WithFields(fields).Debug("message sent to kafka")
	return nil
}

// buildMessage сериализует событие; заголовки идут в порядке ключей.
func buildMessage(topic, key string, event interface{}, headers map[string]string, at time.Time) (*sarama.ProducerMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		if name != HeaderContentType {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	records := make([]sarama.RecordHeader, 0, len(names)+1)
	records = append(records, sarama.RecordHeader{Key: []byte(HeaderContentType), Value: []byte("application/json")})
	for _, name := range names {
		records = append(records, sarama.RecordHeader{Key: []byte(name), Value: []byte(headers[name])})
	}

	return &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(payload),
		Headers:   records,
		Timestamp: at,
	}, nil
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}

var _ EventPublisher = (*Producer)(nil)
