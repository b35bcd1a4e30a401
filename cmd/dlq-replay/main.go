// Command dlq-replay возвращает события оформления продаж из pdv.dlq в исходные топики.
// По умолчанию работает в режиме dry-run и только печатает кандидатов.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second

	headerReplayedFrom = "x-replayed-from"
)

type config struct {
	brokers     []string
	sourceTopic string
	// targetTopic переопределяет исходный топик из заголовков DLQ.
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// dlqEnvelope — сообщение DLQ, как его пишет DLQPublisher.
type dlqEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// dlqBody — содержимое payload, которое outbox worker формирует перед отправкой в DLQ.
type dlqBody struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

// replayEnvelope повторяет формат outbox-сообщения в основных топиках.
type replayEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

type replayMessage struct {
	topic     string
	key       string
	value     []byte
	eventType string
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	return a.consumer.Close()
}

// replayer читает DLQ по партициям и переотправляет события.
type replayer struct {
	cfg      config
	client   offsetClient
	consumer partitionConsumerSource
	// producer nil в режиме dry-run.
	producer sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

var connect = func(cfg config) (*replayer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	r := newReplayer(cfg, client, saramaConsumerAdapter{consumer: consumer}, nil)
	if !cfg.execute {
		return r, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerConfig)
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	r.producer = producer
	return r, nil
}

func newReplayer(cfg config, client offsetClient, consumer partitionConsumerSource, producer sarama.SyncProducer) *replayer {
	return &replayer{
		cfg:      cfg,
		client:   client,
		consumer: consumer,
		producer: producer,
		logger:   log.WithField("component", "dlq-replay"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := connect(cfg)
	if err != nil {
		fail("%v", err)
	}
	defer func() { _ = r.Close() }()

	if _, err := r.Run(ctx); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(fs *flag.FlagSet, args []string) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: PDV_KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	fs.StringVar(&cfg.targetTopic, "target-topic", "", "override target topic (default: original topic of each message)")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	fs.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("PDV_KAFKA_BROKERS")
	}
	cfg.brokers = parseBrokers(brokersRaw)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or PDV_KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, fmt.Errorf("source-topic is required")
	case cfg.limit <= 0:
		return config{}, fmt.Errorf("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// Run просматривает партиции DLQ по возрастанию номера до исчерпания limit.
func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	var total replayStats
	if r.cfg.execute && r.producer == nil {
		return total, fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.cfg.sourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		remaining := r.cfg.limit - total.processed
		if remaining <= 0 {
			break
		}
		stats, err := r.drainPartition(ctx, partition, remaining)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if r.cfg.execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")
	return total, nil
}

// drainPartition читает партицию до зафиксированного на старте конца или до простоя.
func (r *replayer) drainPartition(ctx context.Context, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.cfg.fromNewest && newest-int64(limit) > oldest {
		start = newest - int64(limit)
	}

	pc, err := r.consumer.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.cfg.idleTimeout)

			stats.processed++
			replay, err := decodeDLQMessage(msg, r.cfg.targetTopic, r.now())
			if err != nil {
				stats.skipped++
				r.logger.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip unsupported dlq message")
				continue
			}

			entry := r.logger.WithFields(log.Fields{
				"partition":    msg.Partition,
				"offset":       msg.Offset,
				"target_topic": replay.topic,
				"event_type":   replay.eventType,
				"key":          replay.key,
			})
			if r.cfg.execute {
				if err := r.publish(replay, msg); err != nil {
					return stats, fmt.Errorf("publish replay message: %w", err)
				}
				entry.Info("dlq message replayed")
			} else {
				entry.Info("dlq replay candidate")
			}
			stats.replayed++

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *replayer) publish(replay replayMessage, source *sarama.ConsumerMessage) error {
	_, _, err := r.producer.SendMessage(&sarama.ProducerMessage{
		Topic: replay.topic,
		Key:   sarama.StringEncoder(replay.key),
		Value: sarama.ByteEncoder(replay.value),
		Headers: []sarama.RecordHeader{{
			Key:   []byte(headerReplayedFrom),
			Value: []byte(fmt.Sprintf("%s/%d/%d", source.Topic, source.Partition, source.Offset)),
		}},
	})
	return err
}

// Close освобождает соединения с Kafka.
func (r *replayer) Close() error {
	if r.producer != nil {
		_ = r.producer.Close()
	}
	if r.consumer != nil {
		_ = r.consumer.Close()
	}
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// decodeDLQMessage восстанавливает исходное outbox-сообщение.
// Топик: override, затем заголовок x-original-topic, затем топик по типу события.
func decodeDLQMessage(msg *sarama.ConsumerMessage, override string, now time.Time) (replayMessage, error) {
	var envelope dlqEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return replayMessage{}, fmt.Errorf("decode dlq envelope: %w", err)
	}
	if len(envelope.Payload) == 0 {
		return replayMessage{}, fmt.Errorf("dlq envelope has no payload")
	}

	var body dlqBody
	if err := json.Unmarshal(envelope.Payload, &body); err != nil {
		return replayMessage{}, fmt.Errorf("decode dlq payload: %w", err)
	}
	if len(body.Payload) == 0 {
		return replayMessage{}, fmt.Errorf("dlq payload does not contain original event")
	}

	replay := replayEnvelope{
		ID:            firstNonEmpty(body.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(body.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(body.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(body.EventType, envelope.EventType),
		Payload:       body.Payload,
		PublishedAt:   now,
	}
	if replay.EventType == "" {
		return replayMessage{}, fmt.Errorf("dlq message has no event type")
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return replayMessage{}, fmt.Errorf("encode replay envelope: %w", err)
	}

	topic := strings.TrimSpace(override)
	if topic == "" {
		topic = headerValue(msg, kafka.HeaderOriginalTopic)
	}
	if topic == "" {
		topic = kafka.TopicFor(kafka.EventType(replay.EventType))
	}

	return replayMessage{
		topic:     topic,
		key:       firstNonEmpty(replay.AggregateID, replay.ID),
		value:     encoded,
		eventType: replay.EventType,
	}, nil
}

func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return strings.TrimSpace(string(h.Value))
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
