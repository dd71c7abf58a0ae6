package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"github.com/james-livefront/ai-paywall/pkg/detect"
)

// KafkaConfig holds producer settings for the kafka store.
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	Acks        string
	Compression string
}

// KafkaStore streams detection results to a Kafka topic, keyed by
// result ID so downstream consumers can deduplicate re-deliveries.
// Stats are process-local counters over results accepted by the
// producer: the topic itself retains the durable history, and this
// store keeps none, so Export is unsupported.
type KafkaStore struct {
	config   KafkaConfig
	producer *kafka.Producer
	logger   logrus.FieldLogger
	tally    counters
	failed   atomic.Int64
}

// NewKafkaStore creates a kafka store with explicit brokers and topic.
func NewKafkaStore(brokers []string, topic string, logger logrus.FieldLogger) *KafkaStore {
	return &KafkaStore{
		config: KafkaConfig{Brokers: brokers, Topic: topic, Acks: "all"},
		logger: logger,
	}
}

// NewKafkaStoreFromEnv reads KAFKA_BROKERS, KAFKA_TOPIC, KAFKA_ACKS
// and KAFKA_COMPRESSION.
func NewKafkaStoreFromEnv(logger logrus.FieldLogger) *KafkaStore {
	brokersStr := os.Getenv("KAFKA_BROKERS")
	if brokersStr == "" {
		brokersStr = "localhost:9092"
	}
	brokers := strings.Split(brokersStr, ",")
	for i, broker := range brokers {
		brokers[i] = strings.TrimSpace(broker)
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "ai_paywall.detections"
	}
	acks := os.Getenv("KAFKA_ACKS")
	if acks == "" {
		acks = "all"
	}

	return &KafkaStore{
		config: KafkaConfig{
			Brokers:     brokers,
			Topic:       topic,
			Acks:        acks,
			Compression: os.Getenv("KAFKA_COMPRESSION"),
		},
		logger: logger,
	}
}

func (s *KafkaStore) Start(ctx context.Context) error {
	configMap := kafka.ConfigMap{
		"bootstrap.servers": strings.Join(s.config.Brokers, ","),
		"acks":              s.config.Acks,
		"retries":           10,
		"retry.backoff.ms":  100,
		"linger.ms":         10,
	}
	if s.config.Compression != "" {
		configMap["compression.type"] = s.config.Compression
	}

	producer, err := kafka.NewProducer(&configMap)
	if err != nil {
		return fmt.Errorf("creating kafka producer: %w", err)
	}
	s.producer = producer

	go s.handleDeliveryReports(ctx)
	return nil
}

func (s *KafkaStore) Record(ctx context.Context, res detect.Result) error {
	if s.producer == nil {
		return fmt.Errorf("kafka store not started")
	}

	value, err := json.Marshal(res)
	if err != nil {
		return err
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &s.config.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(res.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "schema", Value: []byte("v1")},
		},
	}
	if err := s.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("producing detection: %w", err)
	}

	s.tally.observe(res)
	return nil
}

// Stats reflects results accepted by this process's producer, not the
// topic's full history; consumers aggregating the topic are the
// authoritative source across processes.
func (s *KafkaStore) Stats(ctx context.Context) (Stats, error) {
	return s.tally.stats(), nil
}

func (s *KafkaStore) Export(ctx context.Context, w io.Writer) error {
	return &ExportError{
		Store: s.Name(),
		Err:   fmt.Errorf("streaming store retains no exportable history"),
	}
}

func (s *KafkaStore) Close() error {
	if s.producer == nil {
		return nil
	}
	if remaining := s.producer.Flush(10 * 1000); remaining > 0 {
		return fmt.Errorf("failed to flush %d remaining detections", remaining)
	}
	s.producer.Close()
	return nil
}

func (s *KafkaStore) Name() string { return "kafka" }

// DeliveryFailures reports how many produced records failed delivery.
func (s *KafkaStore) DeliveryFailures() int64 { return s.failed.Load() }

func (s *KafkaStore) handleDeliveryReports(ctx context.Context) {
	events := s.producer.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case *kafka.Message:
				if e.TopicPartition.Error != nil {
					s.failed.Add(1)
					if s.logger != nil {
						s.logger.WithError(e.TopicPartition.Error).Warn("kafka delivery failed")
					}
				}
			case kafka.Error:
				if s.logger != nil {
					s.logger.WithField("code", e.Code()).Warn("kafka producer error")
				}
			}
		}
	}
}
