package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/mentiq/dashboard-api/internal/healthscore"
)

// ErrProducerClosed is returned when publishing after Close.
var ErrProducerClosed = errors.New("event producer is closed")

// ScoreComputedEvent is emitted after every successful health score
// computation so downstream consumers (alerting, warehousing) can react.
type ScoreComputedEvent struct {
	EventID    string            `json:"eventId"`
	AccountID  string            `json:"accountId,omitempty"`
	Score      int               `json:"score"`
	ScoreRange healthscore.Range `json:"scoreRange"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// Producer publishes score events.
type Producer interface {
	PublishScoreComputed(ctx context.Context, event ScoreComputedEvent) error
	Close() error
}

// Config holds Kafka producer configuration.
type Config struct {
	Brokers []string      `yaml:"brokers"`
	Topic   string        `yaml:"topic"`
	Timeout time.Duration `yaml:"timeout"`
}

type kafkaProducer struct {
	writer *kafka.Writer
	mu     sync.Mutex
	closed bool
}

// NewKafkaProducer creates a Kafka-backed producer.
func NewKafkaProducer(cfg Config) (Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "mentiq.healthscore.computed"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		Compression:  kafka.Gzip,
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: timeout,
	}

	return &kafkaProducer{writer: writer}, nil
}

func (p *kafkaProducer) PublishScoreComputed(ctx context.Context, event ScoreComputedEvent) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProducerClosed
	}
	p.mu.Unlock()

	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode score event: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AccountID),
		Value: value,
	})
}

func (p *kafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}
