package events

import (
	"context"
	"errors"
	"testing"
)

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaProducer(Config{}); err == nil {
		t.Fatal("expected error when no brokers are configured")
	}
}

func TestPublishAfterClose(t *testing.T) {
	producer, err := NewKafkaProducer(Config{Brokers: []string{"localhost:9092"}})
	if err != nil {
		t.Fatalf("NewKafkaProducer failed: %v", err)
	}

	if err := producer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("second Close must be a no-op, got %v", err)
	}

	err = producer.PublishScoreComputed(context.Background(), ScoreComputedEvent{AccountID: "acct-1", Score: 50})
	if !errors.Is(err, ErrProducerClosed) {
		t.Fatalf("expected ErrProducerClosed, got %v", err)
	}
}
