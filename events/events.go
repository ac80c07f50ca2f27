package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// TypeModelVersionRegistered is the event type emitted after a registration
const TypeModelVersionRegistered = "model_version.registered"

// ModelVersionRegistered announces a new immutable model version
type ModelVersionRegistered struct {
	Type         string    `json:"type"`
	Name         string    `json:"name"`
	Version      int       `json:"version"`
	RunID        string    `json:"runId"`
	Digest       string    `json:"digest"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Publisher delivers registry events
type Publisher interface {
	PublishModelVersion(ctx context.Context, ev ModelVersionRegistered) error
	Close() error
}

// messageWriter abstracts kafka.Writer for testability.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by model name, so all
// versions of one model land on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher; brokers may be comma-separated
func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	var addrs []string
	for _, a := range strings.Split(brokers, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

// NewKafkaPublisherWith is only for tests to inject a fake writer.
func NewKafkaPublisherWith(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (k *KafkaPublisher) PublishModelVersion(ctx context.Context, ev ModelVersionRegistered) error {
	ev.Type = TypeModelVersionRegistered
	b, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Name),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s v%d: %w", ev.Name, ev.Version, err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error { return k.writer.Close() }
