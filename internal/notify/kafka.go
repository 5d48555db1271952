package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultTopic receives verdict messages.
const DefaultTopic = "migration-verdicts"

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes verdicts keyed by token.
type Kafka struct {
	writer messageWriter
}

// NewKafka creates a Kafka notifier writing to topic on brokers.
func NewKafka(brokers []string, topic string, logger *log.Logger) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	if logger != nil {
		w.ErrorLogger = kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Printf("[kafka] WARN: "+msg, args...)
		})
	}
	return &Kafka{writer: w}, nil
}

type kafkaPayload struct {
	Token  string `json:"token"`
	Pool   string `json:"pool,omitempty"`
	Status string `json:"status"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	SentAt int64  `json:"sent_at_ms"`
}

// Notify implements Notifier.
func (k *Kafka) Notify(ctx context.Context, msg Message) error {
	sentAt := msg.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	value, err := json.Marshal(kafkaPayload{
		Token:  msg.TokenID,
		Pool:   msg.Pool,
		Status: msg.Status,
		Title:  msg.Title,
		Body:   msg.Body,
		SentAt: sentAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal kafka payload: %w", err)
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.TokenID),
		Value: value,
		Time:  sentAt,
	}); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

var _ Notifier = (*Kafka)(nil)
