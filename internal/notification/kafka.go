package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaNotifier writes alerts to a topic keyed by instrument, so one
// instrument's alerts stay ordered within a partition.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier creates a synchronous writer for topic.
func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaNotifier{writer: w}, nil
}

func (k *KafkaNotifier) Name() string { return "kafka" }

// message builds the record for alert.
func (k *KafkaNotifier) message(alert Alert) (kafka.Message, error) {
	v, err := json.Marshal(alert)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: marshal: %w", err)
	}
	return kafka.Message{
		Key:   []byte(alert.Instrument.Key()),
		Value: v,
		Time:  alert.TS,
		Headers: []kafka.Header{
			{Key: "alert-id", Value: []byte(alert.ID)},
			{Key: "level", Value: []byte(alert.Level)},
		},
	}, nil
}

func (k *KafkaNotifier) Send(ctx context.Context, alert Alert) error {
	msg, err := k.message(alert)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
