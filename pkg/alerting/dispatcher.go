package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Toltar/energy-monitoring-app/pkg/model"
)

// Dispatcher publishes alert notifications to the shared topic. Delivery is
// at-least-once; a redelivered change batch can publish a duplicate
// notification for the same breach.
type Dispatcher interface {
	Publish(ctx context.Context, notification *model.AlertNotification) error
}

// MessageWriter is the subset of kafka.Writer the dispatcher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewAlertsWriter builds a kafka writer for the alerts topic.
func NewAlertsWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// KafkaDispatcher publishes notifications to a kafka topic with structured
// headers for downstream email delivery filters.
type KafkaDispatcher struct {
	writer MessageWriter
	logger *slog.Logger
}

// NewKafkaDispatcher creates a dispatcher on top of the given writer.
func NewKafkaDispatcher(writer MessageWriter, logger *slog.Logger) *KafkaDispatcher {
	return &KafkaDispatcher{writer: writer, logger: logger}
}

func (d *KafkaDispatcher) Publish(ctx context.Context, n *model.AlertNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal alert notification: %w", err)
	}

	subject := fmt.Sprintf("Energy usage alert: %.2f kWh exceeded your %.2f kWh threshold", n.Usage, n.Threshold)
	msg := kafka.Message{
		Key:   []byte(n.UserID),
		Value: body,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "subject", Value: []byte(subject)},
			{Key: "email", Value: []byte(n.Email)},
			{Key: "userId", Value: []byte(n.UserID)},
			{Key: "usage", Value: []byte(strconv.FormatFloat(n.Usage, 'f', -1, 64))},
			{Key: "threshold", Value: []byte(strconv.FormatFloat(n.Threshold, 'f', -1, 64))},
		},
	}

	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish alert notification: %w", err)
	}
	return nil
}

// Close releases the underlying writer.
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
