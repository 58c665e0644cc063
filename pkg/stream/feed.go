package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Toltar/energy-monitoring-app/pkg/model"
)

// MessageWriter is the subset of kafka.Writer the change feed needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewChangesWriter builds a kafka writer for the change feed topic. Hashing
// on the user key keeps one user's events in order within a partition.
func NewChangesWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// KafkaChangeFeed publishes usage-store change events to the feed topic. It
// implements storage.ChangeFeed.
type KafkaChangeFeed struct {
	writer MessageWriter
}

// NewKafkaChangeFeed creates a change feed on top of the given writer.
func NewKafkaChangeFeed(writer MessageWriter) *KafkaChangeFeed {
	return &KafkaChangeFeed{writer: writer}
}

func (f *KafkaChangeFeed) PublishChanges(ctx context.Context, events []model.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal change event: %w", err)
		}
		msg := kafka.Message{Value: value, Time: time.Now().UTC()}
		if userID, ok := event.NewImage["userId"].(string); ok {
			msg.Key = []byte(userID)
		}
		msgs = append(msgs, msg)
	}

	if err := f.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish change events: %w", err)
	}
	return nil
}

// Close releases the underlying writer.
func (f *KafkaChangeFeed) Close() error {
	return f.writer.Close()
}

// MessageReader is the subset of kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewFeedReader builds a kafka group reader for the change feed topic.
func NewFeedReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
}

// FeedConsumer drains the change feed in batches and hands each batch to the
// coordinator. Offsets are committed only after a batch succeeds: a failed
// batch stays uncommitted and is redelivered by the broker.
type FeedConsumer struct {
	reader      MessageReader
	coordinator *Coordinator
	batchSize   int
	batchWait   time.Duration
	logger      *slog.Logger
}

// NewFeedConsumer creates a change feed consumer. batchSize bounds how many
// events are fanned out at once; batchWait is how long to keep filling a
// batch after its first event arrives.
func NewFeedConsumer(reader MessageReader, coordinator *Coordinator, batchSize int, batchWait time.Duration, logger *slog.Logger) *FeedConsumer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if batchWait <= 0 {
		batchWait = 500 * time.Millisecond
	}
	return &FeedConsumer{
		reader:      reader,
		coordinator: coordinator,
		batchSize:   batchSize,
		batchWait:   batchWait,
		logger:      logger,
	}
}

// Run consumes until the context is cancelled.
func (c *FeedConsumer) Run(ctx context.Context) error {
	for {
		msgs, err := c.fetchBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch change batch: %w", err)
		}
		if len(msgs) == 0 {
			continue
		}

		events := make([]model.ChangeEvent, 0, len(msgs))
		for _, msg := range msgs {
			var event model.ChangeEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				// Undecodable feed entries are dropped like any other
				// malformed record.
				c.logger.Error("dropping undecodable change event", "offset", msg.Offset, "error", err)
				continue
			}
			events = append(events, event)
		}

		if err := c.coordinator.ProcessBatch(ctx, events); err != nil {
			// Stop without committing. Consuming past a failed batch would
			// bury its offsets under the next commit, so the batch is left
			// for redelivery when the consumer restarts.
			c.logger.Error("change batch failed, leaving offsets uncommitted", "events", len(events), "error", err)
			return fmt.Errorf("process change batch: %w", err)
		}

		if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("commit change batch: %w", err)
		}
	}
}

// fetchBatch blocks for the first message, then keeps filling the batch
// until it is full or batchWait elapses.
func (c *FeedConsumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	msgs := []kafka.Message{first}

	fillCtx, cancel := context.WithTimeout(ctx, c.batchWait)
	defer cancel()
	for len(msgs) < c.batchSize {
		msg, err := c.reader.FetchMessage(fillCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			if errors.Is(err, context.Canceled) && ctx.Err() == nil {
				break
			}
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Close releases the underlying reader.
func (c *FeedConsumer) Close() error {
	return c.reader.Close()
}
