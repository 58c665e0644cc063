package stream_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Toltar/energy-monitoring-app/pkg/alerting"
	"github.com/Toltar/energy-monitoring-app/pkg/model"
	"github.com/Toltar/energy-monitoring-app/pkg/storage"
	"github.com/Toltar/energy-monitoring-app/pkg/stream"
)

type captureWriter struct {
	messages []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

// queueReader feeds a fixed set of messages, then blocks until the context
// is cancelled.
type queueReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (r *queueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *queueReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *queueReader) Close() error { return nil }

func (r *queueReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func (r *queueReader) queuedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func TestKafkaChangeFeed_PublishChanges(t *testing.T) {
	writer := &captureWriter{}
	feed := stream.NewKafkaChangeFeed(writer)

	events := []model.ChangeEvent{
		insertEvent("user-1", 10),
		insertEvent("user-2", 20),
	}
	require.NoError(t, feed.PublishChanges(context.Background(), events))

	require.Len(t, writer.messages, 2)
	assert.Equal(t, []byte("user-1"), writer.messages[0].Key)
	assert.Equal(t, []byte("user-2"), writer.messages[1].Key)

	var decoded model.ChangeEvent
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &decoded))
	assert.Equal(t, model.EventInsert, decoded.Kind)

	rec, err := model.UsageRecordFromPayload(decoded.NewImage)
	require.NoError(t, err)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, 10.0, rec.Usage)
}

func TestKafkaChangeFeed_EmptyBatch(t *testing.T) {
	writer := &captureWriter{}
	feed := stream.NewKafkaChangeFeed(writer)

	require.NoError(t, feed.PublishChanges(context.Background(), nil))
	assert.Empty(t, writer.messages)
}

func TestFeedConsumer_ProcessesAndCommitsBatch(t *testing.T) {
	dispatcher := &syncDispatcher{}
	db, coordinator := newCoordinatorFixture(t, dispatcher)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, db.SetThreshold(ctx, &model.ThresholdAlertConfig{
		UserID: "user-1", Email: "user@example.com", Threshold: 50,
	}))

	reader := &queueReader{}
	for _, event := range []model.ChangeEvent{
		insertEvent("user-1", 100),
		{Kind: model.EventInsert, NewImage: map[string]any{"garbage": true}},
	} {
		value, err := json.Marshal(event)
		require.NoError(t, err)
		reader.queue = append(reader.queue, kafka.Message{Value: value})
	}
	// An undecodable entry is dropped without sinking the batch.
	reader.queue = append(reader.queue, kafka.Message{Value: []byte("{not json")})

	consumer := stream.NewFeedConsumer(reader, coordinator, 10, 50*time.Millisecond, testLogger())

	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool {
		return reader.committedCount() == 3
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	published := dispatcher.all()
	require.Len(t, published, 1)
	assert.Equal(t, "user-1", published[0].UserID)
}

func TestFeedConsumer_FailedBatchStopsWithoutCommit(t *testing.T) {
	dispatcher := &captureDispatcher{err: errors.New("topic unavailable")}
	db, coordinator := newCoordinatorFixture(t, dispatcher)
	ctx := context.Background()

	require.NoError(t, db.SetThreshold(ctx, &model.ThresholdAlertConfig{
		UserID: "user-1", Email: "user@example.com", Threshold: 50,
	}))

	reader := &queueReader{}
	for offset, event := range []model.ChangeEvent{
		insertEvent("user-1", 100),
		insertEvent("user-1", 120),
	} {
		value, err := json.Marshal(event)
		require.NoError(t, err)
		reader.queue = append(reader.queue, kafka.Message{Offset: int64(offset), Value: value})
	}

	// batchSize 1 so the failing event is a whole batch. Consuming past it
	// would let the next commit bury its offset, so Run must stop instead.
	consumer := stream.NewFeedConsumer(reader, coordinator, 1, 50*time.Millisecond, testLogger())

	err := consumer.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "process change batch")

	assert.Equal(t, 0, reader.committedCount())
	assert.Equal(t, 1, reader.queuedCount())
}

func TestFeedConsumer_StopsOnCancel(t *testing.T) {
	_, coordinator := newCoordinatorFixture(t, &syncDispatcher{})
	consumer := stream.NewFeedConsumer(&queueReader{}, coordinator, 10, 50*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop on cancel")
	}
}

var _ storage.ChangeFeed = (*stream.KafkaChangeFeed)(nil)
var _ alerting.Dispatcher = (*syncDispatcher)(nil)
