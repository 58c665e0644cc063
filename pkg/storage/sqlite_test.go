package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Toltar/energy-monitoring-app/pkg/model"
	"github.com/Toltar/energy-monitoring-app/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *storage.SQLite {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func usageRecord(userID, date string, usage float64) *model.UsageRecord {
	return &model.UsageRecord{
		UserID:    userID,
		Date:      date,
		Usage:     usage,
		Timestamp: time.Now().UTC(),
	}
}

type recordingFeed struct {
	events []model.ChangeEvent
}

func (f *recordingFeed) PublishChanges(_ context.Context, events []model.ChangeEvent) error {
	f.events = append(f.events, events...)
	return nil
}

func TestSQLite_PutUsage_LastWriteWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.PutUsage(ctx, usageRecord("user-1", "2024-01-01T00:00:00Z", 10)))
	require.NoError(t, db.PutUsage(ctx, usageRecord("user-1", "2024-01-01T00:00:00Z", 20)))

	records, err := db.QueryUsage(ctx, "user-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 20.0, records[0].Usage)
}

func TestSQLite_QueryUsage_DateRange(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, date := range []string{"2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z", "2024-02-01T00:00:00Z"} {
		require.NoError(t, db.PutUsage(ctx, usageRecord("user-1", date, 5)))
	}
	require.NoError(t, db.PutUsage(ctx, usageRecord("user-2", "2024-01-01T00:00:00Z", 5)))

	all, err := db.QueryUsage(ctx, "user-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	january, err := db.QueryUsage(ctx, "user-1",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	require.Len(t, january, 2)
	assert.Equal(t, "2024-01-01T00:00:00Z", january[0].Date)
	assert.Equal(t, "2024-01-02T00:00:00Z", january[1].Date)
}

func TestSQLite_BatchPutUsage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var batch []*model.UsageRecord
	for day := 1; day <= 25; day++ {
		date := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
		batch = append(batch, usageRecord("user-1", date, float64(day)))
	}
	require.NoError(t, db.BatchPutUsage(ctx, batch))

	records, err := db.QueryUsage(ctx, "user-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, records, 25)
}

func TestSQLite_BatchPutUsage_OverLimit(t *testing.T) {
	db := newTestDB(t)

	var batch []*model.UsageRecord
	for day := 1; day <= 26; day++ {
		date := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
		batch = append(batch, usageRecord("user-1", date, 1))
	}

	err := db.BatchPutUsage(context.Background(), batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestSQLite_BatchPutUsage_Empty(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.BatchPutUsage(context.Background(), nil))
}

func TestSQLite_ChangeFeed_InsertThenModify(t *testing.T) {
	db := newTestDB(t)
	feed := &recordingFeed{}
	db.AttachChangeFeed(feed, nil)
	ctx := context.Background()

	require.NoError(t, db.PutUsage(ctx, usageRecord("user-1", "2024-01-01T00:00:00Z", 10)))
	require.NoError(t, db.PutUsage(ctx, usageRecord("user-1", "2024-01-01T00:00:00Z", 12)))

	require.Len(t, feed.events, 2)
	assert.Equal(t, model.EventInsert, feed.events[0].Kind)
	assert.Equal(t, model.EventModify, feed.events[1].Kind)

	rec, err := model.UsageRecordFromPayload(feed.events[1].NewImage)
	require.NoError(t, err)
	assert.Equal(t, 12.0, rec.Usage)
}

func TestSQLite_ChangeFeed_PutAfterBatchIsModify(t *testing.T) {
	db := newTestDB(t)
	feed := &recordingFeed{}
	db.AttachChangeFeed(feed, nil)
	ctx := context.Background()

	require.NoError(t, db.BatchPutUsage(ctx, []*model.UsageRecord{
		usageRecord("user-1", "2024-01-01T00:00:00Z", 10),
	}))
	require.NoError(t, db.PutUsage(ctx, usageRecord("user-1", "2024-01-01T00:00:00Z", 12)))
	require.NoError(t, db.PutUsage(ctx, usageRecord("user-2", "2024-01-01T00:00:00Z", 5)))

	require.Len(t, feed.events, 3)
	assert.Equal(t, model.EventInsert, feed.events[0].Kind)
	assert.Equal(t, model.EventModify, feed.events[1].Kind)
	assert.Equal(t, model.EventInsert, feed.events[2].Kind)
}

func TestSQLite_ChangeFeed_BatchOrder(t *testing.T) {
	db := newTestDB(t)
	feed := &recordingFeed{}
	db.AttachChangeFeed(feed, nil)

	batch := []*model.UsageRecord{
		usageRecord("user-1", "2024-01-01T00:00:00Z", 1),
		usageRecord("user-1", "2024-01-02T00:00:00Z", 2),
		usageRecord("user-1", "2024-01-03T00:00:00Z", 3),
	}
	require.NoError(t, db.BatchPutUsage(context.Background(), batch))

	require.Len(t, feed.events, 3)
	for i, ev := range feed.events {
		assert.Equal(t, model.EventInsert, ev.Kind)
		rec, err := model.UsageRecordFromPayload(ev.NewImage)
		require.NoError(t, err)
		assert.Equal(t, batch[i].Date, rec.Date)
	}
}

func TestSQLite_GetThreshold_Absent(t *testing.T) {
	db := newTestDB(t)

	cfg, err := db.GetThreshold(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestSQLite_SetThreshold_Overwrite(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SetThreshold(ctx, &model.ThresholdAlertConfig{
		UserID: "user-1", Email: "first@example.com", Threshold: 50,
	}))
	require.NoError(t, db.SetThreshold(ctx, &model.ThresholdAlertConfig{
		UserID: "user-1", Email: "second@example.com", Threshold: 75,
	}))

	cfg, err := db.GetThreshold(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "second@example.com", cfg.Email)
	assert.Equal(t, 75.0, cfg.Threshold)
}
