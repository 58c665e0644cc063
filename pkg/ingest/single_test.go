package ingest_test

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Toltar/energy-monitoring-app/pkg/ingest"
	"github.com/Toltar/energy-monitoring-app/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func strptr(s string) *string   { return &s }
func f64ptr(v float64) *float64 { return &v }

func TestSingleIngestor_Success(t *testing.T) {
	store := newTestStore(t)
	ing := ingest.NewSingleIngestor(store, testLogger())
	ctx := context.Background()

	record, err := ing.Ingest(ctx, "user-1", &ingest.ReadingInput{
		Date:  strptr("2024-01-13"),
		Usage: f64ptr(25.5),
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-13T00:00:00Z", record.Date)
	assert.Equal(t, 25.5, record.Usage)
	assert.False(t, record.Timestamp.IsZero())

	stored, err := store.QueryUsage(ctx, "user-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, record.Date, stored[0].Date)
}

func TestSingleIngestor_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ing := ingest.NewSingleIngestor(store, testLogger())
	ctx := context.Background()

	in := &ingest.ReadingInput{Date: strptr("2024-01-13"), Usage: f64ptr(25.5)}
	_, err := ing.Ingest(ctx, "user-1", in)
	require.NoError(t, err)
	_, err = ing.Ingest(ctx, "user-1", in)
	require.NoError(t, err)

	stored, err := store.QueryUsage(ctx, "user-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestSingleIngestor_ValidationOrder(t *testing.T) {
	store := newTestStore(t)
	ing := ingest.NewSingleIngestor(store, testLogger())
	ctx := context.Background()

	// Body check runs before the auth check.
	_, err := ing.Ingest(ctx, "", nil)
	var vErr *ingest.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "missing request body", vErr.Reason)

	_, err = ing.Ingest(ctx, "", &ingest.ReadingInput{})
	assert.ErrorIs(t, err, ingest.ErrUnauthenticated)
}

func TestSingleIngestor_InvalidInput(t *testing.T) {
	store := newTestStore(t)
	ing := ingest.NewSingleIngestor(store, testLogger())
	ctx := context.Background()

	tests := []struct {
		name string
		in   *ingest.ReadingInput
	}{
		{"missing date", &ingest.ReadingInput{Usage: f64ptr(10)}},
		{"missing usage", &ingest.ReadingInput{Date: strptr("2024-01-13")}},
		{"nan usage", &ingest.ReadingInput{Date: strptr("2024-01-13"), Usage: f64ptr(math.NaN())}},
		{"infinite usage", &ingest.ReadingInput{Date: strptr("2024-01-13"), Usage: f64ptr(math.Inf(1))}},
		{"negative usage", &ingest.ReadingInput{Date: strptr("2024-01-13"), Usage: f64ptr(-1)}},
		{"bad date", &ingest.ReadingInput{Date: strptr("13/01/2024"), Usage: f64ptr(10)}},
		{"impossible date", &ingest.ReadingInput{Date: strptr("2024-02-30"), Usage: f64ptr(10)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ing.Ingest(ctx, "user-1", tt.in)
			var vErr *ingest.ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}

	// Nothing was written by any of the rejected submissions.
	stored, err := store.QueryUsage(ctx, "user-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSingleIngestor_ZeroUsageAllowed(t *testing.T) {
	store := newTestStore(t)
	ing := ingest.NewSingleIngestor(store, testLogger())

	record, err := ing.Ingest(context.Background(), "user-1", &ingest.ReadingInput{
		Date:  strptr("2024-01-13"),
		Usage: f64ptr(0),
	})
	require.NoError(t, err)
	assert.Zero(t, record.Usage)
}
