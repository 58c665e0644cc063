package storage

import (
	"context"
	"time"

	"github.com/Toltar/energy-monitoring-app/pkg/model"
)

// MaxBatchSize is the per-request limit the usage store enforces on bulk
// writes. The bulk ingestor partitions its rows to this size.
const MaxBatchSize = 25

// UsageStore defines the persistence layer for energy usage records.
type UsageStore interface {
	// PutUsage writes one record. Writing an existing (userID, date) key
	// overwrites the previous record (last write wins).
	PutUsage(ctx context.Context, record *model.UsageRecord) error

	// BatchPutUsage writes up to MaxBatchSize records as one request.
	BatchPutUsage(ctx context.Context, records []*model.UsageRecord) error

	// QueryUsage returns a user's records with canonical dates inside
	// [from, to], ordered by date. Zero bounds are open-ended.
	QueryUsage(ctx context.Context, userID string, from, to time.Time) ([]model.UsageRecord, error)
}

// ThresholdStore defines persistence for per-user alert configuration.
type ThresholdStore interface {
	// GetThreshold returns the user's alert config, or (nil, nil) when the
	// user has no alert configured. Absence is not an error.
	GetThreshold(ctx context.Context, userID string) (*model.ThresholdAlertConfig, error)

	// SetThreshold creates or overwrites the user's alert config.
	SetThreshold(ctx context.Context, cfg *model.ThresholdAlertConfig) error
}

// ChangeFeed receives change events derived from usage-store writes, in the
// order the writes were applied.
type ChangeFeed interface {
	PublishChanges(ctx context.Context, events []model.ChangeEvent) error
}
