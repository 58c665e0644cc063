package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/Toltar/energy-monitoring-app/pkg/dateinput"
	"github.com/Toltar/energy-monitoring-app/pkg/model"
	"github.com/Toltar/energy-monitoring-app/pkg/objectstore"
	"github.com/Toltar/energy-monitoring-app/pkg/storage"
)

// CSV header names are a fixed external contract with the upload format.
const (
	columnDate  = "Date"
	columnUsage = "Usage(kWh)"
)

// ObjectRef points at one uploaded object. Keys may arrive URI-encoded from
// upload notifications.
type ObjectRef struct {
	Bucket string
	Key    string
}

// BulkIngestor parses uploaded CSV objects and writes the valid rows in
// bounded batches. Malformed rows are dropped best-effort; objects missing
// their required context are skipped whole; a failed batch write is fatal for
// its object.
type BulkIngestor struct {
	objects objectstore.ObjectStore
	store   storage.UsageStore
	logger  *slog.Logger
}

// NewBulkIngestor creates a bulk CSV ingestor.
func NewBulkIngestor(objects objectstore.ObjectStore, store storage.UsageStore, logger *slog.Logger) *BulkIngestor {
	return &BulkIngestor{objects: objects, store: store, logger: logger}
}

// ProcessObjects handles one invocation's worth of uploaded objects,
// sequentially. A failure on one object does not prevent attempting the
// next; the joined error is returned only after every object was attempted,
// so the caller can trigger redelivery of the whole invocation.
func (b *BulkIngestor) ProcessObjects(ctx context.Context, refs []ObjectRef) error {
	var errs []error
	for _, ref := range refs {
		if err := b.processObject(ctx, ref); err != nil {
			b.logger.Error("failed to process uploaded object",
				"bucket", ref.Bucket,
				"key", ref.Key,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("object %s/%s: %w", ref.Bucket, ref.Key, err))
		}
	}
	return errors.Join(errs...)
}

func (b *BulkIngestor) processObject(ctx context.Context, ref ObjectRef) error {
	key, err := url.QueryUnescape(ref.Key)
	if err != nil {
		return fmt.Errorf("decode object key: %w", err)
	}

	obj, err := b.objects.GetObject(ctx, ref.Bucket, key)
	if err != nil {
		return fmt.Errorf("get object: %w", err)
	}

	// Missing context means the object can never be attributed to a user:
	// log and drop the whole object without raising.
	if len(obj.Metadata) == 0 {
		b.logger.Error("skipping object: no metadata found", "key", key)
		return nil
	}
	userID := obj.Metadata[objectstore.MetadataUserID]
	if userID == "" {
		b.logger.Error("skipping object: no user ID in metadata", "key", key)
		return nil
	}
	if len(obj.Body) == 0 {
		b.logger.Error("skipping object: empty body", "key", key)
		return nil
	}

	records, err := b.parseRows(userID, obj.Body)
	if err != nil {
		return err
	}

	b.logger.Info("writing valid rows in batches",
		"key", key,
		"userId", userID,
		"rows", len(records),
	)
	for start := 0; start < len(records); start += storage.MaxBatchSize {
		end := min(start+storage.MaxBatchSize, len(records))
		if err := b.store.BatchPutUsage(ctx, records[start:end]); err != nil {
			return fmt.Errorf("write batch starting at row %d: %w", start, err)
		}
	}

	b.logger.Info("processed uploaded object", "key", key, "userId", userID, "rows", len(records))
	return nil
}

// parseRows decodes header-row CSV and keeps only rows whose usage parses to
// a finite number and whose date is a valid calendar date. Everything else is
// dropped silently, preserving original row order for the survivors.
func (b *BulkIngestor) parseRows(userID string, body []byte) ([]*model.UsageRecord, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	dateIdx, usageIdx := -1, -1
	for i, name := range rows[0] {
		switch name {
		case columnDate:
			dateIdx = i
		case columnUsage:
			usageIdx = i
		}
	}
	if dateIdx < 0 || usageIdx < 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	var records []*model.UsageRecord
	for _, row := range rows[1:] {
		if dateIdx >= len(row) || usageIdx >= len(row) {
			continue
		}
		usage, err := dateinput.ParseUsage(row[usageIdx])
		if err != nil {
			continue
		}
		date, err := dateinput.CanonicalDateString(row[dateIdx])
		if err != nil {
			continue
		}
		records = append(records, &model.UsageRecord{
			UserID:    userID,
			Date:      date,
			Usage:     usage,
			Timestamp: now,
		})
	}
	return records, nil
}
