// Package ingest writes energy usage readings into the usage store, either
// one validated reading at a time or in bulk from uploaded CSV objects.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Toltar/energy-monitoring-app/pkg/dateinput"
	"github.com/Toltar/energy-monitoring-app/pkg/model"
	"github.com/Toltar/energy-monitoring-app/pkg/storage"
)

// ErrUnauthenticated is returned when no authenticated user accompanies a
// reading.
var ErrUnauthenticated = errors.New("missing authenticated user")

// ValidationError reports a malformed reading submission. It terminates the
// one request without side effects and is safe to show to the caller.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ReadingInput is the body of a manual reading submission. Pointer fields
// distinguish absent values from zero values.
type ReadingInput struct {
	Date  *string  `json:"date"`
	Usage *float64 `json:"usage"`
}

// SingleIngestor validates and stores one manual reading at a time.
type SingleIngestor struct {
	store  storage.UsageStore
	logger *slog.Logger
}

// NewSingleIngestor creates a single-reading ingestor.
func NewSingleIngestor(store storage.UsageStore, logger *slog.Logger) *SingleIngestor {
	return &SingleIngestor{store: store, logger: logger}
}

// Ingest validates one reading and writes it as one record. Validation runs
// in a fixed order and the first failure wins: body present, caller
// authenticated, fields present, usage finite and non-negative, date valid.
func (s *SingleIngestor) Ingest(ctx context.Context, userID string, in *ReadingInput) (*model.UsageRecord, error) {
	if in == nil {
		return nil, &ValidationError{Reason: "missing request body"}
	}
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if in.Date == nil || in.Usage == nil {
		return nil, &ValidationError{Reason: "date and usage are required"}
	}
	usage := *in.Usage
	if math.IsNaN(usage) || math.IsInf(usage, 0) {
		return nil, &ValidationError{Reason: "usage must be a finite number"}
	}
	if usage < 0 {
		return nil, &ValidationError{Reason: "usage must not be negative"}
	}
	date, err := dateinput.CanonicalDateString(*in.Date)
	if err != nil {
		return nil, &ValidationError{Reason: "date must be a valid YYYY-MM-DD date"}
	}

	record := &model.UsageRecord{
		UserID:    userID,
		Date:      date,
		Usage:     usage,
		Timestamp: time.Now().UTC(),
	}
	if err := s.store.PutUsage(ctx, record); err != nil {
		return nil, fmt.Errorf("store usage reading: %w", err)
	}

	s.logger.Info("usage reading recorded",
		"userId", userID,
		"date", record.Date,
		"usage", record.Usage,
	)
	return record, nil
}
