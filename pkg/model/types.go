package model

import (
	"fmt"
	"math"
	"time"
)

// UsageRecord is a single energy usage reading for one user and one day.
// Identity is (UserID, Date); rewriting the same key overwrites the record.
type UsageRecord struct {
	UserID    string    `json:"userId" db:"user_id"`
	Date      string    `json:"date" db:"date"`
	Usage     float64   `json:"usage" db:"usage"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// ThresholdAlertConfig is a per-user alerting configuration. One per user,
// overwrite semantics.
type ThresholdAlertConfig struct {
	UserID    string  `json:"userId" db:"user_id"`
	Email     string  `json:"email" db:"email"`
	Threshold float64 `json:"threshold" db:"threshold"`
}

// EventKind classifies a change-feed event.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventModify EventKind = "MODIFY"
	EventRemove EventKind = "REMOVE"
)

// ChangeEvent is one entry in a change-feed batch derived from a write to the
// usage store. NewImage carries the post-write state of the record as a raw
// payload; it is nil for removals.
type ChangeEvent struct {
	Kind     EventKind      `json:"eventKind"`
	NewImage map[string]any `json:"newImage,omitempty"`
}

// AlertNotification is the message published when a reading exceeds the
// user's configured threshold. Constructed transiently, never stored.
type AlertNotification struct {
	UserID    string  `json:"userId"`
	Date      string  `json:"date"`
	Email     string  `json:"email"`
	Threshold float64 `json:"threshold"`
	Usage     float64 `json:"usage"`
}

// ShapeError reports a change-event payload that does not look like a
// UsageRecord.
type ShapeError struct {
	Field  string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("invalid usage payload: field %q %s", e.Field, e.Reason)
}

// UsageRecordFromPayload shape-checks a raw change-event payload into a
// UsageRecord. All four fields must be present and correctly typed; usage
// must additionally be finite. Numeric values arrive as float64 because
// payloads travel as JSON.
func UsageRecordFromPayload(payload map[string]any) (*UsageRecord, error) {
	if payload == nil {
		return nil, &ShapeError{Field: "newImage", Reason: "is missing"}
	}

	userID, err := stringField(payload, "userId")
	if err != nil {
		return nil, err
	}
	date, err := stringField(payload, "date")
	if err != nil {
		return nil, err
	}
	ts, err := stringField(payload, "timestamp")
	if err != nil {
		return nil, err
	}

	raw, ok := payload["usage"]
	if !ok {
		return nil, &ShapeError{Field: "usage", Reason: "is missing"}
	}
	usage, ok := raw.(float64)
	if !ok {
		return nil, &ShapeError{Field: "usage", Reason: "is not a number"}
	}
	if math.IsNaN(usage) || math.IsInf(usage, 0) {
		return nil, &ShapeError{Field: "usage", Reason: "is not finite"}
	}

	timestamp, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, &ShapeError{Field: "timestamp", Reason: "is not a valid instant"}
	}

	return &UsageRecord{
		UserID:    userID,
		Date:      date,
		Usage:     usage,
		Timestamp: timestamp,
	}, nil
}

func stringField(payload map[string]any, field string) (string, error) {
	raw, ok := payload[field]
	if !ok {
		return "", &ShapeError{Field: field, Reason: "is missing"}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &ShapeError{Field: field, Reason: "is not a string"}
	}
	if s == "" {
		return "", &ShapeError{Field: field, Reason: "is empty"}
	}
	return s, nil
}

// Payload converts a record back into the wire shape used by change events.
func (r *UsageRecord) Payload() map[string]any {
	return map[string]any{
		"userId":    r.UserID,
		"date":      r.Date,
		"usage":     r.Usage,
		"timestamp": r.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}
