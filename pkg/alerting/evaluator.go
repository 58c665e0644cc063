package alerting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Toltar/energy-monitoring-app/pkg/model"
	"github.com/Toltar/energy-monitoring-app/pkg/storage"
)

// Evaluator decides, for one change event at a time, whether the new usage
// state breaches the owning user's threshold and dispatches a notification
// when it does.
type Evaluator struct {
	thresholds storage.ThresholdStore
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewEvaluator creates an alert evaluator.
func NewEvaluator(thresholds storage.ThresholdStore, dispatcher Dispatcher, logger *slog.Logger) *Evaluator {
	return &Evaluator{thresholds: thresholds, dispatcher: dispatcher, logger: logger}
}

// Evaluate processes one change event to an explicit outcome. Malformed
// events resolve to skips, never failures, so one bad record cannot poison a
// batch; only collaborator errors (threshold lookup, publish) produce a
// failed outcome.
func (e *Evaluator) Evaluate(ctx context.Context, event model.ChangeEvent) Outcome {
	if event.NewImage == nil {
		return Skipped("event carries no new usage state")
	}

	record, err := model.UsageRecordFromPayload(event.NewImage)
	if err != nil {
		e.logger.Error("malformed usage payload in change event", "eventKind", event.Kind, "error", err)
		return Skipped("malformed usage payload")
	}

	cfg, err := e.thresholds.GetThreshold(ctx, record.UserID)
	if err != nil {
		e.logger.Error("threshold lookup failed", "userId", record.UserID, "error", err)
		return Failed(fmt.Errorf("look up threshold for user %s: %w", record.UserID, err))
	}
	if cfg == nil {
		e.logger.Info("no alert threshold configured", "userId", record.UserID)
		return Skipped("no threshold configured")
	}

	// Strictly greater than: usage equal to the threshold does not alert.
	if record.Usage <= cfg.Threshold {
		return Skipped("usage within threshold")
	}

	notification := &model.AlertNotification{
		UserID:    record.UserID,
		Date:      record.Date,
		Email:     cfg.Email,
		Threshold: cfg.Threshold,
		Usage:     record.Usage,
	}
	if err := e.dispatcher.Publish(ctx, notification); err != nil {
		e.logger.Error("publish alert notification failed", "userId", record.UserID, "error", err)
		return Failed(fmt.Errorf("publish notification for user %s: %w", record.UserID, err))
	}

	e.logger.Info("threshold breach notification published",
		"userId", record.UserID,
		"date", record.Date,
		"usage", record.Usage,
		"threshold", cfg.Threshold,
		"email", model.RedactEmail(cfg.Email),
	)
	return Notified(notification)
}
