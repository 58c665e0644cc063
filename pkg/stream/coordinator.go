// Package stream reacts to batches of usage change events: it fans each
// batch out to the alert evaluator and carries the change feed over kafka.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Toltar/energy-monitoring-app/pkg/alerting"
	"github.com/Toltar/energy-monitoring-app/pkg/model"
)

// Coordinator processes change-feed batches. Every record in a batch is
// evaluated concurrently and independently; the coordinator waits for all of
// them to settle and only then decides the batch's fate.
type Coordinator struct {
	evaluator *alerting.Evaluator
	logger    *slog.Logger
}

// NewCoordinator creates a stream reaction coordinator.
func NewCoordinator(evaluator *alerting.Evaluator, logger *slog.Logger) *Coordinator {
	return &Coordinator{evaluator: evaluator, logger: logger}
}

// ProcessBatch fans the batch out to the evaluator, one goroutine per event,
// and aggregates the settled outcomes. Skips are absorbed; failed outcomes
// are joined into one aggregate error so the caller can redeliver the whole
// batch. A panic while evaluating one event settles as that event's failure
// and cannot cancel its siblings.
func (c *Coordinator) ProcessBatch(ctx context.Context, events []model.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	outcomes := make([]alerting.Outcome, len(events))
	var wg sync.WaitGroup
	for i, event := range events {
		wg.Add(1)
		go func(i int, event model.ChangeEvent) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = alerting.Failed(fmt.Errorf("panic evaluating change event: %v", r))
				}
			}()
			outcomes[i] = c.evaluator.Evaluate(ctx, event)
		}(i, event)
	}
	wg.Wait()

	var notified, skipped int
	var errs []error
	for _, outcome := range outcomes {
		switch outcome.Kind {
		case alerting.OutcomeNotified:
			notified++
		case alerting.OutcomeSkipped:
			skipped++
		case alerting.OutcomeFailed:
			errs = append(errs, outcome.Err)
		}
	}

	c.logger.Info("processed change batch",
		"events", len(events),
		"notified", notified,
		"skipped", skipped,
		"failed", len(errs),
	)

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d change events failed: %w", len(errs), len(events), errors.Join(errs...))
	}
	return nil
}
