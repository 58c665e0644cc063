// Package alerting evaluates change-feed events against per-user thresholds
// and dispatches notifications for breaches.
package alerting

import "github.com/Toltar/energy-monitoring-app/pkg/model"

// OutcomeKind classifies the result of evaluating one change event.
type OutcomeKind string

const (
	// OutcomeNotified means a threshold breach notification was published.
	OutcomeNotified OutcomeKind = "notified"
	// OutcomeSkipped means the event required no notification: no new
	// state, malformed payload, no threshold configured, or usage within
	// the threshold.
	OutcomeSkipped OutcomeKind = "skipped"
	// OutcomeFailed means a collaborator failed mid-evaluation; the event
	// should be redelivered.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the explicit result of evaluating one change event. The stream
// coordinator aggregates these instead of catching errors.
type Outcome struct {
	Kind         OutcomeKind
	Reason       string
	Err          error
	Notification *model.AlertNotification
}

// Notified builds a success outcome carrying the published notification.
func Notified(n *model.AlertNotification) Outcome {
	return Outcome{Kind: OutcomeNotified, Notification: n}
}

// Skipped builds a no-op outcome with a human-readable reason.
func Skipped(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}

// Failed builds a failure outcome wrapping the collaborator error.
func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}
