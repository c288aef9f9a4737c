package lifecycle

import (
	"time"

	"github.com/indexbasket/basketcore/internal/domain/basket"
)

// TransitionEvent is the immutable record of one accepted state change.
// Ordering key is (BasketID, Version); the full history of a basket replays
// deterministically through Apply.
type TransitionEvent struct {
	EventID     string            `json:"event_id"`
	BasketID    string            `json:"basket_id"`
	From        basket.Status     `json:"from_state"`
	To          basket.Status     `json:"to_state"`
	Trigger     Trigger           `json:"trigger_event"`
	TriggeredBy string            `json:"triggered_by"`
	Timestamp   time.Time         `json:"timestamp"`
	Version     int64             `json:"version"`
	Reason      string            `json:"reason,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	// Payloads carried by specific triggers; nil otherwise.
	Definition *basket.Definition     `json:"definition,omitempty"`
	Backtest   *basket.BacktestReport `json:"backtest,omitempty"`
}

// Apply folds a committed transition event into a snapshot and returns the
// updated snapshot. A nil snapshot is only legal for CREATE_BASKET events.
// Apply is pure over its inputs: replaying the same events from version 0
// always reproduces the same snapshot.
func Apply(snap *basket.Snapshot, evt TransitionEvent) *basket.Snapshot {
	if snap == nil {
		snap = &basket.Snapshot{
			ID:        evt.BasketID,
			CreatedBy: evt.TriggeredBy,
			Status:    StatusNone,
		}
	} else {
		snap = snap.Clone()
	}

	snap.PreviousStatus = snap.Status
	snap.Status = evt.To
	snap.Version = evt.Version
	snap.TransitionCount++
	snap.LastTransitionAt = evt.Timestamp

	switch evt.Trigger {
	case TriggerCreateBasket:
		if evt.Definition != nil {
			snap.Definition = *evt.Definition
		}
	case TriggerModify:
		if evt.Definition != nil {
			snap.Definition = *evt.Definition
		}
		// Returning to DRAFT invalidates prior results and approvals.
		snap.Backtest = nil
		snap.ApprovedBy = ""
		snap.ApprovedAt = nil
	case TriggerWithdraw:
		snap.ApprovedBy = ""
		snap.ApprovedAt = nil
	case TriggerBacktestComplete, TriggerBacktestFailed:
		if evt.Backtest != nil {
			snap.Backtest = evt.Backtest
		} else {
			snap.Backtest = &basket.BacktestReport{CompletedAt: evt.Timestamp}
		}
	case TriggerApprove:
		snap.ApprovedBy = evt.TriggeredBy
		ts := evt.Timestamp
		snap.ApprovedAt = &ts
	case TriggerListingFailed:
		// The only place the retry budget is spent; rejected retry
		// attempts never reach Apply.
		snap.RetryCount++
	case TriggerListingComplete:
		ts := evt.Timestamp
		snap.ListedAt = &ts
	case TriggerActivate:
		ts := evt.Timestamp
		snap.ActivatedAt = &ts
	}

	return snap
}

// Replay folds a sequence of events, ordered by version, into a snapshot.
func Replay(snap *basket.Snapshot, events []TransitionEvent) *basket.Snapshot {
	for _, evt := range events {
		snap = Apply(snap, evt)
	}
	return snap
}
