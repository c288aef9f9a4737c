package coordinator

import (
	"context"

	"github.com/indexbasket/basketcore/internal/domain/basket"
	"github.com/indexbasket/basketcore/internal/domain/lifecycle"
)

// Hooks are the side-effect integrations a deployment plugs in. Each hook is
// optional; a nil hook means the corresponding completion arrives as an
// external command instead.
type Hooks struct {
	// StartBacktest runs a backtest for the snapshot. A non-nil report
	// submits BACKTEST_COMPLETED; a nil report with nil error leaves
	// completion to an external reporter; an error submits BACKTEST_FAILED.
	StartBacktest func(ctx context.Context, snap *basket.Snapshot) (*basket.BacktestReport, error)
	// PublishListing publishes the basket to the listing venue. nil error
	// submits LISTING_COMPLETED, an error submits LISTING_FAILED.
	PublishListing func(ctx context.Context, snap *basket.Snapshot) error
}

// dispatchAction schedules the committed edge's side effect on the executor
// pool. Actions run outside the mailbox goroutine so chained commands can
// re-enter the same mailbox without deadlock. A saturated pool drops the
// action with a log line; the committed event is already durable and the
// operation can be re-driven externally.
func (c *Coordinator) dispatchAction(action lifecycle.Action, evt lifecycle.TransitionEvent, snap *basket.Snapshot) {
	if action == lifecycle.ActionNone {
		return
	}
	task := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.ActionTimeout)
		defer cancel()
		c.runAction(ctx, action, evt, snap)
		return nil
	}
	if err := c.actions.Submit(c.ctx, task); err != nil {
		c.logger.Printf("action %s dropped basket=%s event=%s err=%v", action, evt.BasketID, evt.EventID, err)
	}
}

func (c *Coordinator) runAction(ctx context.Context, action lifecycle.Action, evt lifecycle.TransitionEvent, snap *basket.Snapshot) {
	switch action {
	case lifecycle.ActionStartBacktest:
		if c.hooks.StartBacktest == nil {
			return
		}
		report, err := c.hooks.StartBacktest(ctx, snap)
		if err != nil {
			c.chain(ctx, evt, lifecycle.TriggerBacktestFailed, &basket.BacktestReport{
				CompletedAt:    evt.Timestamp,
				CriticalErrors: []string{err.Error()},
			})
			return
		}
		if report != nil {
			c.chain(ctx, evt, lifecycle.TriggerBacktestComplete, report)
		}
	case lifecycle.ActionAutoList:
		c.chain(ctx, evt, lifecycle.TriggerStartListing, nil)
	case lifecycle.ActionPublishListing:
		if c.hooks.PublishListing == nil {
			return
		}
		if err := c.hooks.PublishListing(ctx, snap); err != nil {
			c.chainWithReason(ctx, evt, lifecycle.TriggerListingFailed, err.Error())
			return
		}
		c.chain(ctx, evt, lifecycle.TriggerListingComplete, nil)
	case lifecycle.ActionAutoActivate:
		c.chain(ctx, evt, lifecycle.TriggerActivate, nil)
	}
}

// chain submits a follow-up command under the system identity, carrying the
// triggering event id for traceability.
func (c *Coordinator) chain(ctx context.Context, evt lifecycle.TransitionEvent, trigger lifecycle.Trigger, report *basket.BacktestReport) {
	cmd := Command{
		Operation:     trigger,
		BasketID:      evt.BasketID,
		Requester:     basket.SystemIdentity(),
		CorrelationID: evt.EventID,
		Backtest:      report,
	}
	if _, err := c.Submit(ctx, cmd); err != nil {
		c.logger.Printf("chained %s failed basket=%s cause=%s err=%v", trigger, evt.BasketID, evt.EventID, err)
	}
}

func (c *Coordinator) chainWithReason(ctx context.Context, evt lifecycle.TransitionEvent, trigger lifecycle.Trigger, reason string) {
	cmd := Command{
		Operation:     trigger,
		BasketID:      evt.BasketID,
		Requester:     basket.SystemIdentity(),
		CorrelationID: evt.EventID,
		Reason:        reason,
	}
	if _, err := c.Submit(ctx, cmd); err != nil {
		c.logger.Printf("chained %s failed basket=%s cause=%s err=%v", trigger, evt.BasketID, evt.EventID, err)
	}
}
