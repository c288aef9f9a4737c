// Package coordinator owns the single-writer discipline for basket
// lifecycle commands: per-basket FIFO mailboxes, guard evaluation, the
// optimistic event-store commit, asynchronous side-effect actions, and the
// fire-and-forget handoff to the communication router.
package coordinator

import (
	"github.com/indexbasket/basketcore/errs"
	"github.com/indexbasket/basketcore/internal/domain/basket"
	"github.com/indexbasket/basketcore/internal/domain/lifecycle"
)

// Command is one lifecycle operation against a basket.
type Command struct {
	Operation     lifecycle.Trigger
	BasketID      string
	Requester     basket.Identity
	CorrelationID string
	Reason        string
	Metadata      map[string]string

	// Definition is required for CREATE_BASKET and MODIFY.
	Definition *basket.Definition
	// Backtest carries results for BACKTEST_COMPLETED / BACKTEST_FAILED.
	Backtest *basket.BacktestReport
}

func (c Command) validate() error {
	if c.Operation == "" {
		return errs.New("coordinator/command", errs.CodeInvalid, errs.WithMessage("operation required"))
	}
	if c.Requester.ID == "" {
		return errs.New("coordinator/command", errs.CodeInvalid, errs.WithMessage("requester identity required"))
	}
	if c.Operation == lifecycle.TriggerCreateBasket {
		if c.Definition == nil {
			return errs.New("coordinator/command", errs.CodeInvalid,
				errs.WithMessage("CREATE_BASKET requires a basket definition"))
		}
		return c.Definition.Validate()
	}
	// Every non-create operation addresses an existing basket.
	if c.BasketID == "" {
		return errs.New("coordinator/command", errs.CodeInvalid, errs.WithMessage("basket id required"))
	}
	if c.Operation == lifecycle.TriggerModify && c.Definition != nil {
		return c.Definition.Validate()
	}
	return nil
}

// Status reports whether a submission was applied.
type Status string

const (
	// StatusAccepted marks a committed transition.
	StatusAccepted Status = "ACCEPTED"
	// StatusRejected marks a refused command; no state changed.
	StatusRejected Status = "REJECTED"
)

// Response is the command API reply shape consumed by transport layers.
type Response struct {
	Status      Status           `json:"status"`
	BasketState *basket.Snapshot `json:"basket_state,omitempty"`
	ErrorCode   errs.Code        `json:"error_code,omitempty"`
	ErrorDetail string           `json:"error_detail,omitempty"`
}
