package lifecycle

import (
	"github.com/indexbasket/basketcore/errs"
	"github.com/indexbasket/basketcore/internal/domain/basket"
)

// StatusNone is the pseudo-state of a basket that does not exist yet; the
// only edge out of it is CREATE_BASKET.
const StatusNone basket.Status = ""

// Edge is one guarded transition in the lifecycle graph.
type Edge struct {
	From    basket.Status
	Trigger Trigger
	To      basket.Status
	Guard   GuardName
	Action  Action
}

type transitionKey struct {
	from    basket.Status
	trigger Trigger
}

// The lifecycle graph. Unknown (state, trigger) pairs are rejected, never
// silently ignored; terminal states have no outgoing edges.
var transitions = buildTable([]Edge{
	{From: StatusNone, Trigger: TriggerCreateBasket, To: basket.StatusDraft},

	{From: basket.StatusDraft, Trigger: TriggerModify, To: basket.StatusDraft},
	{From: basket.StatusDraft, Trigger: TriggerBacktest, To: basket.StatusBacktesting, Guard: GuardBasketValid, Action: ActionStartBacktest},
	{From: basket.StatusDraft, Trigger: TriggerDelete, To: basket.StatusDeleted},

	{From: basket.StatusBacktesting, Trigger: TriggerBacktestComplete, To: basket.StatusBacktested},
	{From: basket.StatusBacktesting, Trigger: TriggerBacktestFailed, To: basket.StatusBacktestFailed},

	{From: basket.StatusBacktestFailed, Trigger: TriggerModify, To: basket.StatusDraft},
	{From: basket.StatusBacktestFailed, Trigger: TriggerDelete, To: basket.StatusDeleted},

	{From: basket.StatusBacktested, Trigger: TriggerModify, To: basket.StatusDraft},
	{From: basket.StatusBacktested, Trigger: TriggerSubmit, To: basket.StatusPendingApproval, Guard: GuardBacktestValid},
	{From: basket.StatusBacktested, Trigger: TriggerDelete, To: basket.StatusDeleted},

	{From: basket.StatusPendingApproval, Trigger: TriggerApprove, To: basket.StatusApproved, Guard: GuardApproverAuth, Action: ActionAutoList},
	{From: basket.StatusPendingApproval, Trigger: TriggerReject, To: basket.StatusRejected, Guard: GuardApproverAuth},
	{From: basket.StatusPendingApproval, Trigger: TriggerWithdraw, To: basket.StatusDraft, Guard: GuardOwnerAuth},

	{From: basket.StatusRejected, Trigger: TriggerModify, To: basket.StatusDraft},
	{From: basket.StatusRejected, Trigger: TriggerDelete, To: basket.StatusDeleted},

	{From: basket.StatusApproved, Trigger: TriggerStartListing, To: basket.StatusListing, Action: ActionPublishListing},

	{From: basket.StatusListing, Trigger: TriggerListingComplete, To: basket.StatusListed, Action: ActionAutoActivate},
	{From: basket.StatusListing, Trigger: TriggerListingFailed, To: basket.StatusListingFailed},

	{From: basket.StatusListingFailed, Trigger: TriggerRetryListing, To: basket.StatusListing, Guard: GuardRetryLimit, Action: ActionPublishListing},
	{From: basket.StatusListingFailed, Trigger: TriggerAdminSuspend, To: basket.StatusSuspended},

	{From: basket.StatusListed, Trigger: TriggerActivate, To: basket.StatusActive},

	{From: basket.StatusActive, Trigger: TriggerAdminSuspend, To: basket.StatusSuspended, Guard: GuardAdminAuth},
	{From: basket.StatusActive, Trigger: TriggerAdminDelist, To: basket.StatusDelisted, Guard: GuardAdminAuth},

	{From: basket.StatusSuspended, Trigger: TriggerAdminResume, To: basket.StatusActive, Guard: GuardAdminAuth},
	{From: basket.StatusSuspended, Trigger: TriggerAdminDelist, To: basket.StatusDelisted, Guard: GuardAdminAuth},
})

func buildTable(edges []Edge) map[transitionKey]Edge {
	table := make(map[transitionKey]Edge, len(edges))
	for _, e := range edges {
		key := transitionKey{from: e.From, trigger: e.Trigger}
		if _, dup := table[key]; dup {
			panic("lifecycle: duplicate transition edge " + string(e.From) + "/" + string(e.Trigger))
		}
		table[key] = e
	}
	return table
}

// Lookup resolves the edge for a (state, trigger) pair. The second return is
// false when no edge is defined.
func Lookup(from basket.Status, trigger Trigger) (Edge, bool) {
	edge, ok := transitions[transitionKey{from: from, trigger: trigger}]
	return edge, ok
}

// Edges returns every defined transition, for table-driven tests and docs.
func Edges() []Edge {
	out := make([]Edge, 0, len(transitions))
	for _, e := range transitions {
		out = append(out, e)
	}
	return out
}

// Eval is the pure state-machine evaluation: it resolves the edge for the
// pair and evaluates its guard against ctx. On success it returns the edge;
// otherwise a structured invalid_transition or guard_rejected error.
func Eval(from basket.Status, trigger Trigger, ctx GuardContext) (Edge, error) {
	edge, ok := Lookup(from, trigger)
	if !ok {
		return Edge{}, errs.New("lifecycle/machine", errs.CodeInvalidTransition,
			errs.WithMessage("no transition from "+string(from)+" on "+string(trigger)))
	}
	if err := EvaluateGuard(edge.Guard, ctx); err != nil {
		return Edge{}, err
	}
	return edge, nil
}
