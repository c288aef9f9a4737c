package lifecycle

import (
	"fmt"

	"github.com/indexbasket/basketcore/errs"
	"github.com/indexbasket/basketcore/internal/domain/basket"
)

// GuardName identifies a registered guard predicate. Edges reference guards
// by name; evaluation is a table lookup, not reflection.
type GuardName string

const (
	// GuardNone passes unconditionally.
	GuardNone GuardName = ""
	// GuardBasketValid requires >=2 constituents with weights summing to 100.
	GuardBasketValid GuardName = "basketValid"
	// GuardBacktestValid requires backtest results without critical errors.
	GuardBacktestValid GuardName = "backtestValid"
	// GuardApproverAuth requires the approver role and segregation of duties.
	GuardApproverAuth GuardName = "approverAuth"
	// GuardOwnerAuth requires the basket creator or an admin.
	GuardOwnerAuth GuardName = "ownerAuth"
	// GuardAdminAuth requires the admin role.
	GuardAdminAuth GuardName = "adminAuth"
	// GuardRetryLimit requires the listing retry budget to be unspent.
	GuardRetryLimit GuardName = "retryLimit"
)

// DefaultMaxListingRetries bounds RETRY_LISTING attempts when the context
// does not configure a limit.
const DefaultMaxListingRetries = 3

// GuardContext carries the facts a guard may consult. Guards are pure:
// they read the context and never touch I/O or mutate state.
type GuardContext struct {
	Requester         basket.Identity
	Snapshot          *basket.Snapshot
	MaxListingRetries int
}

// GuardFunc is a pure predicate; a nil return means the guard passed.
type GuardFunc func(GuardContext) error

var guardRegistry = map[GuardName]GuardFunc{
	GuardBasketValid:   guardBasketValid,
	GuardBacktestValid: guardBacktestValid,
	GuardApproverAuth:  guardApproverAuth,
	GuardOwnerAuth:     guardOwnerAuth,
	GuardAdminAuth:     guardAdminAuth,
	GuardRetryLimit:    guardRetryLimit,
}

// EvaluateGuard runs the named guard against the context. Unknown names fail
// closed.
func EvaluateGuard(name GuardName, ctx GuardContext) error {
	if name == GuardNone {
		return nil
	}
	fn, ok := guardRegistry[name]
	if !ok {
		return errs.New("lifecycle/guard", errs.CodeGuardRejected,
			errs.WithGuard(string(name)), errs.WithMessage("unknown guard"))
	}
	return fn(ctx)
}

// AllOf composes guards into a single conjunctive predicate, evaluated in
// order with the first failure reported.
func AllOf(names ...GuardName) GuardFunc {
	return func(ctx GuardContext) error {
		for _, name := range names {
			if err := EvaluateGuard(name, ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func rejected(name GuardName, reason string) error {
	return errs.New("lifecycle/guard", errs.CodeGuardRejected,
		errs.WithGuard(string(name)), errs.WithMessage(reason))
}

func guardBasketValid(ctx GuardContext) error {
	if ctx.Snapshot == nil {
		return rejected(GuardBasketValid, "basket snapshot unavailable")
	}
	def := ctx.Snapshot.Definition
	if len(def.Constituents) < basket.MinConstituents {
		return rejected(GuardBasketValid,
			fmt.Sprintf("basket needs at least %d constituents, has %d", basket.MinConstituents, len(def.Constituents)))
	}
	if !def.WeightsBalanced() {
		return rejected(GuardBasketValid,
			"constituent weights sum to "+def.WeightSum().StringFixed(4)+", expected 100.00 within 0.05")
	}
	return nil
}

func guardBacktestValid(ctx GuardContext) error {
	if ctx.Snapshot == nil || ctx.Snapshot.Backtest == nil {
		return rejected(GuardBacktestValid, "no backtest results on record")
	}
	if !ctx.Snapshot.Backtest.Valid() {
		return rejected(GuardBacktestValid,
			fmt.Sprintf("backtest has %d critical errors", len(ctx.Snapshot.Backtest.CriticalErrors)))
	}
	return nil
}

func guardApproverAuth(ctx GuardContext) error {
	if !ctx.Requester.HasRole(basket.RoleApprover) {
		return rejected(GuardApproverAuth, "requester lacks approver role")
	}
	if ctx.Snapshot != nil && ctx.Requester.Is(ctx.Snapshot.CreatedBy) {
		return rejected(GuardApproverAuth, "approver must differ from basket creator")
	}
	return nil
}

func guardOwnerAuth(ctx GuardContext) error {
	if ctx.Requester.HasRole(basket.RoleAdmin) {
		return nil
	}
	if ctx.Snapshot != nil && ctx.Requester.Is(ctx.Snapshot.CreatedBy) {
		return nil
	}
	return rejected(GuardOwnerAuth, "requester is neither basket creator nor admin")
}

func guardAdminAuth(ctx GuardContext) error {
	if !ctx.Requester.HasRole(basket.RoleAdmin) {
		return rejected(GuardAdminAuth, "requester lacks admin role")
	}
	return nil
}

// Retry attempts are budgeted against committed LISTING_FAILED transitions;
// a rejected retry attempt does not consume budget.
func guardRetryLimit(ctx GuardContext) error {
	limit := ctx.MaxListingRetries
	if limit <= 0 {
		limit = DefaultMaxListingRetries
	}
	if ctx.Snapshot == nil {
		return rejected(GuardRetryLimit, "basket snapshot unavailable")
	}
	if ctx.Snapshot.RetryCount >= limit {
		return rejected(GuardRetryLimit,
			fmt.Sprintf("listing retried %d times, limit %d", ctx.Snapshot.RetryCount, limit))
	}
	return nil
}
