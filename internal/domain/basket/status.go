// Package basket defines the basket domain model shared across the
// orchestration core: lifecycle status, snapshots, constituents, and the
// identities that act on them.
package basket

// Status enumerates the basket lifecycle states.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusBacktesting     Status = "BACKTESTING"
	StatusBacktested      Status = "BACKTESTED"
	StatusBacktestFailed  Status = "BACKTEST_FAILED"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusListing         Status = "LISTING"
	StatusListed          Status = "LISTED"
	StatusListingFailed   Status = "LISTING_FAILED"
	StatusActive          Status = "ACTIVE"
	StatusSuspended       Status = "SUSPENDED"
	StatusDelisted        Status = "DELISTED"
	StatusDeleted         Status = "DELETED"
)

// Statuses lists every lifecycle state in declaration order.
func Statuses() []Status {
	return []Status{
		StatusDraft,
		StatusBacktesting,
		StatusBacktested,
		StatusBacktestFailed,
		StatusPendingApproval,
		StatusApproved,
		StatusRejected,
		StatusListing,
		StatusListed,
		StatusListingFailed,
		StatusActive,
		StatusSuspended,
		StatusDelisted,
		StatusDeleted,
	}
}

// Terminal reports whether the status accepts no further commands.
func (s Status) Terminal() bool {
	return s == StatusDeleted || s == StatusDelisted
}

// Editable reports whether the basket definition may still be modified.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusBacktestFailed || s == StatusRejected
}

// Operational reports whether the basket is live on a venue.
func (s Status) Operational() bool {
	return s == StatusActive || s == StatusSuspended
}

// Known reports whether the value names a defined lifecycle state.
func (s Status) Known() bool {
	switch s {
	case StatusDraft, StatusBacktesting, StatusBacktested, StatusBacktestFailed,
		StatusPendingApproval, StatusApproved, StatusRejected,
		StatusListing, StatusListed, StatusListingFailed,
		StatusActive, StatusSuspended, StatusDelisted, StatusDeleted:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }
