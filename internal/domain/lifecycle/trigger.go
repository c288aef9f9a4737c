// Package lifecycle implements the basket lifecycle state machine: trigger
// events, the guarded transition table, pure guard predicates, and the
// deterministic replay of committed transition events onto snapshots.
package lifecycle

// Trigger enumerates the commands that drive basket lifecycle transitions.
type Trigger string

const (
	TriggerCreateBasket     Trigger = "CREATE_BASKET"
	TriggerModify           Trigger = "MODIFY"
	TriggerBacktest         Trigger = "TRIGGER_BACKTEST"
	TriggerBacktestComplete Trigger = "BACKTEST_COMPLETED"
	TriggerBacktestFailed   Trigger = "BACKTEST_FAILED"
	TriggerSubmit           Trigger = "SUBMIT"
	TriggerApprove          Trigger = "APPROVE"
	TriggerReject           Trigger = "REJECT"
	TriggerWithdraw         Trigger = "WITHDRAW"
	TriggerDelete           Trigger = "DELETE"
	TriggerStartListing     Trigger = "START_LISTING"
	TriggerListingComplete  Trigger = "LISTING_COMPLETED"
	TriggerListingFailed    Trigger = "LISTING_FAILED"
	TriggerRetryListing     Trigger = "RETRY_LISTING"
	TriggerActivate         Trigger = "ACTIVATE"
	TriggerAdminSuspend     Trigger = "ADMIN_SUSPEND"
	TriggerAdminResume      Trigger = "ADMIN_RESUME"
	TriggerAdminDelist      Trigger = "ADMIN_DELIST"
)

func (t Trigger) String() string { return string(t) }

// Action identifies the side effect to execute after a transition commits.
// Actions run asynchronously and never roll back the committed transition.
type Action string

const (
	// ActionNone marks transitions without side effects.
	ActionNone Action = ""
	// ActionStartBacktest kicks off the backtest run for the basket.
	ActionStartBacktest Action = "start_backtest"
	// ActionAutoList submits the automatic START_LISTING follow-up command.
	ActionAutoList Action = "auto_list"
	// ActionPublishListing pushes the basket to external listing venues.
	ActionPublishListing Action = "publish_listing"
	// ActionAutoActivate submits the automatic ACTIVATE follow-up command.
	ActionAutoActivate Action = "auto_activate"
)
