// Package router decides how a committed basket transition is propagated to
// downstream systems. It derives an event category and delivery requirements
// for each trigger, selects a delivery channel, and dispatches to protocol
// adapters off the commit path with bounded retry and a dead-letter fallback.
package router

import (
	"github.com/indexbasket/basketcore/internal/domain/lifecycle"
)

// Category classifies transition events for routing and downstream filtering.
type Category string

const (
	CategoryLifecycle   Category = "lifecycle"
	CategoryOperational Category = "operational"
	CategoryPerformance Category = "performance"
	CategoryBusiness    Category = "business"
	CategorySystem      Category = "system"
)

// Latency expresses how quickly downstream consumers need the event.
type Latency string

const (
	// LatencyRealTime targets sub-millisecond delivery.
	LatencyRealTime Latency = "real-time"
	// LatencyLow targets sub-10ms delivery.
	LatencyLow Latency = "low"
	// LatencyMedium targets sub-100ms delivery.
	LatencyMedium Latency = "medium"
	// LatencyHigh tolerates 100ms or more.
	LatencyHigh Latency = "high"
)

// Consistency expresses the delivery-ordering contract consumers expect.
type Consistency string

const (
	ConsistencyStrong   Consistency = "strong"
	ConsistencyEventual Consistency = "eventual"
)

// Frequency expresses how often events of a type are expected to occur.
type Frequency string

const (
	FrequencyOneTime   Frequency = "one-time"
	FrequencyLow       Frequency = "low"
	FrequencyMedium    Frequency = "medium"
	FrequencyHigh      Frequency = "high"
	FrequencyUltraHigh Frequency = "ultra-high"
)

// Channel names a delivery tier served by a protocol adapter.
type Channel string

const (
	// ChannelDirect is the lowest-latency in-process path.
	ChannelDirect Channel = "direct"
	// ChannelRPC is the low-latency point-to-point path.
	ChannelRPC Channel = "rpc"
	// ChannelStream is the asynchronous event-stream path.
	ChannelStream Channel = "stream"
	// ChannelRequestResponse is the externally-facing request/response path.
	ChannelRequestResponse Channel = "reqresp"
)

// Profile declares the delivery requirements of one trigger event type.
type Profile struct {
	Category    Category
	Latency     Latency
	Consistency Consistency
	Frequency   Frequency
	External    bool
}

// defaultProfiles mirrors the per-operation recommendation table of the
// routing layer: user-facing CRUD rides request/response, workflow events
// ride the stream, internal listing machinery rides RPC, and risk controls
// take the direct path.
var defaultProfiles = map[lifecycle.Trigger]Profile{
	lifecycle.TriggerCreateBasket: {Category: CategoryLifecycle, Latency: LatencyHigh, Consistency: ConsistencyStrong, Frequency: FrequencyOneTime, External: true},
	lifecycle.TriggerModify:       {Category: CategoryOperational, Latency: LatencyHigh, Consistency: ConsistencyStrong, Frequency: FrequencyLow, External: true},
	lifecycle.TriggerDelete:       {Category: CategoryLifecycle, Latency: LatencyHigh, Consistency: ConsistencyStrong, Frequency: FrequencyOneTime, External: true},

	lifecycle.TriggerBacktest:         {Category: CategoryBusiness, Latency: LatencyMedium, Consistency: ConsistencyEventual, Frequency: FrequencyMedium},
	lifecycle.TriggerBacktestComplete: {Category: CategoryBusiness, Latency: LatencyMedium, Consistency: ConsistencyEventual, Frequency: FrequencyMedium},
	lifecycle.TriggerBacktestFailed:   {Category: CategoryBusiness, Latency: LatencyMedium, Consistency: ConsistencyEventual, Frequency: FrequencyMedium},

	lifecycle.TriggerSubmit:   {Category: CategoryLifecycle, Latency: LatencyMedium, Consistency: ConsistencyEventual, Frequency: FrequencyLow},
	lifecycle.TriggerApprove:  {Category: CategoryLifecycle, Latency: LatencyMedium, Consistency: ConsistencyEventual, Frequency: FrequencyLow},
	lifecycle.TriggerReject:   {Category: CategoryLifecycle, Latency: LatencyMedium, Consistency: ConsistencyEventual, Frequency: FrequencyLow},
	lifecycle.TriggerWithdraw: {Category: CategoryLifecycle, Latency: LatencyMedium, Consistency: ConsistencyEventual, Frequency: FrequencyLow},

	lifecycle.TriggerStartListing:    {Category: CategoryLifecycle, Latency: LatencyLow, Consistency: ConsistencyStrong, Frequency: FrequencyHigh},
	lifecycle.TriggerListingComplete: {Category: CategoryLifecycle, Latency: LatencyLow, Consistency: ConsistencyStrong, Frequency: FrequencyHigh},
	lifecycle.TriggerListingFailed:   {Category: CategoryLifecycle, Latency: LatencyLow, Consistency: ConsistencyStrong, Frequency: FrequencyHigh},
	lifecycle.TriggerRetryListing:    {Category: CategoryOperational, Latency: LatencyLow, Consistency: ConsistencyStrong, Frequency: FrequencyHigh},
	lifecycle.TriggerActivate:        {Category: CategoryLifecycle, Latency: LatencyLow, Consistency: ConsistencyStrong, Frequency: FrequencyHigh},

	lifecycle.TriggerAdminSuspend: {Category: CategoryOperational, Latency: LatencyRealTime, Consistency: ConsistencyStrong, Frequency: FrequencyLow},
	lifecycle.TriggerAdminResume:  {Category: CategoryOperational, Latency: LatencyRealTime, Consistency: ConsistencyStrong, Frequency: FrequencyLow},
	lifecycle.TriggerAdminDelist:  {Category: CategoryOperational, Latency: LatencyRealTime, Consistency: ConsistencyStrong, Frequency: FrequencyLow},
}

// fallbackProfile covers triggers without a declared profile.
var fallbackProfile = Profile{
	Category:    CategorySystem,
	Latency:     LatencyHigh,
	Consistency: ConsistencyStrong,
	Frequency:   FrequencyLow,
	External:    true,
}

// ProfileFor resolves the delivery profile of a trigger.
func ProfileFor(trigger lifecycle.Trigger) Profile {
	if p, ok := defaultProfiles[trigger]; ok {
		return p
	}
	return fallbackProfile
}

// SelectChannel applies the tier-selection rules in priority order. The
// explicit per-trigger mapping, when present, always wins.
func SelectChannel(trigger lifecycle.Trigger, p Profile, explicit map[lifecycle.Trigger]Channel) Channel {
	if ch, ok := explicit[trigger]; ok {
		return ch
	}
	if p.Latency == LatencyRealTime {
		return ChannelDirect
	}
	if p.Latency == LatencyLow || p.Frequency == FrequencyHigh || p.Frequency == FrequencyUltraHigh {
		return ChannelRPC
	}
	if p.Consistency == ConsistencyEventual {
		return ChannelStream
	}
	if p.Frequency == FrequencyOneTime || p.Frequency == FrequencyLow || p.External {
		return ChannelRequestResponse
	}
	return ChannelRequestResponse
}
