package router

import (
	"testing"

	"github.com/indexbasket/basketcore/internal/domain/lifecycle"
)

func TestSelectChannelPriorityRules(t *testing.T) {
	cases := []struct {
		name    string
		profile Profile
		want    Channel
	}{
		{"real-time wins", Profile{Latency: LatencyRealTime, Consistency: ConsistencyEventual, Frequency: FrequencyUltraHigh}, ChannelDirect},
		{"low latency routes rpc", Profile{Latency: LatencyLow, Consistency: ConsistencyEventual}, ChannelRPC},
		{"high frequency routes rpc", Profile{Latency: LatencyMedium, Consistency: ConsistencyStrong, Frequency: FrequencyHigh}, ChannelRPC},
		{"ultra-high frequency routes rpc", Profile{Latency: LatencyHigh, Consistency: ConsistencyStrong, Frequency: FrequencyUltraHigh}, ChannelRPC},
		{"eventual consistency routes stream", Profile{Latency: LatencyMedium, Consistency: ConsistencyEventual, Frequency: FrequencyMedium}, ChannelStream},
		{"one-time routes reqresp", Profile{Latency: LatencyHigh, Consistency: ConsistencyStrong, Frequency: FrequencyOneTime}, ChannelRequestResponse},
		{"external routes reqresp", Profile{Latency: LatencyHigh, Consistency: ConsistencyStrong, Frequency: FrequencyMedium, External: true}, ChannelRequestResponse},
		{"default reqresp", Profile{Latency: LatencyHigh, Consistency: ConsistencyStrong, Frequency: FrequencyMedium}, ChannelRequestResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SelectChannel(lifecycle.TriggerModify, tc.profile, nil)
			if got != tc.want {
				t.Fatalf("SelectChannel(%+v) = %s, want %s", tc.profile, got, tc.want)
			}
		})
	}
}

func TestExplicitMappingOverridesProfile(t *testing.T) {
	explicit := map[lifecycle.Trigger]Channel{
		lifecycle.TriggerAdminSuspend: ChannelStream,
	}
	got := SelectChannel(lifecycle.TriggerAdminSuspend, ProfileFor(lifecycle.TriggerAdminSuspend), explicit)
	if got != ChannelStream {
		t.Fatalf("explicit mapping ignored: %s", got)
	}

	// Triggers without an explicit entry still follow the rules.
	got = SelectChannel(lifecycle.TriggerAdminResume, ProfileFor(lifecycle.TriggerAdminResume), explicit)
	if got != ChannelDirect {
		t.Fatalf("expected direct for real-time admin op, got %s", got)
	}
}

func TestDefaultProfileChannels(t *testing.T) {
	cases := []struct {
		trigger lifecycle.Trigger
		want    Channel
	}{
		{lifecycle.TriggerCreateBasket, ChannelRequestResponse},
		{lifecycle.TriggerModify, ChannelRequestResponse},
		{lifecycle.TriggerBacktestComplete, ChannelStream},
		{lifecycle.TriggerApprove, ChannelStream},
		{lifecycle.TriggerStartListing, ChannelRPC},
		{lifecycle.TriggerListingFailed, ChannelRPC},
		{lifecycle.TriggerAdminSuspend, ChannelDirect},
		{lifecycle.TriggerAdminDelist, ChannelDirect},
	}
	for _, tc := range cases {
		got := SelectChannel(tc.trigger, ProfileFor(tc.trigger), nil)
		if got != tc.want {
			t.Errorf("%s routed to %s, want %s", tc.trigger, got, tc.want)
		}
	}
}

func TestUnknownTriggerGetsFallbackProfile(t *testing.T) {
	p := ProfileFor(lifecycle.Trigger("UNKNOWN"))
	if p.Category != CategorySystem {
		t.Fatalf("expected system category, got %s", p.Category)
	}
	if got := SelectChannel(lifecycle.Trigger("UNKNOWN"), p, nil); got != ChannelRequestResponse {
		t.Fatalf("fallback should route reqresp, got %s", got)
	}
}
