package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/indexbasket/basketcore/internal/domain/basket"
	"github.com/indexbasket/basketcore/internal/domain/lifecycle"
)

type stubAdapter struct {
	name    string
	mu      sync.Mutex
	calls   int
	failN   int
	err     error
	healthy bool
	seen    []Notification
}

func newStubAdapter(name string) *stubAdapter {
	return &stubAdapter{name: name, healthy: true}
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Healthy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.healthy
}

func (a *stubAdapter) Deliver(_ context.Context, n Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.failN >= a.calls || a.err != nil {
		if a.err != nil {
			return a.err
		}
		return errors.New("transient failure")
	}
	a.seen = append(a.seen, n)
	return nil
}

func (a *stubAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *stubAdapter) delivered() []Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Notification(nil), a.seen...)
}

func adminSuspendEvent() lifecycle.TransitionEvent {
	return lifecycle.TransitionEvent{
		EventID:     "evt-1",
		BasketID:    "b-1",
		From:        basket.StatusActive,
		To:          basket.StatusSuspended,
		Trigger:     lifecycle.TriggerAdminSuspend,
		TriggeredBy: "root",
		Timestamp:   time.Now().UTC(),
		Version:     7,
	}
}

func testConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Workers:        2,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}

func TestRouteDeliversToSelectedChannel(t *testing.T) {
	direct := newStubAdapter("direct")
	reqresp := newStubAdapter("reqresp")
	r := New(testConfig(), map[Channel]Adapter{
		ChannelDirect:          direct,
		ChannelRequestResponse: reqresp,
	}, nil)
	defer r.Close()

	evt := adminSuspendEvent()
	r.Route(evt)

	waitFor(t, func() bool { return len(direct.delivered()) == 1 })
	n := direct.delivered()[0]
	if n.EventID != evt.EventID || n.ToState != basket.StatusSuspended || n.Version != 7 {
		t.Fatalf("notification fields wrong: %+v", n)
	}
	if n.Category != CategoryOperational {
		t.Fatalf("expected operational category, got %s", n.Category)
	}
	if reqresp.callCount() != 0 {
		t.Fatal("request/response adapter should not receive direct traffic")
	}
}

func TestRetryThenSuccess(t *testing.T) {
	direct := newStubAdapter("direct")
	direct.failN = 2
	r := New(testConfig(), map[Channel]Adapter{ChannelDirect: direct}, nil)
	defer r.Close()

	r.Route(adminSuspendEvent())

	waitFor(t, func() bool { return len(direct.delivered()) == 1 })
	if direct.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", direct.callCount())
	}
}

func TestExhaustedRetriesDeadLetter(t *testing.T) {
	direct := newStubAdapter("direct")
	direct.err = errors.New("permanently down")
	dead := NewMemoryDeadLetter(8)
	r := New(testConfig(), map[Channel]Adapter{ChannelDirect: direct}, dead)
	defer r.Close()

	r.Route(adminSuspendEvent())

	waitFor(t, func() bool { return dead.Len() == 1 })
	entry := dead.List()[0]
	if entry.Channel != ChannelDirect || entry.Attempts != 3 {
		t.Fatalf("dead letter entry wrong: %+v", entry)
	}
	if entry.LastError == "" {
		t.Fatal("dead letter must retain the last error")
	}
	if direct.callCount() != 3 {
		t.Fatalf("expected 3 attempts before dead-letter, got %d", direct.callCount())
	}
}

func TestUnhealthyChannelFallsBackToRequestResponse(t *testing.T) {
	direct := newStubAdapter("direct")
	direct.healthy = false
	reqresp := newStubAdapter("reqresp")
	r := New(testConfig(), map[Channel]Adapter{
		ChannelDirect:          direct,
		ChannelRequestResponse: reqresp,
	}, nil)
	defer r.Close()

	r.Route(adminSuspendEvent())

	waitFor(t, func() bool { return len(reqresp.delivered()) == 1 })
	if direct.callCount() != 0 {
		t.Fatal("unhealthy adapter must be skipped")
	}
}

func TestMissingAdapterDeadLetters(t *testing.T) {
	dead := NewMemoryDeadLetter(8)
	r := New(testConfig(), map[Channel]Adapter{}, dead)
	defer r.Close()

	r.Route(adminSuspendEvent())

	waitFor(t, func() bool { return dead.Len() == 1 })
}

func TestExplicitRouteOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Explicit = map[lifecycle.Trigger]Channel{
		lifecycle.TriggerAdminSuspend: ChannelStream,
	}
	stream := newStubAdapter("stream")
	direct := newStubAdapter("direct")
	r := New(cfg, map[Channel]Adapter{
		ChannelStream: stream,
		ChannelDirect: direct,
	}, nil)
	defer r.Close()

	r.Route(adminSuspendEvent())

	waitFor(t, func() bool { return len(stream.delivered()) == 1 })
	if direct.callCount() != 0 {
		t.Fatal("explicit mapping must bypass tier selection")
	}
}

func TestDeadLetterEvictsOldestAtCapacity(t *testing.T) {
	dead := NewMemoryDeadLetter(2)
	for i := 0; i < 3; i++ {
		n := Notification{EventID: string(rune('a' + i))}
		dead.Sink(n, ChannelDirect, 3, errors.New("down"))
	}
	entries := dead.List()
	if len(entries) != 2 {
		t.Fatalf("expected capacity 2, got %d", len(entries))
	}
	if entries[0].Notification.EventID != "b" || entries[1].Notification.EventID != "c" {
		t.Fatalf("oldest entry not evicted: %+v", entries)
	}
}
