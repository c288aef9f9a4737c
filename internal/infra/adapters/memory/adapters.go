// Package memory provides in-process notification adapters for the router's
// delivery tiers: a synchronous callback path, a rate-limited invoke path,
// and a buffered queue path. They serve tests and single-process
// deployments where downstream consumers live in the same binary.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/indexbasket/basketcore/errs"
	"github.com/indexbasket/basketcore/internal/app/router"
)

// Handler consumes a delivered notification.
type Handler func(ctx context.Context, n router.Notification) error

// CallbackAdapter delivers notifications by invoking registered handlers
// synchronously; it backs the direct (lowest-latency) tier.
type CallbackAdapter struct {
	name     string
	mu       sync.RWMutex
	handlers []Handler
	healthy  atomic.Bool
}

// NewCallbackAdapter constructs a direct-tier adapter.
func NewCallbackAdapter(name string) *CallbackAdapter {
	a := &CallbackAdapter{name: name}
	a.healthy.Store(true)
	return a
}

// Register adds a handler invoked on every delivery.
func (a *CallbackAdapter) Register(h Handler) {
	if h == nil {
		return
	}
	a.mu.Lock()
	a.handlers = append(a.handlers, h)
	a.mu.Unlock()
}

// SetHealthy toggles the adapter's reported health.
func (a *CallbackAdapter) SetHealthy(ok bool) { a.healthy.Store(ok) }

func (a *CallbackAdapter) Name() string  { return a.name }
func (a *CallbackAdapter) Healthy() bool { return a.healthy.Load() }

// Deliver invokes every handler; the first failure aborts and is returned.
func (a *CallbackAdapter) Deliver(ctx context.Context, n router.Notification) error {
	a.mu.RLock()
	handlers := append([]Handler(nil), a.handlers...)
	a.mu.RUnlock()
	for _, h := range handlers {
		if err := h(ctx, n); err != nil {
			return errs.New("adapter/"+a.name, errs.CodeRouting,
				errs.WithBasket(n.BasketID), errs.WithCause(err))
		}
	}
	return nil
}

// InvokeFunc is the point-to-point call an RPCAdapter wraps.
type InvokeFunc func(ctx context.Context, n router.Notification) error

// RPCAdapter wraps a point-to-point invoke with client-side rate limiting;
// it backs the RPC tier.
type RPCAdapter struct {
	name    string
	invoke  InvokeFunc
	limiter *rate.Limiter
	healthy atomic.Bool
}

// NewRPCAdapter constructs an RPC-tier adapter. A zero rps disables
// limiting.
func NewRPCAdapter(name string, invoke InvokeFunc, rps int) *RPCAdapter {
	a := &RPCAdapter{name: name, invoke: invoke}
	if rps > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	}
	a.healthy.Store(true)
	return a
}

// SetHealthy toggles the adapter's reported health.
func (a *RPCAdapter) SetHealthy(ok bool) { a.healthy.Store(ok) }

func (a *RPCAdapter) Name() string  { return a.name }
func (a *RPCAdapter) Healthy() bool { return a.healthy.Load() }

// Deliver waits for rate-limit headroom, then invokes the call.
func (a *RPCAdapter) Deliver(ctx context.Context, n router.Notification) error {
	if a.invoke == nil {
		return errs.New("adapter/"+a.name, errs.CodeRouting, errs.WithMessage("no invoke target"))
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return errs.New("adapter/"+a.name, errs.CodeRouting,
				errs.WithBasket(n.BasketID), errs.WithCause(err))
		}
	}
	if err := a.invoke(ctx, n); err != nil {
		return errs.New("adapter/"+a.name, errs.CodeRouting,
			errs.WithBasket(n.BasketID), errs.WithCause(err))
	}
	return nil
}

// QueueAdapter delivers into a bounded buffer consumed by downstream
// subscribers; it backs the event-stream tier. A full buffer fails the
// delivery so the router can retry or dead-letter.
type QueueAdapter struct {
	name    string
	ch      chan router.Notification
	healthy atomic.Bool
}

// NewQueueAdapter constructs a stream-tier adapter with the given buffer.
func NewQueueAdapter(name string, buffer int) *QueueAdapter {
	if buffer <= 0 {
		buffer = 64
	}
	a := &QueueAdapter{name: name, ch: make(chan router.Notification, buffer)}
	a.healthy.Store(true)
	return a
}

// Notifications exposes the consumer side of the queue.
func (a *QueueAdapter) Notifications() <-chan router.Notification { return a.ch }

// SetHealthy toggles the adapter's reported health.
func (a *QueueAdapter) SetHealthy(ok bool) { a.healthy.Store(ok) }

func (a *QueueAdapter) Name() string  { return a.name }
func (a *QueueAdapter) Healthy() bool { return a.healthy.Load() }

// Deliver enqueues without blocking; backpressure surfaces as an error.
func (a *QueueAdapter) Deliver(ctx context.Context, n router.Notification) error {
	select {
	case a.ch <- n:
		return nil
	case <-ctx.Done():
		return errs.New("adapter/"+a.name, errs.CodeRouting,
			errs.WithBasket(n.BasketID), errs.WithCause(ctx.Err()))
	default:
		return errs.New("adapter/"+a.name, errs.CodeRouting,
			errs.WithBasket(n.BasketID), errs.WithMessage("queue full"))
	}
}

var (
	_ router.Adapter = (*CallbackAdapter)(nil)
	_ router.Adapter = (*RPCAdapter)(nil)
	_ router.Adapter = (*QueueAdapter)(nil)
)
