package router

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	concpool "github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/indexbasket/basketcore/errs"
	"github.com/indexbasket/basketcore/internal/domain/lifecycle"
	"github.com/indexbasket/basketcore/internal/infra/telemetry"
)

// Config configures the communication router.
type Config struct {
	// Explicit pins a trigger event to a channel, overriding tier selection.
	Explicit map[lifecycle.Trigger]Channel
	// MaxAttempts bounds delivery attempts per notification.
	MaxAttempts int
	// InitialBackoff seeds the exponential retry delay.
	InitialBackoff time.Duration
	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
	// Workers bounds concurrent dispatches.
	Workers int
	// Logger receives routing diagnostics; nil gets a default.
	Logger *log.Logger
}

func (c Config) normalize() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 50 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Logger == nil {
		c.Logger = log.New(os.Stdout, "router ", log.LstdFlags|log.Lmicroseconds)
	}
	return c
}

// Router selects a delivery tier for committed transitions and dispatches to
// protocol adapters. Dispatch is decoupled from the commit path: failures
// are retried with backoff, then dead-lettered, and never surface to the
// command submitter.
type Router struct {
	cfg        Config
	adapters   map[Channel]Adapter
	deadletter DeadLetter
	logger     *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	pool   *concpool.Pool
	once   sync.Once

	dispatchCounter   metric.Int64Counter
	dispatchErrors    metric.Int64Counter
	deadletterCounter metric.Int64Counter
	dispatchDuration  metric.Float64Histogram
}

// New constructs a router over the given channel adapters. Channels without
// an adapter fall back to the request/response adapter.
func New(cfg Config, adapters map[Channel]Adapter, deadletter DeadLetter) *Router {
	cfg = cfg.normalize()
	ctx, cancel := context.WithCancel(context.Background())

	r := &Router{
		cfg:        cfg,
		adapters:   adapters,
		deadletter: deadletter,
		logger:     cfg.Logger,
		ctx:        ctx,
		cancel:     cancel,
		pool:       concpool.New().WithMaxGoroutines(cfg.Workers),
	}

	meter := otel.Meter("router")
	r.dispatchCounter, _ = meter.Int64Counter("router.dispatch.total",
		metric.WithDescription("Notifications dispatched by channel"),
		metric.WithUnit("{notification}"))
	r.dispatchErrors, _ = meter.Int64Counter("router.dispatch.errors",
		metric.WithDescription("Delivery attempts that failed"),
		metric.WithUnit("{error}"))
	r.deadletterCounter, _ = meter.Int64Counter("router.deadletter.total",
		metric.WithDescription("Notifications routed to the dead-letter sink"),
		metric.WithUnit("{notification}"))
	r.dispatchDuration, _ = meter.Float64Histogram("router.dispatch.duration",
		metric.WithDescription("End-to-end delivery latency including retries"),
		metric.WithUnit("ms"))

	return r
}

// Route accepts a committed transition and schedules its delivery. It never
// blocks on adapter I/O and never returns delivery errors; routing failures
// are absorbed and observable via metrics, logs, and the dead-letter sink.
func (r *Router) Route(evt lifecycle.TransitionEvent) {
	n := NotificationFrom(evt)
	channel := SelectChannel(evt.Trigger, ProfileFor(evt.Trigger), r.cfg.Explicit)
	r.pool.Go(func() {
		r.deliver(n, channel)
	})
}

// Close stops accepting work and waits for in-flight deliveries.
func (r *Router) Close() {
	r.once.Do(func() {
		r.pool.Wait()
		r.cancel()
	})
}

func (r *Router) deliver(n Notification, channel Channel) {
	start := time.Now()
	adapter := r.adapterFor(channel)
	if adapter == nil {
		r.sinkDead(n, channel, 0, errs.New("router/deliver", errs.CodeRouting,
			errs.WithBasket(n.BasketID), errs.WithMessage("no adapter for channel "+string(channel))))
		return
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.InitialBackoff
	bo.MaxInterval = r.cfg.MaxBackoff

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err := adapter.Deliver(r.ctx, n)
		if err == nil {
			if r.dispatchCounter != nil {
				attrs := telemetry.ResultAttributes("success")
				attrs = append(attrs,
					telemetry.AttrChannel.String(string(channel)),
					telemetry.AttrAdapter.String(adapter.Name()),
					telemetry.AttrCategory.String(string(n.Category)))
				r.dispatchCounter.Add(r.ctx, 1, metric.WithAttributes(attrs...))
			}
			if r.dispatchDuration != nil {
				r.dispatchDuration.Record(r.ctx, float64(time.Since(start).Milliseconds()),
					metric.WithAttributes(telemetry.AttrChannel.String(string(channel))))
			}
			return
		}
		lastErr = err
		if r.dispatchErrors != nil {
			attrs := telemetry.ResultAttributes("error")
			attrs = append(attrs,
				telemetry.AttrChannel.String(string(channel)),
				telemetry.AttrAdapter.String(adapter.Name()))
			r.dispatchErrors.Add(r.ctx, 1, metric.WithAttributes(attrs...))
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}
		sleep := bo.NextBackOff()
		if sleep == backoff.Stop {
			break
		}
		select {
		case <-r.ctx.Done():
			r.sinkDead(n, channel, attempt, lastErr)
			return
		case <-time.After(sleep):
		}
	}
	r.sinkDead(n, channel, r.cfg.MaxAttempts, lastErr)
}

// adapterFor resolves the adapter serving a channel, skipping unhealthy
// adapters in favor of the request/response fallback.
func (r *Router) adapterFor(channel Channel) Adapter {
	if a, ok := r.adapters[channel]; ok && a != nil && a.Healthy() {
		return a
	}
	if channel != ChannelRequestResponse {
		if a, ok := r.adapters[ChannelRequestResponse]; ok && a != nil && a.Healthy() {
			r.logger.Printf("channel %s unavailable, falling back to %s", channel, ChannelRequestResponse)
			return a
		}
	}
	return nil
}

func (r *Router) sinkDead(n Notification, channel Channel, attempts int, lastErr error) {
	r.logger.Printf("dead-letter: basket=%s event=%s channel=%s attempts=%d err=%v",
		n.BasketID, n.EventID, channel, attempts, lastErr)
	if r.deadletterCounter != nil {
		r.deadletterCounter.Add(r.ctx, 1, metric.WithAttributes(
			telemetry.AttrEnvironment.String(telemetry.Environment()),
			telemetry.AttrChannel.String(string(channel))))
	}
	if r.deadletter != nil {
		r.deadletter.Sink(n, channel, attempts, lastErr)
	}
}
