package coordinator

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/indexbasket/basketcore/errs"
	"github.com/indexbasket/basketcore/internal/domain/basket"
	"github.com/indexbasket/basketcore/internal/domain/eventstore"
	"github.com/indexbasket/basketcore/internal/domain/lifecycle"
	"github.com/indexbasket/basketcore/internal/infra/telemetry"
	"github.com/indexbasket/basketcore/lib/async"
)

// Notifier receives committed transitions for out-of-band delivery. The
// coordinator hands events off and never waits on delivery.
type Notifier interface {
	Route(evt lifecycle.TransitionEvent)
}

// Config configures the coordinator.
type Config struct {
	// MaxListingRetries bounds RETRY_LISTING attempts; zero means the
	// lifecycle default.
	MaxListingRetries int
	// SnapshotEvery persists a snapshot each time a basket's version crosses
	// a multiple of this value. Zero disables periodic snapshots.
	SnapshotEvery int64
	// MailboxBuffer is the queue depth of each per-basket mailbox.
	MailboxBuffer int
	// ActionWorkers and ActionQueue size the side-effect executor pool.
	ActionWorkers int
	ActionQueue   int
	// ActionTimeout bounds each side-effect execution.
	ActionTimeout time.Duration
	// Logger receives coordinator diagnostics; nil gets a default.
	Logger *log.Logger
}

func (c Config) normalize() Config {
	if c.SnapshotEvery < 0 {
		c.SnapshotEvery = 0
	}
	if c.MailboxBuffer <= 0 {
		c.MailboxBuffer = 16
	}
	if c.ActionWorkers <= 0 {
		c.ActionWorkers = 4
	}
	if c.ActionQueue <= 0 {
		c.ActionQueue = 64
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.New(os.Stdout, "coordinator ", log.LstdFlags|log.Lmicroseconds)
	}
	return c
}

// Coordinator is the single writer for basket lifecycle state. Every command
// for a basket flows through that basket's mailbox goroutine, which evaluates
// the transition, appends the event optimistically, folds it into the cached
// snapshot, and hands the committed event to the action executor and the
// notifier.
type Coordinator struct {
	cfg      Config
	store    eventstore.Store
	notifier Notifier
	hooks    Hooks
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	mailboxes map[string]*mailbox
	closed    bool
	wg        sync.WaitGroup

	actions *async.Pool

	commandCounter  metric.Int64Counter
	conflictCounter metric.Int64Counter
	commitDuration  metric.Float64Histogram
	mailboxGauge    metric.Int64UpDownCounter
}

// New constructs a coordinator over the given store. notifier may be nil for
// deployments without routing; hooks fields may be nil individually.
func New(store eventstore.Store, notifier Notifier, hooks Hooks, cfg Config) (*Coordinator, error) {
	if store == nil {
		return nil, errs.New("coordinator", errs.CodeInvalid, errs.WithMessage("event store required"))
	}
	cfg = cfg.normalize()
	pool, err := async.NewPool(cfg.ActionWorkers, cfg.ActionQueue)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:       cfg,
		store:     store,
		notifier:  notifier,
		hooks:     hooks,
		logger:    cfg.Logger,
		ctx:       ctx,
		cancel:    cancel,
		mailboxes: make(map[string]*mailbox),
		actions:   pool,
	}

	meter := otel.Meter("coordinator")
	c.commandCounter, _ = meter.Int64Counter("coordinator.commands.total",
		metric.WithDescription("Lifecycle commands by trigger and result"),
		metric.WithUnit("{command}"))
	c.conflictCounter, _ = meter.Int64Counter("coordinator.conflicts.total",
		metric.WithDescription("Optimistic append conflicts observed"),
		metric.WithUnit("{conflict}"))
	c.commitDuration, _ = meter.Float64Histogram("coordinator.commit.duration",
		metric.WithDescription("Command latency from mailbox pickup to reply"),
		metric.WithUnit("ms"))
	c.mailboxGauge, _ = meter.Int64UpDownCounter("coordinator.mailboxes.active",
		metric.WithDescription("Per-basket mailboxes currently running"),
		metric.WithUnit("{mailbox}"))

	return c, nil
}

// Submit runs one lifecycle command to completion and returns the resulting
// snapshot. Commands for the same basket are applied in submission order;
// commands for distinct baskets proceed independently. The caller's context
// bounds both the wait for a mailbox slot and the commit itself; an expired
// context surfaces as a timeout error.
func (c *Coordinator) Submit(ctx context.Context, cmd Command) (*basket.Snapshot, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	if cmd.Operation == lifecycle.TriggerCreateBasket && cmd.BasketID == "" {
		cmd.BasketID = uuid.NewString()
	}

	mb, err := c.mailboxFor(cmd.BasketID)
	if err != nil {
		return nil, err
	}

	env := envelope{ctx: ctx, cmd: cmd, reply: make(chan result, 1)}
	select {
	case mb.ch <- env:
	case <-ctx.Done():
		return nil, errs.New("coordinator", errs.CodeTimeout,
			errs.WithBasket(cmd.BasketID), errs.WithMessage("timed out waiting for mailbox slot"), errs.WithCause(ctx.Err()))
	case <-c.ctx.Done():
		return nil, errs.New("coordinator", errs.CodeUnavailable,
			errs.WithBasket(cmd.BasketID), errs.WithMessage("coordinator closed"))
	}

	select {
	case res := <-env.reply:
		return res.snapshot, res.err
	case <-ctx.Done():
		return nil, errs.New("coordinator", errs.CodeTimeout,
			errs.WithBasket(cmd.BasketID), errs.WithMessage("timed out awaiting command result"), errs.WithCause(ctx.Err()))
	case <-c.ctx.Done():
		return nil, errs.New("coordinator", errs.CodeUnavailable,
			errs.WithBasket(cmd.BasketID), errs.WithMessage("coordinator closed"))
	}
}

// Execute wraps Submit into the command API reply shape.
func (c *Coordinator) Execute(ctx context.Context, cmd Command) Response {
	snap, err := c.Submit(ctx, cmd)
	if err != nil {
		return Response{Status: StatusRejected, ErrorCode: errs.CodeOf(err), ErrorDetail: err.Error()}
	}
	return Response{Status: StatusAccepted, BasketState: snap}
}

// Get reconstructs the current snapshot of a basket from persistence without
// going through its mailbox. Not-found surfaces as errs.CodeNotFound.
func (c *Coordinator) Get(ctx context.Context, basketID string) (*basket.Snapshot, error) {
	snap, version, err := c.restore(ctx, basketID)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, errs.New("coordinator", errs.CodeNotFound,
			errs.WithBasket(basketID), errs.WithMessage("basket has no history"))
	}
	return snap, nil
}

// History returns a basket's full transition log in version order.
func (c *Coordinator) History(ctx context.Context, basketID string) ([]lifecycle.TransitionEvent, error) {
	events, err := c.store.Load(ctx, basketID, 0)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, errs.New("coordinator", errs.CodeNotFound,
			errs.WithBasket(basketID), errs.WithMessage("basket has no history"))
	}
	return events, nil
}

// Close stops accepting commands, waits for mailboxes to drain their current
// command, and shuts the action executor down within ctx.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
	return c.actions.Shutdown(ctx)
}

func (c *Coordinator) process(ctx context.Context, mb *mailbox, cmd Command) (*basket.Snapshot, error) {
	start := time.Now()
	if err := c.ensureLoaded(ctx, mb); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		from := lifecycle.StatusNone
		if mb.state != nil {
			from = mb.state.Status
		}
		edge, err := lifecycle.Eval(from, cmd.Operation, lifecycle.GuardContext{
			Requester:         cmd.Requester,
			Snapshot:          mb.state,
			MaxListingRetries: c.cfg.MaxListingRetries,
		})
		if err != nil {
			c.observe(cmd, "rejected", err)
			return nil, err
		}

		evt := lifecycle.TransitionEvent{
			EventID:     uuid.NewString(),
			BasketID:    cmd.BasketID,
			From:        from,
			To:          edge.To,
			Trigger:     cmd.Operation,
			TriggeredBy: cmd.Requester.ID,
			Timestamp:   time.Now().UTC(),
			Version:     mb.version + 1,
			Reason:      cmd.Reason,
			Metadata:    eventMetadata(cmd),
			Definition:  cmd.Definition,
			Backtest:    cmd.Backtest,
		}

		err = c.store.Append(ctx, evt, mb.version)
		if err == nil {
			mb.state = lifecycle.Apply(mb.state, evt)
			mb.version = evt.Version
			c.maybeSnapshot(mb)
			c.dispatchAction(edge.Action, evt, mb.state.Clone())
			if c.notifier != nil {
				c.notifier.Route(evt)
			}
			c.observeCommit(evt, start)
			return mb.state.Clone(), nil
		}

		if errs.CodeOf(err) == errs.CodeConflict {
			// Another writer advanced the log, which only happens after a
			// crash-recovery race or an out-of-band append. Reload once and
			// re-evaluate against the fresh state.
			lastErr = err
			if c.conflictCounter != nil {
				c.conflictCounter.Add(c.ctx, 1, metric.WithAttributes(
					telemetry.AttrTrigger.String(string(cmd.Operation))))
			}
			if rerr := c.reload(ctx, mb); rerr != nil {
				return nil, rerr
			}
			continue
		}
		if ctx.Err() != nil {
			terr := errs.New("coordinator", errs.CodeTimeout,
				errs.WithBasket(cmd.BasketID), errs.WithCause(err))
			c.observe(cmd, "timeout", terr)
			return nil, terr
		}
		c.observe(cmd, "error", err)
		return nil, err
	}

	c.observe(cmd, "conflict", lastErr)
	return nil, errs.New("coordinator", errs.CodeConflict,
		errs.WithBasket(cmd.BasketID),
		errs.WithMessage("concurrent modification persisted after retry"),
		errs.WithCause(lastErr))
}

// ensureLoaded populates the mailbox cache from the latest snapshot plus the
// event tail. Replay after a restart goes through here.
func (c *Coordinator) ensureLoaded(ctx context.Context, mb *mailbox) error {
	if mb.loaded {
		return nil
	}
	snap, version, err := c.restore(ctx, mb.id)
	if err != nil {
		return err
	}
	mb.state = snap
	mb.version = version
	mb.loaded = true
	return nil
}

func (c *Coordinator) restore(ctx context.Context, basketID string) (*basket.Snapshot, int64, error) {
	var state *basket.Snapshot
	var version int64

	rec, ok, err := c.store.LoadSnapshot(ctx, basketID)
	if err != nil {
		return nil, 0, err
	}
	if ok {
		state = rec.State
		version = rec.Version
	}

	events, err := c.store.Load(ctx, basketID, version)
	if err != nil {
		return nil, 0, err
	}
	if len(events) > 0 {
		state = lifecycle.Replay(state, events)
		version = events[len(events)-1].Version
	}
	return state, version, nil
}

func (c *Coordinator) reload(ctx context.Context, mb *mailbox) error {
	events, err := c.store.Load(ctx, mb.id, mb.version)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		mb.state = lifecycle.Replay(mb.state, events)
		mb.version = events[len(events)-1].Version
	}
	return nil
}

func (c *Coordinator) maybeSnapshot(mb *mailbox) {
	if c.cfg.SnapshotEvery <= 0 || mb.version%c.cfg.SnapshotEvery != 0 {
		return
	}
	rec := eventstore.SnapshotRecord{
		BasketID: mb.id,
		Version:  mb.version,
		State:    mb.state.Clone(),
		TakenAt:  time.Now().UTC(),
	}
	saveCtx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if err := c.store.SaveSnapshot(saveCtx, rec); err != nil {
		c.logger.Printf("snapshot save failed basket=%s version=%d err=%v", mb.id, mb.version, err)
	}
}

func (c *Coordinator) observe(cmd Command, outcome string, err error) {
	if c.commandCounter == nil {
		return
	}
	attrs := telemetry.ResultAttributes(outcome)
	attrs = append(attrs, telemetry.AttrTrigger.String(string(cmd.Operation)))
	if err != nil {
		attrs = append(attrs, telemetry.AttrErrorCode.String(string(errs.CodeOf(err))))
	}
	c.commandCounter.Add(c.ctx, 1, metric.WithAttributes(attrs...))
}

func (c *Coordinator) observeCommit(evt lifecycle.TransitionEvent, start time.Time) {
	if c.commandCounter != nil {
		attrs := telemetry.ResultAttributes("accepted")
		attrs = append(attrs, telemetry.AttrTrigger.String(string(evt.Trigger)))
		c.commandCounter.Add(c.ctx, 1, metric.WithAttributes(attrs...))
	}
	if c.commitDuration != nil {
		attrs := telemetry.TransitionAttributes(string(evt.Trigger), string(evt.From), string(evt.To))
		c.commitDuration.Record(c.ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attrs...))
	}
}

func eventMetadata(cmd Command) map[string]string {
	if cmd.CorrelationID == "" {
		return cmd.Metadata
	}
	md := make(map[string]string, len(cmd.Metadata)+1)
	for k, v := range cmd.Metadata {
		md[k] = v
	}
	md["correlation_id"] = cmd.CorrelationID
	return md
}
