// Package async provides the bounded worker pool backing decoupled task
// execution.
package async

import (
	"context"
	"fmt"
	"sync"

	"github.com/indexbasket/basketcore/errs"
)

// Task is a unit of work executed on a pool worker.
type Task func(context.Context) error

// Pool executes tasks on a fixed set of workers over a bounded queue.
// Submission never blocks: a full queue surfaces as backpressure instead of
// stalling the submitter. Once closed, the workers finish every accepted
// task before exiting, so Shutdown never strands queued work.
type Pool struct {
	mu      sync.Mutex
	closed  bool
	jobs    chan job
	workers sync.WaitGroup
}

type job struct {
	ctx context.Context
	fn  Task
}

// NewPool creates a pool with the given worker count and queue depth.
func NewPool(workers, queue int) (*Pool, error) {
	if workers <= 0 {
		return nil, errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("workers must be >0"))
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{jobs: make(chan job, queue)}
	p.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p, nil
}

// Submit schedules fn for execution. The context is held until a worker picks
// the task up and is then passed to it; a closed pool or a full queue rejects
// the submission with errs.CodeUnavailable.
func (p *Pool) Submit(ctx context.Context, fn Task) error {
	if fn == nil {
		return errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("task must not be nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool closed"))
	}
	select {
	case p.jobs <- job{ctx: ctx, fn: fn}:
		return nil
	default:
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool at capacity"))
	}
}

// Close stops accepting new tasks. Tasks already accepted still run.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.jobs)
}

// Shutdown closes the pool and waits until the workers have drained the
// queue, or until ctx expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Close()
	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown context: %w", ctx.Err())
	}
}

func (p *Pool) worker() {
	defer p.workers.Done()
	for jb := range p.jobs {
		p.run(jb)
	}
}

func (p *Pool) run(jb job) {
	defer func() {
		if r := recover(); r != nil {
			// A panicking task must not take its worker down.
			_ = r
		}
	}()
	if err := jb.fn(jb.ctx); err != nil {
		// Task errors are owned by the submitting component.
		_ = err
	}
}
