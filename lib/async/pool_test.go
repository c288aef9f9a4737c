package async

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/indexbasket/basketcore/errs"
)

func TestShutdownRunsQueuedTasks(t *testing.T) {
	p, err := NewPool(1, 8)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	if err := p.Submit(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("submit blocker: %v", err)
	}
	<-started

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if err := p.Submit(context.Background(), func(context.Context) error {
			ran.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	p.Close()
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := ran.Load(); got != 5 {
		t.Fatalf("expected all 5 queued tasks to run before shutdown returned, got %d", got)
	}
}

func TestSubmitAfterCloseRejected(t *testing.T) {
	p, err := NewPool(1, 1)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	p.Close()
	err = p.Submit(context.Background(), func(context.Context) error { return nil })
	if !errs.IsCode(err, errs.CodeUnavailable) {
		t.Fatalf("expected unavailable after close, got %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSubmitBackpressure(t *testing.T) {
	p, err := NewPool(1, 1)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	if err := p.Submit(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("submit blocker: %v", err)
	}
	<-started

	if err := p.Submit(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("submit to free slot: %v", err)
	}
	err = p.Submit(context.Background(), func(context.Context) error { return nil })
	if !errs.IsCode(err, errs.CodeUnavailable) {
		t.Fatalf("expected backpressure error, got %v", err)
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestNilTaskRejected(t *testing.T) {
	p, err := NewPool(1, 1)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer p.Close()
	if err := p.Submit(context.Background(), nil); !errs.IsCode(err, errs.CodeInvalid) {
		t.Fatalf("expected invalid for nil task, got %v", err)
	}
}

func TestPanickedTaskKeepsWorkerAlive(t *testing.T) {
	p, err := NewPool(1, 4)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	if err := p.Submit(context.Background(), func(context.Context) error {
		panic("task blew up")
	}); err != nil {
		t.Fatalf("submit panicking task: %v", err)
	}

	var ran atomic.Int32
	if err := p.Submit(context.Background(), func(context.Context) error {
		ran.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("submit follow-up: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if ran.Load() != 1 {
		t.Fatal("worker did not survive the panicking task")
	}
}

func TestZeroWorkersRejected(t *testing.T) {
	if _, err := NewPool(0, 4); !errs.IsCode(err, errs.CodeInvalid) {
		t.Fatalf("expected invalid for zero workers, got %v", err)
	}
}
