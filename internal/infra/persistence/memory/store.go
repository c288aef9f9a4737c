// Package memory provides an in-memory event store used by tests and the
// single-process development runtime.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/indexbasket/basketcore/errs"
	"github.com/indexbasket/basketcore/internal/domain/basket"
	"github.com/indexbasket/basketcore/internal/domain/eventstore"
	"github.com/indexbasket/basketcore/internal/domain/lifecycle"
)

// Store keeps per-basket event logs and snapshots in process memory. Safe
// for concurrent use.
type Store struct {
	mu        sync.RWMutex
	logs      map[string][]lifecycle.TransitionEvent
	snapshots map[string]eventstore.SnapshotRecord
}

// NewStore constructs an empty in-memory event store.
func NewStore() *Store {
	return &Store{
		logs:      make(map[string][]lifecycle.TransitionEvent),
		snapshots: make(map[string]eventstore.SnapshotRecord),
	}
}

// Append commits the event when the basket's last version matches
// expectedVersion, otherwise reports a conflict.
func (s *Store) Append(ctx context.Context, evt lifecycle.TransitionEvent, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return errs.New("eventstore/memory", errs.CodePersistence, errs.WithCause(err))
	}
	if evt.BasketID == "" {
		return errs.New("eventstore/memory", errs.CodeInvalid, errs.WithMessage("basket id required"))
	}
	if evt.Version != expectedVersion+1 {
		return errs.New("eventstore/memory", errs.CodeInvalid,
			errs.WithBasket(evt.BasketID),
			errs.WithMessage("event version must be expectedVersion+1"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[evt.BasketID]
	current := int64(0)
	if n := len(log); n > 0 {
		current = log[n-1].Version
	}
	if current != expectedVersion {
		return errs.New("eventstore/memory", errs.CodeConflict,
			errs.WithBasket(evt.BasketID),
			errs.WithMessage("version conflict"),
			errs.WithField("expected", itoa(expectedVersion)),
			errs.WithField("actual", itoa(current)))
	}
	s.logs[evt.BasketID] = append(log, cloneEvent(evt))
	return nil
}

// Load returns events with version > afterVersion in ascending order.
func (s *Store) Load(ctx context.Context, basketID string, afterVersion int64) ([]lifecycle.TransitionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.New("eventstore/memory", errs.CodePersistence, errs.WithCause(err))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[basketID]
	var out []lifecycle.TransitionEvent
	for _, evt := range log {
		if evt.Version > afterVersion {
			out = append(out, cloneEvent(evt))
		}
	}
	return out, nil
}

// LatestVersion reports the highest committed version for the basket.
func (s *Store) LatestVersion(ctx context.Context, basketID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errs.New("eventstore/memory", errs.CodePersistence, errs.WithCause(err))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.logs[basketID]
	if len(log) == 0 {
		return 0, nil
	}
	return log[len(log)-1].Version, nil
}

// SaveSnapshot retains only the newest snapshot per basket.
func (s *Store) SaveSnapshot(ctx context.Context, rec eventstore.SnapshotRecord) error {
	if err := ctx.Err(); err != nil {
		return errs.New("eventstore/memory", errs.CodePersistence, errs.WithCause(err))
	}
	if rec.BasketID == "" {
		return errs.New("eventstore/memory", errs.CodeInvalid, errs.WithMessage("basket id required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.snapshots[rec.BasketID]; ok && prev.Version >= rec.Version {
		return nil
	}
	rec.State = rec.State.Clone()
	s.snapshots[rec.BasketID] = rec
	return nil
}

// LoadSnapshot returns the newest snapshot for the basket.
func (s *Store) LoadSnapshot(ctx context.Context, basketID string) (eventstore.SnapshotRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return eventstore.SnapshotRecord{}, false, errs.New("eventstore/memory", errs.CodePersistence, errs.WithCause(err))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.snapshots[basketID]
	if !ok {
		return eventstore.SnapshotRecord{}, false, nil
	}
	rec.State = rec.State.Clone()
	return rec, true, nil
}

func cloneEvent(evt lifecycle.TransitionEvent) lifecycle.TransitionEvent {
	if evt.Metadata != nil {
		meta := make(map[string]string, len(evt.Metadata))
		for k, v := range evt.Metadata {
			meta[k] = v
		}
		evt.Metadata = meta
	}
	if evt.Definition != nil {
		def := *evt.Definition
		def.Constituents = append([]basket.Constituent(nil), evt.Definition.Constituents...)
		evt.Definition = &def
	}
	if evt.Backtest != nil {
		report := *evt.Backtest
		report.CriticalErrors = append([]string(nil), evt.Backtest.CriticalErrors...)
		evt.Backtest = &report
	}
	return evt
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

var _ eventstore.Store = (*Store)(nil)
