// Package eventstore defines persistence contracts for the append-only
// basket transition log and its periodic snapshots.
package eventstore

import (
	"context"
	"time"

	"github.com/indexbasket/basketcore/internal/domain/basket"
	"github.com/indexbasket/basketcore/internal/domain/lifecycle"
)

// SnapshotRecord is a persisted basket snapshot bounding replay cost.
type SnapshotRecord struct {
	BasketID string
	Version  int64
	State    *basket.Snapshot
	TakenAt  time.Time
}

// Store is the append-only, versioned transition log. Appends are atomic and
// optimistic: they succeed only when the store's last version for the basket
// equals expectedVersion. All implementations must surface conflicts with
// errs.CodeConflict so the coordinator can reload and retry.
type Store interface {
	// Append commits the event at evt.Version == expectedVersion+1.
	Append(ctx context.Context, evt lifecycle.TransitionEvent, expectedVersion int64) error
	// Load returns the events for a basket with version > afterVersion,
	// ordered by version ascending.
	Load(ctx context.Context, basketID string, afterVersion int64) ([]lifecycle.TransitionEvent, error)
	// LatestVersion reports the highest committed version for the basket;
	// zero means the basket has no events.
	LatestVersion(ctx context.Context, basketID string) (int64, error)
	// SaveSnapshot persists a snapshot; older snapshots for the basket may
	// be discarded.
	SaveSnapshot(ctx context.Context, rec SnapshotRecord) error
	// LoadSnapshot returns the most recent snapshot for the basket, or ok
	// false when none exists.
	LoadSnapshot(ctx context.Context, basketID string) (SnapshotRecord, bool, error)
}
