// Package postgres persists the basket transition log and snapshots in
// PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/indexbasket/basketcore/errs"
	"github.com/indexbasket/basketcore/internal/domain/basket"
	"github.com/indexbasket/basketcore/internal/domain/eventstore"
	"github.com/indexbasket/basketcore/internal/domain/lifecycle"
)

const uniqueViolation = "23505"

// EventStore is the Postgres-backed append-only transition log.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore constructs an EventStore backed by the provided pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const (
	eventInsertSQL = `
INSERT INTO basket_events (
    basket_id,
    version,
    event_id,
    from_state,
    to_state,
    trigger_event,
    triggered_by,
    occurred_at,
    reason,
    metadata,
    payload
)
SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9,
       COALESCE($10::jsonb, '{}'::jsonb),
       COALESCE($11::jsonb, '{}'::jsonb)
WHERE COALESCE((SELECT MAX(version) FROM basket_events WHERE basket_id = $1), 0) = $12;
`

	eventLoadSQL = `
SELECT
    basket_id,
    version,
    event_id,
    from_state,
    to_state,
    trigger_event,
    triggered_by,
    occurred_at,
    reason,
    metadata,
    payload
FROM basket_events
WHERE basket_id = $1
  AND version > $2
ORDER BY version ASC;
`

	eventLatestVersionSQL = `
SELECT COALESCE(MAX(version), 0)
FROM basket_events
WHERE basket_id = $1;
`

	snapshotUpsertSQL = `
INSERT INTO basket_snapshots (basket_id, version, state, taken_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (basket_id) DO UPDATE
SET version = EXCLUDED.version,
    state = EXCLUDED.state,
    taken_at = EXCLUDED.taken_at
WHERE basket_snapshots.version < EXCLUDED.version;
`

	snapshotLoadSQL = `
SELECT basket_id, version, state, taken_at
FROM basket_snapshots
WHERE basket_id = $1;
`
)

type eventPayload struct {
	Definition *basket.Definition     `json:"definition,omitempty"`
	Backtest   *basket.BacktestReport `json:"backtest,omitempty"`
}

// Append commits the event using an optimistic version check. A lost race
// surfaces as errs.CodeConflict.
func (s *EventStore) Append(ctx context.Context, evt lifecycle.TransitionEvent, expectedVersion int64) error {
	if s.pool == nil {
		return errs.New("eventstore/postgres", errs.CodePersistence, errs.WithMessage("nil pool"))
	}
	if evt.BasketID == "" {
		return errs.New("eventstore/postgres", errs.CodeInvalid, errs.WithMessage("basket id required"))
	}
	if evt.Version != expectedVersion+1 {
		return errs.New("eventstore/postgres", errs.CodeInvalid,
			errs.WithBasket(evt.BasketID),
			errs.WithMessage("event version must be expectedVersion+1"))
	}

	metadata, err := encodeJSON(evt.Metadata)
	if err != nil {
		return errs.New("eventstore/postgres", errs.CodePersistence,
			errs.WithBasket(evt.BasketID), errs.WithMessage("encode metadata"), errs.WithCause(err))
	}
	payload, err := encodeJSON(eventPayload{Definition: evt.Definition, Backtest: evt.Backtest})
	if err != nil {
		return errs.New("eventstore/postgres", errs.CodePersistence,
			errs.WithBasket(evt.BasketID), errs.WithMessage("encode payload"), errs.WithCause(err))
	}

	tag, err := s.pool.Exec(ctx, eventInsertSQL,
		evt.BasketID,
		evt.Version,
		evt.EventID,
		string(evt.From),
		string(evt.To),
		string(evt.Trigger),
		evt.TriggeredBy,
		evt.Timestamp,
		evt.Reason,
		metadata,
		payload,
		expectedVersion,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return conflict(evt.BasketID, expectedVersion)
		}
		return errs.New("eventstore/postgres", errs.CodePersistence,
			errs.WithBasket(evt.BasketID), errs.WithMessage("append event"), errs.WithCause(err))
	}
	if tag.RowsAffected() == 0 {
		return conflict(evt.BasketID, expectedVersion)
	}
	return nil
}

func conflict(basketID string, expected int64) error {
	return errs.New("eventstore/postgres", errs.CodeConflict,
		errs.WithBasket(basketID),
		errs.WithMessage(fmt.Sprintf("version conflict at expected version %d", expected)))
}

// Load returns events with version > afterVersion ordered by version.
func (s *EventStore) Load(ctx context.Context, basketID string, afterVersion int64) ([]lifecycle.TransitionEvent, error) {
	if s.pool == nil {
		return nil, errs.New("eventstore/postgres", errs.CodePersistence, errs.WithMessage("nil pool"))
	}
	rows, err := s.pool.Query(ctx, eventLoadSQL, basketID, afterVersion)
	if err != nil {
		return nil, errs.New("eventstore/postgres", errs.CodePersistence,
			errs.WithBasket(basketID), errs.WithMessage("load events"), errs.WithCause(err))
	}
	defer rows.Close()

	var events []lifecycle.TransitionEvent
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New("eventstore/postgres", errs.CodePersistence,
			errs.WithBasket(basketID), errs.WithMessage("iterate events"), errs.WithCause(err))
	}
	return events, nil
}

// LatestVersion reports the highest committed version for the basket.
func (s *EventStore) LatestVersion(ctx context.Context, basketID string) (int64, error) {
	if s.pool == nil {
		return 0, errs.New("eventstore/postgres", errs.CodePersistence, errs.WithMessage("nil pool"))
	}
	var version int64
	if err := s.pool.QueryRow(ctx, eventLatestVersionSQL, basketID).Scan(&version); err != nil {
		return 0, errs.New("eventstore/postgres", errs.CodePersistence,
			errs.WithBasket(basketID), errs.WithMessage("latest version"), errs.WithCause(err))
	}
	return version, nil
}

// SaveSnapshot upserts the snapshot, keeping only the newest version.
func (s *EventStore) SaveSnapshot(ctx context.Context, rec eventstore.SnapshotRecord) error {
	if s.pool == nil {
		return errs.New("eventstore/postgres", errs.CodePersistence, errs.WithMessage("nil pool"))
	}
	if rec.BasketID == "" {
		return errs.New("eventstore/postgres", errs.CodeInvalid, errs.WithMessage("basket id required"))
	}
	state, err := encodeJSON(rec.State)
	if err != nil {
		return errs.New("eventstore/postgres", errs.CodePersistence,
			errs.WithBasket(rec.BasketID), errs.WithMessage("encode snapshot"), errs.WithCause(err))
	}
	takenAt := rec.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}
	if _, err := s.pool.Exec(ctx, snapshotUpsertSQL, rec.BasketID, rec.Version, state, takenAt); err != nil {
		return errs.New("eventstore/postgres", errs.CodePersistence,
			errs.WithBasket(rec.BasketID), errs.WithMessage("save snapshot"), errs.WithCause(err))
	}
	return nil
}

// LoadSnapshot returns the stored snapshot for the basket, if any.
func (s *EventStore) LoadSnapshot(ctx context.Context, basketID string) (eventstore.SnapshotRecord, bool, error) {
	if s.pool == nil {
		return eventstore.SnapshotRecord{}, false, errs.New("eventstore/postgres", errs.CodePersistence, errs.WithMessage("nil pool"))
	}
	var (
		rec       eventstore.SnapshotRecord
		stateJSON []byte
	)
	err := s.pool.QueryRow(ctx, snapshotLoadSQL, basketID).Scan(&rec.BasketID, &rec.Version, &stateJSON, &rec.TakenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eventstore.SnapshotRecord{}, false, nil
		}
		return eventstore.SnapshotRecord{}, false, errs.New("eventstore/postgres", errs.CodePersistence,
			errs.WithBasket(basketID), errs.WithMessage("load snapshot"), errs.WithCause(err))
	}
	state := new(basket.Snapshot)
	if err := json.Unmarshal(stateJSON, state); err != nil {
		return eventstore.SnapshotRecord{}, false, errs.New("eventstore/postgres", errs.CodePersistence,
			errs.WithBasket(basketID), errs.WithMessage("decode snapshot"), errs.WithCause(err))
	}
	rec.State = state
	return rec, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (lifecycle.TransitionEvent, error) {
	var (
		evt          lifecycle.TransitionEvent
		from, to     string
		trigger      string
		metadataJSON []byte
		payloadJSON  []byte
		occurredAt   pgtype.Timestamptz
	)
	if err := row.Scan(
		&evt.BasketID,
		&evt.Version,
		&evt.EventID,
		&from,
		&to,
		&trigger,
		&evt.TriggeredBy,
		&occurredAt,
		&evt.Reason,
		&metadataJSON,
		&payloadJSON,
	); err != nil {
		return lifecycle.TransitionEvent{}, errs.New("eventstore/postgres", errs.CodePersistence,
			errs.WithMessage("scan event"), errs.WithCause(err))
	}
	evt.From = basket.Status(from)
	evt.To = basket.Status(to)
	evt.Trigger = lifecycle.Trigger(trigger)
	if occurredAt.Valid {
		evt.Timestamp = occurredAt.Time
	}
	if len(metadataJSON) > 0 && string(metadataJSON) != "{}" {
		meta := make(map[string]string)
		if err := json.Unmarshal(metadataJSON, &meta); err != nil {
			return lifecycle.TransitionEvent{}, errs.New("eventstore/postgres", errs.CodePersistence,
				errs.WithMessage("decode metadata"), errs.WithCause(err))
		}
		evt.Metadata = meta
	}
	if len(payloadJSON) > 0 && string(payloadJSON) != "{}" {
		var payload eventPayload
		if err := json.Unmarshal(payloadJSON, &payload); err != nil {
			return lifecycle.TransitionEvent{}, errs.New("eventstore/postgres", errs.CodePersistence,
				errs.WithMessage("decode payload"), errs.WithCause(err))
		}
		evt.Definition = payload.Definition
		evt.Backtest = payload.Backtest
	}
	return evt, nil
}

func encodeJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

var _ eventstore.Store = (*EventStore)(nil)
