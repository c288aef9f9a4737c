package persistence_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/indexbasket/basketcore/errs"
	"github.com/indexbasket/basketcore/internal/domain/basket"
	"github.com/indexbasket/basketcore/internal/domain/eventstore"
	"github.com/indexbasket/basketcore/internal/domain/lifecycle"
	pgstore "github.com/indexbasket/basketcore/internal/infra/persistence/postgres"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	testPool    *pgxpool.Pool
	pgContainer testcontainers.Container
	setupErr    error
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "basketcore"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}
	pgContainer = container

	setupErr = initialiseDatabase(ctx)
	exitCode := 0
	if setupErr != nil {
		fmt.Fprintf(os.Stderr, "postgres contract tests skipped: %v\n", setupErr)
	} else {
		exitCode = m.Run()
	}

	if testPool != nil {
		testPool.Close()
	}
	if pgContainer != nil {
		_ = pgContainer.Terminate(ctx)
	}
	os.Exit(exitCode)
}

func initialiseDatabase(ctx context.Context) error {
	host, err := pgContainer.Host(ctx)
	if err != nil {
		return fmt.Errorf("container host: %w", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return fmt.Errorf("container port: %w", err)
	}
	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/basketcore?sslmode=disable", host, port.Port())

	if err := applyMigrations(dsn); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("pgx pool: %w", err)
	}
	testPool = pool
	return nil
}

func applyMigrations(dsn string) error {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return fmt.Errorf("runtime caller lookup failed")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", ".."))
	migrationsDir := filepath.Join(root, "db", "migrations")
	sourceURL := fmt.Sprintf("file://%s", migrationsDir)

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open sql connection: %w", err)
	}
	defer sqlDB.Close()

	driver, err := pgxmigrate.WithInstance(sqlDB, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func testDefinition() *basket.Definition {
	return &basket.Definition{
		Code:         "TECH_BASKET",
		Name:         "Tech Basket",
		Type:         basket.TypeEquity,
		BaseCurrency: "USD",
		Constituents: []basket.Constituent{
			{Symbol: "AAPL", Weight: decimal.RequireFromString("60.00")},
			{Symbol: "MSFT", Weight: decimal.RequireFromString("40.00")},
		},
	}
}

func createEvent(basketID string, version int64) lifecycle.TransitionEvent {
	return lifecycle.TransitionEvent{
		EventID:     uuid.NewString(),
		BasketID:    basketID,
		From:        lifecycle.StatusNone,
		To:          basket.StatusDraft,
		Trigger:     lifecycle.TriggerCreateBasket,
		TriggeredBy: "user-1",
		Timestamp:   time.Now().UTC().Truncate(time.Microsecond),
		Version:     version,
		Definition:  testDefinition(),
	}
}

func TestPostgresEventStoreAppendAndLoad(t *testing.T) {
	if setupErr != nil {
		t.Skipf("postgres contract setup unavailable: %v", setupErr)
	}
	ctx := context.Background()
	store := pgstore.NewEventStore(testPool)
	basketID := "basket-" + uuid.NewString()

	evt1 := createEvent(basketID, 1)
	require.NoError(t, store.Append(ctx, evt1, 0))

	evt2 := lifecycle.TransitionEvent{
		EventID:     uuid.NewString(),
		BasketID:    basketID,
		From:        basket.StatusDraft,
		To:          basket.StatusBacktesting,
		Trigger:     lifecycle.TriggerBacktest,
		TriggeredBy: "user-1",
		Timestamp:   time.Now().UTC().Truncate(time.Microsecond),
		Version:     2,
		Metadata:    map[string]string{"correlation_id": "corr-1"},
	}
	require.NoError(t, store.Append(ctx, evt2, 1))

	events, err := store.Load(ctx, basketID, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int64(1), events[0].Version)
	require.Equal(t, int64(2), events[1].Version)
	require.NotNil(t, events[0].Definition)
	require.Equal(t, "TECH_BASKET", events[0].Definition.Code)
	require.True(t, events[0].Definition.Constituents[0].Weight.Equal(decimal.RequireFromString("60.00")),
		"constituent weight not round-tripped: %s", events[0].Definition.Constituents[0].Weight)
	require.Equal(t, "corr-1", events[1].Metadata["correlation_id"])

	tail, err := store.Load(ctx, basketID, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, int64(2), tail[0].Version)

	latest, err := store.LatestVersion(ctx, basketID)
	require.NoError(t, err)
	require.Equal(t, int64(2), latest)
}

func TestPostgresEventStoreConflict(t *testing.T) {
	if setupErr != nil {
		t.Skipf("postgres contract setup unavailable: %v", setupErr)
	}
	ctx := context.Background()
	store := pgstore.NewEventStore(testPool)
	basketID := "basket-" + uuid.NewString()

	require.NoError(t, store.Append(ctx, createEvent(basketID, 1), 0))

	err := store.Append(ctx, createEvent(basketID, 1), 0)
	require.Error(t, err, "duplicate version must conflict")
	require.Equal(t, errs.CodeConflict, errs.CodeOf(err))

	stale := createEvent(basketID, 3)
	err = store.Append(ctx, stale, 2)
	require.True(t, errs.IsCode(err, errs.CodeConflict), "stale expected version must conflict, got %v", err)
}

func TestPostgresSnapshotRoundTrip(t *testing.T) {
	if setupErr != nil {
		t.Skipf("postgres contract setup unavailable: %v", setupErr)
	}
	ctx := context.Background()
	store := pgstore.NewEventStore(testPool)
	basketID := "basket-" + uuid.NewString()

	_, ok, err := store.LoadSnapshot(ctx, basketID)
	require.NoError(t, err)
	require.False(t, ok, "expected no snapshot for fresh basket")

	state := &basket.Snapshot{
		ID:         basketID,
		Definition: *testDefinition(),
		CreatedBy:  "user-1",
		Status:     basket.StatusActive,
		Version:    20,
	}
	rec := eventstore.SnapshotRecord{
		BasketID: basketID,
		Version:  20,
		State:    state,
		TakenAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.SaveSnapshot(ctx, rec))

	got, ok, err := store.LoadSnapshot(ctx, basketID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(20), got.Version)
	require.Equal(t, basket.StatusActive, got.State.Status)

	// An older snapshot must not replace a newer one.
	older := rec
	older.Version = 10
	older.State.Version = 10
	require.NoError(t, store.SaveSnapshot(ctx, older))

	got, _, err = store.LoadSnapshot(ctx, basketID)
	require.NoError(t, err)
	require.Equal(t, int64(20), got.Version, "older snapshot overwrote newer")
}
