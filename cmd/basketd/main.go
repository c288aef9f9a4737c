// Command basketd launches the basket lifecycle orchestration service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/indexbasket/basketcore/config"
	"github.com/indexbasket/basketcore/internal/app/coordinator"
	"github.com/indexbasket/basketcore/internal/app/router"
	"github.com/indexbasket/basketcore/internal/domain/eventstore"
	"github.com/indexbasket/basketcore/internal/domain/lifecycle"
	memadapters "github.com/indexbasket/basketcore/internal/infra/adapters/memory"
	"github.com/indexbasket/basketcore/internal/infra/adapters/webhook"
	"github.com/indexbasket/basketcore/internal/infra/adapters/wspush"
	memstore "github.com/indexbasket/basketcore/internal/infra/persistence/memory"
	"github.com/indexbasket/basketcore/internal/infra/persistence/migrations"
	"github.com/indexbasket/basketcore/internal/infra/persistence/postgres"
	httpserver "github.com/indexbasket/basketcore/internal/infra/server/http"
	"github.com/indexbasket/basketcore/internal/infra/telemetry"
)

const (
	loggerPrefix             = "basketd "
	shutdownTimeout          = 30 * time.Second
	serverShutdownTimeout    = 5 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	cfgPath := flag.String("config", "", "Path to configuration file (default: config/basketcore.yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stdout, loggerPrefix, log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(ctx, *cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	cfg = overlayEnv(cfg)
	logger.Printf("configuration initialised: env=%s store=%s", cfg.Environment, cfg.Store.Backend)

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  string(cfg.Environment),
	})
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}

	store, pgPool, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("initialise event store: %v", err)
	}

	stream := wspush.New("ws-push")
	adapters, deadletter := buildRouting(cfg, stream, logger)
	rt := router.New(router.Config{
		Explicit:       explicitRoutes(cfg.Router.Explicit),
		MaxAttempts:    cfg.Router.MaxAttempts,
		InitialBackoff: cfg.Router.InitialBackoff,
		MaxBackoff:     cfg.Router.MaxBackoff,
		Workers:        cfg.Router.Workers,
		Logger:         logger,
	}, adapters, deadletter)

	coord, err := coordinator.New(store, rt, coordinator.Hooks{}, coordinator.Config{
		MaxListingRetries: cfg.Coordinator.MaxListingRetries,
		SnapshotEvery:     cfg.Store.SnapshotEvery,
		MailboxBuffer:     cfg.Coordinator.MailboxBuffer,
		ActionWorkers:     cfg.Coordinator.ActionWorkers,
		ActionQueue:       cfg.Coordinator.ActionQueue,
		ActionTimeout:     cfg.Coordinator.ActionTimeout,
		Logger:            logger,
	})
	if err != nil {
		logger.Fatalf("initialise coordinator: %v", err)
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpserver.NewHandler(coord, adapters, deadletter, stream),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("http server: %v", err)
		}
	}()
	logger.Printf("command API listening on %s", cfg.Server.Addr)

	logger.Print("basketd started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	shutdownStart := time.Now()

	shutdownStep(shutdownCtx, logger, "stopping http server", serverShutdownTimeout, server.Shutdown)
	stream.Close()
	shutdownStep(shutdownCtx, logger, "draining coordinator", cfg.Server.ShutdownTimeout, coord.Close)
	rt.Close()
	if pgPool != nil {
		pgPool.Close()
	}
	shutdownStep(shutdownCtx, logger, "flushing telemetry", telemetryShutdownTimeout, telemetryShutdown)

	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func overlayEnv(cfg config.Settings) config.Settings {
	env := config.FromEnv()
	return config.Apply(cfg,
		config.WithEnvironment(env.Environment),
		config.WithStoreBackend(envStoreBackend(), os.Getenv("BASKETCORE_DB_DSN")),
		config.WithServerAddr(os.Getenv("BASKETCORE_HTTP_ADDR")),
		config.WithWebhookEndpoint(os.Getenv("BASKETCORE_WEBHOOK_ENDPOINT")),
		config.WithTelemetry(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), os.Getenv("OTEL_SERVICE_NAME")),
	)
}

func envStoreBackend() config.StoreBackend {
	return config.StoreBackend(os.Getenv("BASKETCORE_STORE_BACKEND"))
}

func buildStore(ctx context.Context, cfg config.Settings, logger *log.Logger) (eventstore.Store, *pgxpool.Pool, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		if err := migrations.Apply(ctx, cfg.Store.DSN, cfg.Store.MigrationsDir, logger); err != nil {
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		pool, err := pgxpool.New(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		postgres.ObservePoolMetrics(pool, "events")
		return postgres.NewEventStore(pool), pool, nil
	case config.StoreMemory:
		logger.Print("using in-memory event store; history is lost on restart")
		return memstore.NewStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func buildRouting(cfg config.Settings, stream *wspush.Adapter, logger *log.Logger) (map[router.Channel]router.Adapter, *router.MemoryDeadLetter) {
	direct := memadapters.NewCallbackAdapter("direct-callback")
	rpc := memadapters.NewRPCAdapter("rpc-invoke", func(ctx context.Context, n router.Notification) error {
		logger.Printf("rpc delivery: basket=%s trigger=%s", n.BasketID, n.Trigger)
		return nil
	}, cfg.Router.RPCRateLimit)

	adapters := map[router.Channel]router.Adapter{
		router.ChannelDirect: direct,
		router.ChannelRPC:    rpc,
		router.ChannelStream: stream,
	}
	if cfg.Router.WebhookEndpoint != "" {
		adapters[router.ChannelRequestResponse] = webhook.New("webhook", cfg.Router.WebhookEndpoint,
			&http.Client{Timeout: cfg.Router.WebhookTimeout})
	} else {
		adapters[router.ChannelRequestResponse] = memadapters.NewQueueAdapter("reqresp-queue", cfg.Router.QueueBuffer)
	}

	return adapters, router.NewMemoryDeadLetter(cfg.Router.DeadLetterSize)
}

func explicitRoutes(raw map[string]string) map[lifecycle.Trigger]router.Channel {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[lifecycle.Trigger]router.Channel, len(raw))
	for trigger, channel := range raw {
		out[lifecycle.Trigger(trigger)] = router.Channel(channel)
	}
	return out
}

func shutdownStep(ctx context.Context, logger *log.Logger, name string, timeout time.Duration, fn func(context.Context) error) {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	logger.Printf("shutdown: %s...", name)
	if err := fn(stepCtx); err != nil {
		logger.Printf("shutdown: %s failed: %v", name, err)
	} else {
		logger.Printf("shutdown: %s completed", name)
	}
}
