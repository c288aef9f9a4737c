// Package config centralises runtime configuration for basketcore services.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment identifies the runtime environment where basketcore operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// StoreBackend selects the event-store implementation.
type StoreBackend string

const (
	// StoreMemory keeps the event log in process memory.
	StoreMemory StoreBackend = "memory"
	// StorePostgres persists the event log in PostgreSQL.
	StorePostgres StoreBackend = "postgres"
)

// StoreSettings configures event-log persistence.
type StoreSettings struct {
	Backend StoreBackend `yaml:"backend"`
	DSN     string       `yaml:"dsn"`
	// MigrationsDir points at on-disk SQL migrations; empty runs the set
	// embedded in the binary.
	MigrationsDir string `yaml:"migrationsDir"`
	SnapshotEvery int64  `yaml:"snapshotEvery"`
}

// CoordinatorSettings tunes the lifecycle coordinator.
type CoordinatorSettings struct {
	MaxListingRetries int           `yaml:"maxListingRetries"`
	MailboxBuffer     int           `yaml:"mailboxBuffer"`
	ActionWorkers     int           `yaml:"actionWorkers"`
	ActionQueue       int           `yaml:"actionQueue"`
	ActionTimeout     time.Duration `yaml:"actionTimeout"`
}

// RouterSettings tunes notification delivery.
type RouterSettings struct {
	MaxAttempts    int           `yaml:"maxAttempts"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
	Workers        int           `yaml:"workers"`
	DeadLetterSize int           `yaml:"deadLetterSize"`
	// Explicit pins trigger events to channels, bypassing tier selection.
	Explicit map[string]string `yaml:"explicit"`
	// WebhookEndpoint receives request/response deliveries when set.
	WebhookEndpoint string        `yaml:"webhookEndpoint"`
	WebhookTimeout  time.Duration `yaml:"webhookTimeout"`
	// RPCRateLimit bounds RPC-tier deliveries per second; zero disables.
	RPCRateLimit int `yaml:"rpcRateLimit"`
	QueueBuffer  int `yaml:"queueBuffer"`
}

// ServerSettings configures the HTTP surface.
type ServerSettings struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// TelemetrySettings configures OTLP metric export.
type TelemetrySettings struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// Settings contains the basketcore configuration tree loaded from defaults
// and overrides.
type Settings struct {
	Environment Environment         `yaml:"environment"`
	Store       StoreSettings       `yaml:"store"`
	Coordinator CoordinatorSettings `yaml:"coordinator"`
	Router      RouterSettings      `yaml:"router"`
	Server      ServerSettings      `yaml:"server"`
	Telemetry   TelemetrySettings   `yaml:"telemetry"`
}

// Default returns the default basketcore configuration.
func Default() Settings {
	return Settings{
		Environment: EnvProd,
		Store: StoreSettings{
			Backend:       StoreMemory,
			DSN:           "",
			MigrationsDir: "",
			SnapshotEvery: 20,
		},
		Coordinator: CoordinatorSettings{
			MaxListingRetries: 3,
			MailboxBuffer:     16,
			ActionWorkers:     4,
			ActionQueue:       64,
			ActionTimeout:     10 * time.Second,
		},
		Router: RouterSettings{
			MaxAttempts:    3,
			InitialBackoff: 50 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Workers:        4,
			DeadLetterSize: 1024,
			Explicit:       map[string]string{},
			WebhookTimeout: 10 * time.Second,
			RPCRateLimit:   100,
			QueueBuffer:    256,
		},
		Server: ServerSettings{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: TelemetrySettings{
			OTLPEndpoint: "",
			ServiceName:  "basketcore",
		},
	}
}

// FromEnv loads configuration values from environment variables, overriding
// defaults.
func FromEnv() Settings {
	cfg := Default()
	if env := strings.TrimSpace(os.Getenv("BASKETCORE_ENV")); env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
	}
	if v := strings.TrimSpace(os.Getenv("BASKETCORE_STORE_BACKEND")); v != "" {
		cfg.Store.Backend = StoreBackend(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("BASKETCORE_DB_DSN")); v != "" {
		cfg.Store.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("BASKETCORE_MIGRATIONS_DIR")); v != "" {
		cfg.Store.MigrationsDir = v
	}
	if v := strings.TrimSpace(os.Getenv("BASKETCORE_SNAPSHOT_EVERY")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.Store.SnapshotEvery = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("BASKETCORE_MAX_LISTING_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Coordinator.MaxListingRetries = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("BASKETCORE_HTTP_ADDR")); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("BASKETCORE_WEBHOOK_ENDPOINT")); v != "" {
		cfg.Router.WebhookEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); v != "" {
		cfg.Telemetry.ServiceName = v
	}
	return cfg
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) {
		if env != "" {
			s.Environment = env
		}
	}
}

// WithStoreBackend selects the event-store backend and DSN.
func WithStoreBackend(backend StoreBackend, dsn string) Option {
	return func(s *Settings) {
		if backend != "" {
			s.Store.Backend = backend
		}
		if strings.TrimSpace(dsn) != "" {
			s.Store.DSN = dsn
		}
	}
}

// WithSnapshotEvery sets the periodic snapshot cadence in versions.
func WithSnapshotEvery(every int64) Option {
	return func(s *Settings) {
		if every >= 0 {
			s.Store.SnapshotEvery = every
		}
	}
}

// WithMaxListingRetries overrides the listing retry budget.
func WithMaxListingRetries(n int) Option {
	return func(s *Settings) {
		if n > 0 {
			s.Coordinator.MaxListingRetries = n
		}
	}
}

// WithServerAddr overrides the HTTP listen address.
func WithServerAddr(addr string) Option {
	return func(s *Settings) {
		if strings.TrimSpace(addr) != "" {
			s.Server.Addr = addr
		}
	}
}

// WithWebhookEndpoint configures the request/response delivery target.
func WithWebhookEndpoint(endpoint string) Option {
	return func(s *Settings) {
		s.Router.WebhookEndpoint = strings.TrimSpace(endpoint)
	}
}

// WithTelemetry configures OTLP metric export.
func WithTelemetry(endpoint, serviceName string) Option {
	return func(s *Settings) {
		if strings.TrimSpace(endpoint) != "" {
			s.Telemetry.OTLPEndpoint = endpoint
		}
		if strings.TrimSpace(serviceName) != "" {
			s.Telemetry.ServiceName = serviceName
		}
	}
}

func (s Settings) clone() Settings {
	clone := s
	clone.Router.Explicit = make(map[string]string, len(s.Router.Explicit))
	for k, v := range s.Router.Explicit {
		clone.Router.Explicit[k] = v
	}
	return clone
}
