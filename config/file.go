package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration document from disk, layered on top of
// Default. An empty path falls back to BASKETCORE_CONFIG, then to
// config/basketcore.yaml; a missing file yields the defaults.
func Load(ctx context.Context, path string) (Settings, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("BASKETCORE_CONFIG"))
	}
	if path == "" {
		path = "config/basketcore.yaml"
	}

	cfg := Default()
	safePath := filepath.Clean(path)
	file, err := os.Open(safePath) // #nosec G304 -- configuration paths are controlled by operators.
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Settings{}, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Settings{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(ctx); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// Validate performs semantic validation on the loaded configuration.
func (s Settings) Validate(ctx context.Context) error {
	_ = ctx
	switch s.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(s.Store.DSN) == "" {
			return fmt.Errorf("store.dsn required for postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be memory|postgres, got %q", s.Store.Backend)
	}
	if s.Store.SnapshotEvery < 0 {
		return fmt.Errorf("store.snapshotEvery must be >=0")
	}
	if s.Coordinator.MaxListingRetries < 0 {
		return fmt.Errorf("coordinator.maxListingRetries must be >=0")
	}
	if s.Router.MaxAttempts <= 0 {
		return fmt.Errorf("router.maxAttempts must be >0")
	}
	if s.Router.InitialBackoff <= 0 || s.Router.MaxBackoff <= 0 {
		return fmt.Errorf("router backoff intervals must be >0")
	}
	if s.Router.MaxBackoff < s.Router.InitialBackoff {
		return fmt.Errorf("router.maxBackoff must be >= router.initialBackoff")
	}
	if s.Router.Workers <= 0 {
		return fmt.Errorf("router.workers must be >0")
	}
	if strings.TrimSpace(s.Server.Addr) == "" {
		return fmt.Errorf("server.addr required")
	}
	return nil
}
