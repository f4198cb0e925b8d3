// Package config loads stitchctl and embedding-application settings.
//
// Values are resolved in order: built-in defaults, then an optional YAML
// file, then STITCH_* environment variables. Command-line flags, when the
// caller has any, are applied last by the caller.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/productinfo/stitch-js-sdk/internal/util"
	"github.com/productinfo/stitch-js-sdk/storage"
	bboltstorage "github.com/productinfo/stitch-js-sdk/storage/bbolt"
	"github.com/productinfo/stitch-js-sdk/storage/memory"
	"github.com/productinfo/stitch-js-sdk/storage/postgres"
	"github.com/productinfo/stitch-js-sdk/storage/sqlite"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "STITCH_"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bbolt"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the full client configuration.
type Config struct {
	// AppID is the backend application id; it also namespaces local state.
	AppID string `yaml:"app_id" env:"APP_ID"`
	// BaseURL is the backend root, e.g. https://stitch.example.com.
	BaseURL        string        `yaml:"base_url" env:"BASE_URL"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`

	// EncryptionKey, when set, is a hex-encoded 32-byte key used to seal
	// session records at rest.
	EncryptionKey string `yaml:"encryption_key" env:"ENCRYPTION_KEY"`

	RefreshInterval  time.Duration `yaml:"refresh_interval" env:"REFRESH_INTERVAL"`
	ExpirationWindow time.Duration `yaml:"expiration_window" env:"EXPIRATION_WINDOW"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	// OTelEndpoint enables OTLP/HTTP trace export when non-empty.
	OTelEndpoint string `yaml:"otel_endpoint" env:"OTEL_ENDPOINT"`

	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
}

// StorageConfig selects where session state is persisted.
type StorageConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"`
	// Path is the database file for bbolt and sqlite.
	Path string `yaml:"path" env:"PATH"`
	// DSN is the postgres connection string.
	DSN string `yaml:"dsn" env:"DSN"`
}

// Default returns the built-in configuration.
func Default() Config {
	dir := ".stitch"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".stitch")
	}
	return Config{
		BaseURL:          "http://localhost:8080",
		RequestTimeout:   30 * time.Second,
		RefreshInterval:  60 * time.Second,
		ExpirationWindow: 300 * time.Second,
		LogLevel:         "info",
		Storage: StorageConfig{
			Backend: BackendBolt,
			Path:    filepath.Join(dir, "sessions.db"),
		},
	}
}

// Load resolves the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.AppID == "" {
		errs = append(errs, errors.New("app_id is required"))
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, errors.New("refresh_interval must be positive"))
	}
	if c.ExpirationWindow <= 0 {
		errs = append(errs, errors.New("expiration_window must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.EncryptionKeyBytes(); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendBolt, BackendSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for %s", c.Storage.Backend))
		}
	case BackendPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	return errors.Join(errs...)
}

// EncryptionKeyBytes decodes EncryptionKey. It returns nil when no key is
// configured.
func (c Config) EncryptionKeyBytes() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	key, err := util.HexDecode(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption_key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption_key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", level)
}

// NewLogger returns a JSON logger on stderr at level. Unknown levels fall
// back to info.
func NewLogger(level string) *slog.Logger {
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// Closer releases a repository's resources.
type Closer func() error

// OpenRepository opens the configured storage backend.
func OpenRepository(ctx context.Context, sc StorageConfig) (storage.Repository, Closer, error) {
	noop := func() error { return nil }
	switch sc.Backend {
	case BackendMemory:
		return memory.NewRepository(), noop, nil
	case BackendBolt:
		if err := os.MkdirAll(filepath.Dir(sc.Path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating storage directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(sc.Path, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("opening bbolt storage: %w", err)
		}
		return repo, repo.Close, nil
	case BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(sc.Path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating storage directory: %w", err)
		}
		repo, err := sqlite.Open(ctx, sc.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite storage: %w", err)
		}
		return repo, repo.Close, nil
	case BackendPostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, sc.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres storage: %w", err)
		}
		return repo, repo.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
}
