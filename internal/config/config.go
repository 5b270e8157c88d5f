// Package config loads the caseboard server configuration from an optional
// YAML file with environment overrides on top. Every setting has a working
// default, so a bare binary starts an in-memory board.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	"caseboard/internal/infra/persistence"
	"caseboard/internal/mutation"
)

// Config is the full server configuration.
type Config struct {
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	Blob    Blob    `yaml:"blob"`
	Redis   Redis   `yaml:"redis"`
	History History `yaml:"history"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Addr string `yaml:"addr"`
}

// Storage selects and configures the client store backend.
type Storage struct {
	Driver      string `yaml:"driver"` // memory|sqlite|postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Blob selects the artifact backend; backend-specific settings stay in the
// environment (see internal/blob).
type Blob struct {
	Driver string `yaml:"driver"` // fs|s3|memory
	FSRoot string `yaml:"fs_root"`
}

// Redis configures the optional cross-instance event relay. An empty Addr
// disables the relay.
type Redis struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

// History bounds the undo/redo stacks.
type History struct {
	Limit int `yaml:"limit"`
}

// Default returns the configuration a bare binary runs with.
func Default() Config {
	return Config{
		Server:  Server{Addr: ":8080"},
		Storage: Storage{Driver: string(persistence.DriverMemory)},
		Blob:    Blob{Driver: "fs"},
		Redis:   Redis{Channel: "caseboard.events"},
		History: History{Limit: mutation.DefaultHistoryLimit},
	}
}

// Load reads the YAML file at path (skipped when path is empty), then applies
// environment overrides:
//
//	CASEBOARD_ADDR
//	CASEBOARD_STORAGE_DRIVER
//	CASEBOARD_SQLITE_PATH
//	CASEBOARD_POSTGRES_DSN
//	CASEBOARD_BLOB_DRIVER / CASEBOARD_BLOB_FS_ROOT
//	CASEBOARD_REDIS_ADDR / CASEBOARD_REDIS_CHANNEL
//	CASEBOARD_HISTORY_LIMIT
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "CASEBOARD_ADDR")
	setString(&cfg.Storage.Driver, "CASEBOARD_STORAGE_DRIVER")
	setString(&cfg.Storage.SQLitePath, "CASEBOARD_SQLITE_PATH")
	setString(&cfg.Storage.PostgresDSN, "CASEBOARD_POSTGRES_DSN")
	setString(&cfg.Blob.Driver, "CASEBOARD_BLOB_DRIVER")
	setString(&cfg.Blob.FSRoot, "CASEBOARD_BLOB_FS_ROOT")
	setString(&cfg.Redis.Addr, "CASEBOARD_REDIS_ADDR")
	setString(&cfg.Redis.Channel, "CASEBOARD_REDIS_CHANNEL")
	if v := os.Getenv("CASEBOARD_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.History.Limit = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func validate(cfg Config) error {
	switch persistence.Driver(cfg.Storage.Driver) {
	case persistence.DriverMemory, persistence.DriverSQLite, persistence.DriverPostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if cfg.History.Limit < 1 {
		return fmt.Errorf("history limit must be positive, got %d", cfg.History.Limit)
	}
	return nil
}

// StoreOptions renders the storage section as persistence options.
func (c Config) StoreOptions() (persistence.Driver, persistence.Options) {
	return persistence.Driver(c.Storage.Driver), persistence.Options{
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}
