// Package config loads the service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/k0sti/snowclaw-memory/internal/logging"
	"github.com/k0sti/snowclaw-memory/internal/model"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Defaults for service fields.
const (
	DefaultTTL           = 7 * 24 * time.Hour
	DefaultEvictInterval = 10 * time.Minute
	DefaultHTTPAddr      = "127.0.0.1:7377"
	DefaultSubject       = "snowclaw.memory.>"
	DefaultPublishPrefix = "snowclaw.memory"
)

// Config is the service configuration.
type Config struct {
	Store  StoreConfig        `koanf:"store" json:"store"`
	Cache  CacheConfig        `koanf:"cache" json:"cache"`
	HTTP   HTTPConfig         `koanf:"http" json:"http"`
	NATS   NATSConfig         `koanf:"nats" json:"nats"`
	Log    logging.Config     `koanf:"log" json:"log"`
	Memory model.MemoryConfig `koanf:"memory" json:"memory"`
}

// StoreConfig selects the claim index.
type StoreConfig struct {
	Backend string `koanf:"backend" json:"backend"`
	Path    string `koanf:"path" json:"path"`
}

// CacheConfig controls claim retention.
type CacheConfig struct {
	TTL           Duration `koanf:"ttl" json:"ttl"`
	EvictInterval Duration `koanf:"evict_interval" json:"evict_interval"`
}

// HTTPConfig controls the query API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr" json:"addr"`
}

// NATSConfig connects the event bus bridge. An empty URL disables it.
type NATSConfig struct {
	URL           string   `koanf:"url" json:"url"`
	Subjects      []string `koanf:"subjects" json:"subjects"`
	PublishPrefix string   `koanf:"publish_prefix" json:"publish_prefix"`
}

// Default returns the service defaults. The memory section is left empty:
// no trust preferences and no model tiers.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// DefaultDBPath returns ~/.snowclaw/memory.db.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".snowclaw", "memory.db")
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendSQLite
	}
	if cfg.Store.Path == "" && cfg.Store.Backend == BackendSQLite {
		cfg.Store.Path = DefaultDBPath()
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = Duration(DefaultTTL)
	}
	if cfg.Cache.EvictInterval == 0 {
		cfg.Cache.EvictInterval = Duration(DefaultEvictInterval)
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
	if len(cfg.NATS.Subjects) == 0 {
		cfg.NATS.Subjects = []string{DefaultSubject}
	}
	if cfg.NATS.PublishPrefix == "" {
		cfg.NATS.PublishPrefix = DefaultPublishPrefix
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("store.backend %q must be %s or %s", c.Store.Backend, BackendSQLite, BackendMemory))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Cache.EvictInterval <= 0 {
		errs = append(errs, errors.New("cache.evict_interval must be positive"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.NATS.URL != "" && len(c.NATS.Subjects) == 0 {
		errs = append(errs, errors.New("nats.subjects is required when nats.url is set"))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	for i, p := range c.Memory.Sources {
		if !(p.Weight >= 0 && p.Weight <= 1) {
			errs = append(errs, fmt.Errorf("memory.sources[%d].weight %v outside [0,1]", i, p.Weight))
		}
	}
	return errors.Join(errs...)
}
