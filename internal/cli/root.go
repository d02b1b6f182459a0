// Package cli implements the snowclaw-memory CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/k0sti/snowclaw-memory/internal/config"
	"github.com/k0sti/snowclaw-memory/internal/model"
	"github.com/k0sti/snowclaw-memory/internal/store"
)

var (
	dbPath      string
	configPath  string
	trustPath   string
	backendFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "snowclaw-memory",
	Short: "Collective memory for AI agents",
	Long:  "Index, rank and reconcile memory claims shared between agents as relay events. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $SNOWCLAW_STORE_PATH or ~/.snowclaw/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Service config file (YAML)")
	RootCmd.PersistentFlags().StringVar(&trustPath, "trust", "", "Trust and model tier document (TOML)")
	RootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Store backend: sqlite or memory")
}

// loadConfig resolves the service config and applies the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if backendFlag != "" {
		cfg.Store.Backend = backendFlag
	}
	if cfg.Store.Backend == config.BackendSQLite && cfg.Store.Path == "" {
		cfg.Store.Path = config.DefaultDBPath()
	}

	trust, err := loadTrust(trustPath, configPath != "", cfg.Memory)
	if err != nil {
		return nil, err
	}
	cfg.Memory = trust
	return cfg, cfg.Validate()
}

// loadTrust returns the trust document from path when given, else the
// config file's memory section when a config file was loaded, else the
// built-in defaults. A document that exists but is empty stays empty.
func loadTrust(path string, haveConfigFile bool, fromConfig model.MemoryConfig) (model.MemoryConfig, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return model.MemoryConfig{}, fmt.Errorf("read trust document: %w", err)
		}
		return model.ParseMemoryConfigTOML(data)
	}
	if haveConfigFile {
		return fromConfig, nil
	}
	return model.DefaultMemoryConfig(), nil
}

func openStore(cfg *config.Config) (store.Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return store.NewMemStore(), nil
	case config.BackendSQLite:
		return store.NewSQLiteStore(cfg.Store.Path)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// mustOpen loads the config and opens the store, exiting on failure.
func mustOpen() (*config.Config, store.Backend) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	return cfg, s
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
