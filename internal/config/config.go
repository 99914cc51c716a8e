// Package config loads service settings from HIVEMIND_* environment
// variables and bound command-line flags, with sane defaults for local
// development.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Defaults for a local single-node setup.
const (
	DefaultListenAddr       = "0.0.0.0:8100"
	DefaultDataDir          = "./data"
	DefaultSnapshotInterval = 60 * time.Second
	DefaultReplicationURL   = "ws://127.0.0.1:3001/replicate"
	DefaultLLMProvider      = "anthropic"
	DefaultLLMModel         = "claude-sonnet-4-20250514"
	DefaultEmbeddingModel   = "openai:text-embedding-3-small"
)

// Config holds everything the service needs at startup.
type Config struct {
	ListenAddr string
	DataDir    string

	// SnapshotInterval of 0 disables periodic snapshots; the shutdown
	// snapshot is still written.
	SnapshotInterval time.Duration

	ReplicationEnabled bool
	ReplicationURL     string

	LLMProvider string
	LLMAPIKey   string
	LLMModel    string

	// EmbeddingModel is a "provider:model" spec.
	EmbeddingModel  string
	EmbeddingAPIKey string
}

// flagBindings maps config keys to the command-line flags that override
// them. A set flag beats the environment; an unset one falls through.
var flagBindings = map[string]string{
	"listen_addr":         "listen",
	"data_dir":            "data-dir",
	"snapshot_interval":   "snapshot-interval",
	"replication_enabled": "replication",
	"replication_url":     "replication-url",
}

// Load reads the environment, applies any bound command-line flags, and
// validates the result. A nil flag set loads from the environment only.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HIVEMIND")
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	v.SetDefault("listen_addr", DefaultListenAddr)
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("snapshot_interval", DefaultSnapshotInterval)
	v.SetDefault("replication_enabled", false)
	v.SetDefault("replication_url", DefaultReplicationURL)
	v.SetDefault("llm_provider", DefaultLLMProvider)
	v.SetDefault("llm_api_key", "")
	v.SetDefault("llm_model", DefaultLLMModel)
	v.SetDefault("embedding_model", DefaultEmbeddingModel)
	v.SetDefault("embedding_api_key", "")

	cfg := Config{
		ListenAddr:         v.GetString("listen_addr"),
		DataDir:            v.GetString("data_dir"),
		SnapshotInterval:   v.GetDuration("snapshot_interval"),
		ReplicationEnabled: v.GetBool("replication_enabled"),
		ReplicationURL:     v.GetString("replication_url"),
		LLMProvider:        v.GetString("llm_provider"),
		LLMAPIKey:          v.GetString("llm_api_key"),
		LLMModel:           v.GetString("llm_model"),
		EmbeddingModel:     v.GetString("embedding_model"),
		EmbeddingAPIKey:    v.GetString("embedding_api_key"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}
	if c.SnapshotInterval < 0 {
		return fmt.Errorf("snapshot interval cannot be negative: %s", c.SnapshotInterval)
	}
	if c.ReplicationEnabled && c.ReplicationURL == "" {
		return fmt.Errorf("replication is enabled but no sink URL is set")
	}
	return nil
}
