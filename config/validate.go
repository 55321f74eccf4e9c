package config

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// Validate checks the normalized configuration.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		return fmt.Errorf("ListenAddress: %w", err)
	}
	switch cfg.Storage {
	case StorageMemory:
	case StorageLevelDB, StorageBolt:
		if cfg.DataDir == "" {
			return fmt.Errorf("DataDir is required for %s storage", cfg.Storage)
		}
	default:
		return fmt.Errorf("Storage: unsupported backend %q", cfg.Storage)
	}
	if _, err := cfg.Pool.Params(); err != nil {
		return err
	}
	if cfg.Pool.ClaimWindowBlocks == 0 {
		return fmt.Errorf("pool: ClaimWindowBlocks must be positive")
	}
	switch cfg.Indexer.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("indexer: unsupported driver %q", cfg.Indexer.Driver)
	}
	if cfg.Indexer.Enabled && cfg.Indexer.Driver == "postgres" && cfg.Indexer.DSN == "" {
		return fmt.Errorf("indexer: postgres requires a DSN")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unsupported level %q", cfg.Log.Level)
	}
	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry: SampleRatio %v outside [0,1]", r)
	}
	if cfg.RateLimit.Burst < 1 {
		return fmt.Errorf("ratelimit: Burst must be at least 1")
	}
	return nil
}

// JWTSecret resolves the signing key, preferring the inline value.
func (a AuthConfig) JWTSecret() string {
	if a.Secret != "" {
		return a.Secret
	}
	if a.SecretEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(a.SecretEnv))
}
