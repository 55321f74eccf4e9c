package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"coverpool/native/pool"
)

// Config is the poold runtime configuration.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	// Storage selects the ledger backend: memory, leveldb or bolt.
	Storage     string `toml:"Storage"`
	GenesisFile string `toml:"GenesisFile"`
	Environment string `toml:"Environment"`

	ReadHeaderTimeout int `toml:"ReadHeaderTimeout"`
	ShutdownTimeout   int `toml:"ShutdownTimeout"`

	Pool      pool.Config     `toml:"pool"`
	Keeper    KeeperConfig    `toml:"keeper"`
	Auth      AuthConfig      `toml:"auth"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Indexer   IndexerConfig   `toml:"indexer"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Log       LogConfig       `toml:"log"`
	Pauses    Pauses          `toml:"pauses"`
}

// Load loads the configuration from path, writing a default file first when
// none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written by Load for a fresh node.
func Default() *Config {
	cfg := &Config{
		ListenAddress: "127.0.0.1:8645",
		DataDir:       "./coverpool-data",
		Storage:       StorageLevelDB,
		Environment:   "dev",
		Auth:          AuthConfig{AllowAnonymousReads: true, SecretEnv: "POOLD_JWT_SECRET"},
		Telemetry:     TelemetryConfig{Insecure: true},
	}
	cfg.normalize()
	return cfg
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = "127.0.0.1:8645"
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	if cfg.Storage == "" {
		cfg.Storage = StorageLevelDB
	}
	cfg.GenesisFile = strings.TrimSpace(cfg.GenesisFile)
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10
	}
	cfg.Pool.EnsureDefaults()
	cfg.Keeper.normalize()
	cfg.Auth.normalize()
	cfg.RateLimit.normalize()
	cfg.Indexer.normalize()
	cfg.Telemetry.normalize()
	cfg.Log.normalize()
}
