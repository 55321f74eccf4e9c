package config

import (
	"strings"
)

// Storage backends accepted by Config.Storage.
const (
	StorageMemory  = "memory"
	StorageLevelDB = "leveldb"
	StorageBolt    = "bolt"
)

// KeeperConfig schedules the background jobs. Schedules use cron syntax,
// including the "@every 5s" form.
type KeeperConfig struct {
	// BlockSchedule advances the ledger clock by one block per tick. Empty
	// disables automatic blocks; the clock then only moves through the API.
	BlockSchedule  string `toml:"BlockSchedule"`
	PayoffSchedule string `toml:"PayoffSchedule"`
	GaugeSchedule  string `toml:"GaugeSchedule"`
}

func (k *KeeperConfig) normalize() {
	k.BlockSchedule = strings.TrimSpace(k.BlockSchedule)
	k.PayoffSchedule = strings.TrimSpace(k.PayoffSchedule)
	if k.PayoffSchedule == "" {
		k.PayoffSchedule = "@every 1m"
	}
	k.GaugeSchedule = strings.TrimSpace(k.GaugeSchedule)
	if k.GaugeSchedule == "" {
		k.GaugeSchedule = "@every 15s"
	}
}

// AuthConfig configures bearer token verification for the HTTP API.
type AuthConfig struct {
	// Secret is the HMAC key for HS256 tokens. SecretEnv names an
	// environment variable consulted when Secret is empty.
	Secret    string `toml:"Secret"`
	SecretEnv string `toml:"SecretEnv"`
	Issuer    string `toml:"Issuer"`
	Audience  string `toml:"Audience"`
	// AllowAnonymousReads lets GET endpoints through without a token.
	AllowAnonymousReads bool `toml:"AllowAnonymousReads"`
}

func (a *AuthConfig) normalize() {
	a.Secret = strings.TrimSpace(a.Secret)
	a.SecretEnv = strings.TrimSpace(a.SecretEnv)
	a.Issuer = strings.TrimSpace(a.Issuer)
	a.Audience = strings.TrimSpace(a.Audience)
}

// RateLimitConfig bounds request throughput per client address.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

func (r *RateLimitConfig) normalize() {
	if r.RequestsPerSecond <= 0 {
		r.RequestsPerSecond = 20
	}
	if r.Burst <= 0 {
		r.Burst = 40
	}
}

// IndexerConfig configures the SQL event index.
type IndexerConfig struct {
	Enabled bool `toml:"Enabled"`
	// Driver is sqlite or postgres.
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

func (i *IndexerConfig) normalize() {
	i.Driver = strings.ToLower(strings.TrimSpace(i.Driver))
	if i.Driver == "" {
		i.Driver = "sqlite"
	}
	i.DSN = strings.TrimSpace(i.DSN)
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	// Headers is a comma separated key=value list.
	Headers string `toml:"Headers"`
	Metrics bool   `toml:"Metrics"`
	Traces  bool   `toml:"Traces"`
	// SampleRatio keeps this fraction of root spans; zero keeps all.
	SampleRatio           float64 `toml:"SampleRatio"`
	ExportIntervalSeconds int     `toml:"ExportIntervalSeconds"`
}

func (t *TelemetryConfig) normalize() {
	t.Endpoint = strings.TrimSpace(t.Endpoint)
	t.Headers = strings.TrimSpace(t.Headers)
}

// LogConfig selects the log sink. An empty File logs to stdout.
type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

func (l *LogConfig) normalize() {
	l.Level = strings.ToLower(strings.TrimSpace(l.Level))
	if l.Level == "" {
		l.Level = "info"
	}
	l.File = strings.TrimSpace(l.File)
	if l.MaxSizeMB <= 0 {
		l.MaxSizeMB = 100
	}
	if l.MaxBackups < 0 {
		l.MaxBackups = 0
	}
}

// Pauses halts mutations per module.
type Pauses struct {
	Pool bool `toml:"Pool"`
}

// IsPaused reports whether the named module is paused.
func (p Pauses) IsPaused(module string) bool {
	switch strings.ToLower(strings.TrimSpace(module)) {
	case "pool":
		return p.Pool
	default:
		return false
	}
}
