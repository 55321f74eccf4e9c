package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"coverpool/crypto"
)

func testAddr(b byte) string {
	var raw [20]byte
	raw[0] = b
	raw[19] = b
	return crypto.FromRaw(crypto.AccountPrefix, raw).String()
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "poold.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if cfg.Storage != StorageLevelDB {
		t.Fatalf("storage = %q", cfg.Storage)
	}
	if cfg.Pool.TimelockBlocks == 0 || cfg.Pool.StakersPremiumShare != "1" {
		t.Fatalf("pool defaults not applied: %+v", cfg.Pool)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.ListenAddress != cfg.ListenAddress || again.Keeper.PayoffSchedule != "@every 1m" {
		t.Fatalf("reloaded config differs: %+v", again)
	}
}

func TestLoadParsesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poold.toml")
	contents := fmt.Sprintf(`ListenAddress = "0.0.0.0:9100"
DataDir = "./data"
Storage = "Bolt"
GenesisFile = "genesis.yaml"

[pool]
TimelockBlocks = 100
ClaimWindowBlocks = 20
StakersPremiumShare = "0.8"
Beneficiary = "%s"

[keeper]
BlockSchedule = "@every 2s"

[auth]
SecretEnv = "COVERPOOL_TEST_SECRET"
Issuer = "coverpool"

[ratelimit]
RequestsPerSecond = 2.5
Burst = 5

[indexer]
Enabled = true
Driver = "sqlite"
DSN = "file::memory:"

[log]
Level = "DEBUG"
File = "poold.log"

[pauses]
Pool = true
`, testAddr(0x0d))
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("COVERPOOL_TEST_SECRET", " s3cret ")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage != StorageBolt {
		t.Fatalf("storage = %q", cfg.Storage)
	}
	params, err := cfg.Pool.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.TimelockBlocks != 100 || params.ClaimWindowBlocks != 20 {
		t.Fatalf("unexpected params: %+v", params)
	}
	if params.StakersPremiumShare.Uint64() != 8e17 {
		t.Fatalf("share = %s", params.StakersPremiumShare)
	}
	if got := cfg.Auth.JWTSecret(); got != "s3cret" {
		t.Fatalf("secret = %q", got)
	}
	if cfg.RateLimit.RequestsPerSecond != 2.5 || cfg.RateLimit.Burst != 5 {
		t.Fatalf("ratelimit = %+v", cfg.RateLimit)
	}
	if cfg.Log.Level != "debug" || cfg.Log.MaxSizeMB != 100 {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.Keeper.BlockSchedule != "@every 2s" {
		t.Fatalf("keeper = %+v", cfg.Keeper)
	}
	if !cfg.Pauses.IsPaused("pool") || cfg.Pauses.IsPaused("other") {
		t.Fatalf("pauses = %+v", cfg.Pauses)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poold.toml")
	if err := os.WriteFile(path, []byte("ListenAddress = \"127.0.0.1:1\"\nRPCAddress = \"x\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "RPCAddress") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"listen", func(c *Config) { c.ListenAddress = "nope" }, "ListenAddress"},
		{"storage", func(c *Config) { c.Storage = "redis" }, "Storage"},
		{"datadir", func(c *Config) { c.DataDir = "" }, "DataDir"},
		{"share", func(c *Config) { c.Pool.StakersPremiumShare = "1.5" }, "exceeds 1"},
		{"beneficiary", func(c *Config) { c.Pool.Beneficiary = "cov1bad" }, "Beneficiary"},
		{"driver", func(c *Config) { c.Indexer.Driver = "mysql" }, "driver"},
		{"postgres dsn", func(c *Config) {
			c.Indexer.Enabled = true
			c.Indexer.Driver = "postgres"
		}, "DSN"},
		{"level", func(c *Config) { c.Log.Level = "trace" }, "level"},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }, "SampleRatio"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got %v", tc.want, err)
			}
		})
	}

	mem := Default()
	mem.Storage = StorageMemory
	mem.DataDir = ""
	if err := mem.Validate(); err != nil {
		t.Fatalf("memory storage needs no data dir: %v", err)
	}
}

func writeGenesis(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadGenesis(t *testing.T) {
	body := fmt.Sprintf(`tokens:
  - symbol: tkn
    name: Token
    decimals: 18
    balances:
      %[1]s: "1000"
assets:
  - symbol: TKN
    governor: %[1]s
    exit_fee: "0.1"
    usd_price: "2"
    premiums: false
protocols:
  - id: lending-market
    manager: %[1]s
    agent: %[2]s
    assets: [tkn]
    premiums:
      tkn: "0.5"
    deposits:
      TKN: "10"
weights:
  initial: true
  assets:
    TKN: "1"
  beneficiary: "0"
`, testAddr(1), testAddr(2))
	g, err := LoadGenesis(writeGenesis(t, body))
	if err != nil {
		t.Fatalf("load genesis: %v", err)
	}
	if g.Tokens[0].Symbol != "TKN" || g.Protocols[0].Assets[0] != "TKN" {
		t.Fatalf("symbols not normalized: %+v", g)
	}
	if _, ok := g.Protocols[0].Premiums["TKN"]; !ok {
		t.Fatalf("premium keys not normalized: %+v", g.Protocols[0].Premiums)
	}
	if !g.Assets[0].DepositsEnabled() || g.Assets[0].PremiumsEnabled() {
		t.Fatalf("asset flags: %+v", g.Assets[0])
	}
	if !g.Weights.Initial {
		t.Fatalf("weights = %+v", g.Weights)
	}
}

func TestLoadGenesisRejectsBadReferences(t *testing.T) {
	cases := map[string]string{
		"undeclared token": fmt.Sprintf("assets:\n  - symbol: TKN\n    governor: %s\n", testAddr(1)),
		"uncovered premium": fmt.Sprintf(`tokens:
  - symbol: TKN
    name: Token
assets:
  - symbol: TKN
    governor: %[1]s
protocols:
  - id: p
    manager: %[1]s
    agent: %[1]s
    assets: [TKN]
    premiums:
      USDC: "1"
`, testAddr(1)),
		"bad amount":    fmt.Sprintf("tokens:\n  - symbol: TKN\n    name: Token\n    balances:\n      %s: \"1.2.3\"\n", testAddr(1)),
		"unknown field": "tokens:\n  - symbol: TKN\n    supply: 3\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadGenesis(writeGenesis(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestProtocolID(t *testing.T) {
	named, err := ProtocolID("lending-market")
	if err != nil {
		t.Fatalf("named: %v", err)
	}
	hex := fmt.Sprintf("0x%x", named[:])
	parsed, err := ProtocolID(hex)
	if err != nil {
		t.Fatalf("hex: %v", err)
	}
	if parsed != named {
		t.Fatalf("hex round trip mismatch")
	}
	if _, err := ProtocolID("0x1234"); err == nil {
		t.Fatalf("short hex accepted")
	}
	if _, err := ProtocolID(" "); err == nil {
		t.Fatalf("empty id accepted")
	}
}
