package pool

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"coverpool/crypto"
	"coverpool/native/fixedpoint"
)

const (
	// DefaultTimelockBlocks is the withdrawal cooldown applied when none is configured.
	DefaultTimelockBlocks = 40_320
	// DefaultClaimWindowBlocks is how long a matured entry stays claimable.
	DefaultClaimWindowBlocks = 5_760
)

// Config captures the runtime configuration for the pool ledger. Values seed
// the stored parameters on first use; later changes go through governance.
type Config struct {
	TimelockBlocks    uint64 `toml:"TimelockBlocks"`
	ClaimWindowBlocks uint64 `toml:"ClaimWindowBlocks"`
	// StakersPremiumShare is the fraction of settled premium credited to
	// stakers; the rest backs yield tokens. The default of 1 leaves yield
	// tokens unbacked, so Redeem pays nothing until governance lowers it.
	StakersPremiumShare string `toml:"StakersPremiumShare"`
	Beneficiary         string `toml:"Beneficiary"`
}

// EnsureDefaults fills unset fields.
func (c *Config) EnsureDefaults() {
	if c.TimelockBlocks == 0 {
		c.TimelockBlocks = DefaultTimelockBlocks
	}
	if c.ClaimWindowBlocks == 0 {
		c.ClaimWindowBlocks = DefaultClaimWindowBlocks
	}
	if strings.TrimSpace(c.StakersPremiumShare) == "" {
		c.StakersPremiumShare = "1"
	}
}

// Params converts the configuration into stored parameters.
func (c Config) Params() (Params, error) {
	c.EnsureDefaults()
	share, err := fixedpoint.Parse(c.StakersPremiumShare)
	if err != nil {
		return Params{}, fmt.Errorf("pool config: StakersPremiumShare: %w", err)
	}
	if share.Gt(fixedpoint.One) {
		return Params{}, fmt.Errorf("pool config: StakersPremiumShare %s exceeds 1", c.StakersPremiumShare)
	}
	params := Params{
		TimelockBlocks:      c.TimelockBlocks,
		ClaimWindowBlocks:   c.ClaimWindowBlocks,
		StakersPremiumShare: new(uint256.Int).Set(share),
	}
	if strings.TrimSpace(c.Beneficiary) != "" {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(c.Beneficiary))
		if err != nil {
			return Params{}, fmt.Errorf("pool config: Beneficiary: %w", err)
		}
		params.Beneficiary = addr.Raw()
	}
	return params, nil
}
