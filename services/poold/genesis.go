package poold

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"coverpool/config"
	"coverpool/crypto"
	"coverpool/native/fixedpoint"
	"coverpool/native/pool"
)

func mustAccount(raw string) [20]byte {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		// LoadGenesis validated every address.
		panic(err)
	}
	return addr.Raw()
}

func optionalRatio(raw string) *uint256.Int {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return fixedpoint.MustParse(raw)
}

// ApplyGenesis seeds an empty ledger. It reports false without touching
// state when tokens are already registered. The whole genesis commits as
// one batch or not at all.
func (n *Node) ApplyGenesis(g *config.Genesis) (bool, error) {
	if g == nil {
		return false, nil
	}
	if err := g.Validate(); err != nil {
		return false, err
	}
	applied := false
	err := n.Do("genesis", func(e *pool.Engine) error {
		existing, err := n.state.TokenList()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
		applied = true
		return n.applyGenesis(e, g)
	})
	if err != nil {
		return false, fmt.Errorf("apply genesis: %w", err)
	}
	return applied, nil
}

func (n *Node) applyGenesis(e *pool.Engine, g *config.Genesis) error {
	for _, tok := range g.Tokens {
		name := tok.Name
		if strings.TrimSpace(name) == "" {
			name = tok.Symbol
		}
		if err := n.state.RegisterToken(tok.Symbol, name, tok.Decimals); err != nil {
			return err
		}
		for _, holder := range config.SortedKeys(tok.Balances) {
			addr := mustAccount(holder)
			if err := n.state.Mint(addr[:], tok.Symbol, fixedpoint.MustParse(tok.Balances[holder])); err != nil {
				return err
			}
		}
	}

	prices := make(map[string]*uint256.Int, len(g.Assets))
	for _, asset := range g.Assets {
		spec := pool.AssetSpec{
			Symbol:          asset.Symbol,
			Governor:        mustAccount(asset.Governor),
			ClaimTokenID:    strings.TrimSpace(asset.ClaimToken),
			DepositEnabled:  asset.DepositsEnabled(),
			PremiumsEnabled: asset.PremiumsEnabled(),
			ExitFee:         optionalRatio(asset.ExitFee),
			USDPrice:        optionalRatio(asset.USDPrice),
		}
		if err := e.AssetAdd(spec); err != nil {
			return fmt.Errorf("asset %s: %w", asset.Symbol, err)
		}
		prices[asset.Symbol] = fixedpoint.Clone(spec.USDPrice)
	}

	for _, p := range g.Protocols {
		id, err := config.ProtocolID(p.ID)
		if err != nil {
			return err
		}
		agent := mustAccount(p.Agent)
		if err := e.ProtocolAdd(id, mustAccount(p.Manager), agent, p.Assets); err != nil {
			return fmt.Errorf("protocol %s: %w", p.ID, err)
		}
		for _, symbol := range config.SortedKeys(p.Deposits) {
			if err := e.DepositProtocolBalance(agent, id, symbol, fixedpoint.MustParse(p.Deposits[symbol])); err != nil {
				return fmt.Errorf("protocol %s deposit %s: %w", p.ID, symbol, err)
			}
		}
		if len(p.Premiums) == 0 {
			continue
		}
		symbols := config.SortedKeys(p.Premiums)
		premiums := make([]*uint256.Int, len(symbols))
		usd := make([]*uint256.Int, len(symbols))
		for i, symbol := range symbols {
			premiums[i] = fixedpoint.MustParse(p.Premiums[symbol])
			usd[i] = prices[symbol]
		}
		if err := e.SetProtocolPremiums(id, symbols, premiums, usd); err != nil {
			return fmt.Errorf("protocol %s premiums: %w", p.ID, err)
		}
	}

	if g.Weights == nil {
		return nil
	}
	if g.Weights.Initial {
		if err := e.SetInitialWeight(); err != nil {
			return fmt.Errorf("initial weight: %w", err)
		}
	}
	if len(g.Weights.Assets) == 0 {
		return nil
	}
	symbols := config.SortedKeys(g.Weights.Assets)
	weights := make([]*uint256.Int, len(symbols))
	for i, symbol := range symbols {
		weights[i] = fixedpoint.MustParse(g.Weights.Assets[symbol])
	}
	beneficiary := optionalRatio(g.Weights.Beneficiary)
	if beneficiary == nil {
		beneficiary = pool.WeightRemainder
	}
	if err := e.SetWeights(symbols, weights, beneficiary); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	return nil
}
