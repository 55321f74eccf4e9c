package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"

	"coverpool/crypto"
	"coverpool/native/fixedpoint"
)

// Genesis seeds an empty ledger: tokens and opening balances, pools,
// covered protocols and the initial yield weights.
type Genesis struct {
	Tokens    []GenesisToken    `yaml:"tokens"`
	Assets    []GenesisAsset    `yaml:"assets"`
	Protocols []GenesisProtocol `yaml:"protocols"`
	Weights   *GenesisWeights   `yaml:"weights"`
}

type GenesisToken struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
	// Balances maps bech32 accounts to decimal token amounts.
	Balances map[string]string `yaml:"balances"`
}

type GenesisAsset struct {
	Symbol     string `yaml:"symbol"`
	Governor   string `yaml:"governor"`
	ClaimToken string `yaml:"claim_token"`
	Deposits   *bool  `yaml:"deposits"`
	Premiums   *bool  `yaml:"premiums"`
	ExitFee    string `yaml:"exit_fee"`
	USDPrice   string `yaml:"usd_price"`
}

// DepositsEnabled defaults to true when unset.
func (a GenesisAsset) DepositsEnabled() bool { return a.Deposits == nil || *a.Deposits }

// PremiumsEnabled defaults to true when unset.
func (a GenesisAsset) PremiumsEnabled() bool { return a.Premiums == nil || *a.Premiums }

type GenesisProtocol struct {
	// ID is either a 0x-prefixed 32 byte hex string or a name that is hashed
	// with keccak256.
	ID       string            `yaml:"id"`
	Manager  string            `yaml:"manager"`
	Agent    string            `yaml:"agent"`
	Assets   []string          `yaml:"assets"`
	Premiums map[string]string `yaml:"premiums"`
	// Deposits are drawn from the agent's opening balance.
	Deposits map[string]string `yaml:"deposits"`
}

type GenesisWeights struct {
	// Initial hands the full weight to the beneficiary before Assets is
	// applied.
	Initial     bool              `yaml:"initial"`
	Assets      map[string]string `yaml:"assets"`
	Beneficiary string            `yaml:"beneficiary"`
}

// ProtocolID resolves a genesis protocol identifier.
func ProtocolID(raw string) ([32]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return [32]byte{}, errors.New("protocol id must not be empty")
	}
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		if len(raw) != 66 {
			return [32]byte{}, fmt.Errorf("protocol id %s: want 32 bytes of hex", raw)
		}
		bytes := common.FromHex(raw)
		if len(bytes) != 32 {
			return [32]byte{}, fmt.Errorf("protocol id %s: invalid hex", raw)
		}
		return common.BytesToHash(bytes), nil
	}
	return ethcrypto.Keccak256Hash([]byte(raw)), nil
}

// LoadGenesis reads and validates a YAML genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	g := &Genesis{}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(g); err != nil {
		return nil, fmt.Errorf("decode genesis %s: %w", path, err)
	}
	g.normalize()
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func upper(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func upperKeys(in map[string]string) map[string]string {
	if len(in) == 0 {
		return in
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[upper(k)] = strings.TrimSpace(v)
	}
	return out
}

func (g *Genesis) normalize() {
	for i := range g.Tokens {
		g.Tokens[i].Symbol = upper(g.Tokens[i].Symbol)
	}
	for i := range g.Assets {
		g.Assets[i].Symbol = upper(g.Assets[i].Symbol)
	}
	for i := range g.Protocols {
		p := &g.Protocols[i]
		for j := range p.Assets {
			p.Assets[j] = upper(p.Assets[j])
		}
		p.Premiums = upperKeys(p.Premiums)
		p.Deposits = upperKeys(p.Deposits)
	}
	if g.Weights != nil {
		g.Weights.Assets = upperKeys(g.Weights.Assets)
	}
}

// Validate checks references and number formats without touching state.
func (g *Genesis) Validate() error {
	if g == nil {
		return errors.New("genesis is missing")
	}
	tokens := make(map[string]bool, len(g.Tokens))
	for _, tok := range g.Tokens {
		if tok.Symbol == "" {
			return errors.New("genesis token: symbol must not be empty")
		}
		if tokens[tok.Symbol] {
			return fmt.Errorf("genesis token %s: duplicate", tok.Symbol)
		}
		tokens[tok.Symbol] = true
		for addr, amount := range tok.Balances {
			if _, err := crypto.DecodeAddress(addr); err != nil {
				return fmt.Errorf("genesis token %s: balance holder %q: %w", tok.Symbol, addr, err)
			}
			if _, err := fixedpoint.Parse(amount); err != nil {
				return fmt.Errorf("genesis token %s: balance %q: %w", tok.Symbol, amount, err)
			}
		}
	}
	assets := make(map[string]bool, len(g.Assets))
	for _, asset := range g.Assets {
		if !tokens[asset.Symbol] {
			return fmt.Errorf("genesis asset %s: token not declared", asset.Symbol)
		}
		if assets[asset.Symbol] {
			return fmt.Errorf("genesis asset %s: duplicate", asset.Symbol)
		}
		assets[asset.Symbol] = true
		if _, err := crypto.DecodeAddress(asset.Governor); err != nil {
			return fmt.Errorf("genesis asset %s: governor: %w", asset.Symbol, err)
		}
		for field, value := range map[string]string{"exit_fee": asset.ExitFee, "usd_price": asset.USDPrice} {
			if strings.TrimSpace(value) == "" {
				continue
			}
			if _, err := fixedpoint.Parse(value); err != nil {
				return fmt.Errorf("genesis asset %s: %s: %w", asset.Symbol, field, err)
			}
		}
	}
	ids := make(map[[32]byte]bool, len(g.Protocols))
	for _, p := range g.Protocols {
		id, err := ProtocolID(p.ID)
		if err != nil {
			return fmt.Errorf("genesis protocol: %w", err)
		}
		if ids[id] {
			return fmt.Errorf("genesis protocol %s: duplicate", p.ID)
		}
		ids[id] = true
		for role, addr := range map[string]string{"manager": p.Manager, "agent": p.Agent} {
			if _, err := crypto.DecodeAddress(addr); err != nil {
				return fmt.Errorf("genesis protocol %s: %s: %w", p.ID, role, err)
			}
		}
		covered := make(map[string]bool, len(p.Assets))
		for _, symbol := range p.Assets {
			if !assets[symbol] {
				return fmt.Errorf("genesis protocol %s: asset %s not declared", p.ID, symbol)
			}
			covered[symbol] = true
		}
		for _, amounts := range []map[string]string{p.Premiums, p.Deposits} {
			for symbol, amount := range amounts {
				if !covered[symbol] {
					return fmt.Errorf("genesis protocol %s: asset %s not covered", p.ID, symbol)
				}
				if _, err := fixedpoint.Parse(amount); err != nil {
					return fmt.Errorf("genesis protocol %s: %s amount: %w", p.ID, symbol, err)
				}
			}
		}
	}
	if g.Weights != nil {
		for symbol, weight := range g.Weights.Assets {
			if !assets[symbol] {
				return fmt.Errorf("genesis weights: asset %s not declared", symbol)
			}
			if _, err := fixedpoint.Parse(weight); err != nil {
				return fmt.Errorf("genesis weights: %s: %w", symbol, err)
			}
		}
		if b := strings.TrimSpace(g.Weights.Beneficiary); b != "" {
			if _, err := fixedpoint.Parse(b); err != nil {
				return fmt.Errorf("genesis weights: beneficiary: %w", err)
			}
		}
	}
	return nil
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
